// Package recovery rebuilds a failed send transport a bounded number of
// times before giving up.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/engine"
)

var ErrExhausted = errors.New("transport recovery exhausted")

// DefaultMaxRetries applies when Config.MaxRetries is unset.
const DefaultMaxRetries = 3

type State string

const (
	StateActive     State = "active"
	StateRecovering State = "recovering"
	StateExhausted  State = "exhausted"
)

// Backoff returns the delay before rebuild attempt n (1-based).
type Backoff func(attempt int) time.Duration

// Exponential doubles base for every attempt, capped at max. A zero base
// means no delay.
func Exponential(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if base <= 0 || attempt <= 0 {
			return 0
		}
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		return min(d, max)
	}
}

// Rebuild replaces the transport and re-publishes its producers. It returns
// the id of the new transport. Implementations call Controller.Adopt as
// soon as the new transport exists so its state changes are not lost.
type Rebuild func(ctx context.Context) (string, error)

type Config struct {
	// MaxRetries <= 0 means DefaultMaxRetries.
	MaxRetries int
	Backoff    Backoff
}

type Controller struct {
	maxRetries  int
	backoff     Backoff
	rebuild     Rebuild
	onExhausted func(error)
	logger      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	state   State
	retries int
	current string
	running bool
	// adopted is set once the running rebuild has handed over its new
	// transport; pending records a failure of that transport seen before
	// the rebuild returned.
	adopted bool
	pending bool
	lastErr error
}

func New(ctx context.Context, transportID string, cfg Config, rebuild Rebuild, onExhausted func(error)) *Controller {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Backoff == nil {
		cfg.Backoff = Exponential(0, 0)
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Controller{
		maxRetries:  cfg.MaxRetries,
		backoff:     cfg.Backoff,
		rebuild:     rebuild,
		onExhausted: onExhausted,
		logger:      log.With().Str("module", "recovery").Logger(),
		ctx:         ctx,
		cancel:      cancel,
		state:       StateActive,
		current:     transportID,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

// Current is the transport the controller watches.
func (c *Controller) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Adopt switches the controller to transportID while a rebuild is still
// replaying producers on it.
func (c *Controller) Adopt(transportID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.state == StateExhausted {
		return
	}
	c.current = transportID
	c.adopted = true
}

// Observe feeds a connection state change of transportID.
func (c *Controller) Observe(transportID string, s engine.State) {
	c.mu.Lock()
	if transportID != c.current || c.state == StateExhausted {
		c.mu.Unlock()
		return
	}
	switch {
	case s == engine.StateConnected:
		c.retries = 0
		c.state = StateActive
		c.pending = false
		c.mu.Unlock()
		return
	case !s.Degraded():
		c.mu.Unlock()
		return
	case c.running && c.adopted:
		c.pending = true
		c.mu.Unlock()
		c.logger.Debug().Str("transport_id", transportID).Str("state", string(s)).Msg("rebuilt transport degraded during replay")
		return
	case c.running:
		c.mu.Unlock()
		c.logger.Debug().Str("transport_id", transportID).Str("state", string(s)).Msg("recovery in progress, suppressed")
		return
	}
	c.logger.Warn().Str("transport_id", transportID).Str("state", string(s)).Msg("send transport degraded")
	c.failLocked()
}

// failLocked counts one failure and either schedules a rebuild or gives
// up. It releases c.mu.
func (c *Controller) failLocked() {
	c.retries++
	if c.retries > c.maxRetries {
		c.state = StateExhausted
		err := fmt.Errorf("%w after %d attempts", ErrExhausted, c.maxRetries)
		if c.lastErr != nil {
			err = fmt.Errorf("%w: %v", err, c.lastErr)
		}
		c.mu.Unlock()
		c.logger.Error().Err(err).Msg("giving up on send transport")
		if c.onExhausted != nil {
			c.onExhausted(err)
		}
		return
	}
	attempt := c.retries
	c.state = StateRecovering
	c.running = true
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(attempt)
}

func (c *Controller) run(attempt int) {
	defer c.wg.Done()

	if d := c.backoff(attempt); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-c.ctx.Done():
			t.Stop()
			c.stop()
			return
		case <-t.C:
		}
	}

	c.logger.Info().Int("attempt", attempt).Msg("rebuilding send transport")
	id, err := c.rebuild(c.ctx)

	c.mu.Lock()
	c.running = false
	pending := c.pending
	c.adopted, c.pending = false, false
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("rebuild failed")
		c.failLocked()
		return
	}
	c.current = id
	if pending {
		c.logger.Warn().Str("transport_id", id).Int("attempt", attempt).Msg("rebuilt transport already degraded")
		c.failLocked()
		return
	}
	c.mu.Unlock()
	c.logger.Info().Str("transport_id", id).Int("attempt", attempt).Msg("send transport rebuilt")
}

func (c *Controller) stop() {
	c.mu.Lock()
	c.running = false
	c.adopted, c.pending = false, false
	c.mu.Unlock()
}

// Close cancels a pending rebuild and waits for it to return.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}
