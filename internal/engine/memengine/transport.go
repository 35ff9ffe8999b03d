package memengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dkeye/Huddle/internal/engine"
)

var (
	ErrAlreadyConnected = errors.New("transport already connected")
	ErrBadKind          = errors.New("engine kind must be audio or video")
	ErrNoDtlsParameters = errors.New("dtls parameters required")
)

const consumerBuffer = 256

type Transport struct {
	id     string
	router *Router
	opts   engine.TransportOptions
	logger zerolog.Logger

	mu            sync.Mutex
	params        engine.TransportParams
	state         engine.State
	connected     bool
	closed        bool
	nextMid       int
	producers     map[string]*Producer
	consumers     map[string]*Consumer
	stateHandlers []func(engine.State)
}

func newTransport(r *Router, opts engine.TransportOptions) *Transport {
	id := uuid.NewString()
	protocol, tcpType := "udp", ""
	if opts.ForceTCP {
		protocol, tcpType = "tcp", "passive"
	}
	candidates := []iceCandidate{{
		Foundation: protocol + "candidate",
		Priority:   1076302079,
		IP:         "127.0.0.1",
		Protocol:   protocol,
		Port:       uint16(40000 + rand.IntN(9000)),
		Type:       "host",
		TCPType:    tcpType,
	}}
	dtls := dtlsParameters{Role: "auto", Fingerprints: r.worker.fingerprints}

	return &Transport{
		id:     id,
		router: r,
		opts:   opts,
		logger: r.logger.With().Str("transport_id", id).Logger(),
		params: engine.TransportParams{
			ID:             id,
			IceParameters:  mustJSON(newIceParameters()),
			IceCandidates:  mustJSON(candidates),
			DtlsParameters: mustJSON(dtls),
		},
		state:     engine.StateNew,
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
	}
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Params() engine.TransportParams {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.params
}

func (t *Transport) Options() engine.TransportOptions { return t.opts }

// State is the last state set on the transport.
func (t *Transport) State() engine.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) Connect(_ context.Context, raw json.RawMessage) error {
	if len(raw) == 0 {
		return ErrNoDtlsParameters
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return engine.ErrClosed
	}
	if t.connected {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.connected = true
	t.mu.Unlock()

	t.SetState(engine.StateConnecting)
	t.SetState(engine.StateConnected)
	return nil
}

func (t *Transport) RestartIce(context.Context) (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, engine.ErrClosed
	}
	t.params.IceParameters = mustJSON(newIceParameters())
	return t.params.IceParameters, nil
}

func (t *Transport) Produce(_ context.Context, opts engine.ProducerOptions) (engine.Producer, error) {
	if opts.Kind != "audio" && opts.Kind != "video" {
		return nil, fmt.Errorf("%w: %q", ErrBadKind, opts.Kind)
	}
	params, err := parseRtpParameters(opts.Kind, opts.RtpParameters)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, engine.ErrClosed
	}
	p := newProducer(t, opts, params)
	t.producers[p.id] = p
	t.mu.Unlock()

	t.router.addProducer(p)
	t.logger.Debug().Str("producer_id", p.id).Str("kind", p.kind).Msg("producer created")
	return p, nil
}

func (t *Transport) Consume(_ context.Context, opts engine.ConsumerOptions) (engine.Consumer, error) {
	p := t.router.producer(opts.ProducerID)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", engine.ErrProducerUnknown, opts.ProducerID)
	}
	if !t.router.CanConsume(opts.ProducerID, opts.RtpCapabilities) {
		return nil, engine.ErrCannotConsume
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, engine.ErrClosed
	}
	mid := strconv.Itoa(t.nextMid)
	t.nextMid++
	c := newConsumer(t, p, mid, opts.Paused)
	t.consumers[c.id] = c
	t.mu.Unlock()

	if err := p.attach(c); err != nil {
		t.removeConsumer(c.id)
		return nil, err
	}
	t.logger.Debug().
		Str("consumer_id", c.id).
		Str("producer_id", p.id).
		Str("type", string(c.typ)).
		Msg("consumer created")
	return c, nil
}

func (t *Transport) OnStateChange(fn func(engine.State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateHandlers = append(t.stateHandlers, fn)
}

// SetState moves the transport to s and notifies state handlers.
// Repeating the current state is a no-op.
func (t *Transport) SetState(s engine.State) {
	t.mu.Lock()
	if t.closed || t.state == s {
		t.mu.Unlock()
		return
	}
	t.state = s
	handlers := append([]func(engine.State){}, t.stateHandlers...)
	t.mu.Unlock()

	t.logger.Debug().Str("state", string(s)).Msg("transport state")
	for _, fn := range handlers {
		fn(s)
	}
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	producers := make([]*Producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.producers = make(map[string]*Producer)
	t.consumers = make(map[string]*Consumer)
	t.mu.Unlock()

	t.router.removeTransport(t.id)
	for _, p := range producers {
		p.close(true)
	}
	for _, c := range consumers {
		c.close(closeByTransport)
	}
	t.logger.Debug().Msg("transport closed")
}

func (t *Transport) removeProducer(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.producers, id)
}

func (t *Transport) removeConsumer(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.consumers, id)
}

func (t *Transport) consumerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.consumers)
}
