package memengine

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/dkeye/Huddle/internal/engine"
)

type Producer struct {
	id        string
	kind      string
	params    rtpParameters
	appData   map[string]any
	transport *Transport
	relay     *relay
	logger    zerolog.Logger

	mu               sync.Mutex
	paused           bool
	closed           bool
	consumers        map[string]*Consumer
	onTransportClose []func()
	onClose          []func()
}

func newProducer(t *Transport, opts engine.ProducerOptions, params rtpParameters) *Producer {
	id := uuid.NewString()
	appData := make(map[string]any, len(opts.AppData))
	maps.Copy(appData, opts.AppData)
	return &Producer{
		id:        id,
		kind:      opts.Kind,
		params:    params,
		appData:   appData,
		transport: t,
		relay:     newRelay(),
		logger:    t.logger.With().Str("producer_id", id).Logger(),
		consumers: make(map[string]*Consumer),
	}
}

func (p *Producer) ID() string { return p.id }
func (p *Producer) Kind() string { return p.kind }
func (p *Producer) AppData() map[string]any { return p.appData }

func (p *Producer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Producer) Pause(context.Context) error {
	return p.setPaused(true)
}

func (p *Producer) Resume(context.Context) error {
	return p.setPaused(false)
}

func (p *Producer) setPaused(paused bool) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return engine.ErrClosed
	}
	if p.paused == paused {
		p.mu.Unlock()
		return nil
	}
	p.paused = paused
	consumers := p.consumerList()
	p.mu.Unlock()

	for _, c := range consumers {
		c.setProducerPaused(paused)
	}
	return nil
}

// WriteRTP forwards one packet to every consumer that is not paused and
// reports how many received it.
func (p *Producer) WriteRTP(pkt *rtp.Packet) (int, error) {
	p.mu.Lock()
	closed, paused := p.closed, p.paused
	p.mu.Unlock()
	if closed {
		return 0, engine.ErrClosed
	}
	if paused {
		return 0, nil
	}
	return p.relay.forward(pkt, &p.logger), nil
}

func (p *Producer) OnTransportClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTransportClose = append(p.onTransportClose, fn)
}

func (p *Producer) OnClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = append(p.onClose, fn)
}

func (p *Producer) Close() { p.close(false) }

func (p *Producer) close(byTransport bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	consumers := p.consumerList()
	p.consumers = make(map[string]*Consumer)
	onTransportClose, onClose := p.onTransportClose, p.onClose
	p.mu.Unlock()

	p.transport.router.removeProducer(p.id)
	p.transport.removeProducer(p.id)
	p.relay.markAllDelete()
	for _, c := range consumers {
		c.close(closeByProducer)
	}
	if byTransport {
		for _, fn := range onTransportClose {
			fn()
		}
	}
	for _, fn := range onClose {
		fn()
	}
	p.logger.Debug().Bool("by_transport", byTransport).Msg("producer closed")
}

func (p *Producer) attach(c *Consumer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return engine.ErrProducerUnknown
	}
	p.consumers[c.id] = c
	c.mu.Lock()
	c.producerPaused = p.paused
	c.refreshTrack()
	c.mu.Unlock()
	p.relay.addOutTrack(c.id, c.track)
	return nil
}

func (p *Producer) detach(consumerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.consumers, consumerID)
}

// consumerList must be called with p.mu held.
func (p *Producer) consumerList() []*Consumer {
	out := make([]*Consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		out = append(out, c)
	}
	return out
}
