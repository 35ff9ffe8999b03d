package memengine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtp"

	"github.com/dkeye/Huddle/internal/engine"
)

type closeCause int

const (
	closeExplicit closeCause = iota
	closeByProducer
	closeByTransport
)

type Consumer struct {
	id        string
	producer  *Producer
	transport *Transport
	typ       engine.ConsumerType
	spatial   int
	temporal  int
	params    json.RawMessage
	track     *outTrack
	done      chan struct{}

	mu               sync.Mutex
	paused           bool
	producerPaused   bool
	closed           bool
	preferred        *engine.Layers
	onProducerClose  []func()
	onProducerPause  []func()
	onProducerResume []func()
	onTransportClose []func()
	onClose          []func()
}

func newConsumer(t *Transport, p *Producer, mid string, paused bool) *Consumer {
	spatial, temporal := p.params.layers()
	typ := engine.ConsumerSimple
	switch {
	case len(p.params.Encodings) > 1:
		typ = engine.ConsumerSimulcast
	case spatial > 1 || temporal > 1:
		typ = engine.ConsumerSVC
	}

	enc := encoding{SSRC: rand.Uint32()}
	if typ != engine.ConsumerSimple {
		enc.ScalabilityMode = fmt.Sprintf("L%dT%d", spatial, temporal)
	}
	params := rtpParameters{Mid: mid, Codecs: p.params.Codecs, Encodings: []encoding{enc}}

	return &Consumer{
		id:        uuid.NewString(),
		producer:  p,
		transport: t,
		typ:       typ,
		spatial:   spatial,
		temporal:  temporal,
		params:    mustJSON(params),
		track:     newOutTrack(consumerBuffer),
		done:      make(chan struct{}),
		paused:    paused,
	}
}

func (c *Consumer) ID() string { return c.id }
func (c *Consumer) ProducerID() string { return c.producer.id }
func (c *Consumer) Kind() string { return c.producer.kind }
func (c *Consumer) Type() engine.ConsumerType { return c.typ }
func (c *Consumer) RtpParameters() json.RawMessage { return c.params }
func (c *Consumer) Layers() (spatial, temporal int) {
	return c.spatial, c.temporal
}

func (c *Consumer) ProducerPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.producerPaused
}

func (c *Consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// PreferredLayers returns the layers last requested, if any.
func (c *Consumer) PreferredLayers() (engine.Layers, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.preferred == nil {
		return engine.Layers{}, false
	}
	return *c.preferred, true
}

func (c *Consumer) SetPreferredLayers(_ context.Context, l engine.Layers) error {
	if l.Spatial < 0 || l.Spatial >= c.spatial || l.Temporal < 0 || l.Temporal >= c.temporal {
		return fmt.Errorf("layers %d/%d out of range %d/%d", l.Spatial, l.Temporal, c.spatial, c.temporal)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	c.preferred = &l
	return nil
}

func (c *Consumer) Pause(context.Context) error {
	return c.setPaused(true)
}

func (c *Consumer) Resume(context.Context) error {
	return c.setPaused(false)
}

func (c *Consumer) setPaused(paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	c.paused = paused
	c.refreshTrack()
	return nil
}

func (c *Consumer) setProducerPaused(paused bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.producerPaused = paused
	c.refreshTrack()
	handlers := c.onProducerResume
	if paused {
		handlers = c.onProducerPause
	}
	c.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

func (c *Consumer) refreshTrack() {
	if c.paused || c.producerPaused {
		c.track.markMuted()
		return
	}
	c.track.markOk()
}

// ReadRTP blocks until the next forwarded packet arrives.
func (c *Consumer) ReadRTP(ctx context.Context) (*rtp.Packet, error) {
	select {
	case pkt := <-c.track.ch:
		return pkt, nil
	case <-c.done:
		return nil, engine.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Consumer) OnProducerClose(fn func()) { c.register(&c.onProducerClose, fn) }
func (c *Consumer) OnProducerPause(fn func()) { c.register(&c.onProducerPause, fn) }
func (c *Consumer) OnProducerResume(fn func()) { c.register(&c.onProducerResume, fn) }
func (c *Consumer) OnTransportClose(fn func()) { c.register(&c.onTransportClose, fn) }
func (c *Consumer) OnClose(fn func()) { c.register(&c.onClose, fn) }

func (c *Consumer) register(list *[]func(), fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*list = append(*list, fn)
}

func (c *Consumer) Close() { c.close(closeExplicit) }

func (c *Consumer) close(cause closeCause) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.track.markDelete()
	close(c.done)
	var causeHandlers []func()
	switch cause {
	case closeByProducer:
		causeHandlers = c.onProducerClose
	case closeByTransport:
		causeHandlers = c.onTransportClose
	}
	onClose := c.onClose
	c.mu.Unlock()

	c.producer.detach(c.id)
	c.transport.removeConsumer(c.id)
	for _, fn := range causeHandlers {
		fn()
	}
	for _, fn := range onClose {
		fn()
	}
}
