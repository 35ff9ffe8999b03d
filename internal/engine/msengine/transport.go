package msengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/engine"
)

type Transport struct {
	t      *mediasoup.Transport
	params engine.TransportParams
	logger zerolog.Logger

	mu            sync.Mutex
	closed        bool
	producers     map[string]*Producer
	consumers     map[string]*Consumer
	stateHandlers []func(engine.State)
}

func newTransport(t *mediasoup.Transport) *Transport {
	data := t.Data().WebRtcTransportData
	tr := &Transport{
		t: t,
		params: engine.TransportParams{
			ID:             t.Id(),
			IceParameters:  marshal(data.IceParameters),
			IceCandidates:  marshal(data.IceCandidates),
			DtlsParameters: marshal(data.DtlsParameters),
		},
		logger: log.With().
			Str("module", "engine.mediasoup").
			Str("transport_id", t.Id()).
			Logger(),
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
	}
	t.OnIceStateChange(func(s mediasoup.IceState) { tr.emit("ice", string(s)) })
	t.OnDtlsStateChange(func(s mediasoup.DtlsState) { tr.emit("dtls", string(s)) })
	return tr
}

func marshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func (t *Transport) emit(source, raw string) {
	s, ok := mapState(raw)
	if !ok {
		return
	}
	t.mu.Lock()
	handlers := append([]func(engine.State){}, t.stateHandlers...)
	t.mu.Unlock()

	t.logger.Debug().Str("source", source).Str("state", raw).Msg("transport state")
	for _, fn := range handlers {
		fn(engine.State(s))
	}
}

func (t *Transport) ID() string { return t.t.Id() }

func (t *Transport) Params() engine.TransportParams {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.params
}

func (t *Transport) Connect(ctx context.Context, dtlsParameters json.RawMessage) error {
	var dtls mediasoup.DtlsParameters
	if err := json.Unmarshal(dtlsParameters, &dtls); err != nil {
		return fmt.Errorf("dtls parameters: %w", err)
	}
	return t.t.ConnectContext(ctx, &mediasoup.TransportConnectOptions{DtlsParameters: &dtls})
}

func (t *Transport) RestartIce(ctx context.Context) (json.RawMessage, error) {
	ice, err := t.t.RestartIceContext(ctx)
	if err != nil {
		return nil, err
	}
	raw := marshal(ice)
	t.mu.Lock()
	t.params.IceParameters = raw
	t.mu.Unlock()
	return raw, nil
}

func (t *Transport) Produce(ctx context.Context, opts engine.ProducerOptions) (engine.Producer, error) {
	var params mediasoup.RtpParameters
	if err := json.Unmarshal(opts.RtpParameters, &params); err != nil {
		return nil, fmt.Errorf("rtp parameters: %w", err)
	}
	appData := mediasoup.H{}
	for k, v := range opts.AppData {
		appData[k] = v
	}
	p, err := t.t.ProduceContext(ctx, &mediasoup.ProducerOptions{
		Kind:          mediasoup.MediaKind(opts.Kind),
		RtpParameters: &params,
		AppData:       appData,
	})
	if err != nil {
		return nil, err
	}

	prod := &Producer{p: p}
	p.OnClose(func(context.Context) { prod.fireClose() })

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		p.Close()
		return nil, engine.ErrClosed
	}
	t.producers[p.Id()] = prod
	t.mu.Unlock()
	return prod, nil
}

func (t *Transport) Consume(ctx context.Context, opts engine.ConsumerOptions) (engine.Consumer, error) {
	var caps mediasoup.RtpCapabilities
	if err := json.Unmarshal(opts.RtpCapabilities, &caps); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrCannotConsume, err)
	}
	c, err := t.t.ConsumeContext(ctx, &mediasoup.ConsumerOptions{
		ProducerId:      opts.ProducerID,
		RtpCapabilities: &caps,
		Paused:          opts.Paused,
	})
	if err != nil {
		return nil, err
	}

	cons := &Consumer{c: c, params: marshal(c.RtpParameters())}
	cons.spatial, cons.temporal = layersOf(cons.params)
	c.OnClose(func(context.Context) { cons.fireClose() })
	c.OnProducerClose(func(context.Context) { cons.fireProducerClose() })
	c.OnProducerPause(func(context.Context) { cons.fire(&cons.onProducerPause) })
	c.OnProducerResume(func(context.Context) { cons.fire(&cons.onProducerResume) })

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		c.Close()
		return nil, engine.ErrClosed
	}
	t.consumers[c.Id()] = cons
	t.mu.Unlock()
	return cons, nil
}

func (t *Transport) OnStateChange(fn func(engine.State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateHandlers = append(t.stateHandlers, fn)
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed || t.t.Closed()
}

func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	producers, consumers := t.producers, t.consumers
	t.producers, t.consumers = nil, nil
	t.mu.Unlock()

	if err := t.t.Close(); err != nil {
		t.logger.Error().Err(err).Msg("close transport")
	}
	for _, p := range producers {
		p.fire(&p.onTransportClose)
	}
	for _, c := range consumers {
		c.fire(&c.onTransportClose)
	}
}

type handlers struct {
	mu sync.Mutex
}

func (h *handlers) add(list *[]func(), fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	*list = append(*list, fn)
}

func (h *handlers) fire(list *[]func()) {
	h.mu.Lock()
	fns := append([]func(){}, *list...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// fireOnce fires list unless done was already set.
func (h *handlers) fireOnce(done *bool, list *[]func()) {
	h.mu.Lock()
	if *done {
		h.mu.Unlock()
		return
	}
	*done = true
	h.mu.Unlock()
	h.fire(list)
}

type Producer struct {
	handlers
	p *mediasoup.Producer

	closeFired       bool
	onTransportClose []func()
	onClose          []func()
}

func (p *Producer) ID() string { return p.p.Id() }
func (p *Producer) Kind() string { return string(p.p.Kind()) }
func (p *Producer) Paused() bool { return p.p.Paused() }

func (p *Producer) AppData() map[string]any {
	return map[string]any(p.p.AppData())
}

func (p *Producer) Pause(context.Context) error { return p.p.Pause() }
func (p *Producer) Resume(context.Context) error { return p.p.Resume() }

func (p *Producer) OnTransportClose(fn func()) { p.add(&p.onTransportClose, fn) }
func (p *Producer) OnClose(fn func()) { p.add(&p.onClose, fn) }

func (p *Producer) fireClose() { p.fireOnce(&p.closeFired, &p.onClose) }

func (p *Producer) Close() {
	p.p.Close()
	p.fireClose()
}

type Consumer struct {
	handlers
	c        *mediasoup.Consumer
	params   json.RawMessage
	spatial  int
	temporal int

	closeFired         bool
	producerCloseFired bool
	onProducerClose    []func()
	onProducerPause    []func()
	onProducerResume   []func()
	onTransportClose   []func()
	onClose            []func()
}

func (c *Consumer) ID() string { return c.c.Id() }
func (c *Consumer) ProducerID() string { return c.c.ProducerId() }
func (c *Consumer) Kind() string { return string(c.c.Kind()) }
func (c *Consumer) Type() engine.ConsumerType { return engine.ConsumerType(c.c.Type()) }
func (c *Consumer) RtpParameters() json.RawMessage { return c.params }
func (c *Consumer) ProducerPaused() bool { return c.c.ProducerPaused() }

func (c *Consumer) Layers() (spatial, temporal int) { return c.spatial, c.temporal }

func (c *Consumer) SetPreferredLayers(_ context.Context, l engine.Layers) error {
	var layers mediasoup.ConsumerLayers
	if err := json.Unmarshal(marshal(l), &layers); err != nil {
		return err
	}
	switch setter := any(c.c).(type) {
	case interface {
		SetPreferredLayers(mediasoup.ConsumerLayers) error
	}:
		return setter.SetPreferredLayers(layers)
	case interface {
		SetPreferredLayers(*mediasoup.ConsumerLayers) error
	}:
		return setter.SetPreferredLayers(&layers)
	}
	return fmt.Errorf("set preferred layers unsupported")
}

func (c *Consumer) Pause(context.Context) error { return c.c.Pause() }
func (c *Consumer) Resume(context.Context) error { return c.c.Resume() }

func (c *Consumer) OnProducerClose(fn func()) { c.add(&c.onProducerClose, fn) }
func (c *Consumer) OnProducerPause(fn func()) { c.add(&c.onProducerPause, fn) }
func (c *Consumer) OnProducerResume(fn func()) { c.add(&c.onProducerResume, fn) }
func (c *Consumer) OnTransportClose(fn func()) { c.add(&c.onTransportClose, fn) }
func (c *Consumer) OnClose(fn func()) { c.add(&c.onClose, fn) }

func (c *Consumer) fireClose() { c.fireOnce(&c.closeFired, &c.onClose) }

func (c *Consumer) fireProducerClose() {
	c.fireOnce(&c.producerCloseFired, &c.onProducerClose)
	c.fireClose()
}

func (c *Consumer) Close() {
	c.c.Close()
	c.fireClose()
}
