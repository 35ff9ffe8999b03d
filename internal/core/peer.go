package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
)

type peerTransport struct {
	t    engine.Transport
	role TransportRole
}

type peerProducer struct {
	p    engine.Producer
	kind domain.MediaKind
}

// Peer holds the media state of one signaling connection. Engine calls are
// never made while mu is held.
type Peer struct {
	info    domain.Participant
	session SessionID
	sig     SignalConnection
	logger  zerolog.Logger

	// producerGone is set by the owning room to keep its index current.
	producerGone func(producerID string)

	mu         sync.Mutex
	closed     bool
	rtpCaps    json.RawMessage
	transports map[string]*peerTransport
	producers  map[string]*peerProducer
	byKind     map[domain.MediaKind]string
	consumers  map[string]engine.Consumer
}

func NewPeer(info domain.Participant, session SessionID, sig SignalConnection) *Peer {
	return &Peer{
		info:    info,
		session: session,
		sig:     sig,
		logger: log.With().
			Str("module", "core.peer").
			Str("peer_id", string(info.ID)).
			Str("sid", string(session)).
			Logger(),
		transports: make(map[string]*peerTransport),
		producers:  make(map[string]*peerProducer),
		byKind:     make(map[domain.MediaKind]string),
		consumers:  make(map[string]engine.Consumer),
	}
}

func (p *Peer) ID() domain.PeerID { return p.info.ID }
func (p *Peer) Info() domain.Participant { return p.info }
func (p *Peer) Session() SessionID { return p.session }
func (p *Peer) Signal() SignalConnection { return p.sig }

// Notify sends an event to this peer only.
func (p *Peer) Notify(event string, data any) error {
	if p.sig == nil {
		return nil
	}
	return p.sig.Notify(event, data)
}

func (p *Peer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Peer) RtpCapabilities() json.RawMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rtpCaps
}

func (p *Peer) SetRtpCapabilities(caps json.RawMessage) {
	if len(caps) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rtpCaps = caps
}

// AddTransport stores t under role. A previous transport with the same role
// is closed, so a peer has at most one send and one receive transport.
// A closed peer rejects and closes t.
func (p *Peer) AddTransport(t engine.Transport, role TransportRole) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		t.Close()
		return ErrPeerClosed
	}
	var old engine.Transport
	for id, pt := range p.transports {
		if pt.role == role {
			old = pt.t
			delete(p.transports, id)
		}
	}
	p.transports[t.ID()] = &peerTransport{t: t, role: role}
	p.mu.Unlock()

	if old != nil {
		p.logger.Info().
			Str("old_transport_id", old.ID()).
			Str("transport_id", t.ID()).
			Str("role", string(role)).
			Msg("replacing transport")
		old.Close()
	}
	return nil
}

// Transport returns the transport with id, or ErrTransportNotFound.
func (p *Peer) Transport(id string) (engine.Transport, TransportRole, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pt, ok := p.transports[id]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrTransportNotFound, id)
	}
	return pt.t, pt.role, nil
}

func (p *Peer) transportByRole(role TransportRole) engine.Transport {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pt := range p.transports {
		if pt.role == role {
			return pt.t
		}
	}
	return nil
}

func (p *Peer) SendTransport() engine.Transport { return p.transportByRole(RoleSend) }
func (p *Peer) RecvTransport() engine.Transport { return p.transportByRole(RoleReceive) }

// removeTransport forgets t if it is still the one stored under its id.
func (p *Peer) removeTransport(t engine.Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pt, ok := p.transports[t.ID()]; ok && pt.t == t {
		delete(p.transports, t.ID())
	}
}

func (p *Peer) ConnectTransport(ctx context.Context, transportID string, dtlsParameters json.RawMessage) error {
	t, _, err := p.Transport(transportID)
	if err != nil {
		return err
	}
	if err := t.Connect(ctx, dtlsParameters); err != nil {
		return fmt.Errorf("%w: connect: %v", ErrEngine, err)
	}
	return nil
}

func (p *Peer) RestartIce(ctx context.Context, transportID string) (json.RawMessage, error) {
	t, _, err := p.Transport(transportID)
	if err != nil {
		return nil, err
	}
	ice, err := t.RestartIce(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: restart ice: %v", ErrEngine, err)
	}
	return ice, nil
}

// CreateProducer publishes kind on the given send transport. When the peer
// already produces kind, the existing producer id is returned with
// created == false and nothing is sent to the engine.
func (p *Peer) CreateProducer(
	ctx context.Context,
	transportID string,
	kind domain.MediaKind,
	rtpParameters json.RawMessage,
) (producerID string, created bool, err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", false, ErrPeerClosed
	}
	if id, ok := p.byKind[kind]; ok {
		p.mu.Unlock()
		return id, false, nil
	}
	pt, ok := p.transports[transportID]
	p.mu.Unlock()
	if !ok {
		return "", false, fmt.Errorf("%w: %s", ErrTransportNotFound, transportID)
	}
	if pt.role != RoleSend {
		return "", false, fmt.Errorf("%w: %s is not a send transport", ErrTransportNotFound, transportID)
	}

	prod, err := pt.t.Produce(ctx, engine.ProducerOptions{
		Kind:          kind.EngineKind(),
		RtpParameters: rtpParameters,
		AppData: map[string]any{
			"peerId":   string(p.info.ID),
			"mediaTag": string(kind),
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("%w: produce %s: %v", ErrEngine, kind, err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		prod.Close()
		return "", false, ErrPeerClosed
	}
	if id, ok := p.byKind[kind]; ok {
		p.mu.Unlock()
		prod.Close()
		return id, false, nil
	}
	p.producers[prod.ID()] = &peerProducer{p: prod, kind: kind}
	p.byKind[kind] = prod.ID()
	p.mu.Unlock()

	prod.OnTransportClose(func() {
		p.logger.Debug().Str("producer_id", prod.ID()).Msg("producer transport closed")
		if p.dropProducer(prod.ID()) == nil {
			return
		}
		prod.Close()
		if !p.Closed() {
			_ = p.Notify("producerClosed", map[string]any{"producerId": prod.ID(), "kind": kind})
		}
	})
	p.logger.Info().Str("producer_id", prod.ID()).Str("kind", string(kind)).Msg("producer created")
	return prod.ID(), true, nil
}

// dropProducer removes a producer from the maps and reports it to the room.
// It returns nil when the producer was already gone.
func (p *Peer) dropProducer(id string) engine.Producer {
	p.mu.Lock()
	pp, ok := p.producers[id]
	if ok {
		delete(p.producers, id)
		if p.byKind[pp.kind] == id {
			delete(p.byKind, pp.kind)
		}
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}
	if p.producerGone != nil {
		p.producerGone(id)
	}
	return pp.p
}

func (p *Peer) Producer(id string) (engine.Producer, domain.MediaKind, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pp, ok := p.producers[id]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrProducerNotFound, id)
	}
	return pp.p, pp.kind, nil
}

func (p *Peer) ProducerByKind(kind domain.MediaKind) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byKind[kind]
	return id, ok
}

// KindTable maps each published kind to its producer id.
func (p *Peer) KindTable() map[domain.MediaKind]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[domain.MediaKind]string, len(p.byKind))
	for k, id := range p.byKind {
		out[k] = id
	}
	return out
}

// Producers lists this peer's producers.
func (p *Peer) Producers() []ProducerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ProducerInfo, 0, len(p.producers))
	for id, pp := range p.producers {
		out = append(out, ProducerInfo{
			ProducerID:     id,
			ProducerPeerID: p.info.ID,
			Kind:           pp.kind,
			Paused:         pp.p.Paused(),
		})
	}
	return out
}

func (p *Peer) CloseProducer(id string) error {
	prod := p.dropProducer(id)
	if prod == nil {
		return fmt.Errorf("%w: %s", ErrProducerNotFound, id)
	}
	prod.Close()
	p.logger.Info().Str("producer_id", id).Msg("producer closed")
	return nil
}

// CreateConsumer subscribes this peer to producerID on the given receive
// transport.
// Simulcast and SVC consumers start at their highest layers.
func (p *Peer) CreateConsumer(
	ctx context.Context,
	transportID string,
	producerID string,
	rtpCapabilities json.RawMessage,
) (engine.Consumer, error) {
	t, role, err := p.Transport(transportID)
	if err != nil {
		return nil, err
	}
	if role != RoleReceive {
		return nil, fmt.Errorf("%w: %s is not a receive transport", ErrTransportNotFound, transportID)
	}
	cons, err := t.Consume(ctx, engine.ConsumerOptions{
		ProducerID:      producerID,
		RtpCapabilities: rtpCapabilities,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: consume %s: %v", ErrEngine, producerID, err)
	}

	if cons.Type() != engine.ConsumerSimple {
		spatial, temporal := cons.Layers()
		l := engine.Layers{Spatial: spatial - 1, Temporal: temporal - 1}
		if err := cons.SetPreferredLayers(ctx, l); err != nil {
			p.logger.Warn().Err(err).Str("consumer_id", cons.ID()).Msg("set preferred layers")
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cons.Close()
		return nil, ErrPeerClosed
	}
	p.consumers[cons.ID()] = cons
	p.mu.Unlock()

	cons.OnTransportClose(func() {
		p.logger.Debug().Str("consumer_id", cons.ID()).Msg("consumer transport closed")
		p.RemoveConsumer(cons.ID())
	})
	return cons, nil
}

func (p *Peer) Consumer(id string) (engine.Consumer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.consumers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConsumerNotFound, id)
	}
	return c, nil
}

func (p *Peer) ConsumerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.consumers)
}

// RemoveConsumer closes and forgets a consumer. It reports whether the
// consumer was still held.
func (p *Peer) RemoveConsumer(id string) bool {
	p.mu.Lock()
	c, ok := p.consumers[id]
	delete(p.consumers, id)
	p.mu.Unlock()
	if ok {
		c.Close()
	}
	return ok
}

// Close tears down every transport, then anything the engine left behind.
func (p *Peer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	transports := make([]engine.Transport, 0, len(p.transports))
	for _, pt := range p.transports {
		transports = append(transports, pt.t)
	}
	p.transports = make(map[string]*peerTransport)
	p.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}

	p.mu.Lock()
	producers := make([]string, 0, len(p.producers))
	for id := range p.producers {
		producers = append(producers, id)
	}
	consumers := make([]string, 0, len(p.consumers))
	for id := range p.consumers {
		consumers = append(consumers, id)
	}
	p.mu.Unlock()

	for _, id := range producers {
		if prod := p.dropProducer(id); prod != nil {
			prod.Close()
		}
	}
	for _, id := range consumers {
		p.RemoveConsumer(id)
	}
	p.logger.Info().Int("transports", len(transports)).Msg("peer closed")
}
