package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
)

func (r *Room) RtpCapabilities(ctx context.Context) (json.RawMessage, error) {
	router, err := r.WaitReady(ctx)
	if err != nil {
		return nil, err
	}
	return router.RtpCapabilities(), nil
}

// CreateTransport builds a transport for the peer and returns the
// parameters its client needs. A transport that reaches the closed state
// is closed and forgotten.
func (r *Room) CreateTransport(ctx context.Context, peerID domain.PeerID, req TransportRequest) (engine.TransportParams, error) {
	router, err := r.WaitReady(ctx)
	if err != nil {
		return engine.TransportParams{}, err
	}

	r.op.Lock()
	defer r.op.Unlock()

	peer, err := r.Peer(peerID)
	if err != nil {
		return engine.TransportParams{}, err
	}
	t, err := router.CreateWebRtcTransport(ctx, engine.TransportOptions{
		ForceTCP:  req.ForceTCP,
		Producing: req.Role == RoleSend,
		Consuming: req.Role == RoleReceive,
		AppData:   map[string]any{"peerId": string(peerID)},
	})
	if err != nil {
		return engine.TransportParams{}, fmt.Errorf("%w: create transport: %v", ErrEngine, err)
	}

	logger := r.logger.With().
		Str("peer_id", string(peerID)).
		Str("transport_id", t.ID()).
		Str("role", string(req.Role)).
		Logger()
	t.OnStateChange(func(s engine.State) {
		switch {
		case s == engine.StateClosed:
			logger.Warn().Msg("transport closed by engine")
			t.Close()
			peer.removeTransport(t)
		case s.Degraded():
			logger.Warn().Str("state", string(s)).Msg("transport degraded")
		default:
			logger.Debug().Str("state", string(s)).Msg("transport state")
		}
	})

	// The peer may have gone while the engine call was outstanding.
	if _, err := r.Peer(peerID); err != nil {
		t.Close()
		return engine.TransportParams{}, err
	}
	if err := peer.AddTransport(t, req.Role); err != nil {
		return engine.TransportParams{}, err
	}
	if req.Role == RoleReceive {
		peer.SetRtpCapabilities(req.RtpCapabilities)
	}
	logger.Info().Bool("force_tcp", req.ForceTCP).Msg("transport created")
	return t.Params(), nil
}

func (r *Room) ConnectTransport(ctx context.Context, peerID domain.PeerID, transportID string, dtlsParameters json.RawMessage) error {
	r.op.Lock()
	defer r.op.Unlock()

	peer, err := r.Peer(peerID)
	if err != nil {
		return err
	}
	return peer.ConnectTransport(ctx, transportID, dtlsParameters)
}

func (r *Room) RestartIce(ctx context.Context, peerID domain.PeerID, transportID string) (json.RawMessage, error) {
	r.op.Lock()
	defer r.op.Unlock()

	peer, err := r.Peer(peerID)
	if err != nil {
		return nil, err
	}
	return peer.RestartIce(ctx, transportID)
}

// Produce creates the peer's producer for kind, or returns the one it
// already has. The caller announces new producers with AnnounceProducer.
func (r *Room) Produce(
	ctx context.Context,
	peerID domain.PeerID,
	transportID string,
	kind domain.MediaKind,
	rtpParameters json.RawMessage,
) (producerID string, created bool, err error) {
	r.op.Lock()
	defer r.op.Unlock()

	peer, err := r.Peer(peerID)
	if err != nil {
		return "", false, err
	}
	producerID, created, err = peer.CreateProducer(ctx, transportID, kind, rtpParameters)
	if err != nil || !created {
		return producerID, created, err
	}

	r.index(producerID, peerID)
	// The producer may have closed before it was indexed.
	if _, _, err := peer.Producer(producerID); err != nil {
		r.unindex(producerID)
		return "", false, err
	}
	return producerID, true, nil
}

// AnnounceProducer tells every other peer about a new producer.
func (r *Room) AnnounceProducer(producerID string) PublishResult {
	owner, err := r.Owner(producerID)
	if err != nil {
		return PublishResult{}
	}
	_, kind, err := owner.Producer(producerID)
	if err != nil {
		return PublishResult{}
	}
	list := []ProducerInfo{{ProducerID: producerID, ProducerPeerID: owner.ID(), Kind: kind}}
	return r.Broadcast(owner.ID(), "newProducers", list)
}

// Consume subscribes peerID to producerID. An unknown producer is
// ErrProducerNotFound. It fails with ErrIncompatibleCapabilities, creating
// nothing, when the router says the capabilities cannot receive the
// producer.
func (r *Room) Consume(
	ctx context.Context,
	peerID domain.PeerID,
	transportID string,
	producerID string,
	rtpCapabilities json.RawMessage,
) (*ConsumeParams, error) {
	router, err := r.WaitReady(ctx)
	if err != nil {
		return nil, err
	}

	r.op.Lock()
	defer r.op.Unlock()

	peer, err := r.Peer(peerID)
	if err != nil {
		return nil, err
	}
	owner, err := r.Owner(producerID)
	if err != nil {
		return nil, err
	}
	_, mediaKind, err := owner.Producer(producerID)
	if err != nil {
		return nil, err
	}
	if !router.CanConsume(producerID, rtpCapabilities) {
		r.logger.Debug().
			Str("peer_id", string(peerID)).
			Str("producer_id", producerID).
			Msg("cannot consume")
		return nil, ErrIncompatibleCapabilities
	}
	peer.SetRtpCapabilities(rtpCapabilities)

	cons, err := peer.CreateConsumer(ctx, transportID, producerID, rtpCapabilities)
	if err != nil {
		return nil, err
	}
	consumerID := cons.ID()
	cons.OnProducerClose(func() {
		if peer.RemoveConsumer(consumerID) {
			_ = peer.Notify("consumerClosed", map[string]any{"consumerId": consumerID})
		}
	})

	r.logger.Info().
		Str("peer_id", string(peerID)).
		Str("consumer_id", consumerID).
		Str("producer_id", producerID).
		Str("producer_peer_id", string(owner.ID())).
		Msg("consumer created")
	return &ConsumeParams{
		ID:             consumerID,
		ProducerID:     producerID,
		PeerID:         owner.ID(),
		Kind:           cons.Kind(),
		MediaKind:      mediaKind,
		Type:           cons.Type(),
		RtpParameters:  cons.RtpParameters(),
		ProducerPaused: cons.ProducerPaused(),
	}, nil
}

// CloseProducer closes one of the peer's producers. Consumers of it are
// notified through their producer-close handlers.
func (r *Room) CloseProducer(peerID domain.PeerID, producerID string) error {
	r.op.Lock()
	defer r.op.Unlock()

	peer, err := r.Peer(peerID)
	if err != nil {
		return err
	}
	return peer.CloseProducer(producerID)
}

func (r *Room) PauseProducer(ctx context.Context, peerID domain.PeerID, producerID string) (ProducerInfo, error) {
	return r.setProducerPaused(ctx, peerID, producerID, true)
}

func (r *Room) ResumeProducer(ctx context.Context, peerID domain.PeerID, producerID string) (ProducerInfo, error) {
	return r.setProducerPaused(ctx, peerID, producerID, false)
}

func (r *Room) setProducerPaused(ctx context.Context, peerID domain.PeerID, producerID string, paused bool) (ProducerInfo, error) {
	r.op.Lock()
	defer r.op.Unlock()

	peer, err := r.Peer(peerID)
	if err != nil {
		return ProducerInfo{}, err
	}
	prod, kind, err := peer.Producer(producerID)
	if err != nil {
		return ProducerInfo{}, err
	}
	if paused {
		err = prod.Pause(ctx)
	} else {
		err = prod.Resume(ctx)
	}
	if err != nil {
		return ProducerInfo{}, fmt.Errorf("%w: %v", ErrEngine, err)
	}
	return ProducerInfo{ProducerID: producerID, ProducerPeerID: peerID, Kind: kind, Paused: paused}, nil
}

func (r *Room) ResumeConsumer(ctx context.Context, peerID domain.PeerID, consumerID string) error {
	r.op.Lock()
	defer r.op.Unlock()

	peer, err := r.Peer(peerID)
	if err != nil {
		return err
	}
	cons, err := peer.Consumer(consumerID)
	if err != nil {
		return err
	}
	if err := cons.Resume(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrEngine, err)
	}
	return nil
}
