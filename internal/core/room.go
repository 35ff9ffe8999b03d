package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
)

// Room owns one router and the peers in it.
//
// Media operations on a room are serialized by op, so at most one engine
// call per room is outstanding. Engine callbacks never take op; they only
// touch the peer maps and the producer index.
type Room struct {
	id           domain.RoomID
	worker       engine.Worker
	readyTimeout time.Duration
	logger       zerolog.Logger

	initDone   chan struct{}
	cancelInit context.CancelFunc

	op sync.Mutex

	mu      sync.RWMutex
	state   RoomState
	router  engine.Router
	initErr error
	peers   map[domain.PeerID]*Peer
	owners  map[string]domain.PeerID
}

// NewRoom returns immediately; the router is created in the background.
// Operations that need it wait up to readyTimeout and then fail with
// ErrNotReady.
func NewRoom(id domain.RoomID, worker engine.Worker, readyTimeout time.Duration) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		id:           id,
		worker:       worker,
		readyTimeout: readyTimeout,
		logger: log.With().
			Str("module", "core.room").
			Str("room_id", string(id)).
			Logger(),
		initDone:   make(chan struct{}),
		cancelInit: cancel,
		state:      RoomUninitialized,
		peers:      make(map[domain.PeerID]*Peer),
		owners:     make(map[string]domain.PeerID),
	}
	go r.init(ctx)
	return r
}

func (r *Room) init(ctx context.Context) {
	router, err := r.worker.CreateRouter(ctx)

	r.mu.Lock()
	late := r.state != RoomUninitialized
	switch {
	case err != nil:
		r.initErr = err
		if !late {
			r.state = RoomFailed
		}
	case !late:
		r.router = router
		r.state = RoomReady
	}
	r.mu.Unlock()
	close(r.initDone)

	switch {
	case err != nil:
		r.logger.Error().Err(err).Str("worker_id", r.worker.ID()).Msg("router creation failed")
	case late:
		r.logger.Info().Msg("room closed before router was ready")
		router.Close()
	default:
		r.logger.Info().Str("router_id", router.ID()).Str("worker_id", r.worker.ID()).Msg("room ready")
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) State() RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Initialized is closed once router creation has finished either way.
func (r *Room) Initialized() <-chan struct{} { return r.initDone }

// WaitReady blocks until the router exists.
func (r *Room) WaitReady(ctx context.Context) (engine.Router, error) {
	if r.readyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.readyTimeout)
		defer cancel()
	}
	select {
	case <-r.initDone:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: room %s", ErrNotReady, r.id)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	switch r.state {
	case RoomReady:
		return r.router, nil
	case RoomFailed:
		return nil, fmt.Errorf("%w: %v", ErrNotReady, r.initErr)
	default:
		return nil, ErrRoomClosed
	}
}

func (r *Room) Info() domain.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.RoomInfo{ID: r.id, PeerCount: len(r.peers), Ready: r.state == RoomReady}
}

// AddPeer inserts p, replacing any peer with the same id.
func (r *Room) AddPeer(p *Peer) error {
	p.producerGone = r.unindex

	r.mu.Lock()
	if r.state == RoomClosing || r.state == RoomClosed {
		r.mu.Unlock()
		return ErrRoomClosed
	}
	r.peers[p.ID()] = p
	count := len(r.peers)
	r.mu.Unlock()

	r.logger.Info().Str("peer_id", string(p.ID())).Int("peers", count).Msg("peer added")
	return nil
}

func (r *Room) Peer(id domain.PeerID) (*Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerNotFound, id)
	}
	return p, nil
}

func (r *Room) Peers() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

func (r *Room) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *Room) Participants() []domain.Participant {
	peers := r.Peers()
	out := make([]domain.Participant, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.Info())
	}
	return out
}

// RemovePeer closes the peer and everything it owns. It returns the removed
// peer and the number of peers left; removing an absent peer is a no-op.
func (r *Room) RemovePeer(id domain.PeerID) (*Peer, int) {
	r.op.Lock()
	defer r.op.Unlock()

	r.mu.Lock()
	p, ok := r.peers[id]
	delete(r.peers, id)
	left := len(r.peers)
	if ok && left == 0 && r.state != RoomClosed {
		r.state = RoomClosing
	}
	r.mu.Unlock()
	if !ok {
		return nil, left
	}

	p.Close()
	r.logger.Info().Str("peer_id", string(id)).Int("peers", left).Msg("peer removed")
	return p, left
}

// Broadcast notifies every peer except from.
func (r *Room) Broadcast(from domain.PeerID, event string, data any) PublishResult {
	res := PublishResult{}
	for _, p := range r.Peers() {
		if p.ID() == from {
			continue
		}
		if err := p.Notify(event, data); err != nil {
			res.Dropped = append(res.Dropped, p)
			continue
		}
		res.SendTo++
	}
	r.logger.Debug().
		Str("event", event).
		Str("from", string(from)).
		Int("sent_to", res.SendTo).
		Int("dropped", len(res.Dropped)).
		Msg("broadcast result")
	return res
}

func (r *Room) index(producerID string, owner domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[producerID] = owner
}

func (r *Room) unindex(producerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, producerID)
}

// Owner returns the peer that produced producerID.
func (r *Room) Owner(producerID string) (*Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.owners[producerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProducerNotFound, producerID)
	}
	p, ok := r.peers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProducerNotFound, producerID)
	}
	return p, nil
}

// ProducerList is a snapshot of every active producer in the room.
func (r *Room) ProducerList() []ProducerInfo {
	var out []ProducerInfo
	for _, p := range r.Peers() {
		out = append(out, p.Producers()...)
	}
	return out
}

// ProducerListForPeer is ProducerList without the peer's own producers.
func (r *Room) ProducerListForPeer(id domain.PeerID) []ProducerInfo {
	out := make([]ProducerInfo, 0)
	for _, p := range r.Peers() {
		if p.ID() == id {
			continue
		}
		out = append(out, p.Producers()...)
	}
	return out
}

// Close closes every peer and then the router.
func (r *Room) Close() {
	r.op.Lock()
	defer r.op.Unlock()

	r.mu.Lock()
	if r.state == RoomClosed {
		r.mu.Unlock()
		return
	}
	r.state = RoomClosed
	peers := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.peers = make(map[domain.PeerID]*Peer)
	router := r.router
	r.mu.Unlock()

	r.cancelInit()
	for _, p := range peers {
		p.Close()
	}
	if router != nil {
		router.Close()
	}
	r.logger.Info().Int("peers", len(peers)).Msg("room closed")
}
