package orch

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrAlreadyJoined = errors.New("already joined a room")
	ErrNotInRoom     = errors.New("not in a room")
)

const (
	EventNewPeer              = "newPeer"
	EventPeerClosed           = "peerClosed"
	EventKickedFromRoom       = "kickedFromRoom"
	EventProducerStateChanged = "producerStateChanged"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Policy   app.Policy
}

func New(registry *app.Registry, rooms *app.RoomManager, policy app.Policy) *Orchestrator {
	return &Orchestrator{Registry: registry, Rooms: rooms, Policy: policy}
}

// publish broadcasts to everyone in the room but from and applies the
// backpressure policy to peers that could not take the event.
func (o *Orchestrator) publish(room *core.Room, from domain.PeerID, event string, data any) {
	o.applyPolicy(room, room.Broadcast(from, event, data))
}

func (o *Orchestrator) applyPolicy(room *core.Room, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			log.Warn().
				Str("module", "orch").
				Str("room_id", string(room.ID())).
				Str("peer_id", string(slow.ID())).
				Msg("evicting slow peer")
			o.evict(room.ID(), slow.ID())
		case app.NoAction:
		}
	}
}

// evict cancels the peer's connection, whose teardown removes it from the
// room. Peers without a bound connection are removed directly.
func (o *Orchestrator) evict(roomID domain.RoomID, peerID domain.PeerID) {
	if o.Registry != nil && o.Registry.Cancel(peerID) {
		return
	}
	o.leave(roomID, peerID, "evicted")
}

// member returns the room and the caller's peer in it.
func (o *Orchestrator) member(roomID domain.RoomID, peerID domain.PeerID) (*core.Room, *core.Peer, error) {
	room, err := o.Rooms.GetRoom(roomID)
	if err != nil {
		return nil, nil, err
	}
	peer, err := room.Peer(peerID)
	if err != nil {
		return nil, nil, ErrNotInRoom
	}
	return room, peer, nil
}
