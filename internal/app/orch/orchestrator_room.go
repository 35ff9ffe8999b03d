package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type JoinRequest struct {
	RoomID     domain.RoomID
	Name       string
	IsTrainer  bool
	ProfilePic string
}

type peerClosed struct {
	PeerID domain.PeerID `json:"peerId"`
	Name   string        `json:"name"`
}

type kicked struct {
	RoomID domain.RoomID `json:"roomId"`
	By     domain.PeerID `json:"by"`
}

func (o *Orchestrator) CreateRoom(id domain.RoomID) (domain.RoomInfo, error) {
	room, err := o.Rooms.CreateRoom(id)
	if err != nil {
		return domain.RoomInfo{}, err
	}
	return room.Info(), nil
}

// Join adds the connection's peer to a room. Other members learn about it
// through AnnouncePeer, which the caller invokes after replying.
func (o *Orchestrator) Join(sid core.SessionID, peerID domain.PeerID, sig core.SignalConnection, req JoinRequest) (core.RoomSnapshot, error) {
	if _, ok := o.Registry.RoomOf(peerID); ok {
		return core.RoomSnapshot{}, ErrAlreadyJoined
	}
	room, err := o.Rooms.GetRoom(req.RoomID)
	if err != nil {
		return core.RoomSnapshot{}, err
	}
	info, err := domain.NewParticipant(peerID, req.Name, req.IsTrainer, req.ProfilePic)
	if err != nil {
		return core.RoomSnapshot{}, err
	}
	if !o.Registry.Join(peerID, room.ID()) {
		return core.RoomSnapshot{}, ErrAlreadyJoined
	}
	peer := core.NewPeer(*info, sid, sig)
	if err := room.AddPeer(peer); err != nil {
		o.Registry.Leave(peerID)
		return core.RoomSnapshot{}, err
	}

	log.Info().
		Str("module", "orch").
		Str("room_id", string(room.ID())).
		Str("peer_id", string(peerID)).
		Str("sid", string(sid)).
		Msg("joined")
	return core.RoomSnapshot{RoomID: room.ID(), Self: *info, Participants: others(room, peerID)}, nil
}

func (o *Orchestrator) AnnouncePeer(roomID domain.RoomID, peerID domain.PeerID) {
	room, peer, err := o.member(roomID, peerID)
	if err != nil {
		return
	}
	o.publish(room, peerID, EventNewPeer, peer.Info())
}

// Participants lists the room's members and tells whether the caller is a
// trainer.
func (o *Orchestrator) Participants(roomID domain.RoomID, peerID domain.PeerID) ([]domain.Participant, bool, error) {
	room, peer, err := o.member(roomID, peerID)
	if err != nil {
		return nil, false, err
	}
	return room.Participants(), peer.Info().IsTrainer, nil
}

func (o *Orchestrator) RoomInfo(roomID domain.RoomID, peerID domain.PeerID) (core.RoomSnapshot, error) {
	room, peer, err := o.member(roomID, peerID)
	if err != nil {
		return core.RoomSnapshot{}, err
	}
	return core.RoomSnapshot{RoomID: room.ID(), Self: peer.Info(), Participants: others(room, peerID)}, nil
}

func (o *Orchestrator) Exit(roomID domain.RoomID, peerID domain.PeerID) {
	o.leave(roomID, peerID, "exit")
}

func (o *Orchestrator) Disconnect(roomID domain.RoomID, peerID domain.PeerID) {
	o.leave(roomID, peerID, "disconnect")
}

// Kick removes target on behalf of a trainer. The target is told before
// its media is torn down and its connection is closed afterwards.
func (o *Orchestrator) Kick(roomID domain.RoomID, requester, target domain.PeerID) error {
	room, by, err := o.member(roomID, requester)
	if err != nil {
		return err
	}
	if !by.Info().IsTrainer {
		return core.ErrNotAuthorized
	}
	victim, err := room.Peer(target)
	if err != nil {
		return err
	}
	_ = victim.Notify(EventKickedFromRoom, kicked{RoomID: roomID, By: requester})
	o.leave(roomID, target, "kick")
	if sig := victim.Signal(); sig != nil {
		sig.Close()
	}
	return nil
}

func (o *Orchestrator) leave(roomID domain.RoomID, peerID domain.PeerID, reason string) {
	o.Registry.Leave(peerID)
	peer, room, err := o.Rooms.RemovePeer(roomID, peerID)
	if err != nil || peer == nil {
		return
	}
	log.Info().
		Str("module", "orch").
		Str("room_id", string(roomID)).
		Str("peer_id", string(peerID)).
		Str("reason", reason).
		Msg("peer left")
	if room != nil {
		o.publish(room, peerID, EventPeerClosed, peerClosed{PeerID: peerID, Name: peer.Info().Name})
	}
}

func others(room *core.Room, self domain.PeerID) []domain.Participant {
	out := make([]domain.Participant, 0)
	for _, p := range room.Participants() {
		if p.ID != self {
			out = append(out, p)
		}
	}
	return out
}
