package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

func (ctl *SignalWSController) createRoom(s *session, m protocol.Message) {
	var p protocol.CreateRoomRequest
	if err := m.Bind(&p); err != nil {
		ctl.fail(s, m, err)
		return
	}
	roomID, err := domain.ParseRoomID(p.RoomID)
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(string(s.sid)) {
		log.Warn().Str("module", "signal").Str("sid", string(s.sid)).Msg("createRoom rate limited")
		ctl.fail(s, m, protocol.ErrRateLimited)
		return
	}

	info, err := ctl.Orch.CreateRoom(roomID)
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	ctl.reply(s, m, protocol.CreateRoomResponse{RoomID: info.ID})
}

// handleJoin replies with the room snapshot before other members hear
// about the new peer.
func (ctl *SignalWSController) handleJoin(s *session, m protocol.Message) {
	if s.joined {
		ctl.fail(s, m, orch.ErrAlreadyJoined)
		return
	}
	var p protocol.JoinRequest
	if err := m.Bind(&p); err != nil {
		ctl.fail(s, m, err)
		return
	}
	roomID, err := domain.ParseRoomID(p.RoomID)
	if err != nil {
		ctl.fail(s, m, err)
		return
	}

	snap, err := ctl.Orch.Join(s.sid, s.peerID, s.conn, orch.JoinRequest{
		RoomID:     roomID,
		Name:       p.Name,
		IsTrainer:  p.IsTrainer,
		ProfilePic: p.ProfilePic,
	})
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	s.joined = true
	s.roomID = roomID

	log.Info().Str("module", "signal").Str("sid", string(s.sid)).Str("peer_id", string(s.peerID)).Str("room_id", string(roomID)).Msg("join")
	ctl.reply(s, m, snap)
	ctl.Orch.AnnouncePeer(roomID, s.peerID)
}

// handleExit acknowledges and then closes the connection.
func (ctl *SignalWSController) handleExit(s *session, m protocol.Message) {
	roomID, err := s.room()
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	ctl.Orch.Exit(roomID, s.peerID)
	s.roomID = ""

	log.Info().Str("module", "signal").Str("peer_id", string(s.peerID)).Str("room_id", string(roomID)).Msg("exit")
	ctl.reply(s, m, nil)
	s.conn.Close()
}
