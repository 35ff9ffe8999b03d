package signal

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

func (ctl *SignalWSController) handlePing(s *session, m protocol.Message) {
	ctl.reply(s, m, protocol.Pong{Time: time.Now().UnixMilli()})
}

func (ctl *SignalWSController) handleKick(s *session, m protocol.Message) {
	roomID, err := s.room()
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	var p protocol.KickRequest
	if err := m.Bind(&p); err != nil {
		ctl.fail(s, m, err)
		return
	}
	if p.PeerID == "" || domain.PeerID(p.PeerID) == s.peerID {
		ctl.fail(s, m, protocol.ErrBadRequest)
		return
	}
	if err := ctl.Orch.Kick(roomID, s.peerID, domain.PeerID(p.PeerID)); err != nil {
		ctl.fail(s, m, err)
		return
	}
	log.Info().Str("module", "signal").Str("room_id", string(roomID)).Str("peer_id", p.PeerID).Str("by", string(s.peerID)).Msg("kick")
	ctl.reply(s, m, nil)
}
