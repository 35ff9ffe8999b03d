package signal

import (
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

func (ctl *SignalWSController) handleParticipants(s *session, m protocol.Message) {
	roomID, err := s.room()
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	var p protocol.GetParticipantsRequest
	if err := m.Bind(&p); err != nil {
		ctl.fail(s, m, err)
		return
	}
	if p.RoomID != "" && domain.RoomID(p.RoomID) != roomID {
		ctl.fail(s, m, orch.ErrNotInRoom)
		return
	}

	parts, trainer, err := ctl.Orch.Participants(roomID, s.peerID)
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	ctl.reply(s, m, protocol.GetParticipantsResponse{Participants: parts, IsTrainer: trainer})
}

func (ctl *SignalWSController) handleMyRoomInfo(s *session, m protocol.Message) {
	roomID, err := s.room()
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	snap, err := ctl.Orch.RoomInfo(roomID, s.peerID)
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	ctl.reply(s, m, snap)
}
