package signal

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
)

func (ctl *SignalWSController) handleRtpCapabilities(ctx context.Context, s *session, m protocol.Message) {
	roomID, err := s.room()
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	caps, err := ctl.Orch.RtpCapabilities(ctx, roomID, s.peerID)
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	ctl.reply(s, m, caps)
}

func (ctl *SignalWSController) handleCreateTransport(ctx context.Context, s *session, m protocol.Message) {
	roomID, err := s.room()
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	var p protocol.CreateTransportRequest
	if err := m.Bind(&p); err != nil {
		ctl.fail(s, m, err)
		return
	}
	params, err := ctl.Orch.CreateTransport(ctx, roomID, s.peerID, core.TransportRequest{
		Role:            p.Role(),
		ForceTCP:        p.ForceTCP,
		RtpCapabilities: p.RtpCapabilities,
	})
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	ctl.reply(s, m, params)
}

func (ctl *SignalWSController) handleConnectTransport(ctx context.Context, s *session, m protocol.Message) {
	roomID, err := s.room()
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	var p protocol.ConnectTransportRequest
	if err := m.Bind(&p); err != nil {
		ctl.fail(s, m, err)
		return
	}
	if err := ctl.Orch.ConnectTransport(ctx, roomID, s.peerID, p.TransportID, p.DtlsParameters); err != nil {
		ctl.fail(s, m, err)
		return
	}
	ctl.reply(s, m, nil)
}

func (ctl *SignalWSController) handleRestartIce(ctx context.Context, s *session, m protocol.Message) {
	roomID, err := s.room()
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	var p protocol.RestartIceRequest
	if err := m.Bind(&p); err != nil {
		ctl.fail(s, m, err)
		return
	}
	ice, err := ctl.Orch.RestartIce(ctx, roomID, s.peerID, p.TransportID)
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	ctl.reply(s, m, protocol.RestartIceResponse{IceParameters: ice})
}

// handleProduce replies with the producer id first; other peers are told
// afterwards, and only about producers that did not exist yet.
func (ctl *SignalWSController) handleProduce(ctx context.Context, s *session, m protocol.Message) {
	roomID, err := s.room()
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	var p protocol.ProduceRequest
	if err := m.Bind(&p); err != nil {
		ctl.fail(s, m, err)
		return
	}
	kind, err := p.MediaKind()
	if err != nil {
		ctl.fail(s, m, err)
		return
	}

	id, created, err := ctl.Orch.Produce(ctx, roomID, s.peerID, p.TransportID, kind, p.RtpParameters)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer_id", string(s.peerID)).Str("kind", string(kind)).Msg("produce failed")
		ctl.fail(s, m, err)
		return
	}
	ctl.reply(s, m, protocol.ProduceResponse{ProducerID: id})
	if created {
		ctl.Orch.AnnounceProducer(roomID, id)
	}
}

func (ctl *SignalWSController) handleCloseProducer(s *session, m protocol.Message) {
	roomID, err := s.room()
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	var p protocol.ProducerRequest
	if err := m.Bind(&p); err != nil {
		ctl.fail(s, m, err)
		return
	}
	if err := ctl.Orch.CloseProducer(roomID, s.peerID, p.ProducerID); err != nil {
		ctl.fail(s, m, err)
		return
	}
	ctl.reply(s, m, nil)
}

func (ctl *SignalWSController) handlePauseProducer(ctx context.Context, s *session, m protocol.Message, pause bool) {
	roomID, err := s.room()
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	var p protocol.ProducerRequest
	if err := m.Bind(&p); err != nil {
		ctl.fail(s, m, err)
		return
	}
	if pause {
		err = ctl.Orch.PauseProducer(ctx, roomID, s.peerID, p.ProducerID)
	} else {
		err = ctl.Orch.ResumeProducer(ctx, roomID, s.peerID, p.ProducerID)
	}
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	ctl.reply(s, m, nil)
}

// handleConsume answers null when the receiver cannot decode the producer.
func (ctl *SignalWSController) handleConsume(ctx context.Context, s *session, m protocol.Message) {
	roomID, err := s.room()
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	var p protocol.ConsumeRequest
	if err := m.Bind(&p); err != nil {
		ctl.fail(s, m, err)
		return
	}
	params, err := ctl.Orch.Consume(ctx, roomID, s.peerID, p.TransportID, p.ProducerID, p.RtpCapabilities)
	switch {
	case errors.Is(err, core.ErrIncompatibleCapabilities):
		ctl.reply(s, m, nil)
	case err != nil:
		ctl.fail(s, m, err)
	default:
		ctl.reply(s, m, params)
	}
}

func (ctl *SignalWSController) handleResumeConsumer(ctx context.Context, s *session, m protocol.Message) {
	roomID, err := s.room()
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	var p protocol.ConsumerRequest
	if err := m.Bind(&p); err != nil {
		ctl.fail(s, m, err)
		return
	}
	if err := ctl.Orch.ResumeConsumer(ctx, roomID, s.peerID, p.ConsumerID); err != nil {
		ctl.fail(s, m, err)
		return
	}
	ctl.reply(s, m, nil)
}

func (ctl *SignalWSController) handleProducers(s *session, m protocol.Message) {
	roomID, err := s.room()
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	list, err := ctl.Orch.Producers(roomID, s.peerID)
	if err != nil {
		ctl.fail(s, m, err)
		return
	}
	ctl.reply(s, m, list)
}
