package client

import (
	"context"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/dkeye/Huddle/internal/recovery"
)

// Publish produces kind on the send transport, creating the transport on
// first use. Publishing a kind twice returns the same producer id.
func (s *Session) Publish(ctx context.Context, kind domain.MediaKind) (string, error) {
	sendID, err := s.sendTransport(ctx)
	if err != nil {
		return "", err
	}
	id, err := s.produce(ctx, sendID, kind)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.kinds[kind] = id
	s.mu.Unlock()
	return id, nil
}

// KindTable is the kind to producer id table that recovery replays.
func (s *Session) KindTable() map[domain.MediaKind]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.MediaKind]string, len(s.kinds))
	for k, v := range s.kinds {
		out[k] = v
	}
	return out
}

func (s *Session) SendTransportID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendID
}

// Recovery is the controller watching the send transport, nil before the
// first Publish.
func (s *Session) Recovery() *recovery.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl
}

// ObserveSendTransport feeds the local media stack's connection state of
// the send transport into recovery.
func (s *Session) ObserveSendTransport(transportID string, state engine.State) {
	if ctrl := s.Recovery(); ctrl != nil {
		ctrl.Observe(transportID, state)
	}
}

func (s *Session) sendTransport(ctx context.Context) (string, error) {
	s.mu.Lock()
	id := s.sendID
	s.mu.Unlock()
	if id != "" {
		return id, nil
	}

	if err := s.LoadDevice(ctx); err != nil {
		return "", err
	}
	id, err := s.newSendTransport(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendID = id
	if s.ctrl == nil {
		s.ctrl = recovery.New(s.ctx, id, s.cfg.Recovery, s.rebuildSend, s.fatal)
	}
	return id, nil
}

func (s *Session) newSendTransport(ctx context.Context) (string, error) {
	var params engine.TransportParams
	err := s.conn.Request(ctx, protocol.MethodCreateWebRtcTransport, protocol.CreateTransportRequest{Producing: true}, &params)
	if err != nil {
		return "", err
	}
	if err := s.connect(ctx, params.ID); err != nil {
		return "", err
	}
	return params.ID, nil
}

func (s *Session) produce(ctx context.Context, transportID string, kind domain.MediaKind) (string, error) {
	req := protocol.ProduceRequest{
		TransportID:   transportID,
		Kind:          kind.EngineKind(),
		RtpParameters: s.device.RtpParameters(kind),
	}
	if kind == domain.KindScreen {
		req.AppData.MediaTag = string(domain.KindScreen)
	}
	var resp protocol.ProduceResponse
	if err := s.conn.Request(ctx, protocol.MethodProduce, req, &resp); err != nil {
		return "", err
	}
	return resp.ProducerID, nil
}

// rebuildSend replaces the send transport. The server closes the old one
// when the new one is created; every published kind is produced again.
func (s *Session) rebuildSend(ctx context.Context) (string, error) {
	kinds := s.KindTable()

	id, err := s.newSendTransport(ctx)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.sendID = id
	ctrl := s.ctrl
	s.mu.Unlock()
	if ctrl != nil {
		ctrl.Adopt(id)
	}

	for kind := range kinds {
		pid, err := s.produce(ctx, id, kind)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.kinds[kind] = pid
		s.mu.Unlock()
		s.logger.Info().Str("kind", string(kind)).Str("producer_id", pid).Msg("producer replayed")
	}
	return id, nil
}
