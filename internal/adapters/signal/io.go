package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/protocol"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

// readPump handles requests one at a time in arrival order. When it ends
// the connection is torn down like an explicit exit.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, s *session) {
	defer func() {
		log.Info().Str("module", "signal").Str("peer_id", string(s.peerID)).Msg("readPump closing")
		cancel()
		s.conn.Close()
		ctl.teardown(s)
	}()

	ws := s.conn.conn
	if ctl.cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.cfg.ReadLimit)
	}
	pongWait := ctl.cfg.PingPeriod * 10 / 9
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("peer_id", string(s.peerID)).Msg("readPump read error")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ctl.handleSignal(ctx, s, data)
		if ctx.Err() != nil {
			return
		}
	}
}

func (ctl *SignalWSController) teardown(s *session) {
	if s.joined && s.roomID != "" {
		ctl.Orch.Disconnect(s.roomID, s.peerID)
	}
	ctl.Orch.Registry.Unbind(s.peerID)
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, s *session, data []byte) {
	m, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer_id", string(s.peerID)).Msg("bad frame")
		return
	}
	if !m.Request {
		log.Debug().Str("module", "signal").Str("method", m.Method).Msg("ignoring non-request frame")
		return
	}

	switch m.Method {
	case protocol.MethodCreateRoom:
		ctl.createRoom(s, m)
	case protocol.MethodJoin:
		ctl.handleJoin(s, m)
	case protocol.MethodExitRoom:
		ctl.handleExit(s, m)
	case protocol.MethodKickParticipant:
		ctl.handleKick(s, m)
	case protocol.MethodGetParticipants:
		ctl.handleParticipants(s, m)
	case protocol.MethodGetMyRoomInfo:
		ctl.handleMyRoomInfo(s, m)
	case protocol.MethodGetProducers:
		ctl.handleProducers(s, m)
	case protocol.MethodGetRouterRtpCapabilities:
		ctl.handleRtpCapabilities(ctx, s, m)
	case protocol.MethodCreateWebRtcTransport:
		ctl.handleCreateTransport(ctx, s, m)
	case protocol.MethodConnectTransport:
		ctl.handleConnectTransport(ctx, s, m)
	case protocol.MethodRestartIce:
		ctl.handleRestartIce(ctx, s, m)
	case protocol.MethodProduce:
		ctl.handleProduce(ctx, s, m)
	case protocol.MethodCloseProducer:
		ctl.handleCloseProducer(s, m)
	case protocol.MethodPauseProducer:
		ctl.handlePauseProducer(ctx, s, m, true)
	case protocol.MethodResumeProducer:
		ctl.handlePauseProducer(ctx, s, m, false)
	case protocol.MethodConsume:
		ctl.handleConsume(ctx, s, m)
	case protocol.MethodResumeConsumer:
		ctl.handleResumeConsumer(ctx, s, m)
	case protocol.MethodPing:
		ctl.handlePing(s, m)
	default:
		log.Warn().Str("module", "signal").Str("method", m.Method).Msg("unknown request")
		ctl.fail(s, m, protocol.ErrUnknownMethod)
	}
}

func (ctl *SignalWSController) reply(s *session, m protocol.Message, data any) {
	resp, err := protocol.NewResponse(m.ID, data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("method", m.Method).Msg("reply marshal")
		ctl.fail(s, m, err)
		return
	}
	if err := s.conn.sendMessage(resp); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer_id", string(s.peerID)).Str("method", m.Method).Msg("reply dropped")
	}
}

func (ctl *SignalWSController) fail(s *session, m protocol.Message, err error) {
	log.Debug().Err(err).Str("module", "signal").Str("peer_id", string(s.peerID)).Str("method", m.Method).Msg("request failed")
	if err := s.conn.sendMessage(protocol.NewErrorResponse(m.ID, err)); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer_id", string(s.peerID)).Msg("error reply dropped")
	}
}
