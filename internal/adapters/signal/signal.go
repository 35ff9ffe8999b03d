package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Settings struct {
	SendBuffer int
	ReadLimit  int64
	PingPeriod time.Duration
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RoomRateLimiter
	cfg     Settings
}

func NewSignalWSController(o *orch.Orchestrator, limiter *RoomRateLimiter, cfg Settings) *SignalWSController {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 54 * time.Second
	}
	return &SignalWSController{Orch: o, Limiter: limiter, cfg: cfg}
}

// WsSignalConn is the outbound side of one websocket. Frames are queued
// and written by the write pump; a full queue is reported, never waited on.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Notify(event string, data any) error {
	m, err := protocol.NewNotification(event, data)
	if err != nil {
		return err
	}
	return c.sendMessage(m)
}

func (c *WsSignalConn) sendMessage(m protocol.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.TrySend(b)
}

// Close stops accepting frames. Frames already queued are still written
// before the websocket is closed.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// session is the per-connection dispatcher state. It is only touched by
// the read pump.
type session struct {
	peerID domain.PeerID
	sid    core.SessionID
	conn   *WsSignalConn
	roomID domain.RoomID
	joined bool
}

// room returns the joined room for room-scoped requests.
func (s *session) room() (domain.RoomID, error) {
	if !s.joined || s.roomID == "" {
		return "", orch.ErrNotInRoom
	}
	return s.roomID, nil
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan []byte, ctl.cfg.SendBuffer),
	}
	s := &session{peerID: domain.NewPeerID(), sid: sid, conn: conn}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("peer_id", string(s.peerID)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Bind(s.peerID, sid, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, s)
}
