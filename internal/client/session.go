package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/dkeye/Huddle/internal/recovery"
)

var ErrKicked = errors.New("kicked from room")

type SessionConfig struct {
	Recovery recovery.Config
	// OnFatal is called once when the session cannot continue: send
	// transport recovery gave up or the peer was kicked.
	OnFatal func(error)
	// OnEvent sees every notification after the session handled it.
	OnEvent func(protocol.Message)
}

// Session drives one participant: join, device load, consuming remote
// producers and publishing local ones.
type Session struct {
	conn   *Conn
	device Device
	cfg    SessionConfig
	logger zerolog.Logger
	loads  singleflight.Group
	Pins   PinBoard

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	self      domain.Participant
	peers     map[domain.PeerID]domain.Participant
	queue     []core.ProducerInfo
	seen      map[string]bool
	recvID    string
	sendID    string
	kinds     map[domain.MediaKind]string
	consumers map[string]core.ConsumeParams
	ctrl      *recovery.Controller
	fatalOnce sync.Once

	drainMu sync.Mutex
}

func NewSession(conn *Conn, device Device, cfg SessionConfig) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		conn:      conn,
		device:    device,
		cfg:       cfg,
		logger:    log.With().Str("module", "client.session").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		peers:     make(map[domain.PeerID]domain.Participant),
		kinds:     make(map[domain.MediaKind]string),
		seen:      make(map[string]bool),
		consumers: make(map[string]core.ConsumeParams),
	}
}

func (s *Session) CreateRoom(ctx context.Context, roomID string) error {
	return s.conn.Request(ctx, protocol.MethodCreateRoom, protocol.CreateRoomRequest{RoomID: roomID}, nil)
}

// Join enters the room, then pulls the producers that already exist and
// consumes them once the device is loaded.
func (s *Session) Join(ctx context.Context, req protocol.JoinRequest) (core.RoomSnapshot, error) {
	var snap core.RoomSnapshot
	if err := s.conn.Request(ctx, protocol.MethodJoin, req, &snap); err != nil {
		return snap, err
	}
	s.mu.Lock()
	s.self = snap.Self
	for _, p := range snap.Participants {
		s.peers[p.ID] = p
	}
	s.mu.Unlock()

	var existing []core.ProducerInfo
	if err := s.conn.Request(ctx, protocol.MethodGetProducers, nil, &existing); err != nil {
		return snap, err
	}
	s.enqueue(existing)

	if err := s.LoadDevice(ctx); err != nil {
		return snap, err
	}
	return snap, s.drain(ctx)
}

// LoadDevice loads the device once; concurrent callers share the load.
func (s *Session) LoadDevice(ctx context.Context) error {
	if s.device.Loaded() {
		return nil
	}
	_, err, _ := s.loads.Do("device", func() (any, error) {
		if s.device.Loaded() {
			return nil, nil
		}
		var caps json.RawMessage
		if err := s.conn.Request(ctx, protocol.MethodGetRouterRtpCapabilities, nil, &caps); err != nil {
			return nil, err
		}
		return nil, s.device.Load(ctx, caps)
	})
	return err
}

func (s *Session) enqueue(list []core.ProducerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range list {
		if p.ProducerPeerID == s.self.ID || s.seen[p.ProducerID] {
			continue
		}
		s.seen[p.ProducerID] = true
		s.queue = append(s.queue, p)
	}
}

// drain consumes queued producers in arrival order. Without a loaded
// device the queue is left alone.
func (s *Session) drain(ctx context.Context) error {
	if !s.device.Loaded() {
		return nil
	}
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return nil
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if _, err := s.consume(ctx, next); err != nil {
			s.logger.Warn().Err(err).Str("producer_id", next.ProducerID).Msg("consume failed")
		}
	}
}

// Pending is the number of producers waiting to be consumed.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Session) recvTransport(ctx context.Context) (string, error) {
	s.mu.Lock()
	id := s.recvID
	s.mu.Unlock()
	if id != "" {
		return id, nil
	}

	var params engine.TransportParams
	err := s.conn.Request(ctx, protocol.MethodCreateWebRtcTransport, protocol.CreateTransportRequest{
		Consuming:       true,
		RtpCapabilities: s.device.RtpCapabilities(),
	}, &params)
	if err != nil {
		return "", err
	}
	if err := s.connect(ctx, params.ID); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.recvID = params.ID
	s.mu.Unlock()
	return params.ID, nil
}

func (s *Session) connect(ctx context.Context, transportID string) error {
	return s.conn.Request(ctx, protocol.MethodConnectTransport, protocol.ConnectTransportRequest{
		TransportID:    transportID,
		DtlsParameters: s.device.DtlsParameters(),
	}, nil)
}

// consume returns nil params when the device cannot receive the producer.
func (s *Session) consume(ctx context.Context, p core.ProducerInfo) (*core.ConsumeParams, error) {
	recvID, err := s.recvTransport(ctx)
	if err != nil {
		return nil, err
	}
	var params *core.ConsumeParams
	err = s.conn.Request(ctx, protocol.MethodConsume, protocol.ConsumeRequest{
		TransportID:     recvID,
		ProducerID:      p.ProducerID,
		RtpCapabilities: s.device.RtpCapabilities(),
	}, &params)
	if err != nil || params == nil {
		return nil, err
	}
	if err := s.conn.Request(ctx, protocol.MethodResumeConsumer, protocol.ConsumerRequest{ConsumerID: params.ID}, nil); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.consumers[params.ID] = *params
	s.mu.Unlock()
	s.logger.Debug().Str("consumer_id", params.ID).Str("producer_id", p.ProducerID).Msg("consuming")
	return params, nil
}

// Consumers is a snapshot of active consumers by id.
func (s *Session) Consumers() map[string]core.ConsumeParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]core.ConsumeParams, len(s.consumers))
	for id, c := range s.consumers {
		out[id] = c
	}
	return out
}

func (s *Session) Participants() []domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Participant, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// Run handles notifications until the connection ends or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-s.conn.Events():
			if !ok {
				return s.conn.Err()
			}
			s.handle(ctx, m)
			if s.cfg.OnEvent != nil {
				s.cfg.OnEvent(m)
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, m protocol.Message) {
	switch m.Method {
	case protocol.EventNewProducers:
		var list []core.ProducerInfo
		if err := m.Bind(&list); err != nil {
			s.logger.Warn().Err(err).Msg("bad newProducers")
			return
		}
		s.enqueue(list)
		if err := s.drain(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("drain")
		}
	case protocol.EventNewPeer:
		var p domain.Participant
		if err := m.Bind(&p); err == nil {
			s.mu.Lock()
			s.peers[p.ID] = p
			s.mu.Unlock()
		}
	case protocol.EventPeerClosed:
		var p protocol.PeerClosed
		if err := m.Bind(&p); err == nil {
			s.mu.Lock()
			delete(s.peers, p.PeerID)
			s.mu.Unlock()
			s.Pins.Forget(p.PeerID)
		}
	case protocol.EventConsumerClosed:
		var c protocol.ConsumerClosed
		if err := m.Bind(&c); err == nil {
			s.mu.Lock()
			delete(s.consumers, c.ConsumerID)
			s.mu.Unlock()
		}
	case protocol.EventProducerClosed:
		var p protocol.ProducerClosed
		if err := m.Bind(&p); err == nil {
			s.mu.Lock()
			if s.kinds[p.Kind] == p.ProducerID {
				delete(s.kinds, p.Kind)
			}
			s.mu.Unlock()
		}
	case protocol.EventKickedFromRoom:
		s.fatal(ErrKicked)
	}
}

func (s *Session) fatal(err error) {
	s.fatalOnce.Do(func() {
		s.logger.Error().Err(err).Msg("session ended")
		if s.cfg.OnFatal != nil {
			s.cfg.OnFatal(err)
		}
	})
}

// Close stops recovery. The connection is closed by its owner.
func (s *Session) Close() {
	s.cancel()
	s.mu.Lock()
	ctrl := s.ctrl
	s.mu.Unlock()
	if ctrl != nil {
		ctrl.Close()
	}
}
