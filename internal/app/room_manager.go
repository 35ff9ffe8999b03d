package app

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
)

// RoomManager is the session registry: room id to Room, with media engine
// workers assigned round-robin. Tests build as many as they need.
type RoomManager struct {
	pool         *engine.Pool
	readyTimeout time.Duration

	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.Room
}

func NewRoomManager(pool *engine.Pool, readyTimeout time.Duration) *RoomManager {
	return &RoomManager{
		pool:         pool,
		readyTimeout: readyTimeout,
		rooms:        make(map[domain.RoomID]*core.Room),
	}
}

// CreateRoom registers a new room and returns before its router is ready.
func (m *RoomManager) CreateRoom(id domain.RoomID) (*core.Room, error) {
	m.mu.Lock()
	if _, ok := m.rooms[id]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", core.ErrRoomExists, id)
	}
	w := m.pool.Next()
	room := core.NewRoom(id, w, m.readyTimeout)
	m.rooms[id] = room
	m.mu.Unlock()

	go m.watchInit(room)
	log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Str("worker_id", w.ID()).Msg("room created")
	return room, nil
}

// watchInit drops rooms whose router could not be created.
func (m *RoomManager) watchInit(room *core.Room) {
	<-room.Initialized()
	if room.State() != core.RoomFailed {
		return
	}
	log.Warn().Str("module", "app.rooms").Str("room_id", string(room.ID())).Msg("dropping room without router")
	m.drop(room)
	room.Close()
}

func (m *RoomManager) GetRoom(id domain.RoomID) (*core.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRoomNotFound, id)
	}
	return room, nil
}

func (m *RoomManager) List() []domain.RoomInfo {
	m.mu.RLock()
	out := make([]domain.RoomInfo, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.Info())
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.RoomInfo) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out
}

func (m *RoomManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// RemovePeer removes a peer from its room. The room is unregistered and
// closed as soon as it is empty. The returned room is nil in that case.
func (m *RoomManager) RemovePeer(roomID domain.RoomID, peerID domain.PeerID) (*core.Peer, *core.Room, error) {
	room, err := m.GetRoom(roomID)
	if err != nil {
		return nil, nil, err
	}
	peer, left := room.RemovePeer(peerID)
	if left > 0 {
		return peer, room, nil
	}
	m.drop(room)
	room.Close()
	log.Info().Str("module", "app.rooms").Str("room_id", string(roomID)).Msg("room removed, last peer left")
	return peer, nil, nil
}

func (m *RoomManager) drop(room *core.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[room.ID()] == room {
		delete(m.rooms, room.ID())
	}
}

// Close closes every room. Workers are left to the pool owner.
func (m *RoomManager) Close() {
	m.mu.Lock()
	rooms := make([]*core.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.rooms = make(map[domain.RoomID]*core.Room)
	m.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
}
