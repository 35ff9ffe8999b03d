package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type sessionEntry struct {
	Session core.SessionID
	RoomID  domain.RoomID
	Cancel  context.CancelFunc
}

// Registry tracks live signaling connections and the room each one joined.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.PeerID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.PeerID]*sessionEntry)}
}

func (r *Registry) Bind(id domain.PeerID, sid core.SessionID, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{Session: sid, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("peer_id", string(id)).Str("sid", string(sid)).Msg("bound connection")
}

// Join records the room of a connection. It fails if the connection is
// unknown or already has a room.
func (r *Registry) Join(id domain.PeerID, roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		e = &sessionEntry{}
		r.sessions[id] = e
	}
	if e.RoomID != "" {
		return false
	}
	e.RoomID = roomID
	log.Info().Str("module", "app.registry").Str("peer_id", string(id)).Str("room_id", string(roomID)).Msg("joined room")
	return true
}

func (r *Registry) RoomOf(id domain.PeerID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok || e.RoomID == "" {
		return "", false
	}
	return e.RoomID, true
}

// Leave forgets the room association; the connection stays bound.
func (r *Registry) Leave(id domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		e.RoomID = ""
	}
}

func (r *Registry) Unbind(id domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("peer_id", string(id)).Msg("unbind connection")
}

// Cancel stops a connection's pumps. It reports whether one was bound.
func (r *Registry) Cancel(id domain.PeerID) bool {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || e.Cancel == nil {
		return false
	}
	e.Cancel()
	log.Info().Str("module", "app.registry").Str("peer_id", string(id)).Msg("canceled connection")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
