package client

import (
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
)

// PinBoard keeps at most one pinned participant.
type PinBoard struct {
	mu     sync.Mutex
	pinned domain.PeerID
}

// Toggle pins id, replacing any previous pin, or unpins it if it was the
// pinned one. It reports whether id is pinned afterwards.
func (b *PinBoard) Toggle(id domain.PeerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pinned == id {
		b.pinned = ""
		return false
	}
	b.pinned = id
	return true
}

func (b *PinBoard) Pinned() (domain.PeerID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pinned, b.pinned != ""
}

// Forget unpins a participant that left.
func (b *PinBoard) Forget(id domain.PeerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pinned == id {
		b.pinned = ""
	}
}

// Snapshot maps every known participant to its pin flag.
func (b *PinBoard) Snapshot(ids []domain.PeerID) map[domain.PeerID]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[domain.PeerID]bool, len(ids))
	for _, id := range ids {
		out[id] = id == b.pinned
	}
	return out
}
