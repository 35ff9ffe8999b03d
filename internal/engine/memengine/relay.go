package memengine

import (
	"maps"
	"sync"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// relay fans packets of one producer out to its consumers' out tracks.
type relay struct {
	mu        sync.RWMutex
	outTracks map[string]*outTrack
}

func newRelay() *relay {
	return &relay{outTracks: make(map[string]*outTrack)}
}

func (r *relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) (delivered int) {
	r.mu.RLock()
	snapshot := make(map[string]*outTrack, len(r.outTracks))
	maps.Copy(snapshot, r.outTracks)
	r.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for consumerID, ot := range snapshot {
		switch ot.getState() {
		case trackStateDelete:
			dirty = append(dirty, consumerID)
		case trackStateMuted:
		case trackStateOk:
			if err := ot.write(pkt); err != nil {
				logger.Debug().
					Err(err).
					Str("consumer_id", consumerID).
					Uint16("seq", pkt.SequenceNumber).
					Msg("dropping packet for slow consumer")
				continue
			}
			delivered++
		}
	}

	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
	return delivered
}

func (r *relay) cleanupDeleted(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range dirty {
		delete(r.outTracks, id)
	}
}

func (r *relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.markDelete()
	}
}

func (r *relay) addOutTrack(consumerID string, ot *outTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outTracks[consumerID] = ot
}

func (r *relay) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outTracks)
}
