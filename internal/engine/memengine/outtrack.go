package memengine

import (
	"errors"
	"sync/atomic"

	"github.com/pion/rtp"
)

type trackState int32

const (
	trackStateOk trackState = iota
	trackStateMuted
	trackStateDelete
)

var errTrackFull = errors.New("out track buffer full")

// outTrack is the delivery end of one consumer.
type outTrack struct {
	ch    chan *rtp.Packet
	state atomic.Int32 // Zero by default (trackStateOk)
}

func newOutTrack(buffer int) *outTrack {
	return &outTrack{ch: make(chan *rtp.Packet, buffer)}
}

func (ot *outTrack) getState() trackState {
	return trackState(ot.state.Load())
}

func (ot *outTrack) markOk() {
	// A deleted track never comes back.
	ot.state.CompareAndSwap(int32(trackStateMuted), int32(trackStateOk))
}

func (ot *outTrack) markMuted() {
	ot.state.CompareAndSwap(int32(trackStateOk), int32(trackStateMuted))
}

func (ot *outTrack) markDelete() {
	ot.state.Store(int32(trackStateDelete))
}

func (ot *outTrack) write(pkt *rtp.Packet) error {
	select {
	case ot.ch <- pkt:
		return nil
	default:
		return errTrackFull
	}
}
