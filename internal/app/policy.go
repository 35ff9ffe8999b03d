package app

import "github.com/dkeye/Huddle/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a peer whose signaling buffer is full.
type Policy interface {
	OnBackPressure(room *core.Room, peer *core.Peer) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*core.Room, *core.Peer) BackpressureAction {
	return KickMember
}
