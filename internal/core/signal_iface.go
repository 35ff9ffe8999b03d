package core

// SignalConnection is the outbound half of a participant's signaling
// channel. Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// Notify queues an event without blocking.
	Notify(event string, data any) error
	Close()
}
