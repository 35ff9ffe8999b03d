// Package engine is the boundary to the media engine (SFU workers).
// The orchestration layer never interprets codec, ICE or DTLS parameters;
// they travel through it as raw JSON.
package engine

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrClosed          = errors.New("engine object closed")
	ErrProducerUnknown = errors.New("producer unknown to router")
	ErrCannotConsume   = errors.New("rtp capabilities cannot consume producer")
	ErrEmptyPool       = errors.New("worker pool is empty")
)

// State is a transport connection state.
type State string

const (
	StateNew          State = "new"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

// Degraded reports whether the state calls for transport recovery.
func (s State) Degraded() bool {
	return s == StateDisconnected || s == StateFailed || s == StateClosed
}

type ConsumerType string

const (
	ConsumerSimple    ConsumerType = "simple"
	ConsumerSimulcast ConsumerType = "simulcast"
	ConsumerSVC       ConsumerType = "svc"
)

type Worker interface {
	ID() string
	CreateRouter(ctx context.Context) (Router, error)
	Close()
}

type Router interface {
	ID() string
	RtpCapabilities() json.RawMessage
	CanConsume(producerID string, rtpCapabilities json.RawMessage) bool
	CreateWebRtcTransport(ctx context.Context, opts TransportOptions) (Transport, error)
	Close()
}

type TransportOptions struct {
	ForceTCP  bool
	Producing bool
	Consuming bool
	AppData   map[string]any
}

// TransportParams is what a client needs to build its side of the transport.
type TransportParams struct {
	ID             string          `json:"id"`
	IceParameters  json.RawMessage `json:"iceParameters"`
	IceCandidates  json.RawMessage `json:"iceCandidates"`
	DtlsParameters json.RawMessage `json:"dtlsParameters"`
}

type Transport interface {
	ID() string
	Params() TransportParams
	Connect(ctx context.Context, dtlsParameters json.RawMessage) error
	RestartIce(ctx context.Context) (json.RawMessage, error)
	Produce(ctx context.Context, opts ProducerOptions) (Producer, error)
	Consume(ctx context.Context, opts ConsumerOptions) (Consumer, error)
	// OnStateChange registers a callback for connection state transitions.
	OnStateChange(func(State))
	Close()
	Closed() bool
}

type ProducerOptions struct {
	Kind          string
	RtpParameters json.RawMessage
	AppData       map[string]any
}

type Producer interface {
	ID() string
	Kind() string
	AppData() map[string]any
	Paused() bool
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	OnTransportClose(func())
	OnClose(func())
	Close()
}

type ConsumerOptions struct {
	ProducerID      string
	RtpCapabilities json.RawMessage
	Paused          bool
}

// Layers selects a spatial/temporal layer pair, both zero-based.
type Layers struct {
	Spatial  int `json:"spatialLayer"`
	Temporal int `json:"temporalLayer"`
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() string
	Type() ConsumerType
	RtpParameters() json.RawMessage
	ProducerPaused() bool
	// Layers returns how many spatial and temporal layers the stream has.
	Layers() (spatial, temporal int)
	SetPreferredLayers(ctx context.Context, l Layers) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	OnProducerClose(func())
	OnProducerPause(func())
	OnProducerResume(func())
	OnTransportClose(func())
	OnClose(func())
	Close()
}
