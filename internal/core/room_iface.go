package core

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []*Peer
}

type RoomState string

const (
	RoomUninitialized RoomState = "uninitialized"
	RoomReady         RoomState = "ready"
	RoomFailed        RoomState = "failed"
	RoomClosing       RoomState = "closing"
	RoomClosed        RoomState = "closed"
)

type TransportRole string

const (
	RoleSend    TransportRole = "send"
	RoleReceive TransportRole = "receive"
)

// TransportRequest describes a transport a peer asks for.
type TransportRequest struct {
	Role            TransportRole
	ForceTCP        bool
	RtpCapabilities json.RawMessage
}

// ProducerInfo is what other peers learn about a producer.
type ProducerInfo struct {
	ProducerID     string           `json:"producerId"`
	ProducerPeerID domain.PeerID    `json:"producerPeerId"`
	Kind           domain.MediaKind `json:"kind"`
	Paused         bool             `json:"paused"`
}

// ConsumeParams is returned to the consuming peer. It carries the
// producing peer and kind so the receiver can label the stream.
type ConsumeParams struct {
	ID             string              `json:"id"`
	ProducerID     string              `json:"producerId"`
	PeerID         domain.PeerID       `json:"peerId"`
	Kind           string              `json:"kind"`
	MediaKind      domain.MediaKind    `json:"mediaKind"`
	Type           engine.ConsumerType `json:"type"`
	RtpParameters  json.RawMessage     `json:"rtpParameters"`
	ProducerPaused bool                `json:"producerPaused"`
}

// RoomSnapshot is the join response and getMyRoomInfo result.
type RoomSnapshot struct {
	RoomID       domain.RoomID        `json:"roomId"`
	Self         domain.Participant   `json:"self"`
	Participants []domain.Participant `json:"participants"`
}
