package protocol

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// Request methods.
const (
	MethodCreateRoom               = "createRoom"
	MethodJoin                     = "join"
	MethodGetParticipants          = "getParticipants"
	MethodGetRouterRtpCapabilities = "getRouterRtpCapabilities"
	MethodCreateWebRtcTransport    = "createWebRtcTransport"
	MethodConnectTransport         = "connectTransport"
	MethodProduce                  = "produce"
	MethodConsume                  = "consume"
	MethodRestartIce               = "restartIce"
	MethodKickParticipant          = "kickParticipant"
	MethodGetMyRoomInfo            = "getMyRoomInfo"
	MethodGetProducers             = "getProducers"
	MethodCloseProducer            = "closeProducer"
	MethodPauseProducer            = "pauseProducer"
	MethodResumeProducer           = "resumeProducer"
	MethodResumeConsumer           = "resumeConsumer"
	MethodExitRoom                 = "exitRoom"
	MethodPing                     = "ping"
)

// Server events.
const (
	EventNewPeer              = "newPeer"
	EventNewProducers         = "newProducers"
	EventPeerClosed           = "peerClosed"
	EventConsumerClosed       = "consumerClosed"
	EventProducerClosed       = "producerClosed"
	EventKickedFromRoom       = "kickedFromRoom"
	EventProducerStateChanged = "producerStateChanged"
)

type CreateRoomRequest struct {
	RoomID string `json:"room_id"`
}

type CreateRoomResponse struct {
	RoomID domain.RoomID `json:"room_id"`
}

type JoinRequest struct {
	Name       string `json:"name"`
	RoomID     string `json:"room_id"`
	IsTrainer  bool   `json:"isTrainer"`
	ProfilePic string `json:"profile_pic"`
}

type GetParticipantsRequest struct {
	RoomID string `json:"room_id"`
}

type GetParticipantsResponse struct {
	Participants []domain.Participant `json:"participants"`
	IsTrainer    bool                 `json:"isTrainer"`
}

type CreateTransportRequest struct {
	ForceTCP        bool            `json:"forceTcp"`
	Producing       bool            `json:"producing"`
	Consuming       bool            `json:"consuming"`
	RtpCapabilities json.RawMessage `json:"rtpCapabilities,omitempty"`
}

// Role picks the transport role. Without explicit flags a request that
// carries rtpCapabilities is for receiving.
func (r CreateTransportRequest) Role() core.TransportRole {
	switch {
	case r.Producing:
		return core.RoleSend
	case r.Consuming:
		return core.RoleReceive
	case len(r.RtpCapabilities) > 0 && string(r.RtpCapabilities) != "null":
		return core.RoleReceive
	}
	return core.RoleSend
}

type ConnectTransportRequest struct {
	TransportID    string          `json:"transport_id"`
	DtlsParameters json.RawMessage `json:"dtlsParameters"`
}

type ProduceAppData struct {
	MediaTag string `json:"mediaTag,omitempty"`
}

type ProduceRequest struct {
	TransportID   string          `json:"producerTransportId"`
	Kind          string          `json:"kind"`
	RtpParameters json.RawMessage `json:"rtpParameters"`
	AppData       ProduceAppData  `json:"appData"`
}

// MediaKind resolves screen shares sent as video with a screen media tag.
func (r ProduceRequest) MediaKind() (domain.MediaKind, error) {
	if r.Kind == "video" && r.AppData.MediaTag == string(domain.KindScreen) {
		return domain.KindScreen, nil
	}
	return domain.ParseMediaKind(r.Kind)
}

type ProduceResponse struct {
	ProducerID string `json:"producer_id"`
}

type ConsumeRequest struct {
	TransportID     string          `json:"consumerTransportId"`
	ProducerID      string          `json:"producerId"`
	RtpCapabilities json.RawMessage `json:"rtpCapabilities"`
}

type RestartIceRequest struct {
	TransportID string `json:"transportId"`
}

type RestartIceResponse struct {
	IceParameters json.RawMessage `json:"iceParameters"`
}

type KickRequest struct {
	PeerID string `json:"peerId"`
}

type ProducerRequest struct {
	ProducerID string `json:"producerId"`
}

type ConsumerRequest struct {
	ConsumerID string `json:"consumerId"`
}

type ConsumerClosed struct {
	ConsumerID string `json:"consumerId"`
}

type ProducerClosed struct {
	ProducerID string           `json:"producerId"`
	Kind       domain.MediaKind `json:"kind"`
}

type PeerClosed struct {
	PeerID domain.PeerID `json:"peerId"`
	Name   string        `json:"name"`
}

type KickedFromRoom struct {
	RoomID domain.RoomID `json:"roomId"`
	By     domain.PeerID `json:"by"`
}

type Pong struct {
	Time int64 `json:"time"`
}
