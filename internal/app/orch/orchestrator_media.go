package orch

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
)

func (o *Orchestrator) RtpCapabilities(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID) (json.RawMessage, error) {
	room, _, err := o.member(roomID, peerID)
	if err != nil {
		return nil, err
	}
	return room.RtpCapabilities(ctx)
}

func (o *Orchestrator) CreateTransport(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, req core.TransportRequest) (engine.TransportParams, error) {
	room, _, err := o.member(roomID, peerID)
	if err != nil {
		return engine.TransportParams{}, err
	}
	return room.CreateTransport(ctx, peerID, req)
}

func (o *Orchestrator) ConnectTransport(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, transportID string, dtls json.RawMessage) error {
	room, _, err := o.member(roomID, peerID)
	if err != nil {
		return err
	}
	return room.ConnectTransport(ctx, peerID, transportID, dtls)
}

func (o *Orchestrator) RestartIce(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, transportID string) (json.RawMessage, error) {
	room, _, err := o.member(roomID, peerID)
	if err != nil {
		return nil, err
	}
	return room.RestartIce(ctx, peerID, transportID)
}

// Produce returns the producer id; created is false when the peer already
// had a producer of that kind. New producers are announced separately with
// AnnounceProducer once the id has reached the producer.
func (o *Orchestrator) Produce(
	ctx context.Context,
	roomID domain.RoomID,
	peerID domain.PeerID,
	transportID string,
	kind domain.MediaKind,
	rtpParameters json.RawMessage,
) (string, bool, error) {
	room, _, err := o.member(roomID, peerID)
	if err != nil {
		return "", false, err
	}
	return room.Produce(ctx, peerID, transportID, kind, rtpParameters)
}

func (o *Orchestrator) AnnounceProducer(roomID domain.RoomID, producerID string) {
	room, err := o.Rooms.GetRoom(roomID)
	if err != nil {
		return
	}
	o.applyPolicy(room, room.AnnounceProducer(producerID))
}

func (o *Orchestrator) CloseProducer(roomID domain.RoomID, peerID domain.PeerID, producerID string) error {
	room, _, err := o.member(roomID, peerID)
	if err != nil {
		return err
	}
	return room.CloseProducer(peerID, producerID)
}

func (o *Orchestrator) PauseProducer(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, producerID string) error {
	return o.setPaused(ctx, roomID, peerID, producerID, true)
}

func (o *Orchestrator) ResumeProducer(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, producerID string) error {
	return o.setPaused(ctx, roomID, peerID, producerID, false)
}

func (o *Orchestrator) setPaused(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, producerID string, paused bool) error {
	room, _, err := o.member(roomID, peerID)
	if err != nil {
		return err
	}
	var info core.ProducerInfo
	if paused {
		info, err = room.PauseProducer(ctx, peerID, producerID)
	} else {
		info, err = room.ResumeProducer(ctx, peerID, producerID)
	}
	if err != nil {
		return err
	}
	o.publish(room, peerID, EventProducerStateChanged, info)
	return nil
}

func (o *Orchestrator) Consume(
	ctx context.Context,
	roomID domain.RoomID,
	peerID domain.PeerID,
	transportID string,
	producerID string,
	rtpCapabilities json.RawMessage,
) (*core.ConsumeParams, error) {
	room, _, err := o.member(roomID, peerID)
	if err != nil {
		return nil, err
	}
	return room.Consume(ctx, peerID, transportID, producerID, rtpCapabilities)
}

func (o *Orchestrator) ResumeConsumer(ctx context.Context, roomID domain.RoomID, peerID domain.PeerID, consumerID string) error {
	room, _, err := o.member(roomID, peerID)
	if err != nil {
		return err
	}
	return room.ResumeConsumer(ctx, peerID, consumerID)
}

// Producers is the snapshot pull a peer makes after joining: every active
// producer in the room except its own.
func (o *Orchestrator) Producers(roomID domain.RoomID, peerID domain.PeerID) ([]core.ProducerInfo, error) {
	room, _, err := o.member(roomID, peerID)
	if err != nil {
		return nil, err
	}
	return room.ProducerListForPeer(peerID), nil
}
