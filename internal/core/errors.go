package core

import "errors"

var (
	ErrRoomExists               = errors.New("room already exists")
	ErrRoomNotFound             = errors.New("room not found")
	ErrRoomClosed               = errors.New("room closed")
	ErrPeerNotFound             = errors.New("peer not found")
	ErrPeerClosed               = errors.New("peer closed")
	ErrTransportNotFound        = errors.New("transport not found")
	ErrProducerNotFound         = errors.New("producer not found")
	ErrConsumerNotFound         = errors.New("consumer not found")
	ErrNotReady                 = errors.New("router not ready")
	ErrNotAuthorized            = errors.New("not authorized")
	ErrIncompatibleCapabilities = errors.New("incompatible rtp capabilities")
	ErrEngine                   = errors.New("media engine error")
)
