package domain

import "errors"

const MaxRoomIDLen = 64

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

type RoomID string

func ParseRoomID(raw string) (RoomID, error) {
	if raw == "" {
		return "", ErrRoomIDEmpty
	}
	if len(raw) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	return RoomID(raw), nil
}

// RoomInfo is the read-only listing entry for a room.
type RoomInfo struct {
	ID        RoomID `json:"roomId"`
	PeerCount int    `json:"peerCount"`
	Ready     bool   `json:"ready"`
}
