package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParticipantValidatesName(t *testing.T) {
	_, err := NewParticipant(NewPeerID(), "", false, "")
	assert.ErrorIs(t, err, ErrNameEmpty)

	_, err = NewParticipant(NewPeerID(), strings.Repeat("x", MaxNameLen+1), false, "")
	assert.ErrorIs(t, err, ErrNameTooLong)

	p, err := NewParticipant("p1", "alice", true, "pic.png")
	require.NoError(t, err)
	assert.Equal(t, PeerID("p1"), p.ID)
	assert.True(t, p.IsTrainer)
}

func TestParseMediaKind(t *testing.T) {
	k, err := ParseMediaKind("screen")
	require.NoError(t, err)
	assert.Equal(t, KindScreen, k)
	assert.Equal(t, "video", k.EngineKind())
	assert.Equal(t, "audio", KindAudio.EngineKind())

	_, err = ParseMediaKind("data")
	assert.ErrorIs(t, err, ErrUnknownMediaKind)
}

func TestParseRoomID(t *testing.T) {
	_, err := ParseRoomID("")
	assert.ErrorIs(t, err, ErrRoomIDEmpty)
	_, err = ParseRoomID(strings.Repeat("r", MaxRoomIDLen+1))
	assert.ErrorIs(t, err, ErrRoomIDTooLong)
	id, err := ParseRoomID("r1")
	require.NoError(t, err)
	assert.Equal(t, RoomID("r1"), id)
}
