package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/Huddle/internal/domain"
)

func TestPinBoardSinglePin(t *testing.T) {
	var b PinBoard
	ids := []domain.PeerID{"a", "b", "c"}

	assert.True(t, b.Toggle("a"))
	assert.True(t, b.Toggle("b"))

	snap := b.Snapshot(ids)
	assert.Equal(t, map[domain.PeerID]bool{"a": false, "b": true, "c": false}, snap)

	assert.False(t, b.Toggle("b"))
	_, ok := b.Pinned()
	assert.False(t, ok)

	b.Toggle("c")
	b.Forget("a")
	id, ok := b.Pinned()
	assert.True(t, ok)
	assert.Equal(t, domain.PeerID("c"), id)
	b.Forget("c")
	_, ok = b.Pinned()
	assert.False(t, ok)
}
