package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryJoinOnce(t *testing.T) {
	r := NewRegistry()
	r.Bind("p1", "sid", nil)

	assert.True(t, r.Join("p1", "r1"))
	assert.False(t, r.Join("p1", "r2"))
	room, ok := r.RoomOf("p1")
	assert.True(t, ok)
	assert.EqualValues(t, "r1", room)

	r.Leave("p1")
	_, ok = r.RoomOf("p1")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Count())

	r.Unbind("p1")
	assert.Equal(t, 0, r.Count())
}

func TestRegistryCancel(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	r.Bind("p1", "sid", cancel)

	assert.False(t, r.Cancel("p2"))
	assert.True(t, r.Cancel("p1"))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestSimplePolicyKicks(t *testing.T) {
	assert.Equal(t, KickMember, SimplePolicy{}.OnBackPressure(nil, nil))
}
