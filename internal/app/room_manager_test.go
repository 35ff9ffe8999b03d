package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
	"github.com/dkeye/Huddle/internal/engine/memengine"
)

func newManager(t *testing.T, workers int, opts ...memengine.Option) *RoomManager {
	t.Helper()
	ws, err := memengine.NewWorkers(workers, opts...)
	require.NoError(t, err)
	pool, err := engine.NewPool(ws...)
	require.NoError(t, err)
	m := NewRoomManager(pool, time.Second)
	t.Cleanup(func() {
		m.Close()
		pool.Close()
	})
	return m
}

func join(t *testing.T, room *core.Room, id string) *core.Peer {
	t.Helper()
	p := core.NewPeer(domain.Participant{ID: domain.PeerID(id), Name: id}, core.SessionID(id), nil)
	require.NoError(t, room.AddPeer(p))
	return p
}

func TestCreateRoomTwice(t *testing.T) {
	m := newManager(t, 1)

	_, err := m.CreateRoom("r1")
	require.NoError(t, err)
	_, err = m.CreateRoom("r1")
	assert.ErrorIs(t, err, core.ErrRoomExists)
	assert.Equal(t, 1, m.Len())
}

func TestGetRoomUnknown(t *testing.T) {
	m := newManager(t, 1)
	_, err := m.GetRoom("nope")
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}

func TestRoomsSpreadOverWorkers(t *testing.T) {
	m := newManager(t, 2)

	a, err := m.CreateRoom("a")
	require.NoError(t, err)
	b, err := m.CreateRoom("b")
	require.NoError(t, err)
	c, err := m.CreateRoom("c")
	require.NoError(t, err)

	ctx := context.Background()
	ra, err := a.WaitReady(ctx)
	require.NoError(t, err)
	rb, err := b.WaitReady(ctx)
	require.NoError(t, err)
	rc, err := c.WaitReady(ctx)
	require.NoError(t, err)

	wa := ra.(*memengine.Router).Worker()
	assert.NotSame(t, wa, rb.(*memengine.Router).Worker())
	assert.Same(t, wa, rc.(*memengine.Router).Worker())
}

func TestListIsSorted(t *testing.T) {
	m := newManager(t, 1)
	for _, id := range []domain.RoomID{"b", "c", "a"} {
		_, err := m.CreateRoom(id)
		require.NoError(t, err)
	}
	list := m.List()
	require.Len(t, list, 3)
	assert.Equal(t, domain.RoomID("a"), list[0].ID)
	assert.Equal(t, domain.RoomID("c"), list[2].ID)
}

func TestRoomRemovedWhenLastPeerLeaves(t *testing.T) {
	m := newManager(t, 1)
	room, err := m.CreateRoom("r1")
	require.NoError(t, err)
	join(t, room, "p1")
	join(t, room, "p2")

	peer, still, err := m.RemovePeer("r1", "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PeerID("p1"), peer.ID())
	assert.Same(t, room, still)
	assert.Equal(t, 1, m.Len())

	_, gone, err := m.RemovePeer("r1", "p2")
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, core.RoomClosed, room.State())

	_, err = m.CreateRoom("r1")
	assert.NoError(t, err, "id is free again")
}

func TestFailedRoomIsDropped(t *testing.T) {
	m := newManager(t, 1, memengine.WithRouterError(errors.New("no router")))
	room, err := m.CreateRoom("r1")
	require.NoError(t, err)
	<-room.Initialized()

	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	_, err = m.GetRoom("r1")
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}
