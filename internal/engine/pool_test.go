package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWorker struct {
	id     string
	closed bool
}

func (w *stubWorker) ID() string { return w.id }
func (w *stubWorker) CreateRouter(context.Context) (Router, error) { return nil, nil }
func (w *stubWorker) Close() { w.closed = true }

func TestPoolRoundRobinWraps(t *testing.T) {
	a, b, c := &stubWorker{id: "a"}, &stubWorker{id: "b"}, &stubWorker{id: "c"}
	p, err := NewPool(a, b, c)
	require.NoError(t, err)

	var got []string
	for range 7 {
		got = append(got, p.Next().ID())
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c", "a"}, got)

	p.Close()
	assert.True(t, a.closed && b.closed && c.closed)
}

func TestPoolRejectsEmpty(t *testing.T) {
	_, err := NewPool()
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestStateDegraded(t *testing.T) {
	assert.True(t, StateFailed.Degraded())
	assert.True(t, StateDisconnected.Degraded())
	assert.True(t, StateClosed.Degraded())
	assert.False(t, StateConnected.Degraded())
	assert.False(t, StateConnecting.Degraded())
}
