package core

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine/memengine"
)

var (
	clientCaps = json.RawMessage(`{"codecs":[{"kind":"audio","mimeType":"audio/opus"},{"kind":"video","mimeType":"video/VP8"}]}`)
	clientDtls = json.RawMessage(`{"role":"client","fingerprints":[{"algorithm":"sha-256","value":"00"}]}`)
)

type event struct {
	name string
	data any
}

// recSignal records every notification.
type recSignal struct {
	mu     sync.Mutex
	events []event
}

func (s *recSignal) Notify(name string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event{name: name, data: data})
	return nil
}

func (s *recSignal) Close() {}

func (s *recSignal) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.name == name {
			n++
		}
	}
	return n
}

func newTestRoom(t *testing.T, opts ...memengine.Option) *Room {
	t.Helper()
	w, err := memengine.NewWorker(opts...)
	require.NoError(t, err)
	r := NewRoom("r1", w, time.Second)
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r
}

func addPeer(t *testing.T, r *Room, id string, sig SignalConnection) *Peer {
	t.Helper()
	p := NewPeer(domain.Participant{ID: domain.PeerID(id), Name: id}, SessionID("sid-"+id), sig)
	require.NoError(t, r.AddPeer(p))
	return p
}

func newTransport(t *testing.T, r *Room, p *Peer, role TransportRole) string {
	t.Helper()
	ctx := context.Background()
	req := TransportRequest{Role: role}
	if role == RoleReceive {
		req.RtpCapabilities = clientCaps
	}
	params, err := r.CreateTransport(ctx, p.ID(), req)
	require.NoError(t, err)
	require.NoError(t, r.ConnectTransport(ctx, p.ID(), params.ID, clientDtls))
	return params.ID
}

func testRouter(t *testing.T, r *Room) *memengine.Router {
	t.Helper()
	router, err := r.WaitReady(context.Background())
	require.NoError(t, err)
	return router.(*memengine.Router)
}
