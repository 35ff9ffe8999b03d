// Package memengine is an in-process media engine. It keeps the full
// router/transport/producer/consumer object graph and relays RTP between
// producers and consumers in memory, without any network I/O. It backs
// local development and every test that needs a media engine.
package memengine

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/engine"
)

type Option func(*Worker)

// WithRouterGate makes CreateRouter block until gate is closed.
func WithRouterGate(gate <-chan struct{}) Option {
	return func(w *Worker) { w.gate = gate }
}

// WithRouterError makes CreateRouter fail with err.
func WithRouterError(err error) Option {
	return func(w *Worker) { w.routerErr = err }
}

type Worker struct {
	id           string
	fingerprints []webrtc.DTLSFingerprint
	gate         <-chan struct{}
	routerErr    error

	mu      sync.Mutex
	routers map[string]*Router
	closed  bool
}

func NewWorker(opts ...Option) (*Worker, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate dtls key: %w", err)
	}
	cert, err := webrtc.GenerateCertificate(key)
	if err != nil {
		return nil, fmt.Errorf("generate dtls certificate: %w", err)
	}
	fps, err := cert.GetFingerprints()
	if err != nil {
		return nil, fmt.Errorf("dtls fingerprints: %w", err)
	}
	w := &Worker{
		id:           uuid.NewString(),
		fingerprints: fps,
		routers:      make(map[string]*Router),
	}
	for _, opt := range opts {
		opt(w)
	}
	log.Info().Str("module", "engine.mem").Str("worker_id", w.id).Msg("worker started")
	return w, nil
}

// NewWorkers starts n workers sharing the same options.
func NewWorkers(n int, opts ...Option) ([]engine.Worker, error) {
	out := make([]engine.Worker, 0, n)
	for range n {
		w, err := NewWorker(opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) CreateRouter(ctx context.Context) (engine.Router, error) {
	if w.gate != nil {
		select {
		case <-w.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if w.routerErr != nil {
		return nil, w.routerErr
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, engine.ErrClosed
	}
	r := newRouter(w)
	w.routers[r.id] = r
	return r, nil
}

func (w *Worker) removeRouter(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.routers, id)
}

// RouterCount is the number of live routers on this worker.
func (w *Worker) RouterCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.routers)
}

func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	routers := make([]*Router, 0, len(w.routers))
	for _, r := range w.routers {
		routers = append(routers, r)
	}
	w.mu.Unlock()

	for _, r := range routers {
		r.Close()
	}
}
