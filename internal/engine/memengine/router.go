package memengine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/engine"
)

type Router struct {
	id     string
	worker *Worker
	logger zerolog.Logger

	mu         sync.Mutex
	closed     bool
	transports map[string]*Transport
	producers  map[string]*Producer
}

// Dump counts the live objects of a router.
type Dump struct {
	Transports int
	Producers  int
	Consumers  int
}

func newRouter(w *Worker) *Router {
	id := uuid.NewString()
	return &Router{
		id:     id,
		worker: w,
		logger: log.With().
			Str("module", "engine.mem").
			Str("router_id", id).
			Logger(),
		transports: make(map[string]*Transport),
		producers:  make(map[string]*Producer),
	}
}

func (r *Router) ID() string { return r.id }

// Worker is the worker that created the router.
func (r *Router) Worker() *Worker { return r.worker }

func (r *Router) RtpCapabilities() json.RawMessage { return routerCapabilities }

func (r *Router) CanConsume(producerID string, raw json.RawMessage) bool {
	p := r.producer(producerID)
	if p == nil {
		return false
	}
	var caps rtpCapabilities
	if err := json.Unmarshal(raw, &caps); err != nil {
		r.logger.Debug().Err(err).Msg("unparsable rtp capabilities")
		return false
	}
	return caps.supports(p.params.Codecs[0].MimeType)
}

func (r *Router) CreateWebRtcTransport(_ context.Context, opts engine.TransportOptions) (engine.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, engine.ErrClosed
	}
	t := newTransport(r, opts)
	r.transports[t.id] = t
	r.logger.Debug().
		Str("transport_id", t.id).
		Bool("force_tcp", opts.ForceTCP).
		Msg("transport created")
	return t, nil
}

func (r *Router) producer(id string) *Producer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.producers[id]
}

func (r *Router) addProducer(p *Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.id] = p
}

func (r *Router) removeProducer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.producers, id)
}

func (r *Router) removeTransport(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transports, id)
}

func (r *Router) Dump() Dump {
	r.mu.Lock()
	transports := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	d := Dump{Transports: len(r.transports), Producers: len(r.producers)}
	r.mu.Unlock()

	for _, t := range transports {
		d.Consumers += t.consumerCount()
	}
	return d
}

func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	transports := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}
	r.worker.removeRouter(r.id)
	r.logger.Debug().Msg("router closed")
}
