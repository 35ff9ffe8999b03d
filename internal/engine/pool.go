package engine

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Pool hands out workers round-robin.
type Pool struct {
	mu      sync.Mutex
	workers []Worker
	next    int
}

func NewPool(workers ...Worker) (*Pool, error) {
	if len(workers) == 0 {
		return nil, ErrEmptyPool
	}
	return &Pool{workers: workers}, nil
}

func (p *Pool) Next() Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.workers[p.next]
	p.next = (p.next + 1) % len(p.workers)
	return w
}

func (p *Pool) Size() int { return len(p.workers) }

func (p *Pool) Close() {
	for _, w := range p.workers {
		w.Close()
		log.Info().Str("module", "engine").Str("worker_id", w.ID()).Msg("worker closed")
	}
}
