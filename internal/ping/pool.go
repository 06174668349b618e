package ping

import (
	"context"
	"sync"
)

// Pool is a Prober that bounds the blast radius of a misbehaving dialect
// decoder by running probes on a fixed set of worker goroutines instead of
// the caller's goroutine. Callers depend only on the Prober interface; the
// in-process Checker and the Pool are interchangeable by configuration.
type Pool struct {
	inner Prober
	jobs  chan poolJob

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

type poolJob struct {
	ctx   context.Context
	ep    Endpoint
	reply chan Result
}

// NewPool starts workers goroutines servicing probes through inner.
func NewPool(inner Prober, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	p := &Pool{
		inner: inner,
		jobs:  make(chan poolJob),
		done:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for {
		select {
		case <-p.done:
			return
		case job := <-p.jobs:
			job.reply <- p.inner.Probe(job.ctx, job.ep)
		}
	}
}

// Probe queues the probe onto the pool. If the pool is saturated past the
// endpoint timeout, or shut down, the probe reports offline.
func (p *Pool) Probe(ctx context.Context, ep Endpoint) Result {
	job := poolJob{ctx: ctx, ep: ep, reply: make(chan Result, 1)}
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return Offline()
	case <-p.done:
		return Offline()
	}
	select {
	case res := <-job.reply:
		return res
	case <-ctx.Done():
		return Offline()
	}
}

// Close stops the workers. In-flight probes finish; queued ones are dropped.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
}
