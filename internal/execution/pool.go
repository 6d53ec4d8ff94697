package execution

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many compile or run steps execute at once. Callers beyond
// the concurrency limit wait in a bounded queue for at most the wait budget.
type Pool struct {
	sem       *semaphore.Weighted
	capacity  int64
	queueSize int64
	wait      time.Duration
	waiting   atomic.Int64
	active    atomic.Int64
}

// NewPool constructs a pool. Non-positive values fall back to defaults.
func NewPool(maxConcurrent, queueSize int, wait time.Duration) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return &Pool{
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		capacity:  int64(maxConcurrent),
		queueSize: int64(queueSize),
		wait:      wait,
	}
}

// Acquire takes one slot. The returned release func must be called exactly once.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	if p.sem.TryAcquire(1) {
		return p.releaser(), nil
	}

	if p.waiting.Add(1) > p.queueSize {
		p.waiting.Add(-1)
		poolRejections.Inc()
		return nil, ErrQueueFull
	}
	defer p.waiting.Add(-1)

	waitCtx, cancel := context.WithTimeout(ctx, p.wait)
	defer cancel()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			poolRejections.Inc()
			return nil, ErrQueueFull
		}
		return nil, err
	}

	return p.releaser(), nil
}

// Stats reports active slots and queued callers.
func (p *Pool) Stats() (active, waiting int64) {
	return p.active.Load(), p.waiting.Load()
}

func (p *Pool) releaser() func() {
	p.active.Add(1)
	poolActive.Inc()

	var once atomic.Bool
	return func() {
		if !once.CompareAndSwap(false, true) {
			return
		}
		p.active.Add(-1)
		poolActive.Dec()
		p.sem.Release(1)
	}
}
