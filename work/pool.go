// Package work implements the executor abstraction that Task uses to
// dispatch and post resumptions, plus a parallel merge algorithm built on
// top of it.
package work

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool is a bounded-concurrency executor: Post spawns a goroutine per
// callable, gated by a weighted semaphore so at most capacity run at once,
// the goroutine-per-task analogue of a fixed-size native thread pool.
// Dispatch always runs inline, since the caller is already "inside" the
// pool's concurrency budget.
//
// Loosely modelled on microbatch.Batcher, adapted from a batching queue to a
// raw executor that takes only a capacity; the concurrency bound itself is
// golang.org/x/sync/semaphore
// rather than a fixed worker-goroutine count, since a semaphore composes
// more simply with Post's fire-and-forget contract.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
	ctx context.Context
}

// NewPool constructs a Pool allowing up to capacity concurrently-running
// callables. capacity <= 0 is treated as 1.
func NewPool(capacity int64) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{
		sem: semaphore.NewWeighted(capacity),
		ctx: context.Background(),
	}
}

// Post schedules fn to run on a new goroutine as soon as a capacity slot is
// free.
func (p *Pool) Post(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		fn()
	}()
}

// Dispatch runs fn inline, on the calling goroutine.
func (p *Pool) Dispatch(fn func()) {
	fn()
}

// Close waits for every callable submitted via Post to finish.
func (p *Pool) Close() {
	p.wg.Wait()
}
