// Package runtime implements the process-wide Runtime singleton: a default
// Pool sized to the container's actual CPU quota, plus a bank of
// weak-notify slots used for hash-keyed pub/sub wakeups.
package runtime

import (
	"fmt"
	goruntime "runtime"
	"sync"

	"github.com/joeycumines/taskrt/internal/obslog"
	"github.com/joeycumines/taskrt/watch"
	"github.com/joeycumines/taskrt/work"
	"go.uber.org/automaxprocs/maxprocs"
)

const defaultSlotCount = 256

// Options configures a Runtime. The zero value is valid and picks defaults.
type Options struct {
	// Workers is the Pool's concurrency bound. Defaults to
	// runtime.GOMAXPROCS(0), after automaxprocs has had a chance to set it
	// from the container's CPU quota.
	Workers int
	// Slots is the number of weak-notify slots. Defaults to 256.
	Slots int
	// Logger receives structured diagnostics. Defaults to a discarding
	// logger.
	Logger *obslog.Logger
}

// Runtime is a process-wide worker pool plus a notification bank. A native
// runtime might pin one OS thread per CPU; Go's scheduler already
// multiplexes goroutines onto OS threads, so rather than pinning threads,
// Runtime sizes its Pool to automaxprocs' corrected GOMAXPROCS — the same
// "don't oversubscribe the container" goal, reached the idiomatic Go way.
type Runtime struct {
	log   *obslog.Logger
	pool  *work.Pool
	slots []*watch.Watch[uint64]

	undoMaxProcs func()

	haltOnce sync.Once
	doneCh   chan struct{}
}

var (
	singleton     *Runtime
	singletonOnce sync.Once
)

// Default returns the process-wide Runtime singleton, constructing it with
// default Options on first use.
func Default() *Runtime {
	singletonOnce.Do(func() {
		singleton = New(Options{})
	})
	return singleton
}

// New constructs an independent Runtime. Most callers want Default; New is
// for tests and for embedding multiple isolated runtimes in one process.
func New(opts Options) *Runtime {
	log := opts.Logger
	if log == nil {
		log = obslog.Noop()
	}

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Info().Log(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		undo = func() {}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = goruntime.GOMAXPROCS(0)
	}

	slotCount := opts.Slots
	if slotCount <= 0 {
		slotCount = defaultSlotCount
	}
	slots := make([]*watch.Watch[uint64], slotCount)
	for i := range slots {
		slots[i] = watch.New[uint64](0)
	}

	return &Runtime{
		log:          log,
		pool:         work.NewPool(int64(workers)),
		slots:        slots,
		undoMaxProcs: undo,
		doneCh:       make(chan struct{}),
	}
}

// Pool returns the Runtime's underlying executor.
func (r *Runtime) Pool() *work.Pool {
	return r.pool
}

// Post schedules fn to run on the Runtime's Pool.
func (r *Runtime) Post(fn func()) {
	r.pool.Post(fn)
}

// Dispatch runs fn inline.
func (r *Runtime) Dispatch(fn func()) {
	r.pool.Dispatch(fn)
}

// slotFor maps a hash key onto one of the Runtime's fixed notify slots.
// Distinct keys can and will collide onto the same slot once there are more
// keys than slots: a waiter woken via Slot must re-check its own predicate,
// which is exactly the "weak" in weak-notify.
func (r *Runtime) slotFor(key uint64) *watch.Watch[uint64] {
	return r.slots[key%uint64(len(r.slots))]
}

// Notify bumps the generation counter of the slot associated with key,
// waking every waiter on that slot (and, due to collisions, possibly
// waiters on unrelated keys too).
func (r *Runtime) Notify(key uint64) {
	r.slotFor(key).Modify(func(v uint64) uint64 { return v + 1 })
}

// Slot returns the weak-notify slot associated with key, for a caller that
// wants to AwaitNotEqual its current generation directly.
func (r *Runtime) Slot(key uint64) *watch.Watch[uint64] {
	return r.slotFor(key)
}

// Halt idempotently shuts the Runtime down: it waits for all outstanding
// Pool work to finish and restores the pre-Runtime GOMAXPROCS. Safe to call
// more than once, and safe to call concurrently with Join.
func (r *Runtime) Halt() {
	r.haltOnce.Do(func() {
		r.pool.Close()
		r.undoMaxProcs()
		close(r.doneCh)
	})
}

// Join blocks until Halt has been called (by any goroutine) and has
// finished.
func (r *Runtime) Join() {
	<-r.doneCh
}
