package task

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// getGoroutineID parses the calling goroutine's ID out of its own stack
// trace header ("goroutine NNN [running]:..."), grounded on
// eventloop.Loop's getGoroutineID: Go exposes no public goroutine-ID API, but
// runtime.Stack always prefixes the dump with it.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// current maps a goroutine ID to the Task currently running its fn on that
// goroutine. eventloop.Loop only ever has one loop goroutine, so it gets by
// with a single atomic.Uint64 plus isLoopThread; a Task spawns a fresh
// goroutine per instance and many may run concurrently, so this registry
// generalizes that to a map keyed by goroutine ID, one entry per live task
// goroutine.
var current sync.Map // goroutine ID (uint64) -> *Task

// Current returns the Task whose fn is currently executing on the calling
// goroutine, or nil if the calling goroutine is not running inside any
// Task's fn.
func Current() *Task {
	v, ok := current.Load(getGoroutineID())
	if !ok {
		return nil
	}
	return v.(*Task)
}

// Yield suspends the current task, same as (*Task).Yield, if called from
// within one; otherwise it forwards to the OS thread yield, per spec.
func Yield() {
	if t := Current(); t != nil {
		t.Yield()
		return
	}
	runtime.Gosched()
}

// Sleep suspends the current task for at least d, same as (*Task).Sleep, if
// called from within one; otherwise it forwards to the OS sleep.
func Sleep(d time.Duration) {
	if t := Current(); t != nil {
		t.Sleep(d)
		return
	}
	time.Sleep(d)
}

// AwaitCurrent suspends the current task until resolve is invoked, same as
// Await, if called from within one; otherwise it blocks the calling
// goroutine on a latch-backed spin, since there is no task to suspend.
func AwaitCurrent[R any](start func(resolve func(R))) R {
	if t := Current(); t != nil {
		return Await(t, start)
	}
	var (
		latch  atomic.Bool
		result R
	)
	start(func(v R) {
		result = v
		latch.Store(true)
	})
	for !latch.Load() {
		runtime.Gosched()
	}
	return result
}
