// Package continuation implements a stackful-coroutine primitive: a unit of
// work that can suspend mid-execution and be resumed later, backed by a
// goroutine and a pair of handoff channels rather than a native stack swap.
//
// Go has no stackful-coroutine or fiber primitive, but it has goroutines
// and channels, which give an equivalent rendezvous: a Continuation pairs
// one dedicated goroutine (running the user function) with a pair of
// unbuffered channels used to hand control back and forth one direction at
// a time. Only one side is ever runnable at once: at most one of the two
// channels ever has a pending value. Task keeps a single Continuation per
// task rather than a separate pair of caller/callee handles, since the
// channel handshake already enforces single ownership without needing to
// track which handle is "live" — see DESIGN.md for the open-question note.
package continuation

import (
	"runtime/debug"

	"github.com/joeycumines/taskrt/status"
)

// Continuation is a handle to a suspendable execution context running fn
// on a dedicated goroutine.
type Continuation struct {
	resumeCh    chan struct{}
	suspendedCh chan struct{}
	started     bool
	terminated  bool
	fn          func(*Continuation)

	panicVal   any
	panicStack []byte
}

// New constructs a Continuation that will run fn (on its own goroutine) the
// first time Resume is called. fn receives the Continuation so it can call
// Suspend from within.
func New(fn func(*Continuation)) *Continuation {
	if fn == nil {
		status.Panic("continuation: nil fn")
	}
	return &Continuation{
		resumeCh:    make(chan struct{}),
		suspendedCh: make(chan struct{}),
		fn:          fn,
	}
}

// Resume activates the continuation: on the first call it starts fn on a
// new goroutine; on subsequent calls it wakes the goroutine from its last
// Suspend call. Either way, Resume blocks the calling goroutine until fn
// next calls Suspend, or fn returns (in which case Resume returns
// terminated=true and all future Resume calls are no-ops returning true
// immediately).
func (c *Continuation) Resume() (terminated bool) {
	if c.terminated {
		return true
	}
	if !c.started {
		c.started = true
		go c.run()
	} else {
		c.resumeCh <- struct{}{}
	}
	<-c.suspendedCh
	return c.terminated
}

// run is fn's dedicated goroutine body. A panic escaping fn must not unwind
// past this goroutine: that would take the whole process down, rather than
// terminating only the one task, per the "no exception crosses the
// continuation boundary" contract. The recover here is the only place that
// contract can be enforced, since by the time Resume observes terminated=true
// the panicking goroutine is long gone; Panic exposes what was recovered so
// the caller (task.Task) can log it and convert it to normal termination.
func (c *Continuation) run() {
	defer func() {
		if r := recover(); r != nil {
			c.panicVal = r
			c.panicStack = debug.Stack()
		}
		c.terminated = true
		c.suspendedCh <- struct{}{}
	}()
	c.fn(c)
}

// Panic returns the value recovered from a panic that escaped fn, and the
// stack trace captured at the point of recovery, or (nil, nil) if fn
// returned normally. Only meaningful once Terminated reports true.
func (c *Continuation) Panic() (val any, stack []byte) {
	return c.panicVal, c.panicStack
}

// Suspend hands control back to whichever goroutine is blocked in Resume,
// and blocks the calling goroutine until Resume is called again. It must
// only be called from within the fn passed to New, on the Continuation's
// own goroutine.
func (c *Continuation) Suspend() {
	c.suspendedCh <- struct{}{}
	<-c.resumeCh
}

// Terminated reports whether fn has returned.
func (c *Continuation) Terminated() bool {
	return c.terminated
}
