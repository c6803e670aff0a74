// Package task implements a cooperative Task scheduler: a
// single-goroutine-at-a-time execution context built on top of
// continuation.Continuation, with yield/sleep/await/join operations and a
// completion-handler list for "notify me when this task finishes."
package task

import "sync/atomic"

// Flag is one bit of a Task's state bitset, grounded on
// eventloop.FastState's lock-free CAS pattern but generalized from a single
// mutually-exclusive state value to independent flags, since a Task's state
// is several independently-set/cleared bits rather than one enumerated
// state.
type Flag uint32

const (
	// FlagNeedSignal is set while the task is about to suspend and is
	// prepared to receive a wakeup signal; paired with FlagHaveSignal to
	// detect a wake that raced ahead of the suspend.
	FlagNeedSignal Flag = 1 << iota
	// FlagHaveSignal is set when a wake arrives before the task has
	// finished suspending; checked-and-cleared by the task on its next
	// suspend attempt so the wake isn't lost.
	FlagHaveSignal
	// FlagSuspended is set for the entire time the task's goroutine is
	// parked inside Suspend, cleared the instant it resumes.
	FlagSuspended
	// FlagTerminated is set once the task function has returned or
	// panicked; terminal, never cleared.
	FlagTerminated
	// FlagStackTrace requests that an already-suspended task capture a
	// stack trace at its current suspension point, on a dedicated resume,
	// for diagnostics.
	FlagStackTrace
	// FlagCompletionHandlersClosed is set once the completion-handler
	// list has been drained at termination; any CallWhenDone call that
	// sees it set must invoke its handler immediately instead of queuing.
	FlagCompletionHandlersClosed
)

// State is a lock-free bitset of Flag values.
type State struct {
	v atomic.Uint32
}

// Load returns every flag currently set.
func (s *State) Load() Flag {
	return Flag(s.v.Load())
}

// Has reports whether every bit in flags is currently set.
func (s *State) Has(flags Flag) bool {
	return Flag(s.v.Load())&flags == flags
}

// Set atomically ORs flags into the state and returns the state as it was
// immediately before.
func (s *State) Set(flags Flag) Flag {
	for {
		old := s.v.Load()
		if s.v.CompareAndSwap(old, old|uint32(flags)) {
			return Flag(old)
		}
	}
}

// Clear atomically clears flags from the state and returns the state as it
// was immediately before.
func (s *State) Clear(flags Flag) Flag {
	for {
		old := s.v.Load()
		if s.v.CompareAndSwap(old, old&^uint32(flags)) {
			return Flag(old)
		}
	}
}

// TestAndSet sets flags if and only if none of them are already set,
// returning true on success. Only the bits in flags are tested; other bits
// already set do not make it fail.
func (s *State) TestAndSet(flags Flag) bool {
	for {
		old := s.v.Load()
		if old&uint32(flags) != 0 {
			return false
		}
		if s.v.CompareAndSwap(old, old|uint32(flags)) {
			return true
		}
	}
}
