// Package watch provides Watch, an atomic value cell with synchronous and
// asynchronous change notification. It is the universal wait primitive
// taskrt builds everything else — Grant, Task.sleep/await, the runtime's
// weak-notify slots — on top of.
//
// The notification protocol follows eventloop.FastState's style: an atomic
// flag records whether any observer is attached, so a mutation with no
// observers skips detaching the observer list. Every read and write of the
// value, and every change to the observer list, happens under one mutex,
// which is always released before any observer is invoked.
package watch

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/taskrt/status"
)

// observer is a single pending async_wait registration.
type observer[T any] struct {
	fn func(T, error)
}

// Watch is an atomic cell of T with await-not-equal / await-predicate /
// close semantics. T must be comparable so Watch can detect "no change" and
// skip notification: Set(GetValue()) is always a no-op, never notifying.
type Watch[T comparable] struct {
	mu        sync.Mutex
	value     T
	closed    bool
	closeCode status.Code
	observers []observer[T]

	// hasObservers records whether any observer is queued: if false, a
	// mutating method skips detaching the observer list, since there is
	// nothing to wake. It is only ever set to true under mu (when an
	// observer is pushed) and cleared under mu (when the list drains).
	hasObservers atomic.Bool
}

// New constructs a Watch holding the given initial value.
func New[T comparable](initial T) *Watch[T] {
	return &Watch[T]{value: initial}
}

// GetValue returns the current value.
func (w *Watch[T]) GetValue() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value
}

// IsClosed reports whether Close has been called.
func (w *Watch[T]) IsClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// SetValue atomically replaces the value. If it differs from the previous
// value, all observers are woken with the new value.
func (w *Watch[T]) SetValue(next T) {
	w.Modify(func(T) T { return next })
}

// SetValueReturningOld is SetValue, but returns the value that was
// replaced — used by Grant's move/swap/spend-all operations, which need
// the pre-transfer size.
func (w *Watch[T]) SetValueReturningOld(next T) T {
	return w.Modify(func(T) T { return next })
}

// Modify atomically replaces the value with fn(current), returning the
// previous value. This always returns the value observed before the
// transform, regardless of whether T is a primitive or a struct — a single
// uniform convention rather than one that varies by T.
func (w *Watch[T]) Modify(fn func(T) T) T {
	var (
		old       T
		observers []observer[T]
	)
	w.mu.Lock()
	old = w.value
	next := fn(old)
	changed := next != old
	if changed {
		w.value = next
		if w.hasObservers.Load() {
			observers = w.observers
			w.observers = nil
			w.hasObservers.Store(false)
		}
	}
	w.mu.Unlock()

	if changed {
		w.wake(observers, next, nil)
	}
	return old
}

// ModifyIf applies fn to the current value; if fn returns ok=false, the
// Watch is left unchanged and ModifyIf returns (zero, false) without
// retrying. fn is called exactly once: Go's mutex-guarded Modify already
// serializes writers, so there is no concurrent interleaving to retry
// against, unlike a lock-free CAS-loop formulation.
func (w *Watch[T]) ModifyIf(fn func(T) (T, bool)) (T, bool) {
	var (
		zero      T
		observers []observer[T]
		result    T
		ok        bool
	)
	w.mu.Lock()
	next, shouldSet := fn(w.value)
	if shouldSet {
		ok = true
		result = next
		if next != w.value {
			w.value = next
			if w.hasObservers.Load() {
				observers = w.observers
				w.observers = nil
				w.hasObservers.Store(false)
			}
		}
	}
	w.mu.Unlock()

	if ok {
		w.wake(observers, next, nil)
		return result, true
	}
	return zero, false
}

// FetchAdd adds delta to the current value and returns the value prior to
// the add. T must support addition via the supplied add function since Go
// generics cannot express "any numeric type" directly without a type set;
// callers working with ints typically pass `func(a, b int) int { return a + b }`.
func (w *Watch[T]) FetchAdd(delta T, add func(a, b T) T) T {
	return w.Modify(func(cur T) T { return add(cur, delta) })
}

// Close latches the closed state and wakes every observer (and every
// future AsyncWait/AwaitNotEqual caller) with a status built from code. Use
// status.EndOfStream, status.ClosedBeforeEndOfStream, or status.Closed to
// distinguish a graceful end from an abrupt or explicit close.
func (w *Watch[T]) Close(code status.Code) {
	var (
		observers []observer[T]
		value     T
	)
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		w.closeCode = code
		observers = w.observers
		w.observers = nil
		w.hasObservers.Store(false)
		value = w.value
	}
	w.mu.Unlock()

	if observers != nil {
		w.wake(observers, value, status.New(code))
	}
}

// AsyncWait invokes handler(value, nil) as soon as the Watch's value
// differs from lastSeen, or handler(zero, err) immediately if the Watch is
// already closed. Otherwise handler is queued and invoked exactly once,
// from whichever goroutine next changes the value or closes the Watch.
func (w *Watch[T]) AsyncWait(lastSeen T, handler func(T, error)) {
	w.mu.Lock()
	switch {
	case w.closed:
		code := w.closeCode
		w.mu.Unlock()
		var zero T
		handler(zero, status.New(code))
		return
	case w.value != lastSeen:
		cur := w.value
		w.mu.Unlock()
		handler(cur, nil)
		return
	default:
		w.observers = append(w.observers, observer[T]{fn: handler})
		w.hasObservers.Store(true)
		w.mu.Unlock()
	}
}

// AwaitNotEqual blocks until the value differs from lastSeen, returning the
// new value, or returns a *status.Error wrapping the Watch's close code.
func (w *Watch[T]) AwaitNotEqual(lastSeen T) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	w.AsyncWait(lastSeen, func(v T, err error) {
		done <- result{v, err}
	})
	r := <-done
	return r.v, r.err
}

// AwaitTrue blocks until pred(currentValue) is true, re-checking via
// AwaitNotEqual each time the value changes, or the Watch closes.
func (w *Watch[T]) AwaitTrue(pred func(T) bool) (T, error) {
	last := w.GetValue()
	for !pred(last) {
		next, err := w.AwaitNotEqual(last)
		if err != nil {
			return next, err
		}
		last = next
	}
	return last, nil
}

// AwaitEqual is a specialization of AwaitTrue for a single target value.
func (w *Watch[T]) AwaitEqual(target T) error {
	_, err := w.AwaitTrue(func(v T) bool { return v == target })
	return err
}

// AwaitModify behaves like ModifyIf, but when fn declines (returns
// ok=false) it blocks on a value change and retries, instead of returning
// immediately — it terminates only when fn succeeds or the Watch closes.
func (w *Watch[T]) AwaitModify(fn func(T) (T, bool)) (T, error) {
	for {
		cur := w.GetValue()
		if v, ok := w.ModifyIf(fn); ok {
			return v, nil
		}
		if _, err := w.AwaitNotEqual(cur); err != nil {
			var zero T
			return zero, err
		}
	}
}

// ClampMinValue raises the value to v if it is currently lower, using less
// to compare. No-op (and no notification) if the current value is already
// >= v under less.
func (w *Watch[T]) ClampMinValue(v T, less func(a, b T) bool) {
	w.ModifyIf(func(cur T) (T, bool) {
		if less(cur, v) {
			return v, true
		}
		return cur, false
	})
}

// ClampMaxValue lowers the value to v if it is currently higher, using less
// to compare.
func (w *Watch[T]) ClampMaxValue(v T, less func(a, b T) bool) {
	w.ModifyIf(func(cur T) (T, bool) {
		if less(v, cur) {
			return v, true
		}
		return cur, false
	})
}

// wake invokes every observer outside of w.mu, so an observer callback is
// free to re-enter the Watch that just woke it.
func (w *Watch[T]) wake(observers []observer[T], value T, err error) {
	for _, o := range observers {
		o.fn(value, err)
	}
}
