package work

import "golang.org/x/sync/errgroup"

// Executor runs callables, either inline (Dispatch) or queued for
// independent execution (Post). *Pool and task.Inline both satisfy this —
// it is the same shape as task.Executor, kept as a separate type here so
// this package doesn't need to import task.
type Executor interface {
	Dispatch(fn func())
	Post(fn func())
}

// Context tracks a set of callables submitted via AsyncRun/AsyncRunErr
// against an Executor, so that a caller can Join to wait for all of them to
// finish without needing its own WaitGroup. This is the Go analogue of
// WorkContext: "a handle used to submit async work and later wait for it
// all to complete."
//
// Joining is tracked with golang.org/x/sync/errgroup rather than a bare
// sync.WaitGroup: errgroup.Group already gives AsyncRunErr's first-error
// capture for free, and Context simply defaults every plain AsyncRun
// callable to a nil-returning errgroup.Go call.
type Context struct {
	executor Executor
	g        *errgroup.Group
}

// NewContext wraps executor in a Context.
func NewContext(executor Executor) *Context {
	return &Context{executor: executor, g: new(errgroup.Group)}
}

// AsyncRun submits fn to run on the underlying Executor, tracking it for
// Join.
func (c *Context) AsyncRun(fn func()) {
	c.AsyncRunErr(func() error {
		fn()
		return nil
	})
}

// AsyncRunErr submits fn to run on the underlying Executor, tracking both
// its completion (for Join) and any error it returns (returned by JoinErr).
// errgroup.Group retains only the first non-nil error across
// every AsyncRunErr call in this Context.
func (c *Context) AsyncRunErr(fn func() error) {
	c.g.Go(func() error {
		done := make(chan error, 1)
		c.executor.Post(func() {
			done <- fn()
		})
		return <-done
	})
}

// Join blocks until every fn submitted via AsyncRun/AsyncRunErr has
// returned, discarding any error — callers that need the error should use
// JoinErr instead.
func (c *Context) Join() {
	_ = c.g.Wait()
}

// JoinErr blocks until every fn submitted via AsyncRun/AsyncRunErr has
// returned, and returns the first non-nil error encountered, if any.
func (c *Context) JoinErr() error {
	return c.g.Wait()
}

// ScopedWorkContext is a Context meant to be used with defer Close(): Go has
// no destructor to automatically join outstanding work when a scope ends,
// so Close makes that join explicit.
type ScopedWorkContext struct {
	*Context
}

// NewScopedWorkContext wraps executor in a ScopedWorkContext.
func NewScopedWorkContext(executor Executor) *ScopedWorkContext {
	return &ScopedWorkContext{Context: NewContext(executor)}
}

// Close joins all outstanding work submitted via AsyncRun, discarding any
// error. Intended to be deferred immediately after construction.
func (s *ScopedWorkContext) Close() {
	s.Join()
}
