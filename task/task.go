package task

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/taskrt/continuation"
	"github.com/joeycumines/taskrt/handler"
	"github.com/joeycumines/taskrt/internal/obslog"
	"github.com/joeycumines/taskrt/status"
)

// Executor runs callables on behalf of a Task. Dispatch may run fn inline on
// the calling goroutine (used when already inside worker context and no
// further queuing is needed); Post always queues fn for later, independent
// execution. Both work.Pool and an ad-hoc inline executor satisfy this.
type Executor interface {
	Dispatch(fn func())
	Post(fn func())
}

// inlineExecutor runs everything synchronously; a Task can be driven without
// any worker pool, on any executor, including the calling goroutine itself.
type inlineExecutor struct{}

func (inlineExecutor) Dispatch(fn func()) { fn() }
func (inlineExecutor) Post(fn func())     { fn() }

// Inline is an Executor that runs every callable synchronously, on whichever
// goroutine submitted it.
var Inline Executor = inlineExecutor{}

// maxDispatchDepth bounds the number of consecutive inline Dispatch calls
// before a resume is forced through Post instead, a trampoline that keeps a
// long chain of back-to-back Yield calls from growing the host goroutine's
// stack unboundedly.
const maxDispatchDepth = 8

type pendingAction int

const (
	actionNone pendingAction = iota
	actionYield
	actionSleep
)

// Task is a cooperatively-scheduled execution context: fn runs on its own
// goroutine (via continuation.Continuation) one resume at a time, and may
// suspend itself with Yield, Sleep or Await. Callers drive it forward by way
// of an Executor rather than calling Resume directly.
type Task struct {
	cont     *continuation.Continuation
	state    State
	priority atomic.Int32

	executor Executor
	fn       func(*Task)

	pendingAction pendingAction
	sleepDuration time.Duration

	sleepTimerMu sync.Mutex
	sleepTimer   *time.Timer

	completionMu       sync.Mutex
	completionHandlers handler.List[*Task]

	// resumeMu serializes every call into cont.Resume. Continuation is not
	// safe for concurrent Resume calls; both a real wakeup (timer fire,
	// Wake, Await resolve) and a diagnostic RequestStackTrace capture can
	// each trigger an independent posted resume, so all of them funnel
	// through this lock rather than relying on there only ever being one
	// pending trigger at a time.
	resumeMu sync.Mutex

	doneCh chan struct{}
	once   sync.Once

	log *obslog.Logger

	panicVal   any
	panicStack []byte
	stackTrace []byte
	stackMu    sync.Mutex
}

// Option configures a Task at construction time, following the teacher's
// functional-options convention (eventloop/options.go).
type Option func(*Task)

// WithLogger sets the logger a Task uses to report a panic recovered from
// its fn. The default is obslog.Noop.
func WithLogger(log *obslog.Logger) Option {
	return func(t *Task) { t.log = log }
}

// New constructs a Task that will run fn the first time it is started. If
// executor is nil, Inline is used.
func New(fn func(*Task), executor Executor, opts ...Option) *Task {
	if fn == nil {
		status.Panic("task: nil fn")
	}
	if executor == nil {
		executor = Inline
	}
	t := &Task{
		executor: executor,
		fn:       fn,
		doneCh:   make(chan struct{}),
		log:      obslog.Noop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.cont = continuation.New(func(c *continuation.Continuation) {
		gid := getGoroutineID()
		current.Store(gid, t)
		defer current.Delete(gid)
		fn(t)
	})
	return t
}

// Start begins executing the task's function, via the task's Executor. It
// must be called exactly once.
func (t *Task) Start() {
	t.executor.Post(func() { t.runLoop(0) })
}

// runLoop resumes the task's continuation and reacts to however it next
// suspended (or terminated). depth counts consecutive inline Dispatch
// resumptions, for the trampoline bound.
func (t *Task) runLoop(depth int) {
	t.resumeMu.Lock()
	terminated := t.cont.Resume()
	t.resumeMu.Unlock()
	if terminated {
		t.onTerminated()
		return
	}

	switch t.pendingAction {
	case actionYield:
		t.scheduleContinue(depth)
	case actionSleep:
		d := t.sleepDuration
		t.sleepTimerMu.Lock()
		t.sleepTimer = time.AfterFunc(d, func() {
			t.sleepTimerMu.Lock()
			t.sleepTimer = nil
			t.sleepTimerMu.Unlock()
			t.scheduleContinue(0)
		})
		t.sleepTimerMu.Unlock()
	case actionNone:
		// Await already arranged its own continuation via the
		// NeedSignal/HaveSignal handshake in awaitResolve; nothing to
		// schedule here.
	}
}

func (t *Task) scheduleContinue(depth int) {
	if depth+1 >= maxDispatchDepth {
		t.executor.Post(func() { t.runLoop(0) })
	} else {
		t.executor.Dispatch(func() { t.runLoop(depth + 1) })
	}
}

// onTerminated finalizes a task once its continuation reports terminated,
// whether fn returned normally or panicked. A panic must never escape past
// here: continuation.run already recovered it, so the only remaining work is
// to log it (per spec, a panic is reported and converted to normal
// termination, not re-raised) and proceed with the same shutdown sequence as
// a clean return.
func (t *Task) onTerminated() {
	if val, stack := t.cont.Panic(); val != nil {
		t.panicVal = val
		t.panicStack = stack
		t.log.Err().Log(fmt.Sprintf("task: recovered panic: %v\n%s", val, stack))
	}
	t.state.Set(FlagTerminated)
	t.once.Do(func() { close(t.doneCh) })
	t.completionMu.Lock()
	handlers := t.completionHandlers.Drain()
	t.state.Set(FlagCompletionHandlersClosed)
	t.completionMu.Unlock()
	handler.NotifyAll(handlers, t)
}

// Yield suspends the task, to be resumed as soon as the executor has a slot
// free. Must be called from within the task's own fn.
func (t *Task) Yield() {
	t.pendingAction = actionYield
	t.suspend()
}

// Sleep suspends the task for at least d before it is resumed. Must be
// called from within the task's own fn.
func (t *Task) Sleep(d time.Duration) {
	t.pendingAction = actionSleep
	t.sleepDuration = d
	t.suspend()
}

// suspend is the single re-entry point every blocking operation (Yield,
// Sleep, Await) funnels through. It also services stack-trace capture: a
// resume that only exists to satisfy RequestStackTrace wakes this goroutine,
// finds FlagStackTrace set, records its own stack (this goroutine's, not the
// driver's), and immediately suspends again without letting user code run —
// consuming exactly one Resume/Suspend round trip per capture, so the
// driver that issued the capture resume sees a normal suspended return.
func (t *Task) suspend() {
	t.state.Set(FlagSuspended)
	t.cont.Suspend()
	for t.state.Has(FlagStackTrace) {
		t.stackMu.Lock()
		t.stackTrace = debug.Stack()
		t.stackMu.Unlock()
		t.state.Clear(FlagStackTrace)
		t.cont.Suspend()
	}
	t.state.Clear(FlagSuspended)
	t.pendingAction = actionNone
}

// Await suspends the task until resolve is invoked with a result, which
// start is responsible for arranging (e.g. registering a Watch observer or a
// timer). start is called synchronously, on the task's own goroutine, before
// suspending. If resolve is invoked before Await gets around to suspending,
// the suspend is skipped entirely — the NeedSignal/HaveSignal flags make
// this race-free without a lock.
func Await[R any](t *Task, start func(resolve func(R))) R {
	var result R
	start(func(v R) {
		result = v
		old := t.state.Set(FlagHaveSignal)
		if old&FlagNeedSignal != 0 {
			t.scheduleContinue(0)
		}
	})

	old := t.state.Set(FlagNeedSignal)
	if old&FlagHaveSignal != 0 {
		t.state.Clear(FlagNeedSignal | FlagHaveSignal)
		return result
	}

	t.pendingAction = actionNone
	t.suspend()
	t.state.Clear(FlagNeedSignal | FlagHaveSignal)
	return result
}

// Wake forcibly resumes a sleeping task immediately, cancelling its sleep
// timer if one is pending. It is a no-op if the task is not currently
// suspended in Sleep, or has already terminated.
func (t *Task) Wake() {
	t.sleepTimerMu.Lock()
	timer := t.sleepTimer
	t.sleepTimer = nil
	t.sleepTimerMu.Unlock()
	if timer != nil && timer.Stop() {
		t.scheduleContinue(0)
	}
}

// CallWhenDone registers fn to be invoked (with the Task itself) once the
// task terminates. If the task has already terminated, fn runs immediately
// on the calling goroutine.
func (t *Task) CallWhenDone(fn func(*Task)) {
	h := handler.New(fn)
	t.completionMu.Lock()
	if t.state.Has(FlagCompletionHandlersClosed) {
		t.completionMu.Unlock()
		h.Notify(t)
		return
	}
	t.completionHandlers.Push(h)
	t.completionMu.Unlock()
}

// Join blocks the calling goroutine until the task terminates.
func (t *Task) Join() {
	<-t.doneCh
}

// Terminated reports whether the task's fn has returned.
func (t *Task) Terminated() bool {
	return t.state.Has(FlagTerminated)
}

// RequestStackTrace arranges for a stack trace to be captured from the
// task's own goroutine at its current suspension point, available
// afterwards via StackTrace. It is a no-op if the task is not currently
// suspended (running, not yet started, or already terminated). Used by
// diagnostics tooling to inspect a task that appears stuck.
func (t *Task) RequestStackTrace() {
	if !t.state.Has(FlagSuspended) || t.state.Has(FlagTerminated) {
		return
	}
	t.state.Set(FlagStackTrace)
	// Dedicated posted resume that exists solely to drive the
	// FlagStackTrace loop in suspend(); it must not go through runLoop,
	// which would otherwise misinterpret this capture-only round trip as
	// a real wakeup and act on a stale pendingAction.
	t.executor.Post(func() {
		t.resumeMu.Lock()
		defer t.resumeMu.Unlock()
		if t.state.Has(FlagSuspended) && !t.state.Has(FlagTerminated) {
			t.cont.Resume()
		}
	})
}

// StackTrace returns the most recently captured stack trace, or nil if none
// has been requested yet.
func (t *Task) StackTrace() []byte {
	t.stackMu.Lock()
	defer t.stackMu.Unlock()
	return t.stackTrace
}

// Panic returns the value recovered from a panic that escaped fn, and the
// stack trace captured at the point of recovery, or (nil, nil) if fn has not
// terminated or returned normally.
func (t *Task) Panic() (val any, stack []byte) {
	return t.panicVal, t.panicStack
}

// SetPriority records a scheduling priority hint for the task. The Pool
// executor in the work package does not currently reorder work by priority
// (see DESIGN.md); this is bookkeeping for callers layering their own
// priority queue on top of Executor.Post.
func (t *Task) SetPriority(p int32) {
	t.priority.Store(p)
}

// GetPriority returns the task's current priority hint.
func (t *Task) GetPriority() int32 {
	return t.priority.Load()
}
