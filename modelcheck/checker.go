package modelcheck

import "time"

// Branch is one node of the state-machine's exploration graph still queued
// for visiting: a snapshot to resume from, plus the sequence of
// nondeterministic choices (delta) that have already been decided for this
// branch and must be replayed rather than re-explored.
type Branch[S comparable] struct {
	Snapshot S
	Delta    *RadixQueue
}

// predecessor records how a state was first discovered, for trace
// reconstruction on failure; isRoot marks the initial state, which has no
// predecessor.
type predecessor[S comparable] struct {
	branch Branch[S]
	isRoot bool
}

// Checker runs the exhaustive, single-shard BFS exploration algorithm over a
// Model.
type Checker[S comparable] struct {
	model   Model[S]
	visited map[S]predecessor[S]
	queue   []Branch[S]
	current Branch[S]
	history *RadixQueue
	result  Result

	progress         ProgressReporter
	lastProgressTime time.Time
}

// NewChecker constructs a Checker for model. If model implements
// ProgressReporter, its ReportProgress is invoked on ProgressInterval's
// cadence during Run, and once with the final Result when Run returns.
func NewChecker[S comparable](model Model[S]) *Checker[S] {
	c := &Checker[S]{model: model, visited: map[S]predecessor[S]{}}
	if pr, ok := model.(ProgressReporter); ok {
		c.progress = pr
	}
	return c
}

// entropy adapts a Checker to the EntropySource interface Step consumes.
type entropy[S comparable] struct {
	c *Checker[S]
}

func (e entropy[S]) PickInt(min, max uint64) uint64 {
	return e.c.pickInt(min, max)
}

// pickInt is the heart of the exploration algorithm: replay a decision
// already recorded in the current branch's delta, or else fan out
// a new branch for every nondeterministic alternative and take the 0th
// alternative inline.
func (c *Checker[S]) pickInt(min, max uint64) uint64 {
	if min == max {
		return min
	}
	radix := max - min + 1

	if !c.current.Delta.Empty() {
		v := c.current.Delta.Pop(radix)
		c.history.Push(radix, v)
		return min + v
	}

	for v := uint64(1); v < radix; v++ {
		delta := c.history.Clone()
		delta.Push(radix, v)
		c.explore(Branch[S]{Snapshot: c.current.Snapshot, Delta: delta})
	}
	c.history.Push(radix, 0)

	return min
}

func (c *Checker[S]) explore(b Branch[S]) {
	c.result.BranchPushCount++
	c.queue = append(c.queue, b)
}

func (c *Checker[S]) popNext() bool {
	if len(c.queue) == 0 {
		return false
	}
	c.current = c.queue[0]
	c.queue = c.queue[1:]
	c.result.BranchPopCount++
	return true
}

func (c *Checker[S]) maybeReportProgress() {
	if c.progress == nil {
		return
	}
	interval := c.progress.ProgressInterval()
	if interval <= 0 {
		return
	}
	if time.Since(c.lastProgressTime) < interval {
		return
	}
	c.lastProgressTime = time.Now()
	c.result.updateElapsed()
	c.progress.ReportProgress(c.result)
}

// Run explores every reachable state from Model.Initialize, returning once
// the frontier is exhausted or an invariant fails.
func (c *Checker[S]) Run() Result {
	c.visited = map[S]predecessor[S]{}
	c.queue = nil
	c.result = Result{StartTime: time.Now()}
	c.lastProgressTime = c.result.StartTime

	init := c.model.Normalize(c.model.Initialize())
	seed := Branch[S]{Snapshot: init, Delta: NewRadixQueue()}
	c.visited[init] = predecessor[S]{isRoot: true}
	c.explore(seed)
	c.result.OK = true
	c.result.StateCount = 1

	for c.popNext() {
		c.maybeReportProgress()

		c.model.EnterState(c.current.Snapshot)
		if !c.model.CheckInvariants() {
			c.result.OK = false
			break
		}

		c.history = NewRadixQueue()
		c.model.Step(entropy[S]{c})
		if !c.model.CheckInvariants() {
			c.result.OK = false
			break
		}

		after := c.model.Normalize(c.model.LeaveState())
		if after == c.current.Snapshot {
			c.result.SelfBranchCount++
			continue
		}

		if _, seen := c.visited[after]; !seen {
			c.visited[after] = predecessor[S]{branch: Branch[S]{Snapshot: c.current.Snapshot, Delta: c.history}}
			c.result.StateCount++
			c.explore(Branch[S]{Snapshot: after, Delta: NewRadixQueue()})
		}
	}

	c.result.updateElapsed()
	if c.progress != nil {
		c.progress.ReportProgress(c.result)
	}
	return c.result
}

// Trace reconstructs the sequence of predecessor branches that led to s,
// from the initial state down to (but not including) s itself, using the
// visited map populated by the most recent Run. Returns nil if s was never
// visited.
func (c *Checker[S]) Trace(s S) []Branch[S] {
	var out []Branch[S]
	for {
		pred, ok := c.visited[s]
		if !ok {
			return nil
		}
		if pred.isRoot {
			break
		}
		out = append([]Branch[S]{pred.branch}, out...)
		s = pred.branch.Snapshot
	}
	return out
}
