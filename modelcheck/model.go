package modelcheck

import "time"

// Model is the abstract state machine under test. S is the
// model's serialized snapshot type, which must be comparable so the checker
// can use it directly as a visited-set key.
type Model[S comparable] interface {
	// Initialize produces the initial serialized state.
	Initialize() S
	// EnterState prepares the model's internal (non-serialized)
	// representation from a snapshot, ahead of Step.
	EnterState(s S)
	// Step advances the model by exactly one "tick", making zero or more
	// calls against entropy for any nondeterministic choices.
	Step(entropy EntropySource)
	// LeaveState extracts a fresh snapshot after Step.
	LeaveState() S
	// CheckInvariants reports whether the model's current internal state
	// is valid; false aborts exploration.
	CheckInvariants() bool
	// Normalize canonicalizes a snapshot (e.g. to collapse
	// symmetric/equivalent states); models with nothing to canonicalize
	// return s unchanged.
	Normalize(s S) S
}

// ProgressReporter is an optional Model extension: a model implementing it
// receives periodic progress callbacks during a Run.
type ProgressReporter interface {
	// ReportProgress is invoked on ProgressInterval's cadence with the
	// cumulative Result so far, and once more with the final Result when
	// a run finishes.
	ReportProgress(r Result)
	// ProgressInterval is the minimum wall-clock gap between periodic
	// ReportProgress calls. <= 0 disables the periodic calls; the final
	// call at the end of a run still happens.
	ProgressInterval() time.Duration
}

// Cloner is required of any Model used with RunSharded: each shard needs its
// own Model instance since Step mutates internal, non-serialized state.
type Cloner[S comparable] interface {
	Clone() Model[S]
}

// CloneModels produces n independent Model instances from seed, for
// RunSharded — one clone per shard, since each shard's Checker mutates its
// Model's internal state concurrently with every other shard's.
func CloneModels[S comparable](seed Cloner[S], n int) []Model[S] {
	out := make([]Model[S], n)
	for i := range out {
		out[i] = seed.Clone()
	}
	return out
}

// Result is the cumulative outcome of an exploration run.
type Result struct {
	OK              bool
	StateCount      uint64
	BranchPushCount uint64
	BranchPopCount  uint64
	SelfBranchCount uint64
	BranchMissCount uint64
	StartTime       time.Time
	Elapsed         time.Duration
}

func (r *Result) updateElapsed() {
	r.Elapsed = time.Since(r.StartTime)
}

func mergeResults(a, b Result) Result {
	out := Result{
		OK:              a.OK && b.OK,
		StateCount:      a.StateCount + b.StateCount,
		BranchPushCount: a.BranchPushCount + b.BranchPushCount,
		BranchPopCount:  a.BranchPopCount + b.BranchPopCount,
		SelfBranchCount: a.SelfBranchCount + b.SelfBranchCount,
		BranchMissCount: a.BranchMissCount + b.BranchMissCount,
		Elapsed:         a.Elapsed,
	}
	if b.Elapsed > out.Elapsed {
		out.Elapsed = b.Elapsed
	}
	out.StartTime = a.StartTime
	if b.StartTime.Before(out.StartTime) {
		out.StartTime = b.StartTime
	}
	return out
}

// EntropySource is the checker's substitute for a model's random choices:
// during model checking, PickInt never truly randomizes — it deterministically
// returns whatever value the exploration algorithm is currently replaying or
// branching on.
type EntropySource interface {
	// PickInt returns a value in [min, max], inclusive.
	PickInt(min, max uint64) uint64
}

// PickBranch picks an index in [0, n).
func PickBranch(e EntropySource, n int) int {
	if n <= 0 {
		panic("modelcheck: PickBranch: n must be positive")
	}
	return int(e.PickInt(0, uint64(n-1)))
}

// DoOneOf invokes exactly one of fns, chosen by entropy.
func DoOneOf(e EntropySource, fns ...func()) {
	fns[PickBranch(e, len(fns))]()
}

// PickOneOf returns exactly one of options, chosen by entropy.
func PickOneOf[T any](e EntropySource, options ...T) T {
	return options[PickBranch(e, len(options))]
}

// RunOne invokes exactly one of fns, chosen by entropy, for driving a single
// synchronous step of a Task under test. Any fake execution context a
// closure needs is the caller's concern (fns close over whatever they need),
// so RunOne is just DoOneOf under its own name for call-site clarity.
func RunOne(e EntropySource, fns ...func()) {
	DoOneOf(e, fns...)
}
