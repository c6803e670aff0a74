package modelcheck

import "github.com/joeycumines/taskrt/status"

// segment packs a run of small integers into one u64 using place-value
// notation: value is always < radix, and radix is the product of every
// individual value's own radix pushed into this segment so far.
type segment struct {
	radix uint64
	value uint64
}

// RadixQueue is a FIFO of small nonnegative integers, each pushed with its
// own radix (exclusive upper bound), packed several to a 64-bit segment by
// place-value encoding. It is the compact representation a model checker
// uses to record "the sequence of nondeterministic choices that got us to
// this state": storing one u64 per choice would bloat the visited-set
// memory footprint by orders of magnitude for long histories.
//
// A fixed-capacity, allocation-free ring buffer sized by a compile-time
// capacity parameter is the natural C++ shape for this; Go has no equivalent
// non-type generic parameter, so this instead grows its backing slice on
// demand via append. Histories are unbounded in principle regardless.
type RadixQueue struct {
	segments []segment
}

// NewRadixQueue constructs an empty RadixQueue.
func NewRadixQueue() *RadixQueue {
	return &RadixQueue{segments: []segment{{radix: 1}}}
}

// Clone returns a deep copy, used to branch a history when exploring more
// than one choice from the same state.
func (q *RadixQueue) Clone() *RadixQueue {
	return &RadixQueue{segments: append([]segment(nil), q.segments...)}
}

// Empty reports whether the queue holds no pushed values.
func (q *RadixQueue) Empty() bool {
	return len(q.segments) == 1 && q.segments[0].radix == 1
}

// Push appends value (which must be < radix) to the back of the queue,
// packing it into the current back segment if it fits, else starting a new
// one.
func (q *RadixQueue) Push(radix, value uint64) {
	if value >= radix {
		status.Panic("modelcheck: RadixQueue.Push: value %d must be less than radix %d", value, radix)
	}

	back := &q.segments[len(q.segments)-1]
	const maxU64 = ^uint64(0)
	if maxU64/back.radix < radix {
		q.segments = append(q.segments, segment{radix: 1})
		back = &q.segments[len(q.segments)-1]
	}

	back.value += value * back.radix
	back.radix *= radix
}

// Pop extracts and removes the oldest value from the queue, which must have
// been pushed with the same radix used to Push it.
func (q *RadixQueue) Pop(radix uint64) uint64 {
	s := &q.segments[0]
	if radix > s.radix {
		status.Panic("modelcheck: RadixQueue.Pop: radix %d exceeds segment radix %d", radix, s.radix)
	}

	value := s.value % radix
	s.radix /= radix
	s.value /= radix

	if s.radix == 1 && len(q.segments) > 1 {
		q.segments = q.segments[1:]
	}

	return value
}
