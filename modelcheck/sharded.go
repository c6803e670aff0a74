package modelcheck

import (
	"sync"
	"sync/atomic"
	"time"
)

// inboxPollInterval bounds how long a shard waits on a dry inbox before
// re-checking the global pending counter. A shard can only safely conclude
// the whole run is finished by observing pending hit zero; a short poll
// keeps that observation prompt without needing a cross-shard wakeup
// broadcast (see DESIGN.md).
const inboxPollInterval = time.Millisecond

// crossShardMsg carries a newly-discovered state across a shard boundary
// together with the predecessor branch that discovered it, so the
// receiving shard's visited map can record a real predecessor instead of
// mistaking every cross-shard arrival for a root state — losing that would
// silently truncate Trace() at the shard boundary.
type crossShardMsg[S comparable] struct {
	New         Branch[S]
	Predecessor Branch[S]
}

// mesh coordinates the shards of a RunSharded call: routing cross-shard
// branches to the right inbox, and a global pending counter used for
// distributed termination detection — every shard stops once it observes
// that no work remains anywhere, not just in its own queue.
//
// pending counts every Branch that has been produced but not yet fully
// processed, summed across every shard's local queue, every shard's inbox,
// and the branch each shard is currently stepping. A popped branch is only
// subtracted once its shard asks for the next one, after any branches it
// produced have already been added, and the seed is counted before any
// shard starts. So pending hitting zero is a precise, race-free signal that
// no shard has any work left or in flight — there is nothing left that
// could ever produce more.
type mesh[S comparable] struct {
	shardOf func(S) int
	inboxes []chan crossShardMsg[S]
	pending atomic.Int64
	aborted atomic.Bool
}

func newMesh[S comparable](shardCount int, shardOf func(S) int) *mesh[S] {
	m := &mesh[S]{shardOf: shardOf}
	m.inboxes = make([]chan crossShardMsg[S], shardCount)
	for i := range m.inboxes {
		m.inboxes[i] = make(chan crossShardMsg[S], 1024)
	}
	return m
}

func (m *mesh[S]) send(dst int, msg crossShardMsg[S]) {
	m.inboxes[dst] <- msg
}

// runShard runs one shard's local exploration loop to completion, writing
// its Result into results[shardI] and (if visited is non-nil) its final
// visited map into visited[shardI], for cross-shard Trace reconstruction.
func runShard[S comparable](model Model[S], mesh *mesh[S], shardI int, seed *Branch[S], wg *sync.WaitGroup, results []Result, visited []map[S]predecessor[S]) {
	defer wg.Done()

	c := NewChecker(model)
	c.visited = map[S]predecessor[S]{}
	c.result = Result{StartTime: time.Now()}
	c.lastProgressTime = c.result.StartTime

	// explore queues a same-shard branch produced while fanning out
	// nondeterministic alternatives for the state currently being
	// stepped (c.current.Snapshot). Such branches always share
	// c.current.Snapshot, which already belongs to this shard, so they
	// never cross a shard boundary.
	explore := func(b Branch[S]) {
		mesh.pending.Add(1)
		c.result.BranchPushCount++
		c.queue = append(c.queue, b)
	}

	// discover routes a freshly-seen state to whichever shard owns it,
	// carrying the predecessor branch along so the receiving shard can
	// record a real (non-root) predecessor in its visited map.
	discover := func(after S, pred Branch[S]) {
		dst := mesh.shardOf(after)
		mesh.pending.Add(1)
		if dst == shardI {
			c.result.BranchPushCount++
			c.visited[after] = predecessor[S]{branch: pred}
			c.result.StateCount++
			c.queue = append(c.queue, Branch[S]{Snapshot: after, Delta: NewRadixQueue()})
		} else {
			c.result.BranchMissCount++
			mesh.send(dst, crossShardMsg[S]{
				New:         Branch[S]{Snapshot: after, Delta: NewRadixQueue()},
				Predecessor: pred,
			})
		}
	}

	if seed != nil {
		c.visited[seed.Snapshot] = predecessor[S]{isRoot: true}
		c.result.StateCount = 1
		// The seed's pending count was added by RunShardedWithTrace before
		// any shard started.
		c.result.BranchPushCount++
		c.queue = append(c.queue, *seed)
	}
	c.result.OK = true

	inFlight := false
	popNext := func() bool {
		if inFlight {
			mesh.pending.Add(-1)
			inFlight = false
		}
		for {
			if len(c.queue) > 0 {
				c.current = c.queue[0]
				c.queue = c.queue[1:]
				c.result.BranchPopCount++
				inFlight = true
				return true
			}
			if mesh.pending.Load() == 0 || mesh.aborted.Load() {
				return false
			}
			select {
			case msg := <-mesh.inboxes[shardI]:
				if _, seen := c.visited[msg.New.Snapshot]; seen {
					mesh.pending.Add(-1)
					continue
				}
				c.visited[msg.New.Snapshot] = predecessor[S]{branch: msg.Predecessor}
				c.result.StateCount++
				c.queue = append(c.queue, msg.New)
			case <-time.After(inboxPollInterval):
			}
		}
	}

	for popNext() {
		c.maybeReportProgress()

		c.model.EnterState(c.current.Snapshot)
		if !c.model.CheckInvariants() {
			c.result.OK = false
			mesh.aborted.Store(true)
			break
		}

		c.history = NewRadixQueue()
		pickInt := func(min, max uint64) uint64 {
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
				explore(Branch[S]{Snapshot: c.current.Snapshot, Delta: delta})
			}
			c.history.Push(radix, 0)
			return min
		}
		c.model.Step(entropyFunc(pickInt))
		if !c.model.CheckInvariants() {
			c.result.OK = false
			mesh.aborted.Store(true)
			break
		}

		after := c.model.Normalize(c.model.LeaveState())
		if after == c.current.Snapshot {
			c.result.SelfBranchCount++
			continue
		}

		if _, seen := c.visited[after]; !seen {
			discover(after, Branch[S]{Snapshot: c.current.Snapshot, Delta: c.history})
		}
	}

	c.result.updateElapsed()
	if c.progress != nil {
		c.progress.ReportProgress(c.result)
	}
	results[shardI] = c.result
	if visited != nil {
		visited[shardI] = c.visited
	}
}

// entropyFunc adapts a plain function to EntropySource.
type entropyFunc func(min, max uint64) uint64

func (f entropyFunc) PickInt(min, max uint64) uint64 { return f(min, max) }

// RunSharded partitions the state space across shardCount goroutines, each
// running its own Model instance (obtained via models[i], one per shard),
// hash-partitioned by shardOf(snapshot). Results are reduced pairwise along
// a binary tree once every shard completes.
func RunSharded[S comparable](models []Model[S], shardOf func(S) int) Result {
	result, _ := RunShardedWithTrace(models, shardOf)
	return result
}

// RunShardedWithTrace behaves exactly like RunSharded, but additionally
// returns a trace function: given any state discovered during the run, it
// reconstructs the predecessor branches leading to it from the initial
// state, exactly like Checker.Trace does for a single-shard run — by
// looking the state up in whichever shard owns it (via shardOf) and
// walking that shard's visited map, following predecessor branches into
// whichever shard owned each prior state in turn.
func RunShardedWithTrace[S comparable](models []Model[S], shardOf func(S) int) (Result, func(S) []Branch[S]) {
	shardCount := len(models)
	if shardCount == 0 {
		return Result{OK: true}, func(S) []Branch[S] { return nil }
	}
	if shardCount == 1 {
		c := NewChecker(models[0])
		result := c.Run()
		return result, c.Trace
	}

	mesh := newMesh[S](shardCount, shardOf)
	results := make([]Result, shardCount)
	visited := make([]map[S]predecessor[S], shardCount)

	var wg sync.WaitGroup
	wg.Add(shardCount)

	init := models[0].Normalize(models[0].Initialize())
	seedShard := shardOf(init)
	mesh.pending.Add(1) // the seed branch, queued by its shard's runShard

	for i, m := range models {
		var seed *Branch[S]
		if i == seedShard {
			b := Branch[S]{Snapshot: init, Delta: NewRadixQueue()}
			seed = &b
		}
		go runShard(m, mesh, i, seed, &wg, results, visited)
	}

	wg.Wait()

	trace := func(s S) []Branch[S] {
		var out []Branch[S]
		for {
			pred, ok := visited[shardOf(s)][s]
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

	return reduceResults(results), trace
}

func reduceResults(results []Result) Result {
	n := len(results)
	for k := 0; (1 << uint(k)) < n; k++ {
		bit := 1 << uint(k)
		for i := 0; i < n; i++ {
			if i&bit == 0 {
				j := i | bit
				if j < n {
					results[i] = mergeResults(results[i], results[j])
				}
			}
		}
	}
	return results[0]
}
