package work

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lessInt(a, b int) bool { return a < b }

func TestParallelMergeSmallSequentialFallback(t *testing.T) {
	src0 := []int{1, 3, 5}
	src1 := []int{2, 4, 6}
	dst := make([]int, 6)
	ParallelMerge(Inline{}, src0, src1, dst, lessInt, 1400, 4)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, dst)
}

func TestParallelMergeEmptySides(t *testing.T) {
	dst := make([]int, 3)
	ParallelMerge(Inline{}, nil, []int{1, 2, 3}, dst, lessInt, 1, 4)
	assert.Equal(t, []int{1, 2, 3}, dst)

	dst2 := make([]int, 3)
	ParallelMerge(Inline{}, []int{1, 2, 3}, nil, dst2, lessInt, 1, 4)
	assert.Equal(t, []int{1, 2, 3}, dst2)
}

func TestParallelMergeStableOnEqualKeys(t *testing.T) {
	type pair struct {
		key    int
		source string
	}
	less := func(a, b pair) bool { return a.key < b.key }

	src0 := []pair{{1, "a"}, {2, "a"}, {2, "a2"}}
	src1 := []pair{{2, "b"}, {2, "b2"}, {3, "b3"}}
	dst := make([]pair, len(src0)+len(src1))
	ParallelMerge(Inline{}, src0, src1, dst, less, 0, 4)

	require.Len(t, dst, 6)
	assert.Equal(t, []pair{
		{1, "a"},
		{2, "a"}, {2, "a2"}, {2, "b"}, {2, "b2"},
		{3, "b3"},
	}, dst)
}

func TestParallelMergeLargeInputMatchesSort(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n0, n1 := 5000, 4300
	src0 := make([]int, n0)
	src1 := make([]int, n1)
	for i := range src0 {
		src0[i] = rng.Intn(1000)
	}
	for i := range src1 {
		src1[i] = rng.Intn(1000)
	}
	sort.Ints(src0)
	sort.Ints(src1)

	pool := NewPool(4)
	defer pool.Close()

	dst := make([]int, n0+n1)
	ParallelMerge(pool, src0, src1, dst, lessInt, 64, 8)

	want := append(append([]int{}, src0...), src1...)
	sort.Ints(want)
	assert.Equal(t, want, dst)
}

// Inline is a trivial Executor running everything synchronously, used by
// tests that don't care about concurrency.
type Inline struct{}

func (Inline) Dispatch(fn func()) { fn() }
func (Inline) Post(fn func())     { fn() }
