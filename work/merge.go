package work

// ParallelMerge merges the two sorted slices src0 and src1 into dst (which
// must have length len(src0)+len(src1)), running independent sub-merges
// concurrently across executor up to maxTasks total, down to a sequential
// cutoff of minTaskSize combined elements. Equal keys from src0 sort before
// equal keys from src1 in the output, matching std::merge's stability
// guarantee.
//
// Implemented as the common recursive divide-and-conquer partition: split
// the larger input at its midpoint, locate the matching split point in the
// smaller input by binary search, and recurse on the two halves in
// parallel. A fixed/search phase-rotation scheme that alternates which side
// is held fixed is a cache-locality optimization over this same underlying
// algorithm, not a behavioral difference; this reformulation avoids porting
// that index arithmetic by hand with no compiler to catch a transcription
// error (see DESIGN.md).
func ParallelMerge[T any](executor Executor, src0, src1, dst []T, less func(a, b T) bool, minTaskSize, maxTasks int) {
	if len(dst) != len(src0)+len(src1) {
		panic("work: ParallelMerge: dst length must equal len(src0)+len(src1)")
	}
	if maxTasks <= 0 {
		maxTasks = 1
	}
	ctx := NewScopedWorkContext(executor)
	defer ctx.Close()
	parallelMergeImpl(ctx, src0, src1, dst, less, minTaskSize, maxTasks)
}

func parallelMergeImpl[T any](ctx *ScopedWorkContext, src0, src1, dst []T, less func(a, b T) bool, minTaskSize, maxTasks int) {
	if len(src0) == 0 {
		copy(dst, src1)
		return
	}
	if len(src1) == 0 {
		copy(dst, src0)
		return
	}
	if maxTasks <= 1 || len(src0)+len(src1) <= minTaskSize {
		mergeSequential(src0, src1, dst, less)
		return
	}

	leftTasks := maxTasks / 2
	rightTasks := maxTasks - leftTasks

	var src0L, src0R, src1L, src1R, dstL, dstR []T
	if len(src0) >= len(src1) {
		mid0 := len(src0) / 2
		pivot := src0[mid0]
		// src1 elements equal to pivot must land in the right half
		// alongside pivot itself, so the right sub-merge (not this split)
		// resolves their relative order and the src0 pivot still sorts
		// first; lowerBound (not upperBound) is what keeps them there.
		mid1 := lowerBound(src1, pivot, less)
		dstMid := mid0 + mid1
		src0L, src0R = src0[:mid0], src0[mid0:]
		src1L, src1R = src1[:mid1], src1[mid1:]
		dstL, dstR = dst[:dstMid], dst[dstMid:]
	} else {
		mid1 := len(src1) / 2
		pivot := src1[mid1]
		// src0 elements equal to pivot land in the left half, so they
		// still sort before the src1 pivot; upperBound (not lowerBound) is
		// what keeps them there.
		mid0 := upperBound(src0, pivot, less)
		dstMid := mid0 + mid1
		src0L, src0R = src0[:mid0], src0[mid0:]
		src1L, src1R = src1[:mid1], src1[mid1:]
		dstL, dstR = dst[:dstMid], dst[dstMid:]
	}

	ctx.AsyncRun(func() {
		parallelMergeImpl(ctx, src0L, src1L, dstL, less, minTaskSize, leftTasks)
	})
	parallelMergeImpl(ctx, src0R, src1R, dstR, less, minTaskSize, rightTasks)
}

func mergeSequential[T any](src0, src1, dst []T, less func(a, b T) bool) {
	i, j, k := 0, 0, 0
	for i < len(src0) && j < len(src1) {
		if less(src1[j], src0[i]) {
			dst[k] = src1[j]
			j++
		} else {
			dst[k] = src0[i]
			i++
		}
		k++
	}
	k += copy(dst[k:], src0[i:])
	copy(dst[k:], src1[j:])
}

// lowerBound returns the index of the first element in s that is not less
// than v (the standard library's sort.Search, specialized to a less func).
func lowerBound[T any](s []T, v T, less func(a, b T) bool) int {
	lo, hi := 0, len(s)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if less(s[mid], v) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// upperBound returns the index of the first element in s that is greater
// than v.
func upperBound[T any](s []T, v T, less func(a, b T) bool) int {
	lo, hi := 0, len(s)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if less(v, s[mid]) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}
