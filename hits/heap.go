// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package hits

// During a k-nearest search the hit arrays double as a binary min-heap
// keyed by (score, -index): the root is the hit that the next better
// candidate will evict, and among equal scores the larger index goes
// first so that the smaller index survives.  The heap view is only
// valid between Heapify and the end of the driver call.

func (r *Result) heapLess(i, j int) bool {
	if r.scores[i] != r.scores[j] {
		return r.scores[i] < r.scores[j]
	}
	return r.indices[i] > r.indices[j]
}

func (r *Result) siftDown(pos int) {
	n := len(r.indices)
	for {
		child := 2*pos + 1
		if child >= n {
			return
		}
		if child+1 < n && r.heapLess(child+1, child) {
			child++
		}
		if !r.heapLess(child, pos) {
			return
		}
		r.indices[pos], r.indices[child] = r.indices[child], r.indices[pos]
		r.scores[pos], r.scores[child] = r.scores[child], r.scores[pos]
		pos = child
	}
}

// Heapify establishes the heap invariant over the current hits.
func (r *Result) Heapify() {
	for i := len(r.indices)/2 - 1; i >= 0; i-- {
		r.siftDown(i)
	}
}

// MinScore returns the root's score.  Only meaningful after Heapify on
// a non-empty result.
func (r *Result) MinScore() float64 { return r.scores[0] }

// ReplaceMin overwrites the root with a new hit and restores the heap
// invariant.
func (r *Result) ReplaceMin(targetIndex int32, score float64) {
	r.indices[0] = targetIndex
	r.scores[0] = score
	r.siftDown(0)
}
