// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package search implements the Tanimoto similarity-search drivers:
// counting, threshold enumeration, and k-nearest selection over
// fingerprint arenas, for query-against-target collections and for the
// symmetric (upper triangle) case.
//
// All drivers prune with the Swamidass-Baldi popcount bounds when the
// target collection carries a popcount index table, and fall back to a
// full scan when it does not.  Queries are fanned out over
// chem.NumThreads() workers.
package search

import (
	"math"

	"github.com/grailbio/base/traverse"
	"github.com/grailbio/chem"
	"github.com/grailbio/chem/arena"
)

// Fingerprints describes one side of a search: a packed fingerprint
// buffer, its stride, the index range [Start, End) to use, and, for
// popcount-sorted collections, the popcount index table.  Indices may
// be nil, in which case drivers scan every target.
type Fingerprints struct {
	Stride  int
	Bytes   []byte
	Start   int
	End     int
	Indices []int
}

// View returns the Fingerprints covering all of a.
func View(a *arena.Arena) Fingerprints {
	return Fingerprints{
		Stride:  a.Stride,
		Bytes:   a.Bytes,
		Start:   0,
		End:     a.N,
		Indices: a.Indices,
	}
}

// normalize resolves the negative range sentinels: a negative Start
// means the beginning, a negative End means the end of the buffer.
func (f Fingerprints) normalize() Fingerprints {
	if f.Start < 0 {
		f.Start = 0
	}
	if f.End < 0 && f.Stride > 0 {
		f.End = len(f.Bytes) / f.Stride
	}
	return f
}

func (f Fingerprints) fp(i int) []byte {
	return f.Bytes[i*f.Stride : (i+1)*f.Stride]
}

// clampThreshold guards against integer overflow in the
// deferred-division test when the threshold is a denormal-ish value
// like 1e-80: anything in (0, 1/numBits) selects the same hit set as
// 0.5/numBits.
func clampThreshold(threshold float64, numBits int) float64 {
	if threshold > 0 && threshold < 1/float64(numBits) {
		return 0.5 / float64(numBits)
	}
	return threshold
}

func badThreshold(threshold float64) bool {
	return math.IsNaN(threshold) || math.IsInf(threshold, 0)
}

// popCountBand returns the feasible target popcount range
// [start, end] for a query popcount under the threshold, per Swamidass
// and Baldi.  Only called with threshold > 0.
func popCountBand(queryPopCount, numBits int, threshold float64) (start, end int) {
	start = int(float64(queryPopCount) * threshold)
	end = int(math.Ceil(float64(queryPopCount) / threshold))
	if end > numBits {
		end = numBits
	}
	return start, end
}

// sectionBounds clamps one popcount section of the index table to the
// target range.
func sectionBounds(indices []int, popCount, targetStart, targetEnd int) (start, end int) {
	start = indices[popCount]
	end = indices[popCount+1]
	if start < targetStart {
		start = targetStart
	}
	if end > targetEnd {
		end = targetEnd
	}
	return start, end
}

// parallelQueries runs fn(query index) over [start, end) across the
// configured worker count.  Workers own disjoint contiguous spans, so
// per-query outputs need no synchronization.
func parallelQueries(start, end int, fn func(q int)) {
	n := end - start
	workers := chem.NumThreads()
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for q := start; q < end; q++ {
			fn(q)
		}
		return
	}
	_ = traverse.Each(workers, func(job int) error {
		lo := start + job*n/workers
		hi := start + (job+1)*n/workers
		for q := lo; q < hi; q++ {
			fn(q)
		}
		return nil
	})
}
