// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package search

import (
	"sync"

	"github.com/grailbio/chem"
	"github.com/grailbio/chem/bitops"
	"github.com/grailbio/chem/popcount"
)

// CountTanimoto writes, for each query q in queries' range, the number
// of targets whose Tanimoto score against q is at least threshold, into
// counts[q - queries.Start].  It never allocates per hit.
func CountTanimoto(threshold float64, numBits int, queries, targets Fingerprints, counts []int) error {
	queries = queries.normalize()
	targets = targets.normalize()
	if badThreshold(threshold) || numBits < 1 {
		return chem.BadArg
	}
	if queries.Start >= queries.End {
		return nil
	}
	if len(counts) < queries.End-queries.Start {
		return chem.BadArg
	}
	threshold = clampThreshold(threshold, numBits)
	numQueries := queries.End - queries.Start

	if targets.Start >= targets.End || threshold > 1 {
		for i := 0; i < numQueries; i++ {
			counts[i] = 0
		}
		return nil
	}
	if threshold <= 0 {
		// Everything matches; no need to prove it fingerprint by
		// fingerprint.
		for i := 0; i < numQueries; i++ {
			counts[i] = targets.End - targets.Start
		}
		return nil
	}

	numBytes := (numBits + 7) / 8
	if numBytes > queries.Stride || numBytes > targets.Stride {
		return chem.BadArg
	}
	if targets.Indices == nil {
		// No popcount table: test everything.
		parallelQueries(queries.Start, queries.End, func(q int) {
			queryFP := queries.fp(q)[:numBytes]
			count := 0
			for t := targets.Start; t < targets.End; t++ {
				if bitops.Tanimoto(queryFP, targets.fp(t)[:numBytes]) >= threshold {
					count++
				}
			}
			counts[q-queries.Start] = count
		})
		return nil
	}

	calcPopCount := popcount.SelectPopCount(numBits, queries.Stride, queries.Bytes)
	calcIntersect := popcount.SelectIntersectPopCount(
		numBits, queries.Stride, queries.Bytes, targets.Stride, targets.Bytes)
	if calcPopCount == nil || calcIntersect == nil {
		return chem.BadArg
	}
	denominator := numBits * 10
	numerator := int(threshold * float64(denominator))

	parallelQueries(queries.Start, queries.End, func(q int) {
		queryFP := queries.fp(q)
		queryPopCount := calcPopCount(numBytes, queryFP)
		if queryPopCount == 0 {
			// Nothing can meet a positive threshold.
			counts[q-queries.Start] = 0
			return
		}
		startPop, endPop := popCountBand(queryPopCount, numBits, threshold)
		count := 0
		for tp := startPop; tp <= endPop; tp++ {
			start, end := sectionBounds(targets.Indices, tp, targets.Start, targets.End)
			popSum := queryPopCount + tp
			for t := start; t < end; t++ {
				intersect := calcIntersect(numBytes, queryFP, targets.fp(t))
				if denominator*intersect >= numerator*(popSum-intersect) {
					count++
				}
			}
		}
		counts[q-queries.Start] = count
	})
	return nil
}

// countShards partitions the shared counts vector of the symmetric
// driver into 128 lock groups by index.  At low thresholds the hit
// density is high enough that a single lock starves the workers.
var countShards [128]sync.Mutex

// CountTanimotoSymmetric counts over the upper triangle of a single
// collection: for every pair q < t within the row range
// [fps.Start, fps.End) and column range [targetStart, targetEnd) whose
// score meets the threshold, counts[q] and counts[t] are both
// incremented.  Counts are indexed by absolute fingerprint index and
// are incremented, not assigned; callers zero the slice first.
//
// The popcount index table is required here: without the sorted arena
// there is no point to the triangular traversal.
func CountTanimotoSymmetric(threshold float64, numBits int, fps Fingerprints, targetStart, targetEnd int, counts []int) error {
	fps = fps.normalize()
	if badThreshold(threshold) || numBits < 1 || fps.Indices == nil {
		return chem.BadArg
	}
	if fps.Start >= targetEnd {
		return nil
	}
	if targetStart < fps.Start {
		targetStart = fps.Start
	}
	if fps.Start >= fps.End || targetStart >= targetEnd || threshold > 1 {
		return nil
	}
	if len(counts) < targetEnd {
		return chem.BadArg
	}

	if threshold <= 0 {
		for q := fps.Start; q < fps.End; q++ {
			tStart := targetStart
			if q+1 > tStart {
				tStart = q + 1
			}
			for t := tStart; t < targetEnd; t++ {
				counts[q]++
				counts[t]++
			}
		}
		return nil
	}

	threshold = clampThreshold(threshold, numBits)
	numBytes := (numBits + 7) / 8
	calcPopCount := popcount.SelectPopCount(numBits, fps.Stride, fps.Bytes)
	calcIntersect := popcount.SelectIntersectPopCount(
		numBits, fps.Stride, fps.Bytes, fps.Stride, fps.Bytes)
	if calcPopCount == nil || calcIntersect == nil {
		return chem.BadArg
	}
	denominator := numBits * 10
	numerator := int(threshold * float64(denominator))

	parallelQueries(fps.Start, fps.End, func(q int) {
		queryFP := fps.fp(q)
		queryPopCount := calcPopCount(numBytes, queryFP)
		if queryPopCount == 0 {
			return
		}
		startPop, endPop := popCountBand(queryPopCount, numBits, threshold)
		rowCount := 0
		for tp := startPop; tp <= endPop; tp++ {
			start, end := sectionBounds(fps.Indices, tp, targetStart, targetEnd)
			if q+1 > start {
				start = q + 1
			}
			popSum := queryPopCount + tp
			for t := start; t < end; t++ {
				intersect := calcIntersect(numBytes, queryFP, fps.fp(t))
				if denominator*intersect >= numerator*(popSum-intersect) {
					// The row total can be accumulated privately, but
					// the column cell belongs to another worker's row.
					rowCount++
					shard := &countShards[t%len(countShards)]
					shard.Lock()
					counts[t]++
					shard.Unlock()
				}
			}
		}
		if rowCount != 0 {
			shard := &countShards[q%len(countShards)]
			shard.Lock()
			counts[q] += rowCount
			shard.Unlock()
		}
	})
	return nil
}
