// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package search

import (
	"github.com/grailbio/chem"
	"github.com/grailbio/chem/bitops"
	"github.com/grailbio/chem/hits"
	"github.com/grailbio/chem/popcount"
)

// ThresholdTanimoto appends, for each query q in queries' range, every
// target whose Tanimoto score against q is at least threshold to
// results[q - queries.Start], in target order.
func ThresholdTanimoto(threshold float64, numBits int, queries, targets Fingerprints, results []hits.Result) error {
	queries = queries.normalize()
	targets = targets.normalize()
	if badThreshold(threshold) || numBits < 1 {
		return chem.BadArg
	}
	if queries.Start >= queries.End {
		return nil
	}
	if len(results) < queries.End-queries.Start {
		return chem.BadArg
	}
	threshold = clampThreshold(threshold, numBits)
	if targets.Start >= targets.End || threshold > 1 {
		return nil
	}

	numBytes := (numBits + 7) / 8
	if numBytes > queries.Stride || numBytes > targets.Stride {
		return chem.BadArg
	}
	if targets.Indices == nil {
		parallelQueries(queries.Start, queries.End, func(q int) {
			queryFP := queries.fp(q)[:numBytes]
			result := &results[q-queries.Start]
			for t := targets.Start; t < targets.End; t++ {
				score := bitops.Tanimoto(queryFP, targets.fp(t)[:numBytes])
				if score >= threshold {
					result.AddHit(int32(t), score)
				}
			}
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
		result := &results[q-queries.Start]
		queryPopCount := calcPopCount(numBytes, queryFP)

		if queryPopCount == 0 {
			// Every score is 0; they are hits only when the threshold
			// is 0.
			if threshold == 0 {
				for t := targets.Start; t < targets.End; t++ {
					result.AddHit(int32(t), 0)
				}
			}
			return
		}

		startPop, endPop := 0, numBits
		if threshold > 0 {
			startPop, endPop = popCountBand(queryPopCount, numBits, threshold)
		}
		for tp := startPop; tp <= endPop; tp++ {
			start, end := sectionBounds(targets.Indices, tp, targets.Start, targets.End)
			popSum := queryPopCount + tp
			for t := start; t < end; t++ {
				intersect := calcIntersect(numBytes, queryFP, targets.fp(t))
				// The double comparison is the hot spot; the division
				// is deferred until the pair is known to be a hit.
				if denominator*intersect >= numerator*(popSum-intersect) {
					score := float64(intersect) / float64(popSum-intersect)
					result.AddHit(int32(t), score)
				}
			}
		}
	})
	return nil
}

// ThresholdTanimotoSymmetric enumerates the upper triangle of a single
// collection: for every pair q < t within the row range
// [fps.Start, fps.End) and column range [targetStart, targetEnd) whose
// score meets the threshold, (t, score) is appended to results[q].
// Results are indexed by absolute fingerprint index and must span the
// whole collection so that FillLowerTriangle can mirror them.
//
// The popcount index table is required.
func ThresholdTanimotoSymmetric(threshold float64, numBits int, fps Fingerprints, targetStart, targetEnd int, results []hits.Result) error {
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
	if fps.Start >= fps.End || targetStart >= targetEnd || threshold < 0 || threshold > 1 {
		return nil
	}
	if len(results) < targetEnd {
		return chem.BadArg
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
		result := &results[q]
		queryPopCount := calcPopCount(numBytes, queryFP)

		if queryPopCount == 0 {
			if threshold == 0 {
				tStart := targetStart
				if q+1 > tStart {
					tStart = q + 1
				}
				for t := tStart; t < targetEnd; t++ {
					result.AddHit(int32(t), 0)
				}
			}
			return
		}

		startPop, endPop := 0, numBits
		if threshold > 0 {
			startPop, endPop = popCountBand(queryPopCount, numBits, threshold)
		}
		for tp := startPop; tp <= endPop; tp++ {
			start, end := sectionBounds(fps.Indices, tp, targetStart, targetEnd)
			if q+1 > start {
				start = q + 1
			}
			popSum := queryPopCount + tp
			for t := start; t < end; t++ {
				intersect := calcIntersect(numBytes, queryFP, fps.fp(t))
				if denominator*intersect >= numerator*(popSum-intersect) {
					score := float64(intersect) / float64(popSum-intersect)
					result.AddHit(int32(t), score)
				}
			}
		}
	})
	return nil
}
