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

// KNearestTanimoto records, for each query q in queries' range, at most
// k targets with score >= threshold into results[q - queries.Start]:
// the k highest-scoring such targets, ties broken toward the smaller
// target index.  The order of the returned hits is unspecified; use
// Result.Reorder afterwards.
func KNearestTanimoto(k int, threshold float64, numBits int, queries, targets Fingerprints, results []hits.Result) error {
	queries = queries.normalize()
	targets = targets.normalize()
	if k < 0 || badThreshold(threshold) || numBits < 1 {
		return chem.BadArg
	}
	if queries.Start >= queries.End || k == 0 {
		return nil
	}
	if len(results) < queries.End-queries.Start {
		return chem.BadArg
	}
	numBytes := (numBits + 7) / 8
	if numBytes > queries.Stride || numBytes > targets.Stride {
		return chem.BadArg
	}
	if targets.Indices == nil {
		knearestNoPopCounts(k, threshold, numBits, queries, targets, results)
		return nil
	}
	return knearestArena(k, threshold, numBits, queries, targets, results, false)
}

// KNearestTanimotoSymmetric is the k-nearest search of a collection
// against itself.  The popcount pruning bounds are not reflexive, so it
// reuses the asymmetric traversal and skips the self pair; results are
// indexed relative to fps.Start like the asymmetric driver's.
//
// The popcount index table is required.
func KNearestTanimotoSymmetric(k int, threshold float64, numBits int, fps Fingerprints, targetStart, targetEnd int, results []hits.Result) error {
	fps = fps.normalize()
	if k < 0 || badThreshold(threshold) || numBits < 1 || fps.Indices == nil {
		return chem.BadArg
	}
	if fps.Start >= fps.End || k == 0 {
		return nil
	}
	if len(results) < fps.End-fps.Start {
		return chem.BadArg
	}
	targets := fps
	targets.Start = targetStart
	targets.End = targetEnd
	targets = targets.normalize()
	return knearestArena(k, threshold, numBits, fps, targets, results, true)
}

func knearestArena(k int, threshold float64, numBits int, queries, targets Fingerprints, results []hits.Result, skipSelf bool) error {
	numBytes := (numBits + 7) / 8
	calcPopCount := popcount.SelectPopCount(numBits, queries.Stride, queries.Bytes)
	calcIntersect := popcount.SelectIntersectPopCount(
		numBits, queries.Stride, queries.Bytes, targets.Stride, targets.Bytes)
	if calcPopCount == nil || calcIntersect == nil {
		return chem.BadArg
	}

	parallelQueries(queries.Start, queries.End, func(q int) {
		result := &results[q-queries.Start]
		queryFP := queries.fp(q)
		queryThreshold := threshold
		queryPopCount := calcPopCount(numBytes, queryFP)
		if queryPopCount == 0 {
			// An empty query can never score above 0 against anything,
			// and an all-zero "hit" is chemically meaningless.
			return
		}

		var order bandOrder
		order.init(queryPopCount, numBits)

	bands:
		for order.next(queryThreshold) {
			bestPossible := order.score
			if bestPossible < queryThreshold {
				break
			}
			start, end := order.popCountSection(targets.Indices)
			if !order.checkBounds(&start, &end, targets.Start, targets.End) {
				continue
			}
			popSum := float64(queryPopCount + order.popCount)
			t := start

			if result.Len() < k {
				filled := false
				for ; t < end; t++ {
					intersect := calcIntersect(numBytes, queryFP, targets.fp(t))
					score := float64(intersect) / (popSum - float64(intersect))
					if score >= queryThreshold {
						if skipSelf && t == q {
							continue
						}
						result.AddHit(int32(t), score)
						if result.Len() == k {
							result.Heapify()
							queryThreshold = result.MinScore()
							t++
							filled = true
							break
						}
					}
				}
				if !filled {
					// The heap still has room; move on to the next band.
					continue bands
				}
			}

			// The heap holds k hits.  A target replaces the floor with a
			// higher score, or with an equal score and a smaller index,
			// so a band whose bound only equals the floor is still
			// scanned.
			if queryThreshold > bestPossible {
				break bands
			}
			for ; t < end; t++ {
				intersect := calcIntersect(numBytes, queryFP, targets.fp(t))
				score := float64(intersect) / (popSum - float64(intersect))
				if score > queryThreshold ||
					(score == queryThreshold && int32(t) < result.Indices()[0]) {
					if skipSelf && t == q {
						continue
					}
					result.ReplaceMin(int32(t), score)
					queryThreshold = result.MinScore()
					if queryThreshold > bestPossible {
						// Nothing in this band (or any later one) can
						// improve the heap.
						continue bands
					}
				}
			}
		}

		if result.Len() < k {
			result.Heapify()
		}
	})
	return nil
}

// knearestNoPopCounts is the fallback for targets with no popcount
// index table: a straight scan with the same heap semantics.
func knearestNoPopCounts(k int, threshold float64, numBits int, queries, targets Fingerprints, results []hits.Result) {
	numBytes := (numBits + 7) / 8
	parallelQueries(queries.Start, queries.End, func(q int) {
		result := &results[q-queries.Start]
		queryFP := queries.fp(q)[:numBytes]
		queryThreshold := threshold

		t := targets.Start
		for ; t < targets.End; t++ {
			score := bitops.Tanimoto(queryFP, targets.fp(t)[:numBytes])
			if score >= queryThreshold {
				result.AddHit(int32(t), score)
				if result.Len() == k {
					result.Heapify()
					queryThreshold = result.MinScore()
					t++
					break
				}
			}
		}
		if result.Len() == k {
			for ; t < targets.End; t++ {
				score := bitops.Tanimoto(queryFP, targets.fp(t)[:numBytes])
				if score > queryThreshold {
					result.ReplaceMin(int32(t), score)
					queryThreshold = result.MinScore()
				}
			}
		} else {
			result.Heapify()
		}
	})
}
