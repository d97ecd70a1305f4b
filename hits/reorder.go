// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package hits

import (
	"sort"

	"github.com/grailbio/chem"
)

// The comparison-based orderings sort the index and score arrays in
// lockstep with a stable sort, so ties keep their driver-emitted order
// beyond what the comparator itself pins down.

type pairSort struct {
	indices []int32
	scores  []float64
	less    func(i1, i2 int32, s1, s2 float64) bool
}

func (p pairSort) Len() int { return len(p.indices) }

func (p pairSort) Swap(i, j int) {
	p.indices[i], p.indices[j] = p.indices[j], p.indices[i]
	p.scores[i], p.scores[j] = p.scores[j], p.scores[i]
}

func (p pairSort) Less(i, j int) bool {
	return p.less(p.indices[i], p.indices[j], p.scores[i], p.scores[j])
}

func lessIncreasingScore(i1, i2 int32, s1, s2 float64) bool {
	if s1 != s2 {
		return s1 < s2
	}
	return i1 < i2
}

func lessDecreasingScore(i1, i2 int32, s1, s2 float64) bool {
	if s1 != s2 {
		return s1 > s2
	}
	return i1 > i2
}

func lessIncreasingIndex(i1, i2 int32, s1, s2 float64) bool { return i1 < i2 }

func lessDecreasingIndex(i1, i2 int32, s1, s2 float64) bool { return i1 > i2 }

// moveClosestFirst swaps the best-scoring hit into position 0 and
// leaves the rest alone.
func moveClosestFirst(indices []int32, scores []float64) {
	maxI := 0
	maxScore := scores[0]
	for i := 1; i < len(scores); i++ {
		if scores[i] > maxScore {
			maxScore = scores[i]
			maxI = i
		}
	}
	if maxI != 0 {
		indices[0], indices[maxI] = indices[maxI], indices[0]
		scores[0], scores[maxI] = scores[maxI], scores[0]
	}
}

func reverse(indices []int32, scores []float64) {
	for i, j := 0, len(indices)-1; i < j; i, j = i+1, j-1 {
		indices[i], indices[j] = indices[j], indices[i]
		scores[i], scores[j] = scores[j], scores[i]
	}
}

type reorderMethod struct {
	less    func(i1, i2 int32, s1, s2 float64) bool
	reorder func(indices []int32, scores []float64)
}

var reorderMethods = map[string]reorderMethod{
	"increasing-score":   {less: lessIncreasingScore},
	"decreasing-score":   {less: lessDecreasingScore},
	"increasing-index":   {less: lessIncreasingIndex},
	"decreasing-index":   {less: lessDecreasingIndex},
	"move-closest-first": {reorder: moveClosestFirst},
	"reverse":            {reorder: reverse},
}

// Reorder rearranges the hits.  The orderings are "increasing-score",
// "decreasing-score", "increasing-index", "decreasing-index",
// "move-closest-first", and "reverse"; score ties break by ascending
// index for increasing-score and by descending index for
// decreasing-score.  An unknown name returns chem.UnknownOrdering.
func (r *Result) Reorder(ordering string) error {
	m, ok := reorderMethods[ordering]
	if !ok {
		return chem.UnknownOrdering
	}
	if r.Len() <= 1 {
		return nil
	}
	if m.reorder != nil {
		m.reorder(r.indices, r.scores)
		return nil
	}
	sort.Stable(pairSort{indices: r.indices, scores: r.scores, less: m.less})
	return nil
}

// ReorderAll applies Reorder to every row.
func (rs *ResultSet) ReorderAll(ordering string) error {
	if _, ok := reorderMethods[ordering]; !ok {
		return chem.UnknownOrdering
	}
	for i := range rs.rows {
		if err := rs.rows[i].Reorder(ordering); err != nil {
			return err
		}
	}
	return nil
}
