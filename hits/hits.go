// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package hits stores similarity-search results.  Each query gets one
// Result: a variable-capacity list of (target index, score) pairs in
// the order the search driver appended them.  A ResultSet bundles the
// Results of a whole search and supports the bulk operations (reorder,
// range counting, mirroring a symmetric search's upper triangle).
package hits

import (
	"github.com/grailbio/chem"
)

// A Result holds the hits recorded for a single query.  The zero value
// is an empty result ready for use.
type Result struct {
	indices []int32
	scores  []float64
}

// Len returns the number of hits.
func (r *Result) Len() int { return len(r.indices) }

// Indices returns the target indices, aliased, in hit order.  The
// caller must not grow or shrink the slice.
func (r *Result) Indices() []int32 { return r.indices }

// Scores returns the scores, aliased, in hit order.  Scores()[i] is the
// score of Indices()[i].
func (r *Result) Scores() []float64 { return r.scores }

// The growth schedule is the CPython list resize strategy: the first
// allocation holds 6 hits, later ones add about 12.5% with a small
// floor so short lists don't thrash.
func nextCapacity(capacity int) int {
	if capacity == 0 {
		return 6
	}
	add := capacity / 8
	if capacity < 9 {
		add += 3
	} else {
		add += 6
	}
	if add < 3 {
		add = 3
	}
	return capacity + add
}

func (r *Result) grow(newCapacity int) {
	indices := make([]int32, len(r.indices), newCapacity)
	scores := make([]float64, len(r.scores), newCapacity)
	copy(indices, r.indices)
	copy(scores, r.scores)
	r.indices = indices
	r.scores = scores
}

// ensureCapacity grows the arrays once so that at least n hits fit.
func (r *Result) ensureCapacity(n int) {
	if n <= cap(r.indices) {
		return
	}
	newCapacity := cap(r.indices)
	for newCapacity < n {
		newCapacity = nextCapacity(newCapacity)
	}
	r.grow(newCapacity)
}

// AddHit appends one (target index, score) pair.
func (r *Result) AddHit(targetIndex int32, score float64) {
	if len(r.indices) == cap(r.indices) {
		r.grow(nextCapacity(cap(r.indices)))
	}
	r.indices = append(r.indices, targetIndex)
	r.scores = append(r.scores, score)
}

// Clear drops the hit arrays and resets the result to empty.
func (r *Result) Clear() {
	r.indices = nil
	r.scores = nil
}

// CountInRange returns the number of hits whose score lies in the
// interval described by min, max, and the two-character interval token
// ("[]", "[)", "(]", or "()").  Use math.Inf for an unbounded end.
func (r *Result) CountInRange(min, max float64, interval string) (int, error) {
	includeMin, includeMax, err := parseInterval(interval)
	if err != nil {
		return 0, err
	}
	if emptyRange(min, max, includeMin, includeMax) {
		return 0, nil
	}
	count := 0
	for _, s := range r.scores {
		if inRange(s, min, max, includeMin, includeMax) {
			count++
		}
	}
	return count, nil
}

// CumulativeScoreInRange returns the sum of the scores in the interval
// described by min, max, and the interval token.
func (r *Result) CumulativeScoreInRange(min, max float64, interval string) (float64, error) {
	includeMin, includeMax, err := parseInterval(interval)
	if err != nil {
		return 0, err
	}
	if emptyRange(min, max, includeMin, includeMax) {
		return 0, nil
	}
	sum := 0.0
	for _, s := range r.scores {
		if inRange(s, min, max, includeMin, includeMax) {
			sum += s
		}
	}
	return sum, nil
}

func parseInterval(interval string) (includeMin, includeMax bool, err error) {
	if len(interval) != 2 {
		return false, false, chem.BadArg
	}
	switch interval[0] {
	case '[':
		includeMin = true
	case '(':
	default:
		return false, false, chem.BadArg
	}
	switch interval[1] {
	case ']':
		includeMax = true
	case ')':
	default:
		return false, false, chem.BadArg
	}
	return includeMin, includeMax, nil
}

func emptyRange(min, max float64, includeMin, includeMax bool) bool {
	if min > max {
		return true
	}
	return min == max && !(includeMin && includeMax)
}

func inRange(s, min, max float64, includeMin, includeMax bool) bool {
	if s < min || (s == min && !includeMin) {
		return false
	}
	if s > max || (s == max && !includeMax) {
		return false
	}
	return true
}

// A ResultSet owns one Result per query, plus an opaque handle the
// caller may use to carry target identifiers alongside the indices.
type ResultSet struct {
	Targets interface{}

	rows []Result
}

// NewResultSet returns a set of n empty results.
func NewResultSet(n int) *ResultSet {
	return &ResultSet{rows: make([]Result, n)}
}

// Len returns the number of rows.
func (rs *ResultSet) Len() int { return len(rs.rows) }

// Row returns row i.
func (rs *ResultSet) Row(i int) *Result { return &rs.rows[i] }

// Rows returns all rows, aliased.
func (rs *ResultSet) Rows() []Result { return rs.rows }

// CountAll returns the number of hits across all rows whose score lies
// in the given interval.
func (rs *ResultSet) CountAll(min, max float64, interval string) (int, error) {
	total := 0
	for i := range rs.rows {
		n, err := rs.rows[i].CountInRange(min, max, interval)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// CumulativeScoreAll returns the sum of the scores across all rows in
// the given interval.
func (rs *ResultSet) CumulativeScoreAll(min, max float64, interval string) (float64, error) {
	total := 0.0
	for i := range rs.rows {
		s, err := rs.rows[i].CumulativeScoreInRange(min, max, interval)
		if err != nil {
			return 0, err
		}
		total += s
	}
	return total, nil
}

// FillLowerTriangle mirrors the hits of a fresh symmetric search: for
// every recorded hit (q, t, score) with q < t it appends (t, q, score).
// Each row is grown at most once before any mirrored hit is appended.
// Calling it twice duplicates the mirrored hits.
func (rs *ResultSet) FillLowerTriangle() {
	n := len(rs.rows)
	sizes := make([]int, n)
	counts := make([]int, n)
	for i := range rs.rows {
		sizes[i] = rs.rows[i].Len()
		for _, t := range rs.rows[i].indices {
			counts[t]++
		}
	}
	for i := range rs.rows {
		rs.rows[i].ensureCapacity(sizes[i] + counts[i])
	}
	for i := range rs.rows {
		row := &rs.rows[i]
		for j := 0; j < sizes[i]; j++ {
			rs.rows[row.indices[j]].AddHit(int32(i), row.scores[j])
		}
	}
}
