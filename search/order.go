// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package search

// A k-nearest search wants to visit popcount bands in order of
// decreasing best-possible score, not in index order: for a query with
// popcount p, a target band with popcount t can do no better than
// min(p, t)/max(p, t).  bandOrder walks the bands outward from the
// query popcount, at each step taking whichever direction still has the
// higher bound, and finishes as soon as the bound falls below the
// running threshold.
type bandOrder struct {
	direction     int
	queryPopCount int
	maxPopCount   int
	popCount      int
	upPopCount    int
	downPopCount  int
	score         float64
}

const (
	upOrDown = iota
	upOnly
	downOnly
	finished
)

func (o *bandOrder) init(queryPopCount, maxPopCount int) {
	o.queryPopCount = queryPopCount
	o.popCount = queryPopCount
	o.maxPopCount = maxPopCount
	if queryPopCount <= 1 {
		o.direction = upOnly
		o.downPopCount = 0
	} else {
		o.direction = upOrDown
		o.downPopCount = queryPopCount - 1
	}
	o.upPopCount = queryPopCount
}

func (o *bandOrder) noHigher() {
	switch o.direction {
	case upOrDown:
		o.direction = downOnly
	case upOnly:
		o.direction = finished
	}
}

func (o *bandOrder) noLower() {
	switch o.direction {
	case upOrDown:
		o.direction = upOnly
	case downOnly:
		o.direction = finished
	}
}

func (o *bandOrder) upScore() float64 {
	return float64(o.queryPopCount) / float64(o.upPopCount)
}

func (o *bandOrder) downScore() float64 {
	return float64(o.downPopCount) / float64(o.queryPopCount)
}

// next advances to the band with the next-best bound.  It returns false
// once the bands are exhausted or the bound cannot reach the threshold.
func (o *bandOrder) next(threshold float64) bool {
	switch o.direction {
	case upOrDown:
		up, down := o.upScore(), o.downScore()
		if up >= down {
			o.popCount = o.upPopCount
			o.score = up
			o.upPopCount++
			if o.upPopCount > o.maxPopCount {
				o.direction = downOnly
			}
		} else {
			o.popCount = o.downPopCount
			o.score = down
			o.downPopCount--
			if o.downPopCount < 0 {
				o.direction = upOnly
			}
		}
	case upOnly:
		o.score = o.upScore()
		o.popCount = o.upPopCount
		o.upPopCount++
		if o.upPopCount > o.maxPopCount {
			o.direction = finished
		}
	case downOnly:
		o.score = o.downScore()
		o.popCount = o.downPopCount
		o.downPopCount--
		if o.downPopCount < 0 {
			o.direction = finished
		}
	default:
		return false
	}
	if o.score < threshold {
		o.direction = finished
		return false
	}
	return true
}

// popCountSection returns the current band's section of the popcount
// index table.
func (o *bandOrder) popCountSection(indices []int) (start, end int) {
	return indices[o.popCount], indices[o.popCount+1]
}

// checkBounds clamps a band's index section to the target range.  A
// section entirely outside the range also tells us that every band
// further in that direction is outside, so the walk direction is
// trimmed as a side effect.  It returns false when there is nothing to
// scan in this band.
func (o *bandOrder) checkBounds(start, end *int, targetStart, targetEnd int) bool {
	if *start > targetEnd {
		o.noHigher()
		return false
	}
	if *end < targetStart {
		o.noLower()
		return false
	}
	if *start < targetStart {
		o.noLower()
		*start = targetStart
	}
	if *end > targetEnd {
		o.noHigher()
		*end = targetEnd
	}
	return true
}
