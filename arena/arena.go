// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package arena builds popcount-sorted, alignment-padded fingerprint
// arenas.  An arena stores N fingerprints of a fixed bit width at a
// fixed stride in one contiguous buffer, ordered by ascending popcount,
// together with a popcount index table that lets the search drivers
// restrict a scan to the popcount bands a similarity threshold can
// actually reach.
package arena

import (
	"sort"
	"unsafe"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/chem/popcount"
)

// An Arena is an immutable, popcount-sorted fingerprint collection.
//
// Bytes is the inner window: exactly N*Stride bytes whose base pointer
// satisfies the alignment requested at build time.  FrontPad and
// RearPad record how many bytes of the raw allocation sit before and
// after the window.
//
// Indices has NumBits+2 entries; Indices[p] is the position of the
// first fingerprint whose popcount is at least p, and
// Indices[NumBits+1] == N.
//
// Order records the permutation the sort applied: slot i of the arena
// holds input fingerprint Order[i].  Callers carrying identifiers or
// other per-fingerprint data alongside the arena apply the same
// permutation to them.
type Arena struct {
	NumBits  int
	Stride   int
	N        int
	Bytes    []byte
	Indices  []int
	Order    []int
	FrontPad int
	RearPad  int

	raw []byte
}

// orderRecord pairs a fingerprint's popcount with its position in the
// input, so the sort is stable over the original order.
type orderRecord struct {
	popCount int
	index    int
}

// allocAligned returns a buffer of the given size whose base pointer is
// aligned, along with the raw allocation and the padding split.  The
// padding bytes are zero.
func allocAligned(size, alignment int) (window, raw []byte, frontPad, rearPad int) {
	raw = make([]byte, size+alignment-1)
	rem := int(uintptr(unsafe.Pointer(&raw[0])) % uintptr(alignment))
	if rem != 0 {
		frontPad = alignment - rem
	}
	rearPad = alignment - 1 - frontPad
	window = raw[frontPad : frontPad+size]
	return
}

// MakeSortedAligned builds an arena from n fingerprints of numBits bits
// stored at the given stride in input.  alignment must be a power of
// two; the usual choices are 1, 4, 8, and 16.  The input is not
// modified.
//
// When the input is already sorted by popcount the fingerprints are
// copied in place; otherwise they are gathered in stable
// (popcount, original index) order.
func MakeSortedAligned(numBits, stride int, input []byte, n, alignment int) (*Arena, error) {
	numBytes := (numBits + 7) / 8
	switch {
	case numBits < 1:
		return nil, errors.E(errors.Invalid, "arena: bit width must be positive")
	case stride < numBytes:
		return nil, errors.E(errors.Invalid, "arena: stride is too small for the bit width")
	case alignment < 1 || alignment&(alignment-1) != 0:
		return nil, errors.E(errors.Invalid, "arena: alignment must be a positive power of two")
	case n < 0 || len(input) < n*stride:
		return nil, errors.E(errors.Invalid, "arena: input is too short")
	}

	a := &Arena{
		NumBits: numBits,
		Stride:  stride,
		N:       n,
		Indices: make([]int, numBits+2),
	}
	if n == 0 {
		a.Bytes = []byte{}
		return a, nil
	}

	// Alignment isn't important for this pass; the input buffer makes
	// no promises anyway.
	calc := popcount.SelectPopCount(numBits, stride, input)
	ordering := make([]orderRecord, n)
	sorted := true
	for i := 0; i < n; i++ {
		pc := calc(numBytes, input[i*stride:(i+1)*stride])
		ordering[i] = orderRecord{popCount: pc, index: i}
		if i > 0 && pc < ordering[i-1].popCount {
			sorted = false
		}
	}

	window, raw, frontPad, rearPad := allocAligned(n*stride, alignment)
	a.Bytes = window
	a.raw = raw
	a.FrontPad = frontPad
	a.RearPad = rearPad

	if sorted {
		copy(window, input[:n*stride])
	} else {
		sort.SliceStable(ordering, func(i, j int) bool {
			if ordering[i].popCount != ordering[j].popCount {
				return ordering[i].popCount < ordering[j].popCount
			}
			return ordering[i].index < ordering[j].index
		})
		for i, rec := range ordering {
			copy(window[i*stride:(i+1)*stride], input[rec.index*stride:(rec.index+1)*stride])
		}
	}
	a.Order = make([]int, n)
	for i, rec := range ordering {
		a.Order[i] = rec.index
	}
	setIndices(ordering, numBits, a.Indices)
	return a, nil
}

// setIndices fills the popcount index table from the sorted ordering
// records.  Popcounts above numBits can only come from corrupt input;
// they are clamped to numBits rather than allowed to run off the table.
func setIndices(ordering []orderRecord, numBits int, indices []int) {
	n := len(ordering)
	pc := 0
	indices[0] = 0
	for i := 0; i < n; i++ {
		for pc < ordering[i].popCount {
			pc++
			indices[pc] = i
			if pc == numBits {
				i = n
				break
			}
		}
	}
	for pc <= numBits {
		pc++
		indices[pc] = n
	}
}

// Fingerprint returns the i'th fingerprint's storage window.
func (a *Arena) Fingerprint(i int) []byte {
	return a.Bytes[i*a.Stride : (i+1)*a.Stride]
}
