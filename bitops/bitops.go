// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package bitops provides the scalar fingerprint primitives: popcounts,
// Tanimoto similarity, containment, and in-place set operations on raw
// byte fingerprints, plus the equivalents for hex-encoded fingerprints
// used by the FPS text format.
//
// These are the reference implementations.  The popcount package holds
// the width- and alignment-specialized kernels that the search drivers
// dispatch to; every kernel there must agree with PopCount and
// IntersectPopCount here.
package bitops

import (
	"github.com/grailbio/base/simd"
)

var bytePopCounts [256]uint8

func init() {
	for i := 1; i < 256; i++ {
		bytePopCounts[i] = bytePopCounts[i>>1] + uint8(i&1)
	}
}

// PopCount returns the number of set bits in fp.
func PopCount(fp []byte) int {
	n := 0
	for _, b := range fp {
		n += int(bytePopCounts[b])
	}
	return n
}

// IntersectPopCount returns the number of bits set in both fp1 and fp2.
// The slices must have equal length.
func IntersectPopCount(fp1, fp2 []byte) int {
	n := 0
	for i, b := range fp1 {
		n += int(bytePopCounts[b&fp2[i]])
	}
	return n
}

// Tanimoto returns the Tanimoto similarity |fp1 ∧ fp2| / |fp1 ∨ fp2| of
// two equal-length fingerprints.  Two empty fingerprints have similarity
// 1.
func Tanimoto(fp1, fp2 []byte) float64 {
	unionCount, intersectCount := 0, 0
	for i, b := range fp1 {
		unionCount += int(bytePopCounts[b|fp2[i]])
		intersectCount += int(bytePopCounts[b&fp2[i]])
	}
	if unionCount == 0 {
		return 1.0
	}
	return float64(intersectCount) / float64(unionCount)
}

// Contains reports whether every set bit of sub is also set in super.
func Contains(sub, super []byte) bool {
	for i, b := range sub {
		if b&super[i] != b {
			return false
		}
	}
	return true
}

// AndInplace replaces main with main ∧ arg.  The slices must have equal
// length.
func AndInplace(main, arg []byte) {
	simd.AndInplace(main, arg)
}

// OrInplace replaces main with main ∨ arg.  The slices must have equal
// length.
func OrInplace(main, arg []byte) {
	simd.OrInplace(main, arg)
}

// AndNotInplace clears from main every bit set in arg.  The slices must
// have equal length.
func AndNotInplace(main, arg []byte) {
	for i, b := range arg {
		main[i] &^= b
	}
}
