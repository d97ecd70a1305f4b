// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package popcount provides width- and alignment-specialized popcount
// kernels for fingerprint arenas, and a dispatcher that picks the
// fastest kernel available for the host CPU and a given (bit width,
// stride, base alignment) combination.
//
// A kernel computes over the word window that covers the first nbytes
// bytes of its input, rounded up to the kernel's word size.  Callers
// must therefore hand kernels a slice that is long enough for that
// window and whose bytes past nbytes are zero; fingerprints stored at
// an arena stride that is a multiple of the word size satisfy both
// requirements for free.  Every kernel agrees with the single-byte
// reference kernel on such inputs.
package popcount

import (
	"golang.org/x/sys/cpu"
)

// A Func counts the set bits in the word window covering fp[:nbytes].
type Func func(nbytes int, fp []byte) int

// An IntersectFunc counts the bits set in both inputs over the word
// window covering the first nbytes bytes.
type IntersectFunc func(nbytes int, fp1, fp2 []byte) int

// A Method pairs a popcount kernel with its intersection variant and
// records the constraints under which the pair may run.
type Method struct {
	name      string
	alignment int
	minSize   int
	check     func() bool

	// PopCount and IntersectPopCount are the kernel entry points.
	PopCount          Func
	IntersectPopCount IntersectFunc
}

// Name returns the kernel pair's name.
func (m *Method) Name() string { return m.name }

// compileTimeMethods lists every kernel built into the library, in
// dispatch-table order.  The check function, when present, reports
// whether the host CPU can run the kernel.
var compileTimeMethods = []*Method{
	{
		name:              "LUT8-1",
		alignment:         1,
		minSize:           1,
		PopCount:          popCountLUT8,
		IntersectPopCount: intersectPopCountLUT8,
	},
	{
		name:              "LUT8-4",
		alignment:         4,
		minSize:           4,
		PopCount:          popCountLUT8x4,
		IntersectPopCount: intersectPopCountLUT8x4,
	},
	{
		name:              "LUT16-4",
		alignment:         4,
		minSize:           4,
		PopCount:          popCountLUT16,
		IntersectPopCount: intersectPopCountLUT16,
	},
	{
		name:              "Gillies",
		alignment:         8,
		minSize:           8,
		PopCount:          popCountGillies,
		IntersectPopCount: intersectPopCountGillies,
	},
	{
		name:              "Lauradoux",
		alignment:         8,
		minSize:           96,
		PopCount:          popCountLauradoux,
		IntersectPopCount: intersectPopCountLauradoux,
	},
	{
		name:              "popcnt",
		alignment:         8,
		minSize:           8,
		check:             hasHardwarePopCount,
		PopCount:          popCountHardware,
		IntersectPopCount: intersectPopCountHardware,
	},
}

func hasHardwarePopCount() bool {
	return cpu.X86.HasPOPCNT || cpu.ARM64.HasASIMD
}

var detectedMethods []*Method

func detectMethods() {
	if detectedMethods != nil {
		return
	}
	for _, m := range compileTimeMethods {
		if m.check == nil || m.check() {
			detectedMethods = append(detectedMethods, m)
		}
	}
}

// NumMethods returns the number of kernel pairs runnable on this host.
func NumMethods() int {
	initOnce.Do(initDefaults)
	return len(detectedMethods)
}

// MethodName returns the name of runnable method i, or "" if i is out
// of range.
func MethodName(i int) string {
	initOnce.Do(initDefaults)
	if i < 0 || i >= len(detectedMethods) {
		return ""
	}
	return detectedMethods[i].name
}
