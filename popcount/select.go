// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package popcount

import (
	"encoding/binary"
	"sync"
	"time"
	"unsafe"

	"github.com/grailbio/base/log"
	"github.com/grailbio/chem"
)

// Alignment classes.  A class's default kernel pair is chosen by timing
// at first use; callers may override it with SetAlignmentMethod.
const (
	Align1 = iota
	Align4
	Align8Small
	Align8Large
)

// Indices into compileTimeMethods.
const (
	lut8x1Method = iota
	lut8x4Method
	lut16Method
	gilliesMethod
	lauradouxMethod
	popcntMethod
)

type alignmentClass struct {
	name      string
	alignment int
	minSize   int
	method    *Method
}

var alignClasses = [...]alignmentClass{
	{name: "align1", alignment: 1, minSize: 1},
	{name: "align4", alignment: 4, minSize: 4},
	{name: "align8-small", alignment: 8, minSize: 8},
	{name: "align8-large", alignment: 8, minSize: 96},
}

var (
	mu       sync.Mutex
	initOnce sync.Once
)

// probeWords is 256 bytes of fixed random data used to time kernels
// against each other.  A uint64 array keeps the backing store 8-byte
// aligned.
var probeWords = [32]uint64{
	0x9b649615d1a50133, 0xf3b8dada0e8b43de, 0x0197e207e4b9af2b, 0x68a2ecc4053b1305,
	0x93d933ac2f41e28f, 0xb460859e01b6f925, 0xc2c1a9eacc9e4999, 0xdc5237f8200aec07,
	0x9e3bbe45d6e67641, 0xa49bed7d060407d4, 0xcca5f2913af53c5b, 0xfdd53575aab7c21a,
	0x76b82d57bfa5c9dd, 0x0d2a87ba7f2439ed, 0x9ec6a4ee2a6999d4, 0xb9ae55f1f402ac97,
	0x08bbc6d1719a56bd, 0x969e5ef023c9ed23, 0x6b7f08af661a9db6, 0xad394da52bbbe18d,
	0xdf9c3e28aae1c460, 0xcf82e77d4f02f1ef, 0x1fb88cdb648008ec, 0xc7a2ab7ecb8f84f5,
	0xbf8ef6833f18d407, 0xb9c7eafdb4653fa2, 0x90114b93b87a8a1d, 0x6e572c9e42e5061c,
	0xb694ec549eeabc20, 0xb362909621b9a2c8, 0xcadab7b921d3cd0a, 0xd27f7aef7e2a0c6f,
}

var probeBuffer []byte

func init() {
	probeBuffer = make([]byte, len(probeWords)*8)
	for i, w := range probeWords {
		binary.LittleEndian.PutUint64(probeBuffer[8*i:], w)
	}
}

func timeIt(f Func, size, repeat int) time.Duration {
	if size > len(probeBuffer) {
		size = len(probeBuffer)
	}
	start := time.Now()
	for i := 0; i < repeat; i++ {
		f(size, probeBuffer)
	}
	return time.Since(start)
}

// timeTwice runs the probe loop twice and keeps the smaller elapsed
// time, which mostly cancels out scheduler jitter.
func timeTwice(f Func, size, repeat int) time.Duration {
	first := timeIt(f, size, repeat)
	second := timeIt(f, size, repeat)
	if first < second {
		return first
	}
	return second
}

func initDefaults() {
	detectMethods()

	// The single-byte LUT is the only possibility for align1.
	alignClasses[Align1].method = compileTimeMethods[lut8x1Method]

	// On older hardware LUT16 loses to LUT8 because of its cache
	// footprint, so measure rather than assume.
	lut8Time := timeTwice(compileTimeMethods[lut8x4Method].PopCount, 128, 700)
	lut16Time := timeTwice(compileTimeMethods[lut16Method].PopCount, 128, 700)
	lutMethod := lut8x4Method
	lutTime := lut8Time
	if lut16Time < lut8Time {
		lutMethod = lut16Method
		lutTime = lut16Time
	}
	alignClasses[Align4].method = compileTimeMethods[lutMethod]

	if hasHardwarePopCount() {
		alignClasses[Align8Small].method = compileTimeMethods[popcntMethod]
		alignClasses[Align8Large].method = compileTimeMethods[popcntMethod]
		return
	}

	// No hardware popcount.  The small class takes the faster of the
	// LUT winner and Gillies; it must be settled before Lauradoux is
	// timed because Lauradoux finishes its tail with the small-class
	// kernel.
	smallMethod := lutMethod
	smallTime := lutTime
	gilliesTime := timeTwice(compileTimeMethods[gilliesMethod].PopCount, 128, 700)
	if gilliesTime < smallTime {
		smallMethod = gilliesMethod
		smallTime = gilliesTime
	}
	alignClasses[Align8Small].method = compileTimeMethods[smallMethod]

	lauradouxTime := timeTwice(compileTimeMethods[lauradouxMethod].PopCount, 128, 700)
	if lauradouxTime < smallTime {
		alignClasses[Align8Large].method = compileTimeMethods[lauradouxMethod]
	} else {
		alignClasses[Align8Large].method = compileTimeMethods[smallMethod]
	}
}

// NumAlignments returns the number of alignment classes.
func NumAlignments() int {
	initOnce.Do(initDefaults)
	return len(alignClasses)
}

// AlignmentName returns the name of alignment class a, or "" if a is
// out of range.
func AlignmentName(a int) string {
	initOnce.Do(initDefaults)
	if a < 0 || a >= len(alignClasses) {
		return ""
	}
	return alignClasses[a].name
}

// AlignmentMethod returns the index (into the runnable-method list) of
// the kernel pair currently bound to alignment class a.
func AlignmentMethod(a int) (int, error) {
	initOnce.Do(initDefaults)
	mu.Lock()
	defer mu.Unlock()
	return alignmentMethodLocked(a)
}

func alignmentMethodLocked(a int) (int, error) {
	if a < 0 || a >= len(alignClasses) {
		return 0, chem.BadArg
	}
	for i, m := range detectedMethods {
		if m == alignClasses[a].method {
			return i, nil
		}
	}
	return 0, chem.BadArg
}

// SetAlignmentMethod binds runnable method m to alignment class a.  It
// returns chem.MethodMismatch when the method requires stronger
// alignment or a larger minimum size than the class guarantees.
func SetAlignmentMethod(a, m int) error {
	initOnce.Do(initDefaults)
	mu.Lock()
	defer mu.Unlock()
	return setAlignmentMethodLocked(a, m)
}

func setAlignmentMethodLocked(a, m int) error {
	if a < 0 || a >= len(alignClasses) {
		return chem.BadArg
	}
	if m < 0 || m >= len(detectedMethods) {
		return chem.BadArg
	}
	if detectedMethods[m].alignment > alignClasses[a].alignment {
		return chem.MethodMismatch
	}
	if detectedMethods[m].minSize > alignClasses[a].minSize {
		return chem.MethodMismatch
	}
	alignClasses[a].method = detectedMethods[m]
	return nil
}

// SelectFastestMethod retimes every usable kernel pair for alignment
// class a and binds the winner, returning its method index.  repeat is
// the probe loop count; tune it so the fastest kernel still takes tens
// of microseconds.
func SelectFastestMethod(a, repeat int) (int, error) {
	initOnce.Do(initDefaults)
	mu.Lock()
	defer mu.Unlock()

	oldMethod, err := alignmentMethodLocked(a)
	if err != nil {
		return 0, err
	}
	probeSize := 2048 / 8
	if a == Align8Small {
		probeSize = 64
	}

	bestMethod := -1
	var bestTime time.Duration
	for m := range detectedMethods {
		if setAlignmentMethodLocked(a, m) != nil {
			continue
		}
		dt := timeIt(alignClasses[a].method.PopCount, probeSize, repeat)
		if bestMethod == -1 || dt < bestTime {
			bestMethod = m
			bestTime = dt
		}
	}
	if bestMethod == -1 {
		bestMethod = oldMethod
	}
	if err := setAlignmentMethodLocked(a, bestMethod); err != nil {
		return 0, err
	}
	return bestMethod, nil
}

func baseAligned(arena []byte, align int) bool {
	if len(arena) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&arena[0]))%uintptr(align) == 0
}

// SelectPopCount returns the popcount kernel to use for fingerprints of
// numBits bits stored at the given stride in arena.  It returns nil
// when the fingerprint does not fit in the stride.
func SelectPopCount(numBits, stride int, arena []byte) Func {
	numBytes := (numBits + 7) / 8
	if numBytes > stride {
		return nil
	}
	initOnce.Do(initDefaults)
	mu.Lock()
	defer mu.Unlock()

	var class int
	switch {
	case numBytes <= 1:
		class = Align1
	case baseAligned(arena, 8) && stride%8 == 0:
		if numBytes >= 96 {
			class = Align8Large
		} else {
			class = Align8Small
		}
	case baseAligned(arena, 4) && stride%4 == 0:
		class = Align4
	default:
		class = Align1
	}
	m := alignClasses[class].method
	if reportPopCount != 0 {
		log.Debug.Printf("popcount: selected %s for %d bits, stride %d (%s)",
			m.name, numBits, stride, alignClasses[class].name)
	}
	return m.PopCount
}

// SelectIntersectPopCount returns the intersection-popcount kernel to
// use for fingerprints of numBits bits stored at stride1 in arena1 and
// stride2 in arena2.  It returns nil when the fingerprint does not fit
// in either stride.
func SelectIntersectPopCount(numBits, stride1 int, arena1 []byte, stride2 int, arena2 []byte) IntersectFunc {
	stride := stride1
	if stride2 < stride {
		stride = stride2
	}
	numBytes := (numBits + 7) / 8
	if numBytes > stride {
		return nil
	}
	initOnce.Do(initDefaults)
	mu.Lock()
	defer mu.Unlock()

	var class int
	switch {
	case numBytes <= 1:
		class = Align1
	case baseAligned(arena1, 8) && baseAligned(arena2, 8) &&
		stride1%8 == 0 && stride2%8 == 0:
		if numBytes >= 96 {
			class = Align8Large
		} else {
			class = Align8Small
		}
	case baseAligned(arena1, 4) && baseAligned(arena2, 4) &&
		stride1%4 == 0 && stride2%4 == 0:
		class = Align4
	default:
		class = Align1
	}
	m := alignClasses[class].method
	if reportIntersect != 0 {
		log.Debug.Printf("popcount: selected %s intersect for %d bits (%s)",
			m.name, numBits, alignClasses[class].name)
	}
	return m.IntersectPopCount
}

// Diagnostic settings, exposed through the chem option registry.
var (
	reportPopCount  int
	reportIntersect int
)

func init() {
	chem.RegisterOption("report-popcount",
		func() int { mu.Lock(); defer mu.Unlock(); return reportPopCount },
		func(v int) error {
			if v != 0 && v != 1 {
				return chem.BadArg
			}
			mu.Lock()
			defer mu.Unlock()
			reportPopCount = v
			return nil
		})
	chem.RegisterOption("report-intersect",
		func() int { mu.Lock(); defer mu.Unlock(); return reportIntersect },
		func(v int) error {
			if v != 0 && v != 1 {
				return chem.BadArg
			}
			mu.Lock()
			defer mu.Unlock()
			reportIntersect = v
			return nil
		})
}
