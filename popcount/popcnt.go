// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package popcount

import (
	"encoding/binary"
	"math/bits"
)

// bits.OnesCount64 is a compiler intrinsic that lowers to the POPCNT
// instruction (or the arm64 CNT tree); the method is only listed when
// the hardware actually provides it, so the Go fallback path never
// shows up in the timing table.

func popCountHardware(nbytes int, fp []byte) int {
	nwords := (nbytes + 7) / 8
	n := 0
	for i := 0; i < nwords; i++ {
		n += bits.OnesCount64(binary.LittleEndian.Uint64(fp[8*i:]))
	}
	return n
}

func intersectPopCountHardware(nbytes int, fp1, fp2 []byte) int {
	nwords := (nbytes + 7) / 8
	n := 0
	for i := 0; i < nwords; i++ {
		n += bits.OnesCount64(binary.LittleEndian.Uint64(fp1[8*i:]) &
			binary.LittleEndian.Uint64(fp2[8*i:]))
	}
	return n
}
