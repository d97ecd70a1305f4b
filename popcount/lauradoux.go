// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package popcount

import (
	"encoding/binary"
)

// 64-bit tree-merging popcount due to Cédric Lauradoux, as tuned by Kim
// Walisch: the carry-save adder network folds three words into two
// before reducing, so the outer loop costs about 8 operations per 8
// bytes.  Each iteration consumes 12 words (96 bytes); the tail is
// finished with whatever kernel currently backs the 8-byte-small
// alignment class.

func popCountLauradoux(nbytes int, fp []byte) int {
	nwords := (nbytes + 7) / 8
	limit := nwords - nwords%12
	n := 0
	for i := 0; i < limit; i += 12 {
		acc := uint64(0)
		for j := 0; j < 12; j += 3 {
			count1 := binary.LittleEndian.Uint64(fp[8*(i+j):])
			count2 := binary.LittleEndian.Uint64(fp[8*(i+j+1):])
			w := binary.LittleEndian.Uint64(fp[8*(i+j+2):])
			half1 := w & m1
			half2 := (w >> 1) & m1
			count1 -= (count1 >> 1) & m1
			count2 -= (count2 >> 1) & m1
			count1 += half1
			count2 += half2
			count1 = (count1 & m2) + ((count1 >> 2) & m2)
			count1 += (count2 & m2) + ((count2 >> 2) & m2)
			acc += (count1 & m4) + ((count1 >> 4) & m4)
		}
		acc = (acc & m8) + ((acc >> 8) & m8)
		acc = (acc + (acc >> 16)) & m16
		acc = acc + (acc >> 32)
		n += int(acc)
	}
	if tail := nbytes - limit*8; tail > 0 {
		n += alignClasses[Align8Small].method.PopCount(tail, fp[limit*8:])
	}
	return n
}

func intersectPopCountLauradoux(nbytes int, fp1, fp2 []byte) int {
	nwords := (nbytes + 7) / 8
	limit := nwords - nwords%12
	n := 0
	for i := 0; i < limit; i += 12 {
		acc := uint64(0)
		for j := 0; j < 12; j += 3 {
			count1 := binary.LittleEndian.Uint64(fp1[8*(i+j):]) &
				binary.LittleEndian.Uint64(fp2[8*(i+j):])
			count2 := binary.LittleEndian.Uint64(fp1[8*(i+j+1):]) &
				binary.LittleEndian.Uint64(fp2[8*(i+j+1):])
			w := binary.LittleEndian.Uint64(fp1[8*(i+j+2):]) &
				binary.LittleEndian.Uint64(fp2[8*(i+j+2):])
			half1 := w & m1
			half2 := (w >> 1) & m1
			count1 -= (count1 >> 1) & m1
			count2 -= (count2 >> 1) & m1
			count1 += half1
			count2 += half2
			count1 = (count1 & m2) + ((count1 >> 2) & m2)
			count1 += (count2 & m2) + ((count2 >> 2) & m2)
			acc += (count1 & m4) + ((count1 >> 4) & m4)
		}
		acc = (acc & m8) + ((acc >> 8) & m8)
		acc = (acc + (acc >> 16)) & m16
		acc = acc + (acc >> 32)
		n += int(acc)
	}
	if tail := nbytes - limit*8; tail > 0 {
		n += alignClasses[Align8Small].method.IntersectPopCount(tail, fp1[limit*8:], fp2[limit*8:])
	}
	return n
}
