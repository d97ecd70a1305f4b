// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package fps

import (
	"github.com/grailbio/chem/arena"
)

// ReadArena drains the scanner and builds a popcount-sorted arena from
// every remaining record.  stride is the per-fingerprint storage size;
// 0 means the fingerprint byte length rounded up to a multiple of 8,
// which keeps the 8-byte kernels eligible.  The returned identifiers
// are in arena order.
func (s *Scanner) ReadArena(stride, alignment int) (*arena.Arena, []string, error) {
	var (
		fingerprints [][]byte
		ids          []string
		rec          Record
	)
	for s.Scan(&rec) {
		fingerprints = append(fingerprints, rec.Fingerprint)
		ids = append(ids, rec.ID)
	}
	if err := s.Err(); err != nil {
		return nil, nil, err
	}

	numBits := s.NumBits()
	numBytes := (numBits + 7) / 8
	if stride == 0 {
		stride = (numBytes + 7) &^ 7
	}
	packed := make([]byte, len(fingerprints)*stride)
	for i, fp := range fingerprints {
		copy(packed[i*stride:], fp)
	}
	a, err := arena.MakeSortedAligned(numBits, stride, packed, len(fingerprints), alignment)
	if err != nil {
		return nil, nil, err
	}
	sortedIDs := make([]string, len(ids))
	for i, from := range a.Order {
		sortedIDs[i] = ids[from]
	}
	return a, sortedIDs, nil
}
