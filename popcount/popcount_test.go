// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package popcount

import (
	"math/rand"
	"testing"

	"github.com/grailbio/chem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// kernelSizes covers the interesting shapes: sub-word, exact word
// multiples, the 96-byte Lauradoux block size, and ragged tails.
var kernelSizes = []int{1, 2, 3, 4, 7, 8, 9, 15, 16, 17, 24, 32, 63, 64, 95, 96, 97, 113, 128, 192, 256}

func roundUp(n, to int) int { return (n + to - 1) / to * to }

// TestKernelsAgree cross-checks every compiled-in kernel pair against
// the single-byte reference on random zero-padded buffers.
func TestKernelsAgree(t *testing.T) {
	// The Lauradoux tail delegates to the align8-small class, so the
	// dispatch tables must exist before kernels are called directly.
	initOnce.Do(initDefaults)
	rng := rand.New(rand.NewSource(1))
	for _, m := range compileTimeMethods {
		for _, size := range kernelSizes {
			if size < m.minSize && size > 1 {
				// Below its minimum size a kernel is never selected;
				// only the one-byte case is kept, on a zero-padded word.
				continue
			}
			padded := roundUp(size, 8)
			for iter := 0; iter < 20; iter++ {
				fp1 := make([]byte, padded)
				fp2 := make([]byte, padded)
				rng.Read(fp1[:size])
				rng.Read(fp2[:size])
				want := popCountLUT8(size, fp1)
				assert.Equal(t, want, m.PopCount(size, fp1),
					"%s popcount, size=%d", m.name, size)
				wantIntersect := intersectPopCountLUT8(size, fp1, fp2)
				assert.Equal(t, wantIntersect, m.IntersectPopCount(size, fp1, fp2),
					"%s intersect, size=%d", m.name, size)
			}
		}
	}
}

func TestMethodList(t *testing.T) {
	n := NumMethods()
	require.True(t, n >= 5)
	assert.Equal(t, "LUT8-1", MethodName(0))
	assert.Equal(t, "", MethodName(-1))
	assert.Equal(t, "", MethodName(n))
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		name := MethodName(i)
		assert.False(t, seen[name], "duplicate method %s", name)
		seen[name] = true
	}
}

func TestAlignmentClasses(t *testing.T) {
	assert.Equal(t, 4, NumAlignments())
	assert.Equal(t, "align1", AlignmentName(Align1))
	assert.Equal(t, "align4", AlignmentName(Align4))
	assert.Equal(t, "align8-small", AlignmentName(Align8Small))
	assert.Equal(t, "align8-large", AlignmentName(Align8Large))
	assert.Equal(t, "", AlignmentName(99))

	for a := 0; a < NumAlignments(); a++ {
		m, err := AlignmentMethod(a)
		require.NoError(t, err)
		assert.True(t, m >= 0 && m < NumMethods())
	}
	_, err := AlignmentMethod(-1)
	assert.Equal(t, chem.BadArg, err)
}

func TestSetAlignmentMethod(t *testing.T) {
	orig, err := AlignmentMethod(Align1)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, SetAlignmentMethod(Align1, orig))
	}()

	// Only the byte kernel fits the align1 class.
	require.NoError(t, SetAlignmentMethod(Align1, 0))
	for m := 1; m < NumMethods(); m++ {
		assert.Equal(t, chem.MethodMismatch, SetAlignmentMethod(Align1, m), "method %d", m)
	}
	assert.Equal(t, chem.BadArg, SetAlignmentMethod(Align1, NumMethods()))
	assert.Equal(t, chem.BadArg, SetAlignmentMethod(99, 0))
}

func TestSelectFastestMethod(t *testing.T) {
	for a := 0; a < NumAlignments(); a++ {
		orig, err := AlignmentMethod(a)
		require.NoError(t, err)
		best, err := SelectFastestMethod(a, 10)
		require.NoError(t, err)
		got, err := AlignmentMethod(a)
		require.NoError(t, err)
		assert.Equal(t, best, got)
		require.NoError(t, SetAlignmentMethod(a, orig))
	}
	_, err := SelectFastestMethod(-1, 10)
	assert.Equal(t, chem.BadArg, err)
}

func TestSelectPopCount(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for _, config := range []struct {
		numBits int
		stride  int
	}{
		{8, 1},
		{8, 8},
		{64, 8},
		{166, 21},
		{166, 24},
		{881, 112},
		{1024, 128},
		{2048, 256},
	} {
		numBytes := (config.numBits + 7) / 8
		buf := make([]byte, config.stride*4)
		rng.Read(buf)
		// Zero the stride padding so word kernels see zero-padded
		// fingerprints.
		for i := 0; i < 4; i++ {
			for j := i*config.stride + numBytes; j < (i+1)*config.stride; j++ {
				buf[j] = 0
			}
		}
		f := SelectPopCount(config.numBits, config.stride, buf)
		require.NotNil(t, f, "numBits=%d stride=%d", config.numBits, config.stride)
		g := SelectIntersectPopCount(config.numBits, config.stride, buf, config.stride, buf)
		require.NotNil(t, g)
		for i := 0; i < 4; i++ {
			fp := buf[i*config.stride : (i+1)*config.stride]
			want := popCountLUT8(numBytes, fp)
			assert.Equal(t, want, f(numBytes, fp))
			assert.Equal(t, want, g(numBytes, fp, fp))
		}
	}

	// A fingerprint that does not fit its stride is a caller bug.
	assert.Nil(t, SelectPopCount(64, 4, make([]byte, 64)))
	assert.Nil(t, SelectIntersectPopCount(64, 8, make([]byte, 64), 4, make([]byte, 64)))
}

func TestReportOptions(t *testing.T) {
	for _, name := range []string{"report-popcount", "report-intersect"} {
		v, err := chem.GetOption(name)
		require.NoError(t, err)
		assert.Equal(t, 0, v)
		require.NoError(t, chem.SetOption(name, 1))
		v, err = chem.GetOption(name)
		require.NoError(t, err)
		assert.Equal(t, 1, v)
		assert.Equal(t, chem.BadArg, chem.SetOption(name, 2))
		require.NoError(t, chem.SetOption(name, 0))
	}
}

func BenchmarkKernels(b *testing.B) {
	initOnce.Do(initDefaults)
	buf := make([]byte, 256)
	rand.New(rand.NewSource(3)).Read(buf)
	for _, m := range compileTimeMethods {
		if m.check != nil && !m.check() {
			continue
		}
		b.Run(m.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				m.PopCount(256, buf)
			}
		})
	}
}
