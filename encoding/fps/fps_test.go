// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package fps

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/chem"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `#FPS1
#num_bits=16
#type=Test/1
#software=chem/1.1.0
000f	first
ff00 second
0f0f	third	extra ignored
`

func TestScanner(t *testing.T) {
	s := NewScanner(strings.NewReader(sample))
	var recs []Record
	var rec Record
	for s.Scan(&rec) {
		recs = append(recs, Record{
			Fingerprint: append([]byte(nil), rec.Fingerprint...),
			ID:          rec.ID,
		})
	}
	require.NoError(t, s.Err())
	require.Equal(t, 3, len(recs))
	assert.Equal(t, Record{[]byte{0x00, 0x0f}, "first"}, recs[0])
	assert.Equal(t, Record{[]byte{0xff, 0x00}, "second"}, recs[1])
	assert.Equal(t, Record{[]byte{0x0f, 0x0f}, "third"}, recs[2])
	assert.Equal(t, 16, s.NumBits())
	assert.Equal(t, "Test/1", s.Header().Type)
	assert.Equal(t, "chem/1.1.0", s.Header().Software)
}

func TestScannerWithoutHeader(t *testing.T) {
	s := NewScanner(strings.NewReader("deadbeef\tid1\ncafef00d\tid2\n"))
	var rec Record
	require.True(t, s.Scan(&rec))
	require.True(t, s.Scan(&rec))
	require.False(t, s.Scan(&rec))
	require.NoError(t, s.Err())
	// Width pinned by the first record: 8 hex digits.
	assert.Equal(t, 32, s.NumBits())
}

func scanAll(input string) error {
	s := NewScanner(strings.NewReader(input))
	var rec Record
	for s.Scan(&rec) {
	}
	return s.Err()
}

func parseCode(t *testing.T, err error) chem.Code {
	t.Helper()
	perr, ok := err.(*ParseError)
	require.True(t, ok, "expected *ParseError, got %v", err)
	return perr.Code
}

func TestScannerErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  chem.Code
	}{
		{"missing fingerprint", "\tid\n", chem.MissingFingerprint},
		{"odd hex length", "00f\tid\n", chem.BadFingerprint},
		{"bad fingerprint char", "00ga\tid\n", chem.BadFingerprint},
		{"wrong length", "00ff\ta\n00\tb\n", chem.UnexpectedFingerprintLength},
		{"missing id", "00ff\n", chem.MissingID},
		{"missing id crlf", "00ff\r\n", chem.MissingID},
		{"missing newline", "00ff\tid", chem.MissingNewline},
		{"form feed", "00ff\fid\n", chem.UnsupportedWhitespace},
		{"vertical tab", "00ff\vid\n", chem.UnsupportedWhitespace},
		{"bare carriage return", "00ff\rid\n", chem.UnsupportedWhitespace},
		{"cr inside id", "00ff\tid\rmore\n", chem.UnsupportedWhitespace},
		{"missing id field", "00ff \n", chem.BadID},
	}
	for _, test := range tests {
		err := scanAll(test.input)
		require.Error(t, err, test.name)
		assert.Equal(t, test.code, parseCode(t, err), test.name)
	}
}

func TestParseErrorLineNumbers(t *testing.T) {
	err := scanAll("00ff\tok\n00f\tbroken\n")
	perr, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, 2, perr.Line)
	assert.Contains(t, perr.Error(), "line 2")
}

func TestWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Header{NumBits: 16, Type: "Test/1"})
	require.NoError(t, err)
	require.NoError(t, w.Write(&Record{Fingerprint: []byte{0x00, 0x0f}, ID: "first"}))
	require.NoError(t, w.Write(&Record{Fingerprint: []byte{0xff, 0x00}, ID: "second"}))
	require.NoError(t, w.Close())

	s := NewScanner(&buf)
	var rec Record
	require.True(t, s.Scan(&rec))
	assert.Equal(t, []byte{0x00, 0x0f}, rec.Fingerprint)
	assert.Equal(t, "first", rec.ID)
	require.True(t, s.Scan(&rec))
	assert.Equal(t, "second", rec.ID)
	require.False(t, s.Scan(&rec))
	require.NoError(t, s.Err())
	assert.Equal(t, 16, s.Header().NumBits)
}

func TestGzipRoundTrip(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "fps")
	defer cleanup()
	path := filepath.Join(tmpDir, "test.fps.gz")

	w, err := Create(path, Header{NumBits: 16})
	require.NoError(t, err)
	require.NoError(t, w.Write(&Record{Fingerprint: []byte{0x0f, 0x0f}, ID: "zip"}))
	require.NoError(t, w.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close() // nolint: errcheck
	var rec Record
	require.True(t, s.Scan(&rec))
	assert.Equal(t, []byte{0x0f, 0x0f}, rec.Fingerprint)
	assert.Equal(t, "zip", rec.ID)
	require.False(t, s.Scan(&rec))
	require.NoError(t, s.Err())
}

func TestReadArena(t *testing.T) {
	input := "#FPS1\n#num_bits=16\nffff\tdense\n0100\tsparse\n0f0f\tmedium\n"
	s := NewScanner(strings.NewReader(input))
	a, ids, err := s.ReadArena(0, 8)
	require.NoError(t, err)
	assert.Equal(t, 3, a.N)
	assert.Equal(t, 8, a.Stride)
	// Sorted by popcount: 1, 8, 16 bits.
	assert.Equal(t, []string{"sparse", "medium", "dense"}, ids)
	assert.Equal(t, []byte{0x01, 0x00}, a.Fingerprint(0)[:2])
	assert.Equal(t, []byte{0xff, 0xff}, a.Fingerprint(2)[:2])
	assert.Equal(t, 3, a.Indices[16+1])
}
