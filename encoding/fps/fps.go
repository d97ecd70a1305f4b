// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package fps reads and writes the FPS fingerprint exchange format: a
// small "#"-prefixed header followed by one record per line, each a
// lowercase hex fingerprint and an identifier separated by a space or
// tab.  Files ending in ".gz" are read and written through gzip.
//
// The parser is strict about whitespace.  Spaces and tabs separate
// fields and a CRLF line ending is accepted; vertical tabs, form feeds,
// and carriage returns not followed by a newline are reported as
// unsupported whitespace rather than silently tolerated, since their
// handling differs between FPS producers.
package fps

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/chem"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// A Record is one fingerprint line: the decoded fingerprint bytes and
// the identifier.
type Record struct {
	Fingerprint []byte
	ID          string
}

// A Header collects the "#key=value" lines that precede the records.
type Header struct {
	NumBits  int
	Type     string
	Software string
	Source   string
	Date     string
}

// A ParseError reports a malformed record and where it was found.
type ParseError struct {
	Line int
	Code chem.Code
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("fps: line %d: %s", e.Line, e.Code)
}

// A Scanner reads FPS records.  The Scan method returns the next
// record, returning a boolean indicating whether the read succeeded.
// Scanners are not threadsafe.
type Scanner struct {
	b      *bufio.Reader
	closer io.Closer
	header Header
	hexLen int // -1 until pinned by the header or the first record
	lineno int
	begun  bool
	err    error
}

var errEOF = errors.New("eof")

// NewScanner constructs a Scanner reading raw FPS text from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{b: bufio.NewReader(r), hexLen: -1}
}

// Open constructs a Scanner for the named file, decompressing through
// gzip when the name ends in ".gz".  Call Close when done.
func Open(path string) (*Scanner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "fps: open")
	}
	if !strings.HasSuffix(path, ".gz") {
		s := NewScanner(f)
		s.closer = f
		return s, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close() // nolint: errcheck
		return nil, errors.Wrap(err, "fps: open")
	}
	s := NewScanner(gz)
	s.closer = f
	return s, nil
}

// Close releases the underlying file, if the Scanner owns one.
func (s *Scanner) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Header returns the parsed header.  It is complete once the first
// Scan has returned.
func (s *Scanner) Header() Header { return s.header }

// NumBits returns the fingerprint width in bits: the header's value if
// it had one, otherwise four bits per hex digit of the first record,
// otherwise 0.
func (s *Scanner) NumBits() int {
	if s.header.NumBits > 0 {
		return s.header.NumBits
	}
	if s.hexLen > 0 {
		return s.hexLen * 4
	}
	return 0
}

// Scan reads the next record into rec.  Once Scan returns false it
// never returns true again; check Err to distinguish end of stream
// from a malformed record.
func (s *Scanner) Scan(rec *Record) bool {
	if s.err != nil {
		return false
	}
	for {
		line, err := s.b.ReadString('\n')
		if err == io.EOF && line == "" {
			s.err = errEOF
			return false
		}
		s.lineno++
		if err == io.EOF {
			s.err = &ParseError{Line: s.lineno, Code: chem.MissingNewline}
			return false
		}
		if err != nil {
			s.err = err
			return false
		}
		if !s.begun && strings.HasPrefix(line, "#") {
			if err := s.parseHeaderLine(line); err != nil {
				s.err = err
				return false
			}
			continue
		}
		s.begun = true
		if err := s.parseRecord(line, rec); err != nil {
			s.err = err
			return false
		}
		return true
	}
}

// Err returns the scanning error, if any.
func (s *Scanner) Err() error {
	if s.err == errEOF {
		return nil
	}
	return s.err
}

func (s *Scanner) parseHeaderLine(line string) error {
	line = strings.TrimSuffix(line, "\n")
	if s.lineno == 1 && strings.HasPrefix(line, "#FPS") {
		return nil
	}
	eq := strings.IndexByte(line, '=')
	if eq < 0 {
		// Free-form comment; FPS producers emit these and readers skip
		// them.
		return nil
	}
	key, value := line[1:eq], line[eq+1:]
	switch key {
	case "num_bits":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return &ParseError{Line: s.lineno, Code: chem.BadArg}
		}
		s.header.NumBits = n
		s.hexLen = 2 * ((n + 7) / 8)
	case "type":
		s.header.Type = value
	case "software":
		s.header.Software = value
	case "source":
		s.header.Source = value
	case "date":
		s.header.Date = value
	}
	return nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// parseRecord applies the reference field grammar: a hex fingerprint,
// one or more spaces or tabs, an identifier running to the next
// whitespace, then anything up to the newline.
func (s *Scanner) parseRecord(line string, rec *Record) error {
	fail := func(code chem.Code) error {
		return &ParseError{Line: s.lineno, Code: code}
	}

	fpLen := 0
	for fpLen < len(line) && isHexDigit(line[fpLen]) {
		fpLen++
	}
	if fpLen == 0 {
		return fail(chem.MissingFingerprint)
	}
	if fpLen%2 != 0 {
		return fail(chem.BadFingerprint)
	}
	if s.hexLen != -1 && fpLen != s.hexLen {
		return fail(chem.UnexpectedFingerprintLength)
	}

	rest := line[fpLen:]
	wsLen := 0
	for wsLen < len(rest) && (rest[wsLen] == ' ' || rest[wsLen] == '\t') {
		wsLen++
	}
	if wsLen == 0 {
		switch rest[0] {
		case '\n':
			return fail(chem.MissingID)
		case '\r':
			if len(rest) > 1 && rest[1] == '\n' {
				return fail(chem.MissingID)
			}
			return fail(chem.UnsupportedWhitespace)
		case '\v', '\f':
			return fail(chem.UnsupportedWhitespace)
		default:
			return fail(chem.BadFingerprint)
		}
	}
	rest = rest[wsLen:]

	idLen := 0
	for idLen < len(rest) {
		c := rest[idLen]
		if c == ' ' || c == '\t' || c == '\n' || c == '\v' || c == '\f' || c == '\r' {
			break
		}
		idLen++
	}
	if idLen == 0 {
		return fail(chem.BadID)
	}
	switch rest[idLen] {
	case '\v', '\f':
		return fail(chem.UnsupportedWhitespace)
	case '\r':
		if idLen+1 >= len(rest) || rest[idLen+1] != '\n' {
			return fail(chem.UnsupportedWhitespace)
		}
	}

	fp, err := hex.DecodeString(line[:fpLen])
	if err != nil {
		return fail(chem.BadFingerprint)
	}
	if s.hexLen == -1 {
		s.hexLen = fpLen
	}
	rec.Fingerprint = fp
	rec.ID = rest[:idLen]
	return nil
}
