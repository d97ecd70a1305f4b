// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package fps

import (
	"bufio"
	"encoding/hex"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// A Writer emits FPS text.
type Writer struct {
	b      *bufio.Writer
	gz     *gzip.Writer
	closer io.Closer
}

// NewWriter constructs a Writer that writes the header followed by
// records to w.
func NewWriter(w io.Writer, header Header) (*Writer, error) {
	fw := &Writer{b: bufio.NewWriter(w)}
	return fw, fw.writeHeader(header)
}

// Create constructs a Writer for the named file, compressing through
// gzip when the name ends in ".gz".  Call Close when done.
func Create(path string, header Header) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "fps: create")
	}
	fw := &Writer{closer: f}
	if strings.HasSuffix(path, ".gz") {
		fw.gz = gzip.NewWriter(f)
		fw.b = bufio.NewWriter(fw.gz)
	} else {
		fw.b = bufio.NewWriter(f)
	}
	if err := fw.writeHeader(header); err != nil {
		f.Close() // nolint: errcheck
		return nil, err
	}
	return fw, nil
}

func (w *Writer) writeHeader(header Header) error {
	if _, err := w.b.WriteString("#FPS1\n"); err != nil {
		return err
	}
	writeField := func(key, value string) error {
		if value == "" {
			return nil
		}
		_, err := w.b.WriteString("#" + key + "=" + value + "\n")
		return err
	}
	if header.NumBits > 0 {
		if err := writeField("num_bits", strconv.Itoa(header.NumBits)); err != nil {
			return err
		}
	}
	for _, field := range []struct{ key, value string }{
		{"type", header.Type},
		{"software", header.Software},
		{"source", header.Source},
		{"date", header.Date},
	} {
		if err := writeField(field.key, field.value); err != nil {
			return err
		}
	}
	return nil
}

// Write emits one record.
func (w *Writer) Write(rec *Record) error {
	if _, err := w.b.WriteString(hex.EncodeToString(rec.Fingerprint)); err != nil {
		return err
	}
	if err := w.b.WriteByte('\t'); err != nil {
		return err
	}
	if _, err := w.b.WriteString(rec.ID); err != nil {
		return err
	}
	return w.b.WriteByte('\n')
}

// Close flushes buffered records and releases the underlying file, if
// the Writer owns one.
func (w *Writer) Close() error {
	if err := w.b.Flush(); err != nil {
		return err
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			return err
		}
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
