// Copyright 2025 The zipfile Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipfile

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// maxWriteChunk bounds the size of a single write handed to the compression
// engine. Larger caller buffers are split into chunks of at most this size.
const maxWriteChunk = 1 << 30

// compressor is the write side of the compression adapter: a streaming
// writer keyed by method whose Close flushes any buffered output. The
// number of bytes it reports downstream is the compressed byte count.
type compressor interface {
	io.Writer
	io.Closer
}

// nopCompressor implements the Store method: bytes pass straight through.
type nopCompressor struct {
	dest io.Writer
}

func (c *nopCompressor) Write(p []byte) (int, error) { return c.dest.Write(p) }
func (c *nopCompressor) Close() error                { return nil }

// newCompressor returns the streaming compressor for the given method,
// writing its output to dest. The method set is closed: anything other
// than Store or Deflate is ErrAlgorithm.
func newCompressor(m Method, dest io.Writer) (compressor, error) {
	switch m {
	case MethodStore:
		return &nopCompressor{dest: dest}, nil
	case MethodDeflate:
		fw, err := flate.NewWriter(dest, flate.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("new deflate writer: %w", err)
		}
		return fw, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrAlgorithm, m)
	}
}

// newDecompressor returns the streaming decompressor for the given method.
// src must be bounded to exactly the entry's compressed size; for Deflate
// the stream is additionally expected to report its own logical end at
// that point.
func newDecompressor(m Method, src io.Reader) (io.ReadCloser, error) {
	switch m {
	case MethodStore:
		return io.NopCloser(src), nil
	case MethodDeflate:
		return flate.NewReader(src), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrAlgorithm, m)
	}
}
