// Copyright 2025 The zipfile Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zipfile reads and writes ZIP archives.
//
// The package is built around three types. [Reader] decodes an existing
// archive: it locates the end-of-central-directory record with a backward
// signature scan, parses the central directory (including ZIP64 overrides),
// and exposes one lazily-opened [File] per entry with CRC32 verification at
// end of stream. [Writer] produces an archive on a seekable stream: each
// entry's local header is written with placeholder checksum and size fields
// that are patched in place when the entry is finalized. [Store] layers a
// map-like get/set view on top of both, pivoting from read mode to a
// buffered rewrite the first time an opened archive is mutated.
//
// Two compression methods are supported: [MethodStore] (no compression)
// and [MethodDeflate] (raw DEFLATE). Any other method tag is rejected at
// decode time. Encrypted entries and entries written with a trailing data
// descriptor are not supported.
//
// Reading an archive:
//
//	r, _ := zipfile.OpenReader("data.zip")
//	defer r.Close()
//	for _, f := range r.File {
//		data, _ := io.ReadAll(f)
//		// ...
//	}
//
// Writing an archive:
//
//	w, _ := zipfile.CreateWriter("out.zip")
//	fw, _ := w.Create("hello.txt", zipfile.WithMethod(zipfile.MethodDeflate))
//	fw.Write([]byte("hello"))
//	w.Close()
//
// A Reader, Writer or Store instance must not be used from multiple
// goroutines concurrently; all entries share one underlying stream position.
// Callers needing parallelism should open independent instances.
package zipfile

import (
	"strings"
	"time"
)

// Method identifies the per-entry compression method.
type Method uint16

// Compression methods according to the ZIP specification. These are the
// only two supported; any other tag is a decode error.
const (
	MethodStore   Method = 0 // no compression, data stored as-is
	MethodDeflate Method = 8 // raw DEFLATE, no zlib or gzip framing
)

func (m Method) valid() bool {
	return m == MethodStore || m == MethodDeflate
}

// String returns the conventional name of the method.
func (m Method) String() string {
	switch m {
	case MethodStore:
		return "Store"
	case MethodDeflate:
		return "Deflate"
	default:
		return "Unknown"
	}
}

// FileHeader describes one archive entry. It is the shape shared by the
// read and write sides: a Reader fills it from the central directory, a
// Writer accumulates it while the entry is streamed.
//
// Sizes and the local header offset are 64-bit even though the base on-disk
// format is 32-bit, to accommodate ZIP64 overrides on the read side.
type FileHeader struct {
	// Name is the archive-relative path, using forward slashes. Names are
	// validated as UTF-8 when decoded. A trailing slash marks a directory
	// pseudo-entry.
	Name string

	// Method is the compression method, always MethodStore or MethodDeflate.
	Method Method

	// ModTime is the modification time. The ZIP format stores it as a DOS
	// date/time pair with 2-second resolution; converting through an
	// archive loses sub-2-second precision.
	ModTime time.Time

	CRC32            uint32 // checksum of the uncompressed data
	CompressedSize   uint64
	UncompressedSize uint64

	offset uint64 // local header offset within the archive
}

// IsDir reports whether the entry is a directory pseudo-entry.
func (h *FileHeader) IsDir() bool {
	return strings.HasSuffix(h.Name, "/")
}
