// Copyright 2025 The zipfile Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipfile

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"
	"os"
	"time"

	"github.com/zipfile-go/zipfile/internal"
)

// zipVersion is the version-needed-to-extract (and version-made-by)
// emitted in every record: 2.0, the floor for deflate entries.
const zipVersion = 20

// Writer produces a ZIP archive on a seekable stream.
//
// At most one entry is open for writing at any time: Create finalizes the
// previous entry before starting the next. Each local header is written
// with zeroed CRC32 and size fields, which are patched in place when the
// entry is finalized; this is why the destination must seek. Close emits
// the central directory and end record.
type Writer struct {
	dest    io.WriteSeeker
	closer  io.Closer // set when the Writer opened the destination itself
	off     int64     // current logical write position
	err     error     // construction failure, surfaced on first use
	entries []*FileWriter
	cur     *FileWriter // entry currently open for writing, if any
	comment string
	closed  bool
}

// CreateWriter creates (or truncates) the named file and returns a Writer
// over it. Closing the Writer closes the file.
func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	zw := NewWriter(f)
	zw.closer = f
	return zw, nil
}

// NewWriter returns a Writer that appends an archive to dest starting at
// its current position. The caller retains ownership of dest; Close does
// not close it. A destination that cannot report its position makes every
// recorded offset wrong, so that failure is surfaced on the first Create.
func NewWriter(dest io.WriteSeeker) *Writer {
	zw := &Writer{dest: dest}
	off, err := dest.Seek(0, io.SeekCurrent)
	if err != nil {
		zw.err = fmt.Errorf("seek current: %w", err)
		return zw
	}
	zw.off = off
	return zw
}

// SetComment sets the archive-level comment written into the end record.
func (zw *Writer) SetComment(comment string) error {
	if len(comment) > math.MaxUint16 {
		return fmt.Errorf("%w (%d bytes)", ErrCommentTooLong, len(comment))
	}
	zw.comment = comment
	return nil
}

// CreateOption configures a single entry at creation time.
type CreateOption func(h *FileHeader)

// WithMethod sets the entry's compression method. The default is Deflate.
func WithMethod(m Method) CreateOption {
	return func(h *FileHeader) {
		h.Method = m
	}
}

// WithModTime sets the entry's modification time. The default is the
// current time. The on-disk encoding has 2-second resolution.
func WithModTime(t time.Time) CreateOption {
	return func(h *FileHeader) {
		h.ModTime = t
	}
}

// Create starts a new entry and returns it for writing. A previously open
// entry is finalized first; its placeholder CRC32 and size fields are
// patched before the new local header is written, so entry data never
// interleaves.
func (zw *Writer) Create(name string, options ...CreateOption) (*FileWriter, error) {
	if zw.closed {
		return nil, ErrClosed
	}
	if zw.err != nil {
		return nil, zw.err
	}
	if len(name) > math.MaxUint16 {
		return nil, fmt.Errorf("%w (%d bytes)", ErrNameTooLong, len(name))
	}

	if zw.cur != nil {
		if err := zw.cur.Close(); err != nil {
			return nil, err
		}
	}

	fw := &FileWriter{
		FileHeader: FileHeader{
			Name:    name,
			Method:  MethodDeflate,
			ModTime: time.Now(),
			offset:  uint64(zw.off),
		},
		zw: zw,
	}
	for _, opt := range options {
		opt(&fw.FileHeader)
	}
	if !fw.Method.valid() {
		return nil, fmt.Errorf("%w: %d", ErrAlgorithm, fw.Method)
	}

	if err := zw.writeLocalHeader(fw); err != nil {
		return nil, err
	}

	fw.count = &countWriter{dest: zw.dest}
	comp, err := newCompressor(fw.Method, fw.count)
	if err != nil {
		return nil, err
	}
	fw.comp = comp
	fw.hash = crc32.NewIEEE()

	zw.entries = append(zw.entries, fw)
	zw.cur = fw
	return fw, nil
}

// writeLocalHeader emits the entry's local header with zeroed CRC32 and
// size fields. The real values are patched in by FileWriter.Close.
func (zw *Writer) writeLocalHeader(fw *FileWriter) error {
	dosDate, dosTime := timeToMsDos(fw.ModTime)
	header := internal.LocalFileHeader{
		VersionNeededToExtract: zipVersion,
		CompressionMethod:      uint16(fw.Method),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		FilenameLength:         uint16(len(fw.Name)),
		Filename:               fw.Name,
	}

	n, err := zw.dest.Write(header.Encode())
	zw.off += int64(n)
	if err != nil {
		return fmt.Errorf("write local header: %w", err)
	}
	return nil
}

// Close finalizes the current entry if any, writes the central directory
// and end-of-central-directory record, and closes the underlying stream
// if the Writer opened it itself. The metadata written here was computed
// incrementally while the entries streamed, so no validation remains.
func (zw *Writer) Close() error {
	if zw.closed {
		return nil
	}

	if zw.cur != nil {
		if err := zw.cur.Close(); err != nil {
			return err
		}
	}
	zw.closed = true

	if zw.err != nil {
		return zw.err
	}

	// The base format's fields are 16/32-bit, with the maximum value of
	// each reserved as the ZIP64 sentinel. Refuse to emit anything a
	// reader would misinterpret.
	if len(zw.entries) >= math.MaxUint16 {
		return fmt.Errorf("%w: too many entries for 32-bit records (%d)", ErrFormat, len(zw.entries))
	}
	if uint64(zw.off) >= math.MaxUint32 {
		return fmt.Errorf("%w: central directory offset exceeds 32-bit records", ErrFormat)
	}

	centralDirOffset := zw.off
	var centralDirSize int64

	for _, fw := range zw.entries {
		dosDate, dosTime := timeToMsDos(fw.ModTime)
		entry := internal.CentralDirectory{
			VersionMadeBy:          zipVersion,
			VersionNeededToExtract: zipVersion,
			CompressionMethod:      uint16(fw.Method),
			LastModFileTime:        dosTime,
			LastModFileDate:        dosDate,
			CRC32:                  fw.CRC32,
			CompressedSize:         uint32(fw.CompressedSize),
			UncompressedSize:       uint32(fw.UncompressedSize),
			FilenameLength:         uint16(len(fw.Name)),
			LocalHeaderOffset:      uint32(fw.offset),
			Filename:               fw.Name,
		}

		n, err := zw.dest.Write(entry.Encode())
		if err != nil {
			return fmt.Errorf("write central directory: %w", err)
		}
		centralDirSize += int64(n)
	}
	zw.off += centralDirSize

	if uint64(centralDirSize) >= math.MaxUint32 {
		return fmt.Errorf("%w: central directory size exceeds 32-bit records", ErrFormat)
	}

	end := internal.EncodeEndOfCentralDirRecord(
		len(zw.entries),
		uint64(centralDirSize),
		uint64(centralDirOffset),
		zw.comment,
	)
	if n, err := zw.dest.Write(end); err != nil {
		return fmt.Errorf("write end of central directory: %w", err)
	} else {
		zw.off += int64(n)
	}

	if zw.closer != nil {
		return zw.closer.Close()
	}
	return nil
}

// FileWriter is the single entry currently open for writing.
//
// FileWriter implements io.Writer. For Store the bytes pass straight
// through to the archive; for Deflate they run through the compression
// engine. The CRC32 and uncompressed size accumulate from the input side
// on every call, the compressed size from the bytes that actually reach
// the stream.
type FileWriter struct {
	FileHeader

	zw     *Writer
	comp   compressor
	count  *countWriter // counts post-compression bytes
	hash   hash.Hash32
	closed bool
}

// Write appends p to the entry. Writing to a finalized entry returns
// ErrClosed; a zero-length write is a no-op.
func (fw *FileWriter) Write(p []byte) (int, error) {
	if fw.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	var written int
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxWriteChunk {
			chunk = chunk[:maxWriteChunk]
		}

		n, err := fw.comp.Write(chunk)
		fw.hash.Write(chunk[:n])
		fw.UncompressedSize += uint64(n)
		written += n
		if err != nil {
			return written, fmt.Errorf("write entry data: %w", err)
		}

		p = p[n:]
	}
	return written, nil
}

// Close finalizes the entry: the compression stream is flushed, the final
// compressed size and checksum are known only now, and the placeholder
// fields in the local header are patched in place. The stream position is
// restored to where writing left off. Closing twice is a no-op.
func (fw *FileWriter) Close() error {
	if fw.closed {
		return nil
	}
	fw.closed = true
	if fw.zw.cur == fw {
		fw.zw.cur = nil
	}

	if err := fw.comp.Close(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}

	fw.CompressedSize = uint64(fw.count.bytesWritten)
	fw.CRC32 = fw.hash.Sum32()
	fw.zw.off += int64(fw.CompressedSize)

	// Sizes and the header offset must fit their 32-bit fields; the
	// maximum value of each is reserved as the ZIP64 sentinel.
	if fw.CompressedSize >= math.MaxUint32 || fw.UncompressedSize >= math.MaxUint32 ||
		fw.offset >= math.MaxUint32 {
		return fmt.Errorf("%w: entry exceeds 32-bit record limits", ErrFormat)
	}

	return fw.patchLocalHeader()
}

// patchLocalHeader seeks back to the CRC32 field of the entry's local
// header (offset+14), rewrites CRC32 and both sizes, and returns the
// stream to the current logical write position. That position is not
// necessarily end-of-stream, so the seek back is absolute.
func (fw *FileWriter) patchLocalHeader() error {
	if _, err := fw.zw.dest.Seek(int64(fw.offset)+14, io.SeekStart); err != nil {
		return fmt.Errorf("seek to CRC position: %w", err)
	}

	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], fw.CRC32)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(fw.CompressedSize))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(fw.UncompressedSize))

	if n, err := fw.zw.dest.Write(buf[:]); err != nil {
		return fmt.Errorf("write CRC and sizes: %w", err)
	} else if n < len(buf) {
		return fmt.Errorf("write CRC and sizes: %w", io.ErrShortWrite)
	}

	if _, err := fw.zw.dest.Seek(fw.zw.off, io.SeekStart); err != nil {
		return fmt.Errorf("seek back to write position: %w", err)
	}
	return nil
}
