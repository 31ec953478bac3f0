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
	"unicode/utf8"

	"github.com/zipfile-go/zipfile/internal"
)

// General-purpose bit flags this implementation rejects at decode time.
const (
	flagEncrypted      = 0x1 // entry data is encrypted
	flagDataDescriptor = 0x8 // sizes and CRC follow the data instead of the header
)

// Reader decodes a ZIP archive from a random-access byte source.
//
// Construction locates the end-of-central-directory record and decodes the
// full central directory; entry data is not touched until the corresponding
// [File] is first read. Entries share the underlying source and are meant
// to be read sequentially, one at a time.
type Reader struct {
	src    io.ReaderAt
	size   int64
	closer io.Closer // set when the Reader opened the source itself
	closed bool

	// File lists the archive entries in central-directory order.
	File []*File

	// Comment is the archive-level comment from the end record.
	Comment string
}

// OpenReader opens the named file and decodes it as a ZIP archive.
// Closing the returned Reader closes the file.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	zr, err := NewReader(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	zr.closer = f
	return zr, nil
}

// NewReader decodes a ZIP archive from src, which must span exactly size
// bytes. The caller retains ownership of src; Close does not close it.
func NewReader(src io.ReaderAt, size int64) (*Reader, error) {
	zr := &Reader{src: src, size: size}

	end, err := zr.findDirectoryEnd()
	if err != nil {
		return nil, err
	}
	zr.Comment = end.Comment

	dirOffset, entriesNum := uint64(end.CentralDirOffset), uint64(end.TotalNumberOfEntries)
	if entriesNum == math.MaxUint16 || dirOffset == math.MaxUint32 {
		zip64End, err := zr.findZip64DirectoryEnd()
		if err != nil {
			return nil, err
		}
		dirOffset, entriesNum = zip64End.CentralDirOffset, zip64End.TotalNumberOfEntries
	}

	if err := zr.readCentralDir(dirOffset, entriesNum); err != nil {
		return nil, err
	}
	return zr, nil
}

// Close releases the archive. If the Reader opened the underlying file
// itself it is closed; a source handed to NewReader is left open. All
// entries become unreadable.
func (zr *Reader) Close() error {
	if zr.closed {
		return nil
	}
	zr.closed = true
	for _, f := range zr.File {
		if f.rc != nil {
			f.rc.Close()
			f.rc = nil
		}
	}
	if zr.closer != nil {
		return zr.closer.Close()
	}
	return nil
}

// findSignature scans the trailing portion of the archive for a record
// signature. Per the format, a 1 KiB window is tried first and widened to
// 64 KiB+22 (the maximum comment length plus the fixed end record) if
// needed. Each window is walked backward from the end of the archive, so
// of multiple candidate byte patterns the one closest to the end wins.
func (zr *Reader) findSignature(sig uint32, recordLen int64) (int64, bool, error) {
	const maxTrailer = math.MaxUint16 + internal.EndOfCentralDirLen

	for _, window := range []int64{1024, maxTrailer} {
		wsize := min(window, zr.size)
		if wsize < recordLen {
			continue
		}

		buf := make([]byte, wsize)
		readPos := zr.size - wsize
		if n, err := zr.src.ReadAt(buf, readPos); int64(n) < wsize {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, false, fmt.Errorf("read at %d: %w", readPos, err)
		}

		for p := wsize - recordLen; p >= 0; p-- {
			if binary.LittleEndian.Uint32(buf[p:p+4]) == sig {
				return readPos + p, true, nil
			}
		}

		if wsize == zr.size {
			break
		}
	}
	return 0, false, nil
}

// findDirectoryEnd locates and decodes the end-of-central-directory record.
func (zr *Reader) findDirectoryEnd() (internal.EndOfCentralDirectory, error) {
	var end internal.EndOfCentralDirectory

	if zr.size < internal.EndOfCentralDirLen {
		return end, fmt.Errorf("%w: file too small", ErrFormat)
	}

	offset, found, err := zr.findSignature(internal.EndOfCentralDirSignature, internal.EndOfCentralDirLen)
	if err != nil {
		return end, err
	}
	if !found {
		return end, fmt.Errorf("%w: no end of central directory signature found", ErrFormat)
	}

	sr := io.NewSectionReader(zr.src, offset+4, zr.size-offset-4)
	return internal.ReadEndOfCentralDir(sr)
}

// findZip64DirectoryEnd locates the ZIP64 end-of-central-directory locator
// in the trailing window and follows it to the ZIP64 end record. It is
// consulted only when the base record carries a sentinel entry count or
// directory offset.
func (zr *Reader) findZip64DirectoryEnd() (internal.Zip64EndOfCentralDirectory, error) {
	var zip64End internal.Zip64EndOfCentralDirectory

	locOffset, found, err := zr.findSignature(internal.Zip64EndOfCentralDirLocatorSignature, internal.Zip64LocatorLen)
	if err != nil {
		return zip64End, err
	}
	if !found {
		return zip64End, fmt.Errorf("%w: no zip64 end of central directory locator found", ErrFormat)
	}

	locReader := io.NewSectionReader(zr.src, locOffset+4, internal.Zip64LocatorLen-4)
	locator, err := internal.ReadZip64EndOfCentralDirLocator(locReader)
	if err != nil {
		return zip64End, fmt.Errorf("read zip64 end of central dir locator: %w", err)
	}

	endOffset := int64(locator.Zip64EndOfCentralDirOffset)
	if endOffset < 0 || endOffset+internal.Zip64EndLen > zr.size {
		return zip64End, fmt.Errorf("%w: invalid zip64 end of central directory offset", ErrFormat)
	}

	endReader := io.NewSectionReader(zr.src, endOffset, zr.size-endOffset)
	if !zr.verifySignature(endReader, internal.Zip64EndOfCentralDirSignature) {
		return zip64End, fmt.Errorf("%w: expected zip64 end of central directory signature", ErrFormat)
	}

	return internal.ReadZip64EndOfCentralDir(endReader)
}

// readCentralDir decodes entriesNum central directory records starting at
// the given archive offset, populating zr.File.
func (zr *Reader) readCentralDir(offset, entriesNum uint64) error {
	if int64(offset) < 0 || int64(offset) > zr.size {
		return fmt.Errorf("%w: central directory offset out of range", ErrFormat)
	}

	safeCap := entriesNum
	if safeCap > 1024*1024 {
		safeCap = 1024
	}
	zr.File = make([]*File, 0, safeCap)

	cdReader := io.NewSectionReader(zr.src, int64(offset), zr.size-int64(offset))

	for i := uint64(0); i < entriesNum; i++ {
		if !zr.verifySignature(cdReader, internal.CentralDirectorySignature) {
			return fmt.Errorf("%w: expected central directory signature at entry %d", ErrFormat, i)
		}

		entry, err := internal.ReadCentralDirEntry(cdReader)
		if err != nil {
			return fmt.Errorf("decode central dir entry %d: %w", i, err)
		}

		file, err := zr.newFileFromCentralDir(entry)
		if err != nil {
			return err
		}
		zr.File = append(zr.File, file)
	}

	return nil
}

// newFileFromCentralDir validates one decoded central directory record and
// turns it into a File. ZIP64 extra-field overrides apply in their fixed
// order (uncompressed size, compressed size, offset), each only when the
// base field sits at its 32-bit sentinel.
func (zr *Reader) newFileFromCentralDir(entry internal.CentralDirectory) (*File, error) {
	if entry.GeneralPurposeBitFlag&flagEncrypted != 0 {
		return nil, fmt.Errorf("%w: %q", ErrEncryption, entry.Filename)
	}
	if entry.GeneralPurposeBitFlag&flagDataDescriptor != 0 {
		return nil, fmt.Errorf("%w: %q", ErrDescriptor, entry.Filename)
	}

	method := Method(entry.CompressionMethod)
	if !method.valid() {
		return nil, fmt.Errorf("%w: %d (%q)", ErrAlgorithm, entry.CompressionMethod, entry.Filename)
	}

	if !utf8.ValidString(entry.Filename) {
		return nil, fmt.Errorf("%w: entry name is not valid UTF-8", ErrFormat)
	}

	uncompressedSize := uint64(entry.UncompressedSize)
	compressedSize := uint64(entry.CompressedSize)
	localHeaderOffset := uint64(entry.LocalHeaderOffset)

	if zip64Data, ok := entry.ExtraField[internal.Zip64ExtraFieldTag]; ok {
		pos := 0

		if uncompressedSize == math.MaxUint32 && len(zip64Data) >= pos+8 {
			uncompressedSize = binary.LittleEndian.Uint64(zip64Data[pos : pos+8])
			pos += 8
		}
		if compressedSize == math.MaxUint32 && len(zip64Data) >= pos+8 {
			compressedSize = binary.LittleEndian.Uint64(zip64Data[pos : pos+8])
			pos += 8
		}
		if localHeaderOffset == math.MaxUint32 && len(zip64Data) >= pos+8 {
			localHeaderOffset = binary.LittleEndian.Uint64(zip64Data[pos : pos+8])
		}
	}

	return &File{
		FileHeader: FileHeader{
			Name:             entry.Filename,
			Method:           method,
			ModTime:          msDosToTime(entry.LastModFileDate, entry.LastModFileTime),
			CRC32:            entry.CRC32,
			CompressedSize:   compressedSize,
			UncompressedSize: uncompressedSize,
			offset:           localHeaderOffset,
		},
		zr:         zr,
		dataOffset: -1,
	}, nil
}

// verifySignature checks whether the next 4 bytes match the given signature.
func (zr *Reader) verifySignature(r io.Reader, sig uint32) bool {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false
	}
	return binary.LittleEndian.Uint32(buf[:]) == sig
}

// File is one readable archive entry.
//
// File implements io.Reader over the decompressed content. The local
// header is resolved and the decompression stream created on first read;
// reaching the declared uncompressed size closes the stream and verifies
// the running CRC32 against the stored value. Rewind resets the entry so
// it can be read again from the start.
type File struct {
	FileHeader

	zr         *Reader
	dataOffset int64         // -1 until the local header has been resolved
	rc         io.ReadCloser // decompression stream, nil until located
	hash       hash.Hash32   // running CRC32 of delivered bytes
	consumed   uint64        // bytes delivered so far
	err        error         // sticky after exhaustion or failure
}

// locate resolves the entry's data start offset: seek to the local header,
// validate its signature, and skip the fixed fields plus the name and
// extra tails using the lengths the local header itself declares.
func (f *File) locate() error {
	hr := io.NewSectionReader(f.zr.src, int64(f.offset), f.zr.size-int64(f.offset))
	if !f.zr.verifySignature(hr, internal.LocalFileHeaderSignature) {
		return fmt.Errorf("%w: expected local file header signature", ErrFormat)
	}

	h, err := internal.ReadLocalFileHeader(hr)
	if err != nil {
		return fmt.Errorf("read local header: %w", err)
	}

	f.dataOffset = int64(f.offset) + internal.LocalFileHeaderLen +
		int64(h.FilenameLength) + int64(h.ExtraFieldLength)

	data := io.NewSectionReader(f.zr.src, f.dataOffset, int64(f.CompressedSize))
	rc, err := newDecompressor(f.Method, data)
	if err != nil {
		return err
	}

	f.rc = rc
	f.hash = crc32.NewIEEE()
	f.consumed = 0
	return nil
}

// Read streams decompressed entry content. The final read returns io.EOF
// exactly at the declared uncompressed size, after the checksum has been
// verified; a mismatch surfaces as ErrChecksum and a compressed stream
// that ends early as ErrSizeMismatch.
func (f *File) Read(p []byte) (int, error) {
	if f.zr.closed {
		return 0, ErrClosed
	}
	if f.err != nil {
		return 0, f.err
	}
	if f.dataOffset < 0 {
		if err := f.locate(); err != nil {
			f.err = err
			return 0, err
		}
	}

	var n int
	if remaining := f.UncompressedSize - f.consumed; remaining > 0 {
		if uint64(len(p)) > remaining {
			p = p[:remaining]
		}

		var err error
		n, err = f.rc.Read(p)
		if n > 0 {
			f.consumed += uint64(n)
			f.hash.Write(p[:n])
		}

		if err != nil && err != io.EOF {
			f.err = err
			return n, err
		}
		if f.consumed < f.UncompressedSize {
			if err == io.EOF {
				f.err = fmt.Errorf("%w: stream ended after %d of %d bytes",
					ErrSizeMismatch, f.consumed, f.UncompressedSize)
				return n, f.err
			}
			return n, nil
		}
	}

	if err := f.exhaust(); err != nil {
		f.err = err
		return n, err
	}
	f.err = io.EOF
	return n, io.EOF
}

// exhaust finalizes a fully-consumed entry: the decompression stream must
// report its own end here, and the running CRC32 must match the stored
// value.
//
// A deflate stream is allowed to signal its logical end before the declared
// compressed window is fully consumed; flate's internal read-ahead makes an
// exact byte-count check on the compressed side impractical, so trailing
// bytes inside the window are tolerated, as archive/zip does. The checksum
// still gates the content.
func (f *File) exhaust() error {
	var tail [1]byte
	n, err := f.rc.Read(tail[:])
	switch {
	case n != 0:
		return fmt.Errorf("%w: data beyond declared size", ErrSizeMismatch)
	case err != nil && err != io.EOF:
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}

	if err := f.rc.Close(); err != nil {
		return fmt.Errorf("close entry stream: %w", err)
	}
	f.rc = nil

	if got := f.hash.Sum32(); got != f.CRC32 {
		return fmt.Errorf("%w: got %08x, want %08x", ErrChecksum, got, f.CRC32)
	}
	return nil
}

// Rewind resets the entry so the next Read starts from the beginning.
// All transient state, including a half-read decompression stream, is
// discarded; the local header is resolved again on the next read.
func (f *File) Rewind() error {
	if f.zr.closed {
		return ErrClosed
	}
	if f.rc != nil {
		f.rc.Close()
		f.rc = nil
	}
	f.hash = nil
	f.dataOffset = -1
	f.consumed = 0
	f.err = nil
	return nil
}

// Seek implements io.Seeker for the single supported case: seeking to the
// start of the entry, which is equivalent to Rewind. Compressed streams
// are not randomly addressable, so any other target is rejected.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if offset != 0 || whence == io.SeekEnd {
		return int64(f.consumed), ErrSeekUnsupported
	}
	if whence == io.SeekCurrent {
		return int64(f.consumed), nil
	}
	if err := f.Rewind(); err != nil {
		return int64(f.consumed), err
	}
	return 0, nil
}

// Close releases the entry's transient decode state. Entries hold no
// resources of their own, so this never fails and never touches the
// archive stream; closing the Reader is what closes the source.
func (f *File) Close() error {
	if f.rc != nil {
		f.rc.Close()
		f.rc = nil
	}
	f.hash = nil
	f.dataOffset = -1
	f.consumed = 0
	f.err = nil
	return nil
}
