// Copyright 2025 The zipfile Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFileHeaderRoundTrip(t *testing.T) {
	in := LocalFileHeader{
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  0,
		CompressionMethod:      8,
		LastModFileTime:        0x7D2A,
		LastModFileDate:        0x56CF,
		CRC32:                  0xDEADBEEF,
		CompressedSize:         1234,
		UncompressedSize:       5678,
		FilenameLength:         8,
		Filename:               "test.txt",
	}

	encoded := in.Encode()
	require.Len(t, encoded, LocalFileHeaderLen+8)
	assert.Equal(t, LocalFileHeaderSignature, binary.LittleEndian.Uint32(encoded[0:4]))

	// The decoder expects the signature already consumed; the name and
	// extra tails stay in the reader.
	r := bytes.NewReader(encoded[4:])
	out, err := ReadLocalFileHeader(r)
	require.NoError(t, err)

	assert.Equal(t, in.CompressionMethod, out.CompressionMethod)
	assert.Equal(t, in.CRC32, out.CRC32)
	assert.Equal(t, in.CompressedSize, out.CompressedSize)
	assert.Equal(t, in.UncompressedSize, out.UncompressedSize)
	assert.Equal(t, in.FilenameLength, out.FilenameLength)
	assert.Equal(t, 8, r.Len())
}

func TestLocalFileHeader_Truncated(t *testing.T) {
	_, err := ReadLocalFileHeader(bytes.NewReader(make([]byte, 10)))
	assert.Error(t, err)
}

func TestCentralDirEntryRoundTrip(t *testing.T) {
	in := CentralDirectory{
		VersionMadeBy:          20,
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  0,
		CompressionMethod:      8,
		LastModFileTime:        0x7D2A,
		LastModFileDate:        0x56CF,
		CRC32:                  0xCAFEBABE,
		CompressedSize:         100,
		UncompressedSize:       200,
		FilenameLength:         9,
		FileCommentLength:      13,
		LocalHeaderOffset:      0x1000,
		Filename:               "entry.bin",
		Comment:                "entry comment",
	}

	encoded := in.Encode()
	require.Len(t, encoded, CentralDirEntryLen+9+13)
	assert.Equal(t, CentralDirectorySignature, binary.LittleEndian.Uint32(encoded[0:4]))

	out, err := ReadCentralDirEntry(bytes.NewReader(encoded[4:]))
	require.NoError(t, err)

	assert.Equal(t, in.CompressionMethod, out.CompressionMethod)
	assert.Equal(t, in.CRC32, out.CRC32)
	assert.Equal(t, in.CompressedSize, out.CompressedSize)
	assert.Equal(t, in.UncompressedSize, out.UncompressedSize)
	assert.Equal(t, in.LocalHeaderOffset, out.LocalHeaderOffset)
	assert.Equal(t, "entry.bin", out.Filename)
	assert.Equal(t, "entry comment", out.Comment)
	assert.Empty(t, out.ExtraField)
}

func TestCentralDirEntry_WithExtraField(t *testing.T) {
	extra := make([]byte, 4+8)
	binary.LittleEndian.PutUint16(extra[0:2], Zip64ExtraFieldTag)
	binary.LittleEndian.PutUint16(extra[2:4], 8)
	binary.LittleEndian.PutUint64(extra[4:12], 0x123456789A)

	in := CentralDirectory{
		FilenameLength:   1,
		ExtraFieldLength: uint16(len(extra)),
		Filename:         "f",
	}
	encoded := in.Encode()
	// Encode never emits extra fields; splice the block in after the name
	// and patch the declared length.
	binary.LittleEndian.PutUint16(encoded[30:32], uint16(len(extra)))
	encoded = append(encoded, extra...)

	out, err := ReadCentralDirEntry(bytes.NewReader(encoded[4:]))
	require.NoError(t, err)

	payload, ok := out.ExtraField[Zip64ExtraFieldTag]
	require.True(t, ok)
	require.Len(t, payload, 8)
	assert.Equal(t, uint64(0x123456789A), binary.LittleEndian.Uint64(payload))
}

func TestEndOfCentralDirRoundTrip(t *testing.T) {
	encoded := EncodeEndOfCentralDirRecord(3, 150, 4096, "archive comment")
	require.Len(t, encoded, EndOfCentralDirLen+len("archive comment"))
	assert.Equal(t, EndOfCentralDirSignature, binary.LittleEndian.Uint32(encoded[0:4]))

	out, err := ReadEndOfCentralDir(bytes.NewReader(encoded[4:]))
	require.NoError(t, err)

	assert.Equal(t, uint16(3), out.TotalNumberOfEntries)
	assert.Equal(t, uint32(150), out.CentralDirSize)
	assert.Equal(t, uint32(4096), out.CentralDirOffset)
	assert.Equal(t, "archive comment", out.Comment)
}

func TestEncodeEndOfCentralDirRecord_Sentinels(t *testing.T) {
	// The ZIP64 sentinel values pass through exactly.
	encoded := EncodeEndOfCentralDirRecord(0xFFFF, 150, 0xFFFFFFFF, "")

	out, err := ReadEndOfCentralDir(bytes.NewReader(encoded[4:]))
	require.NoError(t, err)
	assert.Equal(t, uint16(0xFFFF), out.TotalNumberOfEntries)
	assert.Equal(t, uint32(150), out.CentralDirSize)
	assert.Equal(t, uint32(0xFFFFFFFF), out.CentralDirOffset)
}

func TestZip64EndOfCentralDirRoundTrip(t *testing.T) {
	encoded := EncodeZip64EndOfCentralDirRecord(5, 1<<35, 1<<36)
	require.Len(t, encoded, Zip64EndLen)
	assert.Equal(t, Zip64EndOfCentralDirSignature, binary.LittleEndian.Uint32(encoded[0:4]))

	out, err := ReadZip64EndOfCentralDir(bytes.NewReader(encoded[4:]))
	require.NoError(t, err)

	assert.Equal(t, uint64(5), out.TotalNumberOfEntries)
	assert.Equal(t, uint64(1<<35), out.CentralDirSize)
	assert.Equal(t, uint64(1<<36), out.CentralDirOffset)
}

func TestZip64LocatorRoundTrip(t *testing.T) {
	encoded := EncodeZip64EndOfCentralDirLocator(1 << 40)
	require.Len(t, encoded, Zip64LocatorLen)
	assert.Equal(t, Zip64EndOfCentralDirLocatorSignature, binary.LittleEndian.Uint32(encoded[0:4]))

	out, err := ReadZip64EndOfCentralDirLocator(bytes.NewReader(encoded[4:]))
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), out.Zip64EndOfCentralDirOffset)
}

func TestParseExtraField(t *testing.T) {
	block := func(tag uint16, payload []byte) []byte {
		b := make([]byte, 4+len(payload))
		binary.LittleEndian.PutUint16(b[0:2], tag)
		binary.LittleEndian.PutUint16(b[2:4], uint16(len(payload)))
		copy(b[4:], payload)
		return b
	}

	t.Run("multiple fields", func(t *testing.T) {
		raw := append(block(0x0001, []byte{1, 2, 3, 4, 5, 6, 7, 8}),
			block(0x000A, []byte{9, 9})...)

		m := ParseExtraField(raw)
		require.Len(t, m, 2)
		// Values hold payload bytes only, headers stripped.
		assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, m[0x0001])
		assert.Equal(t, []byte{9, 9}, m[0x000A])
	})

	t.Run("truncated declared size ignored", func(t *testing.T) {
		raw := block(0x0001, []byte{1, 2, 3, 4})
		binary.LittleEndian.PutUint16(raw[2:4], 100)

		m := ParseExtraField(raw)
		assert.Empty(t, m)
	})

	t.Run("trailing garbage ignored", func(t *testing.T) {
		raw := append(block(0x0007, []byte{5}), 0xAB, 0xCD)

		m := ParseExtraField(raw)
		require.Len(t, m, 1)
		assert.Equal(t, []byte{5}, m[0x0007])
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, ParseExtraField(nil))
	})
}
