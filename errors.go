package zipfile

import "errors"

var (
	// ErrFormat is returned when the input is not a valid ZIP archive:
	// a missing or mismatched signature, a truncated record, or an entry
	// name that is not valid UTF-8.
	ErrFormat = errors.New("zipfile: not a valid zip file")

	// ErrAlgorithm is returned when an entry uses a compression method
	// other than Store or Deflate.
	ErrAlgorithm = errors.New("zipfile: unsupported compression method")

	// ErrEncryption is returned when an entry has the encryption bit set.
	ErrEncryption = errors.New("zipfile: encrypted entries are not supported")

	// ErrDescriptor is returned when an entry was written with a trailing
	// data descriptor instead of sizes in the header.
	ErrDescriptor = errors.New("zipfile: data descriptor entries are not supported")

	// ErrChecksum is returned when the CRC32 of the decompressed data does
	// not match the stored value.
	ErrChecksum = errors.New("zipfile: checksum mismatch")

	// ErrSizeMismatch is returned when a compressed stream ends before or
	// after the declared uncompressed size.
	ErrSizeMismatch = errors.New("zipfile: uncompressed size mismatch")

	// ErrClosed is returned when writing to a finalized entry or operating
	// on a closed archive.
	ErrClosed = errors.New("zipfile: already closed")

	// ErrSeekUnsupported is returned for seeks other than a rewind to the
	// start of an entry. Compressed streams are not randomly addressable.
	ErrSeekUnsupported = errors.New("zipfile: only seeking to the start is supported")

	// ErrFileNotFound is returned when the requested entry does not exist.
	ErrFileNotFound = errors.New("zipfile: file not found")

	// ErrNameTooLong is returned when an entry name exceeds 65535 bytes.
	ErrNameTooLong = errors.New("zipfile: name too long")

	// ErrCommentTooLong is returned when the archive comment exceeds 65535 bytes.
	ErrCommentTooLong = errors.New("zipfile: comment too long")
)
