// Copyright 2025 The zipfile Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipfile

import (
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strings"
)

// StoreFile is the minimal stream contract a Store needs: random-access
// reads for the decode side, seekable writes for the encode side, and
// truncation for the rewrite pivot. *os.File satisfies it.
type StoreFile interface {
	io.ReaderAt
	io.WriteSeeker
	Truncate(size int64) error
}

// storeMode is the explicit state of a Store. The ZIP format has no
// in-place mutation, so a Store is always in exactly one of three modes;
// the transitions below are the only ones allowed:
//
//	storeReading -> storeCached   first Set against a non-empty archive
//	storeReading -> storeWriting  first Set against an empty archive
//	storeWriting -> storeReading  Get while a Writer is open
//
// The mode also encodes the invariant that at most one of Reader and
// Writer is open at any time.
type storeMode int

const (
	storeReading storeMode = iota // a Reader is open over the archive
	storeWriting                  // a Writer is open, or will be created lazily
	storeCached                   // all content lives in the in-memory cache
)

// Store is a map-like view of a ZIP archive: keyed get/set/iterate over
// entry names and contents.
//
// Opening an existing archive starts in read mode. The first mutation
// pivots to a full rewrite: the entire existing content is drained into an
// in-memory cache, the stream is truncated, and every key (touched or not)
// is re-persisted through a Writer when the Store is closed. This is the
// only mutation model an append-only binary format admits.
//
// A Store must not be used from multiple goroutines concurrently.
type Store struct {
	file   StoreFile
	closer io.Closer // set when the Store opened the file itself
	mode   storeMode
	r      *Reader
	w      *Writer
	cache  map[string][]byte
	names  []string // cache keys in insertion order, for deterministic flushes
	closed bool
}

// OpenStore opens (or creates) the named file as a Store. Closing the
// Store closes the file.
func OpenStore(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	s, err := NewStore(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// NewStore wraps an open stream as a Store. Construction attempts to
// decode an existing archive; if that fails (an empty or fresh stream)
// the Store starts out empty with no Reader, and the stream's previous
// content is discarded on the first write.
func NewStore(f StoreFile) (*Store, error) {
	s := &Store{file: f, cache: make(map[string][]byte)}

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("seek end: %w", err)
	}

	if r, err := NewReader(f, size); err == nil {
		s.r = r
		s.mode = storeReading
	} else {
		s.mode = storeWriting
	}
	return s, nil
}

// Get returns the full decompressed content stored under name.
//
// In cached mode the content is served from memory. If a Writer is open,
// it is finalized and the archive reopened for reading first; a Reader
// search rewinds the matching entry and streams it to the end, so the
// entry's checksum is verified on every hit.
func (s *Store) Get(name string) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}

	switch s.mode {
	case storeCached:
		data, ok := s.cache[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return slices.Clone(data), nil

	case storeWriting:
		if s.w == nil {
			// Fresh store with nothing written yet.
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		if err := s.reopenForRead(); err != nil {
			return nil, err
		}
	}

	// Of duplicate names the last entry wins, matching how archive tools
	// resolve repeated appends.
	var match *File
	for _, f := range s.r.File {
		if f.Name == name {
			match = f
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}

	if err := match.Rewind(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(match)
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", name, err)
	}
	return data, nil
}

// Set stores data under name.
//
// The first Set against a Reader over a non-empty archive triggers the
// rewrite pivot: all existing entries are drained into the cache, the
// Reader is closed, and the stream truncated. From then on mutations stay
// in the cache until Close flushes them. Against a fresh or empty archive,
// entries are written through a lazily-created Writer directly.
func (s *Store) Set(name string, data []byte) error {
	if s.closed {
		return ErrClosed
	}
	if len(name) > math.MaxUint16 {
		return fmt.Errorf("%w (%d bytes)", ErrNameTooLong, len(name))
	}

	if s.mode == storeReading {
		if len(s.r.File) > 0 {
			if err := s.pivotToCache(); err != nil {
				return err
			}
		} else {
			s.r.Close()
			s.r = nil
			s.mode = storeWriting
		}
	}

	if s.mode == storeCached {
		s.put(name, data)
		return nil
	}

	return s.writeEntry(name, data)
}

// Names returns the entry names in the archive, in order. Directory
// pseudo-entries (names with an empty basename component) are suppressed.
func (s *Store) Names() []string {
	var names []string
	switch s.mode {
	case storeCached:
		names = s.names
	case storeReading:
		for _, f := range s.r.File {
			names = append(names, f.Name)
		}
	case storeWriting:
		if s.w != nil {
			for _, fw := range s.w.entries {
				names = append(names, fw.Name)
			}
		}
	}

	result := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasSuffix(name, "/") {
			continue
		}
		result = append(result, name)
	}
	return result
}

// Len returns the number of entries, directory pseudo-entries excluded.
func (s *Store) Len() int {
	return len(s.Names())
}

// Close flushes and releases the Store. In cached mode every key, touched
// or not, is re-persisted through a Writer; entries that were only ever
// read still survive the rewrite. Whichever of Reader or Writer is open
// is closed, then the underlying file if the Store opened it.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.mode == storeCached {
		for _, name := range s.names {
			if err := s.writeEntry(name, s.cache[name]); err != nil {
				return err
			}
		}
	}

	if s.r != nil {
		s.r.Close()
		s.r = nil
	}
	if s.w != nil {
		if err := s.w.Close(); err != nil {
			return err
		}
		s.w = nil
	}

	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// pivotToCache drains the whole archive into memory and truncates the
// stream: the transition from "rewrite nothing" to "rewrite everything".
func (s *Store) pivotToCache() error {
	for _, f := range s.r.File {
		if err := f.Rewind(); err != nil {
			return err
		}
		data, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("drain entry %s: %w", f.Name, err)
		}
		s.put(f.Name, data)
	}

	s.r.Close()
	s.r = nil

	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek start: %w", err)
	}

	s.mode = storeCached
	return nil
}

// reopenForRead finalizes the open Writer and replaces it with a Reader
// over the archive it produced.
func (s *Store) reopenForRead() error {
	if err := s.w.Close(); err != nil {
		return err
	}
	s.w = nil

	size, err := s.file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek end: %w", err)
	}
	r, err := NewReader(s.file, size)
	if err != nil {
		return err
	}

	s.r = r
	s.mode = storeReading
	return nil
}

// writeEntry persists one name/value pair through the Writer, creating it
// on first use. Stored entries always use Deflate.
func (s *Store) writeEntry(name string, data []byte) error {
	if s.w == nil {
		if err := s.file.Truncate(0); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("seek start: %w", err)
		}
		s.w = NewWriter(s.file)
	}

	fw, err := s.w.Create(name, WithMethod(MethodDeflate))
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	return fw.Close()
}

// put records a name/value pair in the cache, preserving first-insertion
// order for the eventual flush.
func (s *Store) put(name string, data []byte) {
	if _, ok := s.cache[name]; !ok {
		s.names = append(s.names, name)
	}
	s.cache[name] = slices.Clone(data)
}
