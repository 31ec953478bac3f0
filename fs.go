// Copyright 2025 The zipfile Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipfile

import (
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

var (
	_ fs.FS        = (*zipFS)(nil)
	_ fs.StatFS    = (*zipFS)(nil)
	_ fs.ReadDirFS = (*zipFS)(nil)
)

// Open rewinds the entry and returns it as an io.ReadCloser. The returned
// handle is the entry itself: entries share the archive stream, so only
// one should be read at a time.
func (f *File) Open() (io.ReadCloser, error) {
	if err := f.Rewind(); err != nil {
		return nil, err
	}
	return f, nil
}

// FS returns a read-only filesystem view of the archive. Directories are
// synthesized from entry names, so archives without explicit directory
// entries still list correctly.
func (zr *Reader) FS() fs.FS {
	return &zipFS{zr: zr}
}

type zipFS struct {
	zr *Reader
}

func (zfs *zipFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	if f := zfs.lookup(name); f != nil {
		rc, err := f.Open()
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return &fsFile{rc: rc, info: headerFileInfo{&f.FileHeader}}, nil
	}

	if name == "." || zfs.isDir(name) {
		return &fsDir{zfs: zfs, name: name}, nil
	}

	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

func (zfs *zipFS) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	if f := zfs.lookup(name); f != nil {
		return headerFileInfo{&f.FileHeader}, nil
	}
	if name == "." || zfs.isDir(name) {
		return dirFileInfo{name: path.Base(name)}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

func (zfs *zipFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	if name != "." && !zfs.isDir(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}

	prefix := ""
	if name != "." {
		prefix = name + "/"
	}

	seen := make(map[string]fs.DirEntry)
	for _, f := range zfs.zr.File {
		entryName := strings.TrimSuffix(f.Name, "/")
		if !strings.HasPrefix(entryName, prefix) || entryName == "" {
			continue
		}

		rest := entryName[len(prefix):]
		if rest == "" {
			continue
		}

		child, _, nested := strings.Cut(rest, "/")
		if _, ok := seen[child]; ok {
			continue
		}

		if nested || f.IsDir() {
			seen[child] = fs.FileInfoToDirEntry(dirFileInfo{name: child})
		} else {
			seen[child] = fs.FileInfoToDirEntry(headerFileInfo{&f.FileHeader})
		}
	}

	entries := make([]fs.DirEntry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// lookup returns the regular-file entry with the exact given name.
func (zfs *zipFS) lookup(name string) *File {
	for _, f := range zfs.zr.File {
		if f.Name == name && !f.IsDir() {
			return f
		}
	}
	return nil
}

// isDir reports whether name exists as a directory, explicitly or as a
// prefix of deeper entries.
func (zfs *zipFS) isDir(name string) bool {
	prefix := name + "/"
	for _, f := range zfs.zr.File {
		if f.Name == prefix || strings.HasPrefix(f.Name, prefix) {
			return true
		}
	}
	return false
}

type fsFile struct {
	rc   io.ReadCloser
	info headerFileInfo
}

func (f *fsFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *fsFile) Read(p []byte) (int, error) { return f.rc.Read(p) }
func (f *fsFile) Close() error               { return f.rc.Close() }

type fsDir struct {
	zfs    *zipFS
	name   string
	offset int
}

func (d *fsDir) Stat() (fs.FileInfo, error) { return dirFileInfo{name: path.Base(d.name)}, nil }
func (d *fsDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}
func (d *fsDir) Close() error { return nil }

func (d *fsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	entries, err := d.zfs.ReadDir(d.name)
	if err != nil {
		return nil, err
	}

	entries = entries[min(d.offset, len(entries)):]
	if n <= 0 {
		d.offset += len(entries)
		return entries, nil
	}
	if len(entries) == 0 {
		return nil, io.EOF
	}
	if n < len(entries) {
		entries = entries[:n]
	}
	d.offset += len(entries)
	return entries, nil
}

type headerFileInfo struct {
	h *FileHeader
}

func (i headerFileInfo) Name() string       { return path.Base(strings.TrimSuffix(i.h.Name, "/")) }
func (i headerFileInfo) Size() int64        { return int64(i.h.UncompressedSize) }
func (i headerFileInfo) ModTime() time.Time { return i.h.ModTime }
func (i headerFileInfo) IsDir() bool        { return i.h.IsDir() }
func (i headerFileInfo) Sys() any           { return i.h }

func (i headerFileInfo) Mode() fs.FileMode {
	if i.h.IsDir() {
		return fs.ModeDir | 0755
	}
	return 0644
}

type dirFileInfo struct {
	name string
}

func (i dirFileInfo) Name() string       { return i.name }
func (i dirFileInfo) Size() int64        { return 0 }
func (i dirFileInfo) Mode() fs.FileMode  { return fs.ModeDir | 0755 }
func (i dirFileInfo) ModTime() time.Time { return time.Time{} }
func (i dirFileInfo) IsDir() bool        { return true }
func (i dirFileInfo) Sys() any           { return nil }
