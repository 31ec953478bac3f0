// Copyright 2025 The zipfile Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipfile

import (
	"bytes"
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fsTestReader(t *testing.T) *Reader {
	t.Helper()

	entries := map[string]string{
		"a.txt":         "top level",
		"dir/b.txt":     "nested",
		"dir/sub/c.txt": "deeply nested",
	}
	data := buildArchive(t, entries, "a.txt", "dir/b.txt", "dir/sub/c.txt")

	zr, err := NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return zr
}

func TestFS_ReadFile(t *testing.T) {
	zfs := fsTestReader(t).FS()

	got, err := fs.ReadFile(zfs, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "top level", string(got))

	got, err = fs.ReadFile(zfs, "dir/sub/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "deeply nested", string(got))

	_, err = fs.ReadFile(zfs, "missing.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = zfs.Open("../escape")
	assert.ErrorIs(t, err, fs.ErrInvalid)
}

func TestFS_SynthesizedDirectories(t *testing.T) {
	zfs := fsTestReader(t).FS()

	// No explicit directory entries exist, yet directories stat and list.
	info, err := fs.Stat(zfs, "dir")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	info, err = fs.Stat(zfs, "dir/sub")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	entries, err := fs.ReadDir(zfs, ".")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.txt", entries[0].Name())
	assert.False(t, entries[0].IsDir())
	assert.Equal(t, "dir", entries[1].Name())
	assert.True(t, entries[1].IsDir())

	entries, err = fs.ReadDir(zfs, "dir")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b.txt", entries[0].Name())
	assert.Equal(t, "sub", entries[1].Name())

	_, err = fs.ReadDir(zfs, "nodir")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFS_Stat(t *testing.T) {
	zfs := fsTestReader(t).FS()

	info, err := fs.Stat(zfs, "dir/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "b.txt", info.Name())
	assert.Equal(t, int64(len("nested")), info.Size())
	assert.Equal(t, defaultTime(), info.ModTime())
	assert.False(t, info.IsDir())
	assert.Equal(t, fs.FileMode(0644), info.Mode())
}

func TestFS_WalkDir(t *testing.T) {
	zfs := fsTestReader(t).FS()

	var visited []string
	err := fs.WalkDir(zfs, ".", func(path string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		visited = append(visited, path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		".", "a.txt", "dir", "dir/b.txt", "dir/sub", "dir/sub/c.txt",
	}, visited)
}

func TestFS_DirHandle(t *testing.T) {
	zfs := fsTestReader(t).FS()

	d, err := zfs.Open("dir")
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Read(make([]byte, 1))
	assert.ErrorIs(t, err, fs.ErrInvalid)

	rd, ok := d.(fs.ReadDirFile)
	require.True(t, ok)

	// Paginated listing drains in order, then reports EOF.
	first, err := rd.ReadDir(1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "b.txt", first[0].Name())

	rest, err := rd.ReadDir(5)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "sub", rest[0].Name())

	_, err = rd.ReadDir(1)
	assert.Equal(t, io.EOF, err)
}

func TestFile_Open(t *testing.T) {
	zr := fsTestReader(t)
	f := zr.File[0]

	// A partially read entry reopens from the start.
	buf := make([]byte, 3)
	_, err := io.ReadFull(f, buf)
	require.NoError(t, err)

	rc, err := f.Open()
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "top level", string(got))
	require.NoError(t, rc.Close())
}
