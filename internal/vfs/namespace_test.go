// Copyright 2024 memvfs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vfs

import (
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memvfs/internal/common"
)

func testNamespace(t *testing.T) *Namespace {
	t.Helper()
	return NewNamespace(NewRoots(nil, nil))
}

func TestNamespaceLayout(t *testing.T) {
	t.Parallel()
	ns := testNamespace(t)

	for _, p := range []string{"/", "/dev", "/boot", "/tmp", "/data", "/dev/socket"} {
		attr, err := ns.Stat(p)
		require.NoError(t, err, p)
		assert.True(t, attr.IsDir(), p)
	}

	_, err := ns.Stat("/missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestNamespaceFileIO(t *testing.T) {
	t.Parallel()

	t.Run("create write read", func(t *testing.T) {
		t.Parallel()
		ns := testNamespace(t)

		h, err := ns.Open("/tmp/a.txt", os.O_CREATE|os.O_RDWR)
		require.NoError(t, err)
		n, err := ns.Write(h, []byte("hello world"), 0)
		require.NoError(t, err)
		assert.Equal(t, 11, n)

		buf := make([]byte, 5)
		n, err = ns.Read(h, buf, 6)
		require.NoError(t, err)
		assert.Equal(t, "world", string(buf[:n]))

		attr, err := ns.GetAttr(h)
		require.NoError(t, err)
		assert.Equal(t, int64(11), attr.Size)
		require.NoError(t, ns.Close(h))

		attr, err = ns.Stat("/tmp/a.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(11), attr.Size)
	})

	t.Run("open flags", func(t *testing.T) {
		t.Parallel()
		ns := testNamespace(t)

		_, err := ns.Open("/tmp/none", os.O_RDONLY)
		assert.ErrorIs(t, err, common.ErrNotFound)

		h, err := ns.Open("/tmp/f", os.O_CREATE|os.O_EXCL|os.O_RDWR)
		require.NoError(t, err)
		_, err = ns.Write(h, []byte("data"), 0)
		require.NoError(t, err)
		require.NoError(t, ns.Close(h))

		_, err = ns.Open("/tmp/f", os.O_CREATE|os.O_EXCL|os.O_RDWR)
		assert.ErrorIs(t, err, common.ErrExists)

		h, err = ns.Open("/tmp/f", os.O_RDWR|os.O_TRUNC)
		require.NoError(t, err)
		attr, err := ns.GetAttr(h)
		require.NoError(t, err)
		assert.Zero(t, attr.Size)
		require.NoError(t, ns.Close(h))

		_, err = ns.OpenDir("/tmp/f")
		assert.ErrorIs(t, err, common.ErrNotDir)
		_, err = ns.Open("/tmp/f/x", os.O_RDONLY)
		assert.ErrorIs(t, err, common.ErrNotDir)
	})

	t.Run("invalid handle", func(t *testing.T) {
		t.Parallel()
		ns := testNamespace(t)
		_, err := ns.Read(99, make([]byte, 1), 0)
		assert.ErrorIs(t, err, common.ErrInvalidHandle)
		assert.ErrorIs(t, ns.Close(99), common.ErrInvalidHandle)
	})

	t.Run("unlinked open file stays readable", func(t *testing.T) {
		t.Parallel()
		ns := testNamespace(t)
		h, err := ns.Open("/tmp/f", os.O_CREATE|os.O_RDWR)
		require.NoError(t, err)
		_, err = ns.Write(h, []byte("keep"), 0)
		require.NoError(t, err)

		require.NoError(t, ns.Remove("/tmp/f"))
		_, err = ns.Stat("/tmp/f")
		assert.ErrorIs(t, err, common.ErrNotFound)

		buf := make([]byte, 4)
		n, err := ns.Read(h, buf, 0)
		require.NoError(t, err)
		assert.Equal(t, "keep", string(buf[:n]))
		require.NoError(t, ns.Close(h))
	})
}

func TestNamespaceDirectories(t *testing.T) {
	t.Parallel()

	t.Run("mkdir readdir remove", func(t *testing.T) {
		t.Parallel()
		ns := testNamespace(t)

		_, err := ns.Mkdir("/tmp/d")
		require.NoError(t, err)
		_, err = ns.Mkdir("/tmp/d")
		assert.ErrorIs(t, err, common.ErrExists)

		h, err := ns.Open("/tmp/d/file", os.O_CREATE|os.O_RDWR)
		require.NoError(t, err)
		require.NoError(t, ns.Close(h))

		dh, err := ns.OpenDir("/tmp/d")
		require.NoError(t, err)
		ents, err := ns.ReadDir(dh)
		require.NoError(t, err)
		assert.Equal(t, []Dirent{{Name: "file", Type: DirentTypeFile}}, ents)

		// open directory handle blocks removal
		require.NoError(t, ns.Remove("/tmp/d/file"))
		assert.ErrorIs(t, ns.Remove("/tmp/d"), common.ErrBadState)
		require.NoError(t, ns.Close(dh))
		assert.NoError(t, ns.Remove("/tmp/d"))
	})

	t.Run("mkdir all", func(t *testing.T) {
		t.Parallel()
		ns := testNamespace(t)
		require.NoError(t, ns.MkdirAll("/tmp/a/b/c"))
		require.NoError(t, ns.MkdirAll("/tmp/a/b/c"))

		attr, err := ns.Stat("/tmp/a/b/c")
		require.NoError(t, err)
		assert.True(t, attr.IsDir())

		h, err := ns.Open("/tmp/a/f", os.O_CREATE|os.O_RDWR)
		require.NoError(t, err)
		require.NoError(t, ns.Close(h))
		assert.ErrorIs(t, ns.MkdirAll("/tmp/a/f/g"), common.ErrNotDir)
	})

	t.Run("root listing", func(t *testing.T) {
		t.Parallel()
		ns := testNamespace(t)
		h, err := ns.OpenDir("/")
		require.NoError(t, err)
		defer ns.Close(h)

		ents, err := ns.ReadDir(h)
		require.NoError(t, err)
		assert.Equal(t, []string{"boot", "data", "dev", "tmp"}, names(ents))
	})

	t.Run("root has no parent", func(t *testing.T) {
		t.Parallel()
		ns := testNamespace(t)
		_, err := ns.Mkdir("/")
		assert.ErrorIs(t, err, common.ErrInvalidPath)
		assert.ErrorIs(t, ns.Remove("/"), common.ErrInvalidPath)
	})
}

func TestNamespaceRename(t *testing.T) {
	t.Parallel()
	ns := testNamespace(t)

	for _, p := range []string{"/tmp/x", "/tmp/y"} {
		h, err := ns.Open(p, os.O_CREATE|os.O_RDWR)
		require.NoError(t, err)
		_, err = ns.Write(h, []byte(p), 0)
		require.NoError(t, err)
		require.NoError(t, ns.Close(h))
	}

	require.NoError(t, ns.Rename("/tmp/x", "/tmp/y"))
	_, err := ns.Stat("/tmp/x")
	assert.ErrorIs(t, err, common.ErrNotFound)

	h, err := ns.Open("/tmp/y", os.O_RDONLY)
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := ns.Read(h, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", string(buf[:n]))
	require.NoError(t, ns.Close(h))

	require.NoError(t, ns.MkdirAll("/tmp/sub"))
	assert.ErrorIs(t, ns.Rename("/tmp/y", "/tmp/sub/y"), common.ErrNotSupported)
}

func TestNamespaceRemote(t *testing.T) {
	t.Parallel()
	ns := testNamespace(t)

	h := &fakeRemote{id: "remote-data"}
	require.NoError(t, ns.InstallRemote("/data", h))
	assert.ErrorIs(t, ns.InstallRemote("/tmp", &fakeRemote{id: "x"}), common.ErrAccessDenied)

	// the mount point resolves, anything below it is forwarded
	_, err := ns.Stat("/data")
	require.NoError(t, err)
	_, err = ns.Stat("/data/x")
	assert.ErrorIs(t, err, common.ErrRemote)
	_, err = ns.Mkdir("/data/x")
	assert.ErrorIs(t, err, common.ErrRemote)
	_, err = ns.OpenDir("/data")
	assert.ErrorIs(t, err, common.ErrRemote)
	assert.ErrorIs(t, ns.Remove("/data"), common.ErrBadState)
}

func TestNamespaceUninstallRemote(t *testing.T) {
	t.Parallel()
	ns := testNamespace(t)

	assert.ErrorIs(t, ns.UninstallRemote("/data"), common.ErrNotFound)

	h := &fakeRemote{id: "sock"}
	require.NoError(t, ns.InstallRemote("/dev/socket", h))
	require.NoError(t, ns.UninstallRemote("/dev/socket"))
	assert.Equal(t, 1, h.closed)

	// the mount point is served locally again
	_, err := ns.Mkdir("/dev/socket/x")
	assert.NoError(t, err)

	require.NoError(t, ns.InstallRemote("/data", &fakeRemote{id: "d1"}))
	require.NoError(t, ns.UninstallRemote("/data"))
	assert.ErrorIs(t, ns.Remove("/data"), common.ErrBadState)
	assert.ErrorIs(t, ns.Rename("/data", "/data2"), common.ErrBadState)

	d2 := &fakeRemote{id: "d2"}
	require.NoError(t, ns.InstallRemote("/data", d2))
	_, err = ns.Stat("/data/x")
	assert.ErrorIs(t, err, common.ErrRemote)
}

func TestNamespaceWalk(t *testing.T) {
	t.Parallel()
	ns := testNamespace(t)

	require.NoError(t, ns.MkdirAll("/tmp/work"))
	h, err := ns.Open("/tmp/work/f", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	_, err = ns.Write(h, []byte("abc"), 0)
	require.NoError(t, err)
	require.NoError(t, ns.Close(h))
	require.NoError(t, ns.InstallRemote("/data", &fakeRemote{id: "r1"}))

	var paths []string
	entries := map[string]Entry{}
	require.NoError(t, ns.Walk(func(e Entry) error {
		paths = append(paths, e.Path)
		entries[e.Path] = e
		return nil
	}))

	assert.Equal(t, []string{"/", "/boot", "/data", "/dev", "/dev/socket", "/tmp", "/tmp/work", "/tmp/work/f"}, paths)
	assert.Equal(t, "r1", entries["/data"].Remote)
	assert.Empty(t, entries["/tmp"].Remote)
	assert.Equal(t, int64(3), entries["/tmp/work/f"].Attr.Size)
	assert.False(t, entries["/tmp/work/f"].Attr.IsDir())

	stop := errors.New("stop")
	var visited int
	err = ns.Walk(func(Entry) error {
		visited++
		if visited == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, visited)
}

func TestNamespaceOpenHandles(t *testing.T) {
	t.Parallel()
	ns := testNamespace(t)
	assert.Equal(t, 0, ns.OpenHandles())

	h, err := ns.Open("/tmp/a", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	d, err := ns.OpenDir("/tmp")
	require.NoError(t, err)
	assert.Equal(t, 2, ns.OpenHandles())

	require.NoError(t, ns.Close(h))
	require.NoError(t, ns.Close(d))
	assert.Equal(t, 0, ns.OpenHandles())
}

func TestNamespaceCloseAll(t *testing.T) {
	t.Parallel()
	ns := testNamespace(t)

	h1, err := ns.Open("/tmp/a", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	_, err = ns.OpenDir("/tmp")
	require.NoError(t, err)

	assert.Equal(t, 2, ns.CloseAll())
	assert.ErrorIs(t, ns.Close(h1), common.ErrInvalidHandle)

	local := ns.Roots().LocalRoot()
	// created + unlinkable + spliced into the global root
	assert.Equal(t, int32(3), local.Refs())
}

func TestNamespaceConcurrentWriters(t *testing.T) {
	t.Parallel()
	ns := testNamespace(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := ns.Open("/tmp/shared", os.O_CREATE|os.O_RDWR)
			if !assert.NoError(t, err) {
				return
			}
			defer ns.Close(h)
			_, err = ns.Write(h, []byte{byte(i)}, int64(i*BlockSize))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	attr, err := ns.Stat("/tmp/shared")
	require.NoError(t, err)
	assert.Equal(t, int64(15*BlockSize+1), attr.Size)
}
