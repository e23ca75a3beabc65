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
	"sync"
	"sync/atomic"
	"syscall"

	log "github.com/sirupsen/logrus"

	"memvfs/internal/common"
)

// Kind is the variant tag of a vnode.
type Kind int

const (
	// KindFile is a memory-backed regular file
	KindFile Kind = iota
	// KindDir is a directory owning a tree entry
	KindDir
)

func (k Kind) String() string {
	if k == KindDir {
		return "dir"
	}
	return "file"
}

// Mode bits reported by Getattr.
const (
	ModeTypeFile uint32 = 0100000
	ModeTypeDir  uint32 = 0040000
	ModeIRUSR    uint32 = 0400
)

// Attr is the attribute set reported by Getattr.
type Attr struct {
	ID    uint64
	Size  int64
	Mode  uint32
	Nlink int
}

// IsDir reports whether the attributes describe a directory.
func (a Attr) IsDir() bool {
	return a.Mode&ModeTypeDir != 0
}

var nextVnodeID atomic.Uint64

// Vnode is a reference-counted filesystem object. It is either a file
// (payload: *BlockStore) or a directory (payload: the *Dnode it owns).
// The kind never changes after construction.
type Vnode struct {
	id   uint64
	kind Kind
	refs atomic.Int32

	file  *BlockStore
	dnode *Dnode
	pool  *BlockPool

	// links are the tree entries holding a strong reference to this vnode.
	links []*Dnode

	mount  MountTag
	remote atomic.Pointer[remoteBinding]

	watchMu   sync.Mutex
	watchers  map[int]func(Event)
	nextWatch int
}

func newVnode(kind Kind, pool *BlockPool) *Vnode {
	vn := &Vnode{
		id:   nextVnodeID.Add(1),
		kind: kind,
		pool: pool,
	}
	if kind == KindFile {
		vn.file = newBlockStore(pool)
	}
	return vn
}

// ID returns the inode number of the vnode.
func (vn *Vnode) ID() uint64 { return vn.id }

// Kind returns the variant tag.
func (vn *Vnode) Kind() Kind { return vn.kind }

// IsDir reports whether the vnode is a directory.
func (vn *Vnode) IsDir() bool { return vn.kind == KindDir }

// Refs returns the current reference count.
func (vn *Vnode) Refs() int32 { return vn.refs.Load() }

// Name returns the name of the vnode's own tree entry, or "" for files.
func (vn *Vnode) Name() string {
	if vn.dnode == nil {
		return ""
	}
	return vn.dnode.name
}

// Acquire takes a strong reference.
func (vn *Vnode) Acquire() {
	vn.refs.Add(1)
}

// Release drops a strong reference and destroys the vnode's storage when the
// last one goes away.
func (vn *Vnode) Release() {
	n := vn.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		log.Warnf("[VFS] vnode %d released below zero", vn.id)
		return
	}
	vn.destroy()
}

func (vn *Vnode) destroy() {
	log.Debugf("[VFS] vnode %d (%s) destroyed", vn.id, vn.kind)
	switch vn.kind {
	case KindFile:
		vn.file.Release()
	case KindDir:
		for _, child := range vn.dnode.sortedChildren() {
			child.delete()
		}
	}
	if b := vn.remote.Swap(nil); b != nil {
		if err := b.handle.Close(); err != nil {
			log.Warnf("[VFS] vnode %d: closing remote %s: %v", vn.id, b.handle.ID(), err)
		}
	}
}

// Open takes a reference on behalf of an open handle. O_DIRECTORY on a file
// fails with ErrNotDir.
func (vn *Vnode) Open(flags int) error {
	if flags&syscall.O_DIRECTORY != 0 && vn.kind != KindDir {
		return common.ErrNotDir
	}
	vn.Acquire()
	return nil
}

// Close drops the reference taken by Open or Lookup.
func (vn *Vnode) Close() error {
	vn.Release()
	return nil
}

// Read reads file contents at off.
func (vn *Vnode) Read(p []byte, off int64) (int, error) {
	switch vn.kind {
	case KindFile:
		if off < 0 {
			return 0, common.ErrInvalidArgs
		}
		return vn.file.ReadAt(p, off), nil
	default:
		return 0, common.ErrNotSupported
	}
}

// Write writes file contents at off. A short count with a nil error means
// the file reached its block cap or the block pool ran dry.
func (vn *Vnode) Write(p []byte, off int64) (int, error) {
	switch vn.kind {
	case KindFile:
		n, err := vn.file.WriteAt(p, off)
		if n < len(p) {
			log.Debugf("[VFS] vnode %d: short write %d/%d at %d", vn.id, n, len(p), off)
		}
		return n, err
	default:
		return 0, common.ErrNotSupported
	}
}

// Truncate sets the length of a file.
func (vn *Vnode) Truncate(size int64) error {
	switch vn.kind {
	case KindFile:
		return vn.file.Truncate(size)
	default:
		return common.ErrNotSupported
	}
}

// Getattr reports size and type. The permission bits are always ModeIRUSR
// and say nothing about whether the object is writable.
func (vn *Vnode) Getattr() Attr {
	attr := Attr{ID: vn.id, Nlink: len(vn.links)}
	switch vn.kind {
	case KindFile:
		attr.Size = vn.file.Size()
		attr.Mode = ModeTypeFile | ModeIRUSR
	case KindDir:
		attr.Mode = ModeTypeDir | ModeIRUSR
	}
	return attr
}

// Ioctl is not implemented by the memory filesystem.
func (vn *Vnode) Ioctl(op uint32, in, out []byte) (int, error) {
	return 0, common.ErrNotSupported
}

// IsRemote reports whether a remote handle is installed on the vnode.
func (vn *Vnode) IsRemote() bool {
	return vn.remote.Load() != nil
}

// Remote returns the installed remote handle, if any.
func (vn *Vnode) Remote() (RemoteHandle, bool) {
	b := vn.remote.Load()
	if b == nil {
		return nil, false
	}
	return b.handle, true
}

// MountTag returns the reserved mount-point tag, or "" for ordinary vnodes.
func (vn *Vnode) MountTag() MountTag { return vn.mount }

func (vn *Vnode) addLink(dn *Dnode) {
	vn.links = append(vn.links, dn)
}

func (vn *Vnode) removeLink(dn *Dnode) {
	for i, l := range vn.links {
		if l == dn {
			vn.links = append(vn.links[:i], vn.links[i+1:]...)
			return
		}
	}
}
