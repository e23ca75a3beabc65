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

	log "github.com/sirupsen/logrus"
)

// MountTag names a reserved mount point that can receive a remote handle.
type MountTag string

const (
	// MountData is the "data" directory under the global root
	MountData MountTag = "data"
	// MountSocket is the "socket" directory under the device subtree
	MountSocket MountTag = "socket"
)

const (
	localRootName  = "tmp"
	globalRootName = "<root>"
)

// Subtree is an independently rooted filesystem spliced into the global root.
type Subtree interface {
	Root() *Vnode
}

// SubtreeFunc adapts a function to Subtree.
type SubtreeFunc func() *Vnode

// Root returns the subtree root.
func (f SubtreeFunc) Root() *Vnode { return f() }

// StaticSubtree returns a Subtree that always yields vn.
func StaticSubtree(vn *Vnode) Subtree {
	return SubtreeFunc(func() *Vnode { return vn })
}

// NewStaticDir creates a standalone directory that is the root of its own
// tree.
func NewStaticDir(name string) *Vnode {
	return newStaticDir(name, nil)
}

func newStaticDir(name string, pool *BlockPool) *Vnode {
	vn := newVnode(KindDir, pool)
	vn.dnode = newRootDnode(name, vn)
	return vn
}

// Option configures Roots.
type Option func(*Roots)

// WithBlockPool makes files of the memory tree allocate from pool.
func WithBlockPool(pool *BlockPool) Option {
	return func(r *Roots) { r.pool = pool }
}

// Roots holds the local memory root and the composed global root. The global
// namespace is wired once, on the first call to GlobalRoot.
type Roots struct {
	dev  Subtree
	boot Subtree
	pool *BlockPool

	local  *Vnode
	global *Vnode

	once   sync.Once
	wired  atomic.Bool
	mounts map[MountTag]*Vnode

	// remoteMu serializes remote handle install and replace.
	remoteMu sync.Mutex
}

// NewRoots creates the local and global roots. dev and boot provide the
// device-node and boot-image subtrees; a nil subtree is replaced by an empty
// directory named "dev" or "boot".
func NewRoots(dev, boot Subtree, opts ...Option) *Roots {
	r := &Roots{dev: dev, boot: boot}
	for _, opt := range opts {
		opt(r)
	}
	if r.dev == nil {
		r.dev = StaticSubtree(NewStaticDir("dev"))
	}
	if r.boot == nil {
		r.boot = StaticSubtree(NewStaticDir("boot"))
	}

	r.local = newStaticDir(localRootName, r.pool)
	// one for the creation, one so the root can never be unlinked
	r.local.Acquire()
	r.global = newStaticDir(globalRootName, r.pool)
	return r
}

// LocalRoot returns the root of the memory filesystem.
func (r *Roots) LocalRoot() *Vnode {
	return r.local
}

// GlobalRoot returns the namespace root, wiring the subtrees and the
// reserved mount points on first use.
func (r *Roots) GlobalRoot() *Vnode {
	r.once.Do(r.wire)
	return r.global
}

// Pool returns the block pool shared by the memory tree.
func (r *Roots) Pool() *BlockPool {
	return r.pool
}

func (r *Roots) wire() {
	root := r.global.dnode
	devRoot := r.dev.Root()
	for _, sub := range []*Vnode{devRoot, r.boot.Root(), r.local} {
		if sub == nil || sub.kind != KindDir {
			log.Errorf("[VFS] global root: subtree is not a directory, skipped")
			continue
		}
		if _, err := root.lookup(sub.dnode.name); err == nil {
			log.Errorf("[VFS] global root: duplicate subtree %q, skipped", sub.dnode.name)
			continue
		}
		// the global root keeps spliced subtrees alive and busy
		sub.Acquire()
		root.addChild(sub.dnode)
	}

	r.mounts = make(map[MountTag]*Vnode, 2)
	r.addMountPoint(r.global, MountData)
	if devRoot != nil && devRoot.kind == KindDir {
		r.addMountPoint(devRoot, MountSocket)
	}
	r.wired.Store(true)
	log.Debugf("[VFS] global root wired: %d children", len(root.children))
}

func (r *Roots) addMountPoint(parent *Vnode, tag MountTag) {
	vn, err := parent.create(string(tag), true)
	if err != nil {
		log.Errorf("[VFS] global root: creating mount point %q: %v", tag, err)
		return
	}
	vn.mount = tag
	r.mounts[tag] = vn
}

// MountPoint returns the reserved vnode for tag.
func (r *Roots) MountPoint(tag MountTag) (*Vnode, bool) {
	r.GlobalRoot()
	vn, ok := r.mounts[tag]
	return vn, ok
}

func (r *Roots) isMountPoint(vn *Vnode) bool {
	if !r.wired.Load() || vn.mount == "" || vn.refs.Load() <= 0 {
		return false
	}
	return r.mounts[vn.mount] == vn
}
