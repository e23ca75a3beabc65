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
	log "github.com/sirupsen/logrus"

	"memvfs/internal/common"
)

// Lookup resolves name in the directory. The returned vnode carries a
// reference for the caller, who must Close it.
func (vn *Vnode) Lookup(name string) (*Vnode, error) {
	if vn.kind != KindDir {
		return nil, common.ErrNotSupported
	}
	dn, err := vn.dnode.lookup(name)
	if err != nil {
		return nil, err
	}
	dn.vnode.Acquire()
	return dn.vnode, nil
}

// Create makes a new file or directory named name. The returned vnode
// carries a reference for the caller in addition to the tree's own.
func (vn *Vnode) Create(name string, isDir bool) (*Vnode, error) {
	child, err := vn.create(name, isDir)
	if err != nil {
		return nil, err
	}
	child.Acquire()
	return child, nil
}

func (vn *Vnode) create(name string, isDir bool) (*Vnode, error) {
	if vn.kind != KindDir {
		return nil, common.ErrInvalidArgs
	}
	if _, err := vn.dnode.lookup(name); err == nil {
		return nil, common.ErrExists
	}

	kind := KindFile
	if isDir {
		kind = KindDir
	}
	child := newVnode(kind, vn.pool)
	dn, err := newDnode(name, child)
	if err != nil {
		return nil, err
	}
	vn.dnode.addChild(dn)
	if isDir {
		child.dnode = dn
	}
	log.Debugf("[VFS] create: vn=%d parent=%d name=%q kind=%s", child.id, vn.id, name, kind)
	vn.notify(EventAdded, name)
	return child, nil
}

// canUnlink refuses to remove open directories, directories with children
// and reserved mount points, bound or not.
func canUnlink(dn *Dnode) error {
	target := dn.vnode
	if target.mount != "" {
		return common.ErrBadState
	}
	if target.kind == KindDir && target.refs.Load() > 1 {
		return common.ErrBadState
	}
	if dn.hasChildren() {
		return common.ErrBadState
	}
	if target.IsRemote() {
		return common.ErrBadState
	}
	return nil
}

// Unlink removes name from the directory. The object survives until every
// open reference to it has been closed.
func (vn *Vnode) Unlink(name string) error {
	log.Debugf("[VFS] unlink: parent=%d name=%q", vn.id, name)
	if vn.kind != KindDir {
		return common.ErrNotDir
	}
	dn, err := vn.dnode.lookup(name)
	if err != nil {
		return err
	}
	if err := canUnlink(dn); err != nil {
		return err
	}
	dn.delete()
	vn.notify(EventRemoved, name)
	return nil
}

// Rename moves oldName in vn to newName in newDir, replacing an existing
// destination of the same kind. Only renames within one directory are
// supported.
func (vn *Vnode) Rename(oldName string, newDir *Vnode, newName string) error {
	if common.IsReservedName(oldName) || common.IsReservedName(newName) {
		return common.ErrBadState
	}
	if vn.kind != KindDir || newDir == nil || newDir.kind != KindDir {
		return common.ErrNotSupported
	}
	if vn.dnode != newDir.dnode {
		return common.ErrNotSupported
	}

	src, err := vn.dnode.lookup(oldName)
	if err != nil {
		return err
	}
	if src.vnode.mount != "" {
		return common.ErrBadState
	}
	if !common.ValidName(newName) {
		return common.ErrInvalidArgs
	}
	if dst, err := newDir.dnode.lookup(newName); err == nil {
		if src.vnode == dst.vnode {
			return common.ErrInvalidArgs
		}
		if src.vnode.kind != dst.vnode.kind {
			return common.ErrInvalidArgs
		}
		if err := canUnlink(dst); err != nil {
			return err
		}
		dst.delete()
		newDir.notify(EventRemoved, newName)
	}

	newDir.dnode.moveChild(src, newName)
	log.Debugf("[VFS] rename: dir=%d %q -> %q", vn.id, oldName, newName)
	vn.notify(EventRemoved, oldName)
	newDir.notify(EventAdded, newName)
	return nil
}
