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
	"path"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"memvfs/internal/common"
)

// readdirChunk is the buffer size used when draining a directory.
const readdirChunk = 4096

// Namespace is the path-level dispatch layer over the global root. The core
// vnode operations do no locking of their own; Namespace serializes every
// operation under one filesystem-wide mutex.
type Namespace struct {
	mu      sync.Mutex
	roots   *Roots
	root    *Vnode
	handles *HandleManager
}

// NewNamespace creates a dispatch layer rooted at the global root of roots.
func NewNamespace(roots *Roots) *Namespace {
	return &Namespace{
		roots:   roots,
		root:    roots.GlobalRoot(),
		handles: NewHandleManager(),
	}
}

// Roots returns the composed roots behind the namespace.
func (ns *Namespace) Roots() *Roots {
	return ns.roots
}

// walk resolves p to a referenced vnode. Crossing a remote mount point
// yields ErrRemote; the mount point itself resolves normally.
func (ns *Namespace) walk(p string) (*Vnode, error) {
	cur := ns.root
	cur.Acquire()
	for _, name := range common.SplitPath(p) {
		if cur.IsRemote() {
			cur.Close()
			return nil, common.ErrRemote
		}
		if !cur.IsDir() {
			cur.Close()
			return nil, common.ErrNotDir
		}
		next, err := cur.Lookup(name)
		cur.Close()
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// walkParent resolves the directory containing p and returns the final name.
func (ns *Namespace) walkParent(p string) (*Vnode, string, error) {
	dir, name := common.SplitParent(p)
	if name == "" {
		return nil, "", common.ErrInvalidPath
	}
	parent, err := ns.walk(dir)
	if err != nil {
		return nil, "", err
	}
	if parent.IsRemote() {
		parent.Close()
		return nil, "", common.ErrRemote
	}
	return parent, name, nil
}

// Stat returns the attributes of the object at p.
func (ns *Namespace) Stat(p string) (Attr, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	vn, err := ns.walk(p)
	if err != nil {
		return Attr{}, err
	}
	defer vn.Close()
	return vn.Getattr(), nil
}

// Open opens the object at p. O_CREATE creates a missing file, O_EXCL
// rejects an existing one and O_TRUNC empties a file.
func (ns *Namespace) Open(p string, flags int) (handle HandleID, err error) {
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() { log.Tracef("[VFS] Open %q flags=%d → %v (%v)", p, flags, err, time.Since(start)) }()
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	vn, err := ns.resolveForOpen(p, flags)
	if err != nil {
		return 0, err
	}
	defer vn.Close()

	if vn.IsRemote() {
		return 0, common.ErrRemote
	}
	if err := vn.Open(flags); err != nil {
		return 0, err
	}
	if flags&os.O_TRUNC != 0 && vn.Kind() == KindFile {
		if err := vn.Truncate(0); err != nil {
			vn.Close()
			return 0, err
		}
	}
	return ns.handles.Allocate(vn, common.NormalizePath(p), flags), nil
}

func (ns *Namespace) resolveForOpen(p string, flags int) (*Vnode, error) {
	if flags&os.O_CREATE == 0 {
		return ns.walk(p)
	}

	parent, name, err := ns.walkParent(p)
	if err != nil {
		return nil, err
	}
	defer parent.Close()

	vn, err := parent.Lookup(name)
	switch {
	case err == nil:
		if flags&os.O_EXCL != 0 {
			vn.Close()
			return nil, common.ErrExists
		}
		return vn, nil
	case errors.Is(err, common.ErrNotFound):
		return parent.Create(name, false)
	default:
		return nil, err
	}
}

// OpenDir opens the directory at p.
func (ns *Namespace) OpenDir(p string) (HandleID, error) {
	return ns.Open(p, os.O_RDONLY|syscall.O_DIRECTORY)
}

// Close releases a handle.
func (ns *Namespace) Close(h HandleID) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	info, ok := ns.handles.Release(h)
	if !ok {
		return common.ErrInvalidHandle
	}
	return info.vn.Close()
}

// CloseAll releases every open handle.
func (ns *Namespace) CloseAll() int {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	open := ns.handles.Clear()
	for _, info := range open {
		info.vn.Close()
	}
	return len(open)
}

func (ns *Namespace) handle(h HandleID) (*openHandle, error) {
	info, ok := ns.handles.Get(h)
	if !ok {
		return nil, common.ErrInvalidHandle
	}
	return info, nil
}

// Read reads from an open file.
func (ns *Namespace) Read(h HandleID, p []byte, off int64) (int, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	info, err := ns.handle(h)
	if err != nil {
		return 0, err
	}
	return info.vn.Read(p, off)
}

// Write writes to an open file.
func (ns *Namespace) Write(h HandleID, p []byte, off int64) (n int, err error) {
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() {
			log.Tracef("[VFS] Write handle=%d len=%d off=%d → %d, %v (%v)", h, len(p), off, n, err, time.Since(start))
		}()
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	info, err := ns.handle(h)
	if err != nil {
		return 0, err
	}
	return info.vn.Write(p, off)
}

// Truncate sets the length of an open file.
func (ns *Namespace) Truncate(h HandleID, size int64) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	info, err := ns.handle(h)
	if err != nil {
		return err
	}
	return info.vn.Truncate(size)
}

// GetAttr returns the attributes of an open handle.
func (ns *Namespace) GetAttr(h HandleID) (Attr, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	info, err := ns.handle(h)
	if err != nil {
		return Attr{}, err
	}
	return info.vn.Getattr(), nil
}

// ReadDir lists an open directory, excluding ".".
func (ns *Namespace) ReadDir(h HandleID) ([]Dirent, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	info, err := ns.handle(h)
	if err != nil {
		return nil, err
	}
	if info.vn.IsRemote() {
		return nil, common.ErrRemote
	}

	info.cursor.Reset()
	buf := make([]byte, readdirChunk)
	var out []Dirent
	for {
		n, err := info.vn.Readdir(&info.cursor, buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		ents, err := DecodeDirents(buf[:n])
		if err != nil {
			return nil, err
		}
		for _, e := range ents {
			if !common.IsReservedName(e.Name) {
				out = append(out, e)
			}
		}
	}
	log.Debugf("[VFS] ReadDir: handle=%d path=%q → %d entries", h, info.path, len(out))
	return out, nil
}

// Mkdir creates a directory at p.
func (ns *Namespace) Mkdir(p string) (Attr, error) {
	log.Debugf("[VFS] Mkdir: path=%q", p)
	ns.mu.Lock()
	defer ns.mu.Unlock()

	parent, name, err := ns.walkParent(p)
	if err != nil {
		return Attr{}, err
	}
	defer parent.Close()

	vn, err := parent.Create(name, true)
	if err != nil {
		return Attr{}, err
	}
	defer vn.Close()
	return vn.Getattr(), nil
}

// MkdirAll creates p and any missing parents.
func (ns *Namespace) MkdirAll(p string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	cur := ns.root
	cur.Acquire()
	for _, name := range common.SplitPath(p) {
		if cur.IsRemote() {
			cur.Close()
			return common.ErrRemote
		}
		next, err := cur.Lookup(name)
		if errors.Is(err, common.ErrNotFound) {
			next, err = cur.Create(name, true)
		}
		cur.Close()
		if err != nil {
			return err
		}
		if !next.IsDir() {
			next.Close()
			return common.ErrNotDir
		}
		cur = next
	}
	cur.Close()
	return nil
}

// Remove unlinks the object at p.
func (ns *Namespace) Remove(p string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	parent, name, err := ns.walkParent(p)
	if err != nil {
		return err
	}
	defer parent.Close()
	return parent.Unlink(name)
}

// Rename moves oldPath to newPath. Both must live in the same directory.
func (ns *Namespace) Rename(oldPath, newPath string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	oldDir, oldName, err := ns.walkParent(oldPath)
	if err != nil {
		return err
	}
	defer oldDir.Close()

	newDir, newName, err := ns.walkParent(newPath)
	if err != nil {
		return err
	}
	defer newDir.Close()

	return oldDir.Rename(oldName, newDir, newName)
}

// InstallRemote binds h to the reserved mount point at p.
func (ns *Namespace) InstallRemote(p string, h RemoteHandle) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	vn, err := ns.walk(p)
	if err != nil {
		return err
	}
	defer vn.Close()
	return ns.roots.InstallRemote(vn, h)
}

// UninstallRemote detaches the remote handle from the mount point at p.
func (ns *Namespace) UninstallRemote(p string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	vn, err := ns.walk(p)
	if err != nil {
		return err
	}
	defer vn.Close()
	return ns.roots.UninstallRemote(vn)
}

// Entry describes one object visited by Walk.
type Entry struct {
	Path   string
	Attr   Attr
	Remote string // remote handle ID, empty if none
}

// Walk visits every object under the global root in depth-first sorted
// order, starting with the root itself. Remote mount points are reported but
// not descended into.
func (ns *Namespace) Walk(fn func(Entry) error) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	return walkTree(ns.root.dnode, "/", fn)
}

func walkTree(dn *Dnode, p string, fn func(Entry) error) error {
	vn := dn.vnode
	e := Entry{Path: p, Attr: vn.Getattr()}
	if h, ok := vn.Remote(); ok {
		e.Remote = h.ID()
	}
	if err := fn(e); err != nil {
		return err
	}
	if !vn.IsDir() || e.Remote != "" {
		return nil
	}
	for _, child := range dn.sortedChildren() {
		if err := walkTree(child, path.Join(p, child.name), fn); err != nil {
			return err
		}
	}
	return nil
}

// OpenHandles returns the number of handles currently open.
func (ns *Namespace) OpenHandles() int {
	return ns.handles.Len()
}
