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

package daemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"syscall"
	"time"

	billy "github.com/go-git/go-billy/v5"
	log "github.com/sirupsen/logrus"
	nfs "github.com/willscott/go-nfs"
	nfsfile "github.com/willscott/go-nfs/file"
	nfshelper "github.com/willscott/go-nfs/helpers"

	"memvfs/internal/vfs"
)

// Permission bits reported to NFS clients. Files carry the fixed owner-read
// bit from Getattr; directories add owner-execute so clients can traverse.
const (
	nfsFilePerm os.FileMode = 0400
	nfsDirPerm  os.FileMode = 0500
)

// NFSServer wraps the go-nfs server
type NFSServer struct {
	listener net.Listener
	server   *nfs.Server
	handler  nfs.Handler
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewNFSServer creates a new NFS server exporting the namespace
func NewNFSServer(ns *vfs.Namespace) *NFSServer {
	// Set go-nfs log level to match daemon's log level
	if log.IsLevelEnabled(log.TraceLevel) {
		nfs.Log.SetLevel(nfs.TraceLevel)
	} else if log.IsLevelEnabled(log.DebugLevel) {
		nfs.Log.SetLevel(nfs.DebugLevel)
	}
	billyFS := NewBillyAdapter(ns)
	handler := nfshelper.NewNullAuthHandler(billyFS)
	cacheHelper := nfshelper.NewCachingHandler(handler, 65536)

	ctx, cancel := context.WithCancel(context.Background())
	server := &nfs.Server{
		Handler: cacheHelper,
		Context: ctx,
	}

	return &NFSServer{
		server:  server,
		handler: cacheHelper,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Listen binds the server to addr and returns the bound address
func (s *NFSServer) Listen(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	return listener.Addr(), nil
}

// Serve accepts NFS connections until Shutdown
func (s *NFSServer) Serve() error {
	if s.listener == nil {
		return fmt.Errorf("nfs server is not listening")
	}
	err := s.server.Serve(s.listener)
	select {
	case <-s.done:
		return nil
	default:
		return err
	}
}

// Shutdown stops the NFS server
func (s *NFSServer) Shutdown() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)

	if s.listener != nil {
		s.listener.Close()
	}
	// Settle time for in-flight NFS operations after listener close.
	time.Sleep(100 * time.Millisecond)

	if s.cancel != nil {
		s.cancel()
	}
}

// pathError wraps a namespace error in the form go-nfs and billy callers
// inspect with os.IsNotExist and friends.
func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return &os.PathError{Op: op, Path: name, Err: vfs.Errno(err)}
}

// BillyAdapter adapts the namespace to the Billy filesystem interface
type BillyAdapter struct {
	ns  *vfs.Namespace
	uid uint32 // cached os.Getuid() — avoids syscall per BillyFileInfo.Sys()
	gid uint32 // cached os.Getgid() — avoids syscall per BillyFileInfo.Sys()
}

// NewBillyAdapter creates a Billy adapter for the namespace
func NewBillyAdapter(ns *vfs.Namespace) *BillyAdapter {
	return &BillyAdapter{
		ns:  ns,
		uid: uint32(os.Getuid()),
		gid: uint32(os.Getgid()),
	}
}

func (b *BillyAdapter) Create(filename string) (billy.File, error) {
	return b.OpenFile(filename, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
}

func (b *BillyAdapter) Open(filename string) (billy.File, error) {
	return b.OpenFile(filename, os.O_RDONLY, 0)
}

func (b *BillyAdapter) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	handle, err := b.ns.Open(filename, flag)
	if err != nil {
		return nil, pathError("open", filename, err)
	}
	return &BillyFile{
		adapter: b,
		handle:  handle,
		name:    filename,
		flags:   flag,
	}, nil
}

func (b *BillyAdapter) Stat(filename string) (os.FileInfo, error) {
	attr, err := b.ns.Stat(filename)
	if err != nil {
		return nil, pathError("stat", filename, err)
	}
	return b.fileInfo(path.Base(filename), attr), nil
}

func (b *BillyAdapter) fileInfo(name string, attr vfs.Attr) *BillyFileInfo {
	if name == "." || name == "" {
		name = "/"
	}
	return &BillyFileInfo{name: name, attr: attr, adapter: b}
}

func (b *BillyAdapter) Rename(oldpath, newpath string) error {
	log.Debugf("[NFS] Rename: %q → %q", oldpath, newpath)
	return pathError("rename", oldpath, b.ns.Rename(oldpath, newpath))
}

func (b *BillyAdapter) Remove(filename string) error {
	log.Debugf("[NFS] Remove: %q", filename)
	return pathError("remove", filename, b.ns.Remove(filename))
}

func (b *BillyAdapter) Join(elem ...string) string {
	return path.Join(elem...)
}

func (b *BillyAdapter) TempFile(dir, prefix string) (billy.File, error) {
	return nil, os.ErrInvalid
}

func (b *BillyAdapter) ReadDir(dirname string) ([]os.FileInfo, error) {
	handle, err := b.ns.OpenDir(dirname)
	if err != nil {
		return nil, pathError("readdir", dirname, err)
	}
	defer b.ns.Close(handle)

	entries, err := b.ns.ReadDir(handle)
	if err != nil {
		return nil, pathError("readdir", dirname, err)
	}

	result := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		attr, err := b.ns.Stat(path.Join(dirname, e.Name))
		if err != nil {
			// removed between listing and stat
			continue
		}
		result = append(result, b.fileInfo(e.Name, attr))
	}
	return result, nil
}

func (b *BillyAdapter) MkdirAll(filename string, perm os.FileMode) error {
	return pathError("mkdir", filename, b.ns.MkdirAll(filename))
}

// Lstat and Stat are identical; the namespace has no symlinks.
func (b *BillyAdapter) Lstat(filename string) (os.FileInfo, error) {
	return b.Stat(filename)
}

func (b *BillyAdapter) Symlink(target, link string) error {
	return pathError("symlink", link, syscall.ENOTSUP)
}

func (b *BillyAdapter) Readlink(link string) (string, error) {
	return "", pathError("readlink", link, syscall.EINVAL)
}

func (b *BillyAdapter) Chroot(path string) (billy.Filesystem, error) {
	return nil, os.ErrInvalid
}

func (b *BillyAdapter) Root() string {
	return "/"
}

// billy.Change interface. Permission bits are fixed, so Chmod only checks
// that the object exists.
func (b *BillyAdapter) Chmod(name string, mode os.FileMode) error {
	_, err := b.ns.Stat(name)
	return pathError("chmod", name, err)
}

func (b *BillyAdapter) Lchown(name string, uid, gid int) error            { return nil }
func (b *BillyAdapter) Chown(name string, uid, gid int) error             { return nil }
func (b *BillyAdapter) Chtimes(name string, atime, mtime time.Time) error { return nil }

func (b *BillyAdapter) Capabilities() billy.Capability {
	return billy.WriteCapability | billy.ReadCapability |
		billy.ReadAndWriteCapability | billy.SeekCapability | billy.TruncateCapability
}

type BillyFile struct {
	adapter *BillyAdapter
	handle  vfs.HandleID
	name    string
	flags   int
	offset  int64
}

func (f *BillyFile) Name() string {
	return f.name
}

func (f *BillyFile) Write(p []byte) (n int, err error) {
	n, err = f.adapter.ns.Write(f.handle, p, f.offset)
	f.offset += int64(n)
	if err != nil {
		return n, pathError("write", f.name, err)
	}
	if n < len(p) {
		return n, pathError("write", f.name, syscall.ENOSPC)
	}
	return n, nil
}

func (f *BillyFile) Read(p []byte) (n int, err error) {
	n, err = f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *BillyFile) ReadAt(p []byte, off int64) (n int, err error) {
	n, err = f.adapter.ns.Read(f.handle, p, off)
	if err != nil {
		return n, pathError("read", f.name, err)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *BillyFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		attr, err := f.adapter.ns.GetAttr(f.handle)
		if err != nil {
			return 0, pathError("seek", f.name, err)
		}
		f.offset = attr.Size + offset
	}
	return f.offset, nil
}

func (f *BillyFile) Close() error {
	return pathError("close", f.name, f.adapter.ns.Close(f.handle))
}

func (f *BillyFile) Lock() error {
	return nil
}

func (f *BillyFile) Unlock() error {
	return nil
}

func (f *BillyFile) Truncate(size int64) error {
	return pathError("truncate", f.name, f.adapter.ns.Truncate(f.handle, size))
}

type BillyFileInfo struct {
	name    string
	attr    vfs.Attr
	adapter *BillyAdapter // cached uid/gid source (nil falls back to syscall)
}

func (fi *BillyFileInfo) Name() string {
	return fi.name
}

func (fi *BillyFileInfo) Size() int64 {
	return fi.attr.Size
}

func (fi *BillyFileInfo) Mode() os.FileMode {
	if fi.IsDir() {
		return os.ModeDir | nfsDirPerm
	}
	return os.FileMode(fi.attr.Mode) & nfsFilePerm
}

// ModTime is the current time; the memory filesystem keeps no timestamps.
func (fi *BillyFileInfo) ModTime() time.Time {
	return time.Now()
}

func (fi *BillyFileInfo) IsDir() bool {
	return fi.attr.IsDir()
}

func (fi *BillyFileInfo) Sys() interface{} {
	// go-nfs's GetInfo() only recognizes file.FileInfo or *file.FileInfo types
	uid, gid := fi.getUIDGID()
	nlink := uint32(fi.attr.Nlink)
	if nlink == 0 {
		nlink = 1
	}
	return &nfsfile.FileInfo{
		Nlink:  nlink,
		UID:    uid,
		GID:    gid,
		Fileid: fi.attr.ID,
	}
}

// getUIDGID returns cached uid/gid from the adapter if available, otherwise falls back to syscall.
func (fi *BillyFileInfo) getUIDGID() (uint32, uint32) {
	if fi.adapter != nil {
		return fi.adapter.uid, fi.adapter.gid
	}
	return uint32(os.Getuid()), uint32(os.Getgid())
}

var (
	_ billy.Filesystem = (*BillyAdapter)(nil)
	_ billy.Change     = (*BillyAdapter)(nil)
	_ billy.File       = (*BillyFile)(nil)
)
