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
	"io"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"memvfs/internal/common"
)

// RemoteHandle is an opaque connection to a delegated filesystem.
type RemoteHandle interface {
	ID() string
	Close() error
}

type remoteBinding struct {
	handle RemoteHandle
}

// ConnHandle is a RemoteHandle backed by a stream connection.
type ConnHandle struct {
	id   string
	conn io.ReadWriteCloser
}

// NewConnHandle wraps conn with a fresh identifier.
func NewConnHandle(conn io.ReadWriteCloser) *ConnHandle {
	return &ConnHandle{id: uuid.New().String(), conn: conn}
}

// ID returns the handle identifier.
func (h *ConnHandle) ID() string { return h.id }

// Conn returns the underlying connection.
func (h *ConnHandle) Conn() io.ReadWriteCloser { return h.conn }

// Close closes the underlying connection.
func (h *ConnHandle) Close() error { return h.conn.Close() }

// InstallRemote binds h to one of the reserved mount points, closing any
// handle previously installed there. Any other vnode is refused with
// ErrAccessDenied.
func (r *Roots) InstallRemote(vn *Vnode, h RemoteHandle) error {
	if vn == nil || h == nil || !r.isMountPoint(vn) {
		return common.ErrAccessDenied
	}

	r.remoteMu.Lock()
	defer r.remoteMu.Unlock()

	if old := vn.remote.Swap(&remoteBinding{handle: h}); old != nil {
		log.Infof("[VFS] mount %s: replacing remote %s", vn.mount, old.handle.ID())
		if err := old.handle.Close(); err != nil {
			log.Warnf("[VFS] mount %s: closing remote %s: %v", vn.mount, old.handle.ID(), err)
		}
	}
	log.Infof("[VFS] mount %s: installed remote %s", vn.mount, h.ID())
	return nil
}

// UninstallRemote detaches and closes the handle on a mount point.
func (r *Roots) UninstallRemote(vn *Vnode) error {
	if vn == nil || !r.isMountPoint(vn) {
		return common.ErrAccessDenied
	}

	r.remoteMu.Lock()
	defer r.remoteMu.Unlock()

	old := vn.remote.Swap(nil)
	if old == nil {
		return common.ErrNotFound
	}
	return old.handle.Close()
}
