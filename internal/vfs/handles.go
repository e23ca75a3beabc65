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

import "sync"

// HandleID is the type for VFS handles
type HandleID uint64

// openHandle represents an open file or directory
type openHandle struct {
	vn     *Vnode
	path   string // namespace path at open time
	flags  int
	cursor DirCursor // For ReadDir pagination
}

// HandleManager manages VFS handles
type HandleManager struct {
	mu         sync.RWMutex
	handles    map[HandleID]*openHandle
	nextHandle HandleID
}

// NewHandleManager creates a new handle manager
func NewHandleManager() *HandleManager {
	return &HandleManager{
		handles:    make(map[HandleID]*openHandle),
		nextHandle: 1,
	}
}

// Allocate records an open vnode and returns its handle. The vnode's
// reference is owned by the handle from here on.
func (hm *HandleManager) Allocate(vn *Vnode, path string, flags int) HandleID {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	handle := hm.nextHandle
	hm.nextHandle++

	hm.handles[handle] = &openHandle{
		vn:    vn,
		path:  path,
		flags: flags,
	}

	return handle
}

// Get retrieves a handle's info
func (hm *HandleManager) Get(h HandleID) (*openHandle, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	info, ok := hm.handles[h]
	return info, ok
}

// Release forgets a handle and returns what it referred to
func (hm *HandleManager) Release(h HandleID) (*openHandle, bool) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	info, ok := hm.handles[h]
	if ok {
		delete(hm.handles, h)
	}
	return info, ok
}

// Len returns the number of open handles
func (hm *HandleManager) Len() int {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return len(hm.handles)
}

// Clear removes all handles and returns them so their references can be
// dropped
func (hm *HandleManager) Clear() []*openHandle {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	out := make([]*openHandle, 0, len(hm.handles))
	for _, info := range hm.handles {
		out = append(out, info)
	}
	hm.handles = make(map[HandleID]*openHandle)
	// Don't reset nextHandle to avoid handle ID reuse issues
	return out
}
