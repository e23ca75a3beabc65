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

import "memvfs/internal/common"

// EventType is the kind of directory change.
type EventType int

const (
	// EventAdded fires when a name appears in a directory
	EventAdded EventType = iota + 1
	// EventRemoved fires when a name disappears from a directory
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	}
	return "unknown"
}

// Event describes a change to a directory's entries.
type Event struct {
	Type EventType
	Name string
}

// Watch subscribes fn to changes of the directory. The returned cancel
// function removes the subscription. Callbacks run synchronously inside the
// mutating operation and must not call back into the filesystem.
func (vn *Vnode) Watch(fn func(Event)) (cancel func(), err error) {
	if vn.kind != KindDir {
		return nil, common.ErrNotDir
	}
	vn.watchMu.Lock()
	defer vn.watchMu.Unlock()
	if vn.watchers == nil {
		vn.watchers = make(map[int]func(Event))
	}
	id := vn.nextWatch
	vn.nextWatch++
	vn.watchers[id] = fn
	return func() {
		vn.watchMu.Lock()
		defer vn.watchMu.Unlock()
		delete(vn.watchers, id)
	}, nil
}

func (vn *Vnode) notify(typ EventType, name string) {
	vn.watchMu.Lock()
	fns := make([]func(Event), 0, len(vn.watchers))
	for _, fn := range vn.watchers {
		fns = append(fns, fn)
	}
	vn.watchMu.Unlock()

	ev := Event{Type: typ, Name: name}
	for _, fn := range fns {
		fn(ev)
	}
}
