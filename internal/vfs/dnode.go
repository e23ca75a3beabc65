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
	"sort"
	"strings"

	"memvfs/internal/common"
)

// Dnode is a named entry in the directory tree. It owns a strong reference
// to its vnode; the parent link is not owning. Root entries are their own
// parent.
type Dnode struct {
	name     string
	vnode    *Vnode
	parent   *Dnode
	children map[string]*Dnode
}

// newRootDnode builds a self-parented entry for vn.
func newRootDnode(name string, vn *Vnode) *Dnode {
	dn := &Dnode{name: name, vnode: vn}
	dn.parent = dn
	vn.Acquire()
	vn.addLink(dn)
	return dn
}

// newDnode creates a detached entry holding a reference to vn.
func newDnode(name string, vn *Vnode) (*Dnode, error) {
	if !common.ValidName(name) {
		return nil, common.ErrInvalidArgs
	}
	dn := &Dnode{name: name, vnode: vn}
	vn.Acquire()
	vn.addLink(dn)
	return dn, nil
}

// Name returns the entry name.
func (dn *Dnode) Name() string { return dn.name }

// Vnode returns the vnode the entry refers to.
func (dn *Dnode) Vnode() *Vnode { return dn.vnode }

// IsRoot reports whether the entry is its own parent.
func (dn *Dnode) IsRoot() bool { return dn.parent == dn }

func (dn *Dnode) lookup(name string) (*Dnode, error) {
	child, ok := dn.children[name]
	if !ok {
		return nil, common.ErrNotFound
	}
	return child, nil
}

func (dn *Dnode) addChild(child *Dnode) {
	if dn.children == nil {
		dn.children = make(map[string]*Dnode)
	}
	child.parent = dn
	dn.children[child.name] = child
}

// detach removes dn from its parent. Afterwards dn is self-parented.
func (dn *Dnode) detach() {
	if p := dn.parent; p != nil && p != dn {
		if p.children[dn.name] == dn {
			delete(p.children, dn.name)
		}
	}
	dn.parent = dn
}

// delete detaches the entry and drops its reference to the vnode.
func (dn *Dnode) delete() {
	dn.detach()
	vn := dn.vnode
	vn.removeLink(dn)
	vn.Release()
}

// moveChild relocates child under dn with a new name. Any entry already
// named newName must have been deleted by the caller.
func (dn *Dnode) moveChild(child *Dnode, newName string) {
	child.detach()
	child.name = newName
	dn.addChild(child)
}

func (dn *Dnode) hasChildren() bool {
	return len(dn.children) > 0
}

func (dn *Dnode) sortedChildren() []*Dnode {
	out := make([]*Dnode, 0, len(dn.children))
	for _, c := range dn.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Path returns the slash-separated path of the entry from its tree root.
func (dn *Dnode) Path() string {
	var parts []string
	for cur := dn; !cur.IsRoot(); cur = cur.parent {
		parts = append(parts, cur.name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}
