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
	"encoding/binary"

	"memvfs/internal/common"
)

// Directory entry types carried in readdir records (DT_* values).
const (
	DirentTypeDir  uint32 = 4
	DirentTypeFile uint32 = 8
)

const direntHeaderLen = 8

// DirCursor remembers where a directory enumeration stopped. The zero value
// starts from the beginning.
type DirCursor struct {
	dotDone bool
	last    string
}

// Reset rewinds the cursor.
func (c *DirCursor) Reset() {
	*c = DirCursor{}
}

// Dirent is a decoded readdir record.
type Dirent struct {
	Name string
	Type uint32
}

// IsDir reports whether the entry is a directory.
func (d Dirent) IsDir() bool { return d.Type == DirentTypeDir }

func direntLen(name string) int {
	return (direntHeaderLen + len(name) + 1 + 3) &^ 3
}

func putDirent(buf []byte, name string, typ uint32) int {
	n := direntLen(name)
	binary.LittleEndian.PutUint32(buf[0:], uint32(n))
	binary.LittleEndian.PutUint32(buf[4:], typ)
	copy(buf[direntHeaderLen:], name)
	clear(buf[direntHeaderLen+len(name) : n])
	return n
}

// Readdir fills buf with packed entry records starting at cur and advances
// cur past the entries written. It returns 0 once every entry has been
// produced. Entries come out as "." followed by the children in name order.
func (vn *Vnode) Readdir(cur *DirCursor, buf []byte) (int, error) {
	if vn.kind != KindDir {
		return 0, common.ErrNotFound
	}

	written := 0
	emit := func(name string, typ uint32) bool {
		if direntLen(name) > len(buf)-written {
			return false
		}
		written += putDirent(buf[written:], name, typ)
		return true
	}

	if !cur.dotDone {
		if !emit(".", DirentTypeDir) {
			return 0, common.ErrInvalidArgs
		}
		cur.dotDone = true
	}
	for _, child := range vn.dnode.sortedChildren() {
		if child.name <= cur.last {
			continue
		}
		typ := DirentTypeFile
		if child.vnode.kind == KindDir {
			typ = DirentTypeDir
		}
		if !emit(child.name, typ) {
			if written == 0 {
				return 0, common.ErrInvalidArgs
			}
			break
		}
		cur.last = child.name
	}
	return written, nil
}

// DecodeDirents parses the records produced by Readdir.
func DecodeDirents(buf []byte) ([]Dirent, error) {
	var out []Dirent
	for len(buf) > 0 {
		if len(buf) < direntHeaderLen {
			return nil, common.ErrInvalidArgs
		}
		n := int(binary.LittleEndian.Uint32(buf[0:]))
		if n < direntHeaderLen+1 || n > len(buf) {
			return nil, common.ErrInvalidArgs
		}
		typ := binary.LittleEndian.Uint32(buf[4:])
		name := buf[direntHeaderLen:n]
		for i, c := range name {
			if c == 0 {
				name = name[:i]
				break
			}
		}
		out = append(out, Dirent{Name: string(name), Type: typ})
		buf = buf[n:]
	}
	return out, nil
}
