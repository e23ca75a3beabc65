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

// Package bootfs builds the boot-image subtree from a host directory.
package bootfs

import (
	"fmt"
	"io"
	"path"

	billy "github.com/go-git/go-billy/v5"
	ignore "github.com/sabhiram/go-gitignore"
	log "github.com/sirupsen/logrus"

	"memvfs/internal/common"
	"memvfs/internal/vfs"
)

// RootName is the name of the boot-image subtree under the global root.
const RootName = "boot"

// Stats summarizes a load.
type Stats struct {
	Dirs    int
	Files   int
	Bytes   int64
	Skipped int
}

type loader struct {
	fs      billy.Filesystem
	matcher *ignore.GitIgnore
	stats   Stats
}

// Load copies the tree of fs into a new "boot" directory. Paths matching
// excludes (gitignore syntax) are left out, as are files larger than the
// per-file cap and anything that is neither a file nor a directory. A nil fs
// yields an empty directory.
func Load(fs billy.Filesystem, excludes []string) (*vfs.Vnode, Stats, error) {
	root := vfs.NewStaticDir(RootName)
	if fs == nil {
		return root, Stats{}, nil
	}

	l := &loader{fs: fs}
	if len(excludes) > 0 {
		l.matcher = ignore.CompileIgnoreLines(excludes...)
	}
	if err := l.loadDir("/", "", root); err != nil {
		return nil, l.stats, err
	}
	log.Infof("[BOOT] loaded %d dirs, %d files (%d bytes), skipped %d",
		l.stats.Dirs, l.stats.Files, l.stats.Bytes, l.stats.Skipped)
	return root, l.stats, nil
}

func (l *loader) excluded(rel string, isDir bool) bool {
	if l.matcher == nil {
		return false
	}
	if l.matcher.MatchesPath(rel) {
		return true
	}
	return isDir && l.matcher.MatchesPath(rel+"/")
}

func (l *loader) loadDir(hostDir, rel string, dir *vfs.Vnode) error {
	infos, err := l.fs.ReadDir(hostDir)
	if err != nil {
		return fmt.Errorf("read %s: %w", hostDir, err)
	}

	for _, fi := range infos {
		name := fi.Name()
		childRel := path.Join(rel, name)
		hostPath := l.fs.Join(hostDir, name)

		if l.excluded(childRel, fi.IsDir()) {
			log.Debugf("[BOOT] excluded %s", childRel)
			l.stats.Skipped++
			continue
		}

		switch {
		case fi.IsDir():
			vn, err := dir.Create(name, true)
			if err != nil {
				return fmt.Errorf("mkdir %s: %w", childRel, err)
			}
			l.stats.Dirs++
			err = l.loadDir(hostPath, childRel, vn)
			vn.Close()
			if err != nil {
				return err
			}
		case fi.Mode().IsRegular():
			if fi.Size() > vfs.MaxFileSize {
				log.Warnf("[BOOT] %s is %d bytes, over the %d byte cap; skipped", childRel, fi.Size(), vfs.MaxFileSize)
				l.stats.Skipped++
				continue
			}
			if err := l.loadFile(hostPath, name, dir); err != nil {
				return fmt.Errorf("copy %s: %w", childRel, err)
			}
		default:
			log.Debugf("[BOOT] %s is not a regular file; skipped", childRel)
			l.stats.Skipped++
		}
	}
	return nil
}

func (l *loader) loadFile(hostPath, name string, dir *vfs.Vnode) error {
	f, err := l.fs.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()

	vn, err := dir.Create(name, false)
	if err != nil {
		return err
	}
	defer vn.Close()

	n, err := io.Copy(&vnodeWriter{vn: vn}, f)
	if err != nil {
		return err
	}
	l.stats.Files++
	l.stats.Bytes += n
	return nil
}

// vnodeWriter appends to a file vnode.
type vnodeWriter struct {
	vn  *vfs.Vnode
	off int64
}

func (w *vnodeWriter) Write(p []byte) (int, error) {
	n, err := w.vn.Write(p, w.off)
	w.off += int64(n)
	if err == nil && n < len(p) {
		err = common.ErrNoSpace
	}
	return n, err
}
