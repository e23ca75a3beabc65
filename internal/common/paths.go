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

package common

import (
	"path"
	"strings"
)

// MaxNameLen bounds a single directory entry name.
const MaxNameLen = 255

// NormalizePath cleans a namespace path and strips leading/trailing slashes.
// The namespace root normalizes to "".
func NormalizePath(p string) string {
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// SplitPath splits a path into its components
func SplitPath(p string) []string {
	p = NormalizePath(p)
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// SplitParent returns the parent directory and final component of p.
// The root has no final component and yields ("", "").
func SplitParent(p string) (dir, name string) {
	p = NormalizePath(p)
	if p == "" {
		return "", ""
	}
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

// IsReservedName reports whether name is "." or "..".
func IsReservedName(name string) bool {
	return name == "." || name == ".."
}

// ValidName reports whether name can be stored as a directory entry.
func ValidName(name string) bool {
	if name == "" || len(name) > MaxNameLen || IsReservedName(name) {
		return false
	}
	return !strings.ContainsAny(name, "/\x00")
}
