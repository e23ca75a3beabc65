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

package commands

import (
	"fmt"
	"io"
	"path"
	"strings"

	"memvfs/internal/daemon"
	"memvfs/internal/vfs"
)

// formatBytes renders n with a binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatBlocks renders resident block usage against an optional limit.
func formatBlocks(resident, limit int64) string {
	used := fmt.Sprintf("%d (%s)", resident, formatBytes(resident*vfs.BlockSize))
	if limit <= 0 {
		return used + " of unlimited"
	}
	return fmt.Sprintf("%s of %d", used, limit)
}

// printTree writes one line per entry, indented by depth. Directories end in
// a slash, files show their size, remote mount points show the handle ID.
func printTree(w io.Writer, entries []daemon.TreeEntry) {
	if len(entries) == 0 {
		return
	}
	base := depth(entries[0].Path)
	for _, e := range entries {
		indent := strings.Repeat("  ", depth(e.Path)-base)
		name := path.Base(e.Path)
		if e.Path == entries[0].Path {
			name = e.Path
		}
		switch {
		case e.RemoteID != "":
			fmt.Fprintf(w, "%s%s/ -> remote %s\n", indent, strings.TrimSuffix(name, "/"), e.RemoteID)
		case e.Dir:
			fmt.Fprintf(w, "%s%s/\n", indent, strings.TrimSuffix(name, "/"))
		default:
			fmt.Fprintf(w, "%s%s (%s)\n", indent, name, formatBytes(e.Size))
		}
	}
}

func depth(p string) int {
	if p == "/" {
		return 0
	}
	return strings.Count(p, "/")
}
