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
	"fmt"
	"os"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	log "github.com/sirupsen/logrus"

	"memvfs/internal/bootfs"
	"memvfs/internal/vfs"
)

// Compose builds the namespace described by settings: an empty device
// subtree, the boot image loaded from boot_dir and the memory tree, all under
// the global root.
func Compose(settings *Settings) (*vfs.Namespace, bootfs.Stats, error) {
	var bootFS billy.Filesystem
	if settings.BootDir != "" {
		info, err := os.Stat(settings.BootDir)
		if err != nil {
			return nil, bootfs.Stats{}, fmt.Errorf("boot_dir: %w", err)
		}
		if !info.IsDir() {
			return nil, bootfs.Stats{}, fmt.Errorf("boot_dir %s is not a directory", settings.BootDir)
		}
		bootFS = osfs.New(settings.BootDir)
	}

	boot, stats, err := bootfs.Load(bootFS, settings.BootExcludes)
	if err != nil {
		return nil, stats, fmt.Errorf("load boot image: %w", err)
	}

	pool := vfs.NewBlockPool(settings.MaxResidentBlocks)
	roots := vfs.NewRoots(
		vfs.StaticSubtree(vfs.NewStaticDir("dev")),
		vfs.StaticSubtree(boot),
		vfs.WithBlockPool(pool),
	)
	ns := vfs.NewNamespace(roots)
	log.Debugf("[DAEMON] namespace composed (block limit %d)", pool.Limit())
	return ns, stats, nil
}
