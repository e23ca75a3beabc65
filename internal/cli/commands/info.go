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

	"github.com/spf13/cobra"

	"memvfs/internal/common"
	"memvfs/internal/daemon"
	"memvfs/internal/vfs"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show filesystem parameters and local paths",
	Long: `Shows the fixed parameters of the memory filesystem, the reserved mount
points and the files memvfs keeps in its config directory.

Examples:
  memvfs info`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	fmt.Println("Filesystem:")
	fmt.Printf("  Block size:      %d bytes\n", vfs.BlockSize)
	fmt.Printf("  Blocks per file: %d\n", vfs.MaxBlocks)
	fmt.Printf("  Max file size:   %s\n", formatBytes(vfs.MaxFileSize))
	fmt.Printf("  Max name length: %d bytes\n", common.MaxNameLen)
	fmt.Println()

	fmt.Println("Mount points:")
	for _, tag := range []vfs.MountTag{vfs.MountData, vfs.MountSocket} {
		p, _ := daemon.MountPathFor(tag)
		fmt.Printf("  %-12s %s\n", p, tag)
	}
	fmt.Println()

	fmt.Println("Paths:")
	fmt.Printf("  Config dir: %s\n", daemon.ConfigDir())
	fmt.Printf("  Settings:   %s\n", daemon.SettingsPath())
	fmt.Printf("  Socket:     %s\n", daemon.SocketPath())
	fmt.Printf("  Log:        %s\n", daemon.LogPath())
	return nil
}
