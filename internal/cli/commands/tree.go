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
	"os"

	"github.com/spf13/cobra"

	"memvfs/internal/daemon"
)

var treeCmd = &cobra.Command{
	Use:   "tree [path]",
	Short: "List the namespace served by the daemon",
	Long: `Lists every object below path (default "/") in the running daemon's
namespace. Remote mount points show the installed handle and are not descended.

Examples:
  memvfs tree
  memvfs tree /tmp`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTree,
}

func init() {
	rootCmd.AddCommand(treeCmd)
}

func runTree(cmd *cobra.Command, args []string) error {
	p := "/"
	if len(args) > 0 {
		p = args[0]
	}
	return withClient(func(c *daemon.Client) error {
		entries, err := c.Tree(p)
		if err != nil {
			return err
		}
		printTree(os.Stdout, entries)
		return nil
	})
}
