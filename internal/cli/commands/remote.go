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

	"memvfs/internal/daemon"
	"memvfs/internal/vfs"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage remote connections on the reserved mount points",
	Long: `The /data and /dev/socket mount points can be bound to a remote service.
Once bound, paths below the mount point are no longer served locally.`,
}

var remoteAttachCmd = &cobra.Command{
	Use:   "attach <data|socket> <host:port>",
	Short: "Dial a service and install it on a mount point",
	Long: `Dials host:port from the daemon and installs the connection on the mount
point. A connection already installed there is closed.

Examples:
  memvfs remote attach data 127.0.0.1:7000
  memvfs remote attach socket 10.0.0.2:9000`,
	Args: cobra.ExactArgs(2),
	RunE: runRemoteAttach,
}

var remoteDetachCmd = &cobra.Command{
	Use:   "detach <data|socket>",
	Short: "Close the connection installed on a mount point",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoteDetach,
}

func init() {
	remoteCmd.AddCommand(remoteAttachCmd)
	remoteCmd.AddCommand(remoteDetachCmd)
	rootCmd.AddCommand(remoteCmd)
}

func checkTag(tag string) error {
	_, err := daemon.MountPathFor(vfs.MountTag(tag))
	return err
}

func runRemoteAttach(cmd *cobra.Command, args []string) error {
	tag, address := args[0], args[1]
	if err := checkTag(tag); err != nil {
		return err
	}
	return withClient(func(c *daemon.Client) error {
		resp, err := c.Attach(tag, address)
		if err != nil {
			return err
		}
		fmt.Println(resp.Message)
		return nil
	})
}

func runRemoteDetach(cmd *cobra.Command, args []string) error {
	tag := args[0]
	if err := checkTag(tag); err != nil {
		return err
	}
	return withClient(func(c *daemon.Client) error {
		if err := c.Detach(tag); err != nil {
			return err
		}
		fmt.Printf("Detached %s\n", tag)
		return nil
	})
}
