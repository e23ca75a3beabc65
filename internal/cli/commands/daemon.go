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
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"memvfs/internal/daemon"
	"memvfs/internal/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon in the foreground",
	Long: `Runs the memvfs daemon in the foreground until interrupted.

The namespace is composed from settings.yaml, configured remotes are attached
and the global root is exported over NFSv3 on listen_addr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Daemon management commands",
	Long:  `Commands for controlling the memvfs daemon.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	Long:  `Starts the memvfs daemon in the background.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	Long:  `Stops the running memvfs daemon. All in-memory content is lost.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Shows whether the daemon is running, its NFS address, remote mounts and memory use.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStatus,
}

var daemonCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove files left by a crashed daemon",
	Long:  `Removes a stale PID file and control socket when no daemon is running.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonCleanup,
}

var serveLogLevel string
var serveListen string
var daemonRestart bool

func init() {
	serveCmd.Flags().StringVar(&serveLogLevel, "logging", "", "Log level override: trace, debug, info, warn, off")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "NFS listen address override")
	daemonStartCmd.Flags().BoolVar(&daemonRestart, "restart", false, "Restart daemon if already running")
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonCleanupCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	d := daemon.New()
	d.LogLevel = serveLogLevel
	d.ListenAddr = serveListen
	return d.Run(cmd.Context())
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	if daemon.IsDaemonRunning() {
		pid, _ := daemon.GetPID()
		if !daemonRestart {
			fmt.Printf("Daemon already running (PID %d)\n", pid)
			fmt.Println("Use --restart to restart the daemon")
			return nil
		}
		fmt.Printf("Daemon already running (PID %d), restarting...\n", pid)
		if err := stopDaemonAndWait(cmd.Context()); err != nil {
			return fmt.Errorf("failed to stop daemon for restart: %w", err)
		}
	} else {
		daemon.CleanupStale()
	}

	if err := ensureDaemon(false); err != nil {
		return err
	}
	pid, _ := daemon.GetPID()
	fmt.Printf("Daemon started (PID %d)\n", pid)
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	if !daemon.IsDaemonRunning() {
		fmt.Println("Daemon not running")
		return nil
	}
	if err := stopDaemonAndWait(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Daemon stopped")
	return nil
}

func runDaemonCleanup(cmd *cobra.Command, args []string) error {
	if daemon.IsDaemonRunning() {
		fmt.Println("Daemon is running, nothing to clean up")
		return nil
	}
	fmt.Println(daemon.FormatCleanupResult(daemon.CleanupStale()))
	return nil
}

// stopDaemonAndWait sends a stop request and waits for the daemon to exit,
// killing it if it does not stop in time.
func stopDaemonAndWait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pid, _ := daemon.GetPID()
	stop := func() error {
		client, err := daemon.Connect()
		if err != nil {
			return err
		}
		defer client.Close()
		resp, err := client.Stop()
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("%s", resp.Error)
		}
		return nil
	}
	if err := util.StopGracefully(ctx, pid, startPoll, stop, daemon.IsDaemonRunning); err != nil {
		return err
	}
	// a killed daemon leaves its PID file and socket behind
	daemon.CleanupStale()
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	settings, err := daemon.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if !daemon.IsDaemonRunning() {
		fmt.Println("Daemon: not running")
		fmt.Printf("Log level: %s\n", displayLogLevel(settings.LogLevel))
		return nil
	}

	client, err := daemon.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer client.Close()
	resp, err := client.Status()
	if err != nil {
		return err
	}

	fmt.Printf("Daemon: running (PID %d)\n", resp.PID)
	fmt.Printf("Session: %s\n", resp.Session)
	fmt.Printf("NFS: %s\n", resp.Listen)
	fmt.Printf("Log level: %s\n", displayLogLevel(settings.LogLevel))
	fmt.Printf("Open handles: %d\n", resp.OpenHandles)
	fmt.Printf("Resident blocks: %s\n", formatBlocks(resp.ResidentBlocks, resp.BlockLimit))
	fmt.Println("Mount points:")
	for _, m := range resp.Mounts {
		remote := "-"
		if m.RemoteID != "" {
			remote = m.RemoteID
		}
		fmt.Printf("  %-12s %-6s %s\n", m.Path, m.Tag, remote)
	}
	return nil
}

func displayLogLevel(level string) string {
	if level == "" {
		return "off"
	}
	return level
}
