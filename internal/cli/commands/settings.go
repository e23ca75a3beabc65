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
	"strings"

	"github.com/spf13/cobra"

	"memvfs/internal/daemon"
	"memvfs/internal/vfs"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change daemon settings",
	Long: `Show or change the settings stored in ~/.memvfs/settings.yaml.

The log level is applied to a running daemon immediately. Other settings take
effect on the next daemon start.

Examples:
  # Show current settings
  memvfs settings

  # Enable debug logging
  memvfs settings --logging debug

  # Load a host directory into /boot, skipping build output
  memvfs settings --boot-dir /srv/image --exclude 'build/'

  # Attach a service to /data at startup
  memvfs settings --remote data=127.0.0.1:7000

  # Remove it again
  memvfs settings --remote data=`,
	Args: cobra.NoArgs,
	RunE: runSettings,
}

var (
	settingsLogLevel   string
	settingsListen     string
	settingsBootDir    string
	settingsExcludes   []string
	settingsRemotes    []string
	settingsMaxBlocks  int64
	settingsDialTrials int
)

func init() {
	f := settingsCmd.Flags()
	f.StringVar(&settingsLogLevel, "logging", "", "Log level: trace, debug, info, warn, off")
	f.StringVar(&settingsListen, "listen", "", "NFS listen address")
	f.StringVar(&settingsBootDir, "boot-dir", "", "Host directory loaded into /boot")
	f.StringSliceVar(&settingsExcludes, "exclude", nil, "Replace boot excludes (gitignore patterns)")
	f.StringSliceVar(&settingsRemotes, "remote", nil, "Set a startup remote as tag=host:port (empty address removes it)")
	f.Int64Var(&settingsMaxBlocks, "max-blocks", -1, "Resident block limit (0 = unlimited)")
	f.IntVar(&settingsDialTrials, "dial-attempts", -1, "Attempts when dialing a remote")
	rootCmd.AddCommand(settingsCmd)
}

func runSettings(cmd *cobra.Command, args []string) error {
	settings, err := daemon.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	changed, err := applySettingsFlags(cmd, settings)
	if err != nil {
		return err
	}
	if !changed {
		printSettings(settings)
		return nil
	}

	if err := daemon.SaveSettings(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	fmt.Println("Settings saved")

	if daemon.IsDaemonRunning() {
		client, err := daemon.Connect()
		if err == nil {
			defer client.Close()
			if err := client.ReloadConfig(); err != nil {
				fmt.Printf("Warning: %v\n", err)
			}
		}
	}
	return nil
}

// applySettingsFlags copies the flags the user set onto settings.
func applySettingsFlags(cmd *cobra.Command, settings *daemon.Settings) (bool, error) {
	f := cmd.Flags()
	changed := false
	if f.Changed("logging") {
		settings.LogLevel = strings.ToLower(settingsLogLevel)
		changed = true
	}
	if f.Changed("listen") {
		settings.ListenAddr = settingsListen
		changed = true
	}
	if f.Changed("boot-dir") {
		settings.BootDir = settingsBootDir
		changed = true
	}
	if f.Changed("exclude") {
		settings.BootExcludes = settingsExcludes
		changed = true
	}
	if f.Changed("remote") {
		if err := applyRemotes(settings, settingsRemotes); err != nil {
			return false, err
		}
		changed = true
	}
	if f.Changed("max-blocks") {
		settings.MaxResidentBlocks = settingsMaxBlocks
		changed = true
	}
	if f.Changed("dial-attempts") {
		settings.DialAttempts = settingsDialTrials
		changed = true
	}
	return changed, nil
}

// applyRemotes applies tag=address pairs; an empty address removes the tag.
func applyRemotes(settings *daemon.Settings, pairs []string) error {
	for _, pair := range pairs {
		tag, address, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid --remote %q (expected tag=host:port)", pair)
		}
		if err := checkTag(tag); err != nil {
			return err
		}
		if address == "" {
			delete(settings.Remotes, tag)
			continue
		}
		if settings.Remotes == nil {
			settings.Remotes = make(map[string]string)
		}
		settings.Remotes[tag] = address
	}
	return nil
}

func printSettings(s *daemon.Settings) {
	fmt.Println("Current settings:")
	fmt.Printf("  Log level:      %s\n", displayLogLevel(s.LogLevel))
	fmt.Printf("  Listen address: %s\n", s.ListenAddr)
	bootDir := s.BootDir
	if bootDir == "" {
		bootDir = "(empty)"
	}
	fmt.Printf("  Boot dir:       %s\n", bootDir)
	if len(s.BootExcludes) > 0 {
		fmt.Printf("  Boot excludes:  %s\n", strings.Join(s.BootExcludes, ", "))
	}
	if s.MaxResidentBlocks > 0 {
		fmt.Printf("  Block limit:    %d (%s)\n", s.MaxResidentBlocks, formatBytes(s.MaxResidentBlocks*vfs.BlockSize))
	} else {
		fmt.Println("  Block limit:    unlimited")
	}
	fmt.Printf("  Dial attempts:  %d\n", s.DialAttempts)
	if len(s.Remotes) == 0 {
		fmt.Println("  Remotes:        none")
		return
	}
	fmt.Println("  Remotes:")
	for _, tag := range s.RemoteTags() {
		fmt.Printf("    %-8s %s\n", tag, s.Remotes[string(tag)])
	}
}
