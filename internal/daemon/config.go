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
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"memvfs/internal/artifacts"
	"memvfs/internal/vfs"
)

// getConfigDir returns the config directory path.
// Uses MEMVFS_CONFIG_DIR env var if set, otherwise defaults to ~/.memvfs.
// This is computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv("MEMVFS_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memvfs")
}

// daemonName returns the fixed daemon name "daemon".
func daemonName() string {
	return "daemon"
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	return getConfigDir()
}

// SocketPath returns the Unix control socket path
func SocketPath() string {
	return filepath.Join(getConfigDir(), daemonName()+".sock")
}

// PidPath returns the PID file path
func PidPath() string {
	return filepath.Join(getConfigDir(), daemonName()+".pid")
}

// LogPath returns the log file path.
// Uses MEMVFS_DAEMON_LOG env var if set, otherwise defaults to config_dir/daemon.log.
func LogPath() string {
	if envPath := os.Getenv("MEMVFS_DAEMON_LOG"); envPath != "" {
		return envPath
	}
	return filepath.Join(getConfigDir(), daemonName()+".log")
}

// LockPath returns the lock file path
func LockPath() string {
	return filepath.Join(getConfigDir(), daemonName()+".lock")
}

// SettingsPath returns the settings file path
func SettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yaml")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// InitConfigDir initializes the config directory with default files
func InitConfigDir() error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	settingsPath := SettingsPath()
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, artifacts.GlobalSettings, 0600); err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}
	}
	return nil
}

// Settings represents the daemon settings
type Settings struct {
	LogLevel          string            `yaml:"log_level"`           // trace, debug, info, warn, off (default: off)
	ListenAddr        string            `yaml:"listen_addr"`         // NFS listen address
	BootDir           string            `yaml:"boot_dir"`            // host directory loaded into /boot
	BootExcludes      []string          `yaml:"boot_excludes"`       // gitignore-style patterns
	Remotes           map[string]string `yaml:"remotes"`             // mount tag -> host:port
	DialAttempts      int               `yaml:"dial_attempts"`       // attempts per remote, 0 = default
	MaxResidentBlocks int64             `yaml:"max_resident_blocks"` // 0 = unlimited
}

// loadDefaultSettings parses default settings from the embedded artifact.
func loadDefaultSettings() Settings {
	var settings Settings
	if err := yaml.Unmarshal(artifacts.GlobalSettings, &settings); err != nil {
		panic("failed to parse embedded settings: " + err.Error())
	}
	return settings
}

// DefaultSettings returns the embedded default settings.
func DefaultSettings() *Settings {
	settings := loadDefaultSettings()
	return &settings
}

// LoadSettings loads the settings from ~/.memvfs/settings.yaml.
// Always reads from file to get latest config. Falls back to embedded defaults if file doesn't exist.
// Fields missing from the file keep their default values.
func LoadSettings() (*Settings, error) {
	settings := loadDefaultSettings()

	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &settings, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", SettingsPath(), err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// SaveSettings saves the settings to ~/.memvfs/settings.yaml
func SaveSettings(settings *Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	header := []byte("# memvfs daemon settings\n# See: memvfs settings --help\n\n")
	return os.WriteFile(SettingsPath(), append(header, data...), 0600)
}

// Validate checks values that the daemon cannot start with.
func (s *Settings) Validate() error {
	switch strings.ToLower(s.LogLevel) {
	case "", "off", "trace", "debug", "info", "warn":
	default:
		return fmt.Errorf("invalid log_level %q (expected trace, debug, info, warn or off)", s.LogLevel)
	}
	for tag := range s.Remotes {
		if _, err := MountPathFor(vfs.MountTag(tag)); err != nil {
			return err
		}
	}
	if s.DialAttempts < 0 {
		return fmt.Errorf("invalid dial_attempts %d", s.DialAttempts)
	}
	if s.MaxResidentBlocks < 0 {
		return fmt.Errorf("invalid max_resident_blocks %d", s.MaxResidentBlocks)
	}
	return nil
}

// RemoteTags returns the configured mount tags in sorted order.
func (s *Settings) RemoteTags() []vfs.MountTag {
	tags := make([]vfs.MountTag, 0, len(s.Remotes))
	for tag := range s.Remotes {
		tags = append(tags, vfs.MountTag(tag))
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// MountPathFor returns the namespace path of a reserved mount point.
func MountPathFor(tag vfs.MountTag) (string, error) {
	switch tag {
	case vfs.MountData:
		return "/data", nil
	case vfs.MountSocket:
		return "/dev/socket", nil
	default:
		return "", fmt.Errorf("unknown mount tag %q (expected %q or %q)", tag, vfs.MountData, vfs.MountSocket)
	}
}
