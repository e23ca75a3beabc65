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
	"strings"

	"memvfs/internal/util"
)

// CleanupResult contains the result of a cleanup operation
type CleanupResult struct {
	CleanedPidFile bool    // Whether PID file was cleaned
	CleanedSocket  bool    // Whether socket file was cleaned
	Errors         []error // Any errors encountered
}

// CleanupStale removes the PID and socket files left behind by a daemon that
// died without shutting down. Nothing is touched while a daemon answers.
func CleanupStale() *CleanupResult {
	result := &CleanupResult{}
	if IsDaemonRunning() {
		return result
	}

	cleaned, err := cleanupStalePidFile()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to remove PID file: %w", err))
	}
	result.CleanedPidFile = cleaned

	cleaned, err = cleanupStaleSocket()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to remove socket: %w", err))
	}
	result.CleanedSocket = cleaned
	return result
}

// cleanupStalePidFile removes the PID file if its process is gone.
// An unreadable PID file is treated as stale.
func cleanupStalePidFile() (bool, error) {
	if _, err := os.Stat(PidPath()); os.IsNotExist(err) {
		return false, nil
	}
	pid, err := GetPID()
	if err == nil && util.ProcessAlive(pid) {
		return false, nil
	}
	if err := os.Remove(PidPath()); err != nil && !os.IsNotExist(err) {
		return false, err
	}
	return true, nil
}

// cleanupStaleSocket removes the socket file if no daemon is listening on it.
func cleanupStaleSocket() (bool, error) {
	if _, err := os.Stat(SocketPath()); os.IsNotExist(err) {
		return false, nil
	}
	if IsDaemonRunning() {
		return false, nil
	}
	if err := os.Remove(SocketPath()); err != nil && !os.IsNotExist(err) {
		return false, err
	}
	return true, nil
}

// FormatCleanupResult formats a cleanup result for display
func FormatCleanupResult(result *CleanupResult) string {
	var parts []string

	if result.CleanedPidFile {
		parts = append(parts, "Cleaned up stale PID file")
	}

	if result.CleanedSocket {
		parts = append(parts, "Cleaned up stale socket file")
	}

	if len(result.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Encountered %d error(s):", len(result.Errors)))
		for _, e := range result.Errors {
			parts = append(parts, fmt.Sprintf("  - %s", e.Error()))
		}
	}

	if len(parts) == 0 {
		return "No cleanup needed"
	}

	return strings.Join(parts, "\n")
}
