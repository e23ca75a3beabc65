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
	"errors"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCleanupResult_Empty(t *testing.T) {
	assert.Equal(t, "No cleanup needed", FormatCleanupResult(&CleanupResult{}))
}

func TestFormatCleanupResult_Full(t *testing.T) {
	out := FormatCleanupResult(&CleanupResult{
		CleanedPidFile: true,
		CleanedSocket:  true,
		Errors:         []error{errors.New("boom")},
	})
	assert.Equal(t, "Cleaned up stale PID file\nCleaned up stale socket file\nEncountered 1 error(s):\n  - boom", out)
}

func TestCleanupStale_NothingToDo(t *testing.T) {
	shortConfigDir(t)
	result := CleanupStale()
	assert.False(t, result.CleanedPidFile)
	assert.False(t, result.CleanedSocket)
	assert.Empty(t, result.Errors)
}

func TestCleanupStale_DeadProcess(t *testing.T) {
	shortConfigDir(t)
	// PIDs this large are above the default pid_max.
	require.NoError(t, os.WriteFile(PidPath(), []byte(strconv.Itoa(1<<30)), 0600))
	require.NoError(t, os.WriteFile(SocketPath(), nil, 0600))

	result := CleanupStale()
	assert.True(t, result.CleanedPidFile)
	assert.True(t, result.CleanedSocket)
	assert.NoFileExists(t, PidPath())
	assert.NoFileExists(t, SocketPath())
}

func TestCleanupStale_LivePidKept(t *testing.T) {
	shortConfigDir(t)
	require.NoError(t, os.WriteFile(PidPath(), []byte(strconv.Itoa(os.Getpid())), 0600))

	cleaned, err := cleanupStalePidFile()
	require.NoError(t, err)
	assert.False(t, cleaned)
	assert.FileExists(t, PidPath())
}

func TestCleanupStale_GarbagePidFile(t *testing.T) {
	shortConfigDir(t)
	require.NoError(t, os.WriteFile(PidPath(), []byte("not-a-pid"), 0600))

	cleaned, err := cleanupStalePidFile()
	require.NoError(t, err)
	assert.True(t, cleaned)
}

func TestCleanupStale_DaemonRunning(t *testing.T) {
	startTestServer(t, &Response{Success: true})
	require.NoError(t, os.WriteFile(PidPath(), []byte("not-a-pid"), 0600))

	result := CleanupStale()
	assert.False(t, result.CleanedPidFile)
	assert.FileExists(t, SocketPath())
}
