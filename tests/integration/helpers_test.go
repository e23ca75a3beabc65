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

// Package integration drives the memvfs binary end to end.
//
// TestMain builds the CLI once. Every test gets its own config directory
// (MEMVFS_CONFIG_DIR passed through cmd.Env, never os.Setenv) and therefore
// its own daemon, control socket and NFS port.
package integration

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/gomega"
)

var (
	cliBinary   string
	projectRoot string
)

// TestMain builds the CLI binary once before running all tests
func TestMain(m *testing.M) {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get working directory: %v\n", err)
		os.Exit(1)
	}

	projectRoot = filepath.Join(wd, "..", "..")
	binDir, err := os.MkdirTemp("", "memvfs-bin")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create bin directory: %v\n", err)
		os.Exit(1)
	}
	cliBinary = filepath.Join(binDir, "memvfs")

	cmd := exec.Command("go", "build", "-o", cliBinary, "./cmd/memvfs")
	cmd.Dir = projectRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build binary: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(binDir)
	os.Exit(code)
}

// CLIResult holds the result of a CLI command
type CLIResult struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
}

// Contains reports whether s appears in stdout or stderr.
func (r CLIResult) Contains(s string) bool {
	return strings.Contains(r.Combined, s)
}

// CLITimeout is the maximum time a CLI command can run before being killed.
const CLITimeout = 15 * time.Second

// filterEnvExcluding returns os.Environ() with the specified env var removed
func filterEnvExcluding(exclude string) []string {
	env := make([]string, 0, len(os.Environ()))
	prefix := exclude + "="
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, prefix) {
			env = append(env, e)
		}
	}
	return env
}

// RunCLIWithConfigDir executes the CLI against an isolated config directory.
func RunCLIWithConfigDir(configDir string, args ...string) CLIResult {
	ctx, cancel := context.WithTimeout(context.Background(), CLITimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cliBinary, args...)
	// The daemon started by "daemon start" inherits our pipes; don't wait
	// on them forever once the CLI itself has exited.
	cmd.WaitDelay = 2 * time.Second

	env := filterEnvExcluding("MEMVFS_CONFIG_DIR")
	if configDir != "" {
		env = append(env, "MEMVFS_CONFIG_DIR="+configDir)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	exitCode := 0
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			exitCode = 124
			stderr.WriteString(fmt.Sprintf("\n[CLI TIMEOUT] Command timed out after %v: %v\n", CLITimeout, args))
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
		}
	}

	return CLIResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Combined: stdout.String() + stderr.String(),
		ExitCode: exitCode,
	}
}

// TestEnv is an isolated config directory with at most one daemon.
type TestEnv struct {
	t         *testing.T
	g         *WithT
	configDir string
}

// NewTestEnv creates an isolated environment. The NFS server listens on an
// ephemeral port so parallel tests never collide.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// unix socket paths are length limited, keep the directory short
	dir, err := os.MkdirTemp("/tmp", "mvfs-it")
	if err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	env := &TestEnv{t: t, g: NewWithT(t), configDir: dir}
	t.Cleanup(env.Cleanup)

	env.MustRun("settings", "--listen", "127.0.0.1:0")
	return env
}

// RunCLI executes the CLI in this environment.
func (e *TestEnv) RunCLI(args ...string) CLIResult {
	return RunCLIWithConfigDir(e.configDir, args...)
}

// MustRun executes the CLI and fails the test on a non-zero exit code.
func (e *TestEnv) MustRun(args ...string) CLIResult {
	e.t.Helper()
	result := e.RunCLI(args...)
	if result.ExitCode != 0 {
		e.t.Fatalf("memvfs %s failed (exit %d): %s", strings.Join(args, " "), result.ExitCode, result.Combined)
	}
	return result
}

// StartDaemon starts the daemon and waits for it to answer status requests.
func (e *TestEnv) StartDaemon() {
	e.t.Helper()
	e.MustRun("daemon", "start")
	e.g.Eventually(e.daemonRunning).
		WithTimeout(5 * time.Second).
		WithPolling(50 * time.Millisecond).
		Should(BeTrue())
}

// Cleanup stops the daemon and removes the config directory.
func (e *TestEnv) Cleanup() {
	if e.daemonRunning() {
		e.RunCLI("daemon", "stop")
		waitForCondition(e.t, "daemon stopped", 10*time.Second, func() bool {
			return !e.daemonRunning()
		})
	}
	os.RemoveAll(e.configDir)
}

func (e *TestEnv) daemonRunning() bool {
	result := e.RunCLI("daemon", "status")
	return result.Contains("running") && !result.Contains("not running")
}

// NFSAddr returns the address the daemon's NFS server listens on.
func (e *TestEnv) NFSAddr() string {
	e.t.Helper()
	result := e.MustRun("daemon", "status")
	addr := statusField(result.Stdout, "NFS")
	if addr == "" {
		e.t.Fatalf("no NFS address in status output: %s", result.Combined)
	}
	return addr
}

// statusField returns the value of a "Key: value" line.
func statusField(out, key string) string {
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, key+": "); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// WaitConfig holds configuration for wait operations
type WaitConfig struct {
	Name        string        // Description for logging (e.g., "daemon running")
	Timeout     time.Duration // Total timeout
	Poll        time.Duration // Polling interval (default: 50ms)
	LogInterval time.Duration // How often to log during wait (default: 1s)
}

// DefaultWaitConfig returns sensible defaults for wait operations
func DefaultWaitConfig(name string, timeout time.Duration) WaitConfig {
	return WaitConfig{
		Name:        name,
		Timeout:     timeout,
		Poll:        50 * time.Millisecond,
		LogInterval: 1 * time.Second,
	}
}

// waitFor polls check until it returns (true, _) or the timeout expires,
// logging the reported status once per LogInterval.
func waitFor(t *testing.T, cfg WaitConfig, check func() (done bool, status string)) bool {
	if t != nil {
		t.Helper()
	}
	if cfg.Poll == 0 {
		cfg.Poll = 50 * time.Millisecond
	}
	if cfg.LogInterval == 0 {
		cfg.LogInterval = 1 * time.Second
	}

	start := time.Now()
	lastLog := start
	for time.Since(start) < cfg.Timeout {
		done, status := check()
		if done {
			return true
		}
		if t != nil && time.Since(lastLog) >= cfg.LogInterval {
			t.Logf("[waitFor:%s] still waiting... (status: %s, elapsed: %v)", cfg.Name, status, time.Since(start))
			lastLog = time.Now()
		}
		time.Sleep(cfg.Poll)
	}

	_, finalStatus := check()
	if t != nil {
		t.Logf("[waitFor:%s] TIMEOUT after %v (final status: %s)", cfg.Name, cfg.Timeout, finalStatus)
	}
	return false
}

// waitForCondition is waitFor without custom status messages.
func waitForCondition(t *testing.T, name string, timeout time.Duration, condition func() bool) bool {
	return waitFor(t, DefaultWaitConfig(name, timeout), func() (bool, string) {
		if condition() {
			return true, "done"
		}
		return false, "waiting"
	})
}
