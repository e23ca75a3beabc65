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

package util

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// StartDetached starts the current executable with args in a new session so
// it outlives the caller. The environment is inherited.
func StartDetached(args ...string) (*os.Process, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(exe, args...)
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // detach from terminal
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}
	// reap the child if it exits while we are still around
	go cmd.Wait()
	return cmd.Process, nil
}

// EnsureRunning starts a background process with args unless running already
// reports true, then waits for running to report true. Progress is written
// to w when it is non-nil.
func EnsureRunning(ctx context.Context, cfg PollConfig, running func() bool, w io.Writer, args ...string) error {
	if running() {
		return nil
	}
	say := func(format string, a ...any) {
		if w != nil {
			fmt.Fprintf(w, format, a...)
		}
	}

	say("Starting daemon...")
	if _, err := StartDetached(args...); err != nil {
		say(" failed\n")
		return err
	}
	if err := PollUntil(ctx, cfg, running); err != nil {
		say(" timeout\n")
		return fmt.Errorf("daemon did not start in time")
	}
	say(" done\n")
	return nil
}

// StopGracefully asks a process to stop via stop, waits up to cfg.Timeout for
// running to report false and sends SIGKILL to pid if it does not.
func StopGracefully(ctx context.Context, pid int, cfg PollConfig, stop func() error, running func() bool) error {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if stop != nil {
		// a failed request still falls through to the kill below
		_ = stop()
	}
	if PollUntil(ctx, cfg, func() bool { return !running() }) == nil {
		return nil
	}

	if pid > 0 {
		if proc, err := os.FindProcess(pid); err == nil {
			_ = proc.Signal(syscall.SIGKILL)
		}
	}
	kill := PollConfig{Timeout: time.Second, Interval: cfg.Interval}
	if PollUntil(ctx, kill, func() bool { return !running() }) != nil {
		return fmt.Errorf("failed to stop process (PID %d)", pid)
	}
	return nil
}

// ProcessAlive reports whether a process with the given PID exists.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks existence without delivering anything
	return proc.Signal(syscall.Signal(0)) == nil
}
