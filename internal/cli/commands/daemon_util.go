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
	"io"
	"os"
	"time"

	"memvfs/internal/daemon"
	"memvfs/internal/util"
)

// startPoll bounds how long start waits for the daemon socket.
var startPoll = util.PollConfig{Timeout: 10 * time.Second, Interval: 25 * time.Millisecond}

// ensureDaemon starts the daemon in the background if it is not running.
// If notify is true, progress is printed to stderr.
func ensureDaemon(notify bool) error {
	var w io.Writer
	if notify {
		w = os.Stderr
	}
	return util.EnsureRunning(context.Background(), startPoll, daemon.IsDaemonRunning, w, "serve")
}

// withClient connects to the daemon, starting it first if needed.
func withClient(fn func(*daemon.Client) error) error {
	if err := ensureDaemon(true); err != nil {
		return err
	}
	client, err := daemon.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer client.Close()
	return fn(client)
}
