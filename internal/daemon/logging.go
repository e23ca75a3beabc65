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
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// maxLogSize is the size past which the log file is halved on startup.
const maxLogSize = 50 * 1024 * 1024

func init() {
	// Default logging to discard until explicitly enabled via settings
	log.SetOutput(io.Discard)
}

// parseLogLevel maps a settings log level to a logrus level. ok is false
// when logging is disabled.
func parseLogLevel(level string) (lvl log.Level, ok bool) {
	switch strings.ToLower(level) {
	case "", "off", "none":
		return log.PanicLevel, false
	case "trace":
		return log.TraceLevel, true
	case "debug":
		return log.DebugLevel, true
	case "info":
		return log.InfoLevel, true
	case "warn":
		return log.WarnLevel, true
	default:
		return log.DebugLevel, true
	}
}

// setupLogging routes logrus to the log file at the given level, or discards
// all output when logging is off. The returned file, if any, must be closed
// by the caller.
func setupLogging(level string) (*os.File, error) {
	lvl, ok := parseLogLevel(level)
	if !ok {
		log.SetOutput(io.Discard)
		return nil, nil
	}

	if err := truncateLogFile(LogPath(), maxLogSize); err != nil {
		// Non-fatal, just report to stderr
		fmt.Fprintf(os.Stderr, "Warning: failed to truncate log file: %v\n", err)
	}

	logFile, err := os.OpenFile(LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(logFile)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, DisableColors: true})
	log.SetLevel(lvl)
	return logFile, nil
}

// applyLogLevel changes the level of an already configured logger. Turning
// logging off keeps the output but raises the level past everything we log.
func applyLogLevel(level string) {
	lvl, ok := parseLogLevel(level)
	if !ok {
		log.SetLevel(log.PanicLevel)
		return
	}
	log.SetLevel(lvl)
}

// truncateLogFile truncates the log file if it exceeds maxSize bytes.
// It keeps the last half of the file content to preserve recent logs.
func truncateLogFile(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() <= maxSize {
		return nil
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		return err
	}

	// Keep the last half, starting at a line boundary
	startIdx := len(data) - len(data)/2
	for i := startIdx; i < len(data); i++ {
		if data[i] == '\n' {
			startIdx = i + 1
			break
		}
	}

	truncatedData := data[startIdx:]
	header := []byte(fmt.Sprintf("--- Log truncated at %s (kept last %d bytes) ---\n",
		time.Now().Format(time.RFC3339), len(truncatedData)))

	return os.WriteFile(logPath, append(header, truncatedData...), 0600)
}
