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
	"context"
	"fmt"
	"net"
	"time"

	"github.com/avast/retry-go/v4"
	log "github.com/sirupsen/logrus"

	"memvfs/internal/util"
	"memvfs/internal/vfs"
)

const dialTimeout = 2 * time.Second

// Dialer opens the connection backing a remote mount.
type Dialer func(ctx context.Context, address string) (net.Conn, error)

func defaultDialer(ctx context.Context, address string) (net.Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	return d.DialContext(ctx, "tcp", address)
}

// attachRemote dials address and installs the connection on the mount point
// named by tag. The returned handle ID identifies the installed remote.
func attachRemote(ctx context.Context, ns *vfs.Namespace, dial Dialer, tag vfs.MountTag, address string, attempts int) (string, error) {
	mountPath, err := MountPathFor(tag)
	if err != nil {
		return "", err
	}
	if dial == nil {
		dial = defaultDialer
	}

	t0 := time.Now()
	conn, err := util.RetryWithResult(ctx, func() (net.Conn, error) {
		return dial(ctx, address)
	}, append(util.DialRetryOptions(ctx, uint(attempts)),
		retry.OnRetry(func(n uint, err error) {
			log.Debugf("[REMOTE] dial %s for %s: attempt %d failed: %v", address, tag, n+1, err)
		}))...)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", address, err)
	}

	h := vfs.NewConnHandle(conn)
	if err := ns.InstallRemote(mountPath, h); err != nil {
		conn.Close()
		return "", fmt.Errorf("install remote on %s: %w", mountPath, err)
	}
	log.Infof("[REMOTE] %s attached to %s as %s (%v)", address, mountPath, h.ID(), time.Since(t0))
	return h.ID(), nil
}

// detachRemote closes the remote installed on the mount point named by tag.
func detachRemote(ns *vfs.Namespace, tag vfs.MountTag) error {
	mountPath, err := MountPathFor(tag)
	if err != nil {
		return err
	}
	if err := ns.UninstallRemote(mountPath); err != nil {
		return fmt.Errorf("detach %s: %w", mountPath, err)
	}
	log.Infof("[REMOTE] detached %s", mountPath)
	return nil
}

// attachConfigured dials every remote named in settings. Failures are logged
// and skipped so one unreachable service does not keep the daemon down.
func attachConfigured(ctx context.Context, ns *vfs.Namespace, dial Dialer, settings *Settings) int {
	attached := 0
	for _, tag := range settings.RemoteTags() {
		address := settings.Remotes[string(tag)]
		if _, err := attachRemote(ctx, ns, dial, tag, address, settings.DialAttempts); err != nil {
			log.Warnf("[REMOTE] %s: %v", tag, err)
			continue
		}
		attached++
	}
	return attached
}
