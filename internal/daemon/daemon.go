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
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"memvfs/internal/common"
	"memvfs/internal/vfs"
)

// Daemon serves the composed namespace over NFS and answers control requests
// on the IPC socket.
type Daemon struct {
	ipcServer *Server
	logFile   *os.File
	stopCh    chan struct{}
	stopOnce  sync.Once
	ready     chan struct{}
	lock      *flock.Flock
	session   string

	// LogLevel overrides the log_level setting when non-empty
	LogLevel string
	// ListenAddr overrides the listen_addr setting when non-empty
	ListenAddr string
	// Dial opens remote connections; nil uses TCP
	Dial Dialer

	ctx      context.Context
	settings *Settings
	ns       *vfs.Namespace
	nfs      *NFSServer
	addr     net.Addr
}

// New creates a new daemon instance
func New() *Daemon {
	return &Daemon{
		stopCh: make(chan struct{}),
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the NFS export and the IPC socket accept requests.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Addr returns the bound NFS address. Valid after Ready.
func (d *Daemon) Addr() net.Addr {
	return d.addr
}

// Namespace returns the served namespace. Valid after Ready.
func (d *Daemon) Namespace() *vfs.Namespace {
	return d.ns
}

// Stop asks a running daemon to shut down.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// Run starts the daemon and blocks until ctx is cancelled, a stop request
// arrives or the process is signalled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	settings, err := LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if d.LogLevel != "" {
		settings.LogLevel = d.LogLevel
	}
	if d.ListenAddr != "" {
		settings.ListenAddr = d.ListenAddr
	}
	d.settings = settings

	// Acquire exclusive lock
	d.lock = flock.New(LockPath())
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another daemon instance is already running")
	}
	defer d.lock.Unlock()

	logFile, err := setupLogging(settings.LogLevel)
	if err != nil {
		return err
	}
	if logFile != nil {
		d.logFile = logFile
		defer logFile.Close()
	}

	if err := writePidFile(); err != nil {
		return err
	}
	defer removePidFile()

	d.session = uuid.NewString()
	log.Infof("[DAEMON] started (PID %d, session %s)", os.Getpid(), d.session)

	ns, stats, err := Compose(settings)
	if err != nil {
		return err
	}
	d.ns = ns
	log.Infof("[DAEMON] boot image: %d files, %d bytes, %d skipped", stats.Files, stats.Bytes, stats.Skipped)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.ctx = ctx

	if n := attachConfigured(ctx, ns, d.Dial, settings); n > 0 {
		log.Infof("[DAEMON] attached %d configured remotes", n)
	}

	d.nfs = NewNFSServer(ns)
	addr, err := d.nfs.Listen(settings.ListenAddr)
	if err != nil {
		return err
	}
	d.addr = addr
	serveErr := make(chan error, 1)
	go func() { serveErr <- d.nfs.Serve() }()
	log.Infof("[DAEMON] NFS export listening on %s", addr)

	d.ipcServer = NewServer(d.handleRequest)
	if err := d.ipcServer.Start(); err != nil {
		d.nfs.Shutdown()
		return err
	}
	defer d.ipcServer.Stop()
	log.Infof("[DAEMON] IPC server listening on %s", SocketPath())

	close(d.ready)

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Infof("[DAEMON] received signal %v, shutting down...", sig)
	case <-d.stopCh:
		log.Infof("[DAEMON] stop requested, shutting down...")
	case <-ctx.Done():
		log.Infof("[DAEMON] context done, shutting down...")
	case err := <-serveErr:
		log.Errorf("[DAEMON] NFS server failed: %v", err)
		runErr = err
	}

	d.nfs.Shutdown()
	d.shutdownNamespace()
	log.Infof("[DAEMON] stopped")
	return runErr
}

// shutdownNamespace drops open handles and closes installed remotes.
func (d *Daemon) shutdownNamespace() {
	if n := d.ns.CloseAll(); n > 0 {
		log.Debugf("[DAEMON] closed %d open handles", n)
	}
	for _, tag := range []vfs.MountTag{vfs.MountData, vfs.MountSocket} {
		if err := detachRemote(d.ns, tag); err != nil && !errors.Is(err, common.ErrNotFound) {
			log.Warnf("[DAEMON] %v", err)
		}
	}
}

// handleRequest processes an IPC request
func (d *Daemon) handleRequest(req *Request) *Response {
	switch req.Type {
	case RequestStatus:
		return d.handleStatus()
	case RequestStop:
		return d.handleStop()
	case RequestTree:
		return d.handleTree(req)
	case RequestAttach:
		return d.handleAttach(req)
	case RequestDetach:
		return d.handleDetach(req)
	case RequestReloadConfig:
		return d.handleReloadConfig()
	default:
		return &Response{Success: false, Error: "unknown request type"}
	}
}

func (d *Daemon) handleStatus() *Response {
	var mounts []MountStatus
	for _, tag := range []vfs.MountTag{vfs.MountData, vfs.MountSocket} {
		mountPath, _ := MountPathFor(tag)
		status := MountStatus{Tag: string(tag), Path: mountPath}
		if vn, ok := d.ns.Roots().MountPoint(tag); ok {
			if h, ok := vn.Remote(); ok {
				status.RemoteID = h.ID()
			}
		}
		mounts = append(mounts, status)
	}

	pool := d.ns.Roots().Pool()
	return &Response{
		Success:        true,
		PID:            os.Getpid(),
		Session:        d.session,
		Listen:         d.addr.String(),
		Mounts:         mounts,
		ResidentBlocks: pool.Resident(),
		BlockLimit:     pool.Limit(),
		OpenHandles:    d.ns.OpenHandles(),
	}
}

func (d *Daemon) handleStop() *Response {
	d.Stop()
	return &Response{Success: true, Message: "Daemon stopping"}
}

func (d *Daemon) handleTree(req *Request) *Response {
	root := path.Clean("/" + req.Path)
	var tree []TreeEntry
	err := d.ns.Walk(func(e vfs.Entry) error {
		if root != "/" && e.Path != root && !strings.HasPrefix(e.Path, root+"/") {
			return nil
		}
		tree = append(tree, TreeEntry{
			Path:     e.Path,
			Dir:      e.Attr.IsDir(),
			Size:     e.Attr.Size,
			Mode:     e.Attr.Mode,
			ID:       e.Attr.ID,
			RemoteID: e.Remote,
		})
		return nil
	})
	if err != nil {
		return &Response{Success: false, Error: err.Error()}
	}
	if len(tree) == 0 {
		return &Response{Success: false, Error: fmt.Sprintf("not found: %s", root)}
	}
	return &Response{Success: true, Tree: tree}
}

func (d *Daemon) handleAttach(req *Request) *Response {
	if req.Address == "" {
		return &Response{Success: false, Error: "address is required"}
	}
	id, err := attachRemote(d.ctx, d.ns, d.Dial, vfs.MountTag(req.Tag), req.Address, d.settings.DialAttempts)
	if err != nil {
		return &Response{Success: false, Error: err.Error()}
	}
	return &Response{Success: true, Message: fmt.Sprintf("Attached %s to %s (%s)", req.Address, req.Tag, id)}
}

func (d *Daemon) handleDetach(req *Request) *Response {
	if err := detachRemote(d.ns, vfs.MountTag(req.Tag)); err != nil {
		return &Response{Success: false, Error: err.Error()}
	}
	return &Response{Success: true, Message: fmt.Sprintf("Detached %s", req.Tag)}
}

func (d *Daemon) handleReloadConfig() *Response {
	settings, err := LoadSettings()
	if err != nil {
		return &Response{Success: false, Error: err.Error()}
	}
	if d.LogLevel == "" {
		applyLogLevel(settings.LogLevel)
	}
	d.settings.DialAttempts = settings.DialAttempts
	log.Infof("[DAEMON] settings reloaded")
	return &Response{Success: true, Message: "Settings reloaded"}
}

func writePidFile() error {
	data := []byte(strconv.Itoa(os.Getpid()))
	return os.WriteFile(PidPath(), data, 0600)
}

func removePidFile() {
	os.Remove(PidPath())
}

// GetPID reads the daemon PID from file
func GetPID() (int, error) {
	data, err := os.ReadFile(PidPath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}
