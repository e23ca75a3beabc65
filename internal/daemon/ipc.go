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
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
)

// Request types
const (
	RequestStatus       = "status"
	RequestStop         = "stop"
	RequestTree         = "tree"          // List the namespace
	RequestAttach       = "attach"        // Dial an address and install it on a mount point
	RequestDetach       = "detach"        // Close the remote installed on a mount point
	RequestReloadConfig = "reload_config" // Reload log level from disk
)

// Request represents an IPC request
type Request struct {
	Type string `json:"type"`

	// Attach/detach fields
	Tag     string `json:"tag,omitempty"`     // Mount tag: "data" or "socket"
	Address string `json:"address,omitempty"` // Attach: host:port to dial

	// Tree fields
	Path string `json:"path,omitempty"` // Tree: subtree to list (default "/")
}

// MountStatus represents a reserved mount point's status
type MountStatus struct {
	Tag      string `json:"tag"`
	Path     string `json:"path"`
	RemoteID string `json:"remote_id,omitempty"` // Installed handle ID, empty if none
}

// TreeEntry is one object in a tree listing
type TreeEntry struct {
	Path     string `json:"path"`
	Dir      bool   `json:"dir"`
	Size     int64  `json:"size"`
	Mode     uint32 `json:"mode"`
	ID       uint64 `json:"id"`
	RemoteID string `json:"remote_id,omitempty"`
}

// Response represents an IPC response
type Response struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Error   string        `json:"error,omitempty"`
	PID     int           `json:"pid,omitempty"`
	Session string        `json:"session,omitempty"` // Daemon session UUID
	Listen  string        `json:"listen,omitempty"`  // NFS listen address
	Mounts  []MountStatus `json:"mounts,omitempty"`
	Tree    []TreeEntry   `json:"tree,omitempty"`

	// Memory usage
	ResidentBlocks int64 `json:"resident_blocks,omitempty"`
	BlockLimit     int64 `json:"block_limit,omitempty"`
	OpenHandles    int   `json:"open_handles,omitempty"`
}

// Server is the IPC server
type Server struct {
	listener net.Listener
	handler  func(*Request) *Response
}

// NewServer creates a new IPC server
func NewServer(handler func(*Request) *Response) *Server {
	return &Server{handler: handler}
}

// Start starts the IPC server
func (s *Server) Start() error {
	// Remove existing socket
	os.Remove(SocketPath())

	listener, err := net.Listen("unix", SocketPath())
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	s.listener = listener

	// Make socket accessible
	os.Chmod(SocketPath(), 0600)

	go s.accept()

	return nil
}

// Stop stops the IPC server
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
		os.Remove(SocketPath())
	}
}

func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // Server stopped
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	decoder := json.NewDecoder(conn)
	var req Request
	if err := decoder.Decode(&req); err != nil {
		return
	}

	resp := s.handler(&req)

	encoder := json.NewEncoder(conn)
	encoder.Encode(resp)
}

// Client is the IPC client
type Client struct {
	conn net.Conn
}

// Connect connects to the daemon
func Connect() (*Client, error) {
	conn, err := net.Dial("unix", SocketPath())
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send sends a request and returns the response
func (c *Client) Send(req *Request) (*Response, error) {
	encoder := json.NewEncoder(c.conn)
	if err := encoder.Encode(req); err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(c.conn)
	var resp Response
	if err := decoder.Decode(&resp); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("daemon closed connection")
		}
		return nil, err
	}

	return &resp, nil
}

// Status sends a status request
func (c *Client) Status() (*Response, error) {
	return c.Send(&Request{Type: RequestStatus})
}

// Stop sends a stop request
func (c *Client) Stop() (*Response, error) {
	return c.Send(&Request{Type: RequestStop})
}

// Tree lists the namespace below p
func (c *Client) Tree(p string) ([]TreeEntry, error) {
	resp, err := c.Send(&Request{Type: RequestTree, Path: p})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("tree failed: %s", resp.Error)
	}
	return resp.Tree, nil
}

// Attach asks the daemon to dial address and install the connection on the
// mount point named by tag
func (c *Client) Attach(tag, address string) (*Response, error) {
	resp, err := c.Send(&Request{
		Type:    RequestAttach,
		Tag:     tag,
		Address: address,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("attach failed: %s", resp.Error)
	}
	return resp, nil
}

// Detach closes the remote installed on the mount point named by tag
func (c *Client) Detach(tag string) error {
	resp, err := c.Send(&Request{Type: RequestDetach, Tag: tag})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("detach failed: %s", resp.Error)
	}
	return nil
}

// ReloadConfig requests the daemon to reload its configuration from disk
func (c *Client) ReloadConfig() error {
	resp, err := c.Send(&Request{Type: RequestReloadConfig})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("reload config failed: %s", resp.Error)
	}
	return nil
}

// IsDaemonRunning checks if the daemon is running
func IsDaemonRunning() bool {
	client, err := Connect()
	if err != nil {
		return false
	}
	client.Close()
	return true
}
