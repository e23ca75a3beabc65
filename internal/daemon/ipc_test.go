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
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortConfigDir isolates the config dir under /tmp to stay within the unix
// socket path length limit.
func shortConfigDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "mvfs")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	t.Setenv("MEMVFS_CONFIG_DIR", dir)
	return dir
}

// startTestServer serves handler on the isolated socket and records the last request.
func startTestServer(t *testing.T, resp *Response) <-chan *Request {
	t.Helper()
	shortConfigDir(t)

	reqs := make(chan *Request, 1)
	server := NewServer(func(req *Request) *Response {
		reqs <- req
		return resp
	})
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)

	return reqs
}

func TestRequestConstants(t *testing.T) {
	t.Parallel()

	values := []string{
		RequestStatus,
		RequestStop,
		RequestTree,
		RequestAttach,
		RequestDetach,
		RequestReloadConfig,
	}

	seen := make(map[string]bool)
	for _, v := range values {
		assert.NotEmpty(t, v)
		assert.False(t, seen[v], "duplicate request type: %s", v)
		seen[v] = true
	}
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	server := NewServer(func(req *Request) *Response {
		return &Response{Success: true}
	})
	require.NotNil(t, server)
	assert.NotNil(t, server.handler)
}

func TestServerStartStop(t *testing.T) {
	shortConfigDir(t)

	server := NewServer(func(req *Request) *Response {
		return &Response{Success: true, Message: "test response"}
	})
	require.NoError(t, server.Start())

	_, err := os.Stat(SocketPath())
	assert.NoError(t, err, "socket file should be created")

	server.Stop()
	time.Sleep(100 * time.Millisecond)

	_, err = os.Stat(SocketPath())
	assert.True(t, os.IsNotExist(err), "socket should be removed after Stop()")
}

func TestClientServerCommunication(t *testing.T) {
	shortConfigDir(t)

	server := NewServer(func(req *Request) *Response {
		return &Response{
			Success: true,
			Message: "received: " + req.Type,
			PID:     os.Getpid(),
		}
	})
	require.NoError(t, server.Start())
	defer server.Stop()

	client, err := Connect()
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Send(&Request{Type: RequestStatus})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "received: status", resp.Message)
	assert.Equal(t, os.Getpid(), resp.PID)
}

func TestClient_Status(t *testing.T) {
	reqs := startTestServer(t, &Response{
		Success: true,
		PID:     12345,
		Mounts: []MountStatus{
			{Tag: "data", Path: "/data", RemoteID: "abc"},
		},
	})

	client, err := Connect()
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Status()
	require.NoError(t, err)

	assert.Equal(t, RequestStatus, (<-reqs).Type)
	assert.Equal(t, 12345, resp.PID)
	require.Len(t, resp.Mounts, 1)
	assert.Equal(t, "abc", resp.Mounts[0].RemoteID)
}

func TestClient_Tree(t *testing.T) {
	reqs := startTestServer(t, &Response{
		Success: true,
		Tree: []TreeEntry{
			{Path: "/", Dir: true},
			{Path: "/tmp", Dir: true},
		},
	})

	client, err := Connect()
	require.NoError(t, err)
	defer client.Close()

	tree, err := client.Tree("/tmp")
	require.NoError(t, err)

	req := <-reqs
	assert.Equal(t, RequestTree, req.Type)
	assert.Equal(t, "/tmp", req.Path)
	assert.Len(t, tree, 2)
}

func TestClient_Attach(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		reqs := startTestServer(t, &Response{Success: true, Message: "attached"})

		client, err := Connect()
		require.NoError(t, err)
		defer client.Close()

		resp, err := client.Attach("data", "127.0.0.1:7000")
		require.NoError(t, err)
		assert.Equal(t, "attached", resp.Message)

		req := <-reqs
		assert.Equal(t, RequestAttach, req.Type)
		assert.Equal(t, "data", req.Tag)
		assert.Equal(t, "127.0.0.1:7000", req.Address)
	})

	t.Run("failure", func(t *testing.T) {
		startTestServer(t, &Response{Success: false, Error: "boom"})

		client, err := Connect()
		require.NoError(t, err)
		defer client.Close()

		_, err = client.Attach("data", "127.0.0.1:7000")
		assert.ErrorContains(t, err, "boom")
	})
}

func TestClient_Detach(t *testing.T) {
	reqs := startTestServer(t, &Response{Success: true})

	client, err := Connect()
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Detach("socket"))

	req := <-reqs
	assert.Equal(t, RequestDetach, req.Type)
	assert.Equal(t, "socket", req.Tag)
}

func TestClient_Stop(t *testing.T) {
	reqs := startTestServer(t, &Response{Success: true})

	client, err := Connect()
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Stop()
	require.NoError(t, err)
	assert.Equal(t, RequestStop, (<-reqs).Type)
}

func TestIsDaemonRunning(t *testing.T) {
	t.Run("returns false when not running", func(t *testing.T) {
		t.Setenv("MEMVFS_CONFIG_DIR", t.TempDir())
		assert.False(t, IsDaemonRunning())
	})

	t.Run("returns true when running", func(t *testing.T) {
		startTestServer(t, &Response{Success: true})
		assert.True(t, IsDaemonRunning())
	})
}

func TestConnect_NotRunning(t *testing.T) {
	t.Setenv("MEMVFS_CONFIG_DIR", t.TempDir())

	_, err := Connect()
	assert.Error(t, err)
}
