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

package vfs

import (
	"errors"
	"syscall"

	"memvfs/internal/common"
)

// VFS error codes mapped to syscall errors
var (
	ENOENT  = syscall.ENOENT  // No such file or directory
	EEXIST  = syscall.EEXIST  // File exists
	ENOTDIR = syscall.ENOTDIR // Not a directory
	EISDIR  = syscall.EISDIR  // Is a directory
	EBADF   = syscall.EBADF   // Bad file descriptor
	EINVAL  = syscall.EINVAL  // Invalid argument
	ENOTSUP = syscall.ENOTSUP // Operation not supported
	EBUSY   = syscall.EBUSY   // Device or resource busy
	ENOSPC  = syscall.ENOSPC  // No space left on device
	ENOMEM  = syscall.ENOMEM  // Out of memory
	EIO     = syscall.EIO     // I/O error
	EACCES  = syscall.EACCES  // Permission denied
	EREMOTE = syscall.EREMOTE // Object is remote
)

var errnoTable = []struct {
	err   error
	errno syscall.Errno
}{
	{common.ErrNotFound, ENOENT},
	{common.ErrExists, EEXIST},
	{common.ErrNotDir, ENOTDIR},
	{common.ErrNotSupported, ENOTSUP},
	{common.ErrBadState, EBUSY},
	{common.ErrInvalidArgs, EINVAL},
	{common.ErrInvalidPath, EINVAL},
	{common.ErrInvalidHandle, EBADF},
	{common.ErrAccessDenied, EACCES},
	{common.ErrNoMemory, ENOMEM},
	{common.ErrNoSpace, ENOSPC},
	{common.ErrRemote, EREMOTE},
}

// Errno maps a filesystem status error to the errno reported to network
// clients. Errors outside the status taxonomy map to EIO.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	for _, e := range errnoTable {
		if errors.Is(err, e.err) {
			return e.errno
		}
	}
	return EIO
}
