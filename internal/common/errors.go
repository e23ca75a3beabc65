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

package common

import "errors"

// Status errors returned by the filesystem core. Callers compare with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrExists       = errors.New("already exists")
	ErrNotDir       = errors.New("not a directory")
	ErrNotSupported = errors.New("operation not supported")
	ErrBadState     = errors.New("bad state")
	ErrInvalidArgs  = errors.New("invalid argument")
	ErrAccessDenied = errors.New("access denied")
	ErrNoMemory     = errors.New("out of memory")
	ErrNoSpace      = errors.New("no space left")
	ErrRemote       = errors.New("remote mount point")

	ErrInvalidPath   = errors.New("invalid path")
	ErrInvalidHandle = errors.New("invalid handle")
)
