// Copyright 2018 The gVisor Authors.
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

// Package threads reports on the threads of the current process.
package threads

// TaskDir is an open handle on a task directory in procfs. The handle can be
// opened early, while /proc is still reachable, and queried later.
type TaskDir struct {
	fd int
}

// Oracle answers whether a process currently runs a single thread.
type Oracle interface {
	IsSingleThreaded() (bool, error)
}

var _ Oracle = (*TaskDir)(nil)
