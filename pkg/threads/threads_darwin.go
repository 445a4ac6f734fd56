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

//go:build darwin

package threads

import "golang.org/x/sys/unix"

// Open is not supported on Darwin, which has no procfs.
func Open() (*TaskDir, error) {
	return nil, unix.EOPNOTSUPP
}

// OpenPid is not supported on Darwin.
func OpenPid(pid int) (*TaskDir, error) {
	return nil, unix.EOPNOTSUPP
}

// Count is not supported on Darwin.
func (d *TaskDir) Count() (int, error) {
	return 0, unix.EOPNOTSUPP
}

// IsSingleThreaded implements Oracle.IsSingleThreaded.
func (d *TaskDir) IsSingleThreaded() (bool, error) {
	return false, unix.EOPNOTSUPP
}

// Close is a no-op on Darwin.
func (d *TaskDir) Close() error {
	return nil
}

// List returns the thread IDs of the thread group.
// PID 0 means the current pid.
func List(pid int) ([]int, error) {
	return nil, unix.EOPNOTSUPP
}
