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

//go:build linux

package threads

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sys/unix"
)

var errUnstable = errors.New("thread count changed while reading")

// Open opens the task directory of the calling process.
func Open() (*TaskDir, error) {
	return OpenPid(0)
}

// OpenPid opens the task directory of pid. PID 0 means the current pid.
func OpenPid(pid int) (*TaskDir, error) {
	path := "/proc/self/task"
	if pid != 0 {
		path = fmt.Sprintf("/proc/%d/task", pid)
	}
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &TaskDir{fd: fd}, nil
}

// nlink returns the link count of the directory, which procfs keeps at two
// plus the number of threads.
func (d *TaskDir) nlink() (int, error) {
	var st unix.Stat_t
	if err := unix.Fstat(d.fd, &st); err != nil {
		return 0, fmt.Errorf("fstat task directory: %w", err)
	}
	return int(st.Nlink), nil
}

// Count returns the number of threads. Threads may be exiting concurrently,
// so the count is read until two consecutive reads agree.
func (d *TaskDir) Count() (int, error) {
	if d.fd < 0 {
		return 0, unix.EBADF
	}
	var n int
	op := func() error {
		a, err := d.nlink()
		if err != nil {
			return &backoff.PermanentError{Err: err}
		}
		b, err := d.nlink()
		if err != nil {
			return &backoff.PermanentError{Err: err}
		}
		if a != b {
			return errUnstable
		}
		n = a - 2
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 10 * time.Millisecond
	b.MaxElapsedTime = 100 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithMaxRetries(b, 5)); err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("implausible thread count %d", n)
	}
	return n, nil
}

// IsSingleThreaded implements Oracle.IsSingleThreaded.
func (d *TaskDir) IsSingleThreaded() (bool, error) {
	n, err := d.Count()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Close releases the directory handle.
func (d *TaskDir) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

// List returns the thread IDs of the thread group. PID 0 means the current
// pid.
func List(pid int) ([]int, error) {
	if pid == 0 {
		pid = unix.Getpid()
	}
	taskPath := fmt.Sprintf("/proc/%d/task", pid)
	dirs, err := os.ReadDir(taskPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", taskPath, err)
	}
	tids := make([]int, 0, len(dirs))
	for _, d := range dirs {
		tid, err := strconv.Atoi(d.Name())
		if err != nil {
			return nil, fmt.Errorf("parsing tid %q: %w", d.Name(), err)
		}
		tids = append(tids, tid)
	}
	return tids, nil
}
