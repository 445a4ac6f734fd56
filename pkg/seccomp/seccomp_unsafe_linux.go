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

package seccomp

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/walteh/bpfsandbox/pkg/abi/linux"
)

type hostKernel struct{}

// SupportsFilter implements Kernel.SupportsFilter.
//
// Passing a NULL program makes a kernel that supports filters fail with
// EFAULT, and one that does not fail with EINVAL.
func (hostKernel) SupportsFilter() bool {
	_, _, errno := unix.RawSyscall(unix.SYS_PRCTL, linux.PR_SET_SECCOMP, linux.SECCOMP_MODE_FILTER, 0)
	return errno == unix.EFAULT
}

// SupportsTSync implements Kernel.SupportsTSync.
func (hostKernel) SupportsTSync() bool {
	_, _, errno := unix.RawSyscall(unix.SYS_SECCOMP, linux.SECCOMP_SET_MODE_FILTER, linux.SECCOMP_FILTER_FLAG_TSYNC, 0)
	return errno == unix.EFAULT
}

// SetNoNewPrivs implements Kernel.SetNoNewPrivs.
func (hostKernel) SetNoNewPrivs() error {
	if err := unix.Prctl(linux.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", err)
	}
	return nil
}

// InstallFilter implements Kernel.InstallFilter.
//
// This must not allocate once the filter is live, since the filter may deny
// the system calls the allocator needs.
func (hostKernel) InstallFilter(filter []byte, mode Mode) error {
	if len(filter) == 0 || len(filter)%int(unsafe.Sizeof(unix.SockFilter{})) != 0 {
		return unix.EINVAL
	}
	prog := unix.SockFprog{
		Len:    uint16(len(filter) / int(unsafe.Sizeof(unix.SockFilter{}))),
		Filter: (*unix.SockFilter)(unsafe.Pointer(&filter[0])),
	}
	switch mode {
	case SingleThreaded:
		if _, _, errno := unix.RawSyscall(unix.SYS_PRCTL, linux.PR_SET_SECCOMP, linux.SECCOMP_MODE_FILTER, uintptr(unsafe.Pointer(&prog))); errno != 0 {
			return errno
		}
	case MultiThreaded:
		tid, _, errno := unix.RawSyscall(unix.SYS_SECCOMP, linux.SECCOMP_SET_MODE_FILTER, linux.SECCOMP_FILTER_FLAG_TSYNC, uintptr(unsafe.Pointer(&prog)))
		if errno != 0 {
			return errno
		}
		if tid != 0 {
			// The filter was not installed anywhere.
			return fmt.Errorf("thread %d could not be synchronized", tid)
		}
	default:
		return unix.EINVAL
	}
	return nil
}

func prctlFlag(option int) (int, error) {
	return unix.PrctlRetInt(option, 0, 0, 0, 0)
}
