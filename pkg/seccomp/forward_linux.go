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
	"golang.org/x/sys/unix"

	"github.com/walteh/bpfsandbox/pkg/abi/linux"
)

// ForwardSyscall makes the system call described by data and returns its
// result in the form a TrapFunc returns: the value, or a negated errno.
//
// The call passes through the installed filter again. A handler that
// forwards must therefore only do so for calls the policy allows when
// issued from the handler, for example through an argument condition.
func ForwardSyscall(data linux.SeccompData) int64 {
	a := data.Args
	r, _, errno := unix.Syscall6(uintptr(uint32(data.Nr)), uintptr(a[0]), uintptr(a[1]), uintptr(a[2]), uintptr(a[3]), uintptr(a[4]), uintptr(a[5]))
	if errno != 0 {
		return -int64(errno)
	}
	return int64(r)
}
