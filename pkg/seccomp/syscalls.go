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

package seccomp

import (
	"fmt"
	"sort"
	"sync"

	"github.com/elastic/go-seccomp-bpf/arch"
)

// The range of system call numbers the compiler dispatches on individually.
// Every number outside it receives the policy's default action.
const (
	MinSyscall = 0
	MaxSyscall = 1023
)

// IsValidSyscallNumber reports whether n is inside [MinSyscall, MaxSyscall].
func IsValidSyscallNumber(n uintptr) bool {
	return n <= MaxSyscall
}

var syscallTable = sync.OnceValues(func() (*arch.Info, error) {
	return arch.GetInfo("")
})

// SyscallName returns the name of system call n on the host architecture.
func SyscallName(n uintptr) string {
	if info, err := syscallTable(); err == nil {
		if name, ok := info.SyscallNumbers[int(n)]; ok {
			return name
		}
	}
	return fmt.Sprintf("syscall(%d)", n)
}

// SyscallNumber returns the number of the named system call on the host
// architecture.
func SyscallNumber(name string) (uintptr, bool) {
	info, err := syscallTable()
	if err != nil {
		return 0, false
	}
	n, ok := info.SyscallNames[name]
	if !ok || n < 0 {
		return 0, false
	}
	return uintptr(n), true
}

// SyscallNames returns every system call name known for the host
// architecture, sorted.
func SyscallNames() []string {
	info, err := syscallTable()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(info.SyscallNames))
	for name := range info.SyscallNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
