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

import "fmt"

// Mode selects which threads a filter applies to.
type Mode int

const (
	// SingleThreaded installs the filter on the calling thread only. The
	// process must have exactly one thread.
	SingleThreaded Mode = iota

	// MultiThreaded installs the filter on every thread of the process
	// atomically, using SECCOMP_FILTER_FLAG_TSYNC.
	MultiThreaded
)

func (m Mode) String() string {
	switch m {
	case SingleThreaded:
		return "single-threaded"
	case MultiThreaded:
		return "multi-threaded"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Kernel is the kernel surface the sandbox needs.
type Kernel interface {
	// SupportsFilter probes for SECCOMP_MODE_FILTER.
	SupportsFilter() bool

	// SupportsTSync probes for SECCOMP_FILTER_FLAG_TSYNC.
	SupportsTSync() bool

	// SetNoNewPrivs sets PR_SET_NO_NEW_PRIVS, which unprivileged processes
	// need before installing a filter.
	SetNoNewPrivs() error

	// InstallFilter installs filter, an array of struct sock_filter, in the
	// given mode. Installation either fully succeeds or has no effect.
	InstallFilter(filter []byte, mode Mode) error
}

// HostKernel returns the Kernel of the running system.
func HostKernel() Kernel {
	return hostKernel{}
}

// Supported reports whether k can host a sandbox in mode.
func Supported(k Kernel, mode Mode) bool {
	switch mode {
	case SingleThreaded:
		return k.SupportsFilter()
	case MultiThreaded:
		return k.SupportsFilter() && k.SupportsTSync()
	default:
		return false
	}
}

// Capabilities describes the seccomp support of the running system.
type Capabilities struct {
	// Filter is true if seccomp filters can be installed.
	Filter bool

	// TSync is true if filters can be synchronized across threads.
	TSync bool

	// NoNewPrivs is true if PR_SET_NO_NEW_PRIVS is already set.
	NoNewPrivs bool

	// Mode is the current seccomp mode of the calling thread.
	Mode int

	// SysAdmin is true if the process holds CAP_SYS_ADMIN, which allows
	// installing filters without PR_SET_NO_NEW_PRIVS.
	SysAdmin bool
}
