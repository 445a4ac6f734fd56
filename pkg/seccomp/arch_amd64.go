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

//go:build amd64

package seccomp

import "github.com/walteh/bpfsandbox/pkg/abi/linux"

// AuditArch is the AUDIT_ARCH_* value of the host.
const AuditArch = linux.AUDIT_ARCH_X86_64

// archInvalidSamples are invalid system call numbers peculiar to this
// architecture: x32 ABI calls, which set bit 30.
var archInvalidSamples = []uint32{
	linux.X32SyscallBit,
	linux.X32SyscallBit | 1,
	linux.X32SyscallBit | MaxSyscall,
}
