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

package linux

import (
	"encoding/binary"
	"fmt"
)

// Seccomp constants taken from <linux/seccomp.h>.
const (
	SECCOMP_MODE_NONE   = 0
	SECCOMP_MODE_STRICT = 1
	SECCOMP_MODE_FILTER = 2

	SECCOMP_RET_ACTION_FULL = 0xffff0000
	SECCOMP_RET_ACTION      = 0x7fff0000
	SECCOMP_RET_DATA        = 0x0000ffff

	SECCOMP_SET_MODE_STRICT   = 0
	SECCOMP_SET_MODE_FILTER   = 1
	SECCOMP_GET_ACTION_AVAIL  = 2
	SECCOMP_GET_NOTIF_SIZES   = 3
	SECCOMP_FILTER_FLAG_TSYNC = 1

	// MaxErrno is the largest errno the kernel will honor in the data
	// portion of SECCOMP_RET_ERRNO.
	MaxErrno = 4095
)

// BPFAction is an action for a BPF filter.
type BPFAction uint32

// BPFAction definitions.
const (
	SECCOMP_RET_KILL_PROCESS BPFAction = 0x80000000
	SECCOMP_RET_KILL_THREAD  BPFAction = 0x00000000
	SECCOMP_RET_TRAP         BPFAction = 0x00030000
	SECCOMP_RET_ERRNO        BPFAction = 0x00050000
	SECCOMP_RET_TRACE        BPFAction = 0x7ff00000
	SECCOMP_RET_LOG          BPFAction = 0x7ffc0000
	SECCOMP_RET_ALLOW        BPFAction = 0x7fff0000
)

func (a BPFAction) String() string {
	switch a & SECCOMP_RET_ACTION_FULL {
	case SECCOMP_RET_KILL_PROCESS:
		return "kill process"
	case SECCOMP_RET_KILL_THREAD:
		return "kill thread"
	case SECCOMP_RET_TRAP:
		return fmt.Sprintf("trap (%d)", a.Data())
	case SECCOMP_RET_ERRNO:
		return fmt.Sprintf("errno (%d)", a.Data())
	case SECCOMP_RET_TRACE:
		return fmt.Sprintf("trace (%d)", a.Data())
	case SECCOMP_RET_LOG:
		return "log"
	case SECCOMP_RET_ALLOW:
		return "allow"
	}
	return fmt.Sprintf("invalid action: %#x", uint32(a))
}

// Data returns the SECCOMP_RET_DATA portion of the action.
func (a BPFAction) Data() uint16 {
	return uint16(a & SECCOMP_RET_DATA)
}

// WithReturnCode sets the lower 16 bits of the SECCOMP_RET_ERRNO or
// SECCOMP_RET_TRACE actions to the provided return code, overwriting the
// previous action, and returns a new BPFAction. If not SECCOMP_RET_ERRNO or
// SECCOMP_RET_TRACE then this panics.
func (a BPFAction) WithReturnCode(code uint16) BPFAction {
	// mask out the previous return value
	baseAction := a & SECCOMP_RET_ACTION_FULL
	if baseAction == SECCOMP_RET_ERRNO || baseAction == SECCOMP_RET_TRACE || baseAction == SECCOMP_RET_TRAP {
		return BPFAction(uint32(baseAction) | uint32(code))
	}
	panic("WithReturnCode only valid for SECCOMP_RET_ERRNO, SECCOMP_RET_TRAP and SECCOMP_RET_TRACE")
}

// Audit architecture identifiers from <linux/audit.h>.
const (
	AUDIT_ARCH_X86_64  = 0xc000003e
	AUDIT_ARCH_AARCH64 = 0xc00000b7
	AUDIT_ARCH_I386    = 0x40000003
)

// X32SyscallBit is set in the syscall number of x32 ABI system calls on
// x86_64.
const X32SyscallBit = 0x40000000

// SeccompData is equivalent to struct seccomp_data, which contains the data
// passed to seccomp-bpf filters.
type SeccompData struct {
	// Nr is the system call number.
	Nr int32

	// Arch is an AUDIT_ARCH_* value indicating the system call convention.
	Arch uint32

	// InstructionPointer is the value of the instruction pointer at the time
	// of the system call.
	InstructionPointer uint64

	// Args contains the first 6 system call arguments.
	Args [6]uint64
}

// Offsets of the fields of struct seccomp_data, as seen by a filter.
const (
	SeccompDataOffsetNR     = 0
	SeccompDataOffsetArch   = 4
	SeccompDataOffsetIPLow  = 8
	SeccompDataOffsetIPHigh = 12
	SeccompDataOffsetArgs   = 16

	// SizeOfSeccompData is the size of struct seccomp_data in bytes.
	SizeOfSeccompData = 64
)

// SeccompDataOffsetArgLow returns the offset of the low 32 bits of argument i.
func SeccompDataOffsetArgLow(i int) uint32 {
	return uint32(SeccompDataOffsetArgs + i*8)
}

// SeccompDataOffsetArgHigh returns the offset of the high 32 bits of
// argument i.
func SeccompDataOffsetArgHigh(i int) uint32 {
	return SeccompDataOffsetArgLow(i) + 4
}

// SetArgs sets the arguments in the SeccompData from up to six values.
func (d *SeccompData) SetArgs(args ...uint64) {
	for i := range d.Args {
		d.Args[i] = 0
	}
	copy(d.Args[:], args)
}

// Marshal lays the data out as the kernel would on a little-endian host.
func (d *SeccompData) Marshal() []byte {
	b := make([]byte, SizeOfSeccompData)
	binary.LittleEndian.PutUint32(b[SeccompDataOffsetNR:], uint32(d.Nr))
	binary.LittleEndian.PutUint32(b[SeccompDataOffsetArch:], d.Arch)
	binary.LittleEndian.PutUint64(b[SeccompDataOffsetIPLow:], d.InstructionPointer)
	for i, a := range d.Args {
		binary.LittleEndian.PutUint64(b[SeccompDataOffsetArgLow(i):], a)
	}
	return b
}

func (d SeccompData) String() string {
	return fmt.Sprintf("nr=%d arch=%#x ip=%#x args=[%#x %#x %#x %#x %#x %#x]",
		d.Nr, d.Arch, d.InstructionPointer,
		d.Args[0], d.Args[1], d.Args[2], d.Args[3], d.Args[4], d.Args[5])
}

// Prctl options used by seccomp installation, from <linux/prctl.h>.
const (
	PR_GET_SECCOMP      = 21
	PR_SET_SECCOMP      = 22
	PR_SET_NO_NEW_PRIVS = 38
	PR_GET_NO_NEW_PRIVS = 39
)
