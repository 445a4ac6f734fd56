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
	"errors"
	"fmt"

	"github.com/walteh/bpfsandbox/pkg/abi/linux"
)

// Errors returned by the compiler.
var (
	// ErrProgramTooLarge indicates that the compiled program exceeds
	// bpf.MaxInstructions.
	ErrProgramTooLarge = errors.New("program too large")

	// ErrMalformedExpr indicates a result expression with a missing or
	// invalid member.
	ErrMalformedExpr = errors.New("malformed result expression")

	// ErrInvalidErrno indicates a Deny whose errno cannot be encoded.
	ErrInvalidErrno = errors.New("errno out of range")

	// ErrUnknownTrap indicates a trap ID with no registered handler.
	ErrUnknownTrap = errors.New("unknown trap")
)

// ErrRegistryFrozen is returned when registering a trap after the sandbox
// has started.
var ErrRegistryFrozen = errors.New("trap registry is frozen")

// ErrMismatch is wrapped by every MismatchError.
var ErrMismatch = errors.New("program does not match policy")

// Precondition failures.
var (
	ErrNotSingleThreaded = errors.New("process is not single-threaded")
	ErrTSyncUnsupported  = errors.New("kernel does not support SECCOMP_FILTER_FLAG_TSYNC")
	ErrFilterUnsupported = errors.New("kernel does not support seccomp filters")
)

// CompileError is returned when a policy cannot be compiled.
type CompileError struct {
	// Sysno is the system call whose expression failed, or -1 if the failure
	// is not specific to one system call.
	Sysno int64

	Err error
}

func (e *CompileError) Error() string {
	if e.Sysno < 0 {
		return fmt.Sprintf("compiling policy: %v", e.Err)
	}
	return fmt.Sprintf("compiling policy for %s: %v", SyscallName(uintptr(e.Sysno)), e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// MismatchError describes an input on which a program and its policy
// disagree.
type MismatchError struct {
	Sysno    int32
	Arch     uint32
	Args     [6]uint64
	Expected linux.BPFAction
	Actual   linux.BPFAction
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v: %s (nr=%d arch=%#x) args=%#x: policy says %v, program says %v",
		ErrMismatch, SyscallName(uintptr(uint32(e.Sysno))), e.Sysno, e.Arch, e.Args, e.Expected, e.Actual)
}

func (e *MismatchError) Unwrap() error {
	return ErrMismatch
}

// Data returns the input that produced the mismatch.
func (e *MismatchError) Data() linux.SeccompData {
	return linux.SeccompData{Nr: e.Sysno, Arch: e.Arch, Args: e.Args}
}

// PreconditionError is returned when the process or kernel cannot host the
// requested sandbox.
type PreconditionError struct {
	Mode Mode
	Err  error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot start %v sandbox: %v", e.Mode, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// InstallError is returned when the kernel rejects the filter.
type InstallError struct {
	Mode Mode
	Err  error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("installing %v filter: %v", e.Mode, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}
