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
	"testing"
)

func TestSyscallTable(t *testing.T) {
	read := mustSysno(t, "read")
	if got := SyscallName(read); got != "read" {
		t.Errorf("SyscallName(%d) = %q, want read", read, got)
	}
	if !IsValidSyscallNumber(read) {
		t.Errorf("IsValidSyscallNumber(%d) = false", read)
	}
	if _, ok := SyscallNumber("no_such_syscall"); ok {
		t.Errorf("SyscallNumber(no_such_syscall) succeeded")
	}
	if n, ok := SyscallNumber("write"); !ok || SyscallName(n) != "write" {
		t.Errorf("SyscallNumber(write) = %d, %t; does not map back to write", n, ok)
	}
	if got, want := SyscallName(MaxSyscall+1), "syscall(1024)"; got != want {
		t.Errorf("SyscallName(MaxSyscall+1) = %q, want %q", got, want)
	}
}

func TestSyscallTableMatchesArch(t *testing.T) {
	info, err := syscallTable()
	if err != nil {
		t.Fatalf("loading syscall table: %v", err)
	}
	if uint32(info.ID) != AuditArch {
		t.Errorf("syscall table is for arch %#x, want %#x", uint32(info.ID), uint32(AuditArch))
	}
	names := SyscallNames()
	if len(names) == 0 {
		t.Fatalf("SyscallNames() is empty")
	}
	for _, name := range names {
		n, ok := SyscallNumber(name)
		if !ok {
			continue
		}
		if !IsValidSyscallNumber(n) {
			t.Errorf("%s has number %d outside [%d, %d]", name, n, MinSyscall, MaxSyscall)
		}
		if got := SyscallName(n); got != name && info.SyscallNames[got] != int(n) {
			t.Errorf("SyscallName(SyscallNumber(%q)) = %q, number %d", name, got, n)
		}
	}
}
