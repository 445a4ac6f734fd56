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
	"encoding/binary"
	"testing"

	"github.com/walteh/bpfsandbox/pkg/abi/linux"
	"github.com/walteh/bpfsandbox/pkg/bpf"
)

// mustSysno returns the number of the first of names that exists on the
// host architecture.
func mustSysno(t *testing.T, names ...string) uintptr {
	t.Helper()
	for _, name := range names {
		if n, ok := SyscallNumber(name); ok {
			return n
		}
	}
	t.Fatalf("none of %v exist on this architecture", names)
	return 0
}

func dataAsInput(d *linux.SeccompData) bpf.Input {
	return bpf.Input{
		Data:  d.Marshal(),
		Order: binary.LittleEndian,
	}
}

// run executes prog against d.
func run(t *testing.T, prog bpf.Program, d linux.SeccompData) linux.BPFAction {
	t.Helper()
	ret, err := bpf.Exec(prog, dataAsInput(&d))
	if err != nil {
		t.Fatalf("Exec(%v) failed: %v\n%s", d, err, bpf.DecodeProgram(prog))
	}
	return linux.BPFAction(ret)
}

func mustCompile(t *testing.T, p Policy, r *TrapRegistry) bpf.Program {
	t.Helper()
	prog, err := Compile(p, r)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return prog
}

func errnoAction(errno uint16) linux.BPFAction {
	return linux.SECCOMP_RET_ERRNO.WithReturnCode(errno)
}

func trapAction(id TrapID) linux.BPFAction {
	return linux.SECCOMP_RET_TRAP.WithReturnCode(uint16(id))
}
