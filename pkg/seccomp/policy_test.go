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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"

	"github.com/walteh/bpfsandbox/pkg/abi/linux"
)

func TestRulePolicyAscends(t *testing.T) {
	p := NewRulePolicy(Deny{Errno: unix.EPERM}).
		Set(9, Allow{}).
		Set(1, Allow{}).
		SetAll(Trap{ID: 1}, 5, 3)
	var got []uintptr
	p.Ascend(func(sysno uintptr, _ ResultExpr) bool {
		got = append(got, sysno)
		return true
	})
	if want := []uintptr{1, 3, 5, 9}; !cmp.Equal(got, want) {
		t.Errorf("Ascend visited %v, want %v", got, want)
	}
	if p.Len() != 4 {
		t.Errorf("Len() = %d, want 4", p.Len())
	}

	p.Delete(3)
	if e := p.ResultFor(3); e != nil {
		t.Errorf("ResultFor(3) = %v after Delete, want nil", e)
	}
}

func TestRulePolicySetReplaces(t *testing.T) {
	p := NewRulePolicy(Allow{}).Set(7, Deny{Errno: unix.EPERM}).Set(7, Trap{ID: 2})
	if got, want := describe(p.ResultFor(7)), "trap(2)"; got != want {
		t.Errorf("ResultFor(7) = %s, want %s", got, want)
	}
}

func TestPrepend(t *testing.T) {
	p := NewRulePolicy(Deny{Errno: unix.EPERM}).
		Set(4, Allow{}).
		Prepend(4, ArgEqual(0, 1), Trap{ID: 3}).
		Prepend(5, ArgEqual(0, 2), Allow{})

	for _, test := range []struct {
		sysno uintptr
		arg   uint64
		want  linux.BPFAction
	}{
		{sysno: 4, arg: 1, want: trapAction(3)},
		{sysno: 4, arg: 0, want: linux.SECCOMP_RET_ALLOW},
		{sysno: 5, arg: 2, want: linux.SECCOMP_RET_ALLOW},
		// Falls back to the default that applied before Prepend.
		{sysno: 5, arg: 0, want: errnoAction(uint16(unix.EPERM))},
	} {
		d := linux.SeccompData{Nr: int32(test.sysno), Arch: AuditArch}
		d.SetArgs(test.arg)
		got, err := Evaluate(p, d)
		if err != nil {
			t.Fatalf("Evaluate(%v) failed: %v", d, err)
		}
		if got != test.want {
			t.Errorf("Evaluate(%v) = %v, want %v", d, got, test.want)
		}
	}
}

func TestResolveUsesDefaultOutsideRange(t *testing.T) {
	p := NewRulePolicy(Deny{Errno: unix.EPERM}).Set(MaxSyscall+1, Allow{})
	if got := describe(Resolve(p, MaxSyscall+1)); got != "errno(1)" {
		t.Errorf("Resolve(MaxSyscall+1) = %s, want the default", got)
	}
	if got := describe(Resolve(p, 0)); got != "errno(1)" {
		t.Errorf("Resolve(0) = %s, want the default", got)
	}
}

func TestEvaluate(t *testing.T) {
	p := NewRulePolicy(Deny{Errno: unix.EPERM}).Set(1, Allow{})
	for _, test := range []struct {
		desc string
		data linux.SeccompData
		want linux.BPFAction
	}{
		{
			desc: "allowed",
			data: linux.SeccompData{Nr: 1, Arch: AuditArch},
			want: linux.SECCOMP_RET_ALLOW,
		},
		{
			desc: "default",
			data: linux.SeccompData{Nr: 2, Arch: AuditArch},
			want: errnoAction(uint16(unix.EPERM)),
		},
		{
			desc: "negative number",
			data: linux.SeccompData{Nr: -1, Arch: AuditArch},
			want: errnoAction(uint16(unix.EPERM)),
		},
		{
			desc: "wrong architecture",
			data: linux.SeccompData{Nr: 1, Arch: wrongArch()},
			want: linux.SECCOMP_RET_KILL_PROCESS,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			got, err := Evaluate(p, test.data)
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if got != test.want {
				t.Errorf("Evaluate() = %v, want %v", got, test.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	a := NewRulePolicy(Deny{Errno: unix.EPERM}).Set(1, Allow{}).Set(2, Allow{})
	b := NewRulePolicy(Deny{Errno: unix.EPERM}).SetAll(Allow{}, 2, 1).Set(3, Deny{Errno: unix.EPERM})
	if da, db := Describe(a), Describe(b); da != db {
		t.Errorf("equivalent policies describe differently:\n%s", cmp.Diff(da, db))
	}
	if !strings.Contains(Describe(a), "1-2 allow\n") {
		t.Errorf("Describe() = %q, want a merged 1-2 range", Describe(a))
	}

	c := NewRulePolicy(Deny{Errno: unix.EPERM}).Set(1, Allow{})
	if Describe(a) == Describe(c) {
		t.Errorf("different policies describe identically:\n%s", Describe(a))
	}
}
