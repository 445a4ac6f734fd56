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

package policyfile

import (
	"encoding/json"
	"fmt"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"

	"github.com/walteh/bpfsandbox/pkg/abi/linux"
	"github.com/walteh/bpfsandbox/pkg/log"
	"github.com/walteh/bpfsandbox/pkg/seccomp"
)

// DefaultTrapName is the trap name OCI default actions resolve through.
// SCMP_ACT_TRAP on a syscall entry resolves through the syscall's name.
const DefaultTrapName = "default"

var ociArches = map[specs.Arch]uint32{
	specs.ArchX86_64:  linux.AUDIT_ARCH_X86_64,
	specs.ArchAARCH64: linux.AUDIT_ARCH_AARCH64,
	specs.ArchX86:     linux.AUDIT_ARCH_I386,
}

var ociOps = map[specs.LinuxSeccompOperator]seccomp.CmpOp{
	specs.OpEqualTo:      seccomp.OpEqual,
	specs.OpNotEqual:     seccomp.OpNotEqual,
	specs.OpGreaterThan:  seccomp.OpGreaterThan,
	specs.OpGreaterEqual: seccomp.OpGreaterOrEqual,
	specs.OpLessThan:     seccomp.OpLessThan,
	specs.OpLessEqual:    seccomp.OpLessOrEqual,
	specs.OpMaskedEqual:  seccomp.OpMaskedEqual,
}

// ParseOCI parses an OCI runtime-spec seccomp profile.
func ParseOCI(data []byte, opts Options) (*seccomp.RulePolicy, error) {
	var s specs.LinuxSeccomp
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return FromOCI(&s, opts)
}

// FromOCI converts an OCI seccomp profile.
//
// Entries for the same system call are tried in order. Names this
// architecture does not have are skipped.
func FromOCI(s *specs.LinuxSeccomp, opts Options) (*seccomp.RulePolicy, error) {
	if len(s.Architectures) > 0 {
		found := false
		for _, a := range s.Architectures {
			if ociArches[a] == seccomp.AuditArch {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("profile does not cover this architecture (%v)", s.Architectures)
		}
	}
	if len(s.Flags) > 0 {
		log.Warningf("Ignoring seccomp profile flags %v", s.Flags)
	}

	def, err := ociAction(s.DefaultAction, s.DefaultErrnoRet, DefaultTrapName, opts)
	if err != nil {
		return nil, fmt.Errorf("defaultAction: %w", err)
	}

	// Each system call's entries, in profile order.
	type entry struct {
		cond seccomp.ArgPredicate
		then seccomp.ResultExpr
	}
	var order []uintptr
	entries := make(map[uintptr][]entry)
	for i, sc := range s.Syscalls {
		cond, err := ociCondition(sc.Args)
		if err != nil {
			return nil, fmt.Errorf("syscalls[%d]: %w", i, err)
		}
		for _, name := range sc.Names {
			sysno, ok := seccomp.SyscallNumber(name)
			if !ok {
				log.Warningf("Skipping unknown system call %q in seccomp profile", name)
				continue
			}
			then, err := ociAction(sc.Action, sc.ErrnoRet, name, opts)
			if err != nil {
				return nil, fmt.Errorf("syscalls[%d] (%s): %w", i, name, err)
			}
			if _, ok := entries[sysno]; !ok {
				order = append(order, sysno)
			}
			entries[sysno] = append(entries[sysno], entry{cond: cond, then: then})
		}
	}

	p := seccomp.NewRulePolicy(def)
	for _, sysno := range order {
		es := entries[sysno]
		e := def
		for i := len(es) - 1; i >= 0; i-- {
			if es[i].cond == nil {
				e = es[i].then
				continue
			}
			e = seccomp.If(es[i].cond, es[i].then, e)
		}
		p.Set(sysno, e)
	}
	return p, nil
}

func ociAction(a specs.LinuxSeccompAction, errnoRet *uint, trapName string, opts Options) (seccomp.ResultExpr, error) {
	switch a {
	case specs.ActAllow, specs.ActLog:
		return seccomp.Allow{}, nil
	case specs.ActErrno:
		errno := unix.EPERM
		if errnoRet != nil {
			errno = unix.Errno(*errnoRet)
		}
		return seccomp.Deny{Errno: errno}, nil
	case specs.ActTrap:
		return trap(trapName, opts)
	default:
		return nil, fmt.Errorf("unsupported action %q", a)
	}
}

// ociCondition returns nil for an unconditional entry.
func ociCondition(args []specs.LinuxSeccompArg) (seccomp.ArgPredicate, error) {
	if len(args) == 0 {
		return nil, nil
	}
	cond := make(seccomp.AllOf, 0, len(args))
	for _, a := range args {
		op, ok := ociOps[a.Op]
		if !ok {
			return nil, fmt.Errorf("unknown operator %q", a.Op)
		}
		c := seccomp.ArgCmp{Arg: int(a.Index), Op: op, Value: a.Value}
		if op == seccomp.OpMaskedEqual {
			c = seccomp.ArgMaskedEqual(int(a.Index), a.Value, a.ValueTwo)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		cond = append(cond, c)
	}
	if len(cond) == 1 {
		return cond[0], nil
	}
	return cond, nil
}
