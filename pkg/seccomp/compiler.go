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
	"github.com/walteh/bpfsandbox/pkg/bpf"
	"github.com/walteh/bpfsandbox/pkg/log"
)

// syscallRange is a run of consecutive system call numbers that share one
// expression.
type syscallRange struct {
	first, last uint32
	expr        ResultExpr
	key         string
}

// syscallRanges partitions the whole 32-bit number space into ranges, in
// ascending order.
func syscallRanges(p Policy) []syscallRange {
	var ranges []syscallRange
	add := func(first, last uint32, e ResultExpr) {
		key := describe(e)
		if n := len(ranges); n > 0 && ranges[n-1].key == key {
			ranges[n-1].last = last
			return
		}
		ranges = append(ranges, syscallRange{first: first, last: last, expr: e, key: key})
	}
	for n := uint32(MinSyscall); n <= MaxSyscall; n++ {
		add(n, n, Resolve(p, uintptr(n)))
	}
	add(MaxSyscall+1, ^uint32(0), p.DefaultAction())
	return ranges
}

// unsafeTrapSyscalls must be allowed for a trap handler to return to the
// trapping code.
var unsafeTrapSyscalls = []string{"rt_sigreturn", "rt_sigprocmask"}

// Compile lowers p into a seccomp program.
//
// The program checks the architecture, then finds the system call's range
// with a binary search and evaluates that range's expression. Leaf returns
// are shared and laid out in the order they are first used when walking
// system calls in ascending order; the architecture mismatch return is the
// final instruction. Compiling the same policy always yields the same
// program.
//
// If r is not nil, every Trap in p must be registered in it.
func Compile(p Policy, r *TrapRegistry) (bpf.Program, error) {
	if p == nil {
		return bpf.Program{}, &CompileError{Sysno: -1, Err: fmt.Errorf("%w: nil policy", ErrMalformedExpr)}
	}
	if p.DefaultAction() == nil {
		return bpf.Program{}, &CompileError{Sysno: -1, Err: fmt.Errorf("%w: no default action", ErrMalformedExpr)}
	}

	ranges := syscallRanges(p)
	validated := make(map[string]struct{})
	var leaves []linux.BPFAction
	seenLeaf := make(map[linux.BPFAction]struct{})
	traps := false
	for _, rg := range ranges {
		if _, ok := validated[rg.key]; ok {
			continue
		}
		validated[rg.key] = struct{}{}
		if err := validate(rg.expr, r); err != nil {
			sysno := int64(rg.first)
			if !IsValidSyscallNumber(uintptr(rg.first)) {
				sysno = -1
			}
			return bpf.Program{}, &CompileError{Sysno: sysno, Err: err}
		}
		walkLeaves(rg.expr, func(e ResultExpr) {
			a, _ := action(e)
			if _, ok := e.(Trap); ok {
				traps = true
			}
			if _, ok := seenLeaf[a]; !ok {
				seenLeaf[a] = struct{}{}
				leaves = append(leaves, a)
			}
		})
	}
	if traps {
		warnUnsafeTraps(p)
	}

	b := bpf.NewProgramBuilder()
	kill := b.Ret(uint32(linux.SECCOMP_RET_KILL_PROCESS))
	for i := len(leaves) - 1; i >= 0; i-- {
		b.Ret(uint32(leaves[i]))
	}

	blocks := make(map[string]bpf.Node)
	targets := make([]bpf.Node, len(ranges))
	for i, rg := range ranges {
		targets[i] = lower(b, rg.expr, blocks)
		if b.Len() > bpf.MaxInstructions {
			return bpf.Program{}, &CompileError{Sysno: -1, Err: fmt.Errorf("%w: more than %d instructions", ErrProgramTooLarge, bpf.MaxInstructions)}
		}
	}

	dispatch := jumpTable(b, ranges, targets)
	loadNr := b.Stmt(bpf.Ld|bpf.Abs|bpf.W, linux.SeccompDataOffsetNR, dispatch)
	checkArch := b.Jump(bpf.Jmp|bpf.Jeq|bpf.K, AuditArch, loadNr, kill)
	entry := b.Stmt(bpf.Ld|bpf.Abs|bpf.W, linux.SeccompDataOffsetArch, checkArch)

	prog, err := b.Program(entry)
	if err != nil {
		var bpfErr bpf.Error
		if errors.As(err, &bpfErr) && bpfErr.Code == bpf.InvalidInstructionCount {
			err = fmt.Errorf("%w: %d instructions, limit is %d", ErrProgramTooLarge, bpfErr.PC, bpf.MaxInstructions)
		}
		return bpf.Program{}, &CompileError{Sysno: -1, Err: err}
	}
	log.Debugf("Compiled %d syscall ranges with %d distinct actions into %d instructions", len(ranges), len(leaves), prog.Length())
	return prog, nil
}

// lower emits e and returns its entry node. Identical expressions share
// code through blocks.
func lower(b *bpf.ProgramBuilder, e ResultExpr, blocks map[string]bpf.Node) bpf.Node {
	key := describe(e)
	if n, ok := blocks[key]; ok {
		return n
	}
	var n bpf.Node
	switch e := e.(type) {
	case Conditional:
		then := lower(b, e.Then, blocks)
		otherwise := lower(b, e.Else, blocks)
		n = e.Cond.Render(b, then, otherwise)
	case Allow, Deny, Trap:
		a, err := action(e)
		if err != nil {
			// Expressions are validated before lowering.
			panic(fmt.Sprintf("lowering invalid expression %s: %v", key, err))
		}
		n = b.Ret(uint32(a))
	default:
		panic(fmt.Sprintf("unknown expression type %T", e))
	}
	blocks[key] = n
	return n
}

// jumpTable emits a binary search over ranges, which must be sorted and
// contiguous, and returns its entry node. The accumulator must hold the
// system call number.
func jumpTable(b *bpf.ProgramBuilder, ranges []syscallRange, targets []bpf.Node) bpf.Node {
	if len(ranges) == 1 {
		return targets[0]
	}
	mid := len(ranges) / 2
	upper := jumpTable(b, ranges[mid:], targets[mid:])
	lowerHalf := jumpTable(b, ranges[:mid], targets[:mid])
	return b.Jump(bpf.Jmp|bpf.Jge|bpf.K, ranges[mid].first, upper, lowerHalf)
}

// warnUnsafeTraps logs when p traps system calls but would not let a trap
// handler return.
func warnUnsafeTraps(p Policy) {
	for _, name := range unsafeTrapSyscalls {
		sysno, ok := SyscallNumber(name)
		if !ok {
			continue
		}
		if _, ok := Resolve(p, sysno).(Allow); !ok {
			log.Warningf("Policy uses traps but does not unconditionally allow %s; trap handlers will not be able to return", name)
		}
	}
}
