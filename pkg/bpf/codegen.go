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

package bpf

import "fmt"

// maxJumpOffset is the largest offset a conditional jump can encode.
const maxJumpOffset = 0xff

// Node is a handle on an instruction emitted by a ProgramBuilder.
//
// Programs are built back to front: a node is the distance of its
// instruction from the end of the program, so a node stays valid as more
// instructions are emitted in front of it.
type Node int

type memoKey struct {
	insn   Instruction
	jt, jf Node
}

// ProgramBuilder assembles a program from its last instruction to its first.
// Every instruction's successors must exist before the instruction itself is
// emitted, so forward jumps are always resolvable and the output has no
// dangling labels.
//
// Identical instructions with identical successors are emitted once.
// Conditional jumps whose targets are too far away for an 8-bit offset are
// routed through an unconditional jump.
type ProgramBuilder struct {
	// rev holds the instructions in reverse order; rev[0] is the final
	// instruction of the program.
	rev  []Instruction
	memo map[memoKey]Node
}

// NewProgramBuilder returns an empty builder.
func NewProgramBuilder() *ProgramBuilder {
	return &ProgramBuilder{memo: make(map[memoKey]Node)}
}

// Len returns the number of instructions emitted so far.
func (b *ProgramBuilder) Len() int {
	return len(b.rev)
}

// head is the most recently emitted node, which is the one a newly emitted
// instruction falls through to.
func (b *ProgramBuilder) head() Node {
	return Node(len(b.rev) - 1)
}

func (b *ProgramBuilder) emit(insn Instruction) Node {
	b.rev = append(b.rev, insn)
	return b.head()
}

func (b *ProgramBuilder) offset(target Node) int {
	return len(b.rev) - int(target) - 1
}

func (b *ProgramBuilder) check(target Node) {
	if target < 0 || int(target) >= len(b.rev) {
		panic(fmt.Sprintf("node %d does not exist in a program of %d instructions", target, len(b.rev)))
	}
}

// Ret emits a return of k.
func (b *ProgramBuilder) Ret(k uint32) Node {
	insn := Stmt(Ret|K, k)
	key := memoKey{insn: insn, jt: -1, jf: -1}
	if n, ok := b.memo[key]; ok {
		return n
	}
	n := b.emit(insn)
	b.memo[key] = n
	return n
}

// Stmt emits a non-jump instruction that continues at next.
func (b *ProgramBuilder) Stmt(code uint16, k uint32, next Node) Node {
	if code&instructionClassMask == Jmp || code&instructionClassMask == Ret {
		panic(fmt.Sprintf("opcode %#x is not a statement", code))
	}
	b.check(next)
	insn := Stmt(code, k)
	key := memoKey{insn: insn, jt: next, jf: -1}
	if n, ok := b.memo[key]; ok {
		return n
	}
	if next != b.head() {
		b.emit(Stmt(Jmp|Ja, uint32(b.offset(next))))
	}
	n := b.emit(insn)
	b.memo[key] = n
	return n
}

// Jump emits a conditional jump to jt if the condition holds and to jf
// otherwise.
func (b *ProgramBuilder) Jump(code uint16, k uint32, jt, jf Node) Node {
	if code&instructionClassMask != Jmp || code&jmpMask == Ja {
		panic(fmt.Sprintf("opcode %#x is not a conditional jump", code))
	}
	b.check(jt)
	b.check(jf)
	if jt == jf {
		// Both branches agree; the comparison is irrelevant.
		return jt
	}
	key := memoKey{insn: Stmt(code, k), jt: jt, jf: jf}
	if n, ok := b.memo[key]; ok {
		return n
	}
	t, f := jt, jf
	for {
		if b.offset(t) > maxJumpOffset {
			t = b.emit(Stmt(Jmp|Ja, uint32(b.offset(t))))
			continue
		}
		if b.offset(f) > maxJumpOffset {
			f = b.emit(Stmt(Jmp|Ja, uint32(b.offset(f))))
			continue
		}
		break
	}
	n := b.emit(Jump(code, k, uint8(b.offset(t)), uint8(b.offset(f))))
	b.memo[key] = n
	return n
}

// Program validates and returns the program whose first instruction is
// entry. If entry is not the most recently emitted node, a jump to it is
// prepended.
func (b *ProgramBuilder) Program(entry Node) (Program, error) {
	b.check(entry)
	if entry != b.head() {
		b.emit(Stmt(Jmp|Ja, uint32(b.offset(entry))))
	}
	insns := make([]Instruction, len(b.rev))
	for i, insn := range b.rev {
		insns[len(insns)-1-i] = insn
	}
	return Compile(insns)
}
