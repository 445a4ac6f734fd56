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

import (
	"encoding/binary"
	"testing"
)

func word(v uint32) Input {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return Input{Data: b, Order: binary.BigEndian}
}

func mustExec(t *testing.T, p Program, in Input) uint32 {
	t.Helper()
	ret, err := Exec(p, in)
	if err != nil {
		t.Fatalf("Exec failed: %v\n%s", err, DecodeProgram(p))
	}
	return ret
}

func TestBuilderLayout(t *testing.T) {
	b := NewProgramBuilder()
	one := b.Ret(1)
	two := b.Ret(2)
	entry := b.Stmt(Ld|Abs|W, 0, b.Jump(Jmp|Jeq|K, 5, one, two))
	p, err := b.Program(entry)
	if err != nil {
		t.Fatalf("Program failed: %v", err)
	}
	want := []Instruction{
		Stmt(Ld|Abs|W, 0),
		Jump(Jmp|Jeq|K, 5, 1, 0),
		Stmt(Ret|K, 2),
		Stmt(Ret|K, 1),
	}
	got := p.Instructions()
	if len(got) != len(want) {
		t.Fatalf("got program:\n%s", DecodeProgram(p))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("instruction %d: got %v, want %v", i, got[i], want[i])
		}
	}
	if ret := mustExec(t, p, word(5)); ret != 1 {
		t.Errorf("A == 5: got %d, want 1", ret)
	}
	if ret := mustExec(t, p, word(6)); ret != 2 {
		t.Errorf("A == 6: got %d, want 2", ret)
	}
}

func TestBuilderSharesIdenticalInstructions(t *testing.T) {
	b := NewProgramBuilder()
	if a, c := b.Ret(5), b.Ret(5); a != c {
		t.Errorf("Ret(5) emitted twice: nodes %d and %d", a, c)
	}
	next := b.Ret(6)
	if a, c := b.Stmt(Ld|Abs|W, 0, next), b.Stmt(Ld|Abs|W, 0, next); a != c {
		t.Errorf("identical statements emitted twice: nodes %d and %d", a, c)
	}
	if b.Len() != 3 {
		t.Errorf("got %d instructions, want 3", b.Len())
	}
}

func TestBuilderStatementJumpsToDistantSuccessor(t *testing.T) {
	b := NewProgramBuilder()
	target := b.Ret(1)
	b.Ret(2)
	entry := b.Stmt(Ld|Imm|W, 7, target)
	p, err := b.Program(entry)
	if err != nil {
		t.Fatalf("Program failed: %v", err)
	}
	if ret := mustExec(t, p, word(0)); ret != 1 {
		t.Errorf("got %d, want 1\n%s", ret, DecodeProgram(p))
	}
}

func TestBuilderTrampolines(t *testing.T) {
	const filler = 300
	b := NewProgramBuilder()
	far := b.Ret(1)
	var near Node
	for i := 0; i < filler; i++ {
		near = b.Ret(uint32(100 + i))
	}
	entry := b.Stmt(Ld|Abs|W, 0, b.Jump(Jmp|Jeq|K, 0, far, near))
	p, err := b.Program(entry)
	if err != nil {
		t.Fatalf("Program failed: %v", err)
	}
	if p.Length() != filler+4 {
		t.Errorf("got %d instructions, want %d", p.Length(), filler+4)
	}
	if ret := mustExec(t, p, word(0)); ret != 1 {
		t.Errorf("far branch: got %d, want 1", ret)
	}
	if ret := mustExec(t, p, word(1)); ret != 100+filler-1 {
		t.Errorf("near branch: got %d, want %d", ret, 100+filler-1)
	}

	// Both targets out of range.
	b = NewProgramBuilder()
	a := b.Ret(1)
	c := b.Ret(2)
	for i := 0; i < filler; i++ {
		b.Ret(uint32(100 + i))
	}
	entry = b.Stmt(Ld|Abs|W, 0, b.Jump(Jmp|Jgt|K, 10, a, c))
	if p, err = b.Program(entry); err != nil {
		t.Fatalf("Program failed: %v", err)
	}
	if ret := mustExec(t, p, word(11)); ret != 1 {
		t.Errorf("true branch: got %d, want 1", ret)
	}
	if ret := mustExec(t, p, word(10)); ret != 2 {
		t.Errorf("false branch: got %d, want 2", ret)
	}
}

func TestBuilderIsDeterministic(t *testing.T) {
	build := func() []byte {
		b := NewProgramBuilder()
		kill := b.Ret(0)
		n := kill
		for i := uint32(0); i < 50; i++ {
			n = b.Stmt(Ld|Abs|W, 0, b.Jump(Jmp|Jeq|K, i, b.Ret(i+1), n))
		}
		p, err := b.Program(n)
		if err != nil {
			t.Fatalf("Program failed: %v", err)
		}
		return p.Bytecode()
	}
	if a, b := build(), build(); string(a) != string(b) {
		t.Errorf("two builds of the same program differ")
	}
}
