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
	"bytes"
	"testing"
)

func TestCompilationErrors(t *testing.T) {
	for _, test := range []struct {
		// desc is the test's description.
		desc string

		// insns is the BPF instructions to be compiled.
		insns []Instruction

		// expectedErr is the expected compilation error.
		expectedErr error
	}{
		{
			desc:        "Instructions must not be nil",
			expectedErr: Error{InvalidInstructionCount, 0},
		},
		{
			desc:        "Instructions must not be empty",
			insns:       []Instruction{},
			expectedErr: Error{InvalidInstructionCount, 0},
		},
		{
			desc:        "A program must end with a return",
			insns:       make([]Instruction, MaxInstructions),
			expectedErr: Error{InvalidEndOfProgram, MaxInstructions - 1},
		},
		{
			desc:        "A program must have MaxInstructions or fewer instructions",
			insns:       append(make([]Instruction, MaxInstructions), Stmt(Ret|K, 0)),
			expectedErr: Error{InvalidInstructionCount, MaxInstructions + 1},
		},
		{
			desc: "A load from an invalid M register is a compilation error",
			insns: []Instruction{
				Stmt(Ld|Mem|W, ScratchMemRegisters), // A = M[16]
				Stmt(Ret|K, 0),                      // return 0
			},
			expectedErr: Error{InvalidRegister, 0},
		},
		{
			desc: "A store to an invalid M register is a compilation error",
			insns: []Instruction{
				Stmt(St, ScratchMemRegisters), // M[16] = A
				Stmt(Ret|K, 0),                // return 0
			},
			expectedErr: Error{InvalidRegister, 0},
		},
		{
			desc: "Division by literal zero is a compilation error",
			insns: []Instruction{
				Stmt(Alu|Div|K, 0), // A /= 0
				Stmt(Ret|K, 0),     // return 0
			},
			expectedErr: Error{DivisionByZero, 0},
		},
		{
			desc: "An unconditional jump outside of the program is a compilation error",
			insns: []Instruction{
				Jump(Jmp|Ja, 1, 0, 0), // jmp nextpc+1
				Stmt(Ret|K, 0),        // return 0
			},
			expectedErr: Error{InvalidJumpTarget, 0},
		},
		{
			desc: "A conditional jump outside of the program in the true case is a compilation error",
			insns: []Instruction{
				Jump(Jmp|Jeq|K, 0, 1, 0), // if (A == K) jmp nextpc+1
				Stmt(Ret|K, 0),           // return 0
			},
			expectedErr: Error{InvalidJumpTarget, 0},
		},
		{
			desc: "A conditional jump outside of the program in the false case is a compilation error",
			insns: []Instruction{
				Jump(Jmp|Jeq|K, 0, 0, 1), // if (A != K) jmp nextpc+1
				Stmt(Ret|K, 0),           // return 0
			},
			expectedErr: Error{InvalidJumpTarget, 0},
		},
		{
			desc: "Unused opcode bits are a compilation error",
			insns: []Instruction{
				Stmt(0x100|Ret|K, 0),
			},
			expectedErr: Error{InvalidOpcode, 0},
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			_, err := Compile(test.insns)
			if err != test.expectedErr {
				t.Errorf("expected error %q, got error %q", test.expectedErr, err)
			}
		})
	}
}

func TestProgramIsImmutable(t *testing.T) {
	insns := []Instruction{Stmt(Ret|K, 1)}
	p, err := Compile(insns)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	insns[0].K = 2
	p.Instructions()[0].K = 3
	if got := p.Instructions()[0].K; got != 1 {
		t.Errorf("program changed after its inputs were modified: K = %d", got)
	}
}

func TestBytecodeRoundTrip(t *testing.T) {
	p, err := Compile([]Instruction{
		Stmt(Ld|Abs|W, 4),
		Jump(Jmp|Jeq|K, 0xc000003e, 1, 0),
		Stmt(Ret|K, 0x80000000),
		Stmt(Ret|K, 0x7fff0000),
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	b := p.Bytecode()
	if len(b) != p.Length()*8 {
		t.Fatalf("got %d bytes of bytecode for %d instructions", len(b), p.Length())
	}
	insns, ok := FromBytecode(b)
	if !ok {
		t.Fatalf("FromBytecode rejected %d bytes", len(b))
	}
	q, err := Compile(insns)
	if err != nil {
		t.Fatalf("Compile of decoded bytecode failed: %v", err)
	}
	if !p.Equal(q) || !bytes.Equal(b, q.Bytecode()) {
		t.Errorf("bytecode round trip changed the program:\n%s\nvs\n%s", DecodeProgram(p), DecodeProgram(q))
	}
	if _, ok := FromBytecode(b[:7]); ok {
		t.Errorf("FromBytecode accepted a truncated instruction")
	}
}
