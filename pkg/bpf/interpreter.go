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
	"fmt"

	"golang.org/x/net/bpf"
)

// Input is the data a program runs against, along with the byte order of
// the host that produced it.
type Input struct {
	// Data is the raw input.
	Data []byte

	// Order is the byte order that loads should be performed in.
	Order binary.ByteOrder
}

// Interpreter runs a Program in a userspace BPF virtual machine.
type Interpreter struct {
	vm *bpf.VM

	// wordLoads is true if every load from the input is an aligned 32-bit
	// absolute load, which is all seccomp permits.
	wordLoads bool
}

// NewInterpreter prepares p for execution.
func NewInterpreter(p Program) (*Interpreter, error) {
	raw := make([]bpf.RawInstruction, len(p.instructions))
	wordLoads := true
	for pc, ins := range p.instructions {
		raw[pc] = bpf.RawInstruction{
			Op: ins.OpCode,
			Jt: ins.JumpIfTrue,
			Jf: ins.JumpIfFalse,
			K:  ins.K,
		}
		if ins.OpCode&instructionClassMask == Ld {
			switch ins.OpCode & loadModeMask {
			case Abs:
				if ins.OpCode&loadSizeMask != W || ins.K%4 != 0 {
					wordLoads = false
				}
			case Ind:
				wordLoads = false
			}
		}
		if ins.OpCode&instructionClassMask == Ldx && ins.OpCode&loadModeMask == Msh {
			wordLoads = false
		}
	}
	insns, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, fmt.Errorf("program contains instructions the interpreter cannot decode")
	}
	vm, err := bpf.NewVM(insns)
	if err != nil {
		return nil, fmt.Errorf("loading program: %w", err)
	}
	return &Interpreter{vm: vm, wordLoads: wordLoads}, nil
}

// Exec runs the program against in and returns its return value.
//
// The underlying machine loads in network byte order. Inputs in any other
// order are converted word by word, which is only faithful for programs
// that load aligned 32-bit words.
func (i *Interpreter) Exec(in Input) (uint32, error) {
	data := in.Data
	if in.Order != nil && in.Order != binary.BigEndian {
		if !i.wordLoads || len(data)%4 != 0 {
			return 0, Error{InvalidLoad, 0}
		}
		data = make([]byte, len(in.Data))
		for off := 0; off < len(data); off += 4 {
			binary.BigEndian.PutUint32(data[off:], in.Order.Uint32(in.Data[off:]))
		}
	}
	ret, err := i.vm.Run(data)
	if err != nil {
		return 0, err
	}
	return uint32(ret), nil
}

// Exec is a convenience wrapper that prepares and runs p once.
func Exec(p Program, in Input) (uint32, error) {
	i, err := NewInterpreter(p)
	if err != nil {
		return 0, err
	}
	return i.Exec(in)
}
