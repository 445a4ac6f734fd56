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
	"fmt"

	"golang.org/x/net/bpf"
)

// DecodeInstruction returns a human-readable form of a single instruction.
func DecodeInstruction(ins Instruction) string {
	raw := bpf.RawInstruction{Op: ins.OpCode, Jt: ins.JumpIfTrue, Jf: ins.JumpIfFalse, K: ins.K}
	switch d := raw.Disassemble().(type) {
	case bpf.RawInstruction:
		return fmt.Sprintf("unknown instruction %v", ins)
	case fmt.Stringer:
		return d.String()
	default:
		return fmt.Sprintf("%v", d)
	}
}

// DecodeProgram returns the program as annotated assembly, one instruction
// per line with its offset and the absolute targets of any jumps.
func DecodeProgram(p Program) string {
	var out bytes.Buffer
	for pc, ins := range p.instructions {
		fmt.Fprintf(&out, "%4d: %s", pc, DecodeInstruction(ins))
		switch {
		case ins.IsConditionalJump():
			fmt.Fprintf(&out, " (-> %d, %d)", pc+1+int(ins.JumpIfTrue), pc+1+int(ins.JumpIfFalse))
		case ins.IsJump():
			fmt.Fprintf(&out, " (-> %d)", pc+1+int(ins.K))
		}
		out.WriteByte('\n')
	}
	return out.String()
}
