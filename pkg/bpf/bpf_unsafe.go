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

import "unsafe"

// sizeOfInstruction is the size of a BPF instruction struct, which matches
// the kernel's struct sock_filter.
const sizeOfInstruction = int(unsafe.Sizeof(Instruction{}))

// ToBytecode converts instructions to the raw bytes understood by the
// kernel. The returned slice aliases insns.
func ToBytecode(insns []Instruction) []byte {
	if len(insns) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&insns[0])), len(insns)*sizeOfInstruction)
}

// FromBytecode is the inverse of ToBytecode. The returned slice is a copy.
func FromBytecode(b []byte) ([]Instruction, bool) {
	if len(b)%sizeOfInstruction != 0 {
		return nil, false
	}
	insns := make([]Instruction, len(b)/sizeOfInstruction)
	copy(ToBytecode(insns), b)
	return insns, true
}
