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
	"fmt"

	"github.com/walteh/bpfsandbox/pkg/abi/linux"
	"github.com/walteh/bpfsandbox/pkg/bpf"
)

// Verify runs prog on a sample of inputs and checks that each result is what
// p prescribes.
//
// The sample covers every valid system call number, the invalid boundaries,
// a foreign architecture, and for every conditional expression a set of
// argument vectors that reaches each of its branches. Numbers are also run
// with vectors reaching each leaf of the neighbouring ranges. Agreement on the
// sample is evidence against compiler bugs, not a proof of equivalence.
//
// The first disagreement is returned as a *MismatchError.
func Verify(prog bpf.Program, p Policy) error {
	interp, err := bpf.NewInterpreter(prog)
	if err != nil {
		return fmt.Errorf("loading program for verification: %w", err)
	}
	run := func(data linux.SeccompData) error {
		expected, err := Evaluate(p, data)
		if err != nil {
			return fmt.Errorf("evaluating policy for %v: %w", data, err)
		}
		ret, err := interp.Exec(bpf.Input{Data: data.Marshal(), Order: binary.LittleEndian})
		if err != nil {
			return fmt.Errorf("running program for %v: %w", data, err)
		}
		if actual := linux.BPFAction(ret); actual != expected {
			return &MismatchError{
				Sysno:    data.Nr,
				Arch:     data.Arch,
				Args:     data.Args,
				Expected: expected,
				Actual:   actual,
			}
		}
		return nil
	}

	nrs := syscallSamples()
	exprs := make([]ResultExpr, len(nrs))
	keys := make([]string, len(nrs))
	for i, nr := range nrs {
		exprs[i] = Resolve(p, uintptr(nr))
		keys[i] = describe(exprs[i])
	}
	adjacent := func(i, j int) bool { return nrs[i]+1 == nrs[j] }

	// first[i] and last[i] bound the run of consecutive numbers around i
	// that share its expression.
	first := make([]int, len(nrs))
	for i := range nrs {
		first[i] = i
		if i > 0 && adjacent(i-1, i) && keys[i-1] == keys[i] {
			first[i] = first[i-1]
		}
	}
	last := make([]int, len(nrs))
	for i := len(nrs) - 1; i >= 0; i-- {
		last[i] = i
		if i+1 < len(nrs) && adjacent(i, i+1) && keys[i+1] == keys[i] {
			last[i] = last[i+1]
		}
	}

	// Expressions repeat across system calls; sample each once.
	vectors := make(map[string][][6]uint64)
	own := func(i int) [][6]uint64 {
		args, ok := vectors[keys[i]]
		if !ok {
			args = argSamples(exprs[i])
			vectors[keys[i]] = args
		}
		return args
	}
	leaves := make(map[string][][6]uint64)
	neighbour := func(i int) [][6]uint64 {
		args, ok := leaves[keys[i]]
		if !ok {
			args = witnesses(exprs[i])
			leaves[keys[i]] = args
		}
		return args
	}

	for i, nr := range nrs {
		args := own(i)
		// A misplaced jump table boundary sends numbers into the block of
		// an adjacent range, so each number also tries a path to every
		// leaf of the ranges on either side.
		if j := first[i] - 1; j >= 0 && adjacent(j, first[i]) {
			args = append(args[:len(args):len(args)], neighbour(j)...)
		}
		if j := last[i] + 1; j < len(nrs) && adjacent(last[i], j) {
			args = append(args[:len(args):len(args)], neighbour(j)...)
		}
		for _, a := range args {
			if err := run(linux.SeccompData{Nr: int32(nr), Arch: AuditArch, Args: a}); err != nil {
				return err
			}
		}
	}

	return run(linux.SeccompData{Nr: 0, Arch: wrongArch()})
}
