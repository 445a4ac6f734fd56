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
	"slices"
	"sort"

	"github.com/walteh/bpfsandbox/pkg/abi/linux"
)

// maxArgVectors bounds the full cartesian product of probe values. Larger
// spaces are sampled one argument at a time.
const maxArgVectors = 4096

// syscallSamples returns the system call numbers the verifier tries: every
// valid number plus the invalid boundaries.
func syscallSamples() []uint32 {
	samples := make([]uint32, 0, MaxSyscall-MinSyscall+1+4+len(archInvalidSamples))
	for n := uint32(MinSyscall); n <= MaxSyscall; n++ {
		samples = append(samples, n)
	}
	samples = append(samples,
		MaxSyscall+1,     // smallest invalid number
		MaxSyscall+0x100, // an unknown, future system call
		1<<31,            // negative as a signed number
		^uint32(0),       // largest invalid number, -1
	)
	return append(samples, archInvalidSamples...)
}

// argSamples returns argument vectors that reach every branch of e.
func argSamples(e ResultExpr) [][6]uint64 {
	if _, ok := e.(Conditional); !ok {
		return [][6]uint64{{}}
	}

	var perArg [6][]uint64
	seen := make(map[ArgProbe]struct{})
	for i := range perArg {
		perArg[i] = []uint64{0}
		seen[ArgProbe{Arg: i}] = struct{}{}
	}
	walkPredicates(e, func(p ArgPredicate) {
		for _, probe := range p.Probes() {
			if probe.Arg < 0 || probe.Arg >= len(perArg) {
				continue
			}
			if _, ok := seen[probe]; ok {
				continue
			}
			seen[probe] = struct{}{}
			perArg[probe.Arg] = append(perArg[probe.Arg], probe.Value)
		}
	})
	for i := range perArg {
		values := perArg[i]
		sort.Slice(values, func(a, b int) bool { return values[a] < values[b] })
	}

	total := 1
	for _, values := range perArg {
		total *= len(values)
		if total > maxArgVectors {
			break
		}
	}
	var vectors [][6]uint64
	if total <= maxArgVectors {
		vectors = product(perArg)
	} else {
		vectors = oneAtATime(perArg)
	}
	return append(vectors, witnesses(e)...)
}

// constraint is a predicate that must evaluate to want.
type constraint struct {
	p    ArgPredicate
	want bool
}

// witnessBudget bounds the search for a single leaf's witness.
const witnessBudget = 1 << 14

// witnesses returns, for every leaf of e, an argument vector that reaches
// it, when one can be found.
func witnesses(e ResultExpr) [][6]uint64 {
	var cands [6][]uint64
	seen := make(map[ArgProbe]struct{})
	walkPredicates(e, func(p ArgPredicate) {
		for _, probe := range p.Probes() {
			if probe.Arg < 0 || probe.Arg >= len(cands) {
				continue
			}
			if _, ok := seen[probe]; ok {
				continue
			}
			seen[probe] = struct{}{}
			cands[probe.Arg] = append(cands[probe.Arg], probe.Value)
		}
	})

	var out [][6]uint64
	var walk func(e ResultExpr, path []constraint)
	walk = func(e ResultExpr, path []constraint) {
		c, ok := e.(Conditional)
		if !ok {
			s := solver{cands: &cands, budget: witnessBudget}
			var chain func(i int) bool
			chain = func(i int) bool {
				if i == len(path) {
					out = append(out, s.args)
					return true
				}
				return s.solve(path[i].p, path[i].want, func() bool { return chain(i + 1) })
			}
			chain(0)
			return
		}
		walk(c.Then, append(path[:len(path):len(path)], constraint{c.Cond, true}))
		walk(c.Else, append(path[:len(path):len(path)], constraint{c.Cond, false}))
	}
	walk(e, nil)
	return out
}

// solver searches for argument values satisfying a chain of constraints by
// backtracking over candidate values. Unfixed arguments read as zero.
type solver struct {
	cands  *[6][]uint64
	args   [6]uint64
	fixed  [6]bool
	budget int
}

func (s *solver) data() *linux.SeccompData {
	return &linux.SeccompData{Args: s.args}
}

// solve makes p evaluate to want and then calls k. It returns true when k
// does; otherwise every argument it fixed is released.
func (s *solver) solve(p ArgPredicate, want bool, k func() bool) bool {
	if s.budget--; s.budget < 0 {
		return false
	}
	switch p := p.(type) {
	case ArgCmp:
		if s.fixed[p.Arg] {
			return p.Eval(s.data()) == want && k()
		}
		s.fixed[p.Arg] = true
		for _, v := range s.cands[p.Arg] {
			s.args[p.Arg] = v
			if p.Eval(s.data()) == want && k() {
				return true
			}
		}
		s.fixed[p.Arg] = false
		s.args[p.Arg] = 0
		return false
	case Not:
		return s.solve(p.P, !want, k)
	case AllOf:
		if want {
			return s.all(p, 0, true, k)
		}
		return s.any(p, false, k)
	case AnyOf:
		if want {
			return s.any(p, true, k)
		}
		return s.all(p, 0, false, k)
	default:
		return s.opaque(p, want, k)
	}
}

// all makes every member from ps[i:] evaluate to want.
func (s *solver) all(ps []ArgPredicate, i int, want bool, k func() bool) bool {
	if i == len(ps) {
		return k()
	}
	return s.solve(ps[i], want, func() bool { return s.all(ps, i+1, want, k) })
}

// any makes at least one member of ps evaluate to want.
func (s *solver) any(ps []ArgPredicate, want bool, k func() bool) bool {
	for _, q := range ps {
		if s.solve(q, want, k) {
			return true
		}
	}
	return false
}

// opaque handles predicates whose structure is unknown: it varies one
// unfixed argument at a time and then pins every argument the predicate
// probes.
func (s *solver) opaque(p ArgPredicate, want bool, k func() bool) bool {
	var free []int
	for _, probe := range p.Probes() {
		if probe.Arg >= 0 && probe.Arg < len(s.fixed) && !s.fixed[probe.Arg] && !slices.Contains(free, probe.Arg) {
			free = append(free, probe.Arg)
		}
	}
	saved := *s
	try := func() bool {
		if p.Eval(s.data()) != want {
			return false
		}
		for _, arg := range free {
			s.fixed[arg] = true
		}
		return k()
	}
	if try() {
		return true
	}
	for _, arg := range free {
		for _, v := range s.cands[arg] {
			*s = saved
			s.budget = saved.budget - 1
			s.args[arg] = v
			if try() {
				return true
			}
		}
	}
	budget := s.budget
	*s = saved
	s.budget = budget
	return false
}

// product returns the cartesian product of the values of each argument.
func product(perArg [6][]uint64) [][6]uint64 {
	vectors := [][6]uint64{{}}
	for arg, values := range perArg {
		next := make([][6]uint64, 0, len(vectors)*len(values))
		for _, v := range vectors {
			for _, value := range values {
				v[arg] = value
				next = append(next, v)
			}
		}
		vectors = next
	}
	return vectors
}

// oneAtATime varies each argument over its values while the others hold
// fixed. The fixed values are zero, and then each argument's k-th value for
// every k, so that conjunctions over several arguments are also reached.
func oneAtATime(perArg [6][]uint64) [][6]uint64 {
	longest := 0
	for _, values := range perArg {
		longest = max(longest, len(values))
	}
	var vectors [][6]uint64
	for k := 0; k < longest; k++ {
		var base [6]uint64
		for arg, values := range perArg {
			base[arg] = values[k%len(values)]
		}
		vectors = append(vectors, base)
		for arg, values := range perArg {
			for _, value := range values {
				v := base
				v[arg] = value
				vectors = append(vectors, v)
			}
		}
	}
	return vectors
}

// wrongArch is an architecture the compiled program must reject.
func wrongArch() uint32 {
	if AuditArch == linux.AUDIT_ARCH_I386 {
		return linux.AUDIT_ARCH_X86_64
	}
	return linux.AUDIT_ARCH_I386
}
