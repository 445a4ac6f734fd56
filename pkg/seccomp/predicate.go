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
	"fmt"
	"strings"

	"github.com/walteh/bpfsandbox/pkg/abi/linux"
	"github.com/walteh/bpfsandbox/pkg/bpf"
)

// ArgProbe is an argument value that drives a predicate one way or the
// other.
type ArgProbe struct {
	// Arg is the argument index, 0 through 5.
	Arg int

	// Value is the full 64-bit argument value.
	Value uint64
}

// ArgPredicate is a condition on the arguments of a system call.
//
// Implementations may also provide Validate() error, which the compiler
// calls before rendering.
type ArgPredicate interface {
	// Eval reports whether the predicate holds for data. This is the
	// reference semantics that Render must reproduce.
	Eval(data *linux.SeccompData) bool

	// Render emits instructions that continue at match if the predicate
	// holds and at mismatch otherwise, and returns the first of them. The
	// emitted code may clobber the accumulator.
	Render(b *bpf.ProgramBuilder, match, mismatch bpf.Node) bpf.Node

	// Probes returns argument values on both sides of every boundary the
	// predicate tests.
	Probes() []ArgProbe

	// String must identify the predicate's semantics uniquely, since it is
	// used to share code between identical conditions.
	String() string
}

// CmpOp is a comparison between a 64-bit argument and a constant.
type CmpOp int

// Comparison operators. All comparisons are unsigned.
const (
	OpEqual CmpOp = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterOrEqual
	OpLessThan
	OpLessOrEqual
	OpMaskedEqual
)

func (op CmpOp) String() string {
	switch op {
	case OpEqual:
		return "=="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessOrEqual:
		return "<="
	case OpMaskedEqual:
		return "&=="
	default:
		return fmt.Sprintf("CmpOp(%d)", int(op))
	}
}

// ArgCmp compares argument Arg against Value. For OpMaskedEqual the argument
// is first masked with Mask.
type ArgCmp struct {
	Arg   int
	Op    CmpOp
	Value uint64
	Mask  uint64
}

// ArgEqual matches if argument arg equals v.
func ArgEqual(arg int, v uint64) ArgCmp {
	return ArgCmp{Arg: arg, Op: OpEqual, Value: v}
}

// ArgNotEqual matches if argument arg is not v.
func ArgNotEqual(arg int, v uint64) ArgCmp {
	return ArgCmp{Arg: arg, Op: OpNotEqual, Value: v}
}

// ArgGreaterThan matches if argument arg is strictly greater than v.
func ArgGreaterThan(arg int, v uint64) ArgCmp {
	return ArgCmp{Arg: arg, Op: OpGreaterThan, Value: v}
}

// ArgGreaterOrEqual matches if argument arg is at least v.
func ArgGreaterOrEqual(arg int, v uint64) ArgCmp {
	return ArgCmp{Arg: arg, Op: OpGreaterOrEqual, Value: v}
}

// ArgLessThan matches if argument arg is strictly less than v.
func ArgLessThan(arg int, v uint64) ArgCmp {
	return ArgCmp{Arg: arg, Op: OpLessThan, Value: v}
}

// ArgLessOrEqual matches if argument arg is at most v.
func ArgLessOrEqual(arg int, v uint64) ArgCmp {
	return ArgCmp{Arg: arg, Op: OpLessOrEqual, Value: v}
}

// ArgMaskedEqual matches if argument arg, masked with mask, equals v. It can
// be used to check that an argument only has approved flags set.
func ArgMaskedEqual(arg int, mask, v uint64) ArgCmp {
	return ArgCmp{Arg: arg, Op: OpMaskedEqual, Value: v, Mask: mask}
}

// Validate checks the argument index and operator.
func (c ArgCmp) Validate() error {
	if c.Arg < 0 || c.Arg >= len(linux.SeccompData{}.Args) {
		return fmt.Errorf("argument index %d out of range", c.Arg)
	}
	if c.Op < OpEqual || c.Op > OpMaskedEqual {
		return fmt.Errorf("unknown comparison %v", c.Op)
	}
	return nil
}

// Eval implements ArgPredicate.Eval.
func (c ArgCmp) Eval(data *linux.SeccompData) bool {
	a := data.Args[c.Arg]
	switch c.Op {
	case OpEqual:
		return a == c.Value
	case OpNotEqual:
		return a != c.Value
	case OpGreaterThan:
		return a > c.Value
	case OpGreaterOrEqual:
		return a >= c.Value
	case OpLessThan:
		return a < c.Value
	case OpLessOrEqual:
		return a <= c.Value
	case OpMaskedEqual:
		return a&c.Mask == c.Value
	}
	panic(fmt.Sprintf("unknown comparison %v", c.Op))
}

// Render implements ArgPredicate.Render.
//
// The argument is compared as two 32-bit halves, since BPF only loads 32-bit
// words.
func (c ArgCmp) Render(b *bpf.ProgramBuilder, match, mismatch bpf.Node) bpf.Node {
	low, high := linux.SeccompDataOffsetArgLow(c.Arg), linux.SeccompDataOffsetArgHigh(c.Arg)
	vlow, vhigh := uint32(c.Value), uint32(c.Value>>32)
	switch c.Op {
	case OpEqual:
		// arg_low == low && arg_high == high
		checkHigh := b.Stmt(bpf.Ld|bpf.Abs|bpf.W, high, b.Jump(bpf.Jmp|bpf.Jeq|bpf.K, vhigh, match, mismatch))
		return b.Stmt(bpf.Ld|bpf.Abs|bpf.W, low, b.Jump(bpf.Jmp|bpf.Jeq|bpf.K, vlow, checkHigh, mismatch))
	case OpNotEqual:
		return ArgEqual(c.Arg, c.Value).Render(b, mismatch, match)
	case OpGreaterThan, OpGreaterOrEqual:
		// arg_high > high, or arg_high == high and arg_low (>|>=) low.
		lowOp := uint16(bpf.Jgt)
		if c.Op == OpGreaterOrEqual {
			lowOp = bpf.Jge
		}
		checkLow := b.Stmt(bpf.Ld|bpf.Abs|bpf.W, low, b.Jump(bpf.Jmp|lowOp|bpf.K, vlow, match, mismatch))
		equalHigh := b.Jump(bpf.Jmp|bpf.Jeq|bpf.K, vhigh, checkLow, mismatch)
		return b.Stmt(bpf.Ld|bpf.Abs|bpf.W, high, b.Jump(bpf.Jmp|bpf.Jgt|bpf.K, vhigh, match, equalHigh))
	case OpLessThan:
		return ArgGreaterOrEqual(c.Arg, c.Value).Render(b, mismatch, match)
	case OpLessOrEqual:
		return ArgGreaterThan(c.Arg, c.Value).Render(b, mismatch, match)
	case OpMaskedEqual:
		// (arg_low & mask_low) == low && (arg_high & mask_high) == high
		mlow, mhigh := uint32(c.Mask), uint32(c.Mask>>32)
		checkHigh := b.Stmt(bpf.Ld|bpf.Abs|bpf.W, high,
			b.Stmt(bpf.Alu|bpf.And|bpf.K, mhigh,
				b.Jump(bpf.Jmp|bpf.Jeq|bpf.K, vhigh, match, mismatch)))
		return b.Stmt(bpf.Ld|bpf.Abs|bpf.W, low,
			b.Stmt(bpf.Alu|bpf.And|bpf.K, mlow,
				b.Jump(bpf.Jmp|bpf.Jeq|bpf.K, vlow, checkHigh, mismatch)))
	}
	panic(fmt.Sprintf("unknown comparison %v", c.Op))
}

// Probes implements ArgPredicate.Probes.
func (c ArgCmp) Probes() []ArgProbe {
	const halfStep = uint64(1) << 32
	v := c.Value
	values := []uint64{0, ^uint64(0), v, v + 1, v - 1, v + halfStep, v - halfStep, v + halfStep - 1, v - halfStep + 1}
	if c.Op == OpMaskedEqual {
		lowest := c.Mask & -c.Mask
		values = append(values, v|^c.Mask, v^lowest, c.Mask, v&c.Mask, (v&c.Mask)^(c.Mask&^lowest))
	}
	probes := make([]ArgProbe, len(values))
	for i, value := range values {
		probes[i] = ArgProbe{Arg: c.Arg, Value: value}
	}
	return probes
}

// String implements ArgPredicate.String.
func (c ArgCmp) String() string {
	if c.Op == OpMaskedEqual {
		return fmt.Sprintf("arg%d & %#x == %#x", c.Arg, c.Mask, c.Value)
	}
	return fmt.Sprintf("arg%d %s %#x", c.Arg, c.Op, c.Value)
}

// AllOf holds if every one of its predicates holds. An empty AllOf always
// holds.
type AllOf []ArgPredicate

// Validate checks every member.
func (p AllOf) Validate() error {
	return validateAll(p)
}

// Eval implements ArgPredicate.Eval.
func (p AllOf) Eval(data *linux.SeccompData) bool {
	for _, q := range p {
		if !q.Eval(data) {
			return false
		}
	}
	return true
}

// Render implements ArgPredicate.Render.
func (p AllOf) Render(b *bpf.ProgramBuilder, match, mismatch bpf.Node) bpf.Node {
	next := match
	for i := len(p) - 1; i >= 0; i-- {
		next = p[i].Render(b, next, mismatch)
	}
	return next
}

// Probes implements ArgPredicate.Probes.
func (p AllOf) Probes() []ArgProbe {
	return probesAll(p)
}

// String implements ArgPredicate.String.
func (p AllOf) String() string {
	return "all(" + joinPredicates(p) + ")"
}

// AnyOf holds if at least one of its predicates holds. An empty AnyOf never
// holds.
type AnyOf []ArgPredicate

// Validate checks every member.
func (p AnyOf) Validate() error {
	return validateAll(p)
}

// Eval implements ArgPredicate.Eval.
func (p AnyOf) Eval(data *linux.SeccompData) bool {
	for _, q := range p {
		if q.Eval(data) {
			return true
		}
	}
	return false
}

// Render implements ArgPredicate.Render.
func (p AnyOf) Render(b *bpf.ProgramBuilder, match, mismatch bpf.Node) bpf.Node {
	next := mismatch
	for i := len(p) - 1; i >= 0; i-- {
		next = p[i].Render(b, match, next)
	}
	return next
}

// Probes implements ArgPredicate.Probes.
func (p AnyOf) Probes() []ArgProbe {
	return probesAll(p)
}

// String implements ArgPredicate.String.
func (p AnyOf) String() string {
	return "any(" + joinPredicates(p) + ")"
}

// Not inverts a predicate.
type Not struct {
	P ArgPredicate
}

// Validate checks the inverted predicate.
func (n Not) Validate() error {
	return validateAll([]ArgPredicate{n.P})
}

// Eval implements ArgPredicate.Eval.
func (n Not) Eval(data *linux.SeccompData) bool {
	return !n.P.Eval(data)
}

// Render implements ArgPredicate.Render.
func (n Not) Render(b *bpf.ProgramBuilder, match, mismatch bpf.Node) bpf.Node {
	return n.P.Render(b, mismatch, match)
}

// Probes implements ArgPredicate.Probes.
func (n Not) Probes() []ArgProbe {
	return n.P.Probes()
}

// String implements ArgPredicate.String.
func (n Not) String() string {
	return "!(" + describe(n.P) + ")"
}

func validateAll(ps []ArgPredicate) error {
	for _, p := range ps {
		if p == nil {
			return fmt.Errorf("nil predicate")
		}
		if v, ok := p.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func probesAll(ps []ArgPredicate) []ArgProbe {
	var probes []ArgProbe
	for _, p := range ps {
		probes = append(probes, p.Probes()...)
	}
	return probes
}

func joinPredicates(ps []ArgPredicate) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = describe(p)
	}
	return strings.Join(parts, ", ")
}
