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

	"github.com/google/btree"

	"github.com/walteh/bpfsandbox/pkg/abi/linux"
)

// Policy assigns a result to every system call.
type Policy interface {
	// ResultFor returns the expression for system call sysno, or nil to use
	// DefaultAction.
	ResultFor(sysno uintptr) ResultExpr

	// DefaultAction applies to system calls ResultFor does not cover,
	// including every invalid system call number.
	DefaultAction() ResultExpr
}

// Resolve returns the expression p applies to sysno.
func Resolve(p Policy, sysno uintptr) ResultExpr {
	if IsValidSyscallNumber(sysno) {
		if e := p.ResultFor(sysno); e != nil {
			return e
		}
	}
	return p.DefaultAction()
}

// Evaluate returns the action p takes for data. It is the reference the
// verifier holds compiled programs to.
func Evaluate(p Policy, data linux.SeccompData) (linux.BPFAction, error) {
	if data.Arch != AuditArch {
		return linux.SECCOMP_RET_KILL_PROCESS, nil
	}
	e := Resolve(p, uintptr(uint32(data.Nr)))
	if err := validate(e, nil); err != nil {
		return 0, err
	}
	leaf, err := eval(e, &data)
	if err != nil {
		return 0, err
	}
	return action(leaf)
}

type rule struct {
	sysno uintptr
	expr  ResultExpr
}

// RulePolicy is a Policy backed by an ordered table of per-syscall rules.
type RulePolicy struct {
	rules *btree.BTreeG[rule]
	def   ResultExpr
}

var _ Policy = (*RulePolicy)(nil)

// NewRulePolicy returns a policy that applies def to every system call.
func NewRulePolicy(def ResultExpr) *RulePolicy {
	return &RulePolicy{
		rules: btree.NewG(8, func(a, b rule) bool { return a.sysno < b.sysno }),
		def:   def,
	}
}

// Set makes sysno resolve to e, replacing any earlier rule.
func (p *RulePolicy) Set(sysno uintptr, e ResultExpr) *RulePolicy {
	p.rules.ReplaceOrInsert(rule{sysno: sysno, expr: e})
	return p
}

// SetAll applies Set to every number in sysnos.
func (p *RulePolicy) SetAll(e ResultExpr, sysnos ...uintptr) *RulePolicy {
	for _, sysno := range sysnos {
		p.Set(sysno, e)
	}
	return p
}

// Prepend makes sysno resolve to then when cond holds, and to its previous
// expression otherwise.
func (p *RulePolicy) Prepend(sysno uintptr, cond ArgPredicate, then ResultExpr) *RulePolicy {
	return p.Set(sysno, If(cond, then, Resolve(p, sysno)))
}

// Delete removes the rule for sysno.
func (p *RulePolicy) Delete(sysno uintptr) {
	p.rules.Delete(rule{sysno: sysno})
}

// Len returns the number of system calls with a rule.
func (p *RulePolicy) Len() int {
	return p.rules.Len()
}

// Ascend calls fn for every rule in ascending system call order until fn
// returns false.
func (p *RulePolicy) Ascend(fn func(sysno uintptr, e ResultExpr) bool) {
	p.rules.Ascend(func(r rule) bool {
		return fn(r.sysno, r.expr)
	})
}

// ResultFor implements Policy.ResultFor.
func (p *RulePolicy) ResultFor(sysno uintptr) ResultExpr {
	if r, ok := p.rules.Get(rule{sysno: sysno}); ok {
		return r.expr
	}
	return nil
}

// DefaultAction implements Policy.DefaultAction.
func (p *RulePolicy) DefaultAction() ResultExpr {
	return p.def
}

// String returns a human-readable form of the rules.
func (p *RulePolicy) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "default: %s\n", describe(p.def))
	p.Ascend(func(sysno uintptr, e ResultExpr) bool {
		fmt.Fprintf(&sb, "%s (%d): %s\n", SyscallName(sysno), sysno, describe(e))
		return true
	})
	return sb.String()
}

// Describe returns a canonical listing of what p does across the valid
// system call range. Policies that describe identically compile to the same
// program.
func Describe(p Policy) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "arch %#x\n", uint32(AuditArch))
	fmt.Fprintf(&sb, "default %s\n", describe(p.DefaultAction()))
	for _, r := range syscallRanges(p) {
		fmt.Fprintf(&sb, "%d-%d %s\n", r.first, r.last, r.key)
	}
	return sb.String()
}
