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

	"golang.org/x/sys/unix"

	"github.com/walteh/bpfsandbox/pkg/abi/linux"
)

// ResultExpr is the outcome a policy assigns to a system call. The set of
// implementations is closed: Allow, Deny, Trap and Conditional.
type ResultExpr interface {
	// String returns a canonical description of the expression. Two
	// expressions with the same string compile to the same code.
	String() string

	isResultExpr()
}

// Allow lets the system call proceed.
type Allow struct{}

// Deny fails the system call with Errno, without executing it.
type Deny struct {
	Errno unix.Errno
}

// Trap raises SIGSYS and hands the system call to the trap registered
// under ID.
type Trap struct {
	ID TrapID
}

// Conditional evaluates Cond against the system call's arguments and
// continues with Then if it holds, Else otherwise.
type Conditional struct {
	Cond ArgPredicate
	Then ResultExpr
	Else ResultExpr
}

func (Allow) isResultExpr()       {}
func (Deny) isResultExpr()        {}
func (Trap) isResultExpr()        {}
func (Conditional) isResultExpr() {}

func (Allow) String() string {
	return "allow"
}

func (d Deny) String() string {
	return fmt.Sprintf("errno(%d)", uint32(d.Errno))
}

func (t Trap) String() string {
	return fmt.Sprintf("trap(%d)", t.ID)
}

func (c Conditional) String() string {
	return fmt.Sprintf("if %s then %s else %s", describe(c.Cond), describe(c.Then), describe(c.Else))
}

// describe tolerates nil members so that malformed trees can still be
// printed in error messages.
func describe(v fmt.Stringer) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}

// If is shorthand for a Conditional.
func If(cond ArgPredicate, then, otherwise ResultExpr) Conditional {
	return Conditional{Cond: cond, Then: then, Else: otherwise}
}

// action returns the seccomp return value of a leaf expression.
func action(e ResultExpr) (linux.BPFAction, error) {
	switch e := e.(type) {
	case Allow:
		return linux.SECCOMP_RET_ALLOW, nil
	case Deny:
		if e.Errno > linux.MaxErrno {
			return 0, fmt.Errorf("%w: %d", ErrInvalidErrno, uint32(e.Errno))
		}
		return linux.SECCOMP_RET_ERRNO.WithReturnCode(uint16(e.Errno)), nil
	case Trap:
		if e.ID == 0 {
			return 0, fmt.Errorf("%w: trap ID 0 is reserved", ErrUnknownTrap)
		}
		return linux.SECCOMP_RET_TRAP.WithReturnCode(uint16(e.ID)), nil
	case Conditional:
		return 0, fmt.Errorf("%w: conditional is not a leaf", ErrMalformedExpr)
	case nil:
		return 0, fmt.Errorf("%w: nil expression", ErrMalformedExpr)
	default:
		return 0, fmt.Errorf("%w: unknown expression type %T", ErrMalformedExpr, e)
	}
}

// validate checks that e is well formed and only refers to traps in r. A nil
// registry accepts every trap ID.
func validate(e ResultExpr, r *TrapRegistry) error {
	switch e := e.(type) {
	case Conditional:
		if e.Cond == nil {
			return fmt.Errorf("%w: conditional without a predicate", ErrMalformedExpr)
		}
		if v, ok := e.Cond.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrMalformedExpr, err)
			}
		}
		if e.Then == nil || e.Else == nil {
			return fmt.Errorf("%w: conditional %s has a missing branch", ErrMalformedExpr, e)
		}
		if err := validate(e.Then, r); err != nil {
			return err
		}
		return validate(e.Else, r)
	case Trap:
		if r != nil {
			if _, ok := r.Lookup(e.ID); !ok {
				return fmt.Errorf("%w: %d", ErrUnknownTrap, e.ID)
			}
		}
	}
	_, err := action(e)
	return err
}

// eval resolves e against data down to a leaf.
func eval(e ResultExpr, data *linux.SeccompData) (ResultExpr, error) {
	for {
		switch c := e.(type) {
		case Conditional:
			if c.Cond == nil {
				return nil, fmt.Errorf("%w: conditional without a predicate", ErrMalformedExpr)
			}
			if c.Cond.Eval(data) {
				e = c.Then
			} else {
				e = c.Else
			}
		case Allow, Deny, Trap:
			return e, nil
		default:
			return nil, fmt.Errorf("%w: %s", ErrMalformedExpr, describe(e))
		}
	}
}

// walkLeaves calls fn on every leaf of e, then-branches first.
func walkLeaves(e ResultExpr, fn func(ResultExpr)) {
	if c, ok := e.(Conditional); ok {
		walkLeaves(c.Then, fn)
		walkLeaves(c.Else, fn)
		return
	}
	fn(e)
}

// walkPredicates calls fn on every predicate of e.
func walkPredicates(e ResultExpr, fn func(ArgPredicate)) {
	if c, ok := e.(Conditional); ok {
		fn(c.Cond)
		walkPredicates(c.Then, fn)
		walkPredicates(c.Else, fn)
	}
}
