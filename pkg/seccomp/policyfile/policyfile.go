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

// Package policyfile loads seccomp policies from files.
//
// Three formats are understood, chosen by file extension:
//
//	.toml        the native schema, in TOML
//	.yaml, .yml  the native schema, in YAML
//	.json        an OCI runtime-spec LinuxSeccomp profile
//
// The native schema is:
//
//	default_action = "errno:EPERM"
//
//	[[syscall]]
//	names  = ["read", "write"]
//	action = "allow"
//
//	[[syscall]]
//	names  = ["ioctl"]
//	action = "errno:ENOTTY"
//	[[syscall.rules]]
//	action = "allow"
//	args   = [{ index = 1, op = "==", value = 0x5401 }]
//
// Rules are tried in order, and the first whose conditions all hold
// decides. A syscall's own action applies when no rule matches. Actions are
// "allow", "errno:<NAME|number>" and "trap:<name>".
package policyfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/walteh/bpfsandbox/pkg/abi/linux"
	"github.com/walteh/bpfsandbox/pkg/seccomp"
)

// Options configures how files are turned into policies.
type Options struct {
	// Traps maps trap names used in policy files to registered trap IDs.
	Traps map[string]seccomp.TrapID
}

// File is the native policy schema.
type File struct {
	DefaultAction string    `toml:"default_action" yaml:"default_action"`
	Syscalls      []Syscall `toml:"syscall" yaml:"syscall"`
}

// Syscall assigns an action, refined by rules, to a set of system calls.
type Syscall struct {
	Names  []string `toml:"names" yaml:"names"`
	Action string   `toml:"action" yaml:"action"`
	Rules  []Rule   `toml:"rules" yaml:"rules"`
}

// Rule applies Action when every condition in Args holds.
type Rule struct {
	Args   []Arg  `toml:"args" yaml:"args"`
	Action string `toml:"action" yaml:"action"`
}

// Arg is a comparison of one system call argument.
type Arg struct {
	Index int    `toml:"index" yaml:"index"`
	Op    string `toml:"op" yaml:"op"`
	Value uint64 `toml:"value" yaml:"value"`
	Mask  uint64 `toml:"mask" yaml:"mask"`
}

// Load reads the policy at path.
func Load(path string, opts Options) (*seccomp.RulePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p *seccomp.RulePolicy
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		p, err = ParseTOML(data, opts)
	case ".yaml", ".yml":
		p, err = ParseYAML(data, opts)
	case ".json":
		p, err = ParseOCI(data, opts)
	default:
		return nil, fmt.Errorf("%s: unknown policy format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseTOML parses a native policy in TOML.
func ParseTOML(data []byte, opts Options) (*seccomp.RulePolicy, error) {
	var f File
	md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&f)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys %v", undecoded)
	}
	return f.Policy(opts)
}

// ParseYAML parses a native policy in YAML.
func ParseYAML(data []byte, opts Options) (*seccomp.RulePolicy, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	return f.Policy(opts)
}

// Policy builds the policy f describes.
func (f *File) Policy(opts Options) (*seccomp.RulePolicy, error) {
	if f.DefaultAction == "" {
		return nil, fmt.Errorf("missing default_action")
	}
	def, err := parseAction(f.DefaultAction, opts)
	if err != nil {
		return nil, fmt.Errorf("default_action: %w", err)
	}
	p := seccomp.NewRulePolicy(def)
	seen := make(map[uintptr]string)
	for i, sc := range f.Syscalls {
		if len(sc.Names) == 0 {
			return nil, fmt.Errorf("syscall entry %d has no names", i)
		}
		e, err := sc.expr(opts, def)
		if err != nil {
			return nil, fmt.Errorf("syscall entry %d (%s): %w", i, strings.Join(sc.Names, ", "), err)
		}
		for _, name := range sc.Names {
			sysno, ok := seccomp.SyscallNumber(name)
			if !ok {
				return nil, fmt.Errorf("syscall entry %d: unknown system call %q", i, name)
			}
			if prev, ok := seen[sysno]; ok {
				return nil, fmt.Errorf("syscall entry %d: %s already listed as %s", i, name, prev)
			}
			seen[sysno] = name
			p.Set(sysno, e)
		}
	}
	return p, nil
}

func (sc *Syscall) expr(opts Options, def seccomp.ResultExpr) (seccomp.ResultExpr, error) {
	e := def
	if sc.Action != "" {
		var err error
		if e, err = parseAction(sc.Action, opts); err != nil {
			return nil, err
		}
	}
	for i := len(sc.Rules) - 1; i >= 0; i-- {
		r := sc.Rules[i]
		then, err := parseAction(r.Action, opts)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if len(r.Args) == 0 {
			// An unconditional rule shadows everything after it.
			e = then
			continue
		}
		cond := make(seccomp.AllOf, 0, len(r.Args))
		for _, a := range r.Args {
			c, err := a.predicate()
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
			cond = append(cond, c)
		}
		var pred seccomp.ArgPredicate = cond
		if len(cond) == 1 {
			pred = cond[0]
		}
		e = seccomp.If(pred, then, e)
	}
	return e, nil
}

func (a Arg) predicate() (seccomp.ArgCmp, error) {
	var c seccomp.ArgCmp
	switch a.Op {
	case "==", "eq":
		c = seccomp.ArgEqual(a.Index, a.Value)
	case "!=", "ne":
		c = seccomp.ArgNotEqual(a.Index, a.Value)
	case ">", "gt":
		c = seccomp.ArgGreaterThan(a.Index, a.Value)
	case ">=", "ge":
		c = seccomp.ArgGreaterOrEqual(a.Index, a.Value)
	case "<", "lt":
		c = seccomp.ArgLessThan(a.Index, a.Value)
	case "<=", "le":
		c = seccomp.ArgLessOrEqual(a.Index, a.Value)
	case "&==", "masked_eq":
		c = seccomp.ArgMaskedEqual(a.Index, a.Mask, a.Value)
	default:
		return c, fmt.Errorf("unknown comparison %q", a.Op)
	}
	if a.Mask != 0 && c.Op != seccomp.OpMaskedEqual {
		return c, fmt.Errorf("mask given for comparison %q", a.Op)
	}
	return c, c.Validate()
}

// parseAction parses "allow", "errno:<NAME|number>" or "trap:<name>".
func parseAction(s string, opts Options) (seccomp.ResultExpr, error) {
	kind, arg, _ := strings.Cut(s, ":")
	switch kind {
	case "allow":
		if arg != "" {
			return nil, fmt.Errorf("allow takes no argument: %q", s)
		}
		return seccomp.Allow{}, nil
	case "errno":
		errno, err := parseErrno(arg)
		if err != nil {
			return nil, err
		}
		return seccomp.Deny{Errno: errno}, nil
	case "trap":
		return trap(arg, opts)
	default:
		return nil, fmt.Errorf("unknown action %q", s)
	}
}

func parseErrno(s string) (unix.Errno, error) {
	if s == "" {
		return 0, fmt.Errorf("errno action without an errno")
	}
	if n, err := strconv.ParseUint(s, 0, 16); err == nil {
		if n == 0 {
			return 0, fmt.Errorf("errno 0 is not a denial")
		}
		return unix.Errno(n), nil
	}
	if errno, ok := errnoNames()[s]; ok {
		return errno, nil
	}
	return 0, fmt.Errorf("unknown errno %q", s)
}

// errnoNames maps symbolic errno names, such as "EPERM", to their values on
// the host.
var errnoNames = sync.OnceValue(func() map[string]unix.Errno {
	m := make(map[string]unix.Errno)
	for e := unix.Errno(1); e <= linux.MaxErrno; e++ {
		if name := unix.ErrnoName(e); name != "" {
			m[name] = e
		}
	}
	return m
})

func trap(name string, opts Options) (seccomp.ResultExpr, error) {
	id, ok := opts.Traps[name]
	if !ok {
		return nil, fmt.Errorf("unknown trap %q", name)
	}
	return seccomp.Trap{ID: id}, nil
}
