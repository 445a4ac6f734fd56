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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/walteh/bpfsandbox/pkg/bpf"
	"github.com/walteh/bpfsandbox/pkg/log"
	"github.com/walteh/bpfsandbox/pkg/seccomp"
)

// Compile implements subcommands.Command for the "compile" command.
type Compile struct {
	output string
	format string
	traps  trapFlag
}

// Name implements subcommands.Command.Name.
func (*Compile) Name() string {
	return "compile"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Compile) Synopsis() string {
	return "compile a policy file into a seccomp filter"
}

// Usage implements subcommands.Command.Usage.
func (*Compile) Usage() string {
	return `compile [flags] <policy file> - compile a policy into a BPF program.

The program is written as raw struct sock_filter bytecode, or as a listing
with -format=text.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Compile) SetFlags(f *flag.FlagSet) {
	c.traps = trapFlag{}
	f.StringVar(&c.output, "o", "-", "output file, or - for stdout.")
	f.StringVar(&c.format, "format", "bytecode", "output format: bytecode or text.")
	f.Var(c.traps, "trap", "name=id binding for traps named in the policy; may be repeated.")
}

// Execute implements subcommands.Command.Execute.
func (c *Compile) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := confFromArgs(args)

	p, err := loadPolicy(f.Arg(0), c.traps)
	if err != nil {
		return Errorf("loading policy: %v", err)
	}
	prog, err := seccomp.Compile(p, nil)
	if err != nil {
		return Errorf("%v", err)
	}
	if conf.Verify {
		if err := seccomp.Verify(prog, p); err != nil {
			return Errorf("%v", err)
		}
	}
	log.Infof("Compiled %s into %d instructions", f.Arg(0), prog.Length())

	var out []byte
	switch c.format {
	case "bytecode":
		out = prog.Bytecode()
	case "text":
		out = []byte(bpf.DecodeProgram(prog))
	default:
		return Errorf("unknown format %q", c.format)
	}
	if err := writeOutput(c.output, out); err != nil {
		return Errorf("writing program: %v", err)
	}
	return subcommands.ExitSuccess
}

func writeOutput(path string, data []byte) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
