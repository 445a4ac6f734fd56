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
	"os"
	"os/exec"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"

	"github.com/walteh/bpfsandbox/pkg/seccomp"
)

// Exec implements subcommands.Command for the "exec" command.
type Exec struct {
	policy string
}

// Name implements subcommands.Command.Name.
func (*Exec) Name() string {
	return "exec"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Exec) Synopsis() string {
	return "run a command under a seccomp policy"
}

// Usage implements subcommands.Command.Usage.
func (*Exec) Usage() string {
	return `exec -policy <policy file> [--] <command> [args...] - run a command in a sandbox.

The policy is installed on this process with thread synchronization, and the
command then replaces it. The policy must allow execve and everything the
command needs to start. Traps are not supported, since no handler survives
the exec.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (e *Exec) SetFlags(f *flag.FlagSet) {
	f.StringVar(&e.policy, "policy", "", "policy file to install.")
}

// Execute implements subcommands.Command.Execute.
func (e *Exec) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if e.policy == "" || f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := confFromArgs(args)

	p, err := loadPolicy(e.policy, nil)
	if err != nil {
		return Errorf("loading policy: %v", err)
	}
	argv := f.Args()
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return Errorf("resolving command: %v", err)
	}
	env := os.Environ()

	s := seccomp.New(seccomp.Options{
		Verify: conf.Verify,
		Quiet:  conf.Quiet,
		Die:    func(msg string) { Fatalf("%s", msg) },
	})
	s.SetPolicy(p)
	s.Start(seccomp.MultiThreaded)

	// The filter is in place, and may deny anything but the exec.
	if err := unix.Exec(path, argv, env); err != nil {
		// Reporting the failure may itself be denied.
		os.Exit(127)
	}
	return subcommands.ExitSuccess
}
