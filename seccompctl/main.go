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

// Binary seccompctl compiles, verifies and installs seccomp policies.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/walteh/bpfsandbox/pkg/log"
	"github.com/walteh/bpfsandbox/seccompctl/cmd"
	"github.com/walteh/bpfsandbox/seccompctl/config"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	const policyGroup = "policies"
	subcommands.Register(new(cmd.Compile), policyGroup)
	subcommands.Register(new(cmd.Verify), policyGroup)

	const sandboxGroup = "sandbox"
	subcommands.Register(new(cmd.Check), sandboxGroup)
	subcommands.Register(new(cmd.Exec), sandboxGroup)

	config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(int(subcommands.ExitUsageError))
	}
	if err := conf.Apply(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(int(subcommands.ExitFailure))
	}
	log.Debugf("seccompctl started with args %q", os.Args)

	os.Exit(int(subcommands.Execute(context.Background(), conf)))
}
