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
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/walteh/bpfsandbox/pkg/seccomp"
)

// Check implements subcommands.Command for the "check" command.
type Check struct{}

// Name implements subcommands.Command.Name.
func (*Check) Name() string {
	return "check"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Check) Synopsis() string {
	return "report the seccomp support of this system"
}

// Usage implements subcommands.Command.Usage.
func (*Check) Usage() string {
	return "check - report the seccomp support of this system.\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Check) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Check) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	k := seccomp.HostKernel()
	caps := seccomp.DetectCapabilities(k)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "architecture\t%#x\n", uint32(seccomp.AuditArch))
	fmt.Fprintf(w, "filter mode\t%t\n", caps.Filter)
	fmt.Fprintf(w, "thread sync\t%t\n", caps.TSync)
	fmt.Fprintf(w, "no_new_privs set\t%t\n", caps.NoNewPrivs)
	fmt.Fprintf(w, "current mode\t%d\n", caps.Mode)
	fmt.Fprintf(w, "CAP_SYS_ADMIN\t%t\n", caps.SysAdmin)
	for _, mode := range []seccomp.Mode{seccomp.SingleThreaded, seccomp.MultiThreaded} {
		fmt.Fprintf(w, "%v sandbox\t%t\n", mode, seccomp.Supported(k, mode))
	}
	if err := w.Flush(); err != nil {
		return Errorf("%v", err)
	}
	if !seccomp.Supported(k, seccomp.MultiThreaded) {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
