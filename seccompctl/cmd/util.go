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

// Package cmd holds implementations of the seccompctl commands.
package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/google/subcommands"

	"github.com/walteh/bpfsandbox/pkg/log"
	"github.com/walteh/bpfsandbox/pkg/seccomp"
	"github.com/walteh/bpfsandbox/pkg/seccomp/policyfile"
	"github.com/walteh/bpfsandbox/seccompctl/config"
)

// Fatalf logs to stderr and exits with a failure status.
func Fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	log.Warningf("FATAL: "+format, args...)
	os.Exit(128)
}

// Errorf logs to stderr and returns subcommands.ExitFailure.
func Errorf(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	log.Warningf("FATAL: "+format, args...)
	return subcommands.ExitFailure
}

// trapFlag collects name=id pairs given with a repeated -trap flag.
type trapFlag map[string]seccomp.TrapID

// String implements flag.Value.String.
func (t trapFlag) String() string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%d", name, t[name])
	}
	return sb.String()
}

// Set implements flag.Value.Set.
func (t trapFlag) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("want name=id, got %q", s)
	}
	id, err := strconv.ParseUint(value, 0, 16)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid trap ID %q", value)
	}
	t[name] = seccomp.TrapID(id)
	return nil
}

// confFromArgs returns the configuration main passes to every command.
func confFromArgs(args []any) *config.Config {
	if len(args) > 0 {
		if conf, ok := args[0].(*config.Config); ok {
			return conf
		}
	}
	return &config.Config{LogFormat: "text"}
}

// loadPolicy loads the policy at path.
func loadPolicy(path string, traps trapFlag) (*seccomp.RulePolicy, error) {
	return policyfile.Load(path, policyfile.Options{Traps: traps})
}
