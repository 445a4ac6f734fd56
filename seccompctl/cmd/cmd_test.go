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
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/subcommands"

	"github.com/walteh/bpfsandbox/pkg/bpf"
	"github.com/walteh/bpfsandbox/seccompctl/config"
)

const testPolicy = `
default_action = "errno:EPERM"

[[syscall]]
names  = ["read", "write", "exit_group"]
action = "allow"

[[syscall]]
names  = ["getpid"]
action = "trap:pid"
`

func writePolicy(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "policy.toml")
	if err := os.WriteFile(path, []byte(testPolicy), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs c with the given command-line arguments.
func execute(t *testing.T, c subcommands.Command, conf *config.Config, args ...string) subcommands.ExitStatus {
	t.Helper()
	f := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	c.SetFlags(f)
	if err := f.Parse(args); err != nil {
		t.Fatalf("parsing %v: %v", args, err)
	}
	return c.Execute(context.Background(), f, conf)
}

func TestTrapFlag(t *testing.T) {
	traps := trapFlag{}
	for _, s := range []string{"b=2", "a=0x10"} {
		if err := traps.Set(s); err != nil {
			t.Fatalf("Set(%q) failed: %v", s, err)
		}
	}
	if got, want := traps.String(), "a=16,b=2"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	for _, bad := range []string{"a", "=1", "a=0", "a=70000", "a=x"} {
		if err := traps.Set(bad); err == nil {
			t.Errorf("Set(%q) succeeded, want error", bad)
		}
	}
}

func TestCompileCommand(t *testing.T) {
	dir := t.TempDir()
	policy := writePolicy(t, dir)
	conf := &config.Config{Verify: true}

	out := filepath.Join(dir, "filter.bpf")
	if got := execute(t, &Compile{}, conf, "-o", out, "-trap", "pid=3", policy); got != subcommands.ExitSuccess {
		t.Fatalf("compile exited with %v", got)
	}
	code, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	insns, ok := bpf.FromBytecode(code)
	if !ok {
		t.Fatalf("output is not a whole number of instructions")
	}
	if _, err := bpf.Compile(insns); err != nil {
		t.Errorf("output is not a valid program: %v", err)
	}

	text := filepath.Join(dir, "filter.txt")
	if got := execute(t, &Compile{}, conf, "-o", text, "-format", "text", "-trap", "pid=3", policy); got != subcommands.ExitSuccess {
		t.Fatalf("compile -format=text exited with %v", got)
	}
	listing, err := os.ReadFile(text)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(listing), "ret") {
		t.Errorf("listing has no returns:\n%s", listing)
	}

	// The trap name is unbound.
	if got := execute(t, &Compile{}, conf, "-o", out, policy); got != subcommands.ExitFailure {
		t.Errorf("compile without trap bindings exited with %v, want failure", got)
	}
	if got := execute(t, &Compile{}, conf); got != subcommands.ExitUsageError {
		t.Errorf("compile without arguments exited with %v, want a usage error", got)
	}
}

func TestVerifyCommand(t *testing.T) {
	dir := t.TempDir()
	policy := writePolicy(t, dir)
	conf := &config.Config{CacheDir: filepath.Join(dir, "cache")}

	for i := 0; i < 2; i++ {
		if got := execute(t, &Verify{}, conf, "-trap", "pid=3", policy, policy); got != subcommands.ExitSuccess {
			t.Fatalf("verify run %d exited with %v", i, got)
		}
	}
	entries, err := os.ReadDir(conf.CacheDir)
	if err != nil {
		t.Fatalf("reading cache: %v", err)
	}
	records := 0
	for _, e := range entries {
		if e.IsDir() {
			records++
		}
	}
	if records != 1 {
		t.Errorf("cache holds %d record directories, want 1", records)
	}

	missing := filepath.Join(dir, "missing.toml")
	if got := execute(t, &Verify{}, conf, "-no-cache", policy, missing); got != subcommands.ExitFailure {
		t.Errorf("verify of a missing file exited with %v, want failure", got)
	}
}
