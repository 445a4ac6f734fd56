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
	"runtime"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/bpfsandbox/pkg/log"
	"github.com/walteh/bpfsandbox/pkg/seccomp"
	"github.com/walteh/bpfsandbox/pkg/verifycache"
)

// Verify implements subcommands.Command for the "verify" command.
type Verify struct {
	jobs    int
	noCache bool
	traps   trapFlag
}

// Name implements subcommands.Command.Name.
func (*Verify) Name() string {
	return "verify"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Verify) Synopsis() string {
	return "compile policy files and check the programs against them"
}

// Usage implements subcommands.Command.Usage.
func (*Verify) Usage() string {
	return `verify [flags] <policy file>... - compile and verify policies.

Each policy is compiled and its program is run on sampled inputs, comparing
every result with the policy's own. Programs that pass are recorded in the
cache directory and skipped on later runs.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (v *Verify) SetFlags(f *flag.FlagSet) {
	v.traps = trapFlag{}
	f.IntVar(&v.jobs, "j", runtime.GOMAXPROCS(0), "number of policies to verify concurrently.")
	f.BoolVar(&v.noCache, "no-cache", false, "verify even if a program is already recorded.")
	f.Var(v.traps, "trap", "name=id binding for traps named in the policy; may be repeated.")
}

// Execute implements subcommands.Command.Execute.
func (v *Verify) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := confFromArgs(args)

	var cache *verifycache.Cache
	if conf.CacheDir != "" && !v.noCache {
		var err error
		if cache, err = verifycache.Open(conf.CacheDir); err != nil {
			return Errorf("opening cache: %v", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(v.jobs, 1))
	for _, path := range f.Args() {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return v.verifyOne(path, cache)
		})
	}
	if err := g.Wait(); err != nil {
		return Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}

func (v *Verify) verifyOne(path string, cache *verifycache.Cache) error {
	p, err := loadPolicy(path, v.traps)
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	prog, err := seccomp.Compile(p, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	l := log.Log().WithField("policy", path)
	if cache == nil {
		if err := seccomp.Verify(prog, p); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		l.Infof("verified %d instructions", prog.Length())
		return nil
	}
	hit, err := cache.Verify(prog, p)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if hit {
		l.Infof("already verified")
	} else {
		l.Infof("verified %d instructions", prog.Length())
	}
	return nil
}
