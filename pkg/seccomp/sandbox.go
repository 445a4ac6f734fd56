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
	"io"
	"runtime"
	"sync"

	"github.com/walteh/bpfsandbox/pkg/bpf"
	"github.com/walteh/bpfsandbox/pkg/log"
	"github.com/walteh/bpfsandbox/pkg/memutil"
	"github.com/walteh/bpfsandbox/pkg/threads"
)

// State is the lifecycle state of a Sandbox. It only moves forward.
type State int

const (
	// StateUninitialized is the state of a new Sandbox.
	StateUninitialized State = iota

	// StatePolicySet follows a successful SetPolicy.
	StatePolicySet

	// StateStarted follows a successful Start. It is terminal.
	StateStarted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePolicySet:
		return "policy set"
	case StateStarted:
		return "started"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a Sandbox.
type Options struct {
	// Registry holds the traps the policy refers to. If nil, an empty
	// registry is created.
	Registry *TrapRegistry

	// Kernel is used to probe for support and install the filter. If nil,
	// the host kernel is used.
	Kernel Kernel

	// Threads answers whether the process is single-threaded. If nil, the
	// task directory of the process is opened when a single-threaded start
	// needs it. If it implements io.Closer, it is closed before the filter
	// is installed.
	Threads threads.Oracle

	// Closers are setup handles to release before the filter is installed,
	// since the policy may deny closing them afterwards.
	Closers []io.Closer

	// Verify checks the compiled program against the policy before
	// installing it. Builds with the seccompdebug tag always verify.
	Verify bool

	// Quiet suppresses informational logging.
	Quiet bool

	// Die is called with a description of any failure. It must not return.
	// The default logs the message and exits the process.
	Die func(msg string)
}

// Sandbox installs a policy as a seccomp filter on the current process.
//
// Usage is SetPolicy followed by Start. Any misuse, and any failure inside
// Start, is fatal: Start only returns once the filter is in place, and the
// filter cannot be removed.
type Sandbox struct {
	mu     sync.Mutex
	opts   Options
	state  State
	policy Policy

	// filter is the installed program. It lives outside the Go heap and is
	// never unmapped.
	filter []byte
}

// New returns a Sandbox in StateUninitialized.
func New(opts Options) *Sandbox {
	if opts.Registry == nil {
		opts.Registry = NewTrapRegistry()
	}
	if opts.Kernel == nil {
		opts.Kernel = HostKernel()
	}
	if opts.Die == nil {
		opts.Die = func(msg string) {
			log.Fatalf("%s", msg)
		}
	}
	return &Sandbox{opts: opts}
}

// Registry returns the sandbox's trap registry. Traps must be registered
// before Start.
func (s *Sandbox) Registry() *TrapRegistry {
	return s.opts.Registry
}

// State returns the current state.
func (s *Sandbox) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Supported reports whether the kernel can host a sandbox in mode.
func (s *Sandbox) Supported(mode Mode) bool {
	return Supported(s.opts.Kernel, mode)
}

// fatalf reports an unrecoverable error. It never returns.
func (s *Sandbox) fatalf(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	s.opts.Die(msg)
	panic(fmt.Sprintf("Die returned: %s", msg))
}

func (s *Sandbox) infof(format string, v ...any) {
	if !s.opts.Quiet {
		log.Infof(format, v...)
	}
}

// SetPolicy hands p to the sandbox. It is fatal to call SetPolicy more than
// once, with a nil policy, or after Start.
func (s *Sandbox) SetPolicy(p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		s.fatalf("seccomp: SetPolicy called in state %v", s.state)
	}
	if p == nil {
		s.fatalf("seccomp: SetPolicy called with a nil policy")
	}
	s.policy = p
	s.state = StatePolicySet
}

// Start compiles the policy and installs it in mode. It returns only once
// the filter is active; every failure is fatal.
func (s *Sandbox) Start(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePolicySet {
		s.fatalf("seccomp: Start called in state %v", s.state)
	}
	if err := s.checkPreconditions(mode); err != nil {
		s.fatalf("seccomp: %v", err)
	}
	if err := s.releaseHandles(); err != nil {
		s.fatalf("seccomp: releasing setup handles: %v", err)
	}
	filter, err := s.prepare(mode)
	if err != nil {
		s.fatalf("seccomp: %v", err)
	}
	if err := s.install(filter, mode); err != nil {
		s.fatalf("seccomp: %v", err)
	}
	// Nothing may log from here on: the filter may deny it.
	s.filter = filter
	s.state = StateStarted
}

func (s *Sandbox) checkPreconditions(mode Mode) error {
	if !s.opts.Kernel.SupportsFilter() {
		return &PreconditionError{Mode: mode, Err: ErrFilterUnsupported}
	}
	switch mode {
	case SingleThreaded:
		if s.opts.Threads == nil {
			d, err := threads.Open()
			if err != nil {
				return &PreconditionError{Mode: mode, Err: fmt.Errorf("opening task directory: %w", err)}
			}
			s.opts.Threads = d
		}
		single, err := s.opts.Threads.IsSingleThreaded()
		if err != nil {
			return &PreconditionError{Mode: mode, Err: fmt.Errorf("counting threads: %w", err)}
		}
		if !single {
			return &PreconditionError{Mode: mode, Err: ErrNotSingleThreaded}
		}
	case MultiThreaded:
		if !s.opts.Kernel.SupportsTSync() {
			return &PreconditionError{Mode: mode, Err: ErrTSyncUnsupported}
		}
	default:
		return &PreconditionError{Mode: mode, Err: fmt.Errorf("unknown mode")}
	}
	return nil
}

func (s *Sandbox) releaseHandles() error {
	if c, ok := s.opts.Threads.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("closing thread oracle: %w", err)
		}
	}
	s.opts.Threads = nil
	for _, c := range s.opts.Closers {
		if err := c.Close(); err != nil {
			return err
		}
	}
	s.opts.Closers = nil
	return nil
}

// prepare compiles and verifies the policy, and copies the program into
// memory outside the Go heap. The program and policy are unreachable once
// it returns, and nothing between its return and the install allocates.
func (s *Sandbox) prepare(mode Mode) ([]byte, error) {
	prog, err := Compile(s.policy, s.opts.Registry)
	if err != nil {
		return nil, err
	}
	if s.opts.Verify || forceVerify {
		if err := Verify(prog, s.policy); err != nil {
			log.Warningf("Program failed verification:\n%s", bpf.DecodeProgram(prog))
			return nil, fmt.Errorf("verifying program: %w", err)
		}
		s.infof("Verified %d-instruction program against its policy", prog.Length())
	}

	s.infof("Installing %d-instruction seccomp filter in %v mode", prog.Length(), mode)

	code := prog.Bytecode()
	filter, err := memutil.MapSlice(len(code))
	if err != nil {
		return nil, fmt.Errorf("allocating filter buffer: %w", err)
	}
	copy(filter, code)
	if err := memutil.ReadOnly(filter); err != nil {
		return nil, err
	}
	s.policy = nil
	s.opts.Registry.Freeze()
	return filter, nil
}

func (s *Sandbox) install(filter []byte, mode Mode) error {
	// prctl(PR_SET_NO_NEW_PRIVS) and prctl(PR_SET_SECCOMP) only affect the
	// calling thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := s.opts.Kernel.SetNoNewPrivs(); err != nil {
		return &InstallError{Mode: mode, Err: err}
	}
	if err := s.opts.Kernel.InstallFilter(filter, mode); err != nil {
		return &InstallError{Mode: mode, Err: err}
	}
	return nil
}
