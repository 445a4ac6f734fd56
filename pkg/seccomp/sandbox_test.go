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
	"bytes"
	"errors"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

// fakeKernel records what the sandbox asks of the kernel.
type fakeKernel struct {
	filter     bool
	tsync      bool
	nnpErr     error
	installErr error

	nnpCalls int
	installs int
	mode     Mode
	code     []byte
}

func (k *fakeKernel) SupportsFilter() bool { return k.filter }
func (k *fakeKernel) SupportsTSync() bool  { return k.tsync }

func (k *fakeKernel) SetNoNewPrivs() error {
	k.nnpCalls++
	return k.nnpErr
}

func (k *fakeKernel) InstallFilter(filter []byte, mode Mode) error {
	if k.installErr != nil {
		return k.installErr
	}
	k.installs++
	k.mode = mode
	k.code = append([]byte(nil), filter...)
	return nil
}

type fakeThreads struct {
	count  int
	closed bool
}

func (f *fakeThreads) IsSingleThreaded() (bool, error) { return f.count == 1, nil }

func (f *fakeThreads) Close() error {
	f.closed = true
	return nil
}

type fakeCloser struct{ closed bool }

func (c *fakeCloser) Close() error {
	c.closed = true
	return nil
}

// dieError is the panic value of the test Die function.
type dieError string

func testOptions(k *fakeKernel) Options {
	return Options{
		Kernel: k,
		Quiet:  true,
		Die:    func(msg string) { panic(dieError(msg)) },
	}
}

// mustDie runs fn and returns the message it died with.
func mustDie(t *testing.T, fn func()) (msg string) {
	t.Helper()
	defer func() {
		r := recover()
		d, ok := r.(dieError)
		if !ok {
			t.Fatalf("got panic %v, want a call to Die", r)
		}
		msg = string(d)
	}()
	fn()
	t.Fatalf("function returned, want a call to Die")
	return ""
}

func simplePolicy() *RulePolicy {
	return NewRulePolicy(Deny{Errno: unix.EPERM}).Set(0, Allow{})
}

func TestStateMachine(t *testing.T) {
	for _, test := range []struct {
		desc string
		fn   func(s *Sandbox)
		want string
	}{
		{
			desc: "start without policy",
			fn:   func(s *Sandbox) { s.Start(MultiThreaded) },
			want: "Start called in state uninitialized",
		},
		{
			desc: "nil policy",
			fn:   func(s *Sandbox) { s.SetPolicy(nil) },
			want: "nil policy",
		},
		{
			desc: "policy set twice",
			fn: func(s *Sandbox) {
				s.SetPolicy(simplePolicy())
				s.SetPolicy(simplePolicy())
			},
			want: "SetPolicy called in state policy set",
		},
		{
			desc: "started twice",
			fn: func(s *Sandbox) {
				s.SetPolicy(simplePolicy())
				s.Start(MultiThreaded)
				s.Start(MultiThreaded)
			},
			want: "Start called in state started",
		},
		{
			desc: "policy after start",
			fn: func(s *Sandbox) {
				s.SetPolicy(simplePolicy())
				s.Start(MultiThreaded)
				s.SetPolicy(simplePolicy())
			},
			want: "SetPolicy called in state started",
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			s := New(testOptions(&fakeKernel{filter: true, tsync: true}))
			msg := mustDie(t, func() { test.fn(s) })
			if !strings.Contains(msg, test.want) {
				t.Errorf("died with %q, want it to contain %q", msg, test.want)
			}
		})
	}
}

func TestStartPreconditions(t *testing.T) {
	for _, test := range []struct {
		desc    string
		kernel  *fakeKernel
		threads int
		mode    Mode
		want    error
	}{
		{
			desc:    "filters unsupported",
			kernel:  &fakeKernel{},
			threads: 1,
			mode:    SingleThreaded,
			want:    ErrFilterUnsupported,
		},
		{
			desc:    "several threads",
			kernel:  &fakeKernel{filter: true, tsync: true},
			threads: 2,
			mode:    SingleThreaded,
			want:    ErrNotSingleThreaded,
		},
		{
			desc:   "tsync unsupported",
			kernel: &fakeKernel{filter: true},
			mode:   MultiThreaded,
			want:   ErrTSyncUnsupported,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			opts := testOptions(test.kernel)
			opts.Threads = &fakeThreads{count: test.threads}
			s := New(opts)
			s.SetPolicy(simplePolicy())
			msg := mustDie(t, func() { s.Start(test.mode) })
			if !strings.Contains(msg, test.want.Error()) {
				t.Errorf("died with %q, want %q", msg, test.want)
			}
			if test.kernel.nnpCalls != 0 || test.kernel.installs != 0 {
				t.Errorf("kernel touched before preconditions held: %d no_new_privs calls, %d installs", test.kernel.nnpCalls, test.kernel.installs)
			}
			if s.State() != StatePolicySet {
				t.Errorf("State() = %v, want %v", s.State(), StatePolicySet)
			}
		})
	}
}

func TestStartInstallFailure(t *testing.T) {
	k := &fakeKernel{filter: true, tsync: true, installErr: errors.New("thread 1234 refused")}
	s := New(testOptions(k))
	s.SetPolicy(simplePolicy())
	msg := mustDie(t, func() { s.Start(MultiThreaded) })
	if !strings.Contains(msg, "thread 1234 refused") {
		t.Errorf("died with %q, want the install error", msg)
	}
	if s.State() == StateStarted {
		t.Errorf("State() = %v after a failed install", s.State())
	}
}

func TestStartMalformedPolicy(t *testing.T) {
	k := &fakeKernel{filter: true, tsync: true}
	s := New(testOptions(k))
	s.SetPolicy(NewRulePolicy(Trap{ID: 9}))
	msg := mustDie(t, func() { s.Start(MultiThreaded) })
	if !strings.Contains(msg, ErrUnknownTrap.Error()) {
		t.Errorf("died with %q, want %q", msg, ErrUnknownTrap)
	}
	if k.installs != 0 {
		t.Errorf("filter installed for a malformed policy")
	}
}

func TestStart(t *testing.T) {
	for _, mode := range []Mode{SingleThreaded, MultiThreaded} {
		t.Run(mode.String(), func(t *testing.T) {
			k := &fakeKernel{filter: true, tsync: true}
			th := &fakeThreads{count: 1}
			c := &fakeCloser{}
			opts := testOptions(k)
			opts.Threads = th
			opts.Closers = append(opts.Closers, c)
			opts.Verify = true
			s := New(opts)

			p := simplePolicy()
			want := mustCompile(t, p, s.Registry())
			s.SetPolicy(p)
			s.Start(mode)

			if s.State() != StateStarted {
				t.Errorf("State() = %v, want %v", s.State(), StateStarted)
			}
			if k.nnpCalls != 1 || k.installs != 1 {
				t.Errorf("got %d no_new_privs calls and %d installs, want 1 and 1", k.nnpCalls, k.installs)
			}
			if k.mode != mode {
				t.Errorf("installed in mode %v, want %v", k.mode, mode)
			}
			if !bytes.Equal(k.code, want.Bytecode()) {
				t.Errorf("installed filter differs from the compiled program")
			}
			if !th.closed || !c.closed {
				t.Errorf("setup handles not released: threads=%t closer=%t", th.closed, c.closed)
			}
			if !s.Registry().Frozen() {
				t.Errorf("registry not frozen after Start")
			}
		})
	}
}
