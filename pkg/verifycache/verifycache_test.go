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

package verifycache

import (
	"errors"
	"sync"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/walteh/bpfsandbox/pkg/bpf"
	"github.com/walteh/bpfsandbox/pkg/seccomp"
)

func compile(t *testing.T, p seccomp.Policy) bpf.Program {
	t.Helper()
	prog, err := seccomp.Compile(p, nil)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return prog
}

func TestFingerprint(t *testing.T) {
	a := seccomp.NewRulePolicy(seccomp.Deny{Errno: unix.EPERM}).Set(0, seccomp.Allow{})
	b := seccomp.NewRulePolicy(seccomp.Deny{Errno: unix.EPERM}).Set(1, seccomp.Allow{})
	progA, progB := compile(t, a), compile(t, b)

	if Fingerprint(progA, a) != Fingerprint(compile(t, a), a) {
		t.Errorf("fingerprint is not deterministic")
	}
	if Fingerprint(progA, a) == Fingerprint(progB, b) {
		t.Errorf("different policies share a fingerprint")
	}
	if Fingerprint(progA, a) == Fingerprint(progA, b) {
		t.Errorf("fingerprint ignores the policy")
	}
}

func TestRecord(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	p := seccomp.NewRulePolicy(seccomp.Allow{})
	k := Fingerprint(compile(t, p), p)

	if ok, err := c.Verified(k); err != nil || ok {
		t.Fatalf("Verified() = %t, %v before Record; want false, nil", ok, err)
	}
	if err := c.Record(k); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := c.Record(k); err != nil {
		t.Fatalf("second Record failed: %v", err)
	}
	if ok, err := c.Verified(k); err != nil || !ok {
		t.Errorf("Verified() = %t, %v after Record; want true, nil", ok, err)
	}

	// A second handle on the same directory sees the record.
	c2, err := Open(c.Dir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if ok, err := c2.Verified(k); err != nil || !ok {
		t.Errorf("Verified() through a new handle = %t, %v; want true, nil", ok, err)
	}
}

func TestVerify(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	p := seccomp.NewRulePolicy(seccomp.Deny{Errno: unix.EPERM}).Set(0, seccomp.Allow{})
	prog := compile(t, p)

	hit, err := c.Verify(prog, p)
	if err != nil || hit {
		t.Fatalf("first Verify = %t, %v; want a miss", hit, err)
	}
	hit, err = c.Verify(prog, p)
	if err != nil || !hit {
		t.Errorf("second Verify = %t, %v; want a hit", hit, err)
	}

	// A program that does not implement the policy is never recorded.
	other := seccomp.NewRulePolicy(seccomp.Allow{})
	if _, err := c.Verify(prog, other); !errors.Is(err, seccomp.ErrMismatch) {
		t.Errorf("Verify of a mismatched program returned %v, want %v", err, seccomp.ErrMismatch)
	}
	if ok, _ := c.Verified(Fingerprint(prog, other)); ok {
		t.Errorf("mismatched program was recorded")
	}
}

func TestConcurrentRecord(t *testing.T) {
	dir := t.TempDir()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := Open(dir)
			if err != nil {
				errs <- err
				return
			}
			p := seccomp.NewRulePolicy(seccomp.Allow{}).Set(uintptr(i%2), seccomp.Deny{Errno: unix.EPERM})
			prog, err := seccomp.Compile(p, nil)
			if err != nil {
				errs <- err
				return
			}
			if err := c.Record(Fingerprint(prog, p)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
