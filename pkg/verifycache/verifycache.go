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

// Package verifycache records which compiled programs have been verified
// against their policies, so that repeated runs can skip verification.
//
// Entries are keyed by a BLAKE3 fingerprint of the program bytecode and the
// policy's canonical description. The cache directory may be shared between
// processes; writers hold an exclusive file lock.
package verifycache

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/zeebo/blake3"

	"github.com/walteh/bpfsandbox/pkg/bpf"
	"github.com/walteh/bpfsandbox/pkg/log"
	"github.com/walteh/bpfsandbox/pkg/seccomp"
)

// domain separates these fingerprints from other BLAKE3 uses.
const domain = "bpfsandbox verifycache v1"

// Key identifies a program and the policy it was compiled from.
type Key [32]byte

// String returns the hex encoding of k.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Fingerprint returns the cache key for prog compiled from p.
func Fingerprint(prog bpf.Program, p seccomp.Policy) Key {
	var key [32]byte
	blake3.DeriveKey(domain, nil, key[:])
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic(fmt.Sprintf("verifycache: keyed hash initialization failed: %v", err))
	}
	code := prog.Bytecode()
	desc := seccomp.Describe(p)
	// Length-prefix both parts so that their boundary is unambiguous.
	fmt.Fprintf(h, "%d:", len(code))
	h.Write(code)
	fmt.Fprintf(h, "%d:", len(desc))
	h.Write([]byte(desc))

	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

// Cache is a directory of verification records.
type Cache struct {
	dir string

	// mu serializes users of lock, which is not safe for concurrent use.
	mu   sync.Mutex
	lock *flock.Flock
}

// Open opens the cache in dir, creating it if needed.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, ".lock")),
	}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) path(k Key) string {
	s := k.String()
	return filepath.Join(c.dir, s[:2], s)
}

// Verified reports whether k has been recorded.
func (c *Cache) Verified(k Key) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.RLock(); err != nil {
		return false, fmt.Errorf("locking cache: %w", err)
	}
	defer c.lock.Unlock()

	_, err := os.Stat(c.path(k))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Record marks k as verified.
func (c *Cache) Record(k Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("locking cache: %w", err)
	}
	defer c.lock.Unlock()

	path := c.path(k)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".record-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(k.String() + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	log.Debugf("Recorded verified program %v", k)
	return nil
}

// Verify checks prog against p unless the pair is already recorded, and
// records it when the check passes. It reports whether the cache was hit.
func (c *Cache) Verify(prog bpf.Program, p seccomp.Policy) (bool, error) {
	k := Fingerprint(prog, p)
	ok, err := c.Verified(k)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	if err := seccomp.Verify(prog, p); err != nil {
		return false, err
	}
	return false, c.Record(k)
}
