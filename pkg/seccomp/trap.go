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
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/walteh/bpfsandbox/pkg/abi/linux"
	"github.com/walteh/bpfsandbox/pkg/log"
)

// TrapID identifies a registered trap. It is carried in the SECCOMP_RET_DATA
// bits of a SECCOMP_RET_TRAP action, so it is at most 16 bits wide. ID 0 is
// never assigned.
type TrapID uint16

// MaxTrapID is the largest assignable trap ID.
const MaxTrapID = TrapID(linux.SECCOMP_RET_DATA)

// TrapFunc handles a trapped system call. Its return value becomes the
// system call's return value; negative values are errnos.
//
// A TrapFunc runs after the filter is installed, on whatever thread made the
// trapped call. It may only make system calls the active filter allows.
type TrapFunc func(data linux.SeccompData, aux any) int64

// TrapEntry is a registered trap.
type TrapEntry struct {
	ID  TrapID
	Fn  TrapFunc
	Aux any
}

// trapTable is an immutable snapshot of the registry.
type trapTable struct {
	entries map[TrapID]TrapEntry
	next    TrapID
	frozen  bool
}

// TrapRegistry maps trap IDs to handlers. Entries are never removed, since an
// installed filter may refer to them until the process exits.
//
// Lookup and Dispatch never block and may be called from any thread.
// Registration copies the table under a mutex, and stops working once the
// registry is frozen.
type TrapRegistry struct {
	mu    sync.Mutex
	table atomic.Pointer[trapTable]

	unknown log.Logger
}

// NewTrapRegistry returns an empty registry.
func NewTrapRegistry() *TrapRegistry {
	r := &TrapRegistry{
		unknown: log.BasicRateLimitedLogger(time.Second),
	}
	r.table.Store(&trapTable{entries: map[TrapID]TrapEntry{}, next: 1})
	return r
}

// Register adds fn and returns the lowest unused ID.
func (r *TrapRegistry) Register(fn TrapFunc, aux any) (TrapID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.table.Load()
	id := t.next
	for ; id != 0; id++ {
		if _, ok := t.entries[id]; !ok {
			break
		}
	}
	if id == 0 {
		return 0, fmt.Errorf("all %d trap IDs are in use", MaxTrapID)
	}
	return id, r.insertLocked(t, id, fn, aux)
}

// RegisterID adds fn under a caller-chosen ID.
func (r *TrapRegistry) RegisterID(id TrapID, fn TrapFunc, aux any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == 0 {
		return fmt.Errorf("trap ID 0 is reserved")
	}
	t := r.table.Load()
	if _, ok := t.entries[id]; ok {
		return fmt.Errorf("trap ID %d is already registered", id)
	}
	return r.insertLocked(t, id, fn, aux)
}

func (r *TrapRegistry) insertLocked(t *trapTable, id TrapID, fn TrapFunc, aux any) error {
	if t.frozen {
		return ErrRegistryFrozen
	}
	if fn == nil {
		return fmt.Errorf("nil handler for trap %d", id)
	}
	nt := &trapTable{
		entries: make(map[TrapID]TrapEntry, len(t.entries)+1),
		next:    t.next,
	}
	for k, v := range t.entries {
		nt.entries[k] = v
	}
	nt.entries[id] = TrapEntry{ID: id, Fn: fn, Aux: aux}
	if id == nt.next {
		nt.next++
	}
	r.table.Store(nt)
	return nil
}

// Freeze stops further registration.
func (r *TrapRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.table.Load()
	if t.frozen {
		return
	}
	r.table.Store(&trapTable{entries: t.entries, next: t.next, frozen: true})
}

// Frozen reports whether Freeze has been called.
func (r *TrapRegistry) Frozen() bool {
	return r.table.Load().frozen
}

// Len returns the number of registered traps.
func (r *TrapRegistry) Len() int {
	return len(r.table.Load().entries)
}

// Lookup returns the entry registered under id.
func (r *TrapRegistry) Lookup(id TrapID) (TrapEntry, bool) {
	e, ok := r.table.Load().entries[id]
	return e, ok
}

// Dispatch runs the handler registered under id on the calling goroutine
// and returns its result. An unknown id yields -ENOSYS.
func (r *TrapRegistry) Dispatch(id TrapID, data linux.SeccompData) (int64, error) {
	e, ok := r.Lookup(id)
	if !ok {
		r.unknown.Warningf("Trap %d is not registered (%v)", id, data)
		return -int64(unix.ENOSYS), fmt.Errorf("%w: %d", ErrUnknownTrap, id)
	}
	return e.Fn(data, e.Aux), nil
}

// DispatchAction dispatches a SECCOMP_RET_TRAP action as returned by a filter.
func (r *TrapRegistry) DispatchAction(a linux.BPFAction, data linux.SeccompData) (int64, error) {
	if a&linux.SECCOMP_RET_ACTION_FULL != linux.SECCOMP_RET_TRAP {
		return 0, fmt.Errorf("action %v is not a trap", a)
	}
	return r.Dispatch(TrapID(a.Data()), data)
}
