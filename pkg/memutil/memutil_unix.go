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

//go:build linux || darwin

// Package memutil provides utilities for working with memory outside the Go
// heap.
package memutil

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MapSlice returns a private, anonymous, read-write mapping of n bytes. The
// memory is not managed by the Go runtime and must be released with Unmap.
func MapSlice(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid mapping size %d", n)
	}
	b, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap(%d): %w", n, err)
	}
	return b, nil
}

// ReadOnly drops write access to a mapping returned by MapSlice.
func ReadOnly(b []byte) error {
	if err := unix.Mprotect(b, unix.PROT_READ); err != nil {
		return fmt.Errorf("mprotect: %w", err)
	}
	return nil
}

// Unmap releases a mapping returned by MapSlice.
func Unmap(b []byte) error {
	return unix.Munmap(b)
}
