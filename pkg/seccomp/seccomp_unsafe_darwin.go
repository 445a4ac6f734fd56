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

//go:build darwin

package seccomp

import "golang.org/x/sys/unix"

// hostKernel reports no seccomp support on Darwin.
type hostKernel struct{}

// SupportsFilter is always false on Darwin.
func (hostKernel) SupportsFilter() bool {
	return false
}

// SupportsTSync is always false on Darwin.
func (hostKernel) SupportsTSync() bool {
	return false
}

// SetNoNewPrivs is not supported on Darwin.
func (hostKernel) SetNoNewPrivs() error {
	return unix.EOPNOTSUPP
}

// InstallFilter is not supported on Darwin.
func (hostKernel) InstallFilter(filter []byte, mode Mode) error {
	return unix.EOPNOTSUPP
}

// DetectCapabilities probes the running system.
func DetectCapabilities(k Kernel) Capabilities {
	return Capabilities{
		Filter: k.SupportsFilter(),
		TSync:  k.SupportsTSync(),
	}
}
