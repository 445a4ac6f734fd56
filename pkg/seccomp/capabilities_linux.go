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

//go:build linux

package seccomp

import (
	"github.com/moby/sys/capability"

	"github.com/walteh/bpfsandbox/pkg/abi/linux"
	"github.com/walteh/bpfsandbox/pkg/log"
)

// DetectCapabilities probes the running system.
func DetectCapabilities(k Kernel) Capabilities {
	caps := Capabilities{
		Filter: k.SupportsFilter(),
		TSync:  k.SupportsTSync(),
	}
	if nnp, err := prctlFlag(linux.PR_GET_NO_NEW_PRIVS); err == nil {
		caps.NoNewPrivs = nnp == 1
	} else {
		log.Debugf("PR_GET_NO_NEW_PRIVS failed: %v", err)
	}
	if mode, err := prctlFlag(linux.PR_GET_SECCOMP); err == nil {
		caps.Mode = mode
	} else {
		log.Debugf("PR_GET_SECCOMP failed: %v", err)
	}
	c, err := capability.NewPid2(0)
	if err == nil {
		err = c.Load()
	}
	if err != nil {
		log.Debugf("Reading capabilities failed: %v", err)
		return caps
	}
	caps.SysAdmin = c.Get(capability.EFFECTIVE, capability.CAP_SYS_ADMIN)
	return caps
}
