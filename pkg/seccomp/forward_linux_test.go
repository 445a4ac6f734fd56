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
	"testing"

	"golang.org/x/sys/unix"

	"github.com/walteh/bpfsandbox/pkg/abi/linux"
)

func TestForwardSyscall(t *testing.T) {
	for _, test := range []struct {
		desc string
		nr   uintptr
		args []uint64
		want int64
	}{
		{
			desc: "getpid",
			nr:   unix.SYS_GETPID,
			want: int64(unix.Getpid()),
		},
		{
			desc: "close bad fd",
			nr:   unix.SYS_CLOSE,
			args: []uint64{uint64(^uint32(0))},
			want: -int64(unix.EBADF),
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			data := linux.SeccompData{Nr: int32(test.nr), Arch: AuditArch}
			data.SetArgs(test.args...)
			if got := ForwardSyscall(data); got != test.want {
				t.Errorf("ForwardSyscall(%s) = %d, want %d", SyscallName(test.nr), got, test.want)
			}
		})
	}
}
