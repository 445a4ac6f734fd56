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

// Package seccomp compiles system call policies into seccomp-bpf programs,
// checks the programs against their policies, and installs them.
//
// A Policy maps each system call number to a ResultExpr: Allow, Deny with an
// errno, Trap to a registered handler, or a Conditional on the call's
// arguments. Compile lowers a policy into a bpf.Program; Verify runs the
// program on sampled inputs and compares it with Evaluate; Sandbox ties the
// two together and installs the result with seccomp(2).
//
// Two properties of Go processes matter here:
//
//   - A Go process always runs several threads, so SingleThreaded starts
//     only succeed in processes that are not running the Go runtime's
//     usual helper threads. MultiThreaded, which relies on
//     SECCOMP_FILTER_FLAG_TSYNC, is the mode to use.
//   - SECCOMP_RET_TRAP delivers SIGSYS, which the Go runtime treats as a
//     fatal signal. Routing SIGSYS to TrapRegistry.Dispatch requires a
//     signal handler outside this package. Trap handlers may only make
//     system calls the installed policy allows.
//
// The policy must also allow every system call the Go runtime makes after
// installation (futex, mmap, madvise, sigaltstack, clock_gettime and so on),
// or the process will fail in the runtime rather than in user code.
package seccomp
