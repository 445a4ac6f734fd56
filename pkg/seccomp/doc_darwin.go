//go:build darwin

package seccomp

// --- Darwin Porting Status ---
//
// PROBLEM:
//   Seccomp is a Linux-specific sandboxing mechanism using BPF filters
//   and prctl/seccomp syscalls, none of which exist on Darwin.
//
// LINUX_SPECIFIC:
//   - seccomp(2) and prctl(PR_SET_SECCOMP) in `seccomp_unsafe_linux.go`.
//   - PR_GET_SECCOMP, PR_GET_NO_NEW_PRIVS and capability reads in
//     `capabilities_linux.go`.
//   - Re-issuing trapped calls in `forward_linux.go`.
//
// DARWIN_EQUIVALENT:
//   - macOS Sandbox framework (sandbox-exec, SBPL profiles). Not a filter
//     over syscall numbers, so programs cannot be reused.
//
// CURRENT_APPROACH:
//   - Compiling and verifying policies is platform independent and works.
//   - `seccomp_unsafe_darwin.go` provides a Kernel that reports no filter
//     support; starting a sandbox therefore fails its preconditions and
//     dies instead of running unsandboxed.
//
// IMPACT_IF_STUBBED:
//   No syscall filtering on Darwin. Callers see an explicit failure.
//
// PRIORITY:
//   - LOW
//
// --- End Darwin Porting Status ---
