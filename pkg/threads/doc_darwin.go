//go:build darwin

package threads

// --- Darwin Porting Status ---
//
// PROBLEM:
//   Thread counting relies on procfs, which Darwin lacks.
//
// LINUX_SPECIFIC:
//   - /proc/self/task and /proc/[pid]/task
//   - st_nlink of the task directory tracking the thread count
//
// DARWIN_EQUIVALENT:
//   - task_threads(2) via the Mach API (not wrapped by x/sys/unix).
//
// CURRENT_APPROACH:
//   - Stubs in `threads_darwin.go` return `unix.EOPNOTSUPP`.
//
// IMPACT_IF_STUBBED:
//   Single-threaded sandbox starts cannot be proven safe and are refused.
//   Nothing is lost in practice since seccomp is unavailable on Darwin.
//
// PRIORITY:
//   - LOW
//
// --- End Darwin Porting Status ---
