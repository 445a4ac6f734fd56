//go:build darwin

package memutil

// Darwin Plan:
// MapSlice is implemented with mmap(MAP_ANON|MAP_PRIVATE), which Darwin
// supports directly, so no stub is needed.
//
// Notes:
// 1. CreateMemFD (memfd_create(2)) was removed; no caller needs a file
//    descriptor backed by anonymous memory.
// 2. Mappings are never handed to the kernel as filter programs on Darwin,
//    since seccomp does not exist there. They are still useful for tests.
