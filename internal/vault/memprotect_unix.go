//go:build linux || darwin

package vault

import "syscall"

// lockMemory pins the slice's pages so key material cannot be swapped to
// disk. Best-effort: the process may lack CAP_IPC_LOCK, and failure is
// silently ignored.
func lockMemory(b []byte) {
	_ = syscall.Mlock(b)
}

// unlockMemory releases pages pinned by lockMemory. Best-effort.
func unlockMemory(b []byte) {
	_ = syscall.Munlock(b)
}

// disableCoreDumps sets RLIMIT_CORE to 0 so the master key cannot end up in
// a core dump. Best-effort.
func disableCoreDumps() {
	_ = syscall.Setrlimit(syscall.RLIMIT_CORE, &syscall.Rlimit{Cur: 0, Max: 0})
}
