//go:build linux || darwin || freebsd

package session

import "golang.org/x/sys/unix"

// lockMemory pins b into RAM so the secret is never swapped out.
// Failure (for example RLIMIT_MEMLOCK exhaustion) is not fatal.
func lockMemory(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	return unix.Mlock(b) == nil
}

func unlockMemory(b []byte) {
	if len(b) == 0 {
		return
	}
	_ = unix.Munlock(b)
}
