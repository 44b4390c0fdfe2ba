//go:build windows

package session

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func lockMemory(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	return windows.VirtualLock(uintptr(unsafe.Pointer(&b[0])), uintptr(len(b))) == nil
}

func unlockMemory(b []byte) {
	if len(b) == 0 {
		return
	}
	_ = windows.VirtualUnlock(uintptr(unsafe.Pointer(&b[0])), uintptr(len(b)))
}
