//go:build !linux && !darwin && !freebsd && !windows

package session

func lockMemory(_ []byte) bool { return false }

func unlockMemory(_ []byte) {}
