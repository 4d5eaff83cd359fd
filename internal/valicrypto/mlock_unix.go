//go:build !windows

package valicrypto

import (
	"golang.org/x/sys/unix"
)

// mlock pins the pages holding data so they cannot be swapped out.
// Reports whether the lock took effect.
func mlock(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return unix.Mlock(data) == nil
}

// munlock releases pages pinned by mlock.
func munlock(data []byte) {
	if len(data) == 0 {
		return
	}
	_ = unix.Munlock(data)
}
