//go:build windows

package valicrypto

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// mlock pins the pages holding data so they cannot be swapped out.
// Reports whether the lock took effect.
func mlock(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return windows.VirtualLock(uintptr(unsafe.Pointer(&data[0])), uintptr(len(data))) == nil
}

// munlock releases pages pinned by mlock.
func munlock(data []byte) {
	if len(data) == 0 {
		return
	}
	_ = windows.VirtualUnlock(uintptr(unsafe.Pointer(&data[0])), uintptr(len(data)))
}
