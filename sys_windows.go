//go:build windows

package iocp

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// x/sys/windows covers every completion port entry point except the batched
// dequeue, which is bound here directly.
var (
	kernel32                        = windows.NewLazySystemDLL("kernel32.dll")
	procGetQueuedCompletionStatusEx = kernel32.NewProc("GetQueuedCompletionStatusEx")
)

// overlappedEntry matches the kernel's OVERLAPPED_ENTRY record layout.
type overlappedEntry struct {
	completionKey    uintptr
	overlapped       *windows.Overlapped
	internal         uintptr
	bytesTransferred uint32
}

// getQueuedCompletionStatusEx dequeues up to len(entries) packets in one
// wait, storing the count in removed. A zero return from the kernel surfaces
// the last platform error taken directly off the call.
func getQueuedCompletionStatusEx(cphandle windows.Handle, entries []overlappedEntry, removed *uint32, timeout uint32, alertable bool) error {
	var fAlertable uintptr
	if alertable {
		fAlertable = 1
	}
	r1, _, callErr := procGetQueuedCompletionStatusEx.Call(
		uintptr(cphandle),
		uintptr(unsafe.Pointer(&entries[0])),
		uintptr(len(entries)),
		uintptr(unsafe.Pointer(removed)),
		uintptr(timeout),
		fAlertable,
	)
	if r1 == 0 {
		if errno, ok := callErr.(syscall.Errno); ok && errno != 0 {
			return errno
		}
		return syscall.EINVAL
	}
	return nil
}
