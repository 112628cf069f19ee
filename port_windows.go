//go:build windows

package iocp

import (
	"os"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/windows"
)

// New creates a completion port allowing at most concurrentThreads goroutines
// to run against it concurrently. Zero means one thread per processor.
//
// A Port is safe for concurrent use. To share one across worker goroutines
// with deterministic teardown, wrap it with reference.Share: the last release
// closes the kernel handle.
func New(concurrentThreads uint32) (*Port, error) {
	cphandle, createErr := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, concurrentThreads)
	if createErr != nil {
		return nil, errors.New(
			"iocp: create completion port failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithWrap(os.NewSyscallError("create_io_completion_port", createErr)),
		)
	}
	port := &Port{}
	port.handle.Store(uintptr(cphandle))
	return port, nil
}

// Port owns one kernel completion port handle. The handle is immutable after
// creation, all mutating state lives in the kernel, so every method may be
// called from any goroutine without locking.
type Port struct {
	handle atomic.Uintptr
}

// Fd exposes the raw handle for callers that issue asynchronous operations
// themselves.
func (port *Port) Fd() uintptr {
	return port.handle.Load()
}

func (port *Port) fd() windows.Handle {
	return windows.Handle(port.handle.Load())
}

// Associate binds an externally opened overlapped handle (file, socket, pipe)
// to this port. Every future completion for the handle carries completionKey.
// A handle already bound to another port cannot be rebound.
func (port *Port) Associate(handle windows.Handle, completionKey uintptr) error {
	cphandle := port.fd()
	if cphandle == windows.InvalidHandle {
		return ErrClosed
	}
	if _, associateErr := windows.CreateIoCompletionPort(handle, cphandle, completionKey, 0); associateErr != nil {
		return errors.New(
			"iocp: associate handle failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithWrap(os.NewSyscallError("create_io_completion_port", associateErr)),
		)
	}
	return nil
}

// Get blocks until one completion packet is available or the timeout elapses.
//
// Outcomes:
//   - a packet was dequeued: its status is returned;
//   - the wait elapsed: ErrTimedOut;
//   - a packet was dequeued for a failed operation: *CompletionFailure,
//     whose Status still carries the operation context pointer;
//   - the wait itself failed (including the port handle being closed by
//     another goroutine, the deliberate shutdown path): a wrapped host error.
func (port *Port) Get(timeout time.Duration) (status CompletionStatus, err error) {
	cphandle := port.fd()
	if cphandle == windows.InvalidHandle {
		err = ErrClosed
		return
	}
	var (
		qty        uint32
		key        uintptr
		overlapped *windows.Overlapped
	)
	getErr := windows.GetQueuedCompletionStatus(cphandle, &qty, &key, &overlapped, millis(timeout))
	if getErr != nil {
		if overlapped != nil {
			// The packet was still delivered; surface it so the caller can
			// reclaim the context block.
			err = &CompletionFailure{
				Status: CompletionStatus{
					BytesTransferred: qty,
					CompletionKey:    key,
					Overlapped:       unsafe.Pointer(overlapped),
				},
				Cause: os.NewSyscallError("get_queued_completion_status", getErr),
			}
			return
		}
		if errno, ok := getErr.(syscall.Errno); ok && errno == windows.WAIT_TIMEOUT {
			err = ErrTimedOut
			return
		}
		err = errors.New(
			"iocp: get queued completion status failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithWrap(os.NewSyscallError("get_queued_completion_status", getErr)),
		)
		return
	}
	status = CompletionStatus{
		BytesTransferred: qty,
		CompletionKey:    key,
		Overlapped:       unsafe.Pointer(overlapped),
	}
	return
}

// GetMany drains up to len(statuses) packets with a single wait, amortizing
// the per-packet wakeup under load. It blocks until at least one packet is
// available or the timeout elapses, fills statuses in kernel order and
// returns the count filled. Slots beyond the count are left untouched.
//
// The kernel writes fixed-size entry records, not statuses, so the call
// allocates a scratch buffer of entries and translates on exit.
func (port *Port) GetMany(statuses []CompletionStatus, timeout time.Duration) (int, error) {
	if len(statuses) == 0 {
		return 0, ErrEmptyStatuses
	}
	cphandle := port.fd()
	if cphandle == windows.InvalidHandle {
		return 0, ErrClosed
	}
	entries := make([]overlappedEntry, len(statuses))
	var removed uint32
	if getErr := getQueuedCompletionStatusEx(cphandle, entries, &removed, millis(timeout), false); getErr != nil {
		if errno, ok := getErr.(syscall.Errno); ok && errno == windows.WAIT_TIMEOUT {
			return 0, ErrTimedOut
		}
		return 0, errors.New(
			"iocp: get queued completion statuses failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithWrap(os.NewSyscallError("get_queued_completion_status_ex", getErr)),
		)
	}
	n := int(removed)
	for i := 0; i < n; i++ {
		entry := &entries[i]
		statuses[i] = CompletionStatus{
			BytesTransferred: entry.bytesTransferred,
			CompletionKey:    entry.completionKey,
			Overlapped:       unsafe.Pointer(entry.overlapped),
		}
	}
	return n, nil
}

// Post injects a synthetic completion packet as if it had come from real I/O.
// Used for cross-goroutine signaling: waking an idle worker, requesting
// shutdown, carrying arbitrary application data. Fields are transported
// verbatim; the pointee of status.Overlapped, if any, must stay alive until a
// Get delivers it.
func (port *Port) Post(status CompletionStatus) error {
	cphandle := port.fd()
	if cphandle == windows.InvalidHandle {
		return ErrClosed
	}
	overlapped := (*windows.Overlapped)(status.Overlapped)
	if postErr := windows.PostQueuedCompletionStatus(cphandle, status.BytesTransferred, status.CompletionKey, overlapped); postErr != nil {
		return errors.New(
			"iocp: post queued completion status failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithWrap(os.NewSyscallError("post_queued_completion_status", postErr)),
		)
	}
	return nil
}

// Close releases the kernel handle exactly once; later calls are no-ops.
// Goroutines blocked in Get or GetMany at that moment have their waits fail
// with a host error, which is the documented way to terminate workers that
// wait without a timeout.
func (port *Port) Close() error {
	handle := windows.Handle(port.handle.Swap(uintptr(windows.InvalidHandle)))
	if handle == windows.InvalidHandle {
		return nil
	}
	if closeErr := windows.CloseHandle(handle); closeErr != nil {
		return errors.New(
			"iocp: close completion port failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithWrap(os.NewSyscallError("close_handle", closeErr)),
		)
	}
	return nil
}

// millis converts a timeout to the milliseconds wait argument. Negative means
// wait forever. Positive sub-millisecond values round up so a finite wait is
// never turned into a zero poll.
func millis(timeout time.Duration) uint32 {
	if timeout < 0 {
		return windows.INFINITE
	}
	ms := timeout.Milliseconds()
	if ms == 0 && timeout > 0 {
		ms = 1
	}
	if ms >= int64(windows.INFINITE) {
		return windows.INFINITE - 1
	}
	return uint32(ms)
}
