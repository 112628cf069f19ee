// Package iocp wraps the Windows I/O completion port primitive.
//
// A completion port is a kernel queue that collects notifications of finished
// asynchronous operations. Handles opened for overlapped I/O are bound to a
// port via Associate, after which every completion for the handle is delivered
// as a CompletionStatus to whichever goroutine is blocked in Get or GetMany.
// Synthetic packets can be injected with Post, which is the usual way to wake
// idle workers or to signal shutdown.
//
// The port never owns the operation context block (the OVERLAPPED structure)
// carried by a packet: it transports the pointer verbatim, exactly once, from
// poster to receiver. Keeping the pointee alive across that round trip is the
// caller's contract.
package iocp

import (
	"io"
	"time"
)

// Infinite makes Get and GetMany wait until a completion packet arrives.
// Any negative timeout is treated the same way.
const Infinite time.Duration = -1

// Queue is the dequeue and post surface of a completion port.
//
// Port implements it on Windows. fake.Port implements it everywhere and can
// stand in for handler and worker tests.
type Queue interface {
	io.Closer
	// Get blocks until one completion packet is available or the timeout
	// elapses. A timeout is reported as ErrTimedOut. A packet delivered for
	// a failed asynchronous operation is reported as *CompletionFailure.
	Get(timeout time.Duration) (CompletionStatus, error)
	// GetMany drains up to len(statuses) packets in one wait, returning the
	// count actually filled. Slots beyond the count are left untouched.
	GetMany(statuses []CompletionStatus, timeout time.Duration) (int, error)
	// Post injects a synthetic completion packet.
	Post(status CompletionStatus) error
}
