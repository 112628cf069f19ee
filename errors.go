package iocp

import (
	"github.com/brickingsoft/errors"
)

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "iocp"
)

var (
	// ErrTimedOut reports that a finite wait elapsed with nothing dequeued.
	// Benign: callers polling with a timeout loop on it.
	ErrTimedOut = errors.Define("iocp: wait timed out")
	// ErrClosed reports an operation on a port that was already closed
	// locally.
	ErrClosed = errors.Define("iocp: completion port closed")
	// ErrEmptyStatuses reports a GetMany call with a zero-length buffer.
	ErrEmptyStatuses = errors.Define("iocp: statuses must not be empty")
)

func IsTimedOut(err error) bool {
	return errors.Is(err, ErrTimedOut)
}

func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// CompletionFailure reports a wait that did dequeue a packet, but for an
// asynchronous operation that itself failed. Status still carries the
// operation context pointer: the packet was delivered, so dropping the
// pointer here would leak the caller's context block.
type CompletionFailure struct {
	Status CompletionStatus
	Cause  error
}

func (failure *CompletionFailure) Error() string {
	return "iocp: operation completed with failure: " + failure.Cause.Error()
}

func (failure *CompletionFailure) Unwrap() error {
	return failure.Cause
}

// AsCompletionFailure unwraps err into a *CompletionFailure when the dequeue
// delivered a packet for a failed operation.
func AsCompletionFailure(err error) (*CompletionFailure, bool) {
	var failure *CompletionFailure
	ok := errors.As(err, &failure)
	return failure, ok
}
