// Package fake provides an in-memory completion queue implementing
// iocp.Queue on any OS. It keeps the port's delivery contract, each posted
// packet dequeued exactly once in post order, so handlers and worker layers
// can be tested without a kernel port.
package fake

import (
	"sync"
	"time"

	"github.com/brickingsoft/iocp"
	"github.com/eapache/queue"
)

func New() *Port {
	port := &Port{pending: queue.New()}
	port.wait = sync.NewCond(&port.locker)
	return port
}

// Port is the in-memory stand-in. The zero value is not usable, construct
// with New.
type Port struct {
	locker  sync.Mutex
	wait    *sync.Cond
	pending *queue.Queue
	closed  bool
}

type packet struct {
	status  iocp.CompletionStatus
	failure error
}

func (port *Port) Get(timeout time.Duration) (iocp.CompletionStatus, error) {
	var deadline time.Time
	finite := timeout >= 0
	if finite {
		deadline = time.Now().Add(timeout)
		timer := time.AfterFunc(timeout, func() {
			// Broadcast under the lock, otherwise the wakeup can slip in
			// between a waiter's check and its Wait and be lost.
			port.locker.Lock()
			port.wait.Broadcast()
			port.locker.Unlock()
		})
		defer timer.Stop()
	}
	port.locker.Lock()
	defer port.locker.Unlock()
	for {
		if port.closed {
			return iocp.CompletionStatus{}, iocp.ErrClosed
		}
		if port.pending.Length() > 0 {
			p := port.pending.Remove().(packet)
			if p.failure != nil {
				return iocp.CompletionStatus{}, p.failure
			}
			return p.status, nil
		}
		if finite && !time.Now().Before(deadline) {
			return iocp.CompletionStatus{}, iocp.ErrTimedOut
		}
		port.wait.Wait()
	}
}

func (port *Port) GetMany(statuses []iocp.CompletionStatus, timeout time.Duration) (int, error) {
	if len(statuses) == 0 {
		return 0, iocp.ErrEmptyStatuses
	}
	var deadline time.Time
	finite := timeout >= 0
	if finite {
		deadline = time.Now().Add(timeout)
		timer := time.AfterFunc(timeout, func() {
			port.locker.Lock()
			port.wait.Broadcast()
			port.locker.Unlock()
		})
		defer timer.Stop()
	}
	port.locker.Lock()
	defer port.locker.Unlock()
	for {
		if port.closed {
			return 0, iocp.ErrClosed
		}
		if port.pending.Length() > 0 {
			n := 0
			for n < len(statuses) && port.pending.Length() > 0 {
				p := port.pending.Remove().(packet)
				if p.failure != nil {
					// keep what was already filled, report the failure
					return n, p.failure
				}
				statuses[n] = p.status
				n++
			}
			return n, nil
		}
		if finite && !time.Now().Before(deadline) {
			return 0, iocp.ErrTimedOut
		}
		port.wait.Wait()
	}
}

func (port *Port) Post(status iocp.CompletionStatus) error {
	return port.post(packet{status: status})
}

// PostFailure enqueues a packet for an operation that failed, the way a
// kernel port delivers one: the next Get reports a *iocp.CompletionFailure
// whose Status, context pointer included, is the posted status.
func (port *Port) PostFailure(status iocp.CompletionStatus, cause error) error {
	return port.post(packet{failure: &iocp.CompletionFailure{Status: status, Cause: cause}})
}

func (port *Port) post(p packet) error {
	port.locker.Lock()
	defer port.locker.Unlock()
	if port.closed {
		return iocp.ErrClosed
	}
	port.pending.Add(p)
	port.wait.Signal()
	return nil
}

// Close marks the queue closed and wakes every blocked getter; their waits
// return iocp.ErrClosed, mirroring the real port's shutdown path. Pending
// packets are dropped. Safe to call more than once.
func (port *Port) Close() error {
	port.locker.Lock()
	defer port.locker.Unlock()
	if port.closed {
		return nil
	}
	port.closed = true
	port.wait.Broadcast()
	return nil
}
