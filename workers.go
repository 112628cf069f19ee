package iocp

import (
	"context"
	"runtime"
	"sync"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/rxp"
)

// Handler receives every packet a worker dequeues. err is nil for a normal
// delivery and *CompletionFailure for a packet whose operation failed; the
// failure's Status still carries the context pointer to reclaim.
type Handler func(status CompletionStatus, err error)

// DefaultStopKey marks the synthetic packets Down posts to retire workers.
// Choose another via WithStopKey when the application uses this value.
const DefaultStopKey = ^uintptr(0)

type WorkersOptions struct {
	Count     int
	StopKey   uintptr
	Executors rxp.Executors
}

type WorkersOption func(options *WorkersOptions) (err error)

// WithCount sets the number of dequeue loops.
//
// The default is runtime.NumCPU() * 2.
func WithCount(count int) WorkersOption {
	return func(options *WorkersOptions) error {
		if count > 0 {
			options.Count = count
		}
		return nil
	}
}

// WithStopKey sets the completion key reserved for shutdown packets.
func WithStopKey(key uintptr) WorkersOption {
	return func(options *WorkersOptions) error {
		options.StopKey = key
		return nil
	}
}

// WithExecutors runs workers on a caller-supplied rxp executors instance
// instead of a private one. The caller keeps ownership of its lifecycle.
func WithExecutors(executors rxp.Executors) WorkersOption {
	return func(options *WorkersOptions) error {
		if executors == nil {
			return errors.New("iocp: executors is nil")
		}
		options.Executors = executors
		return nil
	}
}

// NewWorkers builds the servicing layer for a completion queue: a fixed set
// of dequeue loops dispatched through rxp, each blocking in Get and handing
// packets to handler.
func NewWorkers(queue Queue, handler Handler, options ...WorkersOption) (*Workers, error) {
	if queue == nil {
		return nil, errors.New("iocp: queue is nil")
	}
	if handler == nil {
		return nil, errors.New("iocp: handler is nil")
	}
	opts := WorkersOptions{
		Count:   runtime.NumCPU() * 2,
		StopKey: DefaultStopKey,
	}
	for _, option := range options {
		if optErr := option(&opts); optErr != nil {
			return nil, optErr
		}
	}
	workers := &Workers{
		queue:         queue,
		handler:       handler,
		count:         opts.Count,
		stopKey:       opts.StopKey,
		executors:     opts.Executors,
		ownsExecutors: opts.Executors == nil,
	}
	if workers.ownsExecutors {
		workers.executors = rxp.New()
	}
	return workers, nil
}

// Workers services one Queue with count goroutines. Packets posted with the
// stop key retire exactly one worker each; a failed wait (the port was
// closed) retires the worker too.
type Workers struct {
	queue         Queue
	handler       Handler
	count         int
	started       int
	stopKey       uintptr
	executors     rxp.Executors
	ownsExecutors bool
	wg            sync.WaitGroup
	downOnce      sync.Once
}

// Up dispatches the dequeue loops. It does not block.
func (workers *Workers) Up() error {
	ctx := context.Background()
	for i := 0; i < workers.count; i++ {
		workers.wg.Add(1)
		if execErr := workers.executors.Execute(ctx, workers.work); execErr != nil {
			workers.wg.Done()
			workers.started = i
			_ = workers.Down()
			return errors.New(
				"iocp: dispatch worker failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithWrap(execErr),
			)
		}
	}
	workers.started = workers.count
	return nil
}

func (workers *Workers) work() {
	defer workers.wg.Done()
	for {
		status, getErr := workers.queue.Get(Infinite)
		if getErr != nil {
			if IsTimedOut(getErr) {
				continue
			}
			if failure, ok := AsCompletionFailure(getErr); ok {
				workers.handler(failure.Status, getErr)
				continue
			}
			// The wait itself failed: the port handle is gone.
			return
		}
		if status.CompletionKey == workers.stopKey && status.Overlapped == nil {
			return
		}
		workers.handler(status, nil)
	}
}

// Down posts one stop packet per started worker, waits for all loops to
// exit, then closes the private executors when Workers owns them. Posting can
// fail when the port was already closed; workers retire through the failed
// wait in that case, so Down keeps waiting either way. Later calls are no-ops.
func (workers *Workers) Down() (err error) {
	workers.downOnce.Do(func() {
		for i := 0; i < workers.started; i++ {
			if postErr := workers.queue.Post(CompletionStatus{CompletionKey: workers.stopKey}); postErr != nil {
				break
			}
		}
		workers.wg.Wait()
		if workers.ownsExecutors {
			err = workers.executors.CloseGracefully()
		}
	})
	return
}
