package iocp_test

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/iocp"
	"github.com/brickingsoft/iocp/pkg/fake"
)

func TestWorkers(t *testing.T) {
	port := fake.New()
	defer port.Close()

	const posts = 10

	locker := new(sync.Mutex)
	received := make(map[uintptr]int)
	wg := new(sync.WaitGroup)
	wg.Add(posts)

	workers, newErr := iocp.NewWorkers(port, func(status iocp.CompletionStatus, err error) {
		defer wg.Done()
		if err != nil {
			t.Error(err)
			return
		}
		locker.Lock()
		received[status.CompletionKey]++
		locker.Unlock()
	}, iocp.WithCount(3))
	if newErr != nil {
		t.Fatal(newErr)
	}
	if upErr := workers.Up(); upErr != nil {
		t.Fatal(upErr)
	}

	for i := 1; i <= posts; i++ {
		if postErr := port.Post(iocp.CompletionStatus{CompletionKey: uintptr(i)}); postErr != nil {
			t.Fatal(postErr)
		}
	}
	wg.Wait()

	if downErr := workers.Down(); downErr != nil {
		t.Error(downErr)
	}

	if len(received) != posts {
		t.Fatal("received keys:", len(received))
	}
	for key, n := range received {
		if n != 1 {
			t.Error("key", key, "delivered", n, "times")
		}
	}
}

func TestWorkers_CompletionFailure(t *testing.T) {
	port := fake.New()
	defer port.Close()

	block := int64(0)
	posted := iocp.CompletionStatus{CompletionKey: 7, Overlapped: unsafe.Pointer(&block)}
	cause := errors.Define("workers: operation failed")

	wg := new(sync.WaitGroup)
	wg.Add(1)
	workers, newErr := iocp.NewWorkers(port, func(status iocp.CompletionStatus, err error) {
		defer wg.Done()
		if _, ok := iocp.AsCompletionFailure(err); !ok {
			t.Error("want completion failure, got:", err)
			return
		}
		if status != posted {
			t.Error("context pointer lost:", status)
		}
	}, iocp.WithCount(1))
	if newErr != nil {
		t.Fatal(newErr)
	}
	if upErr := workers.Up(); upErr != nil {
		t.Fatal(upErr)
	}

	if postErr := port.PostFailure(posted, cause); postErr != nil {
		t.Fatal(postErr)
	}
	wg.Wait()

	if downErr := workers.Down(); downErr != nil {
		t.Error(downErr)
	}
}

func TestWorkers_DownOnClosedQueue(t *testing.T) {
	port := fake.New()

	workers, newErr := iocp.NewWorkers(port, func(status iocp.CompletionStatus, err error) {
		t.Error("unexpected delivery:", status, err)
	}, iocp.WithCount(2))
	if newErr != nil {
		t.Fatal(newErr)
	}
	if upErr := workers.Up(); upErr != nil {
		t.Fatal(upErr)
	}

	// closing the queue is the termination path: workers retire through
	// their failed waits and Down only has to collect them.
	if closeErr := port.Close(); closeErr != nil {
		t.Fatal(closeErr)
	}
	if downErr := workers.Down(); downErr != nil {
		t.Error(downErr)
	}
}
