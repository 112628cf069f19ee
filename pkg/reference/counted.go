// Package reference shares one closable value, typically a completion port,
// across goroutines: atomic reference counting with the close performed
// exactly once by the last release.
package reference

import (
	"io"
	"reflect"
	"sync/atomic"
)

// Share wraps value with a count of one. Every Retain must be paired with a
// Release; the Release that drops the count to zero closes the value.
func Share[E io.Closer](value E) *Counted[E] {
	if reflect.ValueOf(value).IsNil() {
		panic("reference: value is nil")
	}
	counted := &Counted[E]{value: value}
	counted.count.Store(1)
	return counted
}

type Counted[E io.Closer] struct {
	value  E
	count  atomic.Int64
	closed atomic.Bool
}

// Retain takes one more reference and hands the value out, usually to a
// worker goroutine about to block on it.
func (counted *Counted[E]) Retain() E {
	counted.count.Add(1)
	return counted.value
}

// Value reads the value without taking a reference.
func (counted *Counted[E]) Value() E {
	return counted.value
}

func (counted *Counted[E]) Count() int64 {
	return counted.count.Load()
}

// Release drops one reference. The value is closed when the count reaches
// zero, and only once even if releases race or overshoot.
func (counted *Counted[E]) Release() error {
	if counted.count.Add(-1) > 0 {
		return nil
	}
	if counted.closed.CompareAndSwap(false, true) {
		return counted.value.Close()
	}
	return nil
}
