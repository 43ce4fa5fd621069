// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package fifo provides a bounded queue with independent write and read
// ports, suitable for crossing clock domains in a simulation.
//
// The write port is driven by the writer domain: it reports a full flag and
// accepts at most one item per write tick. The read port is driven by the
// reader domain: it exposes the oldest item, if any, and pops it when
// acknowledged. Both ports may be used from different goroutines.
//
package fifo

import (
	"sync"

	"github.com/db47h/rvsim"
	"github.com/pkg/errors"
)

// MaxAddrWidth is the largest supported address width.
//
const MaxAddrWidth = 30

// ErrCapacity is the cause of errors returned by New for inconsistent
// capacity parameters.
//
var ErrCapacity = errors.New("invalid queue capacity")

// A Queue is a bounded FIFO queue.
//
type Queue[T any] struct {
	mu    sync.Mutex
	buf   []T
	head  int // read slot
	n     int // occupancy
	width int
}

// New returns a new queue holding up to depth items. addrWidth is the width
// in bits of the queue's slot addresses: depth must not exceed 1<<addrWidth.
// addrWidth may be larger than strictly needed.
//
func New[T any](depth, addrWidth int) (*Queue[T], error) {
	switch {
	case depth < 1:
		return nil, errors.Wrapf(ErrCapacity, "depth %d", depth)
	case addrWidth < 1 || addrWidth > MaxAddrWidth:
		return nil, errors.Wrapf(ErrCapacity, "address width %d out of range [1, %d]", addrWidth, MaxAddrWidth)
	case depth > 1<<uint(addrWidth):
		return nil, errors.Wrapf(ErrCapacity, "depth %d does not fit in %d address bits", depth, addrWidth)
	}
	return &Queue[T]{buf: make([]T, depth), width: addrWidth}, nil
}

// Depth returns the queue capacity.
//
func (q *Queue[T]) Depth() int { return len(q.buf) }

// AddrWidth returns the address width the queue was built with.
//
func (q *Queue[T]) AddrWidth() int { return q.width }

// Len returns the number of items in the queue.
//
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Full returns true if the queue cannot accept a write.
//
func (q *Queue[T]) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n == len(q.buf)
}

// Write appends the item to the queue if present and if the queue is not
// full. It returns true if the item was stored.
//
func (q *Queue[T]) Write(i rvsim.Item[T]) bool {
	v, ok := i.Get()
	if !ok {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == len(q.buf) {
		return false
	}
	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
	return true
}

// Front returns the oldest item in the queue or an empty item if the queue is
// empty.
//
func (q *Queue[T]) Front() rvsim.Item[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == 0 {
		return rvsim.None[T]()
	}
	return rvsim.Some(q.buf[q.head])
}

// Ack pops the oldest item if consumed is true and the queue is not empty. It
// returns true if an item was removed.
//
func (q *Queue[T]) Ack(consumed bool) bool {
	if !consumed {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == 0 {
		return false
	}
	var zero T
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return true
}

// ResetWrite resets the write port. Items not yet read are discarded.
//
func (q *Queue[T]) ResetWrite() { q.clear() }

// ResetRead resets the read port. Items not yet read are discarded.
//
func (q *Queue[T]) ResetRead() { q.clear() }

func (q *Queue[T]) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	for i := range q.buf {
		q.buf[i] = zero
	}
	q.n = 0
}
