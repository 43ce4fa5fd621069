// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwlib

import (
	"github.com/db47h/rvsim"
	"github.com/db47h/rvsim/fifo"
	"github.com/pkg/errors"
)

// A CDC moves a stream from one domain to another through a bounded queue.
//
//	Upstream ready: queue not full (write domain)
//	Downstream item: oldest queued item (read domain)
//
// Ordering and capacity are those of the underlying fifo.Queue. A reset of
// either domain empties the queue at the end of the tick, whatever the order
// in which the two sides commit: an item written on that tick is discarded.
//
type CDC[T any] struct {
	q  *fifo.Queue[T]
	wr *cdcWriter[T]
	rd *cdcReader[T]
}

type cdcWriter[T any] struct {
	q  *fifo.Queue[T]
	in *rvsim.Stream[T]
	rd *rvsim.Domain
}

func (w *cdcWriter[T]) Ready() { w.in.SetReady(!w.q.Full()) }
func (w *cdcWriter[T]) Offer() {}

func (w *cdcWriter[T]) Commit(rst bool) {
	if rst || w.rd.Resetting() {
		w.q.ResetWrite()
		return
	}
	// the reader may free a slot during this commit: only write what the
	// producer saw accepted.
	if w.in.Fire() {
		w.q.Write(w.in.Item())
	}
}

type cdcReader[T any] struct {
	q   *fifo.Queue[T]
	out *rvsim.Stream[T]
	wr  *rvsim.Domain
}

func (r *cdcReader[T]) Ready() {}
func (r *cdcReader[T]) Offer() { r.out.Offer(r.q.Front()) }

func (r *cdcReader[T]) Commit(rst bool) {
	if rst || r.wr.Resetting() {
		r.q.ResetRead()
		return
	}
	r.q.Ack(r.out.Fire())
}

// NewCDC returns a new CDC consuming in, clocked on its write side by the
// domain of in and producing a stream in domain rd. See fifo.New for the
// depth and addrWidth parameters.
//
func NewCDC[T any](name string, in *rvsim.Stream[T], rd *rvsim.Domain, depth, addrWidth int) (*CDC[T], error) {
	q, err := fifo.New[T](depth, addrWidth)
	if err != nil {
		return nil, errors.Wrap(err, "CDC "+name)
	}
	c := &CDC[T]{
		q:  q,
		wr: &cdcWriter[T]{q: q, in: in, rd: rd},
		rd: &cdcReader[T]{q: q, wr: in.Domain()},
	}
	c.rd.out = rvsim.NewStream[T](rd, name, c.rd)
	in.Consume(c.wr)
	in.Domain().Attach(c.wr)
	rd.Attach(c.rd)
	return c, nil
}

// Out returns the downstream stream.
//
func (c *CDC[T]) Out() *rvsim.Stream[T] { return c.rd.out }

// Len returns the number of queued items.
//
func (c *CDC[T]) Len() int { return c.q.Len() }

// Depth returns the queue capacity.
//
func (c *CDC[T]) Depth() int { return c.q.Depth() }
