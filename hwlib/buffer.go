// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwlib

import "github.com/db47h/rvsim"

// A Buffer is a single entry elastic register between a producer and a
// consumer.
//
//	Upstream ready: held is empty
//	Downstream item: held (registered, one tick of latency)
//
// A Buffer never accepts a new item while forwarding the held one, which
// cuts every combinational path between its producer and its consumer. In
// exchange, sustained throughput is one item every other tick.
//
type Buffer[T any] struct {
	in   *rvsim.Stream[T]
	out  *rvsim.Stream[T]
	held rvsim.Item[T]
}

// NewBuffer returns a new Buffer consuming in. The Buffer is clocked by the
// domain of in.
//
func NewBuffer[T any](name string, in *rvsim.Stream[T]) *Buffer[T] {
	d := in.Domain()
	b := &Buffer[T]{in: in}
	b.out = rvsim.NewStream[T](d, name, b)
	in.Consume(b)
	d.Attach(b)
	return b
}

// Out returns the downstream stream.
//
func (b *Buffer[T]) Out() *rvsim.Stream[T] { return b.out }

// Held returns the value held in the register.
//
func (b *Buffer[T]) Held() rvsim.Item[T] { return b.held }

// Ready implements rvsim.Part.
//
func (b *Buffer[T]) Ready() { b.in.SetReady(!b.held.Valid()) }

// Offer implements rvsim.Part.
//
func (b *Buffer[T]) Offer() { b.out.Offer(b.held) }

// Commit implements rvsim.Part.
//
func (b *Buffer[T]) Commit(rst bool) {
	if rst {
		b.held = rvsim.None[T]()
		return
	}
	b.held = BufferNext(b.held, b.out.Ready(), b.in.Item())
}

// BufferNext returns the next state of a Buffer holding held, given the
// downstream readiness and the upstream item of the current tick.
//
//	held   ready  in       next
//	Some   true   -        None
//	Some   false  -        held
//	None   -      Some(v)  Some(v)
//	None   -      None     None
//
func BufferNext[T any](held rvsim.Item[T], ready bool, in rvsim.Item[T]) rvsim.Item[T] {
	if held.Valid() {
		if ready {
			return rvsim.None[T]()
		}
		return held
	}
	return in
}
