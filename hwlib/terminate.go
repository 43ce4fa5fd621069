// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwlib

import "github.com/db47h/rvsim"

// A Block terminates a stream without ever consuming from it. Backpressure
// propagates upstream forever.
//
//	Upstream ready: false
//
type Block[T any] struct {
	in *rvsim.Stream[T]
}

// NewBlock returns a new Block consuming in.
//
func NewBlock[T any](in *rvsim.Stream[T]) *Block[T] {
	b := &Block[T]{in: in}
	in.Consume(b)
	in.Domain().Attach(b)
	return b
}

// Ready implements rvsim.Part.
//
func (b *Block[T]) Ready() { b.in.SetReady(false) }
func (b *Block[T]) Offer() {}
func (b *Block[T]) Commit(bool) {}

// A Drain terminates a stream by consuming and discarding every item.
//
//	Upstream ready: true
//
type Drain[T any] struct {
	in *rvsim.Stream[T]
	n  uint64
}

// NewDrain returns a new Drain consuming in.
//
func NewDrain[T any](in *rvsim.Stream[T]) *Drain[T] {
	d := &Drain[T]{in: in}
	in.Consume(d)
	in.Domain().Attach(d)
	return d
}

// Ready implements rvsim.Part.
//
func (d *Drain[T]) Ready() { d.in.SetReady(true) }
func (d *Drain[T]) Offer() {}

// Commit implements rvsim.Part.
//
func (d *Drain[T]) Commit(bool) {
	if d.in.Fire() {
		d.n++
	}
}

// Count returns the number of items discarded so far.
//
func (d *Drain[T]) Count() uint64 { return d.n }
