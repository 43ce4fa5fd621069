// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwlib

import "github.com/db47h/rvsim"

// A Source produces a stream from a function.
//
//	Downstream item: next()
//
// next is called once per tick. To honor the handshake, it must keep offering
// the same item until it is accepted; accepted, if not nil, is called at the
// end of each tick where a transfer occurs.
//
type Source[T any] struct {
	out      *rvsim.Stream[T]
	next     func() rvsim.Item[T]
	accepted func(v T)
}

// NewSource returns a new Source in domain d.
//
func NewSource[T any](d *rvsim.Domain, name string, next func() rvsim.Item[T], accepted func(v T)) *Source[T] {
	s := &Source[T]{next: next, accepted: accepted}
	s.out = rvsim.NewStream[T](d, name, s)
	d.Attach(s)
	return s
}

// Out returns the produced stream.
//
func (s *Source[T]) Out() *rvsim.Stream[T] { return s.out }

// Ready implements rvsim.Part.
//
func (s *Source[T]) Ready() {}

// Offer implements rvsim.Part.
//
func (s *Source[T]) Offer() { s.out.Offer(s.next()) }

// Commit implements rvsim.Part.
//
func (s *Source[T]) Commit(bool) {
	if s.accepted != nil && s.out.Fire() {
		s.accepted(s.out.Item().Value())
	}
}

// A Sink consumes a stream, with readiness driven by a function.
//
//	Upstream ready: ready()
//	Function: probe(item, fired) on every tick
//
// ready must not depend on the stream's items. probe, if not nil, is called
// at the end of every tick with the item on offer and whether it was
// transferred. When the circuit uses more than one worker, probe may run
// concurrently with other parts.
//
type Sink[T any] struct {
	in    *rvsim.Stream[T]
	ready func() bool
	probe func(i rvsim.Item[T], fired bool)
}

// NewSink returns a new Sink consuming in.
//
func NewSink[T any](in *rvsim.Stream[T], ready func() bool, probe func(i rvsim.Item[T], fired bool)) *Sink[T] {
	s := &Sink[T]{in: in, ready: ready, probe: probe}
	in.Consume(s)
	in.Domain().Attach(s)
	return s
}

// Ready implements rvsim.Part.
//
func (s *Sink[T]) Ready() { s.in.SetReady(s.ready()) }

// Offer implements rvsim.Part.
//
func (s *Sink[T]) Offer() {}

// Commit implements rvsim.Part.
//
func (s *Sink[T]) Commit(bool) {
	if s.probe != nil {
		s.probe(s.in.Item(), s.in.Fire())
	}
}
