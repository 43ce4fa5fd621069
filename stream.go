// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package rvsim

// A Stream is a ready/valid handshake between one producer part and one
// consumer part of the same domain.
//
// The producer drives the item slot with Offer, the consumer drives readiness
// with SetReady. A transfer occurs on a tick iff an item is offered and the
// consumer is ready. The consumer must only rely on the item's value on ticks
// where a transfer occurs.
//
type Stream[T any] struct {
	d     *Domain
	name  string
	item  wire[Item[T]]
	ready *Signal
	prod  Part
	cons  Part
}

// NewStream returns a new stream in domain d, produced by p.
//
// Parts call NewStream from their constructor to create their output stream.
//
func NewStream[T any](d *Domain, name string, p Part) *Stream[T] {
	d.checkOpen()
	s := &Stream[T]{
		d:     d,
		name:  name,
		item:  wire[Item[T]]{d: d, name: name + ".item"},
		ready: NewSignal(d, name+".ready"),
		prod:  p,
	}
	d.streams = append(d.streams, s)
	return s
}

// Consume binds p as the consumer of s. It panics if s already has a
// consumer.
//
func (s *Stream[T]) Consume(p Part) {
	if s.cons != nil {
		panic("stream " + s.name + " already has a consumer")
	}
	s.cons = p
}

// Name returns the stream name.
//
func (s *Stream[T]) Name() string { return s.name }

// Domain returns the domain clocking s.
//
func (s *Stream[T]) Domain() *Domain { return s.d }

// Offer drives the item slot for the current tick.
//
func (s *Stream[T]) Offer(i Item[T]) { s.item.set(i) }

// Item returns the item offered in the current tick.
//
func (s *Stream[T]) Item() Item[T] { return s.item.get() }

// SetReady drives the consumer readiness for the current tick.
//
func (s *Stream[T]) SetReady(r bool) { s.ready.Set(r) }

// Ready returns the consumer readiness for the current tick.
//
func (s *Stream[T]) Ready() bool { return s.ready.Get() }

// Fire returns true if a transfer occurs in the current tick.
//
func (s *Stream[T]) Fire() bool {
	return s.item.get().valid && s.ready.Get()
}

func (s *Stream[T]) streamName() string { return s.name }
func (s *Stream[T]) producer() Part     { return s.prod }
func (s *Stream[T]) consumer() Part     { return s.cons }

func (s *Stream[T]) status() (EventKind, any) {
	if !s.item.driven() || !s.ready.w.driven() {
		return Idle, nil
	}
	i := s.item.get()
	switch {
	case !i.valid:
		return Idle, nil
	case s.ready.Get():
		return Transfer, i.v
	default:
		return Stall, i.v
	}
}

// port is the type independent view of a stream used by the circuit.
type port interface {
	streamName() string
	producer() Part
	consumer() Part
	status() (EventKind, any)
}
