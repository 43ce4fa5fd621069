// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwtest

import (
	"github.com/db47h/rvsim"
	"github.com/db47h/rvsim/hwlib"
	"github.com/pkg/errors"
)

// A Feeder is a source offering a fixed sequence of items. Once an item is
// offered, it is offered on every tick until accepted.
//
type Feeder[T any] struct {
	*hwlib.Source[T]
	items    []T
	sent     int
	offering bool
	gap      func() bool
}

// NewFeeder returns a new Feeder in domain d. If gap is not nil, it is called
// before offering each item and the Feeder idles for one tick when it returns
// true.
//
func NewFeeder[T any](d *rvsim.Domain, name string, items []T, gap func() bool) *Feeder[T] {
	f := &Feeder[T]{items: items, gap: gap}
	f.Source = hwlib.NewSource(d, name, f.next, f.accepted)
	return f
}

func (f *Feeder[T]) next() rvsim.Item[T] {
	switch {
	case f.offering:
	case f.sent == len(f.items):
		return rvsim.None[T]()
	case f.gap != nil && f.gap():
		return rvsim.None[T]()
	default:
		f.offering = true
	}
	return rvsim.Some(f.items[f.sent])
}

func (f *Feeder[T]) accepted(T) {
	f.sent++
	f.offering = false
}

// Sent returns the number of items accepted downstream.
//
func (f *Feeder[T]) Sent() int { return f.sent }

// Done returns true once all items have been accepted.
//
func (f *Feeder[T]) Done() bool { return f.sent == len(f.items) }

// A Scoreboard checks that items come out of a pipeline exactly once and in
// the expected order.
//
type Scoreboard[T comparable] struct {
	want []T
	recv int
}

// Expect appends vs to the expected output sequence.
//
func (s *Scoreboard[T]) Expect(vs ...T) {
	s.want = append(s.want, vs...)
}

// Check consumes v from the expected sequence. It returns an error if v is not
// the next expected item.
//
func (s *Scoreboard[T]) Check(v T) error {
	if len(s.want) == 0 {
		return errors.Errorf("item #%d: unexpected %v, nothing pending", s.recv, v)
	}
	if s.want[0] != v {
		return errors.Errorf("item #%d: got %v, expected %v", s.recv, v, s.want[0])
	}
	s.want = s.want[1:]
	s.recv++
	return nil
}

// Pending returns the expected items not received yet.
//
func (s *Scoreboard[T]) Pending() []T { return s.want }

// Received returns the number of items checked successfully.
//
func (s *Scoreboard[T]) Received() int { return s.recv }
