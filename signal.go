// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package rvsim

// wire is a value driven at most once per tick of its domain. Reading a wire
// that has not been driven in the current tick is an evaluation order bug.
//
type wire[T any] struct {
	d    *Domain
	name string
	v    T
	at   uint64 // domain epoch at which v was driven
}

func (w *wire[T]) set(v T) {
	if w.at == w.d.epoch {
		panic("wire " + w.name + " driven twice in the same tick")
	}
	w.v, w.at = v, w.d.epoch
}

func (w *wire[T]) get() T {
	if w.at != w.d.epoch {
		panic("wire " + w.name + " read before being driven")
	}
	return w.v
}

func (w *wire[T]) driven() bool {
	return w.at == w.d.epoch
}

// A Signal is a single boolean driven by a consumer and observed by its
// producer within the same tick.
//
// Set may be called once per tick. Get panics if the signal has not been set
// yet in the current tick: a part whose output depends on a signal must be
// evaluated after the part driving it.
//
type Signal struct {
	w wire[bool]
}

// NewSignal returns a new signal clocked by d.
//
func NewSignal(d *Domain, name string) *Signal {
	return &Signal{wire[bool]{d: d, name: name}}
}

// Set drives the signal for the current tick.
//
func (s *Signal) Set(v bool) { s.w.set(v) }

// Get returns the value driven in the current tick.
//
func (s *Signal) Get() bool { return s.w.get() }
