// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package rvsim

// A Part is a clocked component in a circuit.
//
// On every tick of its domain, a part is evaluated in three phases:
//
//	Ready:  drive the readiness of consumed streams. Only persisted state may
//	        be used; items are not available yet.
//	Offer:  drive the item slot of produced streams. Items and readiness of
//	        any stream in the domain may be read.
//	Commit: latch the next state from the resolved signals. If rst is true,
//	        the next state must be the part's initial state.
//
// All parts of all ticking domains complete a phase before any part enters the
// next one. Commit may run concurrently with other parts' Commit.
//
type Part interface {
	Ready()
	Offer()
	Commit(rst bool)
}

// EventKind describes what happened on a stream during one tick.
//
type EventKind int

// Event kinds.
//
const (
	Idle     EventKind = iota // no item offered
	Stall                     // item offered, consumer not ready
	Transfer                  // item offered and consumed
)

func (k EventKind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Stall:
		return "stall"
	case Transfer:
		return "transfer"
	}
	return "unknown"
}

// An Event reports the state of a stream at the end of one tick.
//
type Event struct {
	Step   uint64 // circuit step
	Tick   uint64 // domain tick
	Domain string
	Stream string
	Reset  bool // reset asserted on this tick
	Kind   EventKind
	Value  any // item value, nil when Idle
}

// An Observer is notified of every stream event once the tick is committed.
// Observe is always called from the goroutine running Step. The event must
// not be retained after Observe returns.
//
type Observer interface {
	Observe(ev *Event)
}

// ObserverFunc adapts a function to the Observer interface.
//
type ObserverFunc func(ev *Event)

// Observe implements Observer.
//
func (f ObserverFunc) Observe(ev *Event) { f(ev) }

// Observers fans events out to several observers.
//
type Observers []Observer

// Observe implements Observer.
//
func (os Observers) Observe(ev *Event) {
	for _, o := range os {
		o.Observe(ev)
	}
}
