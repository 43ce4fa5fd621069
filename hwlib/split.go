// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package hwlib

import (
	"fmt"

	"github.com/db47h/rvsim"
)

// SplitKind is the kind of a SplitState.
//
type SplitKind uint8

// Splitter states.
//
const (
	SplitEmpty SplitKind = iota // nothing pending
	SplitHalf                   // one byte pending
	SplitFull                   // one 16 bits word pending
)

// A SplitState is the state of a Splitter: Empty, Half(byte) or Full(word).
// The zero value is Empty.
//
type SplitState struct {
	kind SplitKind
	word uint16 // Half: pending byte in the low 8 bits
}

// EmptyState returns the Empty state.
//
func EmptyState() SplitState { return SplitState{} }

// HalfState returns the Half state with b pending.
//
func HalfState(b uint8) SplitState { return SplitState{SplitHalf, uint16(b)} }

// FullState returns the Full state with w pending.
//
func FullState(w uint16) SplitState { return SplitState{SplitFull, w} }

// Kind returns the state kind.
//
func (s SplitState) Kind() SplitKind { return s.kind }

// Byte returns the pending byte of a Half state.
//
func (s SplitState) Byte() uint8 { return uint8(s.word) }

// Word returns the pending word of a Full state.
//
func (s SplitState) Word() uint16 { return s.word }

func (s SplitState) String() string {
	switch s.kind {
	case SplitHalf:
		return fmt.Sprintf("Half(%#04x)", s.word)
	case SplitFull:
		return fmt.Sprintf("Full(%#06x)", s.word)
	}
	return "Empty"
}

// Ready returns the upstream readiness in state s. A new word is accepted only
// when nothing is pending, whatever the downstream readiness.
//
func (s SplitState) Ready() bool { return s.kind == SplitEmpty }

// Offer returns the downstream item in state s given the upstream item of the
// current tick. From Empty, the low byte of an incoming word is forwarded
// in the same tick.
//
func (s SplitState) Offer(in rvsim.Item[uint16]) rvsim.Item[uint8] {
	switch s.kind {
	case SplitHalf, SplitFull:
		return rvsim.Some(uint8(s.word))
	}
	if w, ok := in.Get(); ok {
		return rvsim.Some(uint8(w))
	}
	return rvsim.None[uint8]()
}

// Next returns the state following s given the downstream readiness and the
// upstream word accepted in the current tick.
//
//	state    ready  in       next
//	Empty    -      None     Empty
//	Empty    true   Some(w)  Half(w>>8)   (low byte sent in this tick)
//	Empty    false  Some(w)  Full(w)
//	any      false  -        unchanged
//	Full(w)  true   -        Half(w>>8)
//	Half(b)  true   None     Empty
//	Half(b)  true   Some(w)  Full(w)
//
func (s SplitState) Next(ready bool, in rvsim.Item[uint16]) SplitState {
	w, ok := in.Get()
	switch s.kind {
	case SplitEmpty:
		switch {
		case !ok:
			return s
		case ready:
			return HalfState(uint8(w >> 8))
		default:
			return FullState(w)
		}
	case SplitFull:
		if !ready {
			return s
		}
		return HalfState(uint8(s.word >> 8))
	case SplitHalf:
		switch {
		case !ready:
			return s
		case ok:
			return FullState(w)
		default:
			return EmptyState()
		}
	}
	panic("invalid splitter state " + s.String())
}

// A Splitter converts a stream of 16 bits words into a stream of bytes, low
// byte first.
//
//	Upstream ready: state is Empty
//	Downstream item: see SplitState.Offer
//
// Every accepted word yields exactly two bytes. Acceptance only depends on
// the Splitter being empty: a word arriving while downstream is stalled is
// held whole, which makes the Splitter a one word skid buffer. A word offered
// while the Splitter is in Half is not taken until it is back in Empty, so
// the Half to Full row of SplitState.Next is never reached by a Splitter.
//
type Splitter struct {
	in    *rvsim.Stream[uint16]
	out   *rvsim.Stream[uint8]
	state SplitState
}

// NewSplitter returns a new Splitter consuming in. The Splitter is clocked by
// the domain of in.
//
func NewSplitter(name string, in *rvsim.Stream[uint16]) *Splitter {
	d := in.Domain()
	s := &Splitter{in: in}
	s.out = rvsim.NewStream[uint8](d, name, s)
	in.Consume(s)
	d.Attach(s)
	return s
}

// Out returns the downstream stream.
//
func (s *Splitter) Out() *rvsim.Stream[uint8] { return s.out }

// State returns the splitter state.
//
func (s *Splitter) State() SplitState { return s.state }

// Ready implements rvsim.Part.
//
func (s *Splitter) Ready() { s.in.SetReady(s.state.Ready()) }

// Offer implements rvsim.Part.
//
func (s *Splitter) Offer() { s.out.Offer(s.state.Offer(s.in.Item())) }

// Commit implements rvsim.Part.
//
func (s *Splitter) Commit(rst bool) {
	if rst {
		s.state = EmptyState()
		return
	}
	// only latch a word the producer saw accepted. In Half, upstream is not
	// ready and the word on offer stays with the producer.
	in := rvsim.None[uint16]()
	if s.in.Fire() {
		in = s.in.Item()
	}
	s.state = s.state.Next(s.out.Ready(), in)
}
