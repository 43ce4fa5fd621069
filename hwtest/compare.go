// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package hwtest provides utility functions for testing parts.
//
// A part under test is driven through a thin shell exposing reset, the
// consumer readiness and the producer item as inputs, and the item the
// consumer sees as output.
//
package hwtest

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/db47h/rvsim"
	"github.com/db47h/rvsim/hwlib"
	"github.com/pkg/errors"
)

// A Vector holds the inputs of a part for one tick.
//
type Vector[T any] struct {
	Reset bool          // synchronous reset
	Ready bool          // downstream readiness
	In    rvsim.Item[T] // upstream item
}

func (v Vector[T]) String() string {
	return fmt.Sprintf("rst=%v ready=%v in=%v", v.Reset, v.Ready, v.In)
}

// A Builder mounts a part consuming in and returns the part's output stream.
//
type Builder[T, U any] func(in *rvsim.Stream[T]) (*rvsim.Stream[U], error)

// A Trace records the outputs of a part, one entry per tick.
//
type Trace[U any] struct {
	Out      []rvsim.Item[U] // item offered downstream
	Accepted []bool          // upstream transfer occurred
}

// Run mounts a part with build in a single domain circuit and steps it once
// per vector.
//
func Run[T, U any](build Builder[T, U], vs []Vector[T]) (*Trace[U], error) {
	var (
		cur Vector[T]
		tr  = &Trace[U]{
			Out:      make([]rvsim.Item[U], 0, len(vs)),
			Accepted: make([]bool, 0, len(vs)),
		}
		accepted bool
		out      rvsim.Item[U]
	)

	clk := rvsim.NewDomain("clk", 1, 0)
	clk.SetReset(func() bool { return cur.Reset })
	src := hwlib.NewSource(clk, "in",
		func() rvsim.Item[T] { return cur.In },
		func(T) { accepted = true })
	s, err := build(src.Out())
	if err != nil {
		return nil, errors.Wrap(err, "build part")
	}
	hwlib.NewSink(s,
		func() bool { return cur.Ready },
		func(i rvsim.Item[U], _ bool) { out = i })

	c, err := rvsim.NewCircuit([]*rvsim.Domain{clk})
	if err != nil {
		return nil, err
	}
	defer c.Dispose()

	for _, v := range vs {
		cur, accepted, out = v, false, rvsim.None[U]()
		c.Step()
		tr.Out = append(tr.Out, out)
		tr.Accepted = append(tr.Accepted, accepted)
	}
	return tr, nil
}

// RandomVectors returns n random vectors. Reset is asserted on the first
// vector and then with probability 1/32. Items are drawn with item.
//
func RandomVectors[T any](r *rand.Rand, n int, item func(r *rand.Rand) T) []Vector[T] {
	vs := make([]Vector[T], n)
	for i := range vs {
		vs[i].Reset = i == 0 || r.Intn(32) == 0
		vs[i].Ready = r.Intn(2) == 0
		if r.Intn(2) == 0 {
			vs[i].In = rvsim.Some(item(r))
		}
	}
	return vs
}

// ComparePart drives two parts with the same random inputs for n ticks and
// fails t on the first tick where their outputs differ.
//
func ComparePart[T any, U comparable](t testing.TB, n int, item func(r *rand.Rand) T, part1, part2 Builder[T, U]) {
	t.Helper()

	seed := time.Now().UnixNano()
	vs := RandomVectors(rand.New(rand.NewSource(seed)), n, item)

	tr1, err := Run(part1, vs)
	if err != nil {
		t.Fatal(err)
	}
	tr2, err := Run(part2, vs)
	if err != nil {
		t.Fatal(err)
	}
	for i := range vs {
		if tr1.Out[i] != tr2.Out[i] || tr1.Accepted[i] != tr2.Accepted[i] {
			t.Fatalf("seed %d, tick %d: %v\nExpected out=%v accepted=%v\nGot out=%v accepted=%v",
				seed, i, vs[i], tr1.Out[i], tr1.Accepted[i], tr2.Out[i], tr2.Accepted[i])
		}
	}
}
