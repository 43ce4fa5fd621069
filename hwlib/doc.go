// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package hwlib provides a library of reusable parts for rvsim.
//
// Every part consumes an upstream stream and, except for terminators,
// produces a new downstream stream, so that parts chain into pipelines:
//
//	src := hwlib.NewSource(clk, "src", next, nil)
//	buf := hwlib.NewBuffer("buf", src.Out())
//	spl := hwlib.NewSplitter("bytes", buf.Out())
//	hwlib.NewDrain(spl.Out())
//
// Parts derive their upstream readiness from their own state only. Any chain
// of hwlib parts is therefore free of combinational loops.
//
package hwlib
