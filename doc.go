/*
Package rvsim provides the tools to build and simulate ready/valid streaming
pipelines, the way they are built in synchronous digital logic.

A pipeline is a chain of parts connected by streams. A Stream is a handshake
between one producer, driving an optional item, and one consumer, driving a
readiness signal seen by the producer within the same tick. An item is
transferred on a tick iff it is offered and the consumer is ready.

Parts and streams are clocked by a Domain, a tick source paired with a
synchronous reset. A Circuit steps one or more domains, each with its own
period, so that parts like a clock domain crossing FIFO can bridge two
independent time bases.

Each tick is evaluated in three phases: readiness, items, then state commit.
Readiness must only depend on persisted state, which keeps the producer to
consumer feedback free of combinational loops in any composition. Reading a
signal before it has been driven in the current tick panics.

Reusable parts are found in the hwlib package. The hwtest package drives
single parts with per-tick vectors for testing.
*/
package rvsim
