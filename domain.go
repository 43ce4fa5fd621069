// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package rvsim

// A Domain is a tick source paired with a synchronous reset. Every part and
// stream belongs to exactly one domain.
//
// A domain ticks on every circuit step s where (s + phase) % period == 0.
//
type Domain struct {
	name    string
	period  uint64
	phase   uint64
	rst     func() bool
	epoch   uint64 // ticks elapsed, incremented at the start of each tick
	inRst   bool   // reset sampled on the current step
	parts   []Part
	streams []port
	c       *Circuit
}

// NewDomain returns a new domain ticking once every period circuit steps,
// offset by phase steps.
//
func NewDomain(name string, period, phase uint) *Domain {
	return &Domain{name: name, period: uint64(period), phase: uint64(phase)}
}

// SetReset sets the function sampled at the start of each tick to get the
// state of the synchronous reset signal. A nil function never asserts reset.
//
func (d *Domain) SetReset(rst func() bool) {
	d.checkOpen()
	d.rst = rst
}

// Name returns the domain name.
//
func (d *Domain) Name() string { return d.name }

// Ticks returns the number of ticks elapsed in this domain.
//
func (d *Domain) Ticks() uint64 { return d.epoch }

// Resetting returns true if the domain ticks on the current step with its
// reset asserted. It is valid from the Ready phase through Commit, and lets
// parts spanning two domains see the other domain's reset.
//
func (d *Domain) Resetting() bool { return d.inRst }

// Attach adds p to the domain's parts. Parts are evaluated in the order they
// are attached, so a part must be attached after the producers of all the
// streams it consumes. Parts do this naturally by attaching themselves in
// their constructor.
//
func (d *Domain) Attach(p Part) {
	d.checkOpen()
	d.parts = append(d.parts, p)
}

func (d *Domain) checkOpen() {
	if d.c != nil {
		panic("domain " + d.name + " is already mounted in a circuit")
	}
}

func (d *Domain) ticksAt(step uint64) bool {
	return (step+d.phase)%d.period == 0
}

func (d *Domain) owns(p Part) bool {
	for _, q := range d.parts {
		if q == p {
			return true
		}
	}
	return false
}
