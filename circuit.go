// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

package rvsim

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// An Option configures a Circuit.
//
type Option func(c *Circuit)

// Workers sets the number of goroutines used to commit part states. If n <= 0,
// the value of GOMAXPROCS is used. The default is 1: parts are committed
// sequentially by the goroutine calling Step.
//
func Workers(n int) Option {
	return func(c *Circuit) {
		if n <= 0 {
			n = runtime.GOMAXPROCS(-1)
		}
		c.workers = n
	}
}

// Logger sets the circuit logger.
//
func Logger(l *zap.Logger) Option {
	return func(c *Circuit) {
		if l != nil {
			c.log = l
		}
	}
}

// Observe registers an observer notified of every stream event.
//
func Observe(o Observer) Option {
	return func(c *Circuit) {
		if o != nil {
			c.obs = append(c.obs, o)
		}
	}
}

type commit struct {
	p   Part
	rst bool
}

// Circuit is a runnable simulation of one or more clock domains.
//
type Circuit struct {
	domains []*Domain
	step    uint64
	workers int
	log     *zap.Logger
	obs     Observers

	ticking []*Domain
	resets  []bool
	jobs    []commit
	ev      Event

	wc []chan []commit
	wg sync.WaitGroup
}

// NewCircuit builds a new circuit running the given domains.
//
// All parts and streams must be attached to their domain before calling
// NewCircuit. Domains cannot be modified afterwards. Every stream must have
// both a producer and a consumer attached to the stream's domain.
//
// Callers must make sure to call Dispose() once the circuit is no longer needed
// in order to release allocated resources.
//
func NewCircuit(domains []*Domain, opts ...Option) (*Circuit, error) {
	if len(domains) == 0 {
		return nil, errors.New("empty domain list")
	}

	c := &Circuit{workers: 1, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}

	names := make(map[string]bool, len(domains))
	for _, d := range domains {
		if d == nil {
			return nil, errors.New("nil domain")
		}
		if err := checkDomain(d); err != nil {
			return nil, errors.Wrap(err, "domain "+d.name)
		}
		if names[d.name] {
			return nil, errors.Errorf("duplicate domain name %q", d.name)
		}
		names[d.name] = true
	}

	parts := 0
	for _, d := range domains {
		d.c = c
		parts += len(d.parts)
	}
	c.domains = domains
	c.ticking = make([]*Domain, 0, len(domains))
	c.resets = make([]bool, 0, len(domains))
	c.jobs = make([]commit, 0, parts)

	if c.workers > 1 {
		for i := 0; i < c.workers; i++ {
			wc := make(chan []commit, 1)
			c.wc = append(c.wc, wc)
			go worker(c, wc)
		}
	}

	c.log.Debug("circuit ready",
		zap.Int("domains", len(domains)),
		zap.Int("parts", parts),
		zap.Int("workers", c.workers))
	return c, nil
}

func checkDomain(d *Domain) error {
	if d.c != nil {
		return errors.New("already mounted in a circuit")
	}
	if d.period == 0 {
		return errors.New("zero period")
	}
	if d.phase >= d.period {
		return errors.Errorf("phase %d out of range for period %d", d.phase, d.period)
	}
	if len(d.parts) == 0 {
		return errors.New("no parts")
	}
	for _, s := range d.streams {
		switch {
		case s.producer() == nil:
			return errors.Errorf("stream %q has no producer", s.streamName())
		case s.consumer() == nil:
			return errors.Errorf("stream %q has no consumer", s.streamName())
		case !d.owns(s.producer()):
			return errors.Errorf("stream %q: producer not attached to the stream's domain", s.streamName())
		case !d.owns(s.consumer()):
			return errors.Errorf("stream %q: consumer not attached to the stream's domain", s.streamName())
		}
	}
	return nil
}

// Dispose releases all resources allocated for a circuit and stops
// worker goroutines.
//
func (c *Circuit) Dispose() {
	c.wg.Add(len(c.wc))
	for _, wc := range c.wc {
		close(wc)
	}
	c.wg.Wait()
	c.wc = nil
	c.log.Debug("circuit disposed", zap.Uint64("steps", c.step))
}

func worker(c *Circuit, wc <-chan []commit) {
	for {
		jobs, ok := <-wc
		if !ok {
			c.wg.Done()
			return
		}
		for _, j := range jobs {
			j.p.Commit(j.rst)
		}
		c.wg.Done()
	}
}

// Steps returns the value of the step counter.
//
func (c *Circuit) Steps() uint64 {
	return c.step
}

// Domains returns the circuit's domains.
//
func (c *Circuit) Domains() []*Domain {
	return c.domains
}

// Step advances the simulation by one step. Every domain whose edge falls on
// this step ticks.
//
func (c *Circuit) Step() {
	c.ticking, c.resets = c.ticking[:0], c.resets[:0]
	for _, d := range c.domains {
		d.inRst = false
		if !d.ticksAt(c.step) {
			continue
		}
		d.epoch++
		rst := d.rst != nil && d.rst()
		d.inRst = rst
		if rst {
			c.log.Debug("reset", zap.String("domain", d.name), zap.Uint64("tick", d.epoch))
		}
		c.ticking = append(c.ticking, d)
		c.resets = append(c.resets, rst)
	}

	// combinational phases. Readiness first, across all ticking domains, so
	// that parts spanning two domains see a consistent state.
	for _, d := range c.ticking {
		for _, p := range d.parts {
			p.Ready()
		}
	}
	for _, d := range c.ticking {
		for _, p := range d.parts {
			p.Offer()
		}
	}

	c.commit()
	c.notify()
	c.step++
}

func (c *Circuit) commit() {
	c.jobs = c.jobs[:0]
	for i, d := range c.ticking {
		for _, p := range d.parts {
			c.jobs = append(c.jobs, commit{p, c.resets[i]})
		}
	}
	if len(c.wc) == 0 || len(c.jobs) < 2 {
		for _, j := range c.jobs {
			j.p.Commit(j.rst)
		}
		return
	}

	jobs := c.jobs
	size := len(jobs) / len(c.wc)
	if size*len(c.wc) < len(jobs) {
		size++
	}
	for _, wc := range c.wc {
		if len(jobs) == 0 {
			break
		}
		n := size
		if n > len(jobs) {
			n = len(jobs)
		}
		c.wg.Add(1)
		wc <- jobs[:n]
		jobs = jobs[n:]
	}
	c.wg.Wait()
}

func (c *Circuit) notify() {
	if len(c.obs) == 0 {
		return
	}
	for i, d := range c.ticking {
		for _, s := range d.streams {
			c.ev = Event{
				Step:   c.step,
				Tick:   d.epoch,
				Domain: d.name,
				Stream: s.streamName(),
				Reset:  c.resets[i],
			}
			c.ev.Kind, c.ev.Value = s.status()
			c.obs.Observe(&c.ev)
		}
	}
}

// Run runs the simulation for n steps.
//
func (c *Circuit) Run(n uint64) {
	for ; n > 0; n-- {
		c.Step()
	}
}

// RunUntil steps the simulation until cond returns true or max steps have
// been run. cond is checked after each step. It returns the number of steps
// run and whether cond was met.
//
func (c *Circuit) RunUntil(cond func() bool, max uint64) (uint64, bool) {
	for i := uint64(0); i < max; i++ {
		c.Step()
		if cond() {
			return i + 1, true
		}
	}
	return max, false
}
