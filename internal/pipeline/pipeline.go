// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package pipeline builds a runnable circuit from a simulation config.
//
// A pipeline is a word source followed by the configured stages and, unless
// the last stage is a terminator, a sink. Stages before the split stage carry
// 16 bits words, stages after it carry bytes.
//
package pipeline

import (
	"context"
	"math/rand"

	"github.com/db47h/rvsim"
	"github.com/db47h/rvsim/hwlib"
	"github.com/db47h/rvsim/internal/config"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// A Queue describes a clock-domain-crossing queue of the pipeline.
//
type Queue struct {
	Name  string
	Depth int
	Len   func() int
}

// Stats summarizes a run.
//
type Stats struct {
	Steps    uint64 `json:"steps"`
	Sent     uint64 `json:"sent"`     // words accepted from the source
	Received uint64 `json:"received"` // items consumed at the end of the pipeline
	Output   string `json:"output"`   // name of the last stream
}

// A Pipeline is a circuit built from a config.
//
type Pipeline struct {
	c       *rvsim.Circuit
	domains map[string]*rvsim.Domain
	used    map[string]bool
	queues  []Queue
	sent    uint64
	recv    func() uint64
	output  string
	log     *zap.Logger
}

// Build builds the pipeline described by cfg. opts are passed to
// rvsim.NewCircuit after the pipeline's own Workers and Logger options.
//
func Build(cfg *config.Config, log *zap.Logger, opts ...rvsim.Option) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pipeline{
		domains: make(map[string]*rvsim.Domain, len(cfg.Domains)),
		used:    make(map[string]bool, len(cfg.Domains)),
		log:     log.With(zap.String("component", "pipeline")),
	}
	order := make([]*rvsim.Domain, 0, len(cfg.Domains))
	for _, dc := range cfg.Domains {
		d := rvsim.NewDomain(dc.Name, dc.Period, dc.Phase)
		if n := dc.ResetTicks; n > 0 {
			d.SetReset(func() bool { return d.Ticks() <= n })
		}
		p.domains[dc.Name] = d
		order = append(order, d)
	}

	src, err := p.source(cfg.Source)
	if err != nil {
		return nil, err
	}
	words, rest, done, err := stages(p, src, cfg.Stages)
	if err != nil {
		return nil, err
	}
	if !done {
		if len(rest) == 0 {
			sink(p, words, cfg.Sink)
		} else {
			st := rest[0]
			if err = p.checkDomain(st, words.Domain()); err != nil {
				return nil, err
			}
			bytes := hwlib.NewSplitter(st.Name, words).Out()
			p.log.Debug("stage", zap.String("kind", st.Kind), zap.String("name", st.Name))
			bytes, rest, done, err = stages(p, bytes, rest[1:])
			switch {
			case err != nil:
				return nil, err
			case len(rest) > 0:
				return nil, errors.Errorf("stage %q: the stream is already split", rest[0].Name)
			case !done:
				sink(p, bytes, cfg.Sink)
			}
		}
	}

	var ds []*rvsim.Domain
	for _, d := range order {
		if p.used[d.Name()] {
			ds = append(ds, d)
		} else {
			p.log.Warn("unused domain", zap.String("domain", d.Name()))
		}
	}
	opts = append([]rvsim.Option{rvsim.Workers(cfg.Sim.Workers), rvsim.Logger(log)}, opts...)
	if p.c, err = rvsim.NewCircuit(ds, opts...); err != nil {
		return nil, errors.Wrap(err, "build circuit")
	}
	p.log.Info("pipeline built",
		zap.Int("domains", len(ds)),
		zap.Int("stages", len(cfg.Stages)),
		zap.String("output", p.output))
	return p, nil
}

// stages mounts stages on in until a split stage, which is returned
// unmounted in rest, or a terminator, in which case done is true.
//
func stages[T any](p *Pipeline, in *rvsim.Stream[T], scs []config.StageConfig) (out *rvsim.Stream[T], rest []config.StageConfig, done bool, err error) {
	for i, st := range scs {
		if st.Kind == config.KindSplit {
			return in, scs[i:], false, nil
		}
		p.log.Debug("stage", zap.String("kind", st.Kind), zap.String("name", st.Name))
		switch st.Kind {
		case config.KindBuffer:
			if err = p.checkDomain(st, in.Domain()); err != nil {
				return nil, nil, false, err
			}
			in = hwlib.NewBuffer(st.Name, in).Out()
		case config.KindCDC:
			rd := p.domains[st.Domain]
			if rd == nil {
				return nil, nil, false, errors.Errorf("stage %q: unknown domain %q", st.Name, st.Domain)
			}
			cdc, cerr := hwlib.NewCDC(st.Name, in, rd, st.Depth, st.AddrWidth)
			if cerr != nil {
				return nil, nil, false, cerr
			}
			p.used[rd.Name()] = true
			p.queues = append(p.queues, Queue{Name: st.Name, Depth: cdc.Depth(), Len: cdc.Len})
			in = cdc.Out()
		case config.KindBlock:
			if err = p.checkDomain(st, in.Domain()); err != nil {
				return nil, nil, false, err
			}
			hwlib.NewBlock(in)
			p.output = in.Name()
			p.recv = func() uint64 { return 0 }
			return nil, scs[i+1:], true, nil
		case config.KindDrain:
			if err = p.checkDomain(st, in.Domain()); err != nil {
				return nil, nil, false, err
			}
			d := hwlib.NewDrain(in)
			p.output = in.Name()
			p.recv = d.Count
			return nil, scs[i+1:], true, nil
		default:
			return nil, nil, false, errors.Errorf("stage %q: unknown kind %q", st.Name, st.Kind)
		}
	}
	return in, nil, false, nil
}

func (p *Pipeline) checkDomain(st config.StageConfig, d *rvsim.Domain) error {
	if st.Domain != "" && st.Domain != d.Name() {
		return errors.Errorf("stage %q: domain %q differs from upstream domain %q", st.Name, st.Domain, d.Name())
	}
	return nil
}

func (p *Pipeline) source(sc config.SourceConfig) (*rvsim.Stream[uint16], error) {
	d := p.domains[sc.Domain]
	if d == nil {
		return nil, errors.Errorf("source: unknown domain %q", sc.Domain)
	}
	p.used[d.Name()] = true
	r := rand.New(rand.NewSource(sc.Seed))
	var (
		cur     uint16
		counter uint16
		pending bool
	)
	next := func() rvsim.Item[uint16] {
		if !pending {
			if r.Float64() >= sc.OfferRate {
				return rvsim.None[uint16]()
			}
			if sc.Pattern == config.PatternRandom {
				cur = uint16(r.Intn(1 << 16))
			} else {
				cur = counter
				counter++
			}
			pending = true
		}
		return rvsim.Some(cur)
	}
	accepted := func(uint16) {
		pending = false
		p.sent++
	}
	return hwlib.NewSource(d, "source", next, accepted).Out(), nil
}

func sink[T any](p *Pipeline, in *rvsim.Stream[T], sc config.SinkConfig) {
	r := rand.New(rand.NewSource(sc.Seed))
	var n uint64
	hwlib.NewSink(in,
		func() bool { return r.Float64() < sc.ReadyRate },
		func(_ rvsim.Item[T], fired bool) {
			if fired {
				n++
			}
		})
	p.used[in.Domain().Name()] = true
	p.output = in.Name()
	p.recv = func() uint64 { return n }
}

// Circuit returns the underlying circuit.
//
func (p *Pipeline) Circuit() *rvsim.Circuit { return p.c }

// Queues returns the clock-domain-crossing queues of the pipeline.
//
func (p *Pipeline) Queues() []Queue { return p.queues }

// Stats returns the current run statistics. It must not be called while the
// pipeline is running.
//
func (p *Pipeline) Stats() Stats {
	return Stats{
		Steps:    p.c.Steps(),
		Sent:     p.sent,
		Received: p.recv(),
		Output:   p.output,
	}
}

// Run steps the circuit. It stops after steps steps, or when ctx is done if
// steps is 0. If hz > 0, steps are paced at hz steps per second.
//
// When ctx ends the run early, Run returns the context's error along with the
// statistics collected so far.
//
func (p *Pipeline) Run(ctx context.Context, steps uint64, hz float64) (Stats, error) {
	var lim *rate.Limiter
	if hz > 0 {
		lim = rate.NewLimiter(rate.Limit(hz), int(hz/10)+1)
	}
	p.log.Info("run started", zap.Uint64("steps", steps), zap.Float64("hz", hz))
	for i := uint64(0); steps == 0 || i < steps; i++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				// Wait fails early when the next step would pass the deadline.
				if ctx.Err() == nil {
					return p.Stats(), context.DeadlineExceeded
				}
				return p.Stats(), ctx.Err()
			}
		} else if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return p.Stats(), err
			}
		}
		p.c.Step()
	}
	st := p.Stats()
	p.log.Info("run finished",
		zap.Uint64("steps", st.Steps),
		zap.Uint64("sent", st.Sent),
		zap.Uint64("received", st.Received))
	return st, nil
}

// Dispose releases the circuit's resources.
//
func (p *Pipeline) Dispose() { p.c.Dispose() }
