// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package metrics exports stream activity as Prometheus metrics.
//
package metrics

import (
	"sync/atomic"

	"github.com/db47h/rvsim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

type streamKey struct {
	domain, stream string
}

// indexed by rvsim.EventKind
type streamCounters struct {
	c [3]prometheus.Counter
	n [3]uint64
}

// Collector is an rvsim.Observer counting transfers, stalls and idle ticks
// per stream.
//
type Collector struct {
	events *prometheus.CounterVec
	resets *prometheus.CounterVec
	step   prometheus.GaugeFunc

	reg       prometheus.Registerer
	namespace string
	streams   map[streamKey]*streamCounters
	lastStep  atomic.Uint64
	lastReset map[string]uint64
	logger    *zap.Logger
}

// NewCollector returns a new Collector registering its metrics with reg.
//
func NewCollector(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)
	c := &Collector{
		reg:       reg,
		namespace: namespace,
		streams:   make(map[streamKey]*streamCounters),
		lastReset: make(map[string]uint64),
		logger:    logger.With(zap.String("component", "metrics")),
	}

	c.events = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_ticks_total",
			Help:      "Stream ticks by outcome (idle, stall, transfer)",
		},
		[]string{"domain", "stream", "kind"},
	)

	c.resets = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_reset_ticks_total",
			Help:      "Domain ticks with reset asserted",
		},
		[]string{"domain"},
	)

	c.step = f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_step",
			Help:      "Last observed circuit step",
		},
		func() float64 { return float64(c.lastStep.Load()) },
	)

	return c
}

// Observe implements rvsim.Observer.
//
func (c *Collector) Observe(ev *rvsim.Event) {
	c.lastStep.Store(ev.Step)
	if ev.Reset && c.lastReset[ev.Domain] != ev.Tick {
		c.lastReset[ev.Domain] = ev.Tick
		c.resets.WithLabelValues(ev.Domain).Inc()
	}
	if ev.Kind < rvsim.Idle || ev.Kind > rvsim.Transfer {
		return
	}
	k := streamKey{ev.Domain, ev.Stream}
	sc := c.streams[k]
	if sc == nil {
		sc = new(streamCounters)
		for kind := rvsim.Idle; kind <= rvsim.Transfer; kind++ {
			sc.c[kind] = c.events.WithLabelValues(ev.Domain, ev.Stream, kind.String())
		}
		c.streams[k] = sc
		c.logger.Debug("new stream", zap.String("domain", ev.Domain), zap.String("stream", ev.Stream))
	}
	sc.c[ev.Kind].Inc()
	sc.n[ev.Kind]++
}

// WatchQueue exports the occupancy of a queue, sampled with length at
// collection time, and its capacity.
//
func (c *Collector) WatchQueue(name string, length func() int, depth int) error {
	labels := prometheus.Labels{"queue": name}
	occ := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   c.namespace,
			Name:        "queue_occupancy",
			Help:        "Number of items in a clock-domain-crossing queue",
			ConstLabels: labels,
		},
		func() float64 { return float64(length()) },
	)
	if err := c.reg.Register(occ); err != nil {
		return err
	}
	capacity := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   c.namespace,
		Name:        "queue_depth",
		Help:        "Capacity of a clock-domain-crossing queue",
		ConstLabels: labels,
	})
	capacity.Set(float64(depth))
	if err := c.reg.Register(capacity); err != nil {
		c.reg.Unregister(occ)
		return err
	}
	return nil
}

// Count returns the number of ticks of the given kind counted on a stream.
// It must not be called concurrently with Observe.
//
func (c *Collector) Count(domain, stream string, kind rvsim.EventKind) uint64 {
	sc := c.streams[streamKey{domain, stream}]
	if sc == nil || kind < rvsim.Idle || kind > rvsim.Transfer {
		return 0
	}
	return sc.n[kind]
}
