package rvsim_test

import (
	"strings"
	"testing"

	"github.com/db47h/rvsim"
	"github.com/db47h/rvsim/hwlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func always() rvsim.Item[int]  { return rvsim.Some(0) }
func nothing() rvsim.Item[int] { return rvsim.None[int]() }

func TestNewCircuit_errors(t *testing.T) {
	td := []struct {
		name  string
		build func() []*rvsim.Domain
		err   string
	}{
		{"empty", func() []*rvsim.Domain { return nil }, "empty domain list"},
		{"nil", func() []*rvsim.Domain { return []*rvsim.Domain{nil} }, "nil domain"},
		{"period", func() []*rvsim.Domain {
			d := rvsim.NewDomain("clk", 0, 0)
			hwlib.NewDrain(hwlib.NewSource(d, "s", always, nil).Out())
			return []*rvsim.Domain{d}
		}, "zero period"},
		{"phase", func() []*rvsim.Domain {
			d := rvsim.NewDomain("clk", 2, 2)
			hwlib.NewDrain(hwlib.NewSource(d, "s", always, nil).Out())
			return []*rvsim.Domain{d}
		}, "phase 2 out of range"},
		{"no parts", func() []*rvsim.Domain {
			return []*rvsim.Domain{rvsim.NewDomain("clk", 1, 0)}
		}, "no parts"},
		{"dangling", func() []*rvsim.Domain {
			d := rvsim.NewDomain("clk", 1, 0)
			hwlib.NewSource(d, "s", always, nil)
			return []*rvsim.Domain{d}
		}, `stream "s" has no consumer`},
		{"cross domain", func() []*rvsim.Domain {
			a, b := rvsim.NewDomain("a", 1, 0), rvsim.NewDomain("b", 1, 0)
			s := hwlib.NewSource(a, "s", always, nil)
			var sink rvsim.Part = hwlib.NewDrain(hwlib.NewSource(b, "t", always, nil).Out())
			s.Out().Consume(sink)
			return []*rvsim.Domain{a, b}
		}, "consumer not attached"},
		{"duplicate", func() []*rvsim.Domain {
			a, b := rvsim.NewDomain("clk", 1, 0), rvsim.NewDomain("clk", 1, 0)
			hwlib.NewDrain(hwlib.NewSource(a, "s", always, nil).Out())
			hwlib.NewDrain(hwlib.NewSource(b, "s", always, nil).Out())
			return []*rvsim.Domain{a, b}
		}, `duplicate domain name "clk"`},
	}
	for _, d := range td {
		t.Run(d.name, func(t *testing.T) {
			c, err := rvsim.NewCircuit(d.build())
			require.Error(t, err)
			assert.Nil(t, c)
			assert.True(t, strings.Contains(err.Error(), d.err), "error %q does not contain %q", err, d.err)
		})
	}
}

func TestCircuit_mounted(t *testing.T) {
	d := rvsim.NewDomain("clk", 1, 0)
	hwlib.NewDrain(hwlib.NewSource(d, "s", always, nil).Out())
	c, err := rvsim.NewCircuit([]*rvsim.Domain{d})
	require.NoError(t, err)
	defer c.Dispose()

	_, err = rvsim.NewCircuit([]*rvsim.Domain{d})
	assert.Error(t, err)
	assert.Panics(t, func() { hwlib.NewSource(d, "late", always, nil) })
}

func TestCircuit_domains(t *testing.T) {
	fast := rvsim.NewDomain("fast", 1, 0)
	slow := rvsim.NewDomain("slow", 3, 1)
	hwlib.NewBlock(hwlib.NewSource(fast, "f", nothing, nil).Out())
	hwlib.NewBlock(hwlib.NewSource(slow, "s", nothing, nil).Out())
	c, err := rvsim.NewCircuit([]*rvsim.Domain{fast, slow})
	require.NoError(t, err)
	defer c.Dispose()

	c.Run(10)
	assert.Equal(t, uint64(10), c.Steps())
	assert.Equal(t, uint64(10), fast.Ticks())
	// slow ticks on steps 2, 5, 8
	assert.Equal(t, uint64(3), slow.Ticks())
}

func TestDomain_Resetting(t *testing.T) {
	fast := rvsim.NewDomain("fast", 1, 0)
	slow := rvsim.NewDomain("slow", 3, 1)
	slow.SetReset(func() bool { return slow.Ticks() == 2 })
	var seen []bool
	hwlib.NewBlock(hwlib.NewSource(fast, "f", func() rvsim.Item[int] {
		seen = append(seen, slow.Resetting())
		return nothing()
	}, nil).Out())
	hwlib.NewBlock(hwlib.NewSource(slow, "s", nothing, nil).Out())
	c, err := rvsim.NewCircuit([]*rvsim.Domain{fast, slow})
	require.NoError(t, err)
	defer c.Dispose()

	c.Run(9)
	// slow ticks on steps 2, 5, 8 and resets on its second tick only
	assert.Equal(t, []bool{false, false, false, false, false, true, false, false, false}, seen)
	assert.False(t, slow.Resetting())
}

// loopy reads its upstream item while driving readiness.
type loopy struct {
	in *rvsim.Stream[int]
}

func (l *loopy) Ready()      { l.in.SetReady(l.in.Item().Valid()) }
func (l *loopy) Offer()      {}
func (l *loopy) Commit(bool) {}

func TestCircuit_readinessFromItem(t *testing.T) {
	d := rvsim.NewDomain("clk", 1, 0)
	s := hwlib.NewSource(d, "s", always, nil)
	l := &loopy{in: s.Out()}
	s.Out().Consume(l)
	d.Attach(l)
	c, err := rvsim.NewCircuit([]*rvsim.Domain{d})
	require.NoError(t, err)
	defer c.Dispose()

	assert.PanicsWithValue(t, "wire s.item read before being driven", c.Step)
}

func TestCircuit_observe(t *testing.T) {
	var rst, ready bool
	d := rvsim.NewDomain("clk", 1, 0)
	d.SetReset(func() bool { return rst })
	sent := 0
	src := hwlib.NewSource(d, "src", func() rvsim.Item[int] {
		if sent%2 == 0 {
			return rvsim.Some(sent)
		}
		return rvsim.None[int]()
	}, nil)
	hwlib.NewSink(src.Out(), func() bool { return ready }, nil)

	counts := make(map[rvsim.EventKind]int)
	var values []any
	resets := 0
	core, logs := observer.New(zap.DebugLevel)
	c, err := rvsim.NewCircuit([]*rvsim.Domain{d},
		rvsim.Logger(zap.New(core)),
		rvsim.Observe(rvsim.ObserverFunc(func(ev *rvsim.Event) {
			counts[ev.Kind]++
			if ev.Kind == rvsim.Transfer {
				values = append(values, ev.Value)
			}
			if ev.Reset {
				resets++
			}
			assert.Equal(t, "clk", ev.Domain)
			assert.Equal(t, "src", ev.Stream)
		})))
	require.NoError(t, err)
	defer c.Dispose()

	rst = true
	c.Step() // sent=0: offered, not ready -> stall
	rst = false
	ready = true
	c.Step() // transfer 0
	sent = 1
	c.Step() // idle
	sent = 2
	c.Step() // transfer 2

	assert.Equal(t, 2, counts[rvsim.Transfer])
	assert.Equal(t, 1, counts[rvsim.Stall])
	assert.Equal(t, 1, counts[rvsim.Idle])
	assert.Equal(t, []any{0, 2}, values)
	assert.Equal(t, 1, resets)
	assert.Equal(t, 1, logs.FilterMessage("reset").Len())
}

func TestCircuit_workers(t *testing.T) {
	run := func(workers int) []uint64 {
		d := rvsim.NewDomain("clk", 1, 0)
		var drains []*hwlib.Drain[int]
		for i := 0; i < 8; i++ {
			src := hwlib.NewSource(d, "s", func() rvsim.Item[int] { return rvsim.Some(1) }, nil)
			buf := hwlib.NewBuffer("b", src.Out())
			drains = append(drains, hwlib.NewDrain(buf.Out()))
		}
		c, err := rvsim.NewCircuit([]*rvsim.Domain{d}, rvsim.Workers(workers))
		require.NoError(t, err)
		defer c.Dispose()
		c.Run(100)
		var n []uint64
		for _, d := range drains {
			n = append(n, d.Count())
		}
		return n
	}
	want := run(1)
	assert.Equal(t, want, run(4))
	assert.Equal(t, want, run(0))
	// a buffer transfers every other tick
	assert.Equal(t, uint64(50), want[0])
}

func TestCircuit_RunUntil(t *testing.T) {
	d := rvsim.NewDomain("clk", 1, 0)
	dr := hwlib.NewDrain(hwlib.NewSource(d, "s", always, nil).Out())
	c, err := rvsim.NewCircuit([]*rvsim.Domain{d})
	require.NoError(t, err)
	defer c.Dispose()

	n, ok := c.RunUntil(func() bool { return dr.Count() == 5 }, 100)
	assert.True(t, ok)
	assert.Equal(t, uint64(5), n)
	n, ok = c.RunUntil(func() bool { return false }, 3)
	assert.False(t, ok)
	assert.Equal(t, uint64(3), n)
}
