package hwlib_test

import (
	"fmt"
	"testing"

	"github.com/db47h/rvsim"
	"github.com/db47h/rvsim/fifo"
	hl "github.com/db47h/rvsim/hwlib"
	"github.com/db47h/rvsim/hwtest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewCDC_capacity(t *testing.T) {
	wr, rd := rvsim.NewDomain("wr", 1, 0), rvsim.NewDomain("rd", 1, 0)
	src := hl.NewSource(wr, "in", func() rvsim.Item[int] { return none }, nil)
	c, err := hl.NewCDC("x", src.Out(), rd, 5, 2)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Equal(t, fifo.ErrCapacity, errors.Cause(err))
}

func TestCDC_capacity(t *testing.T) {
	const depth = 3
	clk := rvsim.NewDomain("clk", 1, 0)
	items := []int{10, 20, 30, 40, 50}
	f := hwtest.NewFeeder(clk, "in", items, nil)
	cdc, err := hl.NewCDC("cdc", f.Out(), clk, depth, 2)
	require.NoError(t, err)
	var ready bool
	var got []int
	hl.NewSink(cdc.Out(), func() bool { return ready }, func(i rvsim.Item[int], fired bool) {
		if fired {
			got = append(got, i.Value())
		}
	})
	c, err := rvsim.NewCircuit([]*rvsim.Domain{clk})
	require.NoError(t, err)
	defer c.Dispose()

	c.Run(10)
	assert.Equal(t, depth, f.Sent(), "writes accepted while full")
	assert.Equal(t, depth, cdc.Len())
	assert.Equal(t, depth, cdc.Depth())
	assert.Empty(t, got)

	ready = true
	c.Run(10)
	assert.Equal(t, items, got)
	assert.Equal(t, 0, cdc.Len())
}

func TestCDC_reset(t *testing.T) {
	var rst bool
	wr, rd := rvsim.NewDomain("wr", 1, 0), rvsim.NewDomain("rd", 2, 0)
	wr.SetReset(func() bool { return rst })
	f := hwtest.NewFeeder(wr, "in", []int{1, 2, 3, 4}, nil)
	cdc, err := hl.NewCDC("cdc", f.Out(), rd, 4, 2)
	require.NoError(t, err)
	hl.NewBlock(cdc.Out())
	c, err := rvsim.NewCircuit([]*rvsim.Domain{wr, rd})
	require.NoError(t, err)
	defer c.Dispose()

	c.Run(3)
	assert.Equal(t, 3, cdc.Len())
	rst = true
	c.Step()
	assert.Equal(t, 0, cdc.Len())
}

func TestCDC_resetCommitOrder(t *testing.T) {
	for _, side := range []string{"wr", "rd"} {
		for _, rdFirst := range []bool{false, true} {
			for _, workers := range []int{1, 2} {
				t.Run(fmt.Sprintf("%s reset/rd first %v/%d workers", side, rdFirst, workers), func(t *testing.T) {
					wr, rd := rvsim.NewDomain("wr", 1, 0), rvsim.NewDomain("rd", 1, 0)
					d := wr
					if side == "rd" {
						d = rd
					}
					d.SetReset(func() bool { return d.Ticks() == 3 })
					f := hwtest.NewFeeder(wr, "in", []int{1, 2, 3, 4, 5, 6}, nil)
					cdc, err := hl.NewCDC("cdc", f.Out(), rd, 4, 2)
					require.NoError(t, err)
					hl.NewBlock(cdc.Out())
					ds := []*rvsim.Domain{wr, rd}
					if rdFirst {
						ds = []*rvsim.Domain{rd, wr}
					}
					c, err := rvsim.NewCircuit(ds, rvsim.Workers(workers))
					require.NoError(t, err)
					defer c.Dispose()

					c.Run(2)
					require.Equal(t, 2, cdc.Len())
					c.Step() // reset tick, the writer is offered a new item
					assert.Equal(t, 0, cdc.Len(), "queue not empty after reset")
					c.Step()
					assert.Equal(t, 1, cdc.Len())
				})
			}
		}
	}
}

func TestProperty_CDC_Order(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		items := rapid.SliceOfN(rapid.Int(), 1, 50).Draw(rt, "items")
		depth := rapid.IntRange(1, 8).Draw(rt, "depth")
		wp := rapid.UintRange(1, 5).Draw(rt, "writePeriod")
		rp := rapid.UintRange(1, 5).Draw(rt, "readPeriod")
		wph := rapid.UintRange(0, wp-1).Draw(rt, "writePhase")
		rph := rapid.UintRange(0, rp-1).Draw(rt, "readPhase")
		readies := rapid.SliceOfN(rapid.Bool(), 16, 16).Draw(rt, "readies")
		workers := rapid.IntRange(1, 2).Draw(rt, "workers")

		var sb hwtest.Scoreboard[int]
		sb.Expect(items...)

		wr, rd := rvsim.NewDomain("wr", wp, wph), rvsim.NewDomain("rd", rp, rph)
		f := hwtest.NewFeeder(wr, "in", items, nil)
		cdc, err := hl.NewCDC("cdc", f.Out(), rd, depth, 3)
		require.NoError(rt, err)
		r := 0
		var errs []error
		hl.NewSink(cdc.Out(),
			func() bool { r++; return readies[r%len(readies)] || r%4 == 0 },
			func(i rvsim.Item[int], fired bool) {
				if fired {
					if err := sb.Check(i.Value()); err != nil {
						errs = append(errs, err)
					}
				}
				if n := cdc.Len(); n > depth {
					errs = append(errs, errors.Errorf("occupancy %d > depth %d", n, depth))
				}
			})
		c, err := rvsim.NewCircuit([]*rvsim.Domain{wr, rd}, rvsim.Workers(workers))
		require.NoError(rt, err)
		defer c.Dispose()

		_, ok := c.RunUntil(func() bool { return sb.Received() == len(items) }, 100*uint64(len(items)))
		require.True(rt, ok, "pending: %v", sb.Pending())
		require.Empty(rt, errs)
	})
}
