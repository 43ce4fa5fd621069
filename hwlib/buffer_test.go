package hwlib_test

import (
	"math/rand"
	"testing"

	"github.com/db47h/rvsim"
	hl "github.com/db47h/rvsim/hwlib"
	"github.com/db47h/rvsim/hwtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func buffer(in *rvsim.Stream[int]) (*rvsim.Stream[int], error) {
	return hl.NewBuffer("buf", in).Out(), nil
}

func some(v int) rvsim.Item[int] { return rvsim.Some(v) }

var none = rvsim.None[int]()

func TestBuffer_reset(t *testing.T) {
	tr, err := hwtest.Run(buffer, []hwtest.Vector[int]{
		{Reset: true, Ready: true, In: some(99)},
		{Ready: false, In: some(10)},
		{Ready: true, In: none},
		{Ready: true, In: none},
	})
	require.NoError(t, err)
	assert.Equal(t, []rvsim.Item[int]{none, none, some(10), none}, tr.Out)
	assert.Equal(t, []bool{true, true, false, false}, tr.Accepted)
}

func TestBuffer_resetHeld(t *testing.T) {
	tr, err := hwtest.Run(buffer, []hwtest.Vector[int]{
		{Ready: false, In: some(10)},
		{Ready: false, In: some(11)},
		{Reset: true, Ready: false, In: some(11)}, // overrides the hold
		{Ready: false, In: some(12)},
		{Ready: true, In: none},
	})
	require.NoError(t, err)
	assert.Equal(t, []rvsim.Item[int]{none, some(10), some(10), none, some(12)}, tr.Out)
	assert.Equal(t, []bool{true, false, false, true, false}, tr.Accepted)
}

func TestBufferNext(t *testing.T) {
	td := []struct {
		held  rvsim.Item[int]
		ready bool
		in    rvsim.Item[int]
		next  rvsim.Item[int]
	}{
		{some(1), true, none, none},
		{some(1), true, some(2), none},
		{some(1), false, none, some(1)},
		{some(1), false, some(2), some(1)},
		{none, true, some(2), some(2)},
		{none, false, some(2), some(2)},
		{none, true, none, none},
		{none, false, none, none},
	}
	for _, d := range td {
		assert.Equal(t, d.next, hl.BufferNext(d.held, d.ready, d.in), "held=%v ready=%v in=%v", d.held, d.ready, d.in)
	}
}

func TestBuffer_throughput(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	clk := rvsim.NewDomain("clk", 1, 0)
	f := hwtest.NewFeeder(clk, "in", items, nil)
	buf := hl.NewBuffer("buf", f.Out())
	var out []rvsim.Item[int]
	hl.NewSink(buf.Out(), func() bool { return true }, func(i rvsim.Item[int], _ bool) { out = append(out, i) })
	c, err := rvsim.NewCircuit([]*rvsim.Domain{clk})
	require.NoError(t, err)
	defer c.Dispose()

	c.Run(11)
	assert.Equal(t, []rvsim.Item[int]{
		none, some(1), none, some(2), none, some(3), none, some(4), none, some(5), none,
	}, out)
}

func TestBuffer_hold(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	vs := hwtest.RandomVectors(r, 2000, func(r *rand.Rand) int { return r.Int() })
	tr, err := hwtest.Run(buffer, vs)
	require.NoError(t, err)
	for i := 1; i < len(vs); i++ {
		prev := tr.Out[i-1]
		if vs[i].Reset || !prev.Valid() || vs[i-1].Reset {
			continue
		}
		// held value stays on offer until consumed
		if !vs[i-1].Ready {
			require.Equal(t, prev, tr.Out[i], "tick %d", i)
		} else {
			require.False(t, tr.Out[i].Valid(), "tick %d", i)
		}
	}
}

func TestProperty_Buffer_NoLossNoDup(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		items := rapid.SliceOfN(rapid.Int(), 1, 50).Draw(rt, "items")
		gaps := rapid.SliceOfN(rapid.Bool(), 64, 64).Draw(rt, "gaps")
		readies := rapid.SliceOfN(rapid.Bool(), 64, 64).Draw(rt, "readies")

		var sb hwtest.Scoreboard[int]
		sb.Expect(items...)

		clk := rvsim.NewDomain("clk", 1, 0)
		g := 0
		f := hwtest.NewFeeder(clk, "in", items, func() bool { g++; return gaps[g%len(gaps)] && g%5 != 0 })
		buf := hl.NewBuffer("buf", f.Out())
		r := 0
		lastFire := false
		var errs []error
		hl.NewSink(buf.Out(),
			func() bool { r++; return readies[r%len(readies)] || r%7 == 0 },
			func(i rvsim.Item[int], fired bool) {
				if fired {
					if lastFire {
						rt.Fatalf("buffer transferred on two consecutive ticks")
					}
					if err := sb.Check(i.Value()); err != nil {
						errs = append(errs, err)
					}
				}
				lastFire = fired
			})
		c, err := rvsim.NewCircuit([]*rvsim.Domain{clk})
		require.NoError(rt, err)
		defer c.Dispose()

		_, ok := c.RunUntil(func() bool { return sb.Received() == len(items) }, 100*uint64(len(items))+100)
		require.True(rt, ok, "pending: %v", sb.Pending())
		require.Empty(rt, errs)
		c.Run(10)
		require.Empty(rt, errs)
		require.False(rt, buf.Held().Valid())
	})
}
