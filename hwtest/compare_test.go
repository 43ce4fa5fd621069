package hwtest_test

import (
	"math/rand"
	"testing"

	"github.com/db47h/rvsim"
	"github.com/db47h/rvsim/hwlib"
	"github.com/db47h/rvsim/hwtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wire(in *rvsim.Stream[int]) (*rvsim.Stream[int], error) { return in, nil }

func randInt(r *rand.Rand) int { return r.Intn(1000) }

func TestRun_wire(t *testing.T) {
	vs := hwtest.RandomVectors(rand.New(rand.NewSource(1)), 100, randInt)
	tr, err := hwtest.Run(wire, vs)
	require.NoError(t, err)
	require.Len(t, tr.Out, len(vs))
	for i, v := range vs {
		assert.Equal(t, v.In, tr.Out[i], "tick %d", i)
		assert.Equal(t, v.In.Valid() && v.Ready, tr.Accepted[i], "tick %d", i)
	}
}

func TestComparePart(t *testing.T) {
	buf := func(in *rvsim.Stream[int]) (*rvsim.Stream[int], error) {
		return hwlib.NewBuffer("buf", in).Out(), nil
	}
	hwtest.ComparePart(t, 500, randInt, buf, buf)
}

func TestFeeder_Scoreboard(t *testing.T) {
	items := []int{3, 1, 4, 1, 5, 9, 2, 6}
	var sb hwtest.Scoreboard[int]
	sb.Expect(items...)

	clk := rvsim.NewDomain("clk", 1, 0)
	r := rand.New(rand.NewSource(42))
	f := hwtest.NewFeeder(clk, "in", items, func() bool { return r.Intn(3) == 0 })
	var errs []error
	hwlib.NewSink(f.Out(),
		func() bool { return r.Intn(2) == 0 },
		func(i rvsim.Item[int], fired bool) {
			if fired {
				if err := sb.Check(i.Value()); err != nil {
					errs = append(errs, err)
				}
			}
		})
	c, err := rvsim.NewCircuit([]*rvsim.Domain{clk})
	require.NoError(t, err)
	defer c.Dispose()

	_, ok := c.RunUntil(f.Done, 1000)
	require.True(t, ok)
	assert.Empty(t, errs)
	assert.Empty(t, sb.Pending())
	assert.Equal(t, len(items), sb.Received())
	assert.Equal(t, len(items), f.Sent())
}

func TestScoreboard_errors(t *testing.T) {
	var sb hwtest.Scoreboard[string]
	assert.Error(t, sb.Check("x"))
	sb.Expect("a", "b")
	assert.Error(t, sb.Check("b"))
	assert.NoError(t, sb.Check("a"))
	assert.NoError(t, sb.Check("b"))
	assert.Equal(t, 2, sb.Received())
}
