package sampler

import (
	"math"
	"testing"

	"github.com/CraigKelly/tempering/dist"
	"github.com/CraigKelly/tempering/model"
	"github.com/CraigKelly/tempering/rand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTuneScale(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(0.5, TuneScale(1, 0, 0.44))
	assert.Equal(2.0, TuneScale(1, 1, 0.44))
	assert.InDelta(1.0, TuneScale(1, 0.44, 0.44), 1e-12)
	assert.Less(TuneScale(1, 0.2, 0.44), 1.0)
	assert.Greater(TuneScale(1, 0.6, 0.44), 1.0)

	// linear in log scale, hitting the halving/doubling ends
	assert.InDelta(0.5, TuneScale(1, 1e-12, 0.44), 1e-9)
	assert.InDelta(2.0, TuneScale(1, 1-1e-12, 0.44), 1e-9)
}

func TestAcceptRule(t *testing.T) {
	assert := assert.New(t)
	gen, err := rand.NewGenerator(1)
	require.NoError(t, err)
	inf := math.Inf(1)

	assert.True(Accept(gen, 1, 1, 0, 0, 0))
	assert.True(Accept(gen, 1, 1, 0.5, -0.2, -0.2))
	assert.False(Accept(gen, 1, 1, 0, math.NaN(), 0))
	assert.False(Accept(gen, 1, 1, 0, math.Inf(-1), 0))
	assert.False(Accept(gen, 1, 1, 0, -1000, 0))

	// zero heat ignores the likelihood entirely
	assert.True(Accept(gen, 1, 0, 0, 0, -1000))

	// hill climbing: strict improvement only
	assert.False(Accept(gen, 1, inf, 0, 5, 0))
	assert.True(Accept(gen, 1, inf, 0, -5, 0.1))
	assert.True(Accept(gen, inf, 1, 0, 0.1, -50))
	assert.False(Accept(gen, inf, inf, 0, 1, -1))
	assert.True(Accept(gen, inf, inf, 0, 1, -0.5))

	// acceptance frequency matches exp(r)
	hits := 0
	for i := 0; i < 20000; i++ {
		if Accept(gen, 1, 1, 0, math.Log(0.25), 0) {
			hits++
		}
	}
	assert.InDelta(0.25, float64(hits)/20000, 0.015)
}

func TestOutcomeNames(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "impossible", Impossible.String())
}

func TestStatsRoundTrip(t *testing.T) {
	assert := assert.New(t)

	m := latent(t, dist.NewNormal(model.Constant(0), model.Constant(1)), model.FloatValue(0))
	ctx := testContext(t, m, 4)
	p := NewMHNormal("x", 0, 0.5)
	run(t, ctx, []Proposer{p}, 200, 0, nil)
	assert.NotEqual(0.5, p.Scale())
	assert.Equal(int64(200), p.Stats().Proposed)

	raw, err := p.SaveState()
	require.NoError(t, err)
	q := NewMHNormal("x", 0, 0.5)
	assert.NoError(q.LoadState(raw))
	assert.Equal(p.Stats(), q.Stats())
	assert.Error(q.LoadState([]byte("{nope")))
}

func TestObserveHook(t *testing.T) {
	assert := assert.New(t)

	m := latent(t, dist.NewNormal(model.Constant(0), model.Constant(1)), model.FloatValue(0))
	ctx := testContext(t, m, 4)
	seen := map[Outcome]int{}
	ctx.Observe = func(name string, o Outcome) {
		assert.Equal("mh-normal(x)", name)
		seen[o]++
	}
	p := NewMHNormal("x", 0, 3)
	run(t, ctx, []Proposer{p}, 0, 100, nil)
	assert.Equal(100, seen[Accepted]+seen[Rejected]+seen[Impossible])
	assert.Equal(int64(seen[Accepted]), p.Stats().Accepted)
}

func TestMissingVariable(t *testing.T) {
	m := latent(t, dist.NewNormal(model.Constant(0), model.Constant(1)), model.FloatValue(0))
	ctx := testContext(t, m, 4)
	err := NewMHNormal("nope", 0, 1).Step(ctx)
	assert.True(t, model.IsModelError(err))
}

func TestImpossibleIsCounted(t *testing.T) {
	assert := assert.New(t)

	// a huge walk on a positive law keeps stepping below zero
	m := latent(t, dist.NewExponential(model.Constant(1)), model.FloatValue(0.1))
	ctx := testContext(t, m, 8)
	p := NewMHNormal("x", 0, 100)
	run(t, ctx, []Proposer{p}, 0, 200, nil)
	assert.Greater(p.Stats().Impossible, int64(50))
	x, err := m.Variable("x")
	require.NoError(t, err)
	assert.Greater(x.Float(), 0.0)
	assert.NoError(m.Verify(1e-9))
}

func TestFactory(t *testing.T) {
	assert := assert.New(t)

	m := model.New("factory")
	require.NoError(t, m.BeginConstruction())
	add := func(name string, law dist.Law, val model.Value, observed bool) {
		d, err := dist.Add(m, name+".law", law)
		require.NoError(t, err)
		v, err := m.AddVariable(name, val, observed)
		require.NoError(t, err)
		require.NoError(t, m.SetDistribution(v, d))
	}
	cat, err := dist.NewCategorical([]float64{1, 1})
	require.NoError(t, err)
	add("mu", dist.NewNormal(model.Constant(0), model.Constant(1)), model.FloatsValue([]float64{0, 0}), false)
	add("rate", dist.NewGamma(model.Constant(1), model.Constant(1)), model.FloatValue(1), false)
	add("p", dist.NewBeta(model.Constant(1), model.Constant(1)), model.FloatValue(0.5), false)
	add("flag", dist.NewBernoulli(model.Constant(0.5)), model.BoolValue(true), false)
	add("c", cat, model.IntValue(0), false)
	add("obs", dist.NewNormal(model.Constant(0), model.Constant(1)), model.FloatValue(0), true)
	_, err = m.AddPartition("z", []int{0, 1}, 2, true, true)
	require.NoError(t, err)
	require.NoError(t, m.EndConstruction())

	props, err := DefaultProposers(m, DefaultDEMCConfig())
	require.NoError(t, err)
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name()
	}
	assert.Equal([]string{
		"mh-normal(mu)", "mh-normal(mu.1)", "mh-multiplier(rate)", "mh-uniform(p)",
		"gibbs-binary(flag)", "gibbs-int(c)", "partition(z)", "demc",
	}, names)

	demc := DefaultDEMCConfig()
	demc.Enabled = false
	props, err = DefaultProposers(m, demc)
	require.NoError(t, err)
	assert.Len(props, 7)
}

func TestFactoryGibbsNoEmpty(t *testing.T) {
	m, _ := partitionOnly(t, []int{0, 1}, 2, false, true)
	_, err := DefaultProposers(m, DEMCConfig{})
	assert.ErrorIs(t, err, ErrNotImplemented)

	ctx := testContext(t, m, 1)
	err = NewPartitionProposer("z").Step(ctx)
	assert.ErrorIs(t, err, ErrNotImplemented)
}
