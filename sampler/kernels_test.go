package sampler

import (
	"testing"

	"github.com/CraigKelly/tempering/dist"
	"github.com/CraigKelly/tempering/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

// trace runs props and returns the post burn-in values of x (component i)
func trace(t *testing.T, m *model.Model, props []Proposer, seed int64, burnIn, n, i int) []float64 {
	ctx := testContext(t, m, seed)
	x, err := m.Variable("x")
	require.NoError(t, err)
	out := make([]float64, 0, n)
	read := func() float64 { return x.Float() }
	if x.Kind() == model.KindFloatArray {
		read = func() float64 { return x.FloatAt(i) }
	}
	run(t, ctx, props, burnIn, n, func() {
		out = append(out, read())
	})
	require.NoError(t, m.Verify(1e-6))
	return out
}

func TestGibbsBinaryBernoulli(t *testing.T) {
	m := latent(t, dist.NewBernoulli(model.Constant(0.3)), model.BoolValue(false))
	xs := trace(t, m, []Proposer{NewGibbsBinary("x")}, 1234, 5000, 5000, 0)
	assert.InDelta(t, 0.3, stat.Mean(xs, nil), 0.02)
}

func TestMHNormalStandardNormal(t *testing.T) {
	assert := assert.New(t)

	m := latent(t, dist.NewNormal(model.Constant(0), model.Constant(1)), model.FloatValue(3))
	xs := trace(t, m, []Proposer{NewMHNormal("x", 0, 0.1)}, 99, 5000, 50000, 0)
	mean, sd := stat.MeanStdDev(xs, nil)
	assert.InDelta(0, mean, 0.1)
	assert.InDelta(1, sd, 0.1)
}

func TestMHUniformBeta(t *testing.T) {
	m := latent(t, dist.NewBeta(model.Constant(2), model.Constant(5)), model.FloatValue(0.9))
	xs := trace(t, m, []Proposer{NewMHUniform("x", 0, 0.5)}, 21, 2000, 40000, 0)
	assert.InDelta(t, 2.0/7.0, stat.Mean(xs, nil), 0.03)
}

func TestMHMultiplierGamma(t *testing.T) {
	m := latent(t, dist.NewGamma(model.Constant(2), model.Constant(1)), model.FloatValue(10))
	xs := trace(t, m, []Proposer{NewMHMultiplier("x", 0, 1)}, 5, 2000, 40000, 0)
	assert.InDelta(t, 2.0, stat.Mean(xs, nil), 0.15)
}

func TestGibbsIntCategorical(t *testing.T) {
	cat, err := dist.NewCategorical([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	m := latent(t, cat, model.IntValue(0))
	xs := trace(t, m, []Proposer{NewGibbsInt("x")}, 17, 100, 20000, 0)
	assert.InDelta(t, 2.0, stat.Mean(xs, nil), 0.05)
}

func TestSequentialIntCategorical(t *testing.T) {
	cat, err := dist.NewCategorical([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	m := latent(t, cat, model.IntValue(0))
	xs := trace(t, m, []Proposer{NewSequentialInt("x")}, 17, 1000, 50000, 0)
	assert.InDelta(t, 2.0, stat.Mean(xs, nil), 0.1)
}

func TestHotGibbsBinaryClimbs(t *testing.T) {
	m := latent(t, dist.NewBernoulli(model.Constant(0.3)), model.BoolValue(true))
	ctx := testContext(t, m, 1)
	ctx.PriorHeat = posInf
	p := NewGibbsBinary("x")
	run(t, ctx, []Proposer{p}, 0, 10, nil)
	x, err := m.Variable("x")
	require.NoError(t, err)
	assert.False(t, x.Bool())
	assert.Equal(t, int64(1), p.Stats().Accepted)
}

// y ~ Normal(x, 1) observed at 1, x ~ Bernoulli(0.5) starting false:
// flipping x leaves the prior unchanged and improves the likelihood.
func flatPriorBetterLikelihood(t *testing.T) *model.Model {
	m := model.New("climb")
	require.NoError(t, m.BeginConstruction())
	prior, err := dist.Add(m, "prior", dist.NewBernoulli(model.Constant(0.5)))
	require.NoError(t, err)
	x, err := m.AddVariable("x", model.BoolValue(false), false)
	require.NoError(t, err)
	require.NoError(t, m.SetDistribution(x, prior))
	lik, err := dist.Add(m, "lik", dist.NewNormal(x, model.Constant(1)))
	require.NoError(t, err)
	y, err := m.AddVariable("y", model.FloatValue(1), true)
	require.NoError(t, err)
	require.NoError(t, m.SetDistribution(y, lik))
	require.NoError(t, m.EndConstruction())
	return m
}

func TestHotGibbsBinaryMatchesAccept(t *testing.T) {
	assert := assert.New(t)

	// an infinite prior heat needs a strict prior improvement
	m := flatPriorBetterLikelihood(t)
	ctx := testContext(t, m, 3)
	ctx.PriorHeat = posInf
	p := NewGibbsBinary("x")
	run(t, ctx, []Proposer{p}, 0, 5, nil)
	x, err := m.Variable("x")
	require.NoError(t, err)
	assert.False(x.Bool())
	assert.Equal(int64(0), p.Stats().Accepted)

	// an infinite likelihood heat takes the likelihood gain
	m = flatPriorBetterLikelihood(t)
	ctx = testContext(t, m, 3)
	ctx.LikelihoodHeat = posInf
	p = NewGibbsBinary("x")
	run(t, ctx, []Proposer{p}, 0, 5, nil)
	x, err = m.Variable("x")
	require.NoError(t, err)
	assert.True(x.Bool())
	assert.Equal(int64(1), p.Stats().Accepted)
}

func TestClimbNeedsStrictGain(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(1, climb([]float64{0, 0, -1}, 1))
	assert.Equal(2, climb([]float64{0, 0.5, 2}, 0))
	assert.Equal(0, climb([]float64{0, -1}, 0))
	assert.Equal(1, climb([]float64{-1, 3}, 7))
}

func TestMHRejectsNonRealVariable(t *testing.T) {
	assert := assert.New(t)

	cat, err := dist.NewCategorical([]float64{1, 1})
	require.NoError(t, err)
	m := latent(t, cat, model.IntValue(0))
	ctx := testContext(t, m, 1)
	assert.Error(NewMHNormal("x", 0, 1).Step(ctx))

	// no transaction was left open
	tx, err := m.BeginProposal()
	require.NoError(t, err)
	require.NoError(t, tx.Reject())

	arr := latent(t, dist.NewNormal(model.Constant(0), model.Constant(1)), model.FloatsValue([]float64{0, 1}))
	assert.Error(NewMHNormal("x", 2, 1).Step(testContext(t, arr, 1)))
	assert.NoError(NewMHNormal("x", 1, 1).Step(testContext(t, arr, 1)))
}
