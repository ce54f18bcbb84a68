package sampler

import (
	"math"
	"testing"

	"github.com/CraigKelly/tempering/dist"
	"github.com/CraigKelly/tempering/model"
	"github.com/CraigKelly/tempering/rand"
	"github.com/stretchr/testify/require"
)

// latent builds a model with a single latent variable x ~ law
func latent(t *testing.T, law dist.Law, val model.Value) *model.Model {
	m := model.New("test")
	require.NoError(t, m.BeginConstruction())
	d, err := dist.Add(m, "law", law)
	require.NoError(t, err)
	v, err := m.AddVariable("x", val, false)
	require.NoError(t, err)
	require.NoError(t, m.SetDistribution(v, d))
	require.NoError(t, m.EndConstruction())
	return m
}

func testContext(t *testing.T, m *model.Model, seed int64) *Context {
	gen, err := rand.NewGenerator(seed)
	require.NoError(t, err)
	return &Context{Model: m, Gen: gen, PriorHeat: 1, LikelihoodHeat: 1}
}

// run steps every proposer burnIn+n times, tuning during burn-in, and
// calls record after each post burn-in iteration
func run(t *testing.T, ctx *Context, props []Proposer, burnIn, n int, record func()) {
	for i := 0; i < burnIn+n; i++ {
		for _, p := range props {
			require.NoError(t, p.Step(ctx))
		}
		if i < burnIn && (i+1)%100 == 0 {
			for _, p := range props {
				p.Tune(0.44)
			}
		}
		if i >= burnIn && record != nil {
			record()
		}
	}
}

// partitionOnly is a model holding one partition with no law, so every
// assignment is equally likely
func partitionOnly(t *testing.T, assign []int, k int, allowsEmpty, useGibbs bool) (*model.Model, *model.PartitionVariable) {
	m := model.New("flat")
	require.NoError(t, m.BeginConstruction())
	p, err := m.AddPartition("z", assign, k, allowsEmpty, useGibbs)
	require.NoError(t, err)
	require.NoError(t, m.EndConstruction())
	return m, p
}

// countingNormal counts density evaluations
type countingNormal struct {
	*dist.Normal
	calls int
}

func (c *countingNormal) LogP(v *model.Variable) float64 {
	c.calls++
	return c.Normal.LogP(v)
}

var posInf = math.Inf(1)
