package model

import (
	"math"
	"testing"

	"github.com/CraigKelly/tempering/rand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndConstructionOnce(t *testing.T) {
	assert := assert.New(t)

	nm, err := buildNormalModel(1.0, 2.0)
	require.NoError(t, err)
	assert.True(nm.m.Ready())

	// exactly one initial update per node
	assert.Equal(1, nm.prior.updates)
	assert.Equal(1, nm.lik.updates)

	err = nm.m.EndConstruction()
	assert.Error(err)
	assert.True(IsModelError(err))
	assert.Equal(1, nm.lik.updates)

	assert.Error(nm.m.BeginConstruction())
}

func TestInitialTotals(t *testing.T) {
	assert := assert.New(t)

	nm, err := buildNormalModel(1.0, 2.0)
	require.NoError(t, err)

	norm := func(x, mu float64) float64 {
		return -0.5*(x-mu)*(x-mu) - 0.5*math.Log(2*math.Pi)
	}
	assert.InDelta(norm(0.5, 0), nm.m.LogPrior(), 1e-12)
	assert.InDelta(norm(1.0, 0.5)+norm(2.0, 0.5), nm.m.LogLikelihood(), 1e-12)
}

func TestFrozenTopology(t *testing.T) {
	assert := assert.New(t)

	nm, err := buildNormalModel(1.0)
	require.NoError(t, err)
	m := nm.m

	_, err = m.AddVariable("late", FloatValue(1), false)
	assert.True(IsModelError(err))

	pd, err := m.Node("muPrior")
	require.NoError(t, err)
	ld, err := m.Node("lik")
	require.NoError(t, err)
	err = m.UpdateEdge(nm.xs[0], ld, pd)
	assert.True(IsModelError(err))
	assert.Equal(ld, Node(nm.xs[0].Distribution()))
}

func TestEdgeChecks(t *testing.T) {
	assert := assert.New(t)

	m := New("edges")
	assert.NoError(m.BeginConstruction())
	a, err := m.AddVariable("a", FloatValue(1), false)
	require.NoError(t, err)
	b, err := m.AddVariable("b", FloatValue(1), false)
	require.NoError(t, err)
	d1, err := m.AddDistribution("d1", expLaw{})
	require.NoError(t, err)
	d2, err := m.AddDistribution("d2", expLaw{})
	require.NoError(t, err)

	assert.True(IsModelError(m.AddEdge(a, b)))  // variable -> variable
	assert.True(IsModelError(m.AddEdge(d1, d1))) // self edge
	assert.NoError(m.SetDistribution(a, d1))
	assert.True(IsModelError(m.SetDistribution(a, d2))) // second law
	assert.True(IsModelError(m.AddEdge(d2, a)))

	_, err = m.AddVariable("a", FloatValue(1), false)
	assert.True(IsModelError(err))
	_, err = m.Variable("nope")
	assert.True(IsModelError(err))

	assert.NoError(m.SetDistribution(b, d1))
	assert.NoError(m.EndConstruction())
	assert.Len(m.Edges(), 2)
}

func TestCycleDetected(t *testing.T) {
	assert := assert.New(t)

	m := New("cycle")
	assert.NoError(m.BeginConstruction())
	f1, err := m.AddFunction("f1", &sumFunc{})
	require.NoError(t, err)
	f2, err := m.AddFunction("f2", &sumFunc{}, f1)
	require.NoError(t, err)
	assert.NoError(m.AddEdge(f2, f1))

	err = m.EndConstruction()
	assert.Error(err)
	assert.True(IsModelError(err))
	assert.False(m.Ready())
}

func TestRoundTripRestoration(t *testing.T) {
	assert := assert.New(t)

	nm, err := buildNormalModel(0.3, -1.2, 2.5)
	require.NoError(t, err)
	m := nm.m
	gen, err := rand.NewGenerator(42)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		lp, ll := m.LogPrior(), m.LogLikelihood()
		logps := make([]float64, 0, len(m.Variables()))
		for _, v := range m.Variables() {
			logps = append(logps, v.LogP())
		}
		before := nm.mu.Float()

		tx, err := m.BeginProposal()
		require.NoError(t, err)
		assert.NoError(tx.SetFloat(nm.mu, before+gen.NormFloat64()))
		assert.NoError(tx.EndProposal())
		assert.NotEqual(lp, tx.LogPrior())

		if i%2 == 0 {
			assert.NoError(tx.Reject())
			// exact, not approximate
			assert.Equal(lp, m.LogPrior())
			assert.Equal(ll, m.LogLikelihood())
			assert.Equal(before, nm.mu.Float())
			for j, v := range m.Variables() {
				assert.Equal(logps[j], v.LogP())
			}
		} else {
			assert.NoError(tx.Accept())
		}
	}

	assert.NoError(m.Verify(1e-9))
}

func TestOnlyChangedDependentsUpdate(t *testing.T) {
	assert := assert.New(t)

	nm, err := buildNormalModel(1.0)
	require.NoError(t, err)
	m := nm.m

	// mutating an observed leaf does not touch the laws
	tx, err := m.BeginProposal()
	require.NoError(t, err)
	assert.NoError(tx.SetFloat(nm.xs[0], 3.0))
	assert.NoError(tx.EndProposal())
	assert.Equal(1, nm.lik.updates)
	assert.Equal(1, nm.prior.updates)
	assert.Equal(0.0, tx.DeltaLogPrior())
	assert.NoError(tx.Reject())

	// mutating mu updates the likelihood law once
	tx, err = m.BeginProposal()
	require.NoError(t, err)
	assert.NoError(tx.SetFloat(nm.mu, 0.0))
	assert.NoError(tx.SetFloat(nm.mu, 0.1))
	assert.NoError(tx.EndProposal())
	assert.Equal(2, nm.lik.updates)
	assert.NoError(tx.Accept())
	assert.NoError(m.Verify(1e-12))
}

func TestTransactionProtocol(t *testing.T) {
	assert := assert.New(t)

	nm, err := buildNormalModel(1.0)
	require.NoError(t, err)
	m := nm.m

	tx, err := m.BeginProposal()
	require.NoError(t, err)
	_, err = m.BeginProposal()
	assert.True(IsModelError(err))

	assert.True(IsModelError(tx.Accept())) // before EndProposal
	assert.True(IsModelError(tx.Set(nm.mu, IntValue(1))))
	assert.NoError(tx.EndProposal())
	assert.True(IsModelError(tx.SetFloat(nm.mu, 1)))
	assert.NoError(tx.Accept())
	assert.True(IsModelError(tx.Reject()))

	// a new one may open now
	tx, err = m.BeginProposal()
	require.NoError(t, err)
	assert.NoError(tx.Reject())

	other, err := buildNormalModel(1.0)
	require.NoError(t, err)
	tx, err = m.BeginProposal()
	require.NoError(t, err)
	assert.True(IsModelError(tx.SetFloat(other.mu, 1)))
	assert.NoError(tx.Reject())
}

func TestImpossibleProposal(t *testing.T) {
	assert := assert.New(t)

	m := New("positive")
	assert.NoError(m.BeginConstruction())
	d, err := m.AddDistribution("exp", expLaw{})
	require.NoError(t, err)
	v, err := m.AddVariable("rate", FloatValue(2), false)
	require.NoError(t, err)
	assert.NoError(m.SetDistribution(v, d))
	assert.NoError(m.EndConstruction())
	assert.Equal(-2.0, m.LogPrior())

	tx, err := m.BeginProposal()
	require.NoError(t, err)
	assert.NoError(tx.SetFloat(v, -1))
	err = tx.EndProposal()
	assert.True(IsImpossible(err))
	assert.True(tx.Impossible())
	assert.True(IsModelError(tx.Accept()))
	assert.NoError(tx.Reject())

	assert.Equal(2.0, v.Float())
	assert.Equal(-2.0, v.LogP())
	assert.Equal(-2.0, m.LogPrior())
}

func TestInvalidInitialState(t *testing.T) {
	m := New("bad")
	assert.NoError(t, m.BeginConstruction())
	d, err := m.AddDistribution("exp", expLaw{})
	require.NoError(t, err)
	v, err := m.AddVariable("rate", FloatValue(-2), false)
	require.NoError(t, err)
	assert.NoError(t, m.SetDistribution(v, d))
	assert.Error(t, m.EndConstruction())
}

func TestFunctionPropagation(t *testing.T) {
	assert := assert.New(t)

	m := New("sum")
	assert.NoError(m.BeginConstruction())
	a, err := m.AddVariable("a", FloatValue(1), false)
	require.NoError(t, err)
	b, err := m.AddVariable("b", FloatValue(2), false)
	require.NoError(t, err)
	sum := &sumFunc{inputs: []FloatValued{a, b}}
	f, err := m.AddFunction("sum", sum, a, b)
	require.NoError(t, err)
	law := &gaussLaw{mean: f, sd: 1}
	d, err := m.AddDistribution("law", law, f)
	require.NoError(t, err)
	y, err := m.AddVariable("y", FloatValue(3), true)
	require.NoError(t, err)
	assert.NoError(m.SetDistribution(y, d))
	assert.NoError(m.EndConstruction())

	assert.Equal(3.0, f.Float())
	assert.InDelta(-0.5*math.Log(2*math.Pi), m.LogLikelihood(), 1e-12)

	tx, err := m.BeginProposal()
	require.NoError(t, err)
	assert.NoError(tx.SetFloat(a, 2))
	assert.NoError(tx.EndProposal())
	assert.Equal(4.0, f.Float())
	assert.InDelta(-0.5, tx.DeltaLogLikelihood(), 1e-12)
	assert.NoError(tx.Reject())
	assert.Equal(3.0, f.Float())
	assert.Equal(3.0, law.mu)
}

func TestVerifyDrift(t *testing.T) {
	assert := assert.New(t)

	nm, err := buildNormalModel(1.0)
	require.NoError(t, err)
	assert.NoError(nm.m.Verify(1e-9))

	nm.xs[0].logP += 0.5
	err = nm.m.Verify(1e-9)
	var drift *DriftError
	assert.ErrorAs(err, &drift)
	assert.Equal("x.a", drift.Name)

	// re-anchored, now clean
	assert.NoError(nm.m.Verify(1e-9))

	nm.m.logPrior += 1
	err = nm.m.Verify(1e-9)
	assert.ErrorAs(err, &drift)
	assert.Equal("logPrior", drift.Name)
}

func TestInitializeFromPrior(t *testing.T) {
	assert := assert.New(t)

	nm, err := buildNormalModel(1.0, 2.0)
	require.NoError(t, err)
	gen, err := rand.NewGenerator(7)
	require.NoError(t, err)

	assert.NoError(nm.m.InitializeFromPrior(gen))
	assert.NotEqual(0.5, nm.mu.Float())
	// observed data untouched
	assert.Equal(1.0, nm.xs[0].Float())
	assert.Equal(2.0, nm.xs[1].Float())
	assert.NoError(nm.m.Verify(1e-9))
}

func TestHeatedDelta(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(0.0, heated(0, math.Inf(-1)))
	assert.Equal(0.0, heated(math.Inf(1), 0))
	assert.True(math.IsInf(heated(math.Inf(1), 2), 1))
	assert.True(math.IsInf(heated(math.Inf(1), -2), -1))
	assert.Equal(1.5, heated(0.5, 3))
}
