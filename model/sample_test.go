package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModel(t *testing.T, names ...string) *Model {
	m := New("samples")
	require.NoError(t, m.BeginConstruction())
	for _, n := range names {
		var val Value
		switch n {
		case "flag":
			val = BoolValue(true)
		case "count":
			val = IntValue(3)
		case "w":
			val = FloatsValue([]float64{0.25, 0.75})
		default:
			val = FloatValue(1.5)
		}
		_, err := m.AddVariable(n, val, false)
		require.NoError(t, err)
	}
	_, err := m.AddVariable("data", FloatValue(9), true)
	require.NoError(t, err)
	require.NoError(t, m.EndConstruction())
	return m
}

func TestFlatSample(t *testing.T) {
	assert := assert.New(t)

	m := sampleModel(t, "theta.mu", "flag", "w", "count")
	fs := m.FlatSample()

	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Name
	}
	assert.Equal([]string{"theta.mu", "flag", "w.0", "w.1", "count"}, names)
	assert.Equal(1.5, fs[0].Value)
	assert.Equal(true, fs[1].Value)
	assert.Equal(0.75, fs[3].Value)
	assert.Equal(3, fs[4].Value)
}

func TestHierarchicalSample(t *testing.T) {
	assert := assert.New(t)

	m := sampleModel(t, "theta.mu", "theta.sigma", "w")
	hs, err := m.HierarchicalSample()
	assert.NoError(err)
	assert.Equal(map[string]interface{}{
		"theta": map[string]interface{}{"mu": 1.5, "sigma": 1.5},
		"w":     []float64{0.25, 0.75},
	}, hs)

	m = sampleModel(t, "theta", "theta.mu")
	_, err = m.HierarchicalSample()
	assert.True(IsModelError(err))

	m = sampleModel(t, "theta.mu", "theta")
	_, err = m.HierarchicalSample()
	assert.True(IsModelError(err))
}
