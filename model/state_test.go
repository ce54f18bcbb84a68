package model

import (
	"encoding/json"
	"testing"

	"github.com/CraigKelly/tempering/rand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRestore(t *testing.T) {
	assert := assert.New(t)

	data := []float64{-5.1, -4.8, 5.2, 4.9}
	src, err := buildMixtureModel(data, []int{0, 0, 1, 1}, true)
	require.NoError(t, err)

	tx, err := src.m.BeginProposal()
	require.NoError(t, err)
	assert.NoError(tx.Move(src.part, 1, 1))
	assert.NoError(tx.Move(src.part, 3, 0))
	assert.NoError(tx.EndProposal())
	assert.NoError(tx.Accept())

	snap, err := src.m.Snapshot()
	require.NoError(t, err)

	// through JSON like a checkpoint
	buf, err := json.Marshal(snap)
	require.NoError(t, err)
	var loaded Snapshot
	require.NoError(t, json.Unmarshal(buf, &loaded))

	dst, err := buildMixtureModel(data, []int{0, 0, 1, 1}, true)
	require.NoError(t, err)
	assert.NoError(dst.m.Restore(&loaded))

	assert.Equal(src.m.LogPrior(), dst.m.LogPrior())
	assert.Equal(src.m.LogLikelihood(), dst.m.LogLikelihood())
	assert.Equal([]int{0, 1, 1, 0}, dst.part.Ints())
	for i := range data {
		assert.Equal(dst.laws[dst.part.Group(i)], dst.xs[i].Distribution())
		assert.Equal(src.xs[i].LogP(), dst.xs[i].LogP())
	}
	checkPartition(t, dst.part)
	assert.NoError(dst.m.Verify(1e-9))
}

func TestRestoreShapeMismatch(t *testing.T) {
	assert := assert.New(t)

	a, err := buildNormalModel(1, 2)
	require.NoError(t, err)
	b, err := buildNormalModel(1)
	require.NoError(t, err)

	snap, err := a.m.Snapshot()
	require.NoError(t, err)
	assert.True(IsModelError(b.m.Restore(snap)))
}

func TestRestoreContinuesIdentically(t *testing.T) {
	assert := assert.New(t)

	a, err := buildNormalModel(0.2, 0.4)
	require.NoError(t, err)
	gen, err := rand.NewGenerator(11)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		tx, err := a.m.BeginProposal()
		require.NoError(t, err)
		assert.NoError(tx.SetFloat(a.mu, a.mu.Float()+0.1*gen.NormFloat64()))
		assert.NoError(tx.EndProposal())
		assert.NoError(tx.Accept())
	}

	snap, err := a.m.Snapshot()
	require.NoError(t, err)
	b, err := buildNormalModel(0.2, 0.4)
	require.NoError(t, err)
	assert.NoError(b.m.Restore(snap))

	for _, nm := range []*normalModel{a, b} {
		tx, err := nm.m.BeginProposal()
		require.NoError(t, err)
		assert.NoError(tx.SetFloat(nm.mu, 0.3))
		assert.NoError(tx.EndProposal())
		assert.NoError(tx.Accept())
	}
	assert.Equal(a.m.LogPrior(), b.m.LogPrior())
	assert.Equal(a.m.LogLikelihood(), b.m.LogLikelihood())
}
