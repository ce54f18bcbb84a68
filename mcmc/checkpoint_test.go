package mcmc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CraigKelly/tempering/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointResumeIsBitIdentical(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig()
	path := filepath.Join(t.TempDir(), "run.ckpt")

	straight := newTestController(t, cfg)
	require.NoError(t, straight.RunFor(bg(), 60))
	require.NoError(t, straight.SaveCheckpoint(path))
	require.NoError(t, straight.RunFor(bg(), 90))

	cp, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(CheckpointVersion, cp.Version)
	assert.Equal(straight.RunID(), cp.RunID)
	assert.Equal(int64(60), cp.Iteration)

	resumed, err := Resume(cp, testBuilder(testData...), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(straight.RunID(), resumed.RunID())
	assert.Equal(int64(60), resumed.Iteration())
	require.NoError(t, resumed.RunFor(bg(), 90))

	assert.Equal(int64(150), resumed.Iteration())
	assert.Equal(chainsJSON(t, straight), chainsJSON(t, resumed))

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(entries, 1)
}

func TestRunWritesCheckpoints(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig()
	cfg.BurnIn = 20
	cfg.Iterations = 30
	cfg.CheckpointEvery = 20
	cfg.CheckpointPath = filepath.Join(t.TempDir(), "run.ckpt")

	c := newTestController(t, cfg)
	require.NoError(t, c.Run(bg()))

	cp, err := LoadCheckpoint(cfg.CheckpointPath)
	require.NoError(t, err)
	assert.Equal(int64(50), cp.Iteration)
	assert.Equal(cfg, cp.Config)
	require.Len(t, cp.Chains, cfg.ChainCount)
	for i, cs := range cp.Chains {
		assert.Equal(i, cs.ID)
		assert.Equal(int64(50), cs.Sweeps)
		assert.Len(cs.Proposers, 4)
		assert.NotNil(cs.Model)
	}
}

func TestLoadCheckpointRejectsTampering(t *testing.T) {
	assert := assert.New(t)

	c := newTestController(t, testConfig())
	require.NoError(t, c.RunFor(bg(), 10))
	dir := t.TempDir()
	path := filepath.Join(dir, "run.ckpt")
	require.NoError(t, c.SaveCheckpoint(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	require.Contains(t, text, `"iteration": 10`)

	tampered := filepath.Join(dir, "tampered.ckpt")
	require.NoError(t, os.WriteFile(tampered, []byte(strings.Replace(text, `"iteration": 10`, `"iteration": 11`, 1)), 0o644))
	_, err = LoadCheckpoint(tampered)
	assert.Equal(ErrCheckpointCorrupt, errors.Cause(err))

	versioned := filepath.Join(dir, "versioned.ckpt")
	require.NoError(t, os.WriteFile(versioned, []byte(strings.Replace(text, CheckpointVersion, "0.0.1", 1)), 0o644))
	_, err = LoadCheckpoint(versioned)
	assert.Equal(ErrCheckpointVersion, errors.Cause(err))

	garbage := filepath.Join(dir, "garbage.ckpt")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0o644))
	_, err = LoadCheckpoint(garbage)
	assert.Equal(ErrCheckpointCorrupt, errors.Cause(err))

	_, err = LoadCheckpoint(filepath.Join(dir, "missing.ckpt"))
	assert.Error(err)
}

func TestResumeChecksShape(t *testing.T) {
	assert := assert.New(t)

	c := newTestController(t, testConfig())
	require.NoError(t, c.RunFor(bg(), 10))
	cp, err := c.Checkpoint()
	require.NoError(t, err)

	_, err = Resume(cp, testBuilder(1, 2), WithLogger(quietLogger()))
	assert.Error(err, "variable count differs")

	other := func() (*model.Model, error) {
		m := model.New("other")
		if err := m.BeginConstruction(); err != nil {
			return nil, err
		}
		return m, m.EndConstruction()
	}
	_, err = Resume(cp, other, WithLogger(quietLogger()))
	assert.Error(err)

	cp.Chains = cp.Chains[:1]
	_, err = Resume(cp, testBuilder(testData...), WithLogger(quietLogger()))
	assert.Equal(ErrCheckpointCorrupt, errors.Cause(err))
}

func TestWriteCheckpointErrors(t *testing.T) {
	assert := assert.New(t)
	cp := &Checkpoint{Version: CheckpointVersion}
	assert.Error(WriteCheckpoint(cp, ""))
	assert.Error(WriteCheckpoint(cp, filepath.Join(t.TempDir(), "missing", "run.ckpt")))
}
