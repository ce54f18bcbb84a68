package mcmc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/CraigKelly/tempering/diag"
	"github.com/CraigKelly/tempering/model"
	"github.com/CraigKelly/tempering/rand"
	"github.com/pkg/errors"
)

// CheckpointVersion is the current checkpoint format version
const CheckpointVersion = "1.0.0"

// Checkpoint load failures
var (
	ErrCheckpointCorrupt = errors.New("checkpoint checksum mismatch")
	ErrCheckpointVersion = errors.New("checkpoint version mismatch")
)

// ProposerState is one proposer's saved state
type ProposerState struct {
	Name  string          `json:"name"`
	State json.RawMessage `json:"state"`
}

// ChainState is everything a chain needs to continue bit for bit
type ChainState struct {
	ID             int              `json:"id"`
	PriorHeat      float64          `json:"priorHeat"`
	LikelihoodHeat float64          `json:"likelihoodHeat"`
	Generator      rand.State       `json:"generator"`
	Proposers      []ProposerState  `json:"proposers"`
	Model          *model.Snapshot  `json:"model"`
	Trace          []float64        `json:"trace"`
	TraceSeen      int64            `json:"traceSeen"`
	Marginals      []*diag.Marginal `json:"marginals"`
	Swaps          SwapStats        `json:"swaps"`
	Sweeps         int64            `json:"sweeps"`
}

// Checkpoint is the whole controller at an iteration boundary
type Checkpoint struct {
	Version   string       `json:"version"`
	RunID     string       `json:"runId"`
	Timestamp time.Time    `json:"timestamp"`
	Iteration int64        `json:"iteration"`
	Config    Config       `json:"config"`
	Chains    []ChainState `json:"chains"`
	Checksum  string       `json:"checksum"`
}

// computeChecksum hashes every field but the checksum itself
func computeChecksum(cp *Checkpoint) (string, error) {
	data := *cp
	data.Checksum = ""
	raw, err := json.Marshal(&data)
	if err != nil {
		return "", errors.Wrap(err, "Could not marshal checkpoint for checksum")
	}
	hash := sha256.Sum256(raw)
	return hex.EncodeToString(hash[:]), nil
}

// Checkpoint captures the controller. It must not be called while RunFor
// is running.
func (c *Controller) Checkpoint() (*Checkpoint, error) {
	cp := &Checkpoint{
		Version:   CheckpointVersion,
		RunID:     c.runID,
		Timestamp: time.Now().UTC(),
		Iteration: c.iteration,
		Config:    c.cfg,
	}

	for _, ch := range c.chains {
		snap, err := ch.Model.Snapshot()
		if err != nil {
			return nil, errors.Wrapf(err, "Could not snapshot chain %d", ch.ID)
		}
		cs := ChainState{
			ID:             ch.ID,
			PriorHeat:      ch.PriorHeat,
			LikelihoodHeat: ch.LikelihoodHeat,
			Generator:      ch.Gen.State(),
			Model:          snap,
			Trace:          ch.Trace.Values(),
			TraceSeen:      ch.Trace.TotalSeen,
			Marginals:      ch.Marginals.Marginals(),
			Swaps:          ch.Swaps,
			Sweeps:         ch.Sweeps,
		}
		for _, p := range ch.Proposers {
			raw, err := p.SaveState()
			if err != nil {
				return nil, errors.Wrapf(err, "Could not save proposer %s of chain %d", p.Name(), ch.ID)
			}
			cs.Proposers = append(cs.Proposers, ProposerState{Name: p.Name(), State: raw})
		}
		cp.Chains = append(cp.Chains, cs)
	}

	sum, err := computeChecksum(cp)
	if err != nil {
		return nil, err
	}
	cp.Checksum = sum
	return cp, nil
}

// SaveCheckpoint writes the controller's checkpoint to path
func (c *Controller) SaveCheckpoint(path string) error {
	cp, err := c.Checkpoint()
	if err == nil {
		err = WriteCheckpoint(cp, path)
	}
	if err != nil {
		checkpointTotal.WithLabelValues("error").Inc()
		return err
	}
	checkpointTotal.WithLabelValues("ok").Inc()
	c.log.Info("checkpoint written", "run", c.runID, "iteration", c.iteration, "path", path)
	return nil
}

// WriteCheckpoint writes atomically: a temp file in the same directory is
// synced and then renamed over path.
func WriteCheckpoint(cp *Checkpoint, path string) error {
	if path == "" {
		return errors.New("Checkpoint path must not be empty")
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return errors.Wrap(err, "Could not marshal checkpoint")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*.tmp")
	if err != nil {
		return errors.Wrap(err, "Could not create checkpoint temp file")
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "Could not write checkpoint")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "Could not sync checkpoint")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "Could not close checkpoint")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "Could not rename checkpoint")
	}

	success = true
	return nil
}

// LoadCheckpoint reads a checkpoint and verifies its version and checksum
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Could not read checkpoint")
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errors.Wrapf(ErrCheckpointCorrupt, "unmarshal: %v", err)
	}
	if cp.Version != CheckpointVersion {
		return nil, errors.Wrapf(ErrCheckpointVersion, "got %s, want %s", cp.Version, CheckpointVersion)
	}

	want, err := computeChecksum(&cp)
	if err != nil {
		return nil, err
	}
	if cp.Checksum != want {
		return nil, ErrCheckpointCorrupt
	}
	return &cp, nil
}

// Resume rebuilds a controller from a checkpoint. Models come from build
// and proposers from the factory (options as for New); both must produce
// the same shapes and proposer names as the run that wrote cp.
func Resume(cp *Checkpoint, build Builder, opts ...Option) (*Controller, error) {
	c, err := newController(cp.Config, build, opts)
	if err != nil {
		return nil, err
	}
	if len(cp.Chains) != cp.Config.ChainCount {
		return nil, errors.Wrapf(ErrCheckpointCorrupt, "%d chains saved, config has %d", len(cp.Chains), cp.Config.ChainCount)
	}

	for i, cs := range cp.Chains {
		if cs.ID != i {
			return nil, errors.Wrapf(ErrCheckpointCorrupt, "chain %d saved at position %d", cs.ID, i)
		}

		m, err := build()
		if err != nil {
			return nil, errors.Wrapf(err, "Could not build model for chain %d", i)
		}
		if cs.Model == nil {
			return nil, errors.Wrapf(ErrCheckpointCorrupt, "chain %d has no model", i)
		}
		if err := m.Restore(cs.Model); err != nil {
			return nil, errors.Wrapf(err, "Could not restore chain %d", i)
		}

		gen, err := rand.Restore(cs.Generator)
		if err != nil {
			return nil, errors.Wrapf(err, "Could not restore generator of chain %d", i)
		}

		props, err := c.proposers(m, cp.Config)
		if err != nil {
			return nil, errors.Wrapf(err, "Could not create proposers for chain %d", i)
		}
		if len(props) != len(cs.Proposers) {
			return nil, errors.Errorf("Chain %d has %d proposers, checkpoint has %d", i, len(props), len(cs.Proposers))
		}
		for j, p := range props {
			ps := cs.Proposers[j]
			if p.Name() != ps.Name {
				return nil, errors.Errorf("Chain %d proposer %d is %s, checkpoint has %s", i, j, p.Name(), ps.Name)
			}
			if err := p.LoadState(ps.State); err != nil {
				return nil, err
			}
		}

		ch, err := NewChain(i, m, gen, cs.PriorHeat, cs.LikelihoodHeat, props, cp.Config.TraceWindow)
		if err != nil {
			return nil, err
		}
		ch.Trace.Restore(cs.Trace, cs.TraceSeen)
		ch.Marginals.Restore(cs.Marginals)
		ch.Swaps = cs.Swaps
		ch.Sweeps = cs.Sweeps
		c.chains = append(c.chains, ch)
	}

	c.runID = cp.RunID
	c.iteration = cp.Iteration
	c.log.Info("controller resumed", "run", c.runID, "iteration", c.iteration, "chains", len(c.chains))
	return c, nil
}
