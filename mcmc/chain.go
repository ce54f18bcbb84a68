package mcmc

import (
	"log/slog"

	"github.com/CraigKelly/tempering/buffer"
	"github.com/CraigKelly/tempering/diag"
	"github.com/CraigKelly/tempering/model"
	"github.com/CraigKelly/tempering/rand"
	"github.com/CraigKelly/tempering/sampler"
	"github.com/pkg/errors"
)

// SwapStats counts swap proposals for the pair a chain is the lower member of
type SwapStats struct {
	Proposed int64 `json:"proposed"`
	Accepted int64 `json:"accepted"`
}

// Rate is the swap acceptance rate
func (s SwapStats) Rate() float64 {
	if s.Proposed == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Proposed)
}

// Chain is one tempered replica. The heats, generator and proposers belong
// to the chain; the Model is only on loan and changes hands on a swap.
type Chain struct {
	ID             int
	PriorHeat      float64
	LikelihoodHeat float64
	Model          *model.Model
	Gen            *rand.Generator
	Proposers      []sampler.Proposer

	Trace     *buffer.Circular[float64] // recent untempered log posteriors
	Marginals *diag.Tracker             // discrete marginals over sampled iterations
	Swaps     SwapStats
	Sweeps    int64
}

// NewChain returns a chain ready to go
func NewChain(id int, mod *model.Model, gen *rand.Generator, tp, tl float64, props []sampler.Proposer, window int) (*Chain, error) {
	if mod == nil || !mod.Ready() {
		return nil, errors.Errorf("Chain %d needs a model whose construction has ended", id)
	}
	if gen == nil {
		return nil, errors.Errorf("Chain %d has no generator", id)
	}
	if len(props) < 1 {
		return nil, errors.Errorf("Chain %d has no proposers", id)
	}

	return &Chain{
		ID:             id,
		PriorHeat:      tp,
		LikelihoodHeat: tl,
		Model:          mod,
		Gen:            gen,
		Proposers:      props,
		Trace:          buffer.NewCircular[float64](window),
		Marginals:      diag.NewTracker(),
	}, nil
}

// context is built per sweep since the model may have been swapped
func (c *Chain) context() *sampler.Context {
	return &sampler.Context{
		Model:          c.Model,
		Gen:            c.Gen,
		PriorHeat:      c.PriorHeat,
		LikelihoodHeat: c.LikelihoodHeat,
		Observe: func(name string, o sampler.Outcome) {
			proposalTotal.WithLabelValues(name, o.String()).Inc()
		},
	}
}

// Sweep runs every proposer once, in order, then records the trace
func (c *Chain) Sweep() error {
	ctx := c.context()
	for _, p := range c.Proposers {
		if err := p.Step(ctx); err != nil {
			return errors.Wrapf(err, "Chain %d proposer %s failed", c.ID, p.Name())
		}
	}
	c.Trace.Add(c.LogPosterior())
	c.Sweeps++
	return nil
}

// Tune asks every proposer to move toward the target acceptance rate
func (c *Chain) Tune(target float64, log *slog.Logger) {
	for _, p := range c.Proposers {
		before := p.Stats()
		p.Tune(target)
		after := p.Stats()

		rate := 0.0
		if before.WindowProp > 0 {
			rate = float64(before.WindowAcc) / float64(before.WindowProp)
		}
		log.Debug("tuned proposer",
			"chain", c.ID,
			"proposer", p.Name(),
			"window", before.WindowProp,
			"rate", rate,
			"scaleBefore", before.Scale,
			"scaleAfter", after.Scale)
	}
}

// LogPosterior is the untempered log density of the current model
func (c *Chain) LogPosterior() float64 {
	return c.Model.LogPrior() + c.Model.LogLikelihood()
}

// Proposer finds a proposer by name
func (c *Chain) Proposer(name string) sampler.Proposer {
	for _, p := range c.Proposers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}
