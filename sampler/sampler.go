// Package sampler holds the proposal kernels that move a model.Model: the
// shared tempered acceptance rule, scale tuning, Metropolis-Hastings and
// Gibbs kernels for single variables, block differential evolution and
// partition reassignment.
package sampler

import (
	"encoding/json"
	"math"

	"github.com/CraigKelly/tempering/model"
	"github.com/CraigKelly/tempering/rand"
	"github.com/pkg/errors"
)

// ErrNotImplemented is returned for the Gibbs kernel over partitions that
// may not leave a group empty.
var ErrNotImplemented = errors.New("not implemented")

// Outcome of one proposal
type Outcome int

// Proposal outcomes
const (
	Accepted Outcome = iota
	Rejected
	Impossible
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	}
	return "impossible"
}

// Context is everything a proposer reads for one step. Model is looked up
// fresh each step because a swap may hand the chain a different model.
type Context struct {
	Model          *model.Model
	Gen            *rand.Generator
	PriorHeat      float64
	LikelihoodHeat float64

	// Observe, when set, is called once per proposal outcome
	Observe func(proposer string, o Outcome)
}

// Proposer is one MCMC move type. Step performs a full proposal cycle on
// ctx.Model and never leaves a transaction open; impossible proposals are
// an outcome, not an error. Tune adjusts the scale toward a target
// acceptance rate from the counts since the last Tune.
type Proposer interface {
	Name() string
	Step(ctx *Context) error
	Tune(target float64)
	Stats() Stats
	SaveState() (json.RawMessage, error)
	LoadState(json.RawMessage) error
}

// Stats are a proposer's running counts
type Stats struct {
	Proposed   int64   `json:"proposed"`
	Accepted   int64   `json:"accepted"`
	Rejected   int64   `json:"rejected"`
	Impossible int64   `json:"impossible"`
	WindowProp int64   `json:"windowProposed"`
	WindowAcc  int64   `json:"windowAccepted"`
	Scale      float64 `json:"scale"`
}

// AcceptanceRate over the proposer's lifetime
func (s Stats) AcceptanceRate() float64 {
	if s.Proposed == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Proposed)
}

// counter is embedded by every proposer
type counter struct {
	name  string
	stats Stats
}

// Name implements Proposer
func (c *counter) Name() string { return c.name }

// Stats implements Proposer
func (c *counter) Stats() Stats { return c.stats }

func (c *counter) record(ctx *Context, o Outcome) {
	c.stats.Proposed++
	c.stats.WindowProp++
	switch o {
	case Accepted:
		c.stats.Accepted++
		c.stats.WindowAcc++
	case Rejected:
		c.stats.Rejected++
	case Impossible:
		c.stats.Impossible++
	}
	if ctx.Observe != nil {
		ctx.Observe(c.name, o)
	}
}

// windowRate returns the acceptance rate since the last reset and resets
func (c *counter) windowRate() (float64, bool) {
	p, a := c.stats.WindowProp, c.stats.WindowAcc
	c.stats.WindowProp, c.stats.WindowAcc = 0, 0
	if p == 0 {
		return 0, false
	}
	return float64(a) / float64(p), true
}

// SaveState implements Proposer
func (c *counter) SaveState() (json.RawMessage, error) {
	return json.Marshal(c.stats)
}

// LoadState implements Proposer
func (c *counter) LoadState(raw json.RawMessage) error {
	return errors.Wrapf(json.Unmarshal(raw, &c.stats), "Bad state for proposer %s", c.name)
}

// TuneScale returns the new scale for an observed acceptance rate. Zero
// halves, one doubles, otherwise log(scale) moves linearly toward the
// target, by at most a factor of two.
func TuneScale(scale, rate, target float64) float64 {
	switch {
	case rate <= 0:
		return scale / 2
	case rate >= 1:
		return scale * 2
	case rate < target:
		return scale * math.Exp(-math.Ln2*(target-rate)/target)
	default:
		return scale * math.Exp(math.Ln2*(rate-target)/(1-target))
	}
}

// Accept is the tempered Metropolis-Hastings rule. With an infinite heat
// the move is hill climbing: accept only a strict improvement of the
// infinitely heated term(s). Otherwise accept when
// logQ + tp*dPrior + tl*dLik >= log(U).
func Accept(gen *rand.Generator, tp, tl, logQ, dPrior, dLik float64) bool {
	if score, ok := climbScore(tp, tl, dPrior, dLik); ok {
		return score > 0
	}

	r := logQ + heated(tp, dPrior) + heated(tl, dLik)
	if math.IsNaN(r) {
		return false
	}
	if r >= 0 {
		return true
	}
	return math.Log(gen.OpenFloat64()) <= r
}

// climbScore is the quantity hill climbing must strictly improve: the
// infinitely heated term, or their sum when both heats are infinite. ok is
// false when neither heat is infinite.
func climbScore(tp, tl, dPrior, dLik float64) (float64, bool) {
	infP, infL := math.IsInf(tp, 1), math.IsInf(tl, 1)
	switch {
	case infP && infL:
		return dPrior + dLik, true
	case infP:
		return dPrior, true
	case infL:
		return dLik, true
	}
	return 0, false
}

func heated(t, d float64) float64 {
	if t == 0 || d == 0 {
		return 0
	}
	return t * d
}

// propose runs one full MH cycle. mutate applies the candidate inside the
// open transaction and returns logQ = log q(old|new) - log q(new|old); an
// error wrapping model.ErrImpossible from mutate means the candidate was
// rejected before evaluation.
func propose(ctx *Context, c *counter, mutate func(tx *model.Transaction) (float64, error)) (Outcome, error) {
	return cycle(ctx, c, mutate, func(logQ float64, tx *model.Transaction) bool {
		return Accept(ctx.Gen, ctx.PriorHeat, ctx.LikelihoodHeat, logQ, tx.DeltaLogPrior(), tx.DeltaLogLikelihood())
	})
}

// cycle is propose with a caller supplied acceptance decision
func cycle(ctx *Context, c *counter, mutate func(tx *model.Transaction) (float64, error), decide func(logQ float64, tx *model.Transaction) bool) (Outcome, error) {
	tx, err := ctx.Model.BeginProposal()
	if err != nil {
		return Impossible, err
	}

	logQ, err := mutate(tx)
	if err == nil {
		err = tx.EndProposal()
	}
	if err == nil && (math.IsNaN(logQ) || math.IsInf(logQ, 0)) {
		err = impossiblef("proposal ratio %v", logQ)
	}
	if err != nil {
		if rerr := tx.Reject(); rerr != nil {
			return Impossible, rerr
		}
		if model.IsImpossible(err) {
			c.record(ctx, Impossible)
			return Impossible, nil
		}
		return Impossible, err
	}

	if decide(logQ, tx) {
		if err := tx.Accept(); err != nil {
			return Impossible, err
		}
		c.record(ctx, Accepted)
		return Accepted, nil
	}
	if err := tx.Reject(); err != nil {
		return Impossible, err
	}
	c.record(ctx, Rejected)
	return Rejected, nil
}

// evaluate measures the heated log density change of a mutation and always
// rolls it back; when hot it is the climbScore instead. ok is false for an
// impossible candidate.
func evaluate(ctx *Context, mutate func(tx *model.Transaction) error) (delta float64, ok bool, err error) {
	tx, err := ctx.Model.BeginProposal()
	if err != nil {
		return 0, false, err
	}
	if err := mutate(tx); err != nil {
		if rerr := tx.Reject(); rerr != nil {
			return 0, false, rerr
		}
		if model.IsImpossible(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	perr := tx.EndProposal()
	delta = tx.HeatedDelta(ctx.PriorHeat, ctx.LikelihoodHeat)
	if score, hot := climbScore(ctx.PriorHeat, ctx.LikelihoodHeat, tx.DeltaLogPrior(), tx.DeltaLogLikelihood()); hot {
		delta = score
	}
	if err := tx.Reject(); err != nil {
		return 0, false, err
	}
	if perr != nil {
		if model.IsImpossible(perr) {
			return 0, false, nil
		}
		return 0, false, perr
	}
	if math.IsNaN(delta) {
		return 0, false, nil
	}
	return delta, true, nil
}

// commit applies a chosen mutation unconditionally
func commit(ctx *Context, mutate func(tx *model.Transaction) error) (bool, error) {
	tx, err := ctx.Model.BeginProposal()
	if err != nil {
		return false, err
	}
	if err := mutate(tx); err != nil {
		if rerr := tx.Reject(); rerr != nil {
			return false, rerr
		}
		if model.IsImpossible(err) {
			return false, nil
		}
		return false, err
	}
	if err := tx.EndProposal(); err != nil {
		if rerr := tx.Reject(); rerr != nil {
			return false, rerr
		}
		if model.IsImpossible(err) {
			return false, nil
		}
		return false, err
	}
	return true, tx.Accept()
}

// impossiblef builds an error that marks a candidate impossible
func impossiblef(format string, args ...interface{}) error {
	return errors.Wrapf(model.ErrImpossible, format, args...)
}
