package sampler

import (
	"fmt"
	"math"

	"github.com/CraigKelly/tempering/model"
	"github.com/pkg/errors"
)

type mhKind int

const (
	mhUniform mhKind = iota
	mhNormal
	mhMultiplier
)

// MHProposer is a random walk on one real component of a variable. The
// variable is looked up by name on every step.
type MHProposer struct {
	counter
	kind     mhKind
	variable string
	index    int
}

func newMH(kind mhKind, label, variable string, index int, scale float64) *MHProposer {
	name := fmt.Sprintf("%s(%s)", label, variable)
	if index > 0 {
		name = fmt.Sprintf("%s(%s.%d)", label, variable, index)
	}
	p := &MHProposer{counter: counter{name: name}, kind: kind, variable: variable, index: index}
	p.stats.Scale = scale
	return p
}

// NewMHUniform proposes uniformly within radius of the current value,
// clipped to the variable's law's FloatRange when it has one.
func NewMHUniform(variable string, index int, radius float64) *MHProposer {
	return newMH(mhUniform, "mh-uniform", variable, index, radius)
}

// NewMHNormal proposes x + sigma*N(0,1)
func NewMHNormal(variable string, index int, sigma float64) *MHProposer {
	return newMH(mhNormal, "mh-normal", variable, index, sigma)
}

// NewMHMultiplier proposes x*exp(lambda*(U-0.5))
func NewMHMultiplier(variable string, index int, lambda float64) *MHProposer {
	return newMH(mhMultiplier, "mh-multiplier", variable, index, lambda)
}

// Scale is the current radius, sigma or lambda
func (p *MHProposer) Scale() float64 { return p.stats.Scale }

// Tune implements Proposer
func (p *MHProposer) Tune(target float64) {
	if rate, ok := p.windowRate(); ok {
		p.stats.Scale = TuneScale(p.stats.Scale, rate, target)
	}
}

func floatRange(v *model.Variable) (float64, float64) {
	if d := v.Distribution(); d != nil {
		if fr, ok := d.Distribution.(model.FloatRange); ok {
			return fr.FloatRange()
		}
	}
	return math.Inf(-1), math.Inf(1)
}

// Step implements Proposer
func (p *MHProposer) Step(ctx *Context) error {
	v, err := ctx.Model.Variable(p.variable)
	if err != nil {
		return err
	}
	switch v.Kind() {
	case model.KindFloat:
	case model.KindFloatArray:
		if p.index < 0 || p.index >= len(v.Floats()) {
			return errors.Errorf("%s: index %d out of range for %s", p.name, p.index, p.variable)
		}
	default:
		return errors.Errorf("%s: variable %s is %v, not real valued", p.name, p.variable, v.Kind())
	}

	_, err = propose(ctx, &p.counter, func(tx *model.Transaction) (float64, error) {
		x := v.FloatAt(p.index)
		scale := p.stats.Scale
		var next, logQ float64

		switch p.kind {
		case mhUniform:
			lo, hi := floatRange(v)
			a, b := math.Max(lo, x-scale), math.Min(hi, x+scale)
			next = a + ctx.Gen.Float64()*(b-a)
			a2, b2 := math.Max(lo, next-scale), math.Min(hi, next+scale)
			logQ = math.Log(b-a) - math.Log(b2-a2)
		case mhNormal:
			next = x + scale*ctx.Gen.NormFloat64()
		case mhMultiplier:
			logC := scale * (ctx.Gen.Float64() - 0.5)
			next = x * math.Exp(logC)
			logQ = logC
		}
		return logQ, tx.SetFloatAt(v, p.index, next)
	})
	return err
}
