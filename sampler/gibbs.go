package sampler

import (
	"math"

	"github.com/CraigKelly/tempering/model"
	"github.com/CraigKelly/tempering/rand"
	"github.com/pkg/errors"
)

// hot is true when either heat is +Inf and moves become hill climbing
func hot(ctx *Context) bool {
	return math.IsInf(ctx.PriorHeat, 1) || math.IsInf(ctx.LikelihoodHeat, 1)
}

// climb picks the highest entry if it beats cur strictly, else cur
func climb(logw []float64, cur int) int {
	best := cur
	if cur < 0 || cur >= len(logw) {
		best = 0
	}
	for i, w := range logw {
		if w > logw[best] {
			best = i
		}
	}
	return best
}

// pickLog is climb when hot, otherwise a drawLog
func pickLog(ctx *Context, logw []float64, cur int) int {
	if hot(ctx) {
		return climb(logw, cur)
	}
	return drawLog(ctx.Gen, logw)
}

// drawLog draws an index with probability proportional to exp(logw[i]).
// Entries of -Inf are never drawn.
func drawLog(gen *rand.Generator, logw []float64) int {
	best := 0
	for i, w := range logw {
		if w > logw[best] {
			best = i
		}
	}
	if math.IsInf(logw[best], 1) {
		return best
	}

	total := 0.0
	probs := make([]float64, len(logw))
	for i, w := range logw {
		probs[i] = math.Exp(w - logw[best])
		total += probs[i]
	}
	u := gen.Float64() * total
	for i, p := range probs {
		u -= p
		if u < 0 {
			return i
		}
	}
	return best
}

// GibbsBinary is an exact two outcome Gibbs step on a bool (or 0/1 int)
// variable: the flip is taken with probability r/(1+r), r the heated
// density ratio of the flipped to the current state.
type GibbsBinary struct {
	counter
	variable string
}

// NewGibbsBinary creates the kernel
func NewGibbsBinary(variable string) *GibbsBinary {
	return &GibbsBinary{counter: counter{name: "gibbs-binary(" + variable + ")"}, variable: variable}
}

// Tune implements Proposer; Gibbs kernels have no scale
func (p *GibbsBinary) Tune(float64) { p.windowRate() }

// Step implements Proposer
func (p *GibbsBinary) Step(ctx *Context) error {
	v, err := ctx.Model.Variable(p.variable)
	if err != nil {
		return err
	}

	flip := func(tx *model.Transaction) (float64, error) {
		if v.Kind() == model.KindInt {
			return 0, tx.SetInt(v, 1-v.Int())
		}
		return 0, tx.SetBool(v, !v.Bool())
	}
	_, err = cycle(ctx, &p.counter, flip, func(_ float64, tx *model.Transaction) bool {
		if hot(ctx) {
			return Accept(ctx.Gen, ctx.PriorHeat, ctx.LikelihoodHeat, 0, tx.DeltaLogPrior(), tx.DeltaLogLikelihood())
		}
		delta := tx.HeatedDelta(ctx.PriorHeat, ctx.LikelihoodHeat)
		if math.IsNaN(delta) {
			return false
		}
		// r/(1+r) = 1/(1+exp(-delta))
		return ctx.Gen.Float64() < 1/(1+math.Exp(-delta))
	})
	return err
}

func intRange(v *model.Variable) (int, int, bool) {
	if d := v.Distribution(); d != nil {
		if ir, ok := d.Distribution.(model.IntRange); ok {
			lo, hi := ir.IntRange()
			return lo, hi, true
		}
	}
	return math.MinInt, math.MaxInt, false
}

// GibbsInt draws an int variable from its full heated conditional over the
// law's IntRange. Every candidate is evaluated and rolled back, then the
// draw is committed. Each step counts as accepted.
type GibbsInt struct {
	counter
	variable string
}

// NewGibbsInt creates the kernel
func NewGibbsInt(variable string) *GibbsInt {
	return &GibbsInt{counter: counter{name: "gibbs-int(" + variable + ")"}, variable: variable}
}

// Tune implements Proposer; Gibbs kernels have no scale
func (p *GibbsInt) Tune(float64) { p.windowRate() }

// Step implements Proposer
func (p *GibbsInt) Step(ctx *Context) error {
	v, err := ctx.Model.Variable(p.variable)
	if err != nil {
		return err
	}
	lo, hi, ok := intRange(v)
	if !ok {
		return errors.Errorf("%s: variable %s has no bounded int range", p.name, p.variable)
	}

	cur := v.Int()
	logw := make([]float64, hi-lo+1)
	for c := lo; c <= hi; c++ {
		if c == cur {
			continue
		}
		c := c
		delta, ok, err := evaluate(ctx, func(tx *model.Transaction) error { return tx.SetInt(v, c) })
		if err != nil {
			return err
		}
		if !ok {
			delta = math.Inf(-1)
		}
		logw[c-lo] = delta
	}

	pick := lo + pickLog(ctx, logw, cur-lo)
	if pick != cur {
		moved, err := commit(ctx, func(tx *model.Transaction) error { return tx.SetInt(v, pick) })
		if err != nil {
			return err
		}
		if !moved {
			p.record(ctx, Impossible)
			return nil
		}
	}
	p.record(ctx, Accepted)
	return nil
}

// SequentialInt is MH on an int variable stepping to x-1 or x+1, corrected
// for the number of in-range neighbours at each end.
type SequentialInt struct {
	counter
	variable string
}

// NewSequentialInt creates the kernel
func NewSequentialInt(variable string) *SequentialInt {
	return &SequentialInt{counter: counter{name: "sequential-int(" + variable + ")"}, variable: variable}
}

// Tune implements Proposer; the step is always one
func (p *SequentialInt) Tune(float64) { p.windowRate() }

func neighbours(x, lo, hi int) int {
	n := 0
	if x > lo {
		n++
	}
	if x < hi {
		n++
	}
	return n
}

// Step implements Proposer
func (p *SequentialInt) Step(ctx *Context) error {
	v, err := ctx.Model.Variable(p.variable)
	if err != nil {
		return err
	}
	lo, hi, _ := intRange(v)
	x := v.Int()
	n := neighbours(x, lo, hi)
	if n == 0 {
		return nil
	}

	_, err = propose(ctx, &p.counter, func(tx *model.Transaction) (float64, error) {
		next := x + 1
		switch {
		case x <= lo:
		case x >= hi:
			next = x - 1
		case ctx.Gen.Intn(2) == 0:
			next = x - 1
		}
		logQ := math.Log(float64(n)) - math.Log(float64(neighbours(next, lo, hi)))
		return logQ, tx.SetInt(v, next)
	})
	return err
}
