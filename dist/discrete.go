package dist

import (
	"math"

	"github.com/CraigKelly/tempering/model"
	"github.com/CraigKelly/tempering/rand"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Bernoulli over a bool (or 0/1 int) variable
type Bernoulli struct {
	p params
}

// NewBernoulli creates a Bernoulli law with success probability prob
func NewBernoulli(prob model.FloatValued) *Bernoulli {
	return &Bernoulli{p: newParams([]string{"p"}, prob)}
}

// Inputs implements Law
func (d *Bernoulli) Inputs() []model.Node { return d.p.nodes() }

// Update implements model.Updater
func (d *Bernoulli) Update() (bool, error) {
	return d.p.refresh(func(v []float64) error {
		if v[0] < 0 || v[0] > 1 {
			return errors.Errorf("bernoulli p must be in [0,1], got %v", v[0])
		}
		return nil
	})
}

// UpdateAfterRejection implements model.Updater
func (d *Bernoulli) UpdateAfterRejection() { d.p.restore() }

// LogP implements model.Distribution
func (d *Bernoulli) LogP(v *model.Variable) float64 {
	if v.Bool() {
		return logOf(d.p.cur[0])
	}
	return logOf(1 - d.p.cur[0])
}

// Sample implements model.Distribution
func (d *Bernoulli) Sample(v *model.Variable, gen *rand.Generator) (model.Value, error) {
	l := distuv.Bernoulli{P: d.p.cur[0], Src: gen}
	hit := l.Rand() == 1
	if v.Kind() == model.KindInt {
		if hit {
			return model.IntValue(1), nil
		}
		return model.IntValue(0), nil
	}
	return model.BoolValue(hit), nil
}

// ValueIsValid implements model.Distribution
func (d *Bernoulli) ValueIsValid(val model.Value) bool {
	switch val.Kind {
	case model.KindBool:
		return true
	case model.KindInt:
		return val.Int == 0 || val.Int == 1
	}
	return false
}

// ProposerHint implements model.Distribution
func (d *Bernoulli) ProposerHint(*model.Variable) model.ProposerHint {
	return model.HintGibbsBinary
}

// Categorical over the ints 0..k-1 with fixed weights
type Categorical struct {
	weights []float64
	logp    []float64
}

// NewCategorical normalizes weights into a categorical law
func NewCategorical(weights []float64) (*Categorical, error) {
	if len(weights) == 0 {
		return nil, errors.New("categorical needs at least one weight")
	}
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, errors.Errorf("categorical weight %d is invalid: %v", i, w)
		}
	}
	total := floats.Sum(weights)
	if total <= 0 {
		return nil, errors.New("categorical weights sum to zero")
	}

	d := &Categorical{
		weights: append([]float64{}, weights...),
		logp:    make([]float64, len(weights)),
	}
	for i, w := range weights {
		d.logp[i] = logOf(w / total)
	}
	return d, nil
}

// Inputs implements Law
func (d *Categorical) Inputs() []model.Node { return nil }

// Update implements model.Updater
func (d *Categorical) Update() (bool, error) { return false, nil }

// UpdateAfterRejection implements model.Updater
func (d *Categorical) UpdateAfterRejection() {}

// LogP implements model.Distribution
func (d *Categorical) LogP(v *model.Variable) float64 { return d.logp[v.Int()] }

// Sample implements model.Distribution
func (d *Categorical) Sample(v *model.Variable, gen *rand.Generator) (model.Value, error) {
	l := distuv.NewCategorical(d.weights, gen)
	return model.IntValue(int(l.Rand())), nil
}

// ValueIsValid implements model.Distribution
func (d *Categorical) ValueIsValid(val model.Value) bool {
	return val.Kind == model.KindInt && val.Int >= 0 && val.Int < len(d.logp) && !math.IsInf(d.logp[val.Int], -1)
}

// ProposerHint implements model.Distribution
func (d *Categorical) ProposerHint(*model.Variable) model.ProposerHint { return model.HintGibbsInt }

// IntRange implements model.IntRange
func (d *Categorical) IntRange() (int, int) { return 0, len(d.logp) - 1 }
