// Package dist holds the probability laws a model.Variable can depend on.
// Densities and draws come from gonum's distuv; each law reads its
// parameters through model capability interfaces so a parameter can be a
// constant, a variable or a function node.
package dist

import (
	"math"

	"github.com/CraigKelly/tempering/model"
	"github.com/pkg/errors"
)

// Law is a model.Distribution that knows which graph nodes it reads
type Law interface {
	model.Distribution
	Inputs() []model.Node
}

// Add registers law under name with its parameter nodes as inputs
func Add(m *model.Model, name string, law Law) (*model.DistributionNode, error) {
	return m.AddDistribution(name, law, law.Inputs()...)
}

// params caches scalar parameter values so UpdateAfterRejection can
// restore them without reading the inputs again.
type params struct {
	names  []string
	inputs []model.FloatValued
	cur    []float64
	prev   []float64
}

func newParams(names []string, inputs ...model.FloatValued) params {
	return params{
		names:  names,
		inputs: inputs,
		cur:    make([]float64, len(inputs)),
		prev:   make([]float64, len(inputs)),
	}
}

// refresh reads every input, then validates with check
func (p *params) refresh(check func(vals []float64) error) (bool, error) {
	copy(p.prev, p.cur)
	changed := false
	for i, in := range p.inputs {
		x := in.Float()
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false, errors.Errorf("parameter %s is not finite: %v", p.names[i], x)
		}
		if x != p.cur[i] {
			changed = true
		}
		p.cur[i] = x
	}
	if check != nil {
		if err := check(p.cur); err != nil {
			return false, err
		}
	}
	return changed, nil
}

func (p *params) restore() {
	copy(p.cur, p.prev)
}

func (p *params) nodes() []model.Node {
	var out []model.Node
	for _, in := range p.inputs {
		if n, ok := in.(model.Node); ok {
			out = append(out, n)
		}
	}
	return out
}

func positive(names ...string) func([]float64) error {
	return func(vals []float64) error {
		for i, name := range names {
			if vals[i] <= 0 {
				return errors.Errorf("parameter %s must be positive, got %v", name, vals[i])
			}
		}
		return nil
	}
}

// sumFloats applies f to a float or to every element of a float array
func sumFloats(v *model.Variable, f func(float64) float64) float64 {
	if v.Kind() == model.KindFloat {
		return f(v.Float())
	}
	total := 0.0
	for _, x := range v.Floats() {
		total += f(x)
	}
	return total
}

// allFloats reports whether val is real (scalar or array) and every
// component satisfies ok
func allFloats(val model.Value, ok func(float64) bool) bool {
	switch val.Kind {
	case model.KindFloat:
		return !math.IsNaN(val.Float) && ok(val.Float)
	case model.KindFloatArray:
		for _, x := range val.Floats {
			if math.IsNaN(x) || !ok(x) {
				return false
			}
		}
		return true
	}
	return false
}

// drawFloats draws a value of v's shape using draw
func drawFloats(v *model.Variable, draw func() float64) model.Value {
	if v.Kind() == model.KindFloat {
		return model.FloatValue(draw())
	}
	xs := make([]float64, len(v.Floats()))
	for i := range xs {
		xs[i] = draw()
	}
	return model.FloatsValue(xs)
}

func finite(x float64) bool { return !math.IsInf(x, 0) }
