package dist

import (
	"math"

	"github.com/CraigKelly/tempering/model"
	"github.com/CraigKelly/tempering/rand"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// Normal is N(mu, sigma) over a float or, iid, over a float array
type Normal struct {
	p params
}

// NewNormal creates a normal law
func NewNormal(mu, sigma model.FloatValued) *Normal {
	return &Normal{p: newParams([]string{"mu", "sigma"}, mu, sigma)}
}

func (d *Normal) law(src *rand.Generator) distuv.Normal {
	return distuv.Normal{Mu: d.p.cur[0], Sigma: d.p.cur[1], Src: src}
}

// Inputs implements Law
func (d *Normal) Inputs() []model.Node { return d.p.nodes() }

// Update implements model.Updater
func (d *Normal) Update() (bool, error) {
	return d.p.refresh(func(v []float64) error { return positive("sigma")(v[1:]) })
}

// UpdateAfterRejection implements model.Updater
func (d *Normal) UpdateAfterRejection() { d.p.restore() }

// LogP implements model.Distribution
func (d *Normal) LogP(v *model.Variable) float64 {
	l := d.law(nil)
	return sumFloats(v, l.LogProb)
}

// Sample implements model.Distribution
func (d *Normal) Sample(v *model.Variable, gen *rand.Generator) (model.Value, error) {
	l := d.law(gen)
	return drawFloats(v, l.Rand), nil
}

// ValueIsValid implements model.Distribution
func (d *Normal) ValueIsValid(val model.Value) bool { return allFloats(val, finite) }

// ProposerHint implements model.Distribution
func (d *Normal) ProposerHint(*model.Variable) model.ProposerHint { return model.HintMHNormal }

// LogNormal has log(x) ~ N(mu, sigma)
type LogNormal struct {
	p params
}

// NewLogNormal creates a log-normal law
func NewLogNormal(mu, sigma model.FloatValued) *LogNormal {
	return &LogNormal{p: newParams([]string{"mu", "sigma"}, mu, sigma)}
}

func (d *LogNormal) law(src *rand.Generator) distuv.LogNormal {
	return distuv.LogNormal{Mu: d.p.cur[0], Sigma: d.p.cur[1], Src: src}
}

// Inputs implements Law
func (d *LogNormal) Inputs() []model.Node { return d.p.nodes() }

// Update implements model.Updater
func (d *LogNormal) Update() (bool, error) {
	return d.p.refresh(func(v []float64) error { return positive("sigma")(v[1:]) })
}

// UpdateAfterRejection implements model.Updater
func (d *LogNormal) UpdateAfterRejection() { d.p.restore() }

// LogP implements model.Distribution
func (d *LogNormal) LogP(v *model.Variable) float64 {
	l := d.law(nil)
	return sumFloats(v, l.LogProb)
}

// Sample implements model.Distribution
func (d *LogNormal) Sample(v *model.Variable, gen *rand.Generator) (model.Value, error) {
	l := d.law(gen)
	return drawFloats(v, l.Rand), nil
}

// ValueIsValid implements model.Distribution
func (d *LogNormal) ValueIsValid(val model.Value) bool {
	return allFloats(val, func(x float64) bool { return x > 0 && finite(x) })
}

// ProposerHint implements model.Distribution
func (d *LogNormal) ProposerHint(*model.Variable) model.ProposerHint {
	return model.HintMHMultiplier
}

// Gamma with shape alpha and rate beta
type Gamma struct {
	p params
}

// NewGamma creates a gamma law
func NewGamma(alpha, beta model.FloatValued) *Gamma {
	return &Gamma{p: newParams([]string{"alpha", "beta"}, alpha, beta)}
}

func (d *Gamma) law(src *rand.Generator) distuv.Gamma {
	return distuv.Gamma{Alpha: d.p.cur[0], Beta: d.p.cur[1], Src: src}
}

// Inputs implements Law
func (d *Gamma) Inputs() []model.Node { return d.p.nodes() }

// Update implements model.Updater
func (d *Gamma) Update() (bool, error) { return d.p.refresh(positive("alpha", "beta")) }

// UpdateAfterRejection implements model.Updater
func (d *Gamma) UpdateAfterRejection() { d.p.restore() }

// LogP implements model.Distribution
func (d *Gamma) LogP(v *model.Variable) float64 {
	l := d.law(nil)
	return sumFloats(v, l.LogProb)
}

// Sample implements model.Distribution
func (d *Gamma) Sample(v *model.Variable, gen *rand.Generator) (model.Value, error) {
	l := d.law(gen)
	return drawFloats(v, l.Rand), nil
}

// ValueIsValid implements model.Distribution
func (d *Gamma) ValueIsValid(val model.Value) bool {
	return allFloats(val, func(x float64) bool { return x > 0 && finite(x) })
}

// ProposerHint implements model.Distribution
func (d *Gamma) ProposerHint(*model.Variable) model.ProposerHint { return model.HintMHMultiplier }

// Exponential with the given rate
type Exponential struct {
	p params
}

// NewExponential creates an exponential law
func NewExponential(rate model.FloatValued) *Exponential {
	return &Exponential{p: newParams([]string{"rate"}, rate)}
}

func (d *Exponential) law(src *rand.Generator) distuv.Exponential {
	return distuv.Exponential{Rate: d.p.cur[0], Src: src}
}

// Inputs implements Law
func (d *Exponential) Inputs() []model.Node { return d.p.nodes() }

// Update implements model.Updater
func (d *Exponential) Update() (bool, error) { return d.p.refresh(positive("rate")) }

// UpdateAfterRejection implements model.Updater
func (d *Exponential) UpdateAfterRejection() { d.p.restore() }

// LogP implements model.Distribution
func (d *Exponential) LogP(v *model.Variable) float64 {
	l := d.law(nil)
	return sumFloats(v, l.LogProb)
}

// Sample implements model.Distribution
func (d *Exponential) Sample(v *model.Variable, gen *rand.Generator) (model.Value, error) {
	l := d.law(gen)
	return drawFloats(v, l.Rand), nil
}

// ValueIsValid implements model.Distribution
func (d *Exponential) ValueIsValid(val model.Value) bool {
	return allFloats(val, func(x float64) bool { return x > 0 && finite(x) })
}

// ProposerHint implements model.Distribution
func (d *Exponential) ProposerHint(*model.Variable) model.ProposerHint {
	return model.HintMHMultiplier
}

// Beta on the open unit interval
type Beta struct {
	p params
}

// NewBeta creates a beta law
func NewBeta(alpha, beta model.FloatValued) *Beta {
	return &Beta{p: newParams([]string{"alpha", "beta"}, alpha, beta)}
}

func (d *Beta) law(src *rand.Generator) distuv.Beta {
	return distuv.Beta{Alpha: d.p.cur[0], Beta: d.p.cur[1], Src: src}
}

// Inputs implements Law
func (d *Beta) Inputs() []model.Node { return d.p.nodes() }

// Update implements model.Updater
func (d *Beta) Update() (bool, error) { return d.p.refresh(positive("alpha", "beta")) }

// UpdateAfterRejection implements model.Updater
func (d *Beta) UpdateAfterRejection() { d.p.restore() }

// LogP implements model.Distribution
func (d *Beta) LogP(v *model.Variable) float64 {
	l := d.law(nil)
	return sumFloats(v, l.LogProb)
}

// Sample implements model.Distribution
func (d *Beta) Sample(v *model.Variable, gen *rand.Generator) (model.Value, error) {
	l := d.law(gen)
	return drawFloats(v, l.Rand), nil
}

// ValueIsValid implements model.Distribution
func (d *Beta) ValueIsValid(val model.Value) bool {
	return allFloats(val, func(x float64) bool { return x > 0 && x < 1 })
}

// ProposerHint implements model.Distribution
func (d *Beta) ProposerHint(*model.Variable) model.ProposerHint { return model.HintMHUniform }

// FloatRange implements model.FloatRange
func (d *Beta) FloatRange() (float64, float64) { return 0, 1 }

// Uniform on [min, max]
type Uniform struct {
	p params
}

// NewUniform creates a uniform law
func NewUniform(min, max model.FloatValued) *Uniform {
	return &Uniform{p: newParams([]string{"min", "max"}, min, max)}
}

func (d *Uniform) law(src *rand.Generator) distuv.Uniform {
	return distuv.Uniform{Min: d.p.cur[0], Max: d.p.cur[1], Src: src}
}

// Inputs implements Law
func (d *Uniform) Inputs() []model.Node { return d.p.nodes() }

// Update implements model.Updater
func (d *Uniform) Update() (bool, error) {
	return d.p.refresh(func(v []float64) error {
		if v[0] >= v[1] {
			return errors.Errorf("uniform needs min < max, got [%v, %v]", v[0], v[1])
		}
		return nil
	})
}

// UpdateAfterRejection implements model.Updater
func (d *Uniform) UpdateAfterRejection() { d.p.restore() }

// LogP implements model.Distribution
func (d *Uniform) LogP(v *model.Variable) float64 {
	l := d.law(nil)
	return sumFloats(v, l.LogProb)
}

// Sample implements model.Distribution
func (d *Uniform) Sample(v *model.Variable, gen *rand.Generator) (model.Value, error) {
	l := d.law(gen)
	return drawFloats(v, l.Rand), nil
}

// ValueIsValid implements model.Distribution
func (d *Uniform) ValueIsValid(val model.Value) bool {
	lo, hi := d.p.cur[0], d.p.cur[1]
	return allFloats(val, func(x float64) bool { return x >= lo && x <= hi })
}

// ProposerHint implements model.Distribution
func (d *Uniform) ProposerHint(*model.Variable) model.ProposerHint { return model.HintMHUniform }

// FloatRange implements model.FloatRange
func (d *Uniform) FloatRange() (float64, float64) { return d.p.cur[0], d.p.cur[1] }

// logOf is log(x) that maps 0 to -Inf without a NaN
func logOf(x float64) float64 {
	if x <= 0 {
		return math.Inf(-1)
	}
	return math.Log(x)
}
