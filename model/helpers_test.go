package model

import (
	"math"

	"github.com/CraigKelly/tempering/rand"
)

// gaussLaw is a normal law whose mean is read from an input
type gaussLaw struct {
	mean    FloatValued
	sd      float64
	mu      float64
	prevMu  float64
	updates int
}

func (g *gaussLaw) Update() (bool, error) {
	g.updates++
	g.prevMu = g.mu
	g.mu = g.mean.Float()
	if math.IsNaN(g.mu) {
		return false, modelErrorf("gaussLaw", "NaN mean")
	}
	return g.mu != g.prevMu, nil
}

func (g *gaussLaw) UpdateAfterRejection() { g.mu = g.prevMu }

func (g *gaussLaw) LogP(v *Variable) float64 {
	z := (v.Float() - g.mu) / g.sd
	return -0.5*z*z - math.Log(g.sd) - 0.5*math.Log(2*math.Pi)
}

func (g *gaussLaw) Sample(v *Variable, gen *rand.Generator) (Value, error) {
	return FloatValue(g.mu + g.sd*gen.NormFloat64()), nil
}

func (g *gaussLaw) ValueIsValid(val Value) bool {
	return val.Kind == KindFloat && !math.IsNaN(val.Float) && !math.IsInf(val.Float, 0)
}

func (g *gaussLaw) ProposerHint(*Variable) ProposerHint { return HintMHNormal }

// expLaw is a unit exponential, support x > 0
type expLaw struct{}

func (expLaw) Update() (bool, error) { return false, nil }
func (expLaw) UpdateAfterRejection() {}
func (expLaw) LogP(v *Variable) float64 { return -v.Float() }
func (expLaw) ProposerHint(*Variable) ProposerHint { return HintMHMultiplier }
func (expLaw) ValueIsValid(val Value) bool { return val.Kind == KindFloat && val.Float > 0 }
func (expLaw) Sample(v *Variable, gen *rand.Generator) (Value, error) {
	return FloatValue(gen.ExpFloat64()), nil
}

// sumFunc adds its float inputs
type sumFunc struct {
	inputs []FloatValued
	val    float64
	prev   float64
}

func (s *sumFunc) Update() (bool, error) {
	s.prev = s.val
	s.val = 0
	for _, in := range s.inputs {
		s.val += in.Float()
	}
	return s.val != s.prev, nil
}

func (s *sumFunc) UpdateAfterRejection() { s.val = s.prev }

func (s *sumFunc) Float() float64 { return s.val }

// normalModel: mu ~ N(0,1); x_i ~ N(mu,1) observed
type normalModel struct {
	m     *Model
	mu    *Variable
	prior *gaussLaw
	lik   *gaussLaw
	xs    []*Variable
}

func buildNormalModel(data ...float64) (*normalModel, error) {
	nm := &normalModel{m: New("normal")}
	m := nm.m
	if err := m.BeginConstruction(); err != nil {
		return nil, err
	}

	var err error
	nm.prior = &gaussLaw{mean: Constant(0), sd: 1}
	pd, err := m.AddDistribution("muPrior", nm.prior)
	if err != nil {
		return nil, err
	}
	if nm.mu, err = m.AddVariable("mu", FloatValue(0.5), false); err != nil {
		return nil, err
	}
	if err = m.SetDistribution(nm.mu, pd); err != nil {
		return nil, err
	}

	nm.lik = &gaussLaw{mean: nm.mu, sd: 1}
	ld, err := m.AddDistribution("lik", nm.lik, nm.mu)
	if err != nil {
		return nil, err
	}
	for i, x := range data {
		v, err := m.AddVariable("x."+string(rune('a'+i)), FloatValue(x), true)
		if err != nil {
			return nil, err
		}
		if err = m.SetDistribution(v, ld); err != nil {
			return nil, err
		}
		nm.xs = append(nm.xs, v)
	}

	if err := m.EndConstruction(); err != nil {
		return nil, err
	}
	return nm, nil
}

// mixtureModel: a partition of observed points over two fixed laws
type mixtureModel struct {
	m    *Model
	part *PartitionVariable
	laws []*DistributionNode
	xs   []*Variable
}

func buildMixtureModel(data []float64, assign []int, allowsEmpty bool) (*mixtureModel, error) {
	mm := &mixtureModel{m: New("mixture")}
	m := mm.m
	if err := m.BeginConstruction(); err != nil {
		return nil, err
	}

	for g, c := range []float64{-5, 5} {
		d, err := m.AddDistribution("law."+string(rune('0'+g)), &gaussLaw{mean: Constant(c), sd: 1})
		if err != nil {
			return nil, err
		}
		mm.laws = append(mm.laws, d)
	}

	var err error
	if mm.part, err = m.AddPartition("z", assign, 2, allowsEmpty, false); err != nil {
		return nil, err
	}
	for i, x := range data {
		v, err := m.AddVariable("x"+string(rune('a'+i)), FloatValue(x), true)
		if err != nil {
			return nil, err
		}
		if err = m.SetDistribution(v, mm.laws[assign[i]]); err != nil {
			return nil, err
		}
		mm.xs = append(mm.xs, v)
		err = mm.part.SetAssociator(i, AssociatorFunc(func(item, group int) error {
			x := mm.xs[item]
			return m.UpdateEdge(x, x.Distribution(), mm.laws[group])
		}))
		if err != nil {
			return nil, err
		}
	}

	if err := m.EndConstruction(); err != nil {
		return nil, err
	}
	return mm, nil
}
