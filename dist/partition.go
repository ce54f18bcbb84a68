package dist

import (
	"math"

	"github.com/CraigKelly/tempering/model"
	"github.com/CraigKelly/tempering/rand"
	"github.com/pkg/errors"
)

// DirichletCategorical is the law of a partition when group weights are
// drawn from a symmetric Dirichlet(alpha) and integrated out:
//
//	log p(z) = lgamma(k*a) - lgamma(n+k*a) + sum_g [lgamma(s_g+a) - lgamma(a)]
//
// where s_g are the group sizes. It only governs partition variables.
type DirichletCategorical struct {
	p params
}

// NewDirichletCategorical creates the collapsed Dirichlet-categorical law
func NewDirichletCategorical(alpha model.FloatValued) *DirichletCategorical {
	return &DirichletCategorical{p: newParams([]string{"alpha"}, alpha)}
}

// Inputs implements Law
func (d *DirichletCategorical) Inputs() []model.Node { return d.p.nodes() }

// Update implements model.Updater
func (d *DirichletCategorical) Update() (bool, error) { return d.p.refresh(positive("alpha")) }

// UpdateAfterRejection implements model.Updater
func (d *DirichletCategorical) UpdateAfterRejection() { d.p.restore() }

func lgamma(x float64) float64 {
	l, _ := math.Lgamma(x)
	return l
}

// LogP implements model.Distribution
func (d *DirichletCategorical) LogP(v *model.Variable) float64 {
	p := v.Partition()
	if p == nil {
		return math.Inf(-1)
	}
	a := d.p.cur[0]
	k := float64(p.GroupCount())
	n := float64(p.ItemCount())

	lp := lgamma(k*a) - lgamma(n+k*a)
	la := lgamma(a)
	for g := 0; g < p.GroupCount(); g++ {
		lp += lgamma(float64(p.GroupSize(g))+a) - la
	}
	return lp
}

// Sample implements model.Distribution with a Polya urn over v's groups
func (d *DirichletCategorical) Sample(v *model.Variable, gen *rand.Generator) (model.Value, error) {
	p := v.Partition()
	if p == nil {
		return model.Value{}, errors.Errorf("variable %s is not a partition", v.Name())
	}
	a := d.p.cur[0]
	k := p.GroupCount()
	counts := make([]float64, k)
	assign := make([]int, p.ItemCount())
	for i := range assign {
		u := gen.Float64() * (float64(i) + float64(k)*a)
		g := 0
		for ; g < k-1; g++ {
			u -= counts[g] + a
			if u < 0 {
				break
			}
		}
		assign[i] = g
		counts[g]++
	}
	return model.IntsValue(assign), nil
}

// ValueIsValid implements model.Distribution
func (d *DirichletCategorical) ValueIsValid(val model.Value) bool {
	return val.Kind == model.KindIntArray
}

// ProposerHint implements model.Distribution
func (d *DirichletCategorical) ProposerHint(*model.Variable) model.ProposerHint {
	return model.HintPartition
}
