// Package models has the built-in demo models: each is a factory that takes
// a data set and returns a builder producing fresh, constructed models.
package models

import (
	"sort"
	"strconv"

	"github.com/CraigKelly/tempering/dist"
	"github.com/CraigKelly/tempering/model"
	"github.com/CraigKelly/tempering/rand"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// Builder creates one model with construction ended
type Builder func() (*model.Model, error)

// Factory checks data and returns a Builder over it
type Factory func(data []float64) (Builder, error)

// MixtureGroups is the number of components of the mixture models
const MixtureGroups = 2

var registry = map[string]Factory{
	"normal":     Normal,
	"coin":       Coin,
	"mixture":    func(data []float64) (Builder, error) { return Mixture(data, MixtureGroups, true, true) },
	"mixture-mh": func(data []float64) (Builder, error) { return Mixture(data, MixtureGroups, false, false) },
}

// Names lists the registered models
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup finds a registered model factory
func Lookup(name string) (Factory, error) {
	f, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("Unknown model %q (known: %v)", name, Names())
	}
	return f, nil
}

func itemName(prefix string, i int) string { return prefix + "." + strconv.Itoa(i) }

// Normal infers the mean and standard deviation of normal data:
// mu ~ Normal(0, 10), sigma ~ Gamma(2, 1), x.i ~ Normal(mu, sigma).
func Normal(data []float64) (Builder, error) {
	if len(data) < 1 {
		return nil, errors.New("normal model needs data")
	}
	return func() (*model.Model, error) {
		m := model.New("normal")
		if err := m.BeginConstruction(); err != nil {
			return nil, err
		}

		muPrior, err := dist.Add(m, "muPrior", dist.NewNormal(model.Constant(0), model.Constant(10)))
		if err != nil {
			return nil, err
		}
		mu, err := m.AddVariable("mu", model.FloatValue(0), false)
		if err != nil {
			return nil, err
		}
		if err := m.SetDistribution(mu, muPrior); err != nil {
			return nil, err
		}

		sigmaPrior, err := dist.Add(m, "sigmaPrior", dist.NewGamma(model.Constant(2), model.Constant(1)))
		if err != nil {
			return nil, err
		}
		sigma, err := m.AddVariable("sigma", model.FloatValue(1), false)
		if err != nil {
			return nil, err
		}
		if err := m.SetDistribution(sigma, sigmaPrior); err != nil {
			return nil, err
		}

		lik, err := dist.Add(m, "lik", dist.NewNormal(mu, sigma))
		if err != nil {
			return nil, err
		}
		for i, x := range data {
			v, err := m.AddVariable(itemName("x", i), model.FloatValue(x), true)
			if err != nil {
				return nil, err
			}
			if err := m.SetDistribution(v, lik); err != nil {
				return nil, err
			}
		}

		return m, m.EndConstruction()
	}, nil
}

// Coin infers the bias of 0/1 flips: p ~ Beta(2, 2), x.i ~ Bernoulli(p).
// The latent "next" ~ Bernoulli(p) is the predicted next flip.
func Coin(data []float64) (Builder, error) {
	if len(data) < 1 {
		return nil, errors.New("coin model needs data")
	}
	flips := make([]bool, len(data))
	for i, x := range data {
		if x != 0 && x != 1 {
			return nil, errors.Errorf("coin flip %d is %v, want 0 or 1", i, x)
		}
		flips[i] = x == 1
	}

	return func() (*model.Model, error) {
		m := model.New("coin")
		if err := m.BeginConstruction(); err != nil {
			return nil, err
		}

		prior, err := dist.Add(m, "pPrior", dist.NewBeta(model.Constant(2), model.Constant(2)))
		if err != nil {
			return nil, err
		}
		p, err := m.AddVariable("p", model.FloatValue(0.5), false)
		if err != nil {
			return nil, err
		}
		if err := m.SetDistribution(p, prior); err != nil {
			return nil, err
		}

		flip, err := dist.Add(m, "flip", dist.NewBernoulli(p))
		if err != nil {
			return nil, err
		}
		next, err := m.AddVariable("next", model.BoolValue(false), false)
		if err != nil {
			return nil, err
		}
		if err := m.SetDistribution(next, flip); err != nil {
			return nil, err
		}
		for i, f := range flips {
			v, err := m.AddVariable(itemName("x", i), model.BoolValue(f), true)
			if err != nil {
				return nil, err
			}
			if err := m.SetDistribution(v, flip); err != nil {
				return nil, err
			}
		}

		return m, m.EndConstruction()
	}, nil
}

// Mixture clusters data into groups normal components with a shared
// standard deviation: mu.g ~ Normal(0, 10), sigma ~ Gamma(2, 1),
// z ~ DirichletCategorical(1) and x.i ~ Normal(mu.z[i], sigma). Each x.i
// is repointed at its component by an associator on z.
func Mixture(data []float64, groups int, allowsEmpty, useGibbs bool) (Builder, error) {
	if groups < 1 {
		return nil, errors.Errorf("mixture needs at least one group, got %d", groups)
	}
	if len(data) < groups {
		return nil, errors.Errorf("mixture of %d groups needs at least %d values, got %d", groups, groups, len(data))
	}

	return func() (*model.Model, error) {
		m := model.New("mixture")
		if err := m.BeginConstruction(); err != nil {
			return nil, err
		}

		muPrior, err := dist.Add(m, "muPrior", dist.NewNormal(model.Constant(0), model.Constant(10)))
		if err != nil {
			return nil, err
		}
		sigmaPrior, err := dist.Add(m, "sigmaPrior", dist.NewGamma(model.Constant(2), model.Constant(1)))
		if err != nil {
			return nil, err
		}
		sigma, err := m.AddVariable("sigma", model.FloatValue(1), false)
		if err != nil {
			return nil, err
		}
		if err := m.SetDistribution(sigma, sigmaPrior); err != nil {
			return nil, err
		}

		comps := make([]*model.DistributionNode, groups)
		for g := range comps {
			// spread the starting means so components start apart
			mu, err := m.AddVariable(itemName("mu", g), model.FloatValue(float64(2*g-groups+1)), false)
			if err != nil {
				return nil, err
			}
			if err := m.SetDistribution(mu, muPrior); err != nil {
				return nil, err
			}
			if comps[g], err = dist.Add(m, itemName("component", g), dist.NewNormal(mu, sigma)); err != nil {
				return nil, err
			}
		}

		assign := make([]int, len(data))
		for i := range assign {
			assign[i] = i % groups
		}
		z, err := m.AddPartition("z", assign, groups, allowsEmpty, useGibbs)
		if err != nil {
			return nil, err
		}
		zPrior, err := dist.Add(m, "zPrior", dist.NewDirichletCategorical(model.Constant(1)))
		if err != nil {
			return nil, err
		}
		if err := m.SetDistribution(z.Variable, zPrior); err != nil {
			return nil, err
		}

		xs := make([]*model.Variable, len(data))
		for i, x := range data {
			v, err := m.AddVariable(itemName("x", i), model.FloatValue(x), true)
			if err != nil {
				return nil, err
			}
			if err := m.SetDistribution(v, comps[assign[i]]); err != nil {
				return nil, err
			}
			xs[i] = v
			err = z.SetAssociator(i, model.AssociatorFunc(func(item, group int) error {
				return m.UpdateEdge(xs[item], xs[item].Distribution(), comps[group])
			}))
			if err != nil {
				return nil, err
			}
		}

		return m, m.EndConstruction()
	}, nil
}

// SyntheticData draws n values suited to the named model from a fixed seed
func SyntheticData(name string, n int, seed int64) ([]float64, error) {
	if n < 1 {
		return nil, errors.Errorf("Invalid synthetic data size %d", n)
	}
	gen, err := rand.NewGenerator(seed)
	if err != nil {
		return nil, err
	}

	data := make([]float64, n)
	switch name {
	case "normal":
		law := distuv.Normal{Mu: 3, Sigma: 2, Src: gen}
		for i := range data {
			data[i] = law.Rand()
		}
	case "coin":
		law := distuv.Bernoulli{P: 0.3, Src: gen}
		for i := range data {
			data[i] = law.Rand()
		}
	case "mixture", "mixture-mh":
		laws := []distuv.Normal{{Mu: -4, Sigma: 1, Src: gen}, {Mu: 4, Sigma: 1, Src: gen}}
		for i := range data {
			data[i] = laws[i%2].Rand()
		}
	default:
		return nil, errors.Errorf("No synthetic data for model %q", name)
	}
	return data, nil
}
