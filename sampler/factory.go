package sampler

import (
	"github.com/CraigKelly/tempering/model"
	"github.com/pkg/errors"
)

// Initial scales for the random walk kernels before any tuning
const (
	DefaultUniformRadius    = 0.5
	DefaultNormalSigma      = 0.5
	DefaultMultiplierLambda = 1.0
)

// DefaultProposers builds one proposer per latent variable from its law's
// ProposerHint (one per component for real arrays), plus a single DEMC
// proposer over the real variables when demc.Enabled. Partition variables
// always get a PartitionProposer.
func DefaultProposers(m *model.Model, demc DEMCConfig) ([]Proposer, error) {
	var props []Proposer
	var reals []string

	for _, v := range m.Variables() {
		if v.Observed() {
			continue
		}
		if part := v.Partition(); part != nil {
			if part.UseGibbs() && !part.AllowsEmptyGroups() {
				return nil, errors.Wrapf(ErrNotImplemented, "partition %s: Gibbs without empty groups", v.Name())
			}
			props = append(props, NewPartitionProposer(v.Name()))
			continue
		}

		d := v.Distribution()
		if d == nil {
			continue
		}

		comps := 1
		if v.Kind() == model.KindFloatArray {
			comps = len(v.Floats())
		}

		hint := d.ProposerHint(v)
		switch hint {
		case model.HintMHNormal, model.HintMHUniform, model.HintMHMultiplier:
			for i := 0; i < comps; i++ {
				switch hint {
				case model.HintMHNormal:
					props = append(props, NewMHNormal(v.Name(), i, DefaultNormalSigma))
				case model.HintMHUniform:
					props = append(props, NewMHUniform(v.Name(), i, DefaultUniformRadius))
				default:
					props = append(props, NewMHMultiplier(v.Name(), i, DefaultMultiplierLambda))
				}
			}
			reals = append(reals, v.Name())
		case model.HintGibbsBinary:
			props = append(props, NewGibbsBinary(v.Name()))
		case model.HintGibbsInt:
			props = append(props, NewGibbsInt(v.Name()))
		case model.HintSequentialInt:
			props = append(props, NewSequentialInt(v.Name()))
		case model.HintNone:
		default:
			return nil, errors.Errorf("variable %s: no proposer for hint %s", v.Name(), hint)
		}
	}

	if demc.Enabled {
		vars := demc.Variables
		if len(vars) == 0 {
			vars = reals
		}
		if len(vars) > 0 {
			p, err := NewDEMC(demc, vars)
			if err != nil {
				return nil, err
			}
			props = append(props, p)
		}
	}
	return props, nil
}
