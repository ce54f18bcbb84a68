package model

import (
	"math"

	"github.com/CraigKelly/tempering/rand"
	"github.com/pkg/errors"
)

// Verify recomputes every node from scratch and compares each variable's
// cached log density, and the two totals, to the fresh values. Differences
// above tol (absolute, or relative for large magnitudes) return a
// *DriftError. On success the totals are re-anchored to the fresh sums so
// floating point error does not accumulate.
func (m *Model) Verify(tol float64) error {
	if m.phase != phaseReady {
		return modelErrorf("Verify", "model %s construction has not ended", m.Name)
	}
	if m.tx != nil {
		return modelErrorf("Verify", "model %s has an open transaction", m.Name)
	}

	cached := make([]float64, len(m.variables))
	for i, v := range m.variables {
		cached[i] = v.logP
	}
	cachedPrior, cachedLik := m.logPrior, m.logLikelihood

	if err := m.fullUpdate(); err != nil {
		return errors.Wrapf(err, "Verify of model %s", m.Name)
	}

	for i, v := range m.variables {
		if drifted(cached[i], v.logP, tol) {
			return &DriftError{Name: v.name, Cached: cached[i], Fresh: v.logP}
		}
	}
	if drifted(cachedPrior, m.logPrior, tol) {
		return &DriftError{Name: "logPrior", Cached: cachedPrior, Fresh: m.logPrior}
	}
	if drifted(cachedLik, m.logLikelihood, tol) {
		return &DriftError{Name: "logLikelihood", Cached: cachedLik, Fresh: m.logLikelihood}
	}
	return nil
}

func drifted(cached, fresh, tol float64) bool {
	diff := math.Abs(cached - fresh)
	if diff <= tol {
		return false
	}
	scale := math.Max(math.Abs(cached), math.Abs(fresh))
	return diff > tol*scale
}

// maxInitTries bounds InitializeFromPrior redraws per variable
const maxInitTries = 100

// InitializeFromPrior draws each latent variable that has a distribution
// from that distribution, in topological order, committing one transaction
// per variable. A draw that makes the model impossible is redrawn.
// Partition variables keep their assignment.
func (m *Model) InitializeFromPrior(gen *rand.Generator) error {
	if m.phase != phaseReady {
		return modelErrorf("InitializeFromPrior", "model %s construction has not ended", m.Name)
	}
	if m.orderStale {
		if err := m.computeOrder(); err != nil {
			return err
		}
	}

	for _, id := range m.order {
		e := m.nodes[id]
		if e.kind != variableNode {
			continue
		}
		v := e.v
		if v.observed || v.dist == nil || v.part != nil {
			continue
		}

		ok := false
		for try := 0; try < maxInitTries && !ok; try++ {
			val, err := v.dist.Sample(v, gen)
			if err != nil {
				return errors.Wrapf(err, "Could not sample %s", v.name)
			}
			tx, err := m.BeginProposal()
			if err != nil {
				return err
			}
			if err := tx.Set(v, val); err != nil {
				_ = tx.Reject()
				return err
			}
			err = tx.EndProposal()
			if err == nil {
				if err := tx.Accept(); err != nil {
					return err
				}
				ok = true
			} else if IsImpossible(err) {
				if err := tx.Reject(); err != nil {
					return err
				}
			} else {
				_ = tx.Reject()
				return err
			}
		}
		if !ok {
			return errors.Errorf("No valid initial value for %s after %d draws", v.name, maxInitTries)
		}
	}
	return nil
}
