package model

import (
	"github.com/pkg/errors"
)

// VariableState is the persisted state of one variable
type VariableState struct {
	Name  string  `json:"name"`
	Value Value   `json:"value"`
	LogP  float64 `json:"logP"`
}

// Snapshot is everything needed to put a freshly built model of the same
// shape into the exact committed state of another.
type Snapshot struct {
	Name          string          `json:"name"`
	Variables     []VariableState `json:"variables"`
	LogPrior      float64         `json:"logPrior"`
	LogLikelihood float64         `json:"logLikelihood"`
}

// Snapshot captures committed values, cached densities and totals
func (m *Model) Snapshot() (*Snapshot, error) {
	if m.tx != nil {
		return nil, modelErrorf("Snapshot", "model %s has an open transaction", m.Name)
	}
	s := &Snapshot{
		Name:          m.Name,
		Variables:     make([]VariableState, len(m.variables)),
		LogPrior:      m.logPrior,
		LogLikelihood: m.logLikelihood,
	}
	for i, v := range m.variables {
		s.Variables[i] = VariableState{Name: v.name, Value: v.value.Clone(), LogP: v.logP}
	}
	return s, nil
}

// Restore loads a snapshot into a ready model built by the same builder.
// Partition assignments are replayed through their associators, then every
// node is updated and the cached densities and totals are overwritten with
// the snapshot's so a resumed run continues bit for bit.
func (m *Model) Restore(s *Snapshot) error {
	if m.phase != phaseReady {
		return modelErrorf("Restore", "model %s construction has not ended", m.Name)
	}
	if m.tx != nil {
		return modelErrorf("Restore", "model %s has an open transaction", m.Name)
	}
	if len(s.Variables) != len(m.variables) {
		return modelErrorf("Restore", "model %s has %d variables, snapshot has %d", m.Name, len(m.variables), len(s.Variables))
	}

	m.restoring = true
	defer func() { m.restoring = false }()

	for i, vs := range s.Variables {
		v := m.variables[i]
		if v.name != vs.Name {
			return modelErrorf("Restore", "variable %d is %s in model, %s in snapshot", i, v.name, vs.Name)
		}
		if vs.Value.Kind != v.value.Kind || vs.Value.Len() != v.value.Len() {
			return modelErrorf("Restore", "variable %s holds %s[%d], snapshot has %s[%d]",
				v.name, v.value.Kind, v.value.Len(), vs.Value.Kind, vs.Value.Len())
		}
		if v.part != nil {
			if err := v.part.rebuild(vs.Value.Ints); err != nil {
				return err
			}
			continue
		}
		v.value = vs.Value.Clone()
	}

	if err := m.fullUpdate(); err != nil {
		return errors.Wrapf(err, "Restore of model %s", m.Name)
	}
	for i, vs := range s.Variables {
		v := m.variables[i]
		v.logP = vs.LogP
		v.prevLogP = vs.LogP
	}
	m.logPrior = s.LogPrior
	m.logLikelihood = s.LogLikelihood
	return nil
}
