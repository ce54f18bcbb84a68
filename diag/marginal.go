// Package diag has convergence diagnostics: marginal histograms of discrete
// variables, distances between them, and a split-half drift check for
// traces.
package diag

import (
	"math"

	"github.com/CraigKelly/tempering/model"
	"github.com/pkg/errors"
)

// Marginal is an unnormalized histogram over the values 0..len(Counts)-1
// of one discrete variable.
type Marginal struct {
	Name   string    `json:"name"`
	Counts []float64 `json:"counts"`
}

// NewMarginal creates an empty histogram with card bins
func NewMarginal(name string, card int) *Marginal {
	return &Marginal{Name: name, Counts: make([]float64, card)}
}

// Add counts one observation of value, growing the bins as needed
func (m *Marginal) Add(value int) error {
	if value < 0 {
		return errors.Errorf("Marginal %s can not count negative value %d", m.Name, value)
	}
	for len(m.Counts) <= value {
		m.Counts = append(m.Counts, 0)
	}
	m.Counts[value]++
	return nil
}

// Total is the number of observations
func (m *Marginal) Total() float64 {
	t := 0.0
	for _, c := range m.Counts {
		t += c
	}
	return t
}

// Normalized returns the histogram as probabilities over card bins
func (m *Marginal) Normalized(card int) []float64 {
	const eps = 1e-12
	tot := m.Total()
	if tot < eps {
		tot = eps
	}
	out := make([]float64, card)
	for i := 0; i < card && i < len(m.Counts); i++ {
		out[i] = m.Counts[i] / tot
	}
	return out
}

// Mean of the observed values
func (m *Marginal) Mean() float64 {
	tot := m.Total()
	if tot == 0 {
		return 0
	}
	s := 0.0
	for i, c := range m.Counts {
		s += float64(i) * c
	}
	return s / tot
}

// pair normalizes both marginals over a common number of bins
func pair(m1, m2 *Marginal) ([]float64, []float64) {
	card := len(m1.Counts)
	if len(m2.Counts) > card {
		card = len(m2.Counts)
	}
	return m1.Normalized(card), m2.Normalized(card)
}

// MaxAbsDiff is the largest probability difference in any bin
func MaxAbsDiff(m1, m2 *Marginal) float64 {
	p, q := pair(m1, m2)
	maxErr := 0.0
	for i := range p {
		maxErr = math.Max(maxErr, math.Abs(p[i]-q[i]))
	}
	return maxErr
}

// MeanAbsDiff is the mean probability difference over the bins
func MeanAbsDiff(m1, m2 *Marginal) float64 {
	p, q := pair(m1, m2)
	if len(p) == 0 {
		return 0
	}
	sum := 0.0
	for i := range p {
		sum += math.Abs(p[i] - q[i])
	}
	return sum / float64(len(p))
}

// HellingerDiff is sqrt(sum((sqrt(p) - sqrt(q))^2)) / sqrt(2), in [0, 1]
func HellingerDiff(m1, m2 *Marginal) float64 {
	p, q := pair(m1, m2)
	sum := 0.0
	for i := range p {
		d := math.Sqrt(p[i]) - math.Sqrt(q[i])
		sum += d * d
	}
	return math.Sqrt(sum) / math.Sqrt2
}

// klDivergence is D_KL(p || q) in bits. Only for JSDivergence, where q is
// never zero where p is not.
func klDivergence(p, q []float64) float64 {
	d := 0.0
	for i, pi := range p {
		if pi > 0 {
			d += pi * math.Log2(pi/q[i])
		}
	}
	return d
}

// JSDivergence is the Jensen-Shannon divergence in bits, a symmetric
// smoothing of the KL divergence
func JSDivergence(m1, m2 *Marginal) float64 {
	p, q := pair(m1, m2)
	mid := make([]float64, len(p))
	for i := range p {
		mid[i] = (p[i] + q[i]) / 2
	}
	return 0.5 * (klDivergence(p, mid) + klDivergence(q, mid))
}

// ErrorSuite summarizes distances between two sets of marginals. Mean*
// fields average over variables, Max* take the worst variable; so
// MeanMaxAbsError is the mean over variables of each one's max abs error.
type ErrorSuite struct {
	MeanMeanAbsError float64
	MeanMaxAbsError  float64
	MeanHellinger    float64
	MeanJSDiverge    float64

	MaxMeanAbsError float64
	MaxMaxAbsError  float64
	MaxHellinger    float64
	MaxJSDiverge    float64
}

// NewErrorSuite compares marginals pairwise by position
func NewErrorSuite(ms1, ms2 []*Marginal) (*ErrorSuite, error) {
	if len(ms1) != len(ms2) {
		return nil, errors.Errorf("Marginal count mismatch %d != %d", len(ms1), len(ms2))
	}
	if len(ms1) < 1 {
		return nil, errors.New("No marginals to score")
	}

	es := ErrorSuite{}
	for i, m1 := range ms1 {
		m2 := ms2[i]
		if m1.Name != m2.Name {
			return nil, errors.Errorf("Marginal name mismatch %s != %s", m1.Name, m2.Name)
		}

		d := MeanAbsDiff(m1, m2)
		es.MeanMeanAbsError += d
		es.MaxMeanAbsError = math.Max(d, es.MaxMeanAbsError)

		d = MaxAbsDiff(m1, m2)
		es.MeanMaxAbsError += d
		es.MaxMaxAbsError = math.Max(d, es.MaxMaxAbsError)

		d = HellingerDiff(m1, m2)
		es.MeanHellinger += d
		es.MaxHellinger = math.Max(d, es.MaxHellinger)

		d = JSDivergence(m1, m2)
		es.MeanJSDiverge += d
		es.MaxJSDiverge = math.Max(d, es.MaxJSDiverge)
	}

	n := float64(len(ms1))
	es.MeanMeanAbsError /= n
	es.MeanMaxAbsError /= n
	es.MeanHellinger /= n
	es.MeanJSDiverge /= n
	return &es, nil
}

// Tracker keeps a Marginal for every latent int or bool variable of the
// models it observes, in first-seen order.
type Tracker struct {
	byName map[string]*Marginal
	order  []*Marginal
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{byName: make(map[string]*Marginal)}
}

// Observe counts the current value of every discrete latent variable in m
func (t *Tracker) Observe(m *model.Model) error {
	for _, v := range m.Variables() {
		if v.Observed() {
			continue
		}
		switch v.Kind() {
		case model.KindInt, model.KindBool:
		default:
			continue
		}

		mg, ok := t.byName[v.Name()]
		if !ok {
			mg = NewMarginal(v.Name(), 2)
			t.byName[v.Name()] = mg
			t.order = append(t.order, mg)
		}
		if err := mg.Add(v.Int()); err != nil {
			return err
		}
	}
	return nil
}

// Marginals returns the tracked marginals in first-seen order
func (t *Tracker) Marginals() []*Marginal {
	return append([]*Marginal(nil), t.order...)
}

// Marginal returns the named marginal or nil
func (t *Tracker) Marginal(name string) *Marginal { return t.byName[name] }

// Restore replaces the tracked marginals with copies of ms
func (t *Tracker) Restore(ms []*Marginal) {
	t.byName = make(map[string]*Marginal, len(ms))
	t.order = t.order[:0]
	for _, m := range ms {
		cp := &Marginal{Name: m.Name, Counts: append([]float64(nil), m.Counts...)}
		t.byName[cp.Name] = cp
		t.order = append(t.order, cp)
	}
}
