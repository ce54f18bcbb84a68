package mcmc

import (
	"log/slog"
	"math"
	"strconv"

	"github.com/CraigKelly/tempering/model"
	"github.com/pkg/errors"
)

// Task is one unit of work over the chains it names. The scheduler never
// runs two tasks that share a chain at the same time.
type Task struct {
	Chains []int
	Run    func() error
}

// Step is one phase of an iteration. Steps run in order; the tasks of a
// single step may run concurrently. it is the zero based iteration being
// run.
type Step interface {
	Name() string
	Tasks(chains []*Chain, it int64) []Task
}

// due is true on every n-th iteration counting from start
func due(it, start, every int64) bool {
	if every < 1 || it < start {
		return false
	}
	return (it-start+1)%every == 0
}

// ProposeStep sweeps every chain's proposers once
type ProposeStep struct{}

// Name implements Step
func (ProposeStep) Name() string { return "propose" }

// Tasks implements Step
func (ProposeStep) Tasks(chains []*Chain, it int64) []Task {
	tasks := make([]Task, len(chains))
	for i, ch := range chains {
		ch := ch
		tasks[i] = Task{Chains: []int{ch.ID}, Run: ch.Sweep}
	}
	return tasks
}

// TuneStep adjusts proposer scales every Every iterations during burn in
type TuneStep struct {
	Every  int64
	BurnIn int64
	Target float64
	Log    *slog.Logger
}

// Name implements Step
func (TuneStep) Name() string { return "tune" }

// Tasks implements Step
func (s TuneStep) Tasks(chains []*Chain, it int64) []Task {
	if it >= s.BurnIn || !due(it, 0, s.Every) {
		return nil
	}
	tasks := make([]Task, len(chains))
	for i, ch := range chains {
		ch := ch
		tasks[i] = Task{Chains: []int{ch.ID}, Run: func() error {
			ch.Tune(s.Target, s.Log)
			return nil
		}}
	}
	return tasks
}

// SwapStep proposes exchanging models between adjacent chains. Rounds
// alternate between even pairs (0,1),(2,3).. and odd pairs (1,2),(3,4)..
// so every pair in a round is disjoint.
type SwapStep struct {
	Every int64
	Log   *slog.Logger
}

// Name implements Step
func (SwapStep) Name() string { return "swap" }

// Tasks implements Step
func (s SwapStep) Tasks(chains []*Chain, it int64) []Task {
	if len(chains) < 2 || !due(it, 0, s.Every) {
		return nil
	}
	parity := int(((it + 1) / s.Every) % 2)

	var tasks []Task
	for lo := parity; lo+1 < len(chains); lo += 2 {
		a, b := chains[lo], chains[lo+1]
		tasks = append(tasks, Task{Chains: []int{a.ID, b.ID}, Run: func() error {
			ok := trySwap(a, b)
			if s.Log != nil {
				s.Log.Debug("swap", "iteration", it, "lower", a.ID, "upper", b.ID, "accepted", ok)
			}
			return nil
		}})
	}
	return tasks
}

// swapLogRatio is the log acceptance ratio of exchanging the models of a and b
func swapLogRatio(a, b *Chain) float64 {
	lpA, llA := a.Model.LogPrior(), a.Model.LogLikelihood()
	lpB, llB := b.Model.LogPrior(), b.Model.LogLikelihood()
	return heated(a.PriorHeat-b.PriorHeat, lpB-lpA) + heated(a.LikelihoodHeat-b.LikelihoodHeat, llB-llA)
}

func heated(t, d float64) float64 {
	if t == 0 || d == 0 {
		return 0
	}
	return t * d
}

// trySwap draws from the lower chain's generator only when the ratio is
// below one
func trySwap(a, b *Chain) bool {
	logR := swapLogRatio(a, b)
	accept := false
	switch {
	case math.IsNaN(logR):
	case logR >= 0:
		accept = true
	default:
		accept = math.Log(a.Gen.OpenFloat64()) < logR
	}

	a.Swaps.Proposed++
	outcome := "rejected"
	if accept {
		a.Swaps.Accepted++
		exchange(a, b)
		outcome = "accepted"
	}
	swapTotal.WithLabelValues(strconv.Itoa(a.ID), outcome).Inc()
	return accept
}

// exchange hands a's model to b and b's to a. Nothing inside either model
// is touched.
func exchange(a, b *Chain) {
	a.Model, b.Model = b.Model, a.Model
}

// VerifyStep recomputes every chain's model from scratch and fails on drift
type VerifyStep struct {
	Every     int64
	Tolerance float64
}

// Name implements Step
func (VerifyStep) Name() string { return "verify" }

// Tasks implements Step
func (s VerifyStep) Tasks(chains []*Chain, it int64) []Task {
	if !due(it, 0, s.Every) {
		return nil
	}
	tasks := make([]Task, len(chains))
	for i, ch := range chains {
		ch := ch
		tasks[i] = Task{Chains: []int{ch.ID}, Run: func() error {
			err := ch.Model.Verify(s.Tolerance)
			if err == nil {
				verifyTotal.WithLabelValues("ok").Inc()
				return nil
			}
			var drift *model.DriftError
			if errors.As(err, &drift) {
				verifyTotal.WithLabelValues("drift").Inc()
				return errors.Wrapf(ErrDrift, "chain %d at iteration %d: %v", ch.ID, it, drift)
			}
			verifyTotal.WithLabelValues("error").Inc()
			return errors.Wrapf(err, "chain %d verify", ch.ID)
		}}
	}
	return tasks
}

// SampleStep records every chain after burn in: discrete marginals are
// counted on the chain and, when a Collector is set, one sample per chain
// is submitted for the iteration.
type SampleStep struct {
	Every     int64
	BurnIn    int64
	Collector *Collector
}

// Name implements Step
func (SampleStep) Name() string { return "sample" }

// Tasks implements Step
func (s SampleStep) Tasks(chains []*Chain, it int64) []Task {
	if !due(it, s.BurnIn, s.Every) {
		return nil
	}
	tasks := make([]Task, len(chains))
	for i, ch := range chains {
		ch := ch
		tasks[i] = Task{Chains: []int{ch.ID}, Run: func() error {
			if err := ch.Marginals.Observe(ch.Model); err != nil {
				return errors.Wrapf(err, "chain %d marginals", ch.ID)
			}
			if s.Collector == nil {
				return nil
			}
			smp, err := NewChainSample(ch)
			if err != nil {
				return err
			}
			return s.Collector.Submit(it, smp)
		}}
	}
	return tasks
}
