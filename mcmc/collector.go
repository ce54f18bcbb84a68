package mcmc

import (
	"sort"
	"sync"

	"github.com/CraigKelly/tempering/model"
	"github.com/pkg/errors"
)

// ChainSample is one chain's contribution to a sampled iteration
type ChainSample struct {
	Chain          int                    `json:"chain"`
	PriorHeat      float64                `json:"priorHeat"`
	LikelihoodHeat float64                `json:"likelihoodHeat"`
	LogPrior       float64                `json:"logPrior"`
	LogLikelihood  float64                `json:"logLikelihood"`
	Fields         []model.SampleField    `json:"-"`
	Values         map[string]interface{} `json:"values"`
}

// NewChainSample captures the chain's current model
func NewChainSample(ch *Chain) (ChainSample, error) {
	tree, err := ch.Model.HierarchicalSample()
	if err != nil {
		return ChainSample{}, errors.Wrapf(err, "chain %d sample", ch.ID)
	}
	return ChainSample{
		Chain:          ch.ID,
		PriorHeat:      ch.PriorHeat,
		LikelihoodHeat: ch.LikelihoodHeat,
		LogPrior:       ch.Model.LogPrior(),
		LogLikelihood:  ch.Model.LogLikelihood(),
		Fields:         ch.Model.FlatSample(),
		Values:         tree,
	}, nil
}

// Record is the combined sample of every chain for one iteration, ordered
// by chain id
type Record struct {
	Iteration int64         `json:"iteration"`
	Chains    []ChainSample `json:"chains"`
}

// Sink receives completed records in iteration order
type Sink interface {
	Write(r *Record) error
	Close() error
}

// cohort is the pending record of one iteration
type cohort struct {
	rec  *Record
	done chan struct{}
}

// Collector gathers per-chain samples keyed by iteration. When the last of
// size chains has submitted for an iteration the submitter that completed
// it writes the combined record to the sink. Submit never waits for the
// other chains, so a thread pool smaller than the cohort cannot deadlock.
type Collector struct {
	mu      sync.Mutex
	size    int
	sink    Sink
	pending map[int64]*cohort
	written int64
	last    int64 // newest iteration written
}

// NewCollector creates a collector for cohorts of size chains
func NewCollector(size int, sink Sink) (*Collector, error) {
	if size < 1 {
		return nil, errors.Errorf("Invalid collector cohort size %d", size)
	}
	if sink == nil {
		return nil, errors.New("Collector needs a sink")
	}
	return &Collector{
		size:    size,
		sink:    sink,
		pending: make(map[int64]*cohort),
		last:    -1,
	}, nil
}

func (c *Collector) cohortFor(it int64) *cohort {
	co, ok := c.pending[it]
	if !ok {
		co = &cohort{
			rec:  &Record{Iteration: it},
			done: make(chan struct{}),
		}
		c.pending[it] = co
	}
	return co
}

// Submit adds one chain's sample for iteration it
func (c *Collector) Submit(it int64, s ChainSample) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	co := c.cohortFor(it)
	for _, prev := range co.rec.Chains {
		if prev.Chain == s.Chain {
			return errors.Errorf("Chain %d submitted twice for iteration %d", s.Chain, it)
		}
	}
	co.rec.Chains = append(co.rec.Chains, s)
	if len(co.rec.Chains) < c.size {
		return nil
	}

	delete(c.pending, it)
	sort.Slice(co.rec.Chains, func(i, j int) bool {
		return co.rec.Chains[i].Chain < co.rec.Chains[j].Chain
	})
	err := c.sink.Write(co.rec)
	c.written++
	if it > c.last {
		c.last = it
	}
	close(co.done)
	return errors.Wrapf(err, "Could not write record for iteration %d", it)
}

// Done returns a channel closed once iteration it has been written. Records
// are written in iteration order, so anything at or before the newest
// written iteration that is not pending is done. It is for observers
// outside the scheduler; tasks must not wait on it.
func (c *Collector) Done(it int64) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[it]; !ok && it <= c.last {
		done := make(chan struct{})
		close(done)
		return done
	}
	return c.cohortFor(it).done
}

// Pending is the number of iterations still waiting on chains
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, co := range c.pending {
		if len(co.rec.Chains) > 0 {
			n++
		}
	}
	return n
}

// Written is the number of records sent to the sink
func (c *Collector) Written() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written
}

// Close closes the sink
func (c *Collector) Close() error {
	return c.sink.Close()
}
