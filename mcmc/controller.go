// Package mcmc runs parallel tempering: a ladder of chains, each sweeping
// its proposers over its own model, with periodic swaps of models between
// neighbouring chains. An iteration is an ordered list of Steps whose Tasks
// run on a bounded pool.
package mcmc

import (
	"context"
	"log/slog"

	"github.com/CraigKelly/tempering/diag"
	"github.com/CraigKelly/tempering/model"
	"github.com/CraigKelly/tempering/rand"
	"github.com/CraigKelly/tempering/sampler"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrDrift is returned when a verification finds cached densities that no
// longer match a from-scratch recompute
var ErrDrift = errors.New("model drift")

// Builder creates one model with construction ended. It is called once per
// chain, and again on resume.
type Builder func() (*model.Model, error)

// ProposerFactory picks the proposers for one chain's model
type ProposerFactory func(m *model.Model, cfg Config) ([]sampler.Proposer, error)

// DefaultProposerFactory uses the distribution hints of each variable
func DefaultProposerFactory(m *model.Model, cfg Config) ([]sampler.Proposer, error) {
	return sampler.DefaultProposers(m, cfg.DEMC)
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the logger; the default is slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithSink sends every sampled iteration to s through a Collector
func WithSink(s Sink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithProposers replaces DefaultProposerFactory
func WithProposers(f ProposerFactory) Option {
	return func(c *Controller) { c.proposers = f }
}

// WithSteps replaces the default step list
func WithSteps(steps ...Step) Option {
	return func(c *Controller) { c.steps = steps }
}

// WithProgress calls f with the status after every block of Run
func WithProgress(f func(Status)) Option {
	return func(c *Controller) { c.progress = f }
}

// Controller owns the chains, the step list and the iteration counter
type Controller struct {
	cfg       Config
	log       *slog.Logger
	runID     string
	build     Builder
	proposers ProposerFactory
	sink      Sink
	progress  func(Status)
	collector *Collector
	chains    []*Chain
	steps     []Step
	sched     *scheduler
	iteration int64
}

func newController(cfg Config, build Builder, opts []Option) (*Controller, error) {
	if err := cfg.Check(); err != nil {
		return nil, errors.Wrap(err, "Invalid config")
	}
	if build == nil {
		return nil, errors.New("Controller needs a model builder")
	}

	c := &Controller{
		cfg:       cfg,
		log:       slog.Default(),
		build:     build,
		proposers: DefaultProposerFactory,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.sink != nil {
		col, err := NewCollector(cfg.ChainCount, c.sink)
		if err != nil {
			return nil, err
		}
		c.collector = col
	}
	if c.steps == nil {
		c.steps = c.defaultSteps()
	}
	c.sched = newScheduler(cfg.Threads, cfg.ChainCount)
	return c, nil
}

func (c *Controller) defaultSteps() []Step {
	return []Step{
		ProposeStep{},
		TuneStep{Every: c.cfg.TuneEvery, BurnIn: c.cfg.BurnIn, Target: c.cfg.TargetAcceptance, Log: c.log},
		SwapStep{Every: c.cfg.SwapEvery, Log: c.log},
		VerifyStep{Every: c.cfg.VerifyEvery, Tolerance: c.cfg.VerifyTolerance},
		SampleStep{Every: c.cfg.SampleEvery, BurnIn: c.cfg.BurnIn, Collector: c.collector},
	}
}

// New builds ChainCount models and chains on the heat ladder
func New(cfg Config, build Builder, opts ...Option) (*Controller, error) {
	c, err := newController(cfg, build, opts)
	if err != nil {
		return nil, err
	}

	gens, err := rand.NewGenerators(cfg.Seed, cfg.ChainCount)
	if err != nil {
		return nil, err
	}

	for i := 0; i < cfg.ChainCount; i++ {
		m, err := build()
		if err != nil {
			return nil, errors.Wrapf(err, "Could not build model for chain %d", i)
		}
		if cfg.InitFromPrior {
			if err := m.InitializeFromPrior(gens[i]); err != nil {
				return nil, errors.Wrapf(err, "Could not initialize chain %d", i)
			}
		}
		props, err := c.proposers(m, cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "Could not create proposers for chain %d", i)
		}

		tp, tl := cfg.Heats(i)
		ch, err := NewChain(i, m, gens[i], tp, tl, props, cfg.TraceWindow)
		if err != nil {
			return nil, err
		}
		c.chains = append(c.chains, ch)
	}

	c.runID = uuid.NewString()
	c.log.Info("controller ready",
		"run", c.runID,
		"chains", cfg.ChainCount,
		"threads", cfg.Threads,
		"seed", cfg.Seed,
		"proposers", len(c.chains[0].Proposers))
	return c, nil
}

// RunID identifies the run across checkpoints
func (c *Controller) RunID() string { return c.runID }

// Config is the controller's configuration
func (c *Controller) Config() Config { return c.cfg }

// Iteration is the number of completed iterations
func (c *Controller) Iteration() int64 { return c.iteration }

// Chains returns the chains, coldest first
func (c *Controller) Chains() []*Chain { return c.chains }

// Total is the number of iterations in a full run
func (c *Controller) Total() int64 { return c.cfg.BurnIn + c.cfg.Iterations }

// Done is true once the full run has completed
func (c *Controller) Done() bool { return c.iteration >= c.Total() }

// RunFor executes n full iterations. ctx is checked once on entry; an
// iteration in progress is never interrupted.
func (c *Controller) RunFor(ctx context.Context, n int64) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Run cancelled")
	}

	for k := int64(0); k < n; k++ {
		it := c.iteration
		for _, st := range c.steps {
			if err := c.sched.run(st.Tasks(c.chains, it)); err != nil {
				return errors.Wrapf(err, "Iteration %d step %s", it, st.Name())
			}
		}
		c.iteration++
		iterationTotal.Inc()
	}
	return nil
}

// statusEvery is the number of iterations between status logs when
// checkpoints are off
const statusEvery = 1000

// Run executes the remaining iterations of the full run in blocks of
// CheckpointEvery, writing a checkpoint and logging status after each
// block. Cancellation is noticed between blocks.
func (c *Controller) Run(ctx context.Context) error {
	block := c.cfg.CheckpointEvery
	if block < 1 {
		block = statusEvery
	}

	for !c.Done() {
		n := block
		if left := c.Total() - c.iteration; left < n {
			n = left
		}
		if err := c.RunFor(ctx, n); err != nil {
			return err
		}
		if c.cfg.CheckpointEvery > 0 {
			if err := c.SaveCheckpoint(c.cfg.CheckpointPath); err != nil {
				return err
			}
		}
		c.LogStatus()
		if c.progress != nil {
			c.progress(c.Status())
		}
	}
	return nil
}

// Close closes the sample sink, if any
func (c *Controller) Close() error {
	if c.collector == nil {
		return nil
	}
	return c.collector.Close()
}

// ChainStatus summarizes one chain
type ChainStatus struct {
	ID             int
	PriorHeat      float64
	LikelihoodHeat float64
	LogPrior       float64
	LogLikelihood  float64
	SplitHalf      float64 // diag.SplitHalf of the trace window
	WindowFull     bool
	SwapRate       float64 // as the lower chain of its pair
	Proposers      map[string]sampler.Stats
}

// Status is a snapshot of progress
type Status struct {
	RunID     string
	Iteration int64
	BurnedIn  bool
	Chains    []ChainStatus
}

// Status reports the current state. It must not be called while RunFor is
// running.
func (c *Controller) Status() Status {
	s := Status{
		RunID:     c.runID,
		Iteration: c.iteration,
		BurnedIn:  c.iteration >= c.cfg.BurnIn,
	}
	for _, ch := range c.chains {
		split, full := diag.SplitHalf(ch.Trace)
		cs := ChainStatus{
			ID:             ch.ID,
			PriorHeat:      ch.PriorHeat,
			LikelihoodHeat: ch.LikelihoodHeat,
			LogPrior:       ch.Model.LogPrior(),
			LogLikelihood:  ch.Model.LogLikelihood(),
			SplitHalf:      split,
			WindowFull:     full,
			SwapRate:       ch.Swaps.Rate(),
			Proposers:      make(map[string]sampler.Stats, len(ch.Proposers)),
		}
		for _, p := range ch.Proposers {
			cs.Proposers[p.Name()] = p.Stats()
		}
		s.Chains = append(s.Chains, cs)
	}
	return s
}

// LogStatus writes one info record per chain
func (c *Controller) LogStatus() {
	s := c.Status()
	for _, cs := range s.Chains {
		c.log.Info("chain status",
			"run", s.RunID,
			"iteration", s.Iteration,
			"burnedIn", s.BurnedIn,
			"chain", cs.ID,
			"likelihoodHeat", cs.LikelihoodHeat,
			"logPrior", cs.LogPrior,
			"logLikelihood", cs.LogLikelihood,
			"splitHalf", cs.SplitHalf,
			"windowFull", cs.WindowFull,
			"swapRate", cs.SwapRate)
	}
}
