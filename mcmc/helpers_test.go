package mcmc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"

	"github.com/CraigKelly/tempering/dist"
	"github.com/CraigKelly/tempering/model"
	"github.com/stretchr/testify/require"
)

// testBuilder: mu ~ N(0,3), tau ~ N(0,1), flag ~ Bernoulli(0.3) latent;
// x.i ~ N(mu, 1) observed
func testBuilder(data ...float64) Builder {
	return func() (*model.Model, error) {
		m := model.New("test")
		if err := m.BeginConstruction(); err != nil {
			return nil, err
		}
		muPrior, err := dist.Add(m, "muPrior", dist.NewNormal(model.Constant(0), model.Constant(3)))
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

		tauPrior, err := dist.Add(m, "tauPrior", dist.NewNormal(model.Constant(0), model.Constant(1)))
		if err != nil {
			return nil, err
		}
		tau, err := m.AddVariable("tau", model.FloatValue(0), false)
		if err != nil {
			return nil, err
		}
		if err := m.SetDistribution(tau, tauPrior); err != nil {
			return nil, err
		}

		flagLaw, err := dist.Add(m, "flagLaw", dist.NewBernoulli(model.Constant(0.3)))
		if err != nil {
			return nil, err
		}
		flag, err := m.AddVariable("flag", model.BoolValue(false), false)
		if err != nil {
			return nil, err
		}
		if err := m.SetDistribution(flag, flagLaw); err != nil {
			return nil, err
		}

		lik, err := dist.Add(m, "lik", dist.NewNormal(mu, model.Constant(1)))
		if err != nil {
			return nil, err
		}
		for i, x := range data {
			v, err := m.AddVariable("x."+strconv.Itoa(i), model.FloatValue(x), true)
			if err != nil {
				return nil, err
			}
			if err := m.SetDistribution(v, lik); err != nil {
				return nil, err
			}
		}
		return m, m.EndConstruction()
	}
}

func bg() context.Context { return context.Background() }

var testData = []float64{0.5, 1.0, 1.5, 2.0}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ChainCount = 3
	cfg.Threads = 2
	cfg.BurnIn = 100
	cfg.Iterations = 200
	cfg.TuneEvery = 20
	cfg.SampleEvery = 5
	cfg.VerifyEvery = 50
	cfg.TraceWindow = 20
	cfg.DEMC.HistoryThin = 2
	cfg.DEMC.InitialHistoryCount = 10
	cfg.DEMC.MaxHistory = 100
	cfg.DEMC.MaxBlockSize = 2
	return cfg
}

func newTestController(t *testing.T, cfg Config, opts ...Option) *Controller {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	c, err := New(cfg, testBuilder(testData...), opts...)
	require.NoError(t, err)
	return c
}

// chainsJSON is the comparable state of every chain
func chainsJSON(t *testing.T, c *Controller) string {
	cp, err := c.Checkpoint()
	require.NoError(t, err)
	raw, err := json.Marshal(cp.Chains)
	require.NoError(t, err)
	return string(raw)
}

// memSink keeps every record
type memSink struct {
	mu      sync.Mutex
	records []*Record
	closed  bool
}

func (s *memSink) Write(r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *memSink) Close() error {
	s.closed = true
	return nil
}
