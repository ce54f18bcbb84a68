package cmd

import (
	"expvar"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CraigKelly/tempering/mcmc"
)

// progressVars are published to expvar once per process; every monitor
// updates the same set
type progressVars struct {
	RunID       *expvar.String
	Chains      *expvar.Int
	Total       *expvar.Int
	Iterations  *expvar.Int
	BurnedIn    *expvar.Int
	RunTime     *expvar.Float
	ColdLogPost *expvar.Float
	MaxSplit    *expvar.Float
	MeanSwap    *expvar.Float
}

var (
	publishOnce sync.Once
	progress    *progressVars
)

func publishedVars() *progressVars {
	publishOnce.Do(func() {
		m := expvar.NewMap("tempering-progress")
		progress = &progressVars{
			RunID:       new(expvar.String),
			Chains:      new(expvar.Int),
			Total:       new(expvar.Int),
			Iterations:  new(expvar.Int),
			BurnedIn:    new(expvar.Int),
			RunTime:     new(expvar.Float),
			ColdLogPost: new(expvar.Float),
			MaxSplit:    new(expvar.Float),
			MeanSwap:    new(expvar.Float),
		}
		m.Set("Run-ID", progress.RunID)
		m.Set("Chain-Count", progress.Chains)
		m.Set("Total-Iterations", progress.Total)
		m.Set("Iterations", progress.Iterations)
		m.Set("Burned-In", progress.BurnedIn)
		m.Set("Run-Time", progress.RunTime)
		m.Set("Cold-Log-Posterior", progress.ColdLogPost)
		m.Set("Max-Split-Half", progress.MaxSplit)
		m.Set("Mean-Swap-Rate", progress.MeanSwap)
	})
	return progress
}

// monitor serves run progress over HTTP: expvar at /debug/vars and
// Prometheus at /metrics
type monitor struct {
	vars    *progressVars
	started time.Time
	stopped chan struct{}
	server  *http.Server
	lis     net.Listener
}

// Start begins serving on addr
func (m *monitor) Start(addr string) error {
	if m.server != nil {
		return errors.Errorf("BUG: You may only start the process monitor once")
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "Could not listen on %s", addr)
	}

	m.vars = publishedVars()
	m.started = time.Now()
	m.lis = lis
	m.stopped = make(chan struct{})

	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/debug/vars", http.StatusTemporaryRedirect)
	})
	m.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		defer close(m.stopped)
		m.server.Serve(lis)
	}()
	return nil
}

// Addr is the address actually bound
func (m *monitor) Addr() string {
	if m.lis == nil {
		return ""
	}
	return m.lis.Addr().String()
}

// Begin records the fixed facts of a run
func (m *monitor) Begin(c *mcmc.Controller) {
	if m.vars == nil {
		return
	}
	m.vars.RunID.Set(c.RunID())
	m.vars.Chains.Set(int64(c.Config().ChainCount))
	m.vars.Total.Set(c.Total())
	m.vars.Iterations.Set(c.Iteration())
}

// Update publishes a status; it is the controller's progress callback
func (m *monitor) Update(s mcmc.Status) {
	if m.vars == nil {
		return
	}
	m.vars.Iterations.Set(s.Iteration)
	if s.BurnedIn {
		m.vars.BurnedIn.Set(1)
	} else {
		m.vars.BurnedIn.Set(0)
	}
	m.vars.RunTime.Set(time.Since(m.started).Seconds())

	if len(s.Chains) == 0 {
		return
	}
	cold := s.Chains[0]
	m.vars.ColdLogPost.Set(cold.LogPrior + cold.LogLikelihood)

	maxSplit, swaps := 0.0, 0.0
	for _, cs := range s.Chains {
		if cs.WindowFull && !math.IsNaN(cs.SplitHalf) {
			maxSplit = math.Max(maxSplit, cs.SplitHalf)
		}
		swaps += cs.SwapRate
	}
	m.vars.MaxSplit.Set(maxSplit)
	if n := len(s.Chains) - 1; n > 0 {
		// the hottest chain never leads a pair
		m.vars.MeanSwap.Set(swaps / float64(n))
	}
}

// Stop shuts the server down, waiting up to two seconds
func (m *monitor) Stop() {
	if m.server == nil {
		return
	}

	m.server.Close()

	select {
	case <-m.stopped:
	case <-time.After(2 * time.Second):
	}
}
