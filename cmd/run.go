package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/CraigKelly/tempering/mcmc"
)

type runParams struct {
	chains          int
	threads         int
	burnIn          int64
	iterations      int64
	sampleEvery     int64
	csvFile         string
	jsonlFile       string
	checkpoint      string
	checkpointEvery int64
	resume          string
	monitorAddr     string
}

func newRunCmd(sp *startupParams) *cobra.Command {
	rp := &runParams{}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sampler (or resume it from a checkpoint)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSampler(ctx, cmd, sp, rp)
		},
	}

	f := runCmd.Flags()
	f.IntVar(&rp.chains, "chains", 0, "Number of tempered chains")
	f.IntVarP(&rp.threads, "threads", "t", 0, "Maximum concurrent tasks")
	f.Int64Var(&rp.burnIn, "burn-in", 0, "Iterations discarded before sampling")
	f.Int64VarP(&rp.iterations, "iterations", "n", 0, "Iterations after burn in")
	f.Int64Var(&rp.sampleEvery, "sample-every", 0, "Iterations between samples")
	f.StringVarP(&rp.csvFile, "out", "o", "", "CSV sample file")
	f.StringVar(&rp.jsonlFile, "jsonl", "", "JSON lines sample file")
	f.StringVar(&rp.checkpoint, "checkpoint", "", "Checkpoint file")
	f.Int64Var(&rp.checkpointEvery, "checkpoint-every", 0, "Iterations between checkpoints")
	f.StringVar(&rp.resume, "resume", "", "Resume from this checkpoint (its config wins over flags)")
	f.StringVar(&rp.monitorAddr, "monitor", "", "Serve expvar and Prometheus metrics on this address (e.g. :8000)")
	return runCmd
}

// apply copies the flags the user actually set into cfg
func (rp *runParams) apply(cmd *cobra.Command, cfg *mcmc.Config) {
	f := cmd.Flags()
	if f.Changed("chains") {
		cfg.ChainCount = rp.chains
	}
	if f.Changed("threads") {
		cfg.Threads = rp.threads
	}
	if f.Changed("burn-in") {
		cfg.BurnIn = rp.burnIn
	}
	if f.Changed("iterations") {
		cfg.Iterations = rp.iterations
	}
	if f.Changed("sample-every") {
		cfg.SampleEvery = rp.sampleEvery
	}
	if f.Changed("checkpoint") {
		cfg.CheckpointPath = rp.checkpoint
	}
	if f.Changed("checkpoint-every") {
		cfg.CheckpointEvery = rp.checkpointEvery
	}
}

func runSampler(ctx context.Context, cmd *cobra.Command, sp *startupParams, rp *runParams) error {
	var cp *mcmc.Checkpoint
	var cfg mcmc.Config
	var err error

	if rp.resume != "" {
		if cp, err = mcmc.LoadCheckpoint(rp.resume); err != nil {
			return err
		}
		cfg = cp.Config
	} else {
		if cfg, err = sp.config(cmd); err != nil {
			return err
		}
		rp.apply(cmd, &cfg)
		if err = cfg.Check(); err != nil {
			return err
		}
	}

	log, err := sp.logger(cfg)
	if err != nil {
		return err
	}

	// synthetic data follows the run's seed so a resume rebuilds the same models
	build, err := sp.builder(cfg.Seed)
	if err != nil {
		return err
	}

	opts := []mcmc.Option{mcmc.WithLogger(log)}
	var mon *monitor
	if rp.monitorAddr != "" {
		mon = &monitor{}
		if err := mon.Start(rp.monitorAddr); err != nil {
			return err
		}
		defer mon.Stop()
		log.Info("monitor started", "addr", mon.Addr())
		opts = append(opts, mcmc.WithProgress(mon.Update))
	}

	sink, err := mcmc.CreateSinks(rp.csvFile, rp.jsonlFile)
	if err != nil {
		return err
	}
	if sink != nil {
		opts = append(opts, mcmc.WithSink(sink))
	}

	var ctl *mcmc.Controller
	if cp != nil {
		ctl, err = mcmc.Resume(cp, build, opts...)
	} else {
		ctl, err = mcmc.New(cfg, build, opts...)
	}
	if err != nil {
		if sink != nil {
			sink.Close()
		}
		return err
	}
	if mon != nil {
		mon.Begin(ctl)
	}

	start := time.Now()
	runErr := ctl.Run(ctx)
	closeErr := ctl.Close()

	printStatus(sp, ctl.Status(), time.Since(start))
	if runErr != nil {
		if errors.Cause(runErr) == context.Canceled && cfg.CheckpointEvery > 0 {
			log.Warn("run interrupted; resume from the last checkpoint", "checkpoint", cfg.CheckpointPath)
		}
		return runErr
	}
	return closeErr
}

// printStatus writes the final per-chain table to the command output
func printStatus(sp *startupParams, s mcmc.Status, took time.Duration) {
	fmt.Fprintf(sp.out, "Run %s: %d iterations in %v\n", s.RunID, s.Iteration, took.Round(time.Millisecond))
	tw := tabwriter.NewWriter(sp.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "chain\theat\tlog prior\tlog likelihood\tsplit half\tswap rate")
	for _, cs := range s.Chains {
		fmt.Fprintf(tw, "%d\t%.4g\t%.4f\t%.4f\t%.4f\t%.3f\n",
			cs.ID, cs.LikelihoodHeat, cs.LogPrior, cs.LogLikelihood, cs.SplitHalf, cs.SwapRate)
	}
	tw.Flush()
}
