package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/CraigKelly/tempering/mcmc"
	"github.com/CraigKelly/tempering/models"
)

// startupParams holds the flags shared by every command
type startupParams struct {
	cfgFile    string
	verbose    bool
	modelName  string
	dataFile   string
	synthetic  int
	randomSeed int64
	logFormat  string

	out io.Writer
	err io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	sp := &startupParams{out: out, err: errOut}

	rootCmd := &cobra.Command{
		Use:   "tempering",
		Short: "Parallel tempering MCMC over model graphs",
		Long: `tempering samples Bayesian models with a ladder of heated chains.
Among other features:

  - Metropolis-Hastings, Gibbs, DEMC and partition proposers
  - Likelihood tempering with swaps between neighbouring chains
  - CSV and JSON lines sample output
  - Checkpoints with bit-identical resume
`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&sp.cfgFile, "config", "c", "", "YAML config file (default is the built-in config)")
	pf.BoolVarP(&sp.verbose, "verbose", "v", false, "Verbose logging (default is much more parsimonious)")
	pf.StringVarP(&sp.modelName, "model", "m", "normal", fmt.Sprintf("Model to sample, one of %v", models.Names()))
	pf.StringVarP(&sp.dataFile, "data", "d", "", "Whitespace separated data file ('#' starts a comment)")
	pf.IntVar(&sp.synthetic, "synthetic", 200, "Number of synthetic data points when no data file is given")
	pf.Int64VarP(&sp.randomSeed, "seed", "r", 1, "Random seed to use")
	pf.StringVar(&sp.logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(newRunCmd(sp), newDotCmd(sp))
	return rootCmd
}

// Execute builds the command tree and runs it. This is called by main.main().
func Execute() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger returns a logger at level writing text or json to w
func newLogger(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// config is the config file (or the defaults) with the seed and verbose
// flags applied
func (sp *startupParams) config(cmd *cobra.Command) (mcmc.Config, error) {
	cfg := mcmc.DefaultConfig()
	if sp.cfgFile != "" {
		var err error
		if cfg, err = mcmc.LoadConfig(sp.cfgFile); err != nil {
			return cfg, err
		}
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = sp.randomSeed
	}
	if sp.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func (sp *startupParams) logger(cfg mcmc.Config) (*slog.Logger, error) {
	if sp.logFormat != "text" && sp.logFormat != "json" {
		return nil, errors.Errorf("Unknown log format %q", sp.logFormat)
	}
	level, err := mcmc.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return newLogger(level, sp.logFormat, sp.err), nil
}

// builder reads the data (or generates it) and looks up the model
func (sp *startupParams) builder(seed int64) (mcmc.Builder, error) {
	factory, err := models.Lookup(sp.modelName)
	if err != nil {
		return nil, err
	}

	var data []float64
	if sp.dataFile != "" {
		f, err := os.Open(sp.dataFile)
		if err != nil {
			return nil, errors.Wrapf(err, "Could not open data file %s", sp.dataFile)
		}
		defer f.Close()
		if data, err = models.ReadData(f); err != nil {
			return nil, errors.Wrapf(err, "Could not read data file %s", sp.dataFile)
		}
	} else if data, err = models.SyntheticData(sp.modelName, sp.synthetic, seed); err != nil {
		return nil, err
	}

	build, err := factory(data)
	if err != nil {
		return nil, err
	}
	return mcmc.Builder(build), nil
}
