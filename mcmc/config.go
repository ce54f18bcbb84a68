package mcmc

import (
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/CraigKelly/tempering/sampler"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is everything a Controller needs besides the model itself. Counts
// are in iterations; an "every" of 0 disables that step.
type Config struct {
	Seed             int64   `yaml:"seed" json:"seed"`
	ChainCount       int     `yaml:"chain_count" json:"chainCount"`
	HeatPower        float64 `yaml:"heat_power" json:"heatPower"`
	Threads          int     `yaml:"threads" json:"threads"`
	BurnIn           int64   `yaml:"burn_in" json:"burnIn"`
	Iterations       int64   `yaml:"iterations" json:"iterations"` // after burn in
	InitFromPrior    bool    `yaml:"init_from_prior" json:"initFromPrior"`
	TuneEvery        int64   `yaml:"tune_every" json:"tuneEvery"`
	TargetAcceptance float64 `yaml:"target_acceptance" json:"targetAcceptance"`
	SwapEvery        int64   `yaml:"swap_every" json:"swapEvery"`
	SampleEvery      int64   `yaml:"sample_every" json:"sampleEvery"`
	VerifyEvery      int64   `yaml:"verify_every" json:"verifyEvery"`
	VerifyTolerance  float64 `yaml:"verify_tolerance" json:"verifyTolerance"`
	CheckpointEvery  int64   `yaml:"checkpoint_every" json:"checkpointEvery"`
	CheckpointPath   string  `yaml:"checkpoint_path" json:"checkpointPath"`
	TraceWindow      int     `yaml:"trace_window" json:"traceWindow"`
	LogLevel         string  `yaml:"log_level" json:"logLevel"`

	DEMC sampler.DEMCConfig `yaml:"demc" json:"demc"`
}

// DefaultConfig is a four chain run with all steps enabled
func DefaultConfig() Config {
	return Config{
		Seed:             1,
		ChainCount:       4,
		HeatPower:        3,
		Threads:          4,
		BurnIn:           1000,
		Iterations:       10000,
		TuneEvery:        100,
		TargetAcceptance: 0.44,
		SwapEvery:        1,
		SampleEvery:      10,
		VerifyEvery:      1000,
		VerifyTolerance:  1e-6,
		CheckpointEvery:  0,
		TraceWindow:      200,
		LogLevel:         "info",
		DEMC:             sampler.DefaultDEMCConfig(),
	}
}

// LoadConfig reads YAML from path over DefaultConfig, so a file only needs
// the keys it changes. Unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "Could not open config %s", path)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "Could not parse config %s", path)
	}
	return cfg, cfg.Check()
}

// Check validates the config
func (c Config) Check() error {
	if c.ChainCount < 1 {
		return errors.Errorf("chain_count must be >= 1, got %d", c.ChainCount)
	}
	if c.HeatPower <= 0 {
		return errors.Errorf("heat_power must be > 0, got %v", c.HeatPower)
	}
	if c.Threads < 1 {
		return errors.Errorf("threads must be >= 1, got %d", c.Threads)
	}
	if c.BurnIn < 0 || c.Iterations < 0 {
		return errors.Errorf("burn_in and iterations must be >= 0, got %d and %d", c.BurnIn, c.Iterations)
	}
	for _, e := range []struct {
		name  string
		every int64
	}{
		{"tune_every", c.TuneEvery},
		{"swap_every", c.SwapEvery},
		{"sample_every", c.SampleEvery},
		{"verify_every", c.VerifyEvery},
		{"checkpoint_every", c.CheckpointEvery},
	} {
		if e.every < 0 {
			return errors.Errorf("%s must be >= 0, got %d", e.name, e.every)
		}
	}
	if c.TargetAcceptance <= 0 || c.TargetAcceptance >= 1 {
		return errors.Errorf("target_acceptance must be in (0,1), got %v", c.TargetAcceptance)
	}
	if c.VerifyTolerance <= 0 {
		return errors.Errorf("verify_tolerance must be > 0, got %v", c.VerifyTolerance)
	}
	if c.CheckpointEvery > 0 && c.CheckpointPath == "" {
		return errors.New("checkpoint_every is set but checkpoint_path is empty")
	}
	if c.TraceWindow < 2 {
		return errors.Errorf("trace_window must be >= 2, got %d", c.TraceWindow)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.DEMC.Enabled {
		if err := c.DEMC.Check(); err != nil {
			return err
		}
	}
	return nil
}

// ParseLevel maps a log_level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.Errorf("Unknown log_level %q", s)
}

// Heats returns the (prior, likelihood) heat exponents of chain i. The prior
// is never heated; the likelihood exponent falls from 1 at chain 0 to 0 at
// the last chain along ((n-1-i)/(n-1))^HeatPower, so a larger power packs
// more rungs close to 0.
func (c Config) Heats(i int) (float64, float64) {
	n := c.ChainCount
	if n < 2 {
		return 1, 1
	}
	frac := float64(n-1-i) / float64(n-1)
	return 1, math.Pow(frac, c.HeatPower)
}
