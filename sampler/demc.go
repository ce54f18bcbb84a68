package sampler

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/CraigKelly/tempering/buffer"
	"github.com/CraigKelly/tempering/model"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// DEMCConfig controls the differential evolution proposer
type DEMCConfig struct {
	Enabled             bool     `yaml:"enabled" json:"enabled"`
	Variables           []string `yaml:"variables" json:"variables"` // empty: every real latent variable
	HistoryThin         int      `yaml:"history_thin" json:"historyThin"`
	InitialHistoryCount int      `yaml:"initial_history_count" json:"initialHistoryCount"`
	MaxHistory          int      `yaml:"max_history" json:"maxHistory"`
	MinBlockSize        int      `yaml:"min_block_size" json:"minBlockSize"`
	MaxBlockSize        int      `yaml:"max_block_size" json:"maxBlockSize"`
	Parallel            bool     `yaml:"parallel" json:"parallel"`
	Large               bool     `yaml:"large" json:"large"`
	Snooker             bool     `yaml:"snooker" json:"snooker"`
}

// DefaultDEMCConfig enables all three kernels
func DefaultDEMCConfig() DEMCConfig {
	return DEMCConfig{
		Enabled:             true,
		HistoryThin:         10,
		InitialHistoryCount: 100,
		MaxHistory:          2000,
		MinBlockSize:        1,
		MaxBlockSize:        16,
		Parallel:            true,
		Large:               true,
		Snooker:             true,
	}
}

// Check validates the config
func (c DEMCConfig) Check() error {
	if c.HistoryThin < 1 {
		return errors.Errorf("demc history_thin must be >= 1, got %d", c.HistoryThin)
	}
	if c.InitialHistoryCount < 3 {
		return errors.Errorf("demc initial_history_count must be >= 3, got %d", c.InitialHistoryCount)
	}
	if c.MaxHistory < c.InitialHistoryCount {
		return errors.Errorf("demc max_history %d is below initial_history_count %d", c.MaxHistory, c.InitialHistoryCount)
	}
	if c.MinBlockSize < 1 || c.MaxBlockSize < c.MinBlockSize {
		return errors.Errorf("demc block sizes must satisfy 1 <= min <= max, got [%d, %d]", c.MinBlockSize, c.MaxBlockSize)
	}
	if !c.Parallel && !c.Large && !c.Snooker {
		return errors.New("demc needs at least one of parallel, large, snooker")
	}
	return nil
}

type demcKind int

const (
	demcParallel demcKind = iota
	demcLarge
	demcSnooker
)

var demcNames = [...]string{"demc-parallel", "demc-large", "demc-snooker"}

// dim is one real coordinate of the DEMC state vector
type dim struct {
	v     *model.Variable
	index int
}

// DEMC proposes block moves from scaled differences of past states. The
// history is thinned and bounded; the running mean and standard deviation
// of every coordinate are kept for ordering coordinates into blocks. Each
// kernel has its own counters and multiplier (Stats.Scale).
type DEMC struct {
	cfg     DEMCConfig
	vars    []string
	kernels []*counter
	kinds   []demcKind

	steps   int64
	history *buffer.Circular[[]float64]
	seen    int64
	mean    []float64
	m2      []float64
}

// NewDEMC creates the proposer over the named real variables
func NewDEMC(cfg DEMCConfig, vars []string) (*DEMC, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if len(vars) == 0 {
		return nil, errors.New("demc needs at least one variable")
	}

	p := &DEMC{
		cfg:     cfg,
		vars:    append([]string{}, vars...),
		history: buffer.NewCircular[[]float64](cfg.MaxHistory + cfg.MaxHistory%2),
	}
	for kind, on := range []bool{cfg.Parallel, cfg.Large, cfg.Snooker} {
		if on {
			c := &counter{name: demcNames[kind]}
			c.stats.Scale = 1
			p.kernels = append(p.kernels, c)
			p.kinds = append(p.kinds, demcKind(kind))
		}
	}
	return p, nil
}

// Name implements Proposer
func (p *DEMC) Name() string { return "demc" }

// Stats implements Proposer, summed over the kernels. Scale is the mean
// multiplier.
func (p *DEMC) Stats() Stats {
	var s Stats
	for _, k := range p.kernels {
		s.Proposed += k.stats.Proposed
		s.Accepted += k.stats.Accepted
		s.Rejected += k.stats.Rejected
		s.Impossible += k.stats.Impossible
		s.WindowProp += k.stats.WindowProp
		s.WindowAcc += k.stats.WindowAcc
		s.Scale += k.stats.Scale / float64(len(p.kernels))
	}
	return s
}

// KernelStats returns per kernel stats keyed by kernel name
func (p *DEMC) KernelStats() map[string]Stats {
	out := make(map[string]Stats, len(p.kernels))
	for _, k := range p.kernels {
		out[k.name] = k.stats
	}
	return out
}

// HistoryCount is the number of stored history vectors
func (p *DEMC) HistoryCount() int { return p.history.Count }

// Tune implements Proposer: each kernel's multiplier moves independently
func (p *DEMC) Tune(target float64) {
	for _, k := range p.kernels {
		if rate, ok := k.windowRate(); ok {
			k.stats.Scale = TuneScale(k.stats.Scale, rate, target)
		}
	}
}

// state reads the current coordinates from m
func (p *DEMC) state(m *model.Model) ([]dim, []float64, error) {
	var dims []dim
	for _, name := range p.vars {
		v, err := m.Variable(name)
		if err != nil {
			return nil, nil, err
		}
		switch v.Kind() {
		case model.KindFloat:
			dims = append(dims, dim{v, 0})
		case model.KindFloatArray:
			for i := range v.Floats() {
				dims = append(dims, dim{v, i})
			}
		default:
			return nil, nil, errors.Errorf("demc variable %s is %s, not real", name, v.Kind())
		}
	}
	x := make([]float64, len(dims))
	for i, d := range dims {
		x[i] = d.v.FloatAt(d.index)
	}
	return dims, x, nil
}

// remember adds x to the history and the running moments (Welford)
func (p *DEMC) remember(x []float64) {
	if p.mean == nil {
		p.mean = make([]float64, len(x))
		p.m2 = make([]float64, len(x))
	}
	p.history.Add(append([]float64{}, x...))
	p.seen++
	n := float64(p.seen)
	for i, xi := range x {
		delta := xi - p.mean[i]
		p.mean[i] += delta / n
		p.m2[i] += delta * (xi - p.mean[i])
	}
}

func (p *DEMC) stddev(i int) float64 {
	if p.seen < 2 {
		return 1
	}
	sd := math.Sqrt(p.m2[i] / float64(p.seen-1))
	if sd == 0 {
		return 1
	}
	return sd
}

// blockSizes are the powers of two in [min, max] no larger than d
func (p *DEMC) blockSizes(d int) []int {
	var sizes []int
	for b := 1; b <= p.cfg.MaxBlockSize && b <= d; b *= 2 {
		if b >= p.cfg.MinBlockSize {
			sizes = append(sizes, b)
		}
	}
	if len(sizes) == 0 {
		sizes = append(sizes, d)
	}
	return sizes
}

// Step implements Proposer
func (p *DEMC) Step(ctx *Context) error {
	dims, x, err := p.state(ctx.Model)
	if err != nil {
		return err
	}
	if p.mean != nil && len(p.mean) != len(x) {
		return errors.Errorf("demc state has %d coordinates, history has %d", len(x), len(p.mean))
	}

	p.steps++
	if p.steps%int64(p.cfg.HistoryThin) == 0 {
		p.remember(x)
	}
	if p.history.Count < p.cfg.InitialHistoryCount || p.history.Count < 3 {
		return nil
	}

	d := len(dims)
	for _, b := range p.blockSizes(d) {
		// order coordinates by the standardized position of one past draw
		z0 := p.history.At(ctx.Gen.Intn(p.history.Count))
		order := make([]int, d)
		keys := make([]float64, d)
		for i := range order {
			order[i] = i
			keys[i] = math.Abs(z0[i]-p.mean[i]) / p.stddev(i)
		}
		sort.SliceStable(order, func(i, j int) bool { return keys[order[i]] < keys[order[j]] })

		for start := 0; start < d; start += b {
			end := start + b
			if end > d {
				end = d
			}
			block := order[start:end]
			for k := range p.kernels {
				if err := p.move(ctx, k, dims, block); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// distinct draws count different history indices
func (p *DEMC) distinct(ctx *Context, count int) []int {
	idx := make([]int, 0, count)
	for len(idx) < count {
		i := ctx.Gen.Intn(p.history.Count)
		dup := false
		for _, j := range idx {
			if i == j {
				dup = true
				break
			}
		}
		if !dup {
			idx = append(idx, i)
		}
	}
	return idx
}

func (p *DEMC) move(ctx *Context, k int, dims []dim, block []int) error {
	kind := p.kinds[k]
	c := p.kernels[k]
	b := len(block)

	x := make([]float64, b)
	for j, i := range block {
		x[j] = dims[i].v.FloatAt(dims[i].index)
	}
	pick := func(z []float64) []float64 {
		out := make([]float64, b)
		for j, i := range block {
			out[j] = z[i]
		}
		return out
	}

	next := make([]float64, b)
	logQ := 0.0
	var invalid error

	switch kind {
	case demcParallel, demcLarge:
		idx := p.distinct(ctx, 2)
		z1, z2 := pick(p.history.At(idx[0])), pick(p.history.At(idx[1]))
		gamma := 2.38 / math.Sqrt(2*float64(b)) * c.stats.Scale
		if kind == demcLarge {
			gamma *= 2
		}
		floats.SubTo(next, z1, z2)
		floats.Scale(gamma, next)
		floats.Add(next, x)

	case demcSnooker:
		idx := p.distinct(ctx, 3)
		z, z1, z2 := pick(p.history.At(idx[0])), pick(p.history.At(idx[1])), pick(p.history.At(idx[2]))
		dir := make([]float64, b)
		floats.SubTo(dir, x, z)
		norm := floats.Norm(dir, 2)
		if norm == 0 {
			invalid = impossiblef("snooker direction has zero length")
			break
		}
		floats.Scale(1/norm, dir)
		proj := floats.Dot(z1, dir) - floats.Dot(z2, dir)
		copy(next, x)
		floats.AddScaled(next, 1.7*c.stats.Scale*proj, dir)

		after := make([]float64, b)
		floats.SubTo(after, next, z)
		norm2 := floats.Norm(after, 2)
		if norm2 == 0 {
			invalid = impossiblef("snooker proposal landed on its anchor")
			break
		}
		logQ = float64(b-1) * math.Log(norm2/norm)
	}

	_, err := propose(ctx, c, func(tx *model.Transaction) (float64, error) {
		if invalid != nil {
			return 0, invalid
		}
		if err := p.checkValid(dims, block, next); err != nil {
			return 0, err
		}
		for j, i := range block {
			if err := tx.SetFloatAt(dims[i].v, dims[i].index, next[j]); err != nil {
				return 0, err
			}
		}
		return logQ, nil
	})
	return err
}

// checkValid builds each touched variable's candidate value and checks it
// against its law before anything is evaluated.
func (p *DEMC) checkValid(dims []dim, block []int, next []float64) error {
	cand := make(map[*model.Variable]model.Value)
	var order []*model.Variable
	for j, i := range block {
		v := dims[i].v
		val, ok := cand[v]
		if !ok {
			val = v.Value()
			order = append(order, v)
		}
		if val.Kind == model.KindFloat {
			val.Float = next[j]
		} else {
			val.Floats[dims[i].index] = next[j]
		}
		cand[v] = val
	}
	for _, v := range order {
		for _, f := range cand[v].Floats {
			if math.IsNaN(f) {
				return impossiblef("demc candidate for %s is NaN", v.Name())
			}
		}
		if math.IsNaN(cand[v].Float) {
			return impossiblef("demc candidate for %s is NaN", v.Name())
		}
		if d := v.Distribution(); d != nil && !d.ValueIsValid(cand[v]) {
			return impossiblef("demc candidate for %s is outside its support", v.Name())
		}
	}
	return nil
}

type demcState struct {
	Steps   int64       `json:"steps"`
	Seen    int64       `json:"seen"`
	History [][]float64 `json:"history"`
	Mean    []float64   `json:"mean"`
	M2      []float64   `json:"m2"`
	Kernels []Stats     `json:"kernels"`
}

// SaveState implements Proposer
func (p *DEMC) SaveState() (json.RawMessage, error) {
	s := demcState{
		Steps:   p.steps,
		Seen:    p.seen,
		History: p.history.Values(),
		Mean:    p.mean,
		M2:      p.m2,
	}
	for _, k := range p.kernels {
		s.Kernels = append(s.Kernels, k.stats)
	}
	return json.Marshal(s)
}

// LoadState implements Proposer
func (p *DEMC) LoadState(raw json.RawMessage) error {
	var s demcState
	if err := json.Unmarshal(raw, &s); err != nil {
		return errors.Wrap(err, "Bad demc state")
	}
	if len(s.Kernels) != len(p.kernels) {
		return errors.Errorf("demc state has %d kernels, proposer has %d", len(s.Kernels), len(p.kernels))
	}
	p.steps = s.Steps
	p.seen = s.Seen
	p.history.Restore(s.History, s.Seen)
	p.mean, p.m2 = s.Mean, s.M2
	for i, k := range p.kernels {
		k.stats = s.Kernels[i]
	}
	return nil
}
