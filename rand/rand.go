package rand

import (
	mathrand "math/rand"

	"github.com/pkg/errors"
	"github.com/seehuhn/mt19937"
)

// A Generator is a deterministic PRNG stream owned by exactly one chain. It
// counts every 64-bit draw so that a stream can be rebuilt bit-for-bit from
// its seed and draw count (see State and Restore). A Generator is NOT safe
// for concurrent use: the chain that owns it is the only caller.
type Generator struct {
	mt    *mt19937.MT19937
	std   *mathrand.Rand // helpers (normal, exponential, perm) over our own source
	seed  int64
	key   []uint64 // non-nil when seeded from a slice
	draws uint64
}

// State is the serializable position of a Generator.
type State struct {
	Seed  int64    `json:"seed"`
	Key   []uint64 `json:"key,omitempty"`
	Draws uint64   `json:"draws"`
}

// NewGenerator creates a Mersenne twister stream from the given seed
func NewGenerator(seed int64) (*Generator, error) {
	g := &Generator{mt: mt19937.New(), seed: seed}
	g.mt.Seed(seed)
	g.std = mathrand.New(g)
	return g, nil
}

// NewGeneratorSlice creates a stream seeded from the canonical init_by_array
// key, which is what the reference MT19937-64 test vectors use.
func NewGeneratorSlice(key []uint64) (*Generator, error) {
	if len(key) < 1 {
		return nil, errors.New("Seed key slice must not be empty")
	}

	g := &Generator{mt: mt19937.New(), key: make([]uint64, len(key))}
	copy(g.key, key)
	g.mt.SeedFromSlice(g.key)
	g.std = mathrand.New(g)
	return g, nil
}

// NewGenerators derives count independent streams from one master seed.
// Chain i always receives the same stream for the same master seed.
func NewGenerators(master int64, count int) ([]*Generator, error) {
	if count < 1 {
		return nil, errors.Errorf("Invalid generator count %d", count)
	}

	root, err := NewGenerator(master)
	if err != nil {
		return nil, err
	}

	gens := make([]*Generator, count)
	for i := range gens {
		gens[i], err = NewGenerator(root.Int63())
		if err != nil {
			return nil, errors.Wrapf(err, "Could not create generator %d", i)
		}
	}
	return gens, nil
}

// State returns the current position of the stream.
func (g *Generator) State() State {
	s := State{Seed: g.seed, Draws: g.draws}
	if g.key != nil {
		s.Key = append([]uint64(nil), g.key...)
	}
	return s
}

// Restore rebuilds a stream at the given position by reseeding and
// discarding the recorded number of draws. The cost is linear in Draws:
// a few hundred million draws replay in about a second, so a resume of a
// very long run pays for every draw it made.
func Restore(s State) (*Generator, error) {
	var g *Generator
	var err error
	if len(s.Key) > 0 {
		g, err = NewGeneratorSlice(s.Key)
	} else {
		g, err = NewGenerator(s.Seed)
	}
	if err != nil {
		return nil, errors.Wrap(err, "Could not restore generator")
	}

	for i := uint64(0); i < s.Draws; i++ {
		g.mt.Uint64()
	}
	g.draws = s.Draws
	return g, nil
}

// Seed implements math/rand.Source: it resets the stream entirely.
func (g *Generator) Seed(seed int64) {
	g.seed = seed
	g.key = nil
	g.draws = 0
	g.mt.Seed(seed)
}

// Uint64 returns the next raw 64 bits. This also makes a Generator usable as
// a gonum/math/rand/v2 Source.
func (g *Generator) Uint64() uint64 {
	g.draws++
	return g.mt.Uint64()
}

// Int63 provides the same interface as Go's math/rand
func (g *Generator) Int63() int64 {
	return int64(g.Uint64() & 0x7fffffffffffffff)
}

// Int63n is a copy of the current Go code
func (g *Generator) Int63n(n int64) int64 {
	if n <= 0 {
		panic("invalid argument to Int63n")
	}

	if n&(n-1) == 0 { // n is power of two, can mask
		return g.Int63() & (n - 1)
	}

	max := int64((1 << 63) - 1 - (1<<63)%uint64(n))
	v := g.Int63()
	for v > max {
		v = g.Int63()
	}

	return v % n
}

// Intn returns a uniform int in [0,n)
func (g *Generator) Intn(n int) int {
	if n <= 0 {
		panic("invalid argument to Intn")
	}
	return int(g.Int63n(int64(n)))
}

// Float64 uses the commented, simpler implmentation since we don't have the
// same support requirements for users
func (g *Generator) Float64() float64 {
	// See the Go lang comments for Rand Float64 implementation for details
	return float64(g.Int63n(1<<53)) / (1 << 53)
}

// OpenFloat64 returns a uniform value in (0,1), safe to pass to math.Log.
func (g *Generator) OpenFloat64() float64 {
	for {
		u := g.Float64()
		if u > 0 {
			return u
		}
	}
}

// NormFloat64 returns a standard normal deviate.
func (g *Generator) NormFloat64() float64 {
	return g.std.NormFloat64()
}

// ExpFloat64 returns an exponential deviate with rate 1.
func (g *Generator) ExpFloat64() float64 {
	return g.std.ExpFloat64()
}

// Perm returns a random permutation of [0,n).
func (g *Generator) Perm(n int) []int {
	return g.std.Perm(n)
}
