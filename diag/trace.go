package diag

import (
	"math"

	"github.com/CraigKelly/tempering/buffer"
	"gonum.org/v1/gonum/stat"
)

// SplitHalf compares the older and newer halves of a full trace window: it
// returns |mean1 - mean2| / sqrt((var1 + var2) / 2). Small values mean the
// window looks stationary. ok is false until the window has filled.
func SplitHalf(trace *buffer.Circular[float64]) (float64, bool) {
	first, second := trace.FirstHalf(), trace.SecondHalf()
	if first == nil || second == nil {
		return 0, false
	}

	read := func(it *buffer.Iterator[float64]) []float64 {
		var xs []float64
		for it.Next() {
			xs = append(xs, it.Value())
		}
		return xs
	}
	a, b := read(first), read(second)
	if len(a) < 2 || len(b) < 2 {
		return 0, false
	}

	m1, v1 := stat.MeanVariance(a, nil)
	m2, v2 := stat.MeanVariance(b, nil)
	diff := math.Abs(m1 - m2)
	pooled := math.Sqrt((v1 + v2) / 2)
	if pooled == 0 {
		if diff == 0 {
			return 0, true
		}
		return math.Inf(1), true
	}
	return diff / pooled, true
}
