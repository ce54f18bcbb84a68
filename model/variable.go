package model

import (
	"math"
)

// Variable is a random variable node. It owns a typed value, is either
// observed (its density counts toward the likelihood) or latent (toward the
// prior), and caches its own log density so a rejected proposal can restore
// it without recomputing.
type Variable struct {
	id       NodeID
	name     string
	model    *Model
	observed bool
	dist     *DistributionNode // law for this variable, may be nil (constant)

	value Value
	prev  Value // value before the first mutation of the open transaction
	dirty bool  // mutated in the open transaction

	logP     float64
	prevLogP float64

	part *PartitionVariable // non-nil for partition variables
}

// ID implements Node
func (v *Variable) ID() NodeID { return v.id }

// Name implements Node
func (v *Variable) Name() string { return v.name }

// Model is the model this variable belongs to
func (v *Variable) Model() *Model { return v.model }

// Observed is true for data, false for latent variables
func (v *Variable) Observed() bool { return v.observed }

// Distribution returns the law currently governing v, or nil
func (v *Variable) Distribution() *DistributionNode { return v.dist }

// Partition returns the partition view of v, or nil
func (v *Variable) Partition() *PartitionVariable { return v.part }

// Kind of value held
func (v *Variable) Kind() Kind { return v.value.Kind }

// Value returns a copy of the current value
func (v *Variable) Value() Value { return v.value.Clone() }

// LogP is the cached log density of the current value
func (v *Variable) LogP() float64 { return v.logP }

// Float implements FloatValued. Int and bool values are converted.
func (v *Variable) Float() float64 {
	switch v.value.Kind {
	case KindFloat:
		return v.value.Float
	case KindInt:
		return float64(v.value.Int)
	case KindBool:
		if v.value.Bool {
			return 1
		}
		return 0
	}
	return math.NaN()
}

// Int implements IntValued
func (v *Variable) Int() int {
	switch v.value.Kind {
	case KindInt:
		return v.value.Int
	case KindBool:
		if v.value.Bool {
			return 1
		}
	}
	return 0
}

// Bool implements BinaryValued
func (v *Variable) Bool() bool {
	switch v.value.Kind {
	case KindBool:
		return v.value.Bool
	case KindInt:
		return v.value.Int != 0
	}
	return false
}

// Floats implements FloatArrayValued. The slice must not be modified.
func (v *Variable) Floats() []float64 {
	if v.value.Kind == KindFloat {
		return []float64{v.value.Float}
	}
	return v.value.Floats
}

// Ints returns the int array value. The slice must not be modified.
func (v *Variable) Ints() []int {
	return v.value.Ints
}

// FloatAt returns component i of an array value. Scalars convert as in
// Float and ignore i. Out of range is NaN.
func (v *Variable) FloatAt(i int) float64 {
	switch v.value.Kind {
	case KindFloatArray:
		if i >= 0 && i < len(v.value.Floats) {
			return v.value.Floats[i]
		}
	case KindIntArray:
		if i >= 0 && i < len(v.value.Ints) {
			return float64(v.value.Ints[i])
		}
	default:
		return v.Float()
	}
	return math.NaN()
}

// density evaluates the governing distribution for the current value
func (v *Variable) density() float64 {
	if v.dist == nil {
		return 0
	}
	if !v.dist.ValueIsValid(v.value) {
		return math.Inf(-1)
	}
	return v.dist.LogP(v)
}

// refresh recomputes the cached log density, saving the old one
func (v *Variable) refresh() float64 {
	v.prevLogP = v.logP
	v.logP = v.density()
	return v.logP
}

func (v *Variable) restoreLogP() {
	v.logP = v.prevLogP
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
