package model

import (
	"math"
)

// Kind is the type of value a Variable holds.
type Kind int

// Value kinds
const (
	KindFloat Kind = iota
	KindInt
	KindBool
	KindIntArray
	KindFloatArray
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindIntArray:
		return "int-array"
	case KindFloatArray:
		return "float-array"
	}
	return "unknown"
}

// Value is a tagged union of the value types a Variable can hold. Only the
// field matching Kind is meaningful.
type Value struct {
	Kind   Kind      `json:"kind"`
	Float  float64   `json:"float,omitempty"`
	Int    int       `json:"int,omitempty"`
	Bool   bool      `json:"bool,omitempty"`
	Ints   []int     `json:"ints,omitempty"`
	Floats []float64 `json:"floats,omitempty"`
}

// FloatValue wraps a real number
func FloatValue(x float64) Value { return Value{Kind: KindFloat, Float: x} }

// IntValue wraps an integer
func IntValue(i int) Value { return Value{Kind: KindInt, Int: i} }

// BoolValue wraps a boolean
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IntsValue wraps a copy of the given ints
func IntsValue(xs []int) Value {
	return Value{Kind: KindIntArray, Ints: append([]int{}, xs...)}
}

// FloatsValue wraps a copy of the given floats
func FloatsValue(xs []float64) Value {
	return Value{Kind: KindFloatArray, Floats: append([]float64{}, xs...)}
}

// Clone returns a deep copy
func (v Value) Clone() Value {
	cp := v
	if v.Ints != nil {
		cp.Ints = append([]int{}, v.Ints...)
	}
	if v.Floats != nil {
		cp.Floats = append([]float64{}, v.Floats...)
	}
	return cp
}

// Equal compares kind and payload exactly
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindFloat:
		return v.Float == o.Float || (math.IsNaN(v.Float) && math.IsNaN(o.Float))
	case KindInt:
		return v.Int == o.Int
	case KindBool:
		return v.Bool == o.Bool
	case KindIntArray:
		if len(v.Ints) != len(o.Ints) {
			return false
		}
		for i := range v.Ints {
			if v.Ints[i] != o.Ints[i] {
				return false
			}
		}
		return true
	case KindFloatArray:
		if len(v.Floats) != len(o.Floats) {
			return false
		}
		for i := range v.Floats {
			if v.Floats[i] != o.Floats[i] {
				return false
			}
		}
		return true
	}
	return false
}

// Len is the number of scalar components
func (v Value) Len() int {
	switch v.Kind {
	case KindIntArray:
		return len(v.Ints)
	case KindFloatArray:
		return len(v.Floats)
	}
	return 1
}

// Capability interfaces. Distributions and functions read their inputs
// through these rather than through concrete node types, so a parameter
// can be a Variable, a Function or a Constant.

// FloatValued exposes a real value
type FloatValued interface {
	Float() float64
}

// IntValued exposes an integer value
type IntValued interface {
	Int() int
}

// BinaryValued exposes a boolean value
type BinaryValued interface {
	Bool() bool
}

// FloatArrayValued exposes a real vector. Callers must not modify it.
type FloatArrayValued interface {
	Floats() []float64
}

// Constant is a fixed real parameter that is not part of the graph
type Constant float64

// Float implements FloatValued
func (c Constant) Float() float64 { return float64(c) }

// IntConstant is a fixed integer parameter that is not part of the graph
type IntConstant int

// Int implements IntValued
func (c IntConstant) Int() int { return int(c) }

// FloatConstants is a fixed real vector parameter
type FloatConstants []float64

// Floats implements FloatArrayValued
func (c FloatConstants) Floats() []float64 { return c }
