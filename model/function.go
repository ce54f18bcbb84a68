package model

import (
	"github.com/CraigKelly/tempering/rand"
)

// NodeID is a stable handle to a node in one Model's arena.
type NodeID int

// Node is implemented by every graph node handle: *Variable,
// *DistributionNode and *FunctionNode.
type Node interface {
	ID() NodeID
	Name() string
}

// ProposerHint is how a Distribution tells a sampler which kernel suits a
// Variable it governs.
type ProposerHint int

// Proposer hints
const (
	HintNone ProposerHint = iota
	HintMHNormal
	HintMHMultiplier
	HintMHUniform
	HintGibbsBinary
	HintGibbsInt
	HintSequentialInt
	HintPartition
)

func (h ProposerHint) String() string {
	switch h {
	case HintMHNormal:
		return "mh-normal"
	case HintMHMultiplier:
		return "mh-multiplier"
	case HintMHUniform:
		return "mh-uniform"
	case HintGibbsBinary:
		return "gibbs-binary"
	case HintGibbsInt:
		return "gibbs-int"
	case HintSequentialInt:
		return "sequential-int"
	case HintPartition:
		return "partition"
	}
	return "none"
}

// Updater is the part of the node contract shared by distributions and
// functions. Update recomputes the node from its inputs after an upstream
// change and reports whether anything downstream can observe a difference;
// it must save whatever it overwrites. UpdateAfterRejection restores that
// saved state in O(1) and must not recompute.
type Updater interface {
	Update() (changed bool, err error)
	UpdateAfterRejection()
}

// Distribution is a probability law for one or more Variables. It may read
// parameter nodes (declared as inputs when it is added to a Model).
type Distribution interface {
	Updater

	// LogP is the log density of v's current value. Values outside the
	// support may return -Inf; ValueIsValid is checked first.
	LogP(v *Variable) float64

	// Sample draws a fresh value for v.
	Sample(v *Variable, gen *rand.Generator) (Value, error)

	// ValueIsValid reports whether val is in the support.
	ValueIsValid(val Value) bool

	// ProposerHint names the kernel a sampler should use for v.
	ProposerHint(v *Variable) ProposerHint
}

// FloatRange is implemented by distributions with bounded real support
type FloatRange interface {
	FloatRange() (min, max float64)
}

// IntRange is implemented by distributions over a bounded integer domain
type IntRange interface {
	IntRange() (min, max int)
}

// Function is a deterministic node, recomputed when upstream inputs change.
// Implementations usually also implement one of the *Valued interfaces.
type Function interface {
	Updater
}

// DistributionNode is the graph handle for a Distribution
type DistributionNode struct {
	Distribution
	id   NodeID
	name string
}

// ID implements Node
func (d *DistributionNode) ID() NodeID { return d.id }

// Name implements Node
func (d *DistributionNode) Name() string { return d.name }

// FunctionNode is the graph handle for a Function
type FunctionNode struct {
	Function
	id   NodeID
	name string
}

// ID implements Node
func (f *FunctionNode) ID() NodeID { return f.id }

// Name implements Node
func (f *FunctionNode) Name() string { return f.name }

// Float forwards to the wrapped Function so a FunctionNode can be used as a
// parameter directly. It panics if the Function is not FloatValued.
func (f *FunctionNode) Float() float64 {
	return f.Function.(FloatValued).Float()
}
