package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrImpossible marks a proposal whose new state cannot be evaluated: an
// update failed, a value fell outside its support, or a density or total
// became NaN/infinite. It is an outcome, not a failure of the model.
var ErrImpossible = errors.New("impossible proposal")

// ModelError is the one error type for structural problems with a model
// graph: unknown nodes, bad edges, cycles, misuse of the construction or
// transaction protocol. These are fatal to a run.
type ModelError struct {
	Op  string // operation that failed, e.g. "AddEdge"
	Msg string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s: %s", e.Op, e.Msg)
}

func modelErrorf(op string, format string, args ...interface{}) error {
	return errors.WithStack(&ModelError{Op: op, Msg: fmt.Sprintf(format, args...)})
}

// IsModelError is true if err is (or wraps) a ModelError
func IsModelError(err error) bool {
	var me *ModelError
	return errors.As(err, &me)
}

// IsImpossible is true if err is (or wraps) ErrImpossible
func IsImpossible(err error) bool {
	return errors.Is(err, ErrImpossible)
}

// DriftError reports a cached log-density that no longer matches a
// from-scratch recompute.
type DriftError struct {
	Name   string // variable name, or "logPrior"/"logLikelihood" for totals
	Cached float64
	Fresh  float64
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("cached log density for %s drifted: cached=%g fresh=%g", e.Name, e.Cached, e.Fresh)
}
