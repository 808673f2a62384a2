// Package engine evaluates compiled cost models: per-resource calculation
// with layered scopes, category and report totals, and the period driver
// that evolves global variables under their growth laws.
package engine

import (
	"fmt"

	"github.com/02loveslollipop/companyOperationSimulator/internal/model"
	"github.com/02loveslollipop/companyOperationSimulator/internal/random"
)

// Options configures an engine instance.
type Options struct {
	// Seed drives the $random sampler. Fixed at construction so runs are
	// reproducible.
	Seed int64

	// IncludeInitial makes the first simulated report reflect the initial
	// state (period 0) before any growth applies. When false the report
	// sequence starts after the first update instead; either way
	// Simulate(n) returns exactly n reports.
	IncludeInitial bool
}

// DefaultOptions are the documented defaults: seed 42, initial report
// included.
func DefaultOptions() Options {
	return Options{Seed: random.DefaultSeed, IncludeInitial: true}
}

// Engine evaluates one model. Evaluation is single-threaded and
// synchronous; resources run in declared order, periods sequentially.
type Engine struct {
	model *model.Model
	opts  Options
}

// New creates an engine over a built model.
func New(m *model.Model, opts Options) *Engine {
	return &Engine{model: m, opts: opts}
}

// ResourceError wraps a failure inside one resource's evaluation with the
// path of the failing resource. Any resource error aborts the whole period;
// partial reports are never emitted.
type ResourceError struct {
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %s: %v", e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// NoMatchingCaseError reports a cases list exhausted without any truthy
// condition.
type NoMatchingCaseError struct {
	Cases int
}

func (e *NoMatchingCaseError) Error() string {
	return fmt.Sprintf("no matching case (%d tried)", e.Cases)
}

// initialGlobals builds the period-0 snapshot: constants, then variable
// start values, then caller overrides on top.
func (e *Engine) initialGlobals(overrides map[string]float64) map[string]float64 {
	globals := make(map[string]float64, len(e.model.Consts)+len(e.model.Variables)+len(overrides))
	for name, v := range e.model.Consts {
		globals[name] = v
	}
	for _, v := range e.model.Variables {
		globals[v.Name] = v.Start
	}
	for name, v := range overrides {
		globals[name] = v
	}
	return globals
}

// variableStart returns the growth-law origin for a variable: its declared
// start, unless the caller overrode it.
func variableStart(v model.Variable, overrides map[string]float64) float64 {
	if o, ok := overrides[v.Name]; ok {
		return o
	}
	return v.Start
}
