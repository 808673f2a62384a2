// Package model holds the parsed, immutable representation of a cost/income
// configuration document: global constants and growth-driven variables plus
// the category tree of resources, with every formula compiled to an AST at
// build time.
package model

import (
	"math"

	"github.com/02loveslollipop/companyOperationSimulator/internal/expr"
)

// Model is the compiled configuration. Built once by Build and immutable
// thereafter; the engine evaluates against snapshots derived from it.
type Model struct {
	Consts    map[string]float64
	Variables []Variable
	Costs     []Category
	Income    []Category

	doc *Document // retained for re-serialisation
}

// Document returns the raw document the model was built from.
func (m *Model) Document() *Document { return m.doc }

// Variable is one time-evolving global with its growth law and bounds.
type Variable struct {
	Name   string
	Start  float64
	Max    *float64
	Min    *float64
	Period int // growth applies once per this many simulation periods
	Growth Growth

	// Extra additive step per period, for variables declaring both a
	// growth law and an increment.
	Increment *float64
}

// Value computes the variable's value at period t from the given start
// (normally v.Start, or a caller override): the growth law applied to the
// effective period index, plus any additive increment, clamped to the
// declared bounds.
func (v Variable) Value(start float64, t int) float64 {
	eff := t
	if v.Period > 1 {
		eff = t / v.Period
	}
	val := v.Growth.apply(start, eff)
	if v.Increment != nil && v.Growth.Kind != GrowthIncrement {
		val += *v.Increment * float64(eff)
	}
	if v.Max != nil && val > *v.Max {
		val = *v.Max
	}
	if v.Min != nil && val < *v.Min {
		val = *v.Min
	}
	return val
}

// GrowthKind tags the growth law variant.
type GrowthKind int

const (
	// GrowthNone holds the variable at its start value.
	GrowthNone GrowthKind = iota
	// GrowthLinear compounds multiplicatively: v(t) = start·(1+rate)^t.
	GrowthLinear
	// GrowthPolynomial evaluates v(t) = Σ cᵢ·tⁱ.
	GrowthPolynomial
	// GrowthLogistic saturates toward K: v(t) = K / (1 + ((K−N₀)/N₀)·e^(−r·t)).
	GrowthLogistic
	// GrowthIncrement advances additively: v(t) = start + step·t.
	GrowthIncrement
)

var growthNames = map[GrowthKind]string{
	GrowthNone:       "none",
	GrowthLinear:     "linear",
	GrowthPolynomial: "polynomial",
	GrowthLogistic:   "logistic",
	GrowthIncrement:  "increment",
}

func (k GrowthKind) String() string { return growthNames[k] }

// Growth is a tagged growth-law variant with its parameters inline.
type Growth struct {
	Kind         GrowthKind
	Rate         float64   // linear
	Coefficients []float64 // polynomial, c₀ first
	K            float64   // logistic carrying capacity
	R            float64   // logistic rate
	Step         float64   // increment
}

// apply computes the law's value at period t from the start value.
func (g Growth) apply(start float64, t int) float64 {
	switch g.Kind {
	case GrowthLinear:
		return start * math.Pow(1+g.Rate, float64(t))
	case GrowthPolynomial:
		v := 0.0
		for i, c := range g.Coefficients {
			v += c * math.Pow(float64(t), float64(i))
		}
		return v
	case GrowthLogistic:
		n0 := start
		if n0 <= 0 {
			// A zero start would pin the curve at zero forever; seed it
			// at a fraction of the capacity instead.
			n0 = math.Max(start, g.K*0.001)
		}
		return g.K / (1 + ((g.K-n0)/n0)*math.Exp(-g.R*float64(t)))
	case GrowthIncrement:
		return start + g.Step*float64(t)
	}
	return start
}

// Category is a named, ordered group of resources.
type Category struct {
	Name        string
	Description string
	Resources   []Resource
}

// Resource is one cost or income leaf with its compiled calculation.
type Resource struct {
	Name              string
	UseCase           string
	CalculationMethod string
	BillingMethod     string
	Unit              string
	Fn                CalcFn
}

// BodyKind tags the calculation body variant.
type BodyKind int

const (
	// BodyDirect evaluates a single expression.
	BodyDirect BodyKind = iota
	// BodyCases picks the first case whose condition is truthy.
	BodyCases
	// BodyFor iterates a statement list and aggregates per-iteration results.
	BodyFor
	// BodyExec runs a statement list; the final value of result wins.
	BodyExec
)

// Aggregation is the reduction applied to for-loop iteration results.
type Aggregation string

// Allowed aggregations.
const (
	AggSum     Aggregation = "sum"
	AggAverage Aggregation = "average"
	AggMax     Aggregation = "max"
	AggMin     Aggregation = "min"
)

// Compiled pairs an expression's source text with its parsed AST. Formulas
// are pure, so each is parsed exactly once at model build.
type Compiled struct {
	Src string
	AST expr.Node
}

// NamedCompiled is a compiled preprocess binding.
type NamedCompiled struct {
	Name string
	Compiled
}

// CompiledCase is one compiled condition/result pair.
type CompiledCase struct {
	Cond   Compiled
	Result Compiled
}

// CompiledFor is a compiled bounded loop.
type CompiledFor struct {
	Iterator    Compiled
	Aggregation Aggregation
	Body        []Compiled // statements, in order
}

// CalcFn is a compiled calculation function: optional preprocess bindings
// plus exactly one body form.
type CalcFn struct {
	Preprocess []NamedCompiled
	Kind       BodyKind
	Direct     *Compiled
	Cases      []CompiledCase
	For        *CompiledFor
	Exec       []Compiled
}
