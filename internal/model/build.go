package model

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/02loveslollipop/companyOperationSimulator/internal/expr"
)

// Error is a structural violation detected while building a model: name
// collisions, reserved names, unsupported growth types, malformed formulas,
// missing required fields. Path locates the offending element in the
// document tree.
type Error struct {
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model: %s: %s: %v", e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("model: %s: %s", e.Path, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func buildErr(path, format string, args ...any) *Error {
	return &Error{Path: path, Msg: fmt.Sprintf(format, args...)}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// checkName rejects empty, malformed, and reserved identifiers.
func checkName(path, name string) error {
	if !identPattern.MatchString(name) {
		return buildErr(path, "invalid identifier %q", name)
	}
	if expr.Reserved(name) {
		return buildErr(path, "reserved name %q", name)
	}
	return nil
}

// Build compiles and validates a raw document into an immutable Model.
// Every formula is parsed here; evaluation never re-parses.
func Build(doc *Document) (*Model, error) {
	m := &Model{
		Consts: make(map[string]float64, len(doc.Global.Const)),
		doc:    doc,
	}

	seen := make(map[string]string) // name → where it was declared
	for name, v := range doc.Global.Const {
		path := "global.const." + name
		if err := checkName(path, name); err != nil {
			return nil, err
		}
		seen[name] = "const"
		m.Consts[name] = v
	}

	for _, nv := range doc.Global.Variable {
		path := "global.variable." + nv.Name
		if err := checkName(path, nv.Name); err != nil {
			return nil, err
		}
		if prior, ok := seen[nv.Name]; ok {
			return nil, buildErr(path, "name collides with %s declaration", prior)
		}
		seen[nv.Name] = "variable"
		variable, err := buildVariable(path, nv)
		if err != nil {
			return nil, err
		}
		m.Variables = append(m.Variables, variable)
	}

	for _, nc := range doc.Cost {
		cat, err := buildCategory("cost."+nc.Name, nc)
		if err != nil {
			return nil, err
		}
		m.Costs = append(m.Costs, cat)
	}
	if len(doc.Income.Categories) == 0 {
		return nil, buildErr("income", "missing income branch")
	}
	for _, nc := range doc.Income.Categories {
		cat, err := buildCategory("income."+nc.Name, nc)
		if err != nil {
			return nil, err
		}
		m.Income = append(m.Income, cat)
	}
	return m, nil
}

func buildVariable(path string, nv NamedVariable) (Variable, error) {
	spec := nv.Variable
	v := Variable{
		Name:      nv.Name,
		Start:     spec.Start,
		Max:       spec.Max,
		Min:       spec.Min,
		Period:    spec.Period,
		Increment: spec.Increment,
	}
	if v.Period <= 0 {
		v.Period = 1
	}

	switch {
	case spec.GrowthRate != nil:
		growth, err := buildGrowth(path+".growth_rate", spec.GrowthRate)
		if err != nil {
			return Variable{}, err
		}
		v.Growth = growth
	case spec.Increment != nil:
		v.Growth = Growth{Kind: GrowthIncrement, Step: *spec.Increment}
	default:
		v.Growth = Growth{Kind: GrowthNone}
	}
	return v, nil
}

func buildGrowth(path string, doc *GrowthRateDoc) (Growth, error) {
	switch doc.Type {
	case "linear":
		var rate float64
		if err := json.Unmarshal(doc.Values, &rate); err != nil {
			return Growth{}, buildErr(path, "linear growth wants a numeric rate: %v", err)
		}
		return Growth{Kind: GrowthLinear, Rate: rate}, nil

	case "polynomial":
		var coeffs []float64
		if err := json.Unmarshal(doc.Values, &coeffs); err != nil {
			return Growth{}, buildErr(path, "polynomial growth wants a coefficient list: %v", err)
		}
		if len(coeffs) == 0 {
			return Growth{}, buildErr(path, "polynomial growth wants at least one coefficient")
		}
		return Growth{Kind: GrowthPolynomial, Coefficients: coeffs}, nil

	case "logistic":
		var vals LogisticValues
		if err := json.Unmarshal(doc.Values, &vals); err != nil {
			return Growth{}, buildErr(path, "logistic growth wants {k, r}: %v", err)
		}
		if vals.K <= 0 {
			return Growth{}, buildErr(path, "logistic growth wants a positive carrying capacity, got %v", vals.K)
		}
		return Growth{Kind: GrowthLogistic, K: vals.K, R: vals.R}, nil
	}
	return Growth{}, buildErr(path, "unsupported growth type %q", doc.Type)
}

func buildCategory(path string, nc NamedCategory) (Category, error) {
	cat := Category{Name: nc.Name, Description: nc.Category.Description}
	if len(nc.Category.Resource) == 0 {
		return Category{}, buildErr(path, "category has no resources")
	}
	for _, rd := range nc.Category.Resource {
		res, err := buildResource(path+"."+rd.Name, rd)
		if err != nil {
			return Category{}, err
		}
		cat.Resources = append(cat.Resources, res)
	}
	return cat, nil
}

func buildResource(path string, doc ResourceDoc) (Resource, error) {
	if doc.Name == "" {
		return Resource{}, buildErr(path, "resource is missing a name")
	}
	fn, err := buildCalcFn(path+".calculation_function", doc.CalculationFunction)
	if err != nil {
		return Resource{}, err
	}
	return Resource{
		Name:              doc.Name,
		UseCase:           doc.UseCase,
		CalculationMethod: doc.CalculationMethod,
		BillingMethod:     doc.BillingMethod,
		Unit:              doc.Unit,
		Fn:                fn,
	}, nil
}

func compile(path, src string) (Compiled, error) {
	ast, err := expr.ParseExpr(src)
	if err != nil {
		return Compiled{}, &Error{Path: path, Msg: fmt.Sprintf("bad formula %q", src), Err: err}
	}
	return Compiled{Src: src, AST: ast}, nil
}

func buildCalcFn(path string, doc CalcFnDoc) (CalcFn, error) {
	if doc.IsDirect {
		direct, err := compile(path, doc.Direct)
		if err != nil {
			return CalcFn{}, err
		}
		return CalcFn{Kind: BodyDirect, Direct: &direct}, nil
	}

	var fn CalcFn
	for _, entry := range doc.Preprocess {
		epath := path + ".preprocess." + entry.Name
		if err := checkName(epath, entry.Name); err != nil {
			return CalcFn{}, err
		}
		c, err := compile(epath, entry.Expr)
		if err != nil {
			return CalcFn{}, err
		}
		fn.Preprocess = append(fn.Preprocess, NamedCompiled{Name: entry.Name, Compiled: c})
	}

	bodies := 0
	if doc.Result != "" {
		bodies++
	}
	if len(doc.Cases) > 0 {
		bodies++
	}
	if doc.For != nil {
		bodies++
	}
	if len(doc.Exec) > 0 {
		bodies++
	}
	if bodies != 1 {
		return CalcFn{}, buildErr(path, "want exactly one of result, cases, for, exec; found %d", bodies)
	}

	switch {
	case doc.Result != "":
		direct, err := compile(path+".result", doc.Result)
		if err != nil {
			return CalcFn{}, err
		}
		fn.Kind = BodyDirect
		fn.Direct = &direct

	case len(doc.Cases) > 0:
		fn.Kind = BodyCases
		for i, c := range doc.Cases {
			cpath := fmt.Sprintf("%s.cases[%d]", path, i)
			cond, err := compile(cpath+".case", c.Case)
			if err != nil {
				return CalcFn{}, err
			}
			result, err := compile(cpath+".result", c.Result)
			if err != nil {
				return CalcFn{}, err
			}
			fn.Cases = append(fn.Cases, CompiledCase{Cond: cond, Result: result})
		}

	case doc.For != nil:
		loop, err := buildFor(path+".for", doc.For)
		if err != nil {
			return CalcFn{}, err
		}
		fn.Kind = BodyFor
		fn.For = loop

	default:
		fn.Kind = BodyExec
		stmts, err := buildStatements(path+".exec", doc.Exec)
		if err != nil {
			return CalcFn{}, err
		}
		if !assignsResult(stmts) {
			return CalcFn{}, buildErr(path+".exec", "no statement assigns result")
		}
		fn.Exec = stmts
	}
	return fn, nil
}

func buildFor(path string, doc *ForDoc) (*CompiledFor, error) {
	iterator, err := compile(path+".iterator", doc.Iterator)
	if err != nil {
		return nil, err
	}
	agg := Aggregation(doc.Aggregation)
	switch agg {
	case AggSum, AggAverage, AggMax, AggMin:
	default:
		return nil, buildErr(path+".aggregation", "unknown aggregation %q (want sum, average, max, or min)", doc.Aggregation)
	}
	if len(doc.Exec) == 0 {
		return nil, buildErr(path+".exec", "loop body is empty")
	}
	body, err := buildStatements(path+".exec", doc.Exec)
	if err != nil {
		return nil, err
	}
	if !assignsResult(body) {
		return nil, buildErr(path+".exec", "no statement assigns result")
	}
	return &CompiledFor{Iterator: iterator, Aggregation: agg, Body: body}, nil
}

// buildStatements compiles each source string, which may itself hold
// several statements split by line breaks or semicolons, into a flat
// statement list.
func buildStatements(path string, srcs []string) ([]Compiled, error) {
	var stmts []Compiled
	for i, src := range srcs {
		nodes, err := expr.ParseStatements(src)
		if err != nil {
			return nil, &Error{Path: fmt.Sprintf("%s[%d]", path, i), Msg: fmt.Sprintf("bad statement %q", src), Err: err}
		}
		if len(nodes) == 0 {
			return nil, buildErr(fmt.Sprintf("%s[%d]", path, i), "empty statement %q", src)
		}
		for _, n := range nodes {
			stmts = append(stmts, Compiled{Src: src, AST: n})
		}
	}
	return stmts, nil
}

// assignsResult reports whether any statement in the list binds result.
func assignsResult(stmts []Compiled) bool {
	for _, s := range stmts {
		if a, ok := s.AST.(*expr.Assign); ok && a.Ident == "result" {
			return true
		}
	}
	return false
}
