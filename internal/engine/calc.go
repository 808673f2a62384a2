package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/02loveslollipop/companyOperationSimulator/internal/expr"
	"github.com/02loveslollipop/companyOperationSimulator/internal/model"
	"github.com/02loveslollipop/companyOperationSimulator/internal/random"
	"github.com/02loveslollipop/companyOperationSimulator/internal/report"
)

// evaluate runs the calculation engine once against the given global
// snapshot and assembles the period's report.
func (e *Engine) evaluate(globals map[string]float64, period int, rand *random.Source) (*report.Report, error) {
	rep := &report.Report{
		Period:  period,
		Globals: snapshot(globals),
	}

	for _, cat := range e.model.Costs {
		totals := report.CategoryTotals{Name: cat.Name}
		for _, res := range cat.Resources {
			v, err := evalResource(res, globals, rand)
			if err != nil {
				path := fmt.Sprintf("cost.%s.%s", cat.Name, res.Name)
				slog.Error("resource evaluation failed", "resource", path, "period", period, "error", err)
				return nil, &ResourceError{Path: path, Err: err}
			}
			totals.Resources = append(totals.Resources, report.ResourceTotal{Name: res.Name, Value: v})
			rep.TotalCost += v
		}
		rep.Costs = append(rep.Costs, totals)
	}

	for _, cat := range e.model.Income {
		totals := report.CategoryTotals{Name: cat.Name}
		for _, res := range cat.Resources {
			v, err := evalResource(res, globals, rand)
			if err != nil {
				path := fmt.Sprintf("income.%s.%s", cat.Name, res.Name)
				slog.Error("resource evaluation failed", "resource", path, "period", period, "error", err)
				return nil, &ResourceError{Path: path, Err: err}
			}
			totals.Resources = append(totals.Resources, report.ResourceTotal{Name: res.Name, Value: v})
			rep.TotalIncome += v
		}
		rep.Income = append(rep.Income, totals)
	}

	rep.NetResult = rep.TotalIncome - rep.TotalCost
	return rep, nil
}

// evalResource produces one resource's contribution: preprocess bindings
// into a fresh local scope, then the body form.
func evalResource(res model.Resource, globals map[string]float64, rand *random.Source) (float64, error) {
	scope := expr.NewScope(globals)

	for _, pre := range res.Fn.Preprocess {
		v, err := expr.Eval(pre.AST, scope, rand)
		if err != nil {
			return 0, fmt.Errorf("preprocess %s: %w", pre.Name, err)
		}
		scope.Set(pre.Name, v)
	}

	switch res.Fn.Kind {
	case model.BodyDirect:
		return expr.Eval(res.Fn.Direct.AST, scope, rand)
	case model.BodyCases:
		return evalCases(res.Fn.Cases, scope, rand)
	case model.BodyFor:
		return evalFor(res.Fn.For, scope, rand)
	case model.BodyExec:
		return evalExec(res.Fn.Exec, scope, rand)
	}
	return 0, fmt.Errorf("unhandled body kind %d", res.Fn.Kind)
}

// evalCases walks the case list in declared order; the first truthy
// condition selects the result.
func evalCases(cases []model.CompiledCase, scope *expr.Scope, rand *random.Source) (float64, error) {
	for i, c := range cases {
		cond, err := expr.Eval(c.Cond.AST, scope, rand)
		if err != nil {
			return 0, fmt.Errorf("case %d condition: %w", i, err)
		}
		if cond != 0.0 {
			v, err := expr.Eval(c.Result.AST, scope, rand)
			if err != nil {
				return 0, fmt.Errorf("case %d result: %w", i, err)
			}
			return v, nil
		}
	}
	return 0, &NoMatchingCaseError{Cases: len(cases)}
}

// evalFor runs the loop body once per iteration, 1-based counter i, each
// iteration in a fresh frame over the preprocess bindings, and reduces the
// per-iteration results.
func evalFor(loop *model.CompiledFor, scope *expr.Scope, rand *random.Source) (float64, error) {
	iter, err := expr.Eval(loop.Iterator.AST, scope, rand)
	if err != nil {
		return 0, fmt.Errorf("iterator: %w", err)
	}
	n := int(math.Trunc(iter))
	if n <= 0 {
		// Degenerate policy: zero iterations contribute 0 for every
		// aggregation.
		slog.Debug("loop iterator not positive", "iterator", iter)
		return 0.0, nil
	}

	var agg float64
	for i := 1; i <= n; i++ {
		scope.Push()
		scope.Set("i", float64(i))
		r, err := runStatements(loop.Body, scope, rand)
		scope.Pop()
		if err != nil {
			return 0, fmt.Errorf("iteration %d: %w", i, err)
		}
		switch {
		case i == 1:
			agg = r
		case loop.Aggregation == model.AggSum || loop.Aggregation == model.AggAverage:
			agg += r
		case loop.Aggregation == model.AggMax:
			agg = math.Max(agg, r)
		case loop.Aggregation == model.AggMin:
			agg = math.Min(agg, r)
		}
	}
	if loop.Aggregation == model.AggAverage {
		agg /= float64(n)
	}
	return agg, nil
}

// evalExec runs the statement list in the resource's local scope; the final
// value of result is the total.
func evalExec(stmts []model.Compiled, scope *expr.Scope, rand *random.Source) (float64, error) {
	if _, err := execStatements(stmts, scope, rand); err != nil {
		return 0, err
	}
	v, ok := scope.Local("result")
	if !ok {
		return 0, fmt.Errorf("no statement assigned result")
	}
	return v, nil
}

// runStatements executes a loop iteration's statements and reads result
// from the iteration frame.
func runStatements(stmts []model.Compiled, scope *expr.Scope, rand *random.Source) (float64, error) {
	if _, err := execStatements(stmts, scope, rand); err != nil {
		return 0, err
	}
	v, ok := scope.Local("result")
	if !ok {
		return 0, fmt.Errorf("loop body did not assign result")
	}
	return v, nil
}

func execStatements(stmts []model.Compiled, scope *expr.Scope, rand *random.Source) (float64, error) {
	var last float64
	for _, s := range stmts {
		v, err := expr.Eval(s.AST, scope, rand)
		if err != nil {
			return 0, fmt.Errorf("statement %q: %w", s.Src, err)
		}
		last = v
	}
	return last, nil
}

// snapshot copies the global frame so later periods cannot mutate an
// already-emitted report.
func snapshot(globals map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(globals))
	for k, v := range globals {
		out[k] = v
	}
	return out
}
