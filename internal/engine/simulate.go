package engine

import (
	"fmt"
	"log/slog"

	"github.com/02loveslollipop/companyOperationSimulator/internal/random"
	"github.com/02loveslollipop/companyOperationSimulator/internal/report"
)

// Report evaluates the model once against its initial state plus overrides.
// A fresh random stream is derived from the engine seed, so repeated calls
// are identical.
func (e *Engine) Report(overrides map[string]float64) (*report.Report, error) {
	src := random.NewSource(e.opts.Seed)
	globals := e.initialGlobals(overrides)
	return e.evaluate(globals, 0, src)
}

// Simulate evolves the global variables over the given number of periods
// and evaluates the model once per period, returning exactly one report per
// period. The first report reflects the initial state (period 0) unless
// IncludeInitial is off, in which case the sequence starts after the first
// update. The run halts on the first failing period.
func (e *Engine) Simulate(periods int, overrides map[string]float64) ([]*report.Report, error) {
	if periods <= 0 {
		return nil, fmt.Errorf("simulate: periods must be positive, got %d", periods)
	}

	src := random.NewSource(e.opts.Seed)
	globals := e.initialGlobals(overrides)

	first := 0
	if !e.opts.IncludeInitial {
		first = 1
	}

	reports := make([]*report.Report, 0, periods)
	for t := first; t < first+periods; t++ {
		// Advance every variable to its value at t before evaluating, in
		// declared order. Constants and unknown overrides stay put.
		for _, v := range e.model.Variables {
			globals[v.Name] = v.Value(variableStart(v, overrides), t)
		}

		rep, err := e.evaluate(globals, t, src)
		if err != nil {
			return nil, fmt.Errorf("period %d: %w", t, err)
		}
		reports = append(reports, rep)
		slog.Debug("period evaluated",
			"period", t,
			"total_cost", rep.TotalCost,
			"total_income", rep.TotalIncome,
			"net_result", rep.NetResult,
		)
	}
	return reports, nil
}
