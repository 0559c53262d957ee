package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowtest/engine/internal/runmodel"
	"github.com/flowtest/engine/internal/store"
	"github.com/flowtest/engine/internal/suite"
)

// executeIterate runs st.Iterate.Body once per element of an `over`
// expression or `range` sequence, binding the current element/index to
// `as` in runtime scope before each iteration and delegating the body to
// the same sequential loop (e.run) the top-level flow and scenario
// branches use, so the stop policy applies identically inside a loop body.
func (e *Engine) executeIterate(ctx context.Context, st suite.Step, runID, suitePath, baseURL string, vars *store.Store, opts Options, acc *[]runmodel.StepRun, comp *[]compensationEntry) (failed, waiting bool) {
	it := st.Iterate
	items, err := e.iterationItems(it, vars)
	if err != nil {
		*acc = append(*acc, e.failedStepRun(runID, len(*acc), st, err.Error()))
		return true, false
	}

	for i, item := range items {
		if it.As != "" {
			vars.SetRuntime(it.As, item)
		}
		vars.SetRuntime("__iteration_index", i)

		stopped, waitingInput := e.run(ctx, []suite.Step{*it.Body}, runID, suitePath, baseURL, vars, opts, acc, comp)
		if waitingInput {
			return false, true
		}
		if stopped {
			return true, false
		}
	}
	return false, false
}

func (e *Engine) iterationItems(it *suite.IterateStep, vars *store.Store) ([]any, error) {
	if it.Range != "" {
		return rangeItems(it.Range)
	}
	v, err := e.eval.EvalGeneral(it.Over, vars.Merged())
	if err != nil {
		return nil, fmt.Errorf("iterate.over: %w", err)
	}
	switch items := v.(type) {
	case []any:
		return items, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("iterate.over must evaluate to an array, got %T", v)
	}
}

func rangeItems(expr string) ([]any, error) {
	parts := strings.SplitN(expr, "..", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("iterate.range must be \"start..end\", got %q", expr)
	}
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, fmt.Errorf("iterate.range start: %w", err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, fmt.Errorf("iterate.range end: %w", err)
	}
	var out []any
	if end >= start {
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
	} else {
		for i := start; i >= end; i-- {
			out = append(out, i)
		}
	}
	return out, nil
}

