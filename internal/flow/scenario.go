package flow

import (
	"context"

	"github.com/flowtest/engine/internal/runmodel"
	"github.com/flowtest/engine/internal/store"
	"github.com/flowtest/engine/internal/suite"
)

// executeScenario evaluates st.Scenario's branches in declared order and
// runs the first matching branch's Then list (or Else, if the branch's own
// condition is false and an Else is present), via the shared sequential
// loop. A scenario step with no matching branch and no Else anywhere is a
// no-op success, matching "scenarios are optional routing, not assertions."
func (e *Engine) executeScenario(ctx context.Context, st suite.Step, runID, suitePath, baseURL string, vars *store.Store, opts Options, acc *[]runmodel.StepRun, comp *[]compensationEntry) (failed, waiting bool) {
	return e.runScenario(ctx, st.Scenario, runID, suitePath, baseURL, vars, opts, acc, comp)
}

// runScenario is the branch-matching logic shared by a standalone `scenarios`
// step and a request step's trailing `scenarios` block (§6: "scenarios may
// accompany a request"; classify() keeps the step's Kind as Request in that
// case, so the nested branches run through this helper rather than their own
// dispatch entry).
func (e *Engine) runScenario(ctx context.Context, sc *suite.ScenarioStep, runID, suitePath, baseURL string, vars *store.Store, opts Options, acc *[]runmodel.StepRun, comp *[]compensationEntry) (failed, waiting bool) {
	for _, branch := range sc.Branches {
		matched, err := e.evalBool(branch.Condition, vars)
		if err != nil {
			continue
		}

		var body []suite.Step
		switch {
		case matched:
			body = branch.Then
		case len(branch.Else) > 0:
			body = branch.Else
		default:
			continue
		}

		stopped, waitingInput := e.run(ctx, body, runID, suitePath, baseURL, vars, opts, acc, comp)
		return stopped && !waitingInput, waitingInput
	}
	return false, false
}
