package flow

import (
	"context"
	"time"

	"github.com/flowtest/engine/internal/runmodel"
	"github.com/flowtest/engine/internal/step"
	"github.com/flowtest/engine/internal/store"
	"github.com/flowtest/engine/internal/suite"
)

// executeRequest runs one `request` step: retries the primary body per its
// retry policy, falls back to the step's Fallback request (no retry
// policy of its own, per the teacher's FallbackBody handling) if the
// primary exhausts its retries, and pushes a compensation entry on success
// when the step declares one.
func (e *Engine) executeRequest(ctx context.Context, st suite.Step, runID, suitePath, baseURL string, vars *store.Store, opts Options, acc *[]runmodel.StepRun, comp *[]compensationEntry) (failed, waiting bool) {
	index := len(*acc)
	e.emitStepStarted(runID, index, st)
	started := time.Now()

	outcome := step.WithRetries(ctx, st.Metadata.Retry, func(c context.Context, _ int) step.Outcome {
		return e.runner.Execute(c, st.Name, st.Request, vars, baseURL, e.defaultTimeout)
	})

	usedFallback := false
	if outcome.Err != nil && st.Fallback != nil {
		usedFallback = true
		outcome = step.WithRetries(ctx, nil, func(c context.Context, _ int) step.Outcome {
			return e.runner.Execute(c, st.Name, st.Fallback, vars, baseURL, e.defaultTimeout)
		})
	}

	sr := runmodel.StepRun{
		RunID:            runID,
		StepIndex:        index,
		StepName:         st.Name,
		StepID:           st.StepID,
		QualifiedStepID:  st.QualifiedID(),
		AssertionResults: outcome.AssertionResults,
		Captures:         outcome.Captures,
		StartedAt:        started,
		FinishedAt:       time.Now(),
	}
	sr.DurationMS = sr.FinishedAt.Sub(started).Milliseconds()
	sr.RequestSnapshot = snapshotToMap(outcome.Request)
	sr.ResponseSnapshot = responseSnapshotToMap(outcome.Response)

	if outcome.Err != nil {
		sr.Status = runmodel.StepFailed
		sr.ErrorMessage = outcome.Err.Error()
		if summary := assertionFailureSummary(outcome.AssertionResults); summary != "" {
			sr.ErrorMessage = summary
		}
		*acc = append(*acc, sr)
		e.persist(ctx, runID, sr)
		e.emitStepOutcome(runID, sr)
		return true, false
	}

	if usedFallback {
		sr.Status = runmodel.StepWarning
	} else {
		sr.Status = runmodel.StepSuccess
	}

	if st.Compensate != nil {
		*comp = append(*comp, compensationEntry{stepName: st.Name + ".compensate", request: st.Compensate})
	}

	*acc = append(*acc, sr)
	e.persist(ctx, runID, sr)
	e.emitStepOutcome(runID, sr)

	if st.Request.Scenarios != nil {
		return e.runScenario(ctx, st.Request.Scenarios, runID, suitePath, baseURL, vars, opts, acc, comp)
	}
	return false, false
}

// snapshotToMap converts a typed request snapshot into the loosely-typed
// map runmodel.StepRun stores (it has no dependency on internal/httpengine).
func snapshotToMap(s any) map[string]any {
	return structToMap(s)
}

func responseSnapshotToMap(s any) map[string]any {
	return structToMap(s)
}
