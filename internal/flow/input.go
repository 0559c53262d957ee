package flow

import (
	"context"
	"time"

	"github.com/flowtest/engine/internal/runmodel"
	"github.com/flowtest/engine/internal/store"
	"github.com/flowtest/engine/internal/suite"
)

// executeInput resolves an `input` step's value via the configured
// InputProvider. When the provider has no value yet (no pre-supplied Run
// input payload and no interactive answer available), the step — and the
// whole flow — transitions to WAITING_INPUT per §4.9, to be resumed later
// once the Run is given an answer.
func (e *Engine) executeInput(ctx context.Context, st suite.Step, runID string, vars *store.Store, acc *[]runmodel.StepRun) (failed, waiting bool) {
	index := len(*acc)
	e.emitStepStarted(runID, index, st)
	started := time.Now()

	value, ok := e.input.Provide(ctx, runID, *st.Input)
	if !ok {
		if st.Input.Default != nil {
			value, ok = st.Input.Default, true
		}
	}

	if !ok {
		sr := runmodel.StepRun{
			RunID: runID, StepIndex: index, StepName: st.Name, StepID: st.StepID,
			QualifiedStepID: st.QualifiedID(), Status: runmodel.StepWaitingInput,
			StartedAt: started, FinishedAt: time.Now(),
		}
		*acc = append(*acc, sr)
		e.persist(ctx, runID, sr)
		return false, true
	}

	vars.SetRuntime(st.Input.Variable, value)

	sr := runmodel.StepRun{
		RunID: runID, StepIndex: index, StepName: st.Name, StepID: st.StepID,
		QualifiedStepID: st.QualifiedID(), Status: runmodel.StepSuccess,
		Captures:  map[string]any{st.Input.Variable: value},
		StartedAt: started, FinishedAt: time.Now(),
	}
	sr.DurationMS = sr.FinishedAt.Sub(started).Milliseconds()
	*acc = append(*acc, sr)
	e.persist(ctx, runID, sr)
	e.emitStepOutcome(runID, sr)
	return false, false
}
