package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowtest/engine/internal/runmodel"
)

func TestMemoryStoreRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	run := runmodel.NewRun("suite.yaml", "v1", runmodel.TriggerAPI, 0, "op", map[string]any{"env": "staging"})
	require.NoError(t, store.CreateRun(ctx, run))

	got, err := store.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, runmodel.StatusQueued, got.Status)

	run.Transition(runmodel.StatusRunning, time.Now())
	require.NoError(t, store.UpdateRun(ctx, run))

	got, err = store.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, runmodel.StatusRunning, got.Status)

	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListRunsFiltersBySuite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a := runmodel.NewRun("a.yaml", "v1", runmodel.TriggerCLI, 0, "op", nil)
	b := runmodel.NewRun("b.yaml", "v1", runmodel.TriggerCLI, 0, "op", nil)
	require.NoError(t, store.CreateRun(ctx, a))
	require.NoError(t, store.CreateRun(ctx, b))

	runs, err := store.ListRuns(ctx, "a.yaml", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, a.RunID, runs[0].RunID)
}

func TestMemoryStorePersistStepUpsertsByIndex(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sr := runmodel.StepRun{StepIndex: 0, StepName: "login", Status: runmodel.StepRunning}
	require.NoError(t, store.PersistStep(ctx, "run-1", sr))

	sr.Status = runmodel.StepSuccess
	require.NoError(t, store.PersistStep(ctx, "run-1", sr))

	steps, err := store.ListStepRuns(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 1, "expected upsert by index, not append")
	assert.Equal(t, runmodel.StepSuccess, steps[0].Status)
}

func TestStepRunRowRoundTrip(t *testing.T) {
	sr := runmodel.StepRun{
		RunID:            "run-1",
		StepIndex:        2,
		StepName:         "create order",
		Status:           runmodel.StepFailed,
		DurationMS:       120,
		RequestSnapshot:  map[string]any{"method": "POST"},
		ResponseSnapshot: map[string]any{"status_code": float64(500)},
		Captures:         map[string]any{"order_id": "abc"},
		AssertionResults: []runmodel.AssertionResult{{Assertion: "status == 200", Passed: false}},
		ErrorMessage:     "assertion failed",
		StartedAt:        time.Now(),
		FinishedAt:       time.Now(),
	}

	row, err := toStepRunRow(sr)
	require.NoError(t, err)
	back, err := fromStepRunRow(row)
	require.NoError(t, err)

	assert.Equal(t, sr.StepName, back.StepName)
	assert.Equal(t, sr.Status, back.Status)
	assert.Equal(t, "POST", back.RequestSnapshot["method"])
	require.Len(t, back.AssertionResults, 1)
	assert.Equal(t, "status == 200", back.AssertionResults[0].Assertion)
}

func TestRunRowRoundTrip(t *testing.T) {
	now := time.Now()
	run := runmodel.Run{
		RunID:         "run-1",
		SuiteRef:      "suite.yaml",
		VersionRef:    "v1",
		Status:        runmodel.StatusCompleted,
		TriggerSource: runmodel.TriggerSchedule,
		InputPayload:  map[string]any{"env": "prod"},
		QueuedAt:      now,
		StartedAt:     &now,
		FinishedAt:    &now,
		ResultSummary: &runmodel.ResultSummary{PassedSteps: 3, TotalSteps: 3},
	}

	row, err := toRunRow(run)
	require.NoError(t, err)
	back, err := fromRunRow(row)
	require.NoError(t, err)

	assert.Equal(t, run.SuiteRef, back.SuiteRef)
	assert.Equal(t, run.Status, back.Status)
	require.NotNil(t, back.ResultSummary)
	assert.Equal(t, 3, back.ResultSummary.PassedSteps)
	assert.NotNil(t, back.StartedAt)
}
