// Package flow implements the Flow Engine (spec §4.8): runs a Flow Suite's
// steps sequentially, applies the stop policy, streams lifecycle events,
// hands each step result to the Persistence Adapter, and aggregates a
// FlowResult.
//
// The step loop, fallback-then-compensation shape, and stop-policy
// semantics are grounded on the teacher's Executor.ExecuteSteps
// (runtime/executor.go) — same "try primary, try fallback on failure, push
// compensation on success, unwind compensations LIFO on final failure"
// structure, generalized from the teacher's single DSL step shape to this
// repository's five step kinds.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/flowtest/engine/internal/callresolver"
	"github.com/flowtest/engine/internal/events"
	"github.com/flowtest/engine/internal/runmodel"
	"github.com/flowtest/engine/internal/step"
	"github.com/flowtest/engine/internal/store"
	"github.com/flowtest/engine/internal/suite"
)

// Evaluator is everything the Flow Engine's expression needs span: path
// extraction and script evaluation (via step.Evaluator) plus general
// expression evaluation for skip/condition/iterate-over/scenario-condition
// expressions.
type Evaluator interface {
	step.Evaluator
	EvalGeneral(expression string, context map[string]any) (any, error)
}

// StepPersister is the Persistence Adapter's write path as seen by the Flow
// Engine (§4.8 "After each step, the engine passes the step result to the
// Persistence Adapter"). A narrow interface here keeps internal/flow from
// depending on internal/persistence's storage details.
type StepPersister interface {
	PersistStep(ctx context.Context, runID string, stepRun runmodel.StepRun) error
}

// InputProvider resolves an `input` step's value: from a pre-supplied Run
// input payload, an interactive prompt, or a configured default.
type InputProvider interface {
	Provide(ctx context.Context, runID string, in suite.InputStep) (value any, ok bool)
}

// Options configures one executeFlow call.
type Options struct {
	SkipValidation bool // treated as "continue on failure" for every step
	CallStack      []runmodel.CallStackEntry
	Total          int // total step count of the enclosing Execute call, for progress-update
}

// Result is the FlowResult §4.8 describes.
type Result struct {
	Status       runmodel.Status
	StepRuns     []runmodel.StepRun
	ErrorMessage string
	PassedSteps  int
	FailedSteps  int
	TotalSteps   int
	DurationMS   int64
}

// Engine executes one Flow Suite Document per call.
type Engine struct {
	runner         *step.Runner
	eval           Evaluator
	resolver       *callresolver.Resolver
	broadcaster    events.Broadcaster
	persister      StepPersister
	input          InputProvider
	logger         *slog.Logger
	defaultTimeout time.Duration
}

func New(runner *step.Runner, eval Evaluator, resolver *callresolver.Resolver, broadcaster events.Broadcaster, persister StepPersister, input InputProvider, logger *slog.Logger, defaultTimeout time.Duration) *Engine {
	if broadcaster == nil {
		broadcaster = events.NopBroadcaster{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		runner: runner, eval: eval, resolver: resolver,
		broadcaster: broadcaster, persister: persister, input: input,
		logger: logger, defaultTimeout: defaultTimeout,
	}
}

// Execute runs s's steps in declared order for the Run identified by runID.
// suitePath is s's own file path, used to resolve relative `call` targets.
func (e *Engine) Execute(ctx context.Context, runID string, s suite.Suite, suitePath string, vars *store.Store, opts Options) Result {
	start := time.Now()
	total := len(s.Steps)
	e.broadcaster.Publish(events.Event{
		RunID: runID, TS: start, Kind: events.KindFlowStarted,
		Payload: events.FlowStartedPayload{SuiteName: s.Name, TotalSteps: total, StartTime: start},
	})

	opts.Total = total
	var acc []runmodel.StepRun
	var comp []compensationEntry
	stopped, waitingInput := e.run(ctx, s.Steps, runID, suitePath, s.BaseURL, vars, opts, &acc, &comp)

	passed, failed := countOutcomes(acc)
	duration := time.Since(start).Milliseconds()

	if waitingInput {
		return Result{Status: runmodel.StatusWaitingInput, StepRuns: acc, PassedSteps: passed, FailedSteps: failed, TotalSteps: total, DurationMS: duration}
	}

	status := runmodel.StatusCompleted
	errMsg := ""
	if stopped && failed > 0 {
		e.runCompensations(ctx, runID, s.BaseURL, vars, comp)
		status = runmodel.StatusFailed
		errMsg = firstErrorMessage(acc)
		e.broadcaster.Publish(events.Event{
			RunID: runID, TS: time.Now(), Kind: events.KindFlowFailed,
			Payload: events.FlowFailedPayload{ErrorMessage: errMsg, DurationMS: duration, PassedSteps: passed, FailedSteps: failed},
		})
	} else {
		e.broadcaster.Publish(events.Event{
			RunID: runID, TS: time.Now(), Kind: events.KindFlowCompleted,
			Payload: events.FlowCompletedPayload{DurationMS: duration, PassedSteps: passed, FailedSteps: failed, TotalSteps: total},
		})
	}

	return Result{Status: status, StepRuns: acc, ErrorMessage: errMsg, PassedSteps: passed, FailedSteps: failed, TotalSteps: total, DurationMS: duration}
}

// run executes steps in order, appending each step's StepRun(s) to acc.
// It implements the stop policy (§4.8/P4): stops after the first failing
// step unless skipValidation or that step's continue_on_failure override it.
func (e *Engine) run(ctx context.Context, steps []suite.Step, runID, suitePath, baseURL string, vars *store.Store, opts Options, acc *[]runmodel.StepRun, comp *[]compensationEntry) (stopped, waitingInput bool) {
	for _, st := range steps {
		if ctx.Err() != nil {
			return true, false
		}

		if st.Skip != "" {
			skip, err := e.evalBool(st.Skip, vars)
			if err == nil && skip {
				*acc = append(*acc, e.skippedStepRun(runID, len(*acc), st))
				continue
			}
		}

		failed, waiting := e.dispatch(ctx, st, runID, suitePath, baseURL, vars, opts, acc, comp)
		e.emitProgress(runID, st.Name, opts.Total, len(*acc))
		if waiting {
			return true, true
		}
		if failed && !opts.SkipValidation && !st.ContinueOnFailure {
			return true, false
		}
	}
	return false, false
}

// emitProgress publishes a progress-update event carrying an integer
// percentage (§6 "progress-update {totalSteps, completedSteps, currentStep,
// status, progressPercentage}"), rounded per §4.8.
func (e *Engine) emitProgress(runID, currentStep string, total, completed int) {
	if total <= 0 {
		return
	}
	pct := int(math.Round(float64(completed) / float64(total) * 100))
	e.broadcaster.Publish(events.Event{
		RunID: runID, TS: time.Now(), Kind: events.KindProgressUpdate,
		Payload: events.ProgressUpdatePayload{
			TotalSteps: total, CompletedSteps: completed, CurrentStep: currentStep,
			Status: "running", ProgressPercentage: pct,
		},
	})
}

func (e *Engine) dispatch(ctx context.Context, st suite.Step, runID, suitePath, baseURL string, vars *store.Store, opts Options, acc *[]runmodel.StepRun, comp *[]compensationEntry) (failed, waiting bool) {
	switch st.Kind {
	case suite.KindRequest:
		return e.executeRequest(ctx, st, runID, suitePath, baseURL, vars, opts, acc, comp)
	case suite.KindCall:
		return e.executeCall(ctx, st, runID, suitePath, vars, opts, acc)
	case suite.KindInput:
		return e.executeInput(ctx, st, runID, vars, acc)
	case suite.KindIterate:
		return e.executeIterate(ctx, st, runID, suitePath, baseURL, vars, opts, acc, comp)
	case suite.KindScenario:
		return e.executeScenario(ctx, st, runID, suitePath, baseURL, vars, opts, acc, comp)
	default:
		*acc = append(*acc, e.failedStepRun(runID, len(*acc), st, fmt.Sprintf("unrecognized step kind %q", st.Kind)))
		return true, false
	}
}

func (e *Engine) evalBool(expression string, vars *store.Store) (bool, error) {
	v, err := e.eval.EvalGeneral(expression, vars.Merged())
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	return ok && b, nil
}

func (e *Engine) emitStepStarted(runID string, index int, st suite.Step) {
	payload := events.StepStartedPayload{StepIndex: index, StepName: st.Name, StepIndex1Based: index + 1}
	if st.Request != nil {
		payload.Method = st.Request.Method
		payload.URL = st.Request.URL
	}
	e.broadcaster.Publish(events.Event{RunID: runID, TS: time.Now(), Kind: events.KindStepStarted, Payload: payload})
}

func (e *Engine) emitStepOutcome(runID string, sr runmodel.StepRun) {
	if sr.Status == runmodel.StepFailed {
		e.broadcaster.Publish(events.Event{RunID: runID, TS: time.Now(), Kind: events.KindStepFailed,
			Payload: events.StepFailedPayload{ErrorMessage: sr.ErrorMessage, DurationMS: sr.DurationMS}})
		return
	}
	passed := 0
	for _, a := range sr.AssertionResults {
		if a.Passed {
			passed++
		}
	}
	e.broadcaster.Publish(events.Event{RunID: runID, TS: time.Now(), Kind: events.KindStepCompleted,
		Payload: events.StepCompletedPayload{DurationMS: sr.DurationMS, AssertionsPassed: passed, VariablesCaptured: len(sr.Captures)}})
}

func (e *Engine) persist(ctx context.Context, runID string, sr runmodel.StepRun) {
	if e.persister == nil {
		return
	}
	if err := e.persister.PersistStep(ctx, runID, sr); err != nil {
		e.logger.ErrorContext(ctx, "persist step result failed", "run_id", runID, "step", sr.StepName, "error", err)
	}
}

func (e *Engine) skippedStepRun(runID string, index int, st suite.Step) runmodel.StepRun {
	now := time.Now()
	return runmodel.StepRun{RunID: runID, StepIndex: index, StepName: st.Name, StepID: st.StepID,
		QualifiedStepID: st.QualifiedID(), Status: runmodel.StepSkipped, StartedAt: now, FinishedAt: now}
}

func (e *Engine) failedStepRun(runID string, index int, st suite.Step, message string) runmodel.StepRun {
	now := time.Now()
	return runmodel.StepRun{RunID: runID, StepIndex: index, StepName: st.Name, StepID: st.StepID,
		QualifiedStepID: st.QualifiedID(), Status: runmodel.StepFailed, ErrorMessage: message,
		StartedAt: now, FinishedAt: now}
}

func countOutcomes(runs []runmodel.StepRun) (passed, failed int) {
	for _, r := range runs {
		switch r.Status {
		case runmodel.StepSuccess, runmodel.StepWarning, runmodel.StepSkipped:
			passed++
		case runmodel.StepFailed, runmodel.StepAborted:
			failed++
		}
	}
	return
}

func firstErrorMessage(runs []runmodel.StepRun) string {
	for _, r := range runs {
		if r.Status == runmodel.StepFailed && r.ErrorMessage != "" {
			return r.ErrorMessage
		}
	}
	return "flow failed"
}

// assertionFailureSummary builds the combined error message §4.7 requires
// when one or more assertions fail ("listing failing assertion messages").
func assertionFailureSummary(results []runmodel.AssertionResult) string {
	msg := ""
	for _, r := range results {
		if r.Passed {
			continue
		}
		if msg != "" {
			msg += "; "
		}
		msg += fmt.Sprintf("%s: %s", r.Assertion, r.Message)
	}
	return msg
}

// compensationEntry is one pushed `compensate` request, grounded on the
// teacher's CompensationEntry (runtime/execution.go).
type compensationEntry struct {
	stepName string
	request  *suite.RequestStep
}

// runCompensations unwinds comp in LIFO order once a flow has failed,
// mirroring the teacher's Executor.runCompensations: each compensation
// request runs best-effort (a failure is logged, never re-raised) and uses
// a context detached from cancellation so cleanup still runs after a
// timed-out flow.
func (e *Engine) runCompensations(ctx context.Context, runID, baseURL string, vars *store.Store, comp []compensationEntry) {
	if len(comp) == 0 {
		return
	}
	safeCtx := context.WithoutCancel(ctx)
	for i := len(comp) - 1; i >= 0; i-- {
		entry := comp[i]
		result := step.WithRetries(safeCtx, nil, func(c context.Context, _ int) step.Outcome {
			return e.runner.Execute(c, entry.stepName, entry.request, vars, baseURL, e.defaultTimeout)
		})
		if result.Err != nil {
			e.logger.ErrorContext(safeCtx, "compensation failed", "run_id", runID, "step", entry.stepName, "error", result.Err)
		}
	}
}
