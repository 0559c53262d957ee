package flow

import (
	"context"
	"math"
	"time"

	"github.com/flowtest/engine/internal/callresolver"
	"github.com/flowtest/engine/internal/runmodel"
	"github.com/flowtest/engine/internal/store"
	"github.com/flowtest/engine/internal/suite"
)

// executeCall invokes a step in another suite (spec §4.6): resolves the
// target path/step, guards the call stack against cycles and excess depth
// (fatal regardless of on_error, since those conditions mean the suite
// graph itself is broken), prepares the callee's Variable Store per
// isolate_context, runs the target step recursively through Execute (as a
// one-step suite), propagates its
// captured variables back under a namespace, and applies on_error.
func (e *Engine) executeCall(ctx context.Context, st suite.Step, runID, suitePath string, vars *store.Store, opts Options, acc *[]runmodel.StepRun) (failed, waiting bool) {
	index := len(*acc)
	e.emitStepStarted(runID, index, st)
	started := time.Now()
	call := st.Call

	calleePath, calleeSuite, calleeStep, err := e.resolver.Resolve(suitePath, call.Test, call.Step)
	if err != nil {
		sr := e.failedStepRun(runID, index, st, err.Error())
		sr.StartedAt, sr.FinishedAt = started, time.Now()
		*acc = append(*acc, sr)
		e.persist(ctx, runID, sr)
		e.emitStepOutcome(runID, sr)
		return true, false
	}

	stack, err := e.resolver.PushCall(opts.CallStack, runmodel.CallStackEntry{SuitePath: calleePath, StepIdentifier: calleeStep.QualifiedID()})
	if err != nil {
		sr := e.failedStepRun(runID, index, st, err.Error())
		sr.StartedAt, sr.FinishedAt = started, time.Now()
		*acc = append(*acc, sr)
		e.persist(ctx, runID, sr)
		e.emitStepOutcome(runID, sr)
		return true, false
	}

	calleeStore := callresolver.PrepareCalleeStore(vars, call.Variables, call.IsolateContext)
	for k, v := range calleeSuite.Variables {
		if _, ok := calleeStore.Lookup(k); !ok {
			calleeStore.SetSuite(k, v)
		}
	}
	calleeOpts := Options{SkipValidation: opts.SkipValidation, CallStack: stack}

	calleeTimeout := e.defaultTimeout
	if call.Timeout > 0 {
		calleeTimeout = time.Duration(call.Timeout) * time.Millisecond
	}

	result := e.callWithRetries(ctx, call.Retry, calleeTimeout, func(c context.Context) Result {
		return e.Execute(c, runID, suite.Suite{Name: calleeSuite.Name, BaseURL: calleeSuite.BaseURL, Steps: []suite.Step{calleeStep}}, calleePath, calleeStore, calleeOpts)
	})

	if result.Status == runmodel.StatusWaitingInput {
		*acc = append(*acc, result.StepRuns...)
		return false, true
	}

	succeeded := result.Status == runmodel.StatusCompleted
	if succeeded {
		namespace := callresolver.Namespace(call.Alias, calleeSuite.NodeID)
		captured := map[string]any{}
		for _, sr := range result.StepRuns {
			for name, value := range sr.Captures {
				captured[name] = value
			}
		}
		// §4.6/§8 scenario 5: even when isolate_context is false and the
		// callee ran directly against the caller's Store (so its own
		// capture wrote a bare key into shared runtime scope), the caller
		// must end up with only the namespaced key — strip the bare one
		// before propagating.
		if !call.IsolateContext {
			for name := range captured {
				vars.DeleteRuntime(name)
			}
		}
		callresolver.Propagate(vars, namespace, captured)
	}

	sr := runmodel.StepRun{
		RunID: runID, StepIndex: index, StepName: st.Name, StepID: st.StepID,
		QualifiedStepID: st.QualifiedID(), StartedAt: started, FinishedAt: time.Now(),
	}
	sr.DurationMS = sr.FinishedAt.Sub(started).Milliseconds()

	if succeeded {
		sr.Status = runmodel.StepSuccess
		*acc = append(*acc, sr)
		e.persist(ctx, runID, sr)
		e.emitStepOutcome(runID, sr)
		return false, false
	}

	sr.ErrorMessage = result.ErrorMessage
	switch call.OnError {
	case suite.CallErrorContinue:
		sr.Status = runmodel.StepSkipped
		*acc = append(*acc, sr)
		e.persist(ctx, runID, sr)
		e.emitStepOutcome(runID, sr)
		return false, false
	case suite.CallErrorWarn:
		sr.Status = runmodel.StepWarning
		*acc = append(*acc, sr)
		e.persist(ctx, runID, sr)
		e.emitStepOutcome(runID, sr)
		return false, false
	default:
		sr.Status = runmodel.StepFailed
		*acc = append(*acc, sr)
		e.persist(ctx, runID, sr)
		e.emitStepOutcome(runID, sr)
		return true, false
	}
}

// callWithRetries retries a whole callee-flow invocation. Unlike
// step.WithRetries (which classifies individual flowerr.Errors as
// transient/permanent), a Result carries no such classification, so this
// retries on any non-COMPLETED/non-WAITING_INPUT outcome up to
// policy.MaxAttempts — the call-level analogue of the same loop.
func (e *Engine) callWithRetries(ctx context.Context, policy *suite.RetryPolicy, timeout time.Duration, attempt func(context.Context) Result) Result {
	maxAttempts := 1
	if policy != nil && policy.MaxAttempts > 1 {
		maxAttempts = policy.MaxAttempts
	}

	var last Result
	for i := 0; i < maxAttempts; i++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		last = attempt(callCtx)
		if cancel != nil {
			cancel()
		}
		if last.Status == runmodel.StatusCompleted || last.Status == runmodel.StatusWaitingInput {
			return last
		}
		if i+1 < maxAttempts && policy != nil && policy.DelayMS > 0 {
			delay := time.Duration(policy.DelayMS) * time.Millisecond
			if policy.Backoff == "exponential" {
				delay = time.Duration(math.Pow(2, float64(i))) * delay
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return last
			}
		}
	}
	return last
}
