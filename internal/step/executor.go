// Package step implements the Step Executor (spec §4, the per-step
// pipeline wiring httpengine/assertions/capture together) and the
// step-level retry loop.
//
// The retry loop (retry.go) is adapted from the teacher's
// executeStepWithRetries (runtime/executor.go): same attempt-count loop,
// backoff computation, and non-retryable-code short-circuit, generalized
// from the teacher's single "run the DSL body" call to this repository's
// "run one HTTP request step" call.
package step

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flowtest/engine/internal/assertions"
	"github.com/flowtest/engine/internal/capture"
	"github.com/flowtest/engine/internal/flowerr"
	"github.com/flowtest/engine/internal/httpengine"
	"github.com/flowtest/engine/internal/runmodel"
	"github.com/flowtest/engine/internal/store"
	"github.com/flowtest/engine/internal/suite"
)

// Evaluator is the subset of internal/expr.Evaluator the step pipeline
// needs: path extraction (assertions/captures) and script evaluation
// (js: captures, interpolation). Kept narrow to avoid a hard dependency
// on the concrete expr.Evaluator type.
type Evaluator interface {
	assertions.PathEvaluator
	capture.ScriptEvaluator
	store.FakeGenerator
}

// Runner executes one RequestStep: interpolate -> send -> assert -> capture.
type Runner struct {
	http *httpengine.Engine
	eval Evaluator
}

func NewRunner(http *httpengine.Engine, eval Evaluator) *Runner {
	return &Runner{http: http, eval: eval}
}

// Outcome is everything needed to build a runmodel.StepRun for one attempt.
type Outcome struct {
	Request          httpengine.RequestSnapshot
	Response         httpengine.ResponseSnapshot
	AssertionResults []runmodel.AssertionResult
	Captures         map[string]any
	CaptureFailures  []capture.Failure
	Err              *flowerr.Error // non-nil on transport failure or failed assertions
}

// Execute interpolates req's fields against s, sends the HTTP request, runs
// assertions, and runs captures. s.Merged() supplies the variable context
// for js: capture/assertion-adjacent evaluation.
func (r *Runner) Execute(ctx context.Context, stepName string, req *suite.RequestStep, s *store.Store, baseURL string, defaultTimeout time.Duration) Outcome {
	interpolated := s.Interpolate(requestToTemplate(req), r.eval, r.eval, nil).(map[string]any)

	httpReq := httpengine.Request{
		Method:  stringField(interpolated, "method"),
		URL:     stringField(interpolated, "url"),
		Headers: stringMapField(interpolated, "headers"),
		Body:    interpolated["body"],
		Params:  stringMapField(interpolated, "params"),
	}

	timeout := defaultTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Millisecond
	}

	result := r.http.Execute(ctx, httpReq, baseURL, timeout)
	if result.Err != nil {
		return Outcome{
			Request: result.Request,
			Err:     transportError(stepName, result.Err.Error()),
		}
	}

	resp := assertions.Response{
		StatusCode:   result.Response.StatusCode,
		Headers:      result.Response.Headers,
		Body:         result.Response.Body,
		ResponseTime: result.Response.ResponseTimeMS,
	}

	var assertionResults []runmodel.AssertionResult
	if len(req.Assertions) > 0 {
		assertionResults = assertions.Validate(req.Assertions, resp, r.eval)
	}

	outcome := Outcome{
		Request:          result.Request,
		Response:         result.Response,
		AssertionResults: assertionResults,
	}

	// §4.7 pipeline step (5): capture only runs "If the step succeeded" —
	// an attempt whose assertions failed must not leak its captures into
	// runtime scope, since a later retry attempt or continue_on_failure
	// step has to see the pre-attempt state, not a half-applied one.
	if failed := firstFailedAssertion(assertionResults); failed != nil {
		outcome.Err = flowerr.New(flowerr.CodeAssertionFailed, stepName,
			fmt.Sprintf("assertion %s failed: %s", failed.Assertion, failed.Message))
		return outcome
	}

	captures, captureFailures := capture.Run(req.Capture, resp.AsMap(), s.Merged(), r.eval, r.eval)
	for name, value := range captures {
		s.SetRuntime(name, value)
	}
	outcome.Captures = captures
	outcome.CaptureFailures = captureFailures
	return outcome
}

// transportError classifies an httpengine transport failure per §4.3/§9's
// retry-eligibility split: timeouts and connection-level failures are
// transient (worth retrying), everything else is permanent.
func transportError(stepName, message string) *flowerr.Error {
	errType := flowerr.Permanent
	switch {
	case strings.HasPrefix(message, "Timeout after"),
		message == "Connection refused by server",
		message == "Server not found (DNS)",
		message == "No response from server":
		errType = flowerr.Transient
	}
	return &flowerr.Error{Type: errType, Code: flowerr.CodeHTTPTransport, Message: message, Step: stepName}
}

func firstFailedAssertion(results []runmodel.AssertionResult) *runmodel.AssertionResult {
	for i := range results {
		if !results[i].Passed {
			return &results[i]
		}
	}
	return nil
}

func requestToTemplate(req *suite.RequestStep) map[string]any {
	return map[string]any{
		"method":  req.Method,
		"url":     req.URL,
		"headers": req.Headers,
		"body":    req.Body,
		"params":  req.Params,
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringMapField(m map[string]any, key string) map[string]string {
	raw, _ := m[key].(map[string]any)
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = store.String(v)
	}
	return out
}
