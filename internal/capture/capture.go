// Package capture implements the Capture Engine (spec §4.5): extracts named
// values from a completed step's response into the runtime Variable Store
// scope, with per-name failure isolation.
package capture

import (
	"fmt"
	"strings"
)

// PathEvaluator extracts a value by path, total (never errors on a miss).
type PathEvaluator interface {
	EvalPath(path string, root any) (any, bool, error)
}

// ScriptEvaluator runs a js: capture expression.
type ScriptEvaluator interface {
	EvalScript(expression string, context map[string]any) (any, error)
}

// Failure describes one capture name that could not be extracted, so the
// caller can log a diagnostic without aborting the remaining captures.
type Failure struct {
	Name string
	Err  error
}

// Run evaluates every entry in captureMap against the synthesized response
// object, merging variableContext in for js: expressions. A failed
// extraction yields nil for that name (§4.5 "Failure policy") and is
// reported via the returned failures slice rather than aborting the batch.
func Run(captureMap map[string]string, response map[string]any, variableContext map[string]any, paths PathEvaluator, scripts ScriptEvaluator) (map[string]any, []Failure) {
	out := make(map[string]any, len(captureMap))
	var failures []Failure

	for name, expression := range captureMap {
		value, err := resolve(expression, response, variableContext, paths, scripts)
		if err != nil {
			out[name] = nil
			failures = append(failures, Failure{Name: name, Err: err})
			continue
		}
		out[name] = value
	}
	return out, failures
}

func resolve(expression string, response, variableContext map[string]any, paths PathEvaluator, scripts ScriptEvaluator) (any, error) {
	switch {
	case expression == "status_code", expression == "response_time":
		return response[expression], nil
	case strings.HasPrefix(expression, "headers."):
		name := strings.TrimPrefix(expression, "headers.")
		return lookupHeaderCaseInsensitive(response, name)
	case strings.HasPrefix(expression, "body."):
		path := strings.TrimPrefix(expression, "body.")
		body := response["body"]
		v, _, err := paths.EvalPath(path, body)
		return v, err
	case strings.HasPrefix(expression, "js:"):
		ctx := make(map[string]any, len(response)+len(variableContext))
		for k, v := range variableContext {
			ctx[k] = v
		}
		for k, v := range response {
			ctx[k] = v
		}
		return scripts.EvalScript(strings.TrimPrefix(expression, "js:"), ctx)
	default:
		v, _, err := paths.EvalPath(expression, response)
		return v, err
	}
}

func lookupHeaderCaseInsensitive(response map[string]any, name string) (any, error) {
	headers, ok := response["headers"].(map[string]string)
	if !ok {
		return nil, fmt.Errorf("response has no headers map")
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, nil
		}
	}
	return nil, nil
}
