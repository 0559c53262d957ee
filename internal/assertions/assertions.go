// Package assertions implements the Assertion Evaluator (spec §4.4):
// validates an assertion tree against a synthesized response object and
// produces one AssertionResult per operator evaluated.
//
// No assertion library appears in the retrieved corpus (the teacher tests
// with plain testing.T, never with a fluent matcher library), so the
// operator table below is hand-rolled; it leans on internal/expr's path
// evaluator for body field extraction, the same engine the teacher wires
// for its other expression needs.
package assertions

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/flowtest/engine/internal/runmodel"
)

// PathEvaluator extracts a value by path from a JSON-like tree. Satisfied by
// internal/expr.Evaluator's EvalPath.
type PathEvaluator interface {
	EvalPath(path string, root any) (any, bool, error)
}

// Response is the synthesized object assertions/captures evaluate against.
type Response struct {
	StatusCode   int
	Headers      map[string]string
	Body         any
	ResponseTime int64 // milliseconds
}

// AsMap flattens Response into the combined object §4.2/§4.4 describes.
func (r Response) AsMap() map[string]any {
	return map[string]any{
		"status_code":   r.StatusCode,
		"headers":       r.Headers,
		"body":          r.Body,
		"response_time": r.ResponseTime,
	}
}

// Validate walks the assertion tree and returns one result per operator
// evaluated, in a stable (sorted-by-assertion-path) order.
func Validate(assertions map[string]any, resp Response, paths PathEvaluator) []runmodel.AssertionResult {
	var results []runmodel.AssertionResult
	combined := resp.AsMap()

	for _, entry := range sortedEntries(assertions) {
		key, spec := entry.Key, entry.Value
		switch key {
		case "status_code":
			results = append(results, evalField(key, spec, resp.StatusCode)...)
		case "response_time":
			results = append(results, evalField(key, spec, resp.ResponseTime)...)
		case "headers":
			results = append(results, validateHeaders(spec, resp.Headers)...)
		case "body":
			results = append(results, validateBody(spec, resp.Body, paths)...)
		default:
			actual, _, err := paths.EvalPath(key, combined)
			if err != nil {
				results = append(results, runmodel.AssertionResult{
					Assertion: key, Expected: spec, Actual: nil, Passed: false,
					Message: fmt.Sprintf("extraction failed: %v", err),
				})
				continue
			}
			results = append(results, evalField(key, spec, actual)...)
		}
	}
	return results
}

func sortedEntries(m map[string]any) []struct {
	Key   string
	Value any
} {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]struct {
		Key   string
		Value any
	}, 0, len(keys))
	for _, k := range keys {
		out = append(out, struct {
			Key   string
			Value any
		}{k, m[k]})
	}
	return out
}

func validateHeaders(spec any, headers map[string]string) []runmodel.AssertionResult {
	m, ok := spec.(map[string]any)
	if !ok {
		return []runmodel.AssertionResult{{
			Assertion: "headers", Expected: spec, Passed: false,
			Message: "headers assertion must be a map of header name -> expectation",
		}}
	}
	lower := make(map[string]string, len(headers))
	for k, v := range headers {
		lower[strings.ToLower(k)] = v
	}

	var results []runmodel.AssertionResult
	for _, entry := range sortedEntries(m) {
		actual, present := lower[strings.ToLower(entry.Key)]
		var actualValue any
		if present {
			actualValue = actual
		}
		results = append(results, evalField("headers."+entry.Key, entry.Value, actualValue)...)
	}
	return results
}

func validateBody(spec any, body any, paths PathEvaluator) []runmodel.AssertionResult {
	m, ok := spec.(map[string]any)
	if !ok {
		// A bare primitive/operator-map at the body root asserts the whole body.
		return evalField("body", spec, body)
	}

	var results []runmodel.AssertionResult
	for _, entry := range sortedEntries(m) {
		fieldPath := entry.Key
		actual, _, err := paths.EvalPath(fieldPath, body)
		assertionName := "body." + fieldPath
		if err != nil {
			results = append(results, runmodel.AssertionResult{
				Assertion: assertionName, Expected: entry.Value, Passed: false,
				Message: fmt.Sprintf("extraction failed: %v", err),
			})
			continue
		}
		results = append(results, evalField(assertionName, entry.Value, actual)...)
	}
	return results
}

// evalField dispatches a single assertion spec (primitive == equals, or an
// operator map) against one actual value, returning one result per operator
// (§4.4/P8 — `length` may itself expand to more than one, since it recurses
// with an operator map over the computed length).
func evalField(assertion string, spec any, actual any) []runmodel.AssertionResult {
	ops, ok := spec.(map[string]any)
	if !ok {
		return []runmodel.AssertionResult{evalOperator(assertion, "equals", spec, actual)}
	}

	var results []runmodel.AssertionResult
	for _, entry := range sortedEntries(ops) {
		if entry.Key == "length" {
			results = append(results, evalLength(assertion, entry.Value, actual)...)
			continue
		}
		results = append(results, evalOperator(assertion, entry.Key, entry.Value, actual))
	}
	return results
}

func evalOperator(assertion, op string, expected, actual any) runmodel.AssertionResult {
	name := assertion + "." + op
	switch op {
	case "equals":
		return result(name, expected, actual, deepEqual(expected, actual), "values are not equal")
	case "not_equals":
		return result(name, expected, actual, !deepEqual(expected, actual), "values are equal")
	case "contains":
		ok, msg := evalContains(expected, actual)
		return result(name, expected, actual, ok, msg)
	case "greater_than":
		return numericCompare(name, expected, actual, func(a, b float64) bool { return a > b })
	case "less_than":
		return numericCompare(name, expected, actual, func(a, b float64) bool { return a < b })
	case "regex":
		return evalRegex(name, expected, actual)
	case "not_null":
		return evalNotNull(name, expected, actual)
	case "type":
		return evalType(name, expected, actual)
	default:
		return result(name, expected, actual, false, "Unknown assertion operator")
	}
}

func result(assertion string, expected, actual any, passed bool, failMsg string) runmodel.AssertionResult {
	msg := "ok"
	if !passed {
		msg = failMsg
	}
	return runmodel.AssertionResult{
		Assertion: assertion, Expected: expected, Actual: actual, Passed: passed, Message: msg,
	}
}

// deepEqual compares by JSON serialization per §4.4 ("Deep equality (by JSON
// serialization)") so that e.g. int(1) and float64(1) compare equal.
func deepEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	var av, bv any
	if json.Unmarshal(ab, &av) != nil || json.Unmarshal(bb, &bv) != nil {
		return reflect.DeepEqual(a, b)
	}
	return reflect.DeepEqual(av, bv)
}

func evalContains(expected, actual any) (bool, string) {
	switch a := actual.(type) {
	case string:
		s, ok := expected.(string)
		if !ok {
			return false, "contains expects a string needle against a string haystack"
		}
		return strings.Contains(a, s), "substring not found"
	case []any:
		for _, item := range a {
			if deepEqual(item, expected) {
				return true, "element not found in array"
			}
		}
		return false, "element not found in array"
	case map[string]any:
		raw, err := json.Marshal(a)
		if err != nil {
			return false, "object could not be serialized for contains check"
		}
		needle := fmt.Sprintf("%v", expected)
		return strings.Contains(string(raw), needle), "substring not found in object JSON"
	default:
		return false, "contains not supported on this value type"
	}
}

func numericCompare(assertion string, expected, actual any, cmp func(a, b float64) bool) runmodel.AssertionResult {
	av, aok := toFloat(actual)
	ev, eok := toFloat(expected)
	if !aok || !eok {
		return result(assertion, expected, actual, false, "both sides must be numeric")
	}
	return result(assertion, expected, actual, cmp(av, ev), "numeric comparison failed")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func evalRegex(assertion string, expected, actual any) runmodel.AssertionResult {
	pattern, ok := expected.(string)
	if !ok {
		return result(assertion, expected, actual, false, "regex expects a string pattern")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return result(assertion, expected, actual, false, "invalid regex pattern")
	}
	return result(assertion, expected, actual, re.MatchString(String(actual)), "pattern did not match")
}

func evalNotNull(assertion string, expected, actual any) runmodel.AssertionResult {
	isNull := actual == nil
	wantNonNull := truthy(expected)
	if wantNonNull {
		return result(assertion, expected, actual, !isNull, "expected a non-null value")
	}
	return result(assertion, expected, actual, isNull, "expected a null/undefined value")
}

func evalType(assertion string, expected, actual any) runmodel.AssertionResult {
	want, ok := expected.(string)
	if !ok {
		return result(assertion, expected, actual, false, "type expects a string type name")
	}
	return result(assertion, expected, actual, typeOf(actual) == want, "type mismatch")
}

func typeOf(v any) string {
	switch v.(type) {
	case nil:
		return "undefined"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// evalLength recurses with an operator map over the computed length (§4.4
// "Recurses with an operator map over the length of the value"), producing
// one result per suboperator under `<assertion>.length.<op>` (P8) rather
// than folding multiple suboperators into one.
func evalLength(assertion string, expected, actual any) []runmodel.AssertionResult {
	name := assertion + ".length"
	length, ok := lengthOf(actual)
	if !ok {
		return []runmodel.AssertionResult{result(name, expected, actual, false, "length not supported on this value type")}
	}
	return evalField(name, expected, length)
}

func lengthOf(v any) (int, bool) {
	switch t := v.(type) {
	case string:
		return len(t), true
	case []any:
		return len(t), true
	case map[string]any:
		return len(t), true
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}

// String renders a value for regex matching, mirroring store.String.
func String(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
