package assertions

import (
	"testing"

	"github.com/flowtest/engine/internal/expr"
)

func TestValidateStatusCodeEquals(t *testing.T) {
	e := expr.New()
	resp := Response{StatusCode: 200}
	results := Validate(map[string]any{"status_code": 200}, resp, e)
	if len(results) != 1 || !results[0].Passed {
		t.Fatalf("got %+v", results)
	}
}

func TestValidateOperatorMap(t *testing.T) {
	e := expr.New()
	resp := Response{StatusCode: 404}
	results := Validate(map[string]any{
		"status_code": map[string]any{"not_equals": 200, "greater_than": 399},
	}, resp, e)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("expected %s to pass, got %+v", r.Assertion, r)
		}
	}
}

func TestValidateHeadersCaseInsensitive(t *testing.T) {
	e := expr.New()
	resp := Response{Headers: map[string]string{"Content-Type": "application/json"}}
	results := Validate(map[string]any{
		"headers": map[string]any{"content-type": "application/json"},
	}, resp, e)
	if len(results) != 1 || !results[0].Passed {
		t.Fatalf("got %+v", results)
	}
}

func TestValidateBodyNestedPath(t *testing.T) {
	e := expr.New()
	resp := Response{Body: map[string]any{
		"items": []any{map[string]any{"id": float64(1)}, map[string]any{"id": float64(2)}},
	}}
	results := Validate(map[string]any{
		"body": map[string]any{
			"items":      map[string]any{"length": map[string]any{"equals": 2}},
			"items.0.id": 1,
		},
	}, resp, e)
	if len(results) != 2 {
		t.Fatalf("got %d results: %+v", len(results), results)
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("expected %s to pass, got %+v", r.Assertion, r)
		}
	}
}

func TestValidateLengthMultipleOperators(t *testing.T) {
	e := expr.New()
	resp := Response{Body: map[string]any{"items": []any{1, 2, 3}}}
	results := Validate(map[string]any{
		"body": map[string]any{
			"items": map[string]any{"length": map[string]any{"greater_than": 2, "less_than": 5}, "contains": 2},
		},
	}, resp, e)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3: %+v", len(results), results)
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("expected %s to pass, got %+v", r.Assertion, r)
		}
	}
}

func TestValidateUnknownOperator(t *testing.T) {
	e := expr.New()
	resp := Response{StatusCode: 200}
	results := Validate(map[string]any{"status_code": map[string]any{"bogus": 1}}, resp, e)
	if len(results) != 1 || results[0].Passed || results[0].Message != "Unknown assertion operator" {
		t.Fatalf("got %+v", results)
	}
}

func TestValidateContainsOnArrayAndString(t *testing.T) {
	e := expr.New()
	resp := Response{Body: map[string]any{"name": "hello world", "tags": []any{"a", "b"}}}
	results := Validate(map[string]any{
		"body": map[string]any{
			"name": map[string]any{"contains": "world"},
			"tags": map[string]any{"contains": "b"},
		},
	}, resp, e)
	for _, r := range results {
		if !r.Passed {
			t.Errorf("expected %s to pass, got %+v", r.Assertion, r)
		}
	}
}

func TestValidateTypeAndLength(t *testing.T) {
	e := expr.New()
	resp := Response{Body: map[string]any{"items": []any{1, 2, 3}}}
	results := Validate(map[string]any{
		"body": map[string]any{
			"items": map[string]any{"type": "array", "length": map[string]any{"equals": 3}},
		},
	}, resp, e)
	if len(results) != 2 {
		t.Fatalf("got %d results: %+v", len(results), results)
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("expected %s to pass, got %+v", r.Assertion, r)
		}
	}
}
