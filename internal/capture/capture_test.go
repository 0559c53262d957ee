package capture

import (
	"errors"
	"testing"

	"github.com/flowtest/engine/internal/expr"
)

func response() map[string]any {
	return map[string]any{
		"status_code":   200,
		"response_time": int64(42),
		"headers":       map[string]string{"X-Request-Id": "abc-123"},
		"body":          map[string]any{"id": float64(7), "user": map[string]any{"name": "ada"}},
	}
}

func TestRunDirectAndHeaderAndBodyCaptures(t *testing.T) {
	e := expr.New()
	out, failures := Run(map[string]string{
		"code":      "status_code",
		"requestId": "headers.x-request-id",
		"userName":  "body.user.name",
	}, response(), nil, e, e)

	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	if out["code"] != 200 {
		t.Errorf("got %v", out["code"])
	}
	if out["requestId"] != "abc-123" {
		t.Errorf("got %v", out["requestId"])
	}
	if out["userName"] != "ada" {
		t.Errorf("got %v", out["userName"])
	}
}

func TestRunJSCapture(t *testing.T) {
	e := expr.New()
	out, failures := Run(map[string]string{
		"doubled": "js:body.id * 2",
	}, response(), map[string]any{"extra": 1}, e, e)
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	if out["doubled"] != int64(14) {
		t.Fatalf("got %v (%T)", out["doubled"], out["doubled"])
	}
}

func TestRunFailureIsolatedPerName(t *testing.T) {
	e := expr.New()
	failing := failingScripts{err: errors.New("boom")}
	out, failures := Run(map[string]string{
		"ok":  "status_code",
		"bad": "js:1+",
	}, response(), nil, e, failing)

	if out["ok"] != 200 {
		t.Errorf("unrelated capture should still succeed, got %v", out["ok"])
	}
	if out["bad"] != nil {
		t.Errorf("failed capture should be nil, got %v", out["bad"])
	}
	if len(failures) != 1 || failures[0].Name != "bad" {
		t.Fatalf("got %+v", failures)
	}
}

type failingScripts struct{ err error }

func (f failingScripts) EvalScript(expression string, context map[string]any) (any, error) {
	return nil, f.err
}
