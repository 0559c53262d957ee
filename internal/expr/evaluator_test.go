package expr

import "testing"

func TestEvalGeneralBasicComparison(t *testing.T) {
	e := New()
	out, err := e.EvalGeneral("status_code == 200", map[string]any{"status_code": 200})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != true {
		t.Fatalf("got %v, want true", out)
	}
}

func TestEvalGeneralDefinedHelper(t *testing.T) {
	e := New()
	ctx := map[string]any{"token": "abc"}

	out, err := e.EvalGeneral(`defined("token")`, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != true {
		t.Fatalf("got %v, want true", out)
	}

	out, err = e.EvalGeneral(`defined("missing")`, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != false {
		t.Fatalf("got %v, want false", out)
	}
}

func TestEvalGeneralUndefinedVariableDoesNotPanic(t *testing.T) {
	e := New()
	_, err := e.EvalGeneral("missing == nil", map[string]any{})
	if err != nil {
		t.Fatalf("AllowUndefinedVariables should prevent a compile/run error: %v", err)
	}
}

func TestEvalScriptNestedDotAccess(t *testing.T) {
	e := New()
	ctx := map[string]any{
		"body": map[string]any{
			"user": map[string]any{"id": float64(42)},
		},
	}
	out, err := e.EvalScript("body.user.id", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != int64(42) {
		t.Fatalf("got %v (%T), want 42", out, out)
	}
}

func TestEvalScriptIsolatedBetweenCalls(t *testing.T) {
	e := New()
	if _, err := e.EvalScript("globalThis.leaked = true", map[string]any{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := e.EvalScript("typeof leaked === 'undefined'", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != true {
		t.Fatalf("state leaked across goja VMs: %v", out)
	}
}

func TestEvalPathDottedAndOutOfRange(t *testing.T) {
	e := New()
	root := map[string]any{
		"items": []any{
			map[string]any{"id": 1, "active": true},
			map[string]any{"id": 2, "active": false},
		},
	}

	v, ok, err := e.EvalPath("items.0.id", root)
	if err != nil || !ok || v != 1 {
		t.Fatalf("dotted path got (%v, %v, %v)", v, ok, err)
	}

	_, ok, err = e.EvalPath("items.9.id", root)
	if err != nil {
		t.Fatalf("unexpected error on out-of-range index: %v", err)
	}
	if ok {
		t.Fatal("expected miss for out-of-range index")
	}
}

func TestFakeRegistryKnownAndUnknown(t *testing.T) {
	r := NewFakeRegistry()
	if v, err := r.Generate("email"); err != nil || v == "" {
		t.Fatalf("got (%q, %v)", v, err)
	}
	if _, err := r.Generate("not_a_real_generator"); err == nil {
		t.Fatal("expected error for unknown generator")
	}
}

func TestFakeRegistryAlphanumericWithArg(t *testing.T) {
	r := NewFakeRegistry()
	v, err := r.Generate("alphanumeric(12)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 12 {
		t.Fatalf("got length %d, want 12", len(v))
	}
}
