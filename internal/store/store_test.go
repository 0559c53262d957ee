package store

import "testing"

type stubScripts struct {
	result any
	err    error
}

func (s stubScripts) EvalScript(expression string, context map[string]any) (any, error) {
	return s.result, s.err
}

type stubFakes struct{}

func (stubFakes) Generate(name string) (string, error) { return "FAKE:" + name, nil }

func TestLookupPriority(t *testing.T) {
	s := New()
	s.SetGlobal("name", "global")
	s.SetImported("auth", "name", "imported")
	s.SetSuite("name", "suite")
	s.SetRuntime("name", "runtime")

	v, ok := s.Lookup("name")
	if !ok || v != "runtime" {
		t.Fatalf("got (%v, %v), want runtime (highest priority)", v, ok)
	}

	s2 := New()
	s2.SetGlobal("name", "global")
	s2.SetSuite("name", "suite")
	v, ok = s2.Lookup("name")
	if !ok || v != "suite" {
		t.Fatalf("got (%v, %v), want suite", v, ok)
	}
}

func TestLookupNestedDottedPath(t *testing.T) {
	s := New()
	s.SetRuntime("body", map[string]any{"id": 42, "user": map[string]any{"email": "a@b.com"}})

	if v, ok := s.Lookup("body.id"); !ok || v != 42 {
		t.Fatalf("got (%v, %v), want 42", v, ok)
	}
	if v, ok := s.Lookup("body.user.email"); !ok || v != "a@b.com" {
		t.Fatalf("got (%v, %v), want a@b.com", v, ok)
	}
	if _, ok := s.Lookup("body.missing"); ok {
		t.Fatal("expected miss for undefined nested path")
	}
}

func TestInterpolateIdempotent(t *testing.T) {
	s := New()
	s.SetRuntime("token", "T")
	tpl := "Bearer {{token}}"

	first := s.Interpolate(tpl, stubScripts{}, stubFakes{}, nil)
	second := s.Interpolate(first, stubScripts{}, stubFakes{}, nil)
	if first != second {
		t.Fatalf("interpolation not idempotent: %v != %v", first, second)
	}
	if first != "Bearer T" {
		t.Fatalf("got %v", first)
	}
}

func TestInterpolateUndefinedLeavesTokenUnchanged(t *testing.T) {
	s := New()
	var warned string
	out := s.Interpolate("{{missing.value}}", stubScripts{}, stubFakes{}, func(token string, err error) {
		warned = token
	})
	if out != "{{missing.value}}" {
		t.Fatalf("got %v, want token left unchanged", out)
	}
	if warned != "missing.value" {
		t.Fatalf("warn callback got %q", warned)
	}
}

func TestInterpolatePreservesNonStringType(t *testing.T) {
	s := New()
	s.SetRuntime("count", 7)
	out := s.Interpolate("{{count}}", stubScripts{}, stubFakes{}, nil)
	if out != 7 {
		t.Fatalf("got %v (%T), want int 7", out, out)
	}
}

func TestInterpolateNestedStructures(t *testing.T) {
	s := New()
	s.SetRuntime("id", "42")
	in := map[string]any{
		"url":     "/users/{{id}}",
		"headers": []any{"X-Id: {{id}}"},
	}
	out := s.Interpolate(in, stubScripts{}, stubFakes{}, nil).(map[string]any)
	if out["url"] != "/users/42" {
		t.Errorf("got %v", out["url"])
	}
}

func TestExtractReferences(t *testing.T) {
	refs := ExtractReferences(map[string]any{
		"a": "{{foo}}",
		"b": []any{"{{bar}}", "literal"},
	})
	for _, want := range []string{"foo", "bar"} {
		if _, ok := refs[want]; !ok {
			t.Errorf("missing reference %q in %v", want, refs)
		}
	}
}

func TestSnapshotIsolatesRuntimeScope(t *testing.T) {
	s := New()
	s.SetSuite("base", "http://x")
	s.SetRuntime("leftover", "should not carry over")

	snap := s.Snapshot()
	if _, ok := snap.Lookup("leftover"); ok {
		t.Fatal("snapshot must not carry over caller's runtime scope")
	}
	if v, ok := snap.Lookup("base"); !ok || v != "http://x" {
		t.Fatalf("snapshot must carry over suite scope, got (%v, %v)", v, ok)
	}
}
