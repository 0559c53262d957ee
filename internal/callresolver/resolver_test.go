package callresolver

import (
	"errors"
	"testing"

	"github.com/flowtest/engine/internal/runmodel"
	"github.com/flowtest/engine/internal/store"
	"github.com/flowtest/engine/internal/suite"
)

type stubLoader struct {
	suites map[string]suite.Suite
}

func (s stubLoader) LoadSuite(path string) (suite.Suite, error) {
	if sut, ok := s.suites[path]; ok {
		return sut, nil
	}
	return suite.Suite{}, errors.New("not found: " + path)
}

func TestResolveRejectsPathEscape(t *testing.T) {
	r := New("/workspace/suites", stubLoader{}, 5)
	_, _, _, err := r.Resolve("/workspace/suites/a/caller.yaml", "../../../etc/passwd", "step")
	if !errors.Is(err, ErrPathEscape) {
		t.Fatalf("got %v, want ErrPathEscape", err)
	}
}

func TestResolveFindsStepByIDThenName(t *testing.T) {
	target := suite.Suite{
		NodeID: "callee",
		Steps: []suite.Step{
			{Name: "first", StepID: "s1"},
			{Name: "second"},
		},
	}
	r := New("/workspace/suites", stubLoader{suites: map[string]suite.Suite{
		"/workspace/suites/callee.yaml": target,
	}}, 5)

	_, _, step, err := r.Resolve("/workspace/suites/caller.yaml", "callee.yaml", "s1")
	if err != nil || step.Name != "first" {
		t.Fatalf("got (%+v, %v)", step, err)
	}

	_, _, step, err = r.Resolve("/workspace/suites/caller.yaml", "callee.yaml", "second")
	if err != nil || step.Name != "second" {
		t.Fatalf("got (%+v, %v)", step, err)
	}
}

func TestResolveMissingStep(t *testing.T) {
	target := suite.Suite{Steps: []suite.Step{{Name: "only"}}}
	r := New("/workspace/suites", stubLoader{suites: map[string]suite.Suite{
		"/workspace/suites/callee.yaml": target,
	}}, 5)
	_, _, _, err := r.Resolve("/workspace/suites/caller.yaml", "callee.yaml", "missing")
	if !errors.Is(err, ErrStepNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestPushCallDetectsLoop(t *testing.T) {
	r := New("/root", stubLoader{}, 5)
	stack := []runmodel.CallStackEntry{{SuitePath: "a.yaml", StepIdentifier: "s1"}}
	_, err := r.PushCall(stack, runmodel.CallStackEntry{SuitePath: "a.yaml", StepIdentifier: "s1"})
	if !errors.Is(err, ErrLoopDetected) {
		t.Fatalf("got %v", err)
	}
}

func TestPushCallDetectsDepthExceeded(t *testing.T) {
	r := New("/root", stubLoader{}, 2)
	stack := []runmodel.CallStackEntry{
		{SuitePath: "a.yaml", StepIdentifier: "s1"},
		{SuitePath: "b.yaml", StepIdentifier: "s2"},
	}
	_, err := r.PushCall(stack, runmodel.CallStackEntry{SuitePath: "c.yaml", StepIdentifier: "s3"})
	if !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("got %v", err)
	}
}

func TestPrepareCalleeStoreIsolatedVsShared(t *testing.T) {
	caller := store.New()
	caller.SetSuite("base", "http://x")
	caller.SetRuntime("leftover", "should not leak")

	isolated := PrepareCalleeStore(caller, map[string]any{"token": "t"}, true)
	if _, ok := isolated.Lookup("leftover"); ok {
		t.Fatal("isolated callee must not see caller runtime scope")
	}
	if v, ok := isolated.Lookup("token"); !ok || v != "t" {
		t.Fatalf("isolated callee must see explicit variables, got (%v, %v)", v, ok)
	}

	shared := PrepareCalleeStore(caller, nil, false)
	if shared != caller {
		t.Fatal("non-isolated callee must share the caller's Store")
	}
}

func TestNamespaceAndPropagate(t *testing.T) {
	if got := Namespace("myalias", "node1"); got != "myalias" {
		t.Errorf("got %q", got)
	}
	if got := Namespace("", "node1"); got != "node1" {
		t.Errorf("got %q", got)
	}

	caller := store.New()
	Propagate(caller, "callee", map[string]any{"userId": 42})
	if v, ok := caller.Lookup("callee.userId"); !ok || v != 42 {
		t.Fatalf("got (%v, %v)", v, ok)
	}
}
