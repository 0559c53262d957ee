// Package callresolver implements the Cross-Suite Call Resolver (spec
// §4.6): safe path resolution for a `call` step's target suite, step
// lookup by name or step_id, call-stack cycle/depth control, and
// caller/callee Variable Store isolation and result propagation.
//
// Path-escape checking is adapted from the teacher's plugin-path guard
// (cli/internal/security/path.go); cycle detection is a simpler
// threaded-call-stack check in the spirit of the teacher's graph cycle
// detector (cli/internal/graph/dependency.go findCycle), generalized from
// a static plugin dependency graph to a dynamic per-Run call stack since
// call targets are only known at execution time.
package callresolver

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/flowtest/engine/internal/runmodel"
	"github.com/flowtest/engine/internal/store"
	"github.com/flowtest/engine/internal/suite"
)

var (
	ErrPathEscape    = errors.New("call target escapes allowed root")
	ErrLoopDetected  = errors.New("loop detected in call stack")
	ErrDepthExceeded = errors.New("call stack depth exceeded")
	ErrStepNotFound  = errors.New("target step not found")
)

// SuiteLoader loads and parses a suite document by filesystem path.
// internal/flow supplies an implementation backed by suite.Load + os.ReadFile.
type SuiteLoader interface {
	LoadSuite(path string) (suite.Suite, error)
}

// Resolver resolves and prepares cross-suite calls.
type Resolver struct {
	allowedRoot string
	loader      SuiteLoader
	maxDepth    int
}

// New builds a Resolver. maxDepth bounds the call stack (§4.6's
// maxDepth config, defaulted by internal/config).
func New(allowedRoot string, loader SuiteLoader, maxDepth int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	return &Resolver{allowedRoot: allowedRoot, loader: loader, maxDepth: maxDepth}
}

// Resolve locates the target suite relative to the caller's suite path (or
// the allowed root if the target is already absolute), validates it does
// not escape the allowed root, loads it, and finds the named step.
func (r *Resolver) Resolve(callerSuitePath, targetTest, targetIdentifier string) (string, suite.Suite, suite.Step, error) {
	candidate := targetTest
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(filepath.Dir(callerSuitePath), targetTest)
	}

	if err := validateWithinBoundary(r.allowedRoot, candidate); err != nil {
		return "", suite.Suite{}, suite.Step{}, err
	}

	target, err := r.loader.LoadSuite(candidate)
	if err != nil {
		return "", suite.Suite{}, suite.Step{}, fmt.Errorf("load call target %q: %w", candidate, err)
	}

	step, ok := findStep(target, targetIdentifier)
	if !ok {
		return "", suite.Suite{}, suite.Step{}, fmt.Errorf("%w: %q in %q", ErrStepNotFound, targetIdentifier, candidate)
	}

	return candidate, target, step, nil
}

func findStep(s suite.Suite, identifier string) (suite.Step, bool) {
	for _, step := range s.Steps {
		if step.StepID != "" && step.StepID == identifier {
			return step, true
		}
	}
	for _, step := range s.Steps {
		if step.Name == identifier {
			return step, true
		}
	}
	return suite.Step{}, false
}

// PushCall appends an entry to the call stack, failing fatally (regardless
// of on_error, per §4.6) on a repeated entry (cycle) or a stack that would
// exceed maxDepth.
func (r *Resolver) PushCall(stack []runmodel.CallStackEntry, entry runmodel.CallStackEntry) ([]runmodel.CallStackEntry, error) {
	for _, existing := range stack {
		if existing.Key() == entry.Key() {
			return nil, fmt.Errorf("%w: %s", ErrLoopDetected, entry.Key())
		}
	}
	if len(stack)+1 > r.maxDepth {
		return nil, fmt.Errorf("%w: max depth %d", ErrDepthExceeded, r.maxDepth)
	}
	next := make([]runmodel.CallStackEntry, len(stack), len(stack)+1)
	copy(next, stack)
	return append(next, entry), nil
}

// PrepareCalleeStore builds the Variable Store the callee runs against.
// Under isolate_context (§4.6/I4), the callee gets a fresh runtime scope
// seeded with the caller's suite-scope and imported-scope values plus the
// call's explicit `variables`; without it, the callee shares the caller's
// Store outright (runtime mutations are visible both ways).
func PrepareCalleeStore(caller *store.Store, explicitVariables map[string]any, isolateContext bool) *store.Store {
	if !isolateContext {
		return caller
	}
	callee := caller.Snapshot()
	for k, v := range explicitVariables {
		callee.SetRuntime(k, v)
	}
	return callee
}

// Namespace computes the propagation prefix for a call's captured
// variables: the alias if set, else the callee suite's node_id.
func Namespace(alias, calleeNodeID string) string {
	if alias != "" {
		return alias
	}
	return calleeNodeID
}

// Propagate merges a callee's captured variables into the caller's runtime
// scope under "<namespace>.<name>" (§4.6).
func Propagate(caller *store.Store, namespace string, captured map[string]any) {
	for name, value := range captured {
		caller.SetRuntime(namespace+"."+name, value)
	}
}
