// Package expr implements the Expression Evaluator (spec §4.2): path
// expressions over JSON-like values, restricted script expressions bound to
// an execution context, and fake-data generator calls used by
// internal/store's interpolation layer.
//
// The path/general-expression family is grounded on the teacher's
// expr-lang wiring (runtime/engine/yaml/evaluator.go): the same
// AllowUndefinedVariables + defined() builtin pattern. The restricted
// script-expression family (js: tokens) uses goja instead, grounded on
// r3e-network-service_layer/system/tee/script_engine.go, which spins up a
// fresh goja.Runtime per call for isolation — exactly the property §9 asks
// for ("trusted author, untrusted runtime... evaluation errors must never
// escape as unhandled exceptions").
package expr

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator is the engine's single Expression Evaluator. It is stateless and
// safe for concurrent use across Runs (each call compiles fresh; the teacher
// does the same — runtime/engine/yaml/evaluator.go recompiles per Eval call).
type Evaluator struct {
	fakes *FakeRegistry
}

// New builds an Evaluator with the built-in fake-data generator registry.
func New() *Evaluator {
	return &Evaluator{fakes: NewFakeRegistry()}
}

// Fakes exposes the registry directly for callers that want it standalone.
func (e *Evaluator) Fakes() *FakeRegistry { return e.fakes }

// Generate satisfies store.FakeGenerator, so an Evaluator can serve as the
// single ScriptEvaluator+FakeGenerator dependency internal/store's
// Interpolate needs.
func (e *Evaluator) Generate(name string) (string, error) { return e.fakes.Generate(name) }

// exprOptions mirrors the teacher's custom function set
// (runtime/engine/yaml/evaluator.go exprFunctions) plus `defined`.
func exprOptions(context map[string]any) []expr.Option {
	ctx := context
	definedFn := expr.Function(
		"defined",
		func(params ...any) (any, error) {
			path, ok := params[0].(string)
			if !ok {
				return false, fmt.Errorf("defined() expects a string path argument, got %T", params[0])
			}
			_, exists := ctx[path]
			if !exists {
				_, exists = lookupNested(ctx, path)
			}
			return exists, nil
		},
		new(func(string) bool),
	)

	return []expr.Option{
		expr.Env(ctx),
		expr.AllowUndefinedVariables(),
		definedFn,
	}
}

// EvalGeneral evaluates a general-purpose embedded expression (scenario
// conditions, iterate "over"/"range" expressions, custom assertion
// conditions) against a flat variable context. It never panics; expr-lang
// compile/run errors are returned to the caller.
func (e *Evaluator) EvalGeneral(expression string, context map[string]any) (any, error) {
	program, err := expr.Compile(expression, exprOptions(context)...)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expression, err)
	}
	return runProgram(program, context)
}

func runProgram(program *vm.Program, context map[string]any) (any, error) {
	result, err := expr.Run(program, context)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression: %w", err)
	}
	return result, nil
}

// EvalScript evaluates a restricted "js:" script expression using goja. Each
// call gets a brand-new runtime (see script.go), so there is no shared
// mutable state between evaluations — the isolation property the teacher's
// TEE script engine relies on for the same reason.
func (e *Evaluator) EvalScript(expression string, context map[string]any) (any, error) {
	return evalGoja(expression, context)
}

func lookupNested(ctx map[string]any, path string) (any, bool) {
	v, ok := ctx[path]
	return v, ok
}
