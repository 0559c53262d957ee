package expr

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// evalGoja runs a single JS expression in a fresh, disposable VM. Variable
// Store keys may be dotted ("auth.token", from a namespaced cross-suite
// call, §4.6) so they are nested into real JS objects first — goja gives
// native dot access, unlike the teacher's expr-lang, which flattens
// "a.b" into the literal identifier "a_b" (runtime/format.go FormatKey).
// That flattening trick is deliberately not reused here: §4.2 describes
// js: expressions as ordinary JavaScript, so `body.items[0].id` must work
// the way a JS author expects.
func evalGoja(expression string, context map[string]any) (any, error) {
	vm := goja.New()

	nested := nestDottedKeys(context)
	for k, v := range nested {
		if err := vm.Set(k, v); err != nil {
			return nil, fmt.Errorf("bind %q into script context: %w", k, err)
		}
	}
	if err := vm.Set("null", nil); err != nil {
		return nil, err
	}

	value, err := vm.RunString(expression)
	if err != nil {
		return nil, fmt.Errorf("js expression %q: %w", expression, err)
	}
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}
	return value.Export(), nil
}

// nestDottedKeys turns {"a.b": 1, "a.c": 2, "d": 3} into
// {"a": {"b": 1, "c": 2}, "d": 3}. Keys that aren't valid JS identifier
// segments are skipped rather than causing a bind failure, since an
// execution context may carry engine-internal bookkeeping keys that no
// script will ever reference.
func nestDottedKeys(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, value := range flat {
		parts := strings.Split(key, ".")
		cur := out
		for i, p := range parts {
			if !isIdentSegment(p) {
				break
			}
			if i == len(parts)-1 {
				cur[p] = value
				break
			}
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[p] = next
			}
			cur = next
		}
	}
	return out
}

func isIdentSegment(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '$':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
