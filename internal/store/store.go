// Package store implements the Variable Store (spec §3, §4.1): four maps
// layered by read priority (runtime > suite > imported > global), template
// interpolation, and reference extraction.
//
// Generalized from the teacher's flat single-map ValueStore
// (runtime/engine/yaml/value_store.go Set/Get/SetNested) into four such
// maps so that writes can target a scope explicitly while reads walk the
// whole stack, per spec invariant I3 (runtime captures never leak across
// Runs) and P2 (lookup priority).
package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Scope names a Variable Store layer.
type Scope int

const (
	ScopeRuntime Scope = iota
	ScopeSuite
	ScopeImported
	ScopeGlobal
)

// Store is the per-Run four-scope variable context. It is not safe for
// concurrent use: per §5, a single Run's steps never execute concurrently,
// so one Store is only ever touched by one goroutine at a time.
type Store struct {
	runtime  map[string]any
	suite    map[string]any
	imported map[string]any // keyed "<namespace>.<name>"
	global   map[string]any
}

// New creates an empty Store. Seed suite/imported/global scopes immediately
// after creation per the §4.1 scope lifecycle.
func New() *Store {
	return &Store{
		runtime:  make(map[string]any),
		suite:    make(map[string]any),
		imported: make(map[string]any),
		global:   make(map[string]any),
	}
}

func (s *Store) SetRuntime(name string, value any) { s.runtime[name] = value }

// DeleteRuntime removes a runtime-scope key. Used by the call resolver to
// strip a callee's bare capture name back out of a shared (non-isolated)
// Store once it has been re-published under a namespaced alias (§4.6, §8
// scenario 5: the caller must see only the namespaced key, not the bare one).
func (s *Store) DeleteRuntime(name string) { delete(s.runtime, name) }
func (s *Store) SetSuite(name string, value any)   { s.suite[name] = value }
func (s *Store) SetGlobal(name string, value any)  { s.global[name] = value }

// SetImported namespaces the key as "<namespace>.<name>" so that different
// dependency suites cannot collide (§4.6 propagation/aliasing uses the same
// convention for call results merged into runtime scope).
func (s *Store) SetImported(namespace, name string, value any) {
	s.imported[namespace+"."+name] = value
}

// Snapshot returns a Store seeded with copies of this Store's suite,
// imported and global scopes, for handing to a callee under isolate_context
// (§4.6, I4): the callee gets the caller's suite-, imported- and global-scope
// values but a fresh runtime scope, and (separately) whatever `variables` the call passed.
func (s *Store) Snapshot() *Store {
	n := New()
	for k, v := range s.suite {
		n.suite[k] = v
	}
	for k, v := range s.imported {
		n.imported[k] = v
	}
	for k, v := range s.global {
		n.global[k] = v
	}
	return n
}

// Lookup walks runtime -> suite -> imported -> global, supporting dotted
// paths into nested maps/slices. Returns (value, true) or (nil, false).
func (s *Store) Lookup(dotted string) (any, bool) {
	for _, scope := range []map[string]any{s.runtime, s.suite, s.imported, s.global} {
		if v, ok := lookupIn(scope, dotted); ok {
			return v, true
		}
	}
	return nil, false
}

// lookupIn resolves a dotted path against a flat map whose top-level keys
// may themselves be nested maps/slices (e.g. {"body": {"id": 42}} resolves
// "body.id"). Traversal is total: any miss returns (nil, false), never panics.
func lookupIn(scope map[string]any, dotted string) (any, bool) {
	if v, ok := scope[dotted]; ok {
		return v, true
	}
	parts := strings.Split(dotted, ".")
	// Walk longest-matching top-level key first (scope may itself store
	// "a.b" as a literal key from SetImported-style namespacing).
	for i := len(parts) - 1; i > 0; i-- {
		head := strings.Join(parts[:i], ".")
		root, ok := scope[head]
		if !ok {
			continue
		}
		if v, ok := descend(root, parts[i:]); ok {
			return v, true
		}
	}
	if len(parts) > 1 {
		root, ok := scope[parts[0]]
		if ok {
			return descend(root, parts[1:])
		}
	}
	return nil, false
}

func descend(v any, path []string) (any, bool) {
	cur := v
	for _, p := range path {
		switch t := cur.(type) {
		case map[string]any:
			next, ok := t[p]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(p)
			if err != nil || idx < 0 || idx >= len(t) {
				return nil, false
			}
			cur = t[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Merged returns the full context map for expression evaluation: lowest
// priority first so higher-priority scopes overwrite, matching the
// teacher's Values()/All() flattening (runtime/execution.go,
// runtime/engine/yaml/value_store.go) generalized to four scopes.
func (s *Store) Merged() map[string]any {
	out := make(map[string]any, len(s.global)+len(s.imported)+len(s.suite)+len(s.runtime))
	for k, v := range s.global {
		out[k] = v
	}
	for k, v := range s.imported {
		out[k] = v
	}
	for k, v := range s.suite {
		out[k] = v
	}
	for k, v := range s.runtime {
		out[k] = v
	}
	return out
}

// RuntimeKeys returns the current set of runtime-scope keys. Nothing in this
// repository calls it at present.
func (s *Store) RuntimeKeys() map[string]struct{} {
	out := make(map[string]struct{}, len(s.runtime))
	for k := range s.runtime {
		out[k] = struct{}{}
	}
	return out
}

func (s *Store) RuntimeValue(k string) (any, bool) {
	v, ok := s.runtime[k]
	return v, ok
}

// String renders a value for diagnostics/sentinel substitution.
func String(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
