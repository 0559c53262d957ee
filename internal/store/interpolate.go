package store

import (
	"os"
	"regexp"
	"strings"
)

// tokenPattern matches a single {{...}} expression. Non-greedy so that two
// tokens on the same line ("{{a}} and {{b}}") are matched separately.
var tokenPattern = regexp.MustCompile(`\{\{\s*(.+?)\s*\}\}`)

// ScriptEvaluator evaluates a js: expression against a merged context. It is
// satisfied by internal/expr.Evaluator; kept as a narrow interface here so
// internal/store never imports internal/expr (neither package imports the
// other).
type ScriptEvaluator interface {
	EvalScript(expression string, context map[string]any) (any, error)
}

// FakeGenerator produces fake-data values for faker.*/fake.* tokens.
type FakeGenerator interface {
	Generate(name string) (string, error)
}

// Interpolate expands {{expr}} tokens in template per the §4.1 contract. It
// is pure and total: evaluation errors and undefined lookups are swallowed
// (the token is left unchanged, matching "interpolation MUST NOT throw").
// onWarn, if non-nil, is called once per suppressed warning (undefined
// lookup or evaluation error) so callers can log it.
func (s *Store) Interpolate(template any, scripts ScriptEvaluator, fakes FakeGenerator, onWarn func(token string, err error)) any {
	switch v := template.(type) {
	case string:
		return s.interpolateString(v, scripts, fakes, onWarn)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = s.Interpolate(val, scripts, fakes, onWarn)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = s.Interpolate(val, scripts, fakes, onWarn)
		}
		return out
	default:
		return template
	}
}

// interpolateString expands every token in a string. A string that is
// *exactly* one token ("{{x}}") returns the resolved value verbatim
// (preserving non-string types like numbers/maps); otherwise tokens are
// substituted as their string form into the surrounding text.
func (s *Store) interpolateString(tpl string, scripts ScriptEvaluator, fakes FakeGenerator, onWarn func(string, error)) any {
	matches := tokenPattern.FindAllStringSubmatchIndex(tpl, -1)
	if len(matches) == 0 {
		return tpl
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(tpl) {
		expr := tpl[matches[0][2]:matches[0][3]]
		val, ok, err := s.resolveToken(expr, scripts, fakes)
		if err != nil {
			if onWarn != nil {
				onWarn(expr, err)
			}
			return tpl
		}
		if !ok {
			if onWarn != nil {
				onWarn(expr, nil)
			}
			return tpl
		}
		return val
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(tpl[last:m[0]])
		expr := tpl[m[2]:m[3]]
		val, ok, err := s.resolveToken(expr, scripts, fakes)
		if err != nil {
			if onWarn != nil {
				onWarn(expr, err)
			}
			b.WriteString(tpl[m[0]:m[1]])
		} else if !ok {
			if onWarn != nil {
				onWarn(expr, nil)
			}
			b.WriteString(tpl[m[0]:m[1]])
		} else {
			b.WriteString(String(val))
		}
		last = m[1]
	}
	b.WriteString(tpl[last:])
	return b.String()
}

// resolveToken classifies and resolves one {{expr}} body per §4.1.
func (s *Store) resolveToken(expr string, scripts ScriptEvaluator, fakes FakeGenerator) (value any, ok bool, err error) {
	switch {
	case strings.HasPrefix(expr, "faker."):
		v, err := fakes.Generate(strings.TrimPrefix(expr, "faker."))
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	case strings.HasPrefix(expr, "fake."):
		v, err := fakes.Generate(strings.TrimPrefix(expr, "fake."))
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	case strings.HasPrefix(expr, "js:"):
		v, err := scripts.EvalScript(strings.TrimPrefix(expr, "js:"), s.Merged())
		if err != nil {
			return nil, false, err
		}
		if v == nil {
			return nil, false, nil
		}
		return v, true, nil
	case strings.HasPrefix(expr, "env."):
		v, exists := os.LookupEnv(strings.TrimPrefix(expr, "env."))
		if !exists {
			return nil, false, nil
		}
		return v, true, nil
	default:
		v, found := s.Lookup(expr)
		if !found || v == nil {
			return nil, false, nil
		}
		return v, true, nil
	}
}

// ExtractReferences returns the set of {{...}} expressions referenced
// anywhere within template, for pre-flight validation.
func ExtractReferences(template any) map[string]struct{} {
	out := make(map[string]struct{})
	collectReferences(template, out)
	return out
}

func collectReferences(template any, out map[string]struct{}) {
	switch v := template.(type) {
	case string:
		for _, m := range tokenPattern.FindAllStringSubmatch(v, -1) {
			out[m[1]] = struct{}{}
		}
	case map[string]any:
		for _, val := range v {
			collectReferences(val, out)
		}
	case []any:
		for _, val := range v {
			collectReferences(val, out)
		}
	}
}
