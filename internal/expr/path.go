package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

// EvalPath resolves a path expression against root (§4.2a). Plain dotted
// paths ("body.items.0.id") are walked directly and are total — a miss
// returns (nil, false), never an error. Paths that look like a JSONPath
// query (containing '[', '?', '|', or a leading '$') are delegated to
// PaesslerAG/jsonpath for the richer filter/wildcard/union family the
// capture and assertion engines need ("body.items[?(@.active==true)].id").
func (e *Evaluator) EvalPath(path string, root any) (any, bool, error) {
	if looksLikeJSONPath(path) {
		v, err := jsonpath.Get(normalizeJSONPath(path), root)
		if err != nil {
			return nil, false, fmt.Errorf("jsonpath %q: %w", path, err)
		}
		return v, true, nil
	}

	v, ok := walkDotted(root, path)
	return v, ok, nil
}

func looksLikeJSONPath(path string) bool {
	return strings.HasPrefix(path, "$") || strings.ContainsAny(path, "[]?*|")
}

// normalizeJSONPath lets callers write a bare dotted-with-brackets path
// ("body.items[0]") instead of requiring the "$." prefix jsonpath.Get wants.
func normalizeJSONPath(path string) string {
	if strings.HasPrefix(path, "$") {
		return path
	}
	return "$." + path
}

func walkDotted(root any, path string) (any, bool) {
	if path == "" {
		return root, true
	}
	cur := root
	for _, segment := range strings.Split(path, ".") {
		switch t := cur.(type) {
		case map[string]any:
			next, ok := t[segment]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(segment)
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
