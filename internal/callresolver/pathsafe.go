package callresolver

import (
	"fmt"
	"path/filepath"
	"strings"
)

// validateWithinBoundary rejects a target path that escapes boundary via
// "..", adapted from the teacher's plugin-path guard
// (cli/internal/security/path.go ValidatePathWithinBoundary) — same
// resolve-both-to-absolute-then-check-Rel approach, now guarding the
// `test` field of a cross-suite call (§4.6) instead of a plugin file path.
func validateWithinBoundary(boundary, target string) error {
	absBoundary, err := filepath.Abs(boundary)
	if err != nil {
		return fmt.Errorf("resolve allowed root %q: %w", boundary, err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("resolve call target %q: %w", target, err)
	}
	rel, err := filepath.Rel(absBoundary, absTarget)
	if err != nil {
		return fmt.Errorf("invalid path relationship between %q and %q: %w", absBoundary, absTarget, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q escapes allowed root %q", ErrPathEscape, target, boundary)
	}
	return nil
}
