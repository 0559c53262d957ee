package suite

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Load parses a Flow Suite Document from YAML bytes. This is the thin,
// explicitly out-of-core loader mentioned in spec §1: the engine itself only
// ever consumes the resulting Suite value.
func Load(data []byte) (Suite, error) {
	var raw rawSuite
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Suite{}, fmt.Errorf("parse suite: %w", err)
	}
	if raw.Name == "" {
		return Suite{}, fmt.Errorf("suite_name is required")
	}
	if len(raw.Steps) == 0 {
		return Suite{}, fmt.Errorf("suite %q: at least one step is required", raw.Name)
	}

	s := Suite(raw)
	for i, step := range s.Steps {
		kind, err := classify(step)
		if err != nil {
			return Suite{}, fmt.Errorf("suite %q, step %d (%s): %w", s.Name, i, step.Name, err)
		}
		s.Steps[i].Kind = kind
	}
	return s, nil
}

// rawSuite mirrors Suite without methods, used so yaml.Unmarshal doesn't
// recurse through Suite's own (nonexistent) custom unmarshaler.
type rawSuite Suite

// classify determines a step's Kind and rejects documents that set more than
// one, or none, of the mutually exclusive kind-specific fields. Scenarios may
// accompany a request (per §6), so request+scenario is not itself a conflict;
// the step's primary Kind in that case is still Request.
func classify(s Step) (Kind, error) {
	set := 0
	kind := Kind("")
	if s.Request != nil {
		set++
		kind = KindRequest
	}
	if s.Call != nil {
		set++
		kind = KindCall
	}
	if s.Input != nil {
		set++
		kind = KindInput
	}
	if s.Iterate != nil {
		set++
		kind = KindIterate
	}
	if s.Scenario != nil && s.Request == nil {
		set++
		kind = KindScenario
	}

	switch set {
	case 0:
		return "", fmt.Errorf("step defines none of request/call/input/iterate/scenarios")
	case 1:
		return kind, nil
	default:
		return "", fmt.Errorf("step defines more than one of request/call/input/iterate/scenarios")
	}
}
