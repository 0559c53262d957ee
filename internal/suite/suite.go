// Package suite defines the Flow Suite Document: the parsed, immutable
// specification the flow engine executes. The engine never parses YAML/JSON
// itself (that is an external collaborator's job per the repository's scope);
// it consumes a Suite value built by a loader.
package suite

// Suite is one parsed flow-suite document.
type Suite struct {
	Name      string         `yaml:"suite_name"`
	NodeID    string         `yaml:"node_id"`
	BaseURL   string         `yaml:"base_url,omitempty"`
	Variables map[string]any `yaml:"variables,omitempty"`
	Steps     []Step         `yaml:"steps"`
	Depends   []Dependency   `yaml:"depends,omitempty"`
	Exports   []string       `yaml:"exports,omitempty"`
	Tags      []string       `yaml:"tags,omitempty"`
	Priority  int            `yaml:"priority,omitempty"`
}

// Dependency references another suite that must be resolved before this
// suite's imported scope can be seeded.
type Dependency struct {
	Path      string         `yaml:"path,omitempty"`
	NodeID    string         `yaml:"node_id,omitempty"`
	Required  bool           `yaml:"required,omitempty"`
	Cache     bool           `yaml:"cache,omitempty"`
	Condition string         `yaml:"condition,omitempty"`
	Variables map[string]any `yaml:"variables,omitempty"`
}

// Kind discriminates the five step shapes. A Step carries exactly one
// populated kind-specific payload; Load (the YAML loader) rejects documents
// that set more than one, or none, of these (per §9's preference for a
// compiler-checked tagged variant over field-presence polymorphism).
type Kind string

const (
	KindRequest  Kind = "request"
	KindCall     Kind = "call"
	KindInput    Kind = "input"
	KindIterate  Kind = "iterate"
	KindScenario Kind = "scenario"
)

// Metadata carries step-level execution controls common to every kind.
type Metadata struct {
	Priority int               `yaml:"priority,omitempty"`
	Tags     []string          `yaml:"tags,omitempty"`
	Timeout  int               `yaml:"timeout,omitempty"` // ms
	Retry    *RetryPolicy      `yaml:"retry,omitempty"`
	Extra    map[string]string `yaml:"extra,omitempty"`
}

// RetryPolicy controls retry behavior for a step attempt loop. Generalized
// from the teacher's RetryConfig (runtime/components.go) to the spec's
// retry.max_attempts/retry.delay_ms vocabulary, keeping the richer
// backoff/jitter/non-retryable knobs the teacher already offered.
type RetryPolicy struct {
	MaxAttempts  int      `yaml:"max_attempts"`
	DelayMS      int      `yaml:"delay_ms"`
	Backoff      string   `yaml:"backoff,omitempty"` // "none" | "linear" | "exponential"
	MaxDelayMS   int      `yaml:"max_delay_ms,omitempty"`
	Jitter       bool     `yaml:"jitter,omitempty"`
	NonRetryable []string `yaml:"non_retryable,omitempty"`
}

// Step is one unit of work inside a suite.
type Step struct {
	Name               string   `yaml:"name"`
	StepID             string   `yaml:"step_id,omitempty"`
	Kind               Kind     `yaml:"-"`
	Metadata           Metadata `yaml:"metadata,omitempty"`
	ContinueOnFailure  bool     `yaml:"continue_on_failure,omitempty"`
	Skip               string   `yaml:"skip,omitempty"` // expression; truthy skips the step

	Request  *RequestStep  `yaml:"request,omitempty"`
	Call     *CallStep     `yaml:"call,omitempty"`
	Input    *InputStep    `yaml:"input,omitempty"`
	Iterate  *IterateStep  `yaml:"iterate,omitempty"`
	Scenario *ScenarioStep `yaml:"scenarios,omitempty"`

	// Compensate and Fallback are SPEC_FULL supplements grounded on the
	// teacher's CompensationStack/FallbackBody (runtime/executor.go).
	Compensate *RequestStep `yaml:"compensate,omitempty"`
	Fallback   *RequestStep `yaml:"fallback,omitempty"`
}

// QualifiedID returns the step's stable identifier for qualified_step_id
// purposes: the step_id if declared, else the name.
func (s Step) QualifiedID() string {
	if s.StepID != "" {
		return s.StepID
	}
	return s.Name
}

// RequestStep is an HTTP interaction step.
type RequestStep struct {
	Method      string            `yaml:"method"`
	URL         string            `yaml:"url"`
	Headers     map[string]any    `yaml:"headers,omitempty"`
	Body        any               `yaml:"body,omitempty"`
	Params      map[string]any    `yaml:"params,omitempty"`
	Timeout     int               `yaml:"timeout,omitempty"` // ms, overrides the engine's default request timeout; metadata.timeout is not applied
	Assertions  map[string]any    `yaml:"assertions,omitempty"`
	Capture     map[string]string `yaml:"capture,omitempty"`
	Scenarios   *ScenarioStep     `yaml:"scenarios,omitempty"`
}

// CallErrorStrategy controls how a failed call affects the calling step.
type CallErrorStrategy string

const (
	CallErrorFail     CallErrorStrategy = "fail"
	CallErrorContinue CallErrorStrategy = "continue"
	CallErrorWarn     CallErrorStrategy = "warn"
)

// CallStep invokes a step located in another suite.
type CallStep struct {
	Test           string            `yaml:"test"`
	Step           string            `yaml:"step"`
	Variables      map[string]any    `yaml:"variables,omitempty"`
	Alias          string            `yaml:"alias,omitempty"`
	IsolateContext bool              `yaml:"isolate_context,omitempty"`
	OnError        CallErrorStrategy `yaml:"on_error,omitempty"`
	Retry          *RetryPolicy      `yaml:"retry,omitempty"`
	Timeout        int               `yaml:"timeout,omitempty"`
}

// InputKind enumerates the supported interactive input types.
type InputKind string

const (
	InputText     InputKind = "text"
	InputPassword InputKind = "password"
	InputNumber   InputKind = "number"
	InputEmail    InputKind = "email"
	InputURL      InputKind = "url"
	InputSelect   InputKind = "select"
	InputConfirm  InputKind = "confirm"
	InputMultiline InputKind = "multiline"
)

// InputStep requests a value from the operator (or a supplied input payload).
type InputStep struct {
	Prompt     string          `yaml:"prompt"`
	Variable   string          `yaml:"variable"`
	Type       InputKind       `yaml:"type,omitempty"`
	Default    any             `yaml:"default,omitempty"`
	Validation map[string]any  `yaml:"validation,omitempty"`
	Options    []string        `yaml:"options,omitempty"` // for type=select
	Dynamic    map[string]any  `yaml:"dynamic,omitempty"`
}

// IterateStep wraps another step kind, running it N times.
type IterateStep struct {
	Over  string `yaml:"over,omitempty"`  // array-valued expression
	Range string `yaml:"range,omitempty"` // "start..end"
	As    string `yaml:"as"`
	Body  *Step  `yaml:"body"`
}

// ScenarioBranch is one {condition, then, else} entry.
type ScenarioBranch struct {
	Condition string `yaml:"condition"`
	Then      []Step `yaml:"then,omitempty"`
	Else      []Step `yaml:"else,omitempty"`
}

// ScenarioStep is an ordered list of conditional branches.
type ScenarioStep struct {
	Branches []ScenarioBranch `yaml:"branches"`
}
