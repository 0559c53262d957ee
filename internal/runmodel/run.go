// Package runmodel defines the Run and Step Run entities and the Run state
// machine (spec §3, §4.9). It has no dependency on how a run is triggered or
// stored; internal/persistence and internal/queue build on top of it.
package runmodel

import (
	"time"

	"github.com/google/uuid"
)

// Status is a Run's lifecycle state.
type Status string

const (
	StatusQueued       Status = "QUEUED"
	StatusRunning      Status = "RUNNING"
	StatusWaitingInput Status = "WAITING_INPUT"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusCancelled    Status = "CANCELLED"
)

// legalTransitions enumerates the arrows of the §4.9 state machine.
var legalTransitions = map[Status][]Status{
	StatusQueued:       {StatusRunning},
	StatusRunning:      {StatusCompleted, StatusFailed, StatusWaitingInput, StatusCancelled},
	StatusWaitingInput: {StatusRunning},
	StatusCompleted:    {},
	StatusFailed:       {},
	StatusCancelled:    {},
}

// CanTransition reports whether from->to is a legal edge in the state machine.
func CanTransition(from, to Status) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing transitions.
func IsTerminal(s Status) bool {
	return len(legalTransitions[s]) == 0
}

// TriggerSource identifies who/what submitted a Run.
type TriggerSource string

const (
	TriggerCLI        TriggerSource = "CLI"
	TriggerAPI        TriggerSource = "API"
	TriggerSchedule   TriggerSource = "SCHEDULE"
	TriggerDependency TriggerSource = "DEPENDENCY"
)

// Run is one attempt to execute one Flow Suite Document version.
type Run struct {
	RunID         string
	SuiteRef      string
	VersionRef    string
	Status        Status
	Priority      int
	TriggerSource TriggerSource
	InputPayload  map[string]any
	QueuedAt      time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	ResultSummary *ResultSummary
	RequestedBy   string
}

// ResultSummary is the terminal-state payload recorded on a Run.
type ResultSummary struct {
	PassedSteps int            `json:"passed_steps"`
	FailedSteps int            `json:"failed_steps"`
	TotalSteps  int            `json:"total_steps"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// NewRun creates a freshly QUEUED run with a stable UUID.
func NewRun(suiteRef, versionRef string, trigger TriggerSource, priority int, requestedBy string, inputPayload map[string]any) Run {
	return Run{
		RunID:         uuid.New().String(),
		SuiteRef:      suiteRef,
		VersionRef:    versionRef,
		Status:        StatusQueued,
		Priority:      priority,
		TriggerSource: trigger,
		InputPayload:  inputPayload,
		QueuedAt:      time.Now(),
		RequestedBy:   requestedBy,
	}
}

// Transition moves the Run to `to`, recording timestamps per §4.9. It
// returns an error (via ok=false) rather than panicking on an illegal edge,
// since callers (the worker) must be able to report this instead of crash.
func (r *Run) Transition(to Status, now time.Time) bool {
	if !CanTransition(r.Status, to) {
		return false
	}
	r.Status = to
	switch to {
	case StatusRunning:
		if r.StartedAt == nil {
			t := now
			r.StartedAt = &t
		}
	case StatusCompleted, StatusFailed, StatusCancelled:
		t := now
		r.FinishedAt = &t
	}
	return true
}

// StepStatus is a Step Run's outcome.
type StepStatus string

const (
	StepPending      StepStatus = "PENDING"
	StepRunning      StepStatus = "RUNNING"
	StepWaitingInput StepStatus = "WAITING_INPUT"
	StepSuccess      StepStatus = "SUCCESS"
	StepWarning      StepStatus = "WARNING"
	StepFailed       StepStatus = "FAILED"
	StepSkipped      StepStatus = "SKIPPED"
	StepAborted      StepStatus = "ABORTED"
)

// AssertionResult is one operator evaluation outcome (spec §4.4).
type AssertionResult struct {
	Assertion string `json:"assertion"`
	Expected  any    `json:"expected"`
	Actual    any    `json:"actual"`
	Passed    bool   `json:"passed"`
	Message   string `json:"message"`
}

// StepRun is one execution of one step within a Run.
type StepRun struct {
	RunID            string
	StepIndex        int
	StepName         string
	StepID           string
	QualifiedStepID  string
	Status           StepStatus
	DurationMS       int64
	RequestSnapshot  map[string]any
	ResponseSnapshot map[string]any
	Captures         map[string]any
	AssertionResults []AssertionResult
	ErrorMessage     string
	StartedAt        time.Time
	FinishedAt       time.Time
}

// CallStackEntry identifies one frame of an in-flight cross-suite call chain.
type CallStackEntry struct {
	SuitePath      string
	StepIdentifier string
}

// Key returns the stack-membership key used for cycle detection (§4.6).
func (e CallStackEntry) Key() string {
	return e.SuitePath + "::" + e.StepIdentifier
}
