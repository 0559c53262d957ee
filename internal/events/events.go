// Package events implements the Event Broadcaster (spec §4.8/§6): streams
// ordered flow/step lifecycle events to subscribers, asynchronously from
// step execution. Broadcaster errors must never abort a Run.
package events

import "time"

// Kind names one of the fixed event kinds §6 defines.
type Kind string

const (
	KindFlowStarted    Kind = "flow-started"
	KindStepStarted    Kind = "step-started"
	KindStepCompleted  Kind = "step-completed"
	KindStepFailed     Kind = "step-failed"
	KindProgressUpdate Kind = "progress-update"
	KindFlowCompleted  Kind = "flow-completed"
	KindFlowFailed     Kind = "flow-failed"
)

// Event is one envelope on the stream: {runId, ts} plus a kind-specific payload.
type Event struct {
	RunID   string    `json:"run_id"`
	TS      time.Time `json:"ts"`
	Kind    Kind      `json:"kind"`
	Payload any       `json:"payload"`
}

type FlowStartedPayload struct {
	SuiteName  string    `json:"suite_name"`
	TotalSteps int       `json:"total_steps"`
	StartTime  time.Time `json:"start_time"`
}

type StepStartedPayload struct {
	StepIndex      int    `json:"step_index"`
	StepName       string `json:"step_name"`
	Method         string `json:"method,omitempty"`
	URL            string `json:"url,omitempty"`
	StepIndex1Based int   `json:"step_index_1based"`
	TotalSteps     int    `json:"total_steps"`
}

type StepCompletedPayload struct {
	DurationMS        int64 `json:"duration_ms"`
	AssertionsPassed  int   `json:"assertions_passed"`
	VariablesCaptured int   `json:"variables_captured"`
}

type StepFailedPayload struct {
	ErrorMessage string `json:"error_message"`
	DurationMS   int64  `json:"duration_ms"`
}

type ProgressUpdatePayload struct {
	TotalSteps         int    `json:"total_steps"`
	CompletedSteps     int    `json:"completed_steps"`
	CurrentStep        string `json:"current_step"`
	Status             string `json:"status"`
	ProgressPercentage int    `json:"progress_percentage"`
}

type FlowCompletedPayload struct {
	DurationMS  int64 `json:"duration_ms"`
	PassedSteps int   `json:"passed_steps"`
	FailedSteps int   `json:"failed_steps"`
	TotalSteps  int   `json:"total_steps"`
}

type FlowFailedPayload struct {
	ErrorMessage string `json:"error_message"`
	DurationMS   int64  `json:"duration_ms"`
	PassedSteps  int    `json:"passed_steps"`
	FailedSteps  int    `json:"failed_steps"`
}

// Broadcaster is the Flow Engine's event sink. Publish must never block the
// caller indefinitely and must never return an error the engine needs to
// react to (§4.8 "Broadcaster errors MUST NOT abort execution") — Publish
// therefore has no return value; implementations swallow/log their own
// delivery failures.
type Broadcaster interface {
	Publish(evt Event)
}

// NopBroadcaster discards every event; the zero value for "no broadcaster
// configured".
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(Event) {}
