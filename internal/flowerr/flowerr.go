// Package flowerr is the engine's typed/coded error taxonomy, carried
// through step retries, compensation, and run persistence.
//
// Copied near-verbatim from the teacher's runtime/flow_error.go — the
// Type/Code/Message/Step/Retries shape and the transient/permanent/timeout
// classification are exactly what §4.6/§5's retry and call-failure
// semantics need, just renamed off the teacher's DSL vocabulary (no more
// Temporal/Risor references).
package flowerr

import "fmt"

// Type classifies error severity and retry eligibility.
type Type string

const (
	Transient Type = "transient"
	Permanent Type = "permanent"
	Timeout   Type = "timeout"
)

// Code identifies a known engine error condition. Suite authors may use
// any string in assertions/captures; these are the framework-generated ones.
type Code string

const (
	CodeRuntimeError      Code = "RUNTIME_ERROR"
	CodeContextCancelled  Code = "CONTEXT_CANCELLED"
	CodeDeadlineExceeded  Code = "DEADLINE_EXCEEDED"
	CodeAssertionFailed   Code = "ASSERTION_FAILED"
	CodeCaptureFailed     Code = "CAPTURE_FAILED"
	CodeLoopDetected      Code = "LOOP_DETECTED"
	CodeDepthExceeded     Code = "DEPTH_EXCEEDED"
	CodePathEscape        Code = "PATH_ESCAPE"
	CodeStepNotFound      Code = "STEP_NOT_FOUND"
	CodeHTTPTransport     Code = "HTTP_TRANSPORT"
	CodeHTTPStatus        Code = "HTTP_STATUS"
)

// Error is the canonical error type propagated through a Run's execution.
// It is JSON-serializable so it can sit in a persisted StepRun/ResultSummary.
type Error struct {
	Type    Type           `json:"type"`
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Step    string         `json:"step"`
	Cause   any            `json:"cause,omitempty"`
	Retries int            `json:"retries"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s/%s] %s (step: %s, retries: %d)", e.Type, e.Code, e.Message, e.Step, e.Retries)
}

// ToMap converts the error to a map suitable for injection into expression
// contexts. No caller in this repository binds it into a context at present.
func (e *Error) ToMap() map[string]any {
	return map[string]any{
		"type":    string(e.Type),
		"code":    string(e.Code),
		"message": e.Message,
		"step":    e.Step,
		"retries": e.Retries,
	}
}

// New builds a permanent Error with the given code/message.
func New(code Code, step, message string) *Error {
	return &Error{Type: Permanent, Code: code, Message: message, Step: step}
}

// Wrap converts any error to *Error, preserving one that already is.
func Wrap(err error, step string, attempt int) *Error {
	if err == nil {
		return nil
	}
	if fe, ok := err.(*Error); ok {
		if fe.Step == "" {
			fe.Step = step
		}
		return fe
	}
	return &Error{
		Type:    Permanent,
		Code:    CodeRuntimeError,
		Message: err.Error(),
		Step:    step,
		Retries: attempt,
	}
}
