package runmodel

import (
	"testing"
	"time"
)

func TestRunTransitionFollowsStateMachine(t *testing.T) {
	r := NewRun("suite-1", "v1", TriggerAPI, 0, "op", nil)
	if r.Status != StatusQueued {
		t.Fatalf("new run status = %q, want QUEUED", r.Status)
	}

	now := time.Now()
	if !r.Transition(StatusRunning, now) {
		t.Fatal("QUEUED -> RUNNING should be legal")
	}
	if r.StartedAt == nil {
		t.Fatal("StartedAt should be set on entering RUNNING")
	}

	if r.Transition(StatusQueued, now) {
		t.Fatal("RUNNING -> QUEUED should be illegal")
	}

	if !r.Transition(StatusCompleted, now.Add(time.Second)) {
		t.Fatal("RUNNING -> COMPLETED should be legal")
	}
	if r.FinishedAt == nil {
		t.Fatal("FinishedAt should be set on reaching a terminal state")
	}
	if !IsTerminal(r.Status) {
		t.Fatal("COMPLETED should be terminal")
	}

	if r.Transition(StatusRunning, now) {
		t.Fatal("terminal state must not accept further transitions")
	}
}

func TestWaitingInputRoundTrip(t *testing.T) {
	r := NewRun("suite-1", "v1", TriggerAPI, 0, "op", nil)
	now := time.Now()
	r.Transition(StatusRunning, now)
	if !r.Transition(StatusWaitingInput, now) {
		t.Fatal("RUNNING -> WAITING_INPUT should be legal")
	}
	if !r.Transition(StatusRunning, now) {
		t.Fatal("WAITING_INPUT -> RUNNING should be legal")
	}
}

func TestCallStackEntryKey(t *testing.T) {
	e := CallStackEntry{SuitePath: "auth.yaml", StepIdentifier: "login"}
	if e.Key() != "auth.yaml::login" {
		t.Errorf("got %q", e.Key())
	}
}
