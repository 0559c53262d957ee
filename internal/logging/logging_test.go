package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
)

type testFielder struct {
	context.Context
	runID string
}

func (f testFielder) LogFields() []any { return []any{"run_id", f.runID} }

func TestNewJSONAttachesFielderFields(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	logger := New(true, slog.LevelInfo)
	ctx := testFielder{Context: context.Background(), runID: "run-123"}
	logger.InfoContext(ctx, "hello")

	w.Close()
	var buf bytes.Buffer
	buf.ReadFrom(r)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if record["run_id"] != "run-123" {
		t.Fatalf("expected run_id field from Fielder context, got %#v", record)
	}
	if record["msg"] != "hello" {
		t.Fatalf("expected msg %q, got %#v", "hello", record["msg"])
	}
}

func TestNewTextHandlerSelected(t *testing.T) {
	logger := New(false, slog.LevelWarn)
	if logger == nil {
		t.Fatal("expected a non-nil logger")
	}
}

func TestNonFielderContextIsUnaffected(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	logger := New(true, slog.LevelInfo)
	logger.InfoContext(context.Background(), "plain")

	w.Close()
	var buf bytes.Buffer
	buf.ReadFrom(r)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if _, ok := record["run_id"]; ok {
		t.Fatalf("expected no run_id field for a plain context, got %#v", record)
	}
}
