package queue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowtest/engine/internal/callresolver"
	"github.com/flowtest/engine/internal/events"
	"github.com/flowtest/engine/internal/expr"
	"github.com/flowtest/engine/internal/flow"
	"github.com/flowtest/engine/internal/httpengine"
	"github.com/flowtest/engine/internal/persistence"
	"github.com/flowtest/engine/internal/registry"
	"github.com/flowtest/engine/internal/runmodel"
	"github.com/flowtest/engine/internal/step"
	"github.com/flowtest/engine/internal/suite"
)

type noInputProvider struct{}

func (noInputProvider) Provide(ctx context.Context, runID string, in suite.InputStep) (any, bool) {
	return nil, false
}

type staticLoader struct {
	data []byte
}

func (s staticLoader) LoadSuite(path string) (suite.Suite, error) { return suite.Suite{}, nil }

func (s staticLoader) LoadVersion(ctx context.Context, suiteRef, versionRef string) ([]byte, string, error) {
	return s.data, "suite.yaml", nil
}

func TestWorkerProcessRunsSuiteAndPublishesExports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"token":"T"}`))
	}))
	defer srv.Close()

	yamlDoc := []byte(`
suite_name: auth
node_id: auth
exports: [token]
base_url: ` + srv.URL + `
steps:
  - name: login
    request:
      method: GET
      url: /login
      assertions:
        status_code: 200
      capture:
        token: body.token
`)

	eval := expr.New()
	runner := step.NewRunner(httpengine.New(5*time.Second), eval)
	resolver := callresolver.New(".", staticLoader{data: yamlDoc}, 10)
	persist := persistence.NewMemoryStore()
	eng := flow.New(runner, eval, resolver, events.NopBroadcaster{}, persist, noInputProvider{}, nil, 5*time.Second)

	reg := registry.New()
	loader := staticLoader{data: yamlDoc}

	w := NewWorker(persist, reg, loader, eng, 5*time.Second, zerolog.Nop(), nil)

	run := runmodel.NewRun("auth", "v1", runmodel.TriggerAPI, 0, "tester", nil)
	if err := persist.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	job := Job{RunID: run.RunID, SuiteRef: "auth", VersionRef: "v1"}
	if err := w.RunInline(context.Background(), job); err != nil {
		t.Fatalf("RunInline: %v", err)
	}

	got, err := persist.GetRun(context.Background(), run.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != runmodel.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (summary: %+v)", got.Status, got.ResultSummary)
	}

	snap := reg.Snapshot([]string{"auth"})
	if snap["auth.token"] != "T" {
		t.Fatalf("expected exported token to be published, got %#v", snap)
	}
}
