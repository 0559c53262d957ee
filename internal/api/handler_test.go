package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/flowtest/engine/internal/persistence"
	"github.com/flowtest/engine/internal/runmodel"
)

type fakeEnqueuer struct {
	jobs []EnqueueJob
	err  error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, job EnqueueJob) error {
	f.jobs = append(f.jobs, job)
	return f.err
}

func TestSubmitCreatesQueuedRunAndEnqueues(t *testing.T) {
	store := persistence.NewMemoryStore()
	enq := &fakeEnqueuer{}
	svc := NewService(store, enq, nil)

	run, err := svc.Submit(context.Background(), TriggerRequest{
		SuiteNodeID: "auth", Version: "v1", Priority: 3,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if run.Status != runmodel.StatusQueued {
		t.Fatalf("expected QUEUED, got %s", run.Status)
	}
	if len(enq.jobs) != 1 || enq.jobs[0].RunID != run.RunID {
		t.Fatalf("expected the run to be enqueued, got %#v", enq.jobs)
	}

	stored, err := store.GetRun(context.Background(), run.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.SuiteRef != "auth" || stored.VersionRef != "v1" {
		t.Fatalf("unexpected stored run: %+v", stored)
	}
}

func TestSubmitRequiresSuiteReference(t *testing.T) {
	svc := NewService(persistence.NewMemoryStore(), &fakeEnqueuer{}, nil)
	_, err := svc.Submit(context.Background(), TriggerRequest{})
	if !errors.Is(err, ErrMissingSuiteReference) {
		t.Fatalf("expected ErrMissingSuiteReference, got %v", err)
	}
}

func TestSubmitSucceedsEvenWhenEnqueueFails(t *testing.T) {
	store := persistence.NewMemoryStore()
	enq := &fakeEnqueuer{err: errors.New("queue down")}
	svc := NewService(store, enq, nil)

	run, err := svc.Submit(context.Background(), TriggerRequest{SuiteNodeID: "auth"})
	if err != nil {
		t.Fatalf("Submit should not fail just because enqueue failed: %v", err)
	}
	if _, getErr := store.GetRun(context.Background(), run.RunID); getErr != nil {
		t.Fatalf("expected the run to still be persisted: %v", getErr)
	}
}

func TestRetryClonesPriorRunTriggerInput(t *testing.T) {
	store := persistence.NewMemoryStore()
	enq := &fakeEnqueuer{}
	svc := NewService(store, enq, nil)

	prior, err := svc.Submit(context.Background(), TriggerRequest{
		SuiteNodeID: "auth", Version: "v1", Priority: 2, InputPayload: map[string]any{"k": "v"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	retried, err := svc.Retry(context.Background(), prior.RunID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.RunID == prior.RunID {
		t.Fatal("expected Retry to create a new run, not mutate the original")
	}
	if retried.SuiteRef != prior.SuiteRef || retried.VersionRef != prior.VersionRef {
		t.Fatalf("expected cloned trigger input, got %+v", retried)
	}

	again, err := store.GetRun(context.Background(), prior.RunID)
	if err != nil {
		t.Fatalf("GetRun prior: %v", err)
	}
	if again.Status != runmodel.StatusQueued {
		t.Fatalf("expected the original run to remain untouched, got %s", again.Status)
	}
}

func TestRetryUnknownRunNotFound(t *testing.T) {
	svc := NewService(persistence.NewMemoryStore(), &fakeEnqueuer{}, nil)
	_, err := svc.Retry(context.Background(), "does-not-exist")
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	g := gin.New()
	svc.RegisterRoutes(g)
	return g
}

func TestHandleSubmitHTTP(t *testing.T) {
	svc := NewService(persistence.NewMemoryStore(), &fakeEnqueuer{}, nil)
	g := newTestRouter(svc)

	body, _ := json.Marshal(TriggerRequest{SuiteNodeID: "auth"})
	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSubmitHTTPBadRequest(t *testing.T) {
	svc := NewService(persistence.NewMemoryStore(), &fakeEnqueuer{}, nil)
	g := newTestRouter(svc)

	body, _ := json.Marshal(TriggerRequest{})
	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleGetHTTPNotFound(t *testing.T) {
	svc := NewService(persistence.NewMemoryStore(), &fakeEnqueuer{}, nil)
	g := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/runs/missing", nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleGetAndListHTTP(t *testing.T) {
	store := persistence.NewMemoryStore()
	svc := NewService(store, &fakeEnqueuer{}, nil)
	g := newTestRouter(svc)

	run, err := svc.Submit(context.Background(), TriggerRequest{SuiteNodeID: "auth"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/runs/"+run.RunID, nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/runs", nil)
	rec = httptest.NewRecorder()
	g.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var runs []runmodel.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run listed, got %d", len(runs))
	}
}
