// Package api implements the thin Run-trigger REST boundary (spec §1,
// §6): gin handlers for submitting/listing/retrying Runs. Explicitly named
// out-of-core by spec §1 ("the HTTP transport controller layer... explicitly
// excluded" from the engine's 12k-line core budget) — this package only
// validates input, creates/reads Run rows, and hands off to the Queue
// Dispatcher; it never touches the Flow Engine directly.
//
// Grounded on the teacher's runtime/http_handler.go: gin.Context binding,
// c.JSON error responses with a "message" field, and route registration
// against an existing *gin.Engine rather than owning the server lifecycle.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowtest/engine/internal/persistence"
	"github.com/flowtest/engine/internal/runmodel"
)

// Enqueuer is the Queue Dispatcher's surface as seen by the API (§4.10):
// submit a Job for a just-created Run.
type Enqueuer interface {
	Enqueue(ctx context.Context, job EnqueueJob) error
}

// EnqueueJob is the subset of queue.Job the API layer can populate without
// importing internal/queue's redis/worker machinery (avoids a dependency
// cycle risk and keeps this package genuinely thin).
type EnqueueJob struct {
	RunID          string
	SuiteRef       string
	VersionRef     string
	Label          string
	SkipValidation bool
	Variables      map[string]any
	InputPayload   map[string]any
}

// Service is the Run-trigger boundary's business logic, independent of gin.
type Service struct {
	store persistence.Store
	queue Enqueuer
	log   *slog.Logger
}

func NewService(store persistence.Store, queue Enqueuer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, queue: queue, log: log}
}

// TriggerRequest is the Run-trigger API's request body (§6).
type TriggerRequest struct {
	VersionID     string         `json:"versionId"`
	SuiteNodeID   string         `json:"suiteNodeId"`
	Version       string         `json:"version"`
	Priority      int            `json:"priority"`
	TriggerSource string         `json:"triggerSource"`
	Label         string         `json:"label"`
	Options       TriggerOptions `json:"options"`
	InputPayload  map[string]any `json:"inputPayload"`
	RequestedByID string         `json:"requestedById"`
}

// TriggerOptions mirrors flow.Options' user-facing knobs plus call variable overrides.
type TriggerOptions struct {
	SkipValidation bool           `json:"skipValidation"`
	Variables      map[string]any `json:"variables"`
}

var ErrMissingSuiteReference = errors.New("api: either versionId or suiteNodeId is required")

// Submit validates req, creates a QUEUED Run, and hands a Job to the Queue
// Dispatcher. The cron schedule registrar reaches it through
// cmd/flowtestctl's submitterAdapter, which implements queue.Submitter.
func (s *Service) Submit(ctx context.Context, req TriggerRequest) (runmodel.Run, error) {
	suiteRef := req.SuiteNodeID
	versionRef := req.Version
	if req.VersionID != "" {
		suiteRef, versionRef = req.VersionID, req.VersionID
	}
	if suiteRef == "" {
		return runmodel.Run{}, ErrMissingSuiteReference
	}

	trigger := runmodel.TriggerSource(req.TriggerSource)
	if trigger == "" {
		trigger = runmodel.TriggerAPI
	}

	run := runmodel.NewRun(suiteRef, versionRef, trigger, req.Priority, req.RequestedByID, req.InputPayload)
	if err := s.store.CreateRun(ctx, run); err != nil {
		return runmodel.Run{}, err
	}

	job := EnqueueJob{
		RunID: run.RunID, SuiteRef: suiteRef, VersionRef: versionRef, Label: req.Label,
		SkipValidation: req.Options.SkipValidation, Variables: req.Options.Variables,
		InputPayload: req.InputPayload,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.log.ErrorContext(ctx, "enqueue failed after run creation", "run_id", run.RunID, "error", err)
	}
	return run, nil
}

// Retry clones a prior Run's trigger input and submits it as a new Run. It
// does not mutate the original Run (§6 "it does not mutate the original").
func (s *Service) Retry(ctx context.Context, priorRunID string) (runmodel.Run, error) {
	prior, err := s.store.GetRun(ctx, priorRunID)
	if err != nil {
		return runmodel.Run{}, err
	}
	return s.Submit(ctx, TriggerRequest{
		VersionID: "", SuiteNodeID: prior.SuiteRef, Version: prior.VersionRef,
		Priority: prior.Priority, TriggerSource: string(prior.TriggerSource),
		InputPayload: prior.InputPayload, RequestedByID: prior.RequestedBy,
	})
}

// RegisterRoutes mounts the Run-trigger endpoints on an existing *gin.Engine
// (the teacher's http_handler.go likewise registers onto a caller-owned
// *gin.Engine rather than constructing its own server).
func (s *Service) RegisterRoutes(g *gin.Engine) {
	g.POST("/runs", s.handleSubmit)
	g.GET("/runs", s.handleList)
	g.GET("/runs/:id", s.handleGet)
	g.GET("/runs/:id/steps", s.handleListSteps)
	g.POST("/runs/:id/retry", s.handleRetry)
}

func (s *Service) handleSubmit(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body: " + err.Error()})
		return
	}
	run, err := s.Submit(c, req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrMissingSuiteReference) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, run)
}

func (s *Service) handleGet(c *gin.Context) {
	run, err := s.store.GetRun(c, c.Param("id"))
	if err != nil {
		s.respondNotFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Service) handleList(c *gin.Context) {
	runs, err := s.store.ListRuns(c, c.Query("suite_ref"), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Service) handleListSteps(c *gin.Context) {
	steps, err := s.store.ListStepRuns(c, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, steps)
}

func (s *Service) handleRetry(c *gin.Context) {
	run, err := s.Retry(c, c.Param("id"))
	if err != nil {
		s.respondNotFoundOr500(c, err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

func (s *Service) respondNotFoundOr500(c *gin.Context, err error) {
	if errors.Is(err, persistence.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "run not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
}
