package queue

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowtest/engine/internal/flow"
	"github.com/flowtest/engine/internal/persistence"
	"github.com/flowtest/engine/internal/registry"
	"github.com/flowtest/engine/internal/runmodel"
	"github.com/flowtest/engine/internal/store"
	"github.com/flowtest/engine/internal/suite"
)

// VersionLoader loads a Flow Version document's raw YAML bytes (§4.10
// "loads the Flow Version document (YAML)"). internal/suite.Load then
// parses it into a suite.Suite; the queue package never parses YAML
// itself, same out-of-core boundary §1 draws for the engine.
type VersionLoader interface {
	LoadVersion(ctx context.Context, suiteRef, versionRef string) (data []byte, path string, err error)
}

// Worker drives one Job from pickup through terminal Run status. The worker
// pool (Pool, below) shares one Worker across its N consumer goroutines —
// "the worker pool runs multiple Runs in parallel, one per worker slot" (§5).
type Worker struct {
	store      persistence.Store
	registry   *registry.Registry
	loader     VersionLoader
	engine     *flow.Engine
	timeout    time.Duration
	log        zerolog.Logger
	metrics    *Metrics
	dispatcher *Dispatcher
}

func NewWorker(store persistence.Store, reg *registry.Registry, loader VersionLoader, engine *flow.Engine, defaultTimeout time.Duration, log zerolog.Logger, metrics *Metrics) *Worker {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Worker{store: store, registry: reg, loader: loader, engine: engine, timeout: defaultTimeout, log: log, metrics: metrics}
}

// SetDispatcher wires the Dispatcher whose bounded "done" list (§4.10
// retention) this Worker should record each Run's terminal outcome into.
// Set after construction since the Dispatcher itself is built with this
// Worker as its inline-execution fallback.
func (w *Worker) SetDispatcher(d *Dispatcher) {
	w.dispatcher = d
}

func (w *Worker) recordOutcome(ctx context.Context, runID string, ok bool) {
	if w.dispatcher == nil {
		return
	}
	w.dispatcher.recordOutcome(ctx, runID, ok)
}

// RunInline executes job synchronously in the calling goroutine — the
// Dispatcher's fallback path, and also what a single-process deployment
// with no redis at all would call directly.
func (w *Worker) RunInline(ctx context.Context, job Job) error {
	return w.process(ctx, job)
}

// process is the full worker-path lifecycle for one Job: transition
// RUNNING, load+parse the suite, seed the Variable Store, execute the
// Flow Engine, write the final status, publish exports.
func (w *Worker) process(ctx context.Context, job Job) error {
	start := time.Now()
	w.metrics.RunsStarted.Inc()
	defer func() { w.metrics.JobDuration.Observe(time.Since(start).Seconds()) }()

	run, err := w.store.GetRun(ctx, job.RunID)
	if err != nil {
		w.log.Error().Err(err).Str("run_id", job.RunID).Msg("worker: run not found")
		return fmt.Errorf("queue: load run %s: %w", job.RunID, err)
	}

	if !run.Transition(runmodel.StatusRunning, time.Now()) {
		return fmt.Errorf("queue: run %s cannot transition %s->RUNNING", run.RunID, run.Status)
	}
	if err := w.store.UpdateRun(ctx, run); err != nil {
		w.log.Warn().Err(err).Str("run_id", run.RunID).Msg("worker: persist RUNNING transition failed")
	}

	data, suitePath, err := w.loader.LoadVersion(ctx, job.SuiteRef, job.VersionRef)
	if err != nil {
		return w.fail(ctx, run, fmt.Sprintf("load flow version: %v", err))
	}
	s, err := suite.Load(data)
	if err != nil {
		return w.fail(ctx, run, fmt.Sprintf("parse flow suite: %v", err))
	}

	vars := w.seedStore(s, job)

	result := w.engine.Execute(ctx, run.RunID, s, suitePath, vars, flow.Options{SkipValidation: job.SkipValidation})

	switch result.Status {
	case runmodel.StatusWaitingInput:
		run.Transition(runmodel.StatusWaitingInput, time.Now())
		if err := w.store.UpdateRun(ctx, run); err != nil {
			w.log.Warn().Err(err).Str("run_id", run.RunID).Msg("worker: persist WAITING_INPUT failed")
		}
		w.metrics.RunOutcomes.WithLabelValues(string(runmodel.StatusWaitingInput)).Inc()
		return nil
	case runmodel.StatusCompleted:
		w.publishExports(s, vars)
	}

	run.Transition(result.Status, time.Now())
	run.ResultSummary = &runmodel.ResultSummary{
		PassedSteps: result.PassedSteps, FailedSteps: result.FailedSteps,
		TotalSteps: result.TotalSteps, ErrorMessage: result.ErrorMessage,
	}
	if err := w.store.UpdateRun(ctx, run); err != nil {
		w.log.Error().Err(err).Str("run_id", run.RunID).Msg("worker: persist terminal status failed")
	}
	w.metrics.RunOutcomes.WithLabelValues(string(result.Status)).Inc()
	w.recordOutcome(ctx, run.RunID, result.Status == runmodel.StatusCompleted)
	return nil
}

// fail marks run FAILED with the given message — used for load/parse errors
// that occur before the Flow Engine can even start (§7 "Schema errors...
// fatal at load time; the Run transitions straight to FAILED").
func (w *Worker) fail(ctx context.Context, run runmodel.Run, message string) error {
	run.Transition(runmodel.StatusFailed, time.Now())
	run.ResultSummary = &runmodel.ResultSummary{ErrorMessage: message}
	if err := w.store.UpdateRun(ctx, run); err != nil {
		w.log.Error().Err(err).Str("run_id", run.RunID).Msg("worker: persist load-failure status failed")
	}
	w.metrics.RunOutcomes.WithLabelValues(string(runmodel.StatusFailed)).Inc()
	w.recordOutcome(ctx, run.RunID, false)
	return fmt.Errorf("queue: run %s: %s", run.RunID, message)
}

// seedStore builds the per-Run Variable Store per the §4.1 scope lifecycle:
// global <- process environment, suite <- declared variables then the job's
// explicit variables ("execution-option overrides... latter wins"), runtime
// <- the job's input payload, imported <- a registry snapshot filtered to
// depends.
func (w *Worker) seedStore(s suite.Suite, job Job) *store.Store {
	vars := store.New()
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			vars.SetGlobal(parts[0], parts[1])
		}
	}
	for k, v := range s.Variables {
		vars.SetSuite(k, v)
	}
	for k, v := range job.Variables {
		vars.SetSuite(k, v)
	}
	for k, v := range job.InputPayload {
		vars.SetRuntime(k, v)
	}

	if w.registry != nil && len(s.Depends) > 0 {
		ids := make([]string, 0, len(s.Depends))
		for _, dep := range s.Depends {
			if dep.NodeID != "" {
				ids = append(ids, dep.NodeID)
			}
		}
		for namespaced, v := range w.registry.Snapshot(ids) {
			parts := strings.SplitN(namespaced, ".", 2)
			if len(parts) == 2 {
				vars.SetImported(parts[0], parts[1], v)
			}
		}
	}
	return vars
}

// publishExports makes s's declared exports visible to future Runs, and
// only on COMPLETED (the caller only reaches this branch on that status) —
// §I "a suite's exported variables become visible only after its Run
// reaches COMPLETED".
func (w *Worker) publishExports(s suite.Suite, vars *store.Store) {
	if w.registry == nil || len(s.Exports) == 0 || s.NodeID == "" {
		return
	}
	exported := make(map[string]any, len(s.Exports))
	for _, name := range s.Exports {
		if v, ok := vars.Lookup(name); ok {
			exported[name] = v
		}
	}
	w.registry.Publish(s.NodeID, exported)
}

// Pool runs N consumer goroutines taking Jobs from the redis-backed queue
// concurrently — "the worker pool runs multiple Runs in parallel, one per
// worker slot" (§5). Each popped Job is handed to a fresh call into the
// same underlying Worker, since a Worker itself holds no per-job state.
type Pool struct {
	client  redisClient
	key     string
	worker  *Worker
	size    int
	log     zerolog.Logger
	metrics *Metrics

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewPool(client redisClient, streamKey string, worker *Worker, size int, log zerolog.Logger, metrics *Metrics) *Pool {
	if size <= 0 {
		size = 1
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Pool{client: client, key: streamKey, worker: worker, size: size, log: log, metrics: metrics}
}

// Start launches size consumer goroutines, each blocking on BRPOP in a loop
// until ctx is cancelled or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.loop(runCtx, i)
	}
	p.log.Info().Int("workers", p.size).Str("queue", p.key).Msg("worker pool started")
}

// Stop signals every consumer goroutine to exit and blocks until they do.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.log.Info().Msg("worker pool stopped")
}

func (p *Pool) loop(ctx context.Context, slot int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.client.BRPop(ctx, 5*time.Second, p.key).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue // timeout (redis.Nil) or transient error: poll again
		}
		if len(res) < 2 {
			continue
		}
		job, err := UnmarshalJob([]byte(res[1]))
		if err != nil {
			p.log.Error().Err(err).Int("slot", slot).Msg("worker: malformed job payload")
			continue
		}

		p.metrics.ActiveWorkers.Inc()
		if err := p.worker.process(ctx, job); err != nil {
			p.log.Error().Err(err).Str("run_id", job.RunID).Int("slot", slot).Msg("worker: job processing failed")
		}
		p.metrics.ActiveWorkers.Dec()
	}
}
