package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/flowtest/engine/internal/api"
	"github.com/flowtest/engine/internal/callresolver"
	"github.com/flowtest/engine/internal/config"
	"github.com/flowtest/engine/internal/events"
	"github.com/flowtest/engine/internal/expr"
	"github.com/flowtest/engine/internal/flow"
	"github.com/flowtest/engine/internal/httpengine"
	"github.com/flowtest/engine/internal/logging"
	"github.com/flowtest/engine/internal/persistence"
	"github.com/flowtest/engine/internal/queue"
	"github.com/flowtest/engine/internal/registry"
	"github.com/flowtest/engine/internal/runmodel"
	"github.com/flowtest/engine/internal/step"
	"github.com/flowtest/engine/internal/suite"
)

// loadConfig reads --config (if given) as YAML into a raw map and hands it to
// config.Load, which applies defaults, decodes, then validates — same
// three-step pipeline the teacher's plugin config loader uses.
func loadConfig() (*config.Config, error) {
	raw := map[string]any{
		"call_resolver": map[string]any{"allowed_root": suiteRoot},
	}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		var fromFile map[string]any
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		for k, v := range fromFile {
			raw[k] = v
		}
	}
	return config.Load(raw)
}

func buildLogger() *slog.Logger {
	level := slog.LevelInfo
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return logging.New(logJSON, level)
}

func buildZerolog() zerolog.Logger {
	if logJSON {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
}

// buildStore opens the Run Persistence Adapter configured by cfg. A
// Postgres DSN selects the sqlx/lib/pq-backed store; an empty one falls back
// to the in-memory store, which is enough for local/CLI one-shot use.
func buildStore(cfg *config.Config) (persistence.Store, func(), error) {
	if cfg.Database.ConnectionString == "" {
		return persistence.NewMemoryStore(), func() {}, nil
	}
	store, err := persistence.OpenPostgresStore(persistence.PostgresConfig{
		ConnectionString:  cfg.Database.ConnectionString,
		MaxOpenConns:      cfg.Database.MaxOpenConns,
		MaxIdleConns:      cfg.Database.MaxIdleConns,
		ConnMaxLifetimeMS: cfg.Database.ConnMaxLifetimeMS,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("migrate postgres store: %w", err)
	}
	return store, func() { store.Close() }, nil
}

// components bundles every engine collaborator a subcommand may need. Not
// every subcommand uses every field (trigger/retry never touch the Flow
// Engine, worker never touches the broadcaster's websocket route).
type components struct {
	cfg         *config.Config
	log         *slog.Logger
	zlog        zerolog.Logger
	store       persistence.Store
	closeStore  func()
	registry    *registry.Registry
	loader      suite.FileLoader
	resolver    *callresolver.Resolver
	eval        *expr.Evaluator
	runner      *step.Runner
	broadcaster *events.ChannelBroadcaster
	engine      *flow.Engine
	redis       *redis.Client
	metrics     *queue.Metrics
	dispatcher  *queue.Dispatcher
	worker      *queue.Worker
	apiService  *api.Service
	scheduler   *queue.ScheduleRegistrar
}

// buildComponents wires every package this repository implements into one
// running process, the same assembly job the teacher's main.go performs
// (sflowg.NewApp + NewExecutor + NewHttpHandler), generalized to this
// repository's larger set of components.
func buildComponents() (*components, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	c := &components{
		cfg:  cfg,
		log:  buildLogger(),
		zlog: buildZerolog(),
	}

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	c.store = store
	c.closeStore = closeStore

	c.registry = registry.New()
	c.loader = suite.NewFileLoader(suiteRoot)
	c.resolver = callresolver.New(suiteRoot, c.loader, cfg.CallResolver.MaxDepth)
	c.eval = expr.New()
	c.runner = step.NewRunner(httpengine.New(cfg.DefaultRequestTimeout()), c.eval)
	c.broadcaster = events.NewChannelBroadcaster(cfg.Execution.EventBufferSize)
	c.engine = flow.New(c.runner, c.eval, c.resolver, c.broadcaster, c.store, noInputProvider{}, c.log, cfg.DefaultRequestTimeout())

	c.redis = queue.NewRedisClient(cfg.Queue.RedisAddr)
	c.metrics = queue.NewMetrics()
	c.worker = queue.NewWorker(c.store, c.registry, c.loader, c.engine, cfg.DefaultRequestTimeout(), c.zlog, c.metrics)

	var inline queue.InlineExecutor
	if cfg.Queue.InlineFallback {
		inline = c.worker
	}
	c.dispatcher = queue.NewDispatcher(c.redis, cfg.Queue.StreamKey, 500, inline, c.zlog, c.metrics)
	c.worker.SetDispatcher(c.dispatcher)
	c.apiService = api.NewService(c.store, enqueuerAdapter{c.dispatcher}, c.log)

	c.scheduler = queue.NewScheduleRegistrar(submitterAdapter{c.apiService}, c.zlog)
	for _, sched := range cfg.Schedules {
		if _, err := c.scheduler.Register(queue.ScheduledSuite{
			SuiteRef: sched.SuiteRef, VersionRef: sched.VersionRef, CronExpr: sched.CronExpr,
			Priority: sched.Priority, Variables: sched.Variables,
		}); err != nil {
			return nil, fmt.Errorf("register schedule for %q: %w", sched.SuiteRef, err)
		}
	}
	return c, nil
}

// noInputProvider never supplies a value: flowtestctl runs
// non-interactively, so an `input` step takes its declared default or, with
// none, leaves the Run WAITING_INPUT. The Run's input payload is seeded into
// runtime scope by the queue worker, not through this provider.
type noInputProvider struct{}

func (noInputProvider) Provide(ctx context.Context, runID string, in suite.InputStep) (any, bool) {
	return nil, false
}

// enqueuerAdapter implements api.Enqueuer over a *queue.Dispatcher,
// converting the API boundary's EnqueueJob into the queue package's Job —
// the seam that keeps internal/api free of a dependency on internal/queue's
// redis/worker machinery (spec §1's API-is-thin boundary).
type enqueuerAdapter struct {
	dispatcher *queue.Dispatcher
}

func (a enqueuerAdapter) Enqueue(ctx context.Context, job api.EnqueueJob) error {
	return a.dispatcher.Enqueue(ctx, queue.Job{
		RunID:          job.RunID,
		SuiteRef:       job.SuiteRef,
		VersionRef:     job.VersionRef,
		Label:          job.Label,
		SkipValidation: job.SkipValidation,
		Variables:      job.Variables,
		InputPayload:   job.InputPayload,
	})
}

// submitterAdapter implements queue.Submitter over an *api.Service, the
// positional-args shape the cron ScheduleRegistrar calls on a timer,
// translated into the Service's TriggerRequest shape.
type submitterAdapter struct {
	service *api.Service
}

func (a submitterAdapter) Submit(ctx context.Context, suiteRef, versionRef string, trigger runmodel.TriggerSource, priority int, variables map[string]any) (runmodel.Run, error) {
	return a.service.Submit(ctx, api.TriggerRequest{
		SuiteNodeID:   suiteRef,
		Version:       versionRef,
		Priority:      priority,
		TriggerSource: string(trigger),
		Options:       api.TriggerOptions{Variables: variables},
	})
}
