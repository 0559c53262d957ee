package queue

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/flowtest/engine/internal/runmodel"
)

// Submitter creates and submits a new Run, the Run-trigger boundary the
// ScheduleRegistrar drives on a timer. cmd/flowtestctl's submitterAdapter
// implements this over internal/api's Service.
type Submitter interface {
	Submit(ctx context.Context, suiteRef, versionRef string, trigger runmodel.TriggerSource, priority int, variables map[string]any) (runmodel.Run, error)
}

// ScheduledSuite binds a cron expression to a suite/version pair.
type ScheduledSuite struct {
	SuiteRef   string
	VersionRef string
	CronExpr   string
	Priority   int
	Variables  map[string]any
}

// ScheduleRegistrar enqueues Run Requests on a cron schedule. Per spec §1
// Non-goals ("The engine does not schedule suites over time"), this is
// explicitly the external collaborator that calls the Run-trigger API on a
// timer — the engine itself remains schedule-agnostic; trigger_source is
// simply recorded as SCHEDULE on the resulting Run.
type ScheduleRegistrar struct {
	cron      *cron.Cron
	submitter Submitter
	log       zerolog.Logger
}

func NewScheduleRegistrar(submitter Submitter, log zerolog.Logger) *ScheduleRegistrar {
	return &ScheduleRegistrar{cron: cron.New(), submitter: submitter, log: log}
}

// Register adds one scheduled suite; returns the cron.EntryID for later removal.
func (r *ScheduleRegistrar) Register(s ScheduledSuite) (cron.EntryID, error) {
	return r.cron.AddFunc(s.CronExpr, func() {
		ctx := context.Background()
		run, err := r.submitter.Submit(ctx, s.SuiteRef, s.VersionRef, runmodel.TriggerSchedule, s.Priority, s.Variables)
		if err != nil {
			r.log.Error().Err(err).Str("suite_ref", s.SuiteRef).Msg("schedule: submit failed")
			return
		}
		r.log.Info().Str("run_id", run.RunID).Str("suite_ref", s.SuiteRef).Msg("schedule: run submitted")
	})
}

func (r *ScheduleRegistrar) Remove(id cron.EntryID) { r.cron.Remove(id) }

func (r *ScheduleRegistrar) Start() { r.cron.Start() }

func (r *ScheduleRegistrar) Stop() { r.cron.Stop() }
