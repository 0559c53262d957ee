package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/flowtest/engine/internal/runmodel"
)

// PostgresConfig is the connection-pool configuration for PostgresStore,
// grounded on the teacher's postgres plugin Config (same field set); its
// defaults and validation tags live on internal/config's Database instead.
type PostgresConfig struct {
	ConnectionString  string
	MaxOpenConns      int
	MaxIdleConns      int
	ConnMaxLifetimeMS int
}

// PostgresStore is the sqlx/lib/pq-backed Run Persistence Adapter.
type PostgresStore struct {
	db *sqlx.DB
}

// OpenPostgresStore opens a connection pool and verifies it with a ping,
// the same two-step Initialize the teacher's postgres plugin performs.
func OpenPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("persistence: open connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMS) * time.Millisecond)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: ping: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate creates the runs/step_runs tables if they don't already exist.
// A real deployment would use a migration tool; this mirrors the scope the
// teacher's plugins keep (schema assumed pre-provisioned, connection pool
// is the plugin's only DDL-adjacent responsibility) while still letting the
// store be usable against a bare database in tests.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaDDL)
	return err
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	suite_ref      TEXT NOT NULL,
	version_ref    TEXT NOT NULL,
	status         TEXT NOT NULL,
	priority       INTEGER NOT NULL,
	trigger_source TEXT NOT NULL,
	input_payload  JSONB,
	queued_at      TIMESTAMPTZ NOT NULL,
	started_at     TIMESTAMPTZ,
	finished_at    TIMESTAMPTZ,
	result_summary JSONB,
	requested_by   TEXT
);

CREATE TABLE IF NOT EXISTS step_runs (
	run_id             TEXT NOT NULL,
	step_index         INTEGER NOT NULL,
	step_name          TEXT NOT NULL,
	step_id            TEXT,
	qualified_step_id  TEXT,
	status             TEXT NOT NULL,
	duration_ms        BIGINT NOT NULL,
	request_snapshot   JSONB,
	response_snapshot  JSONB,
	captures           JSONB,
	assertion_results  JSONB,
	error_message      TEXT,
	started_at         TIMESTAMPTZ NOT NULL,
	finished_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, step_index)
);
`

type runRow struct {
	RunID         string         `db:"run_id"`
	SuiteRef      string         `db:"suite_ref"`
	VersionRef    string         `db:"version_ref"`
	Status        string         `db:"status"`
	Priority      int            `db:"priority"`
	TriggerSource string         `db:"trigger_source"`
	InputPayload  []byte         `db:"input_payload"`
	QueuedAt      time.Time      `db:"queued_at"`
	StartedAt     sql.NullTime   `db:"started_at"`
	FinishedAt    sql.NullTime   `db:"finished_at"`
	ResultSummary []byte         `db:"result_summary"`
	RequestedBy   string         `db:"requested_by"`
}

func toRunRow(run runmodel.Run) (runRow, error) {
	row := runRow{
		RunID:         run.RunID,
		SuiteRef:      run.SuiteRef,
		VersionRef:    run.VersionRef,
		Status:        string(run.Status),
		Priority:      run.Priority,
		TriggerSource: string(run.TriggerSource),
		QueuedAt:      run.QueuedAt,
		RequestedBy:   run.RequestedBy,
	}
	if run.StartedAt != nil {
		row.StartedAt = sql.NullTime{Time: *run.StartedAt, Valid: true}
	}
	if run.FinishedAt != nil {
		row.FinishedAt = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}
	if run.InputPayload != nil {
		data, err := json.Marshal(run.InputPayload)
		if err != nil {
			return row, err
		}
		row.InputPayload = data
	}
	if run.ResultSummary != nil {
		data, err := json.Marshal(run.ResultSummary)
		if err != nil {
			return row, err
		}
		row.ResultSummary = data
	}
	return row, nil
}

func fromRunRow(row runRow) (runmodel.Run, error) {
	run := runmodel.Run{
		RunID:         row.RunID,
		SuiteRef:      row.SuiteRef,
		VersionRef:    row.VersionRef,
		Status:        runmodel.Status(row.Status),
		Priority:      row.Priority,
		TriggerSource: runmodel.TriggerSource(row.TriggerSource),
		QueuedAt:      row.QueuedAt,
		RequestedBy:   row.RequestedBy,
	}
	if row.StartedAt.Valid {
		t := row.StartedAt.Time
		run.StartedAt = &t
	}
	if row.FinishedAt.Valid {
		t := row.FinishedAt.Time
		run.FinishedAt = &t
	}
	if len(row.InputPayload) > 0 {
		if err := json.Unmarshal(row.InputPayload, &run.InputPayload); err != nil {
			return run, err
		}
	}
	if len(row.ResultSummary) > 0 {
		var summary runmodel.ResultSummary
		if err := json.Unmarshal(row.ResultSummary, &summary); err != nil {
			return run, err
		}
		run.ResultSummary = &summary
	}
	return run, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run runmodel.Run) error {
	row, err := toRunRow(run)
	if err != nil {
		return fmt.Errorf("persistence: encode run: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO runs (run_id, suite_ref, version_ref, status, priority, trigger_source,
		                   input_payload, queued_at, started_at, finished_at, result_summary, requested_by)
		VALUES (:run_id, :suite_ref, :version_ref, :status, :priority, :trigger_source,
		        :input_payload, :queued_at, :started_at, :finished_at, :result_summary, :requested_by)
	`, row)
	if err != nil {
		return fmt.Errorf("persistence: create run: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run runmodel.Run) error {
	row, err := toRunRow(run)
	if err != nil {
		return fmt.Errorf("persistence: encode run: %w", err)
	}
	result, err := s.db.NamedExecContext(ctx, `
		UPDATE runs SET status = :status, started_at = :started_at, finished_at = :finished_at,
		                result_summary = :result_summary
		WHERE run_id = :run_id
	`, row)
	if err != nil {
		return fmt.Errorf("persistence: update run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (runmodel.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE run_id = $1`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return runmodel.Run{}, ErrNotFound
	}
	if err != nil {
		return runmodel.Run{}, fmt.Errorf("persistence: get run: %w", err)
	}
	return fromRunRow(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, suiteRef string, limit int) ([]runmodel.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	var err error
	if suiteRef == "" {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM runs ORDER BY queued_at DESC LIMIT $1`, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM runs WHERE suite_ref = $1 ORDER BY queued_at DESC LIMIT $2`, suiteRef, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: list runs: %w", err)
	}
	runs := make([]runmodel.Run, 0, len(rows))
	for _, row := range rows {
		run, err := fromRunRow(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

type stepRunRow struct {
	RunID            string `db:"run_id"`
	StepIndex        int    `db:"step_index"`
	StepName         string `db:"step_name"`
	StepID           string `db:"step_id"`
	QualifiedStepID  string `db:"qualified_step_id"`
	Status           string `db:"status"`
	DurationMS       int64  `db:"duration_ms"`
	RequestSnapshot  []byte `db:"request_snapshot"`
	ResponseSnapshot []byte `db:"response_snapshot"`
	Captures         []byte `db:"captures"`
	AssertionResults []byte `db:"assertion_results"`
	ErrorMessage     string `db:"error_message"`
	StartedAt        time.Time `db:"started_at"`
	FinishedAt       time.Time `db:"finished_at"`
}

func toStepRunRow(sr runmodel.StepRun) (stepRunRow, error) {
	row := stepRunRow{
		RunID:           sr.RunID,
		StepIndex:       sr.StepIndex,
		StepName:        sr.StepName,
		StepID:          sr.StepID,
		QualifiedStepID: sr.QualifiedStepID,
		Status:          string(sr.Status),
		DurationMS:      sr.DurationMS,
		ErrorMessage:    sr.ErrorMessage,
		StartedAt:       sr.StartedAt,
		FinishedAt:      sr.FinishedAt,
	}
	var err error
	if row.RequestSnapshot, err = marshalIfSet(sr.RequestSnapshot); err != nil {
		return row, err
	}
	if row.ResponseSnapshot, err = marshalIfSet(sr.ResponseSnapshot); err != nil {
		return row, err
	}
	if row.Captures, err = marshalIfSet(sr.Captures); err != nil {
		return row, err
	}
	if sr.AssertionResults != nil {
		if row.AssertionResults, err = json.Marshal(sr.AssertionResults); err != nil {
			return row, err
		}
	}
	return row, nil
}

func marshalIfSet(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func fromStepRunRow(row stepRunRow) (runmodel.StepRun, error) {
	sr := runmodel.StepRun{
		RunID:           row.RunID,
		StepIndex:       row.StepIndex,
		StepName:        row.StepName,
		StepID:          row.StepID,
		QualifiedStepID: row.QualifiedStepID,
		Status:          runmodel.StepStatus(row.Status),
		DurationMS:      row.DurationMS,
		ErrorMessage:    row.ErrorMessage,
		StartedAt:       row.StartedAt,
		FinishedAt:      row.FinishedAt,
	}
	var err error
	if sr.RequestSnapshot, err = unmarshalIfSet(row.RequestSnapshot); err != nil {
		return sr, err
	}
	if sr.ResponseSnapshot, err = unmarshalIfSet(row.ResponseSnapshot); err != nil {
		return sr, err
	}
	if sr.Captures, err = unmarshalIfSet(row.Captures); err != nil {
		return sr, err
	}
	if len(row.AssertionResults) > 0 {
		if err := json.Unmarshal(row.AssertionResults, &sr.AssertionResults); err != nil {
			return sr, err
		}
	}
	return sr, nil
}

func unmarshalIfSet(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PostgresStore) PersistStep(ctx context.Context, runID string, stepRun runmodel.StepRun) error {
	stepRun.RunID = runID
	row, err := toStepRunRow(stepRun)
	if err != nil {
		return fmt.Errorf("persistence: encode step run: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO step_runs (run_id, step_index, step_name, step_id, qualified_step_id, status,
		                        duration_ms, request_snapshot, response_snapshot, captures,
		                        assertion_results, error_message, started_at, finished_at)
		VALUES (:run_id, :step_index, :step_name, :step_id, :qualified_step_id, :status,
		        :duration_ms, :request_snapshot, :response_snapshot, :captures,
		        :assertion_results, :error_message, :started_at, :finished_at)
		ON CONFLICT (run_id, step_index) DO UPDATE SET
			status = EXCLUDED.status, duration_ms = EXCLUDED.duration_ms,
			request_snapshot = EXCLUDED.request_snapshot, response_snapshot = EXCLUDED.response_snapshot,
			captures = EXCLUDED.captures, assertion_results = EXCLUDED.assertion_results,
			error_message = EXCLUDED.error_message, finished_at = EXCLUDED.finished_at
	`, row)
	if err != nil {
		return fmt.Errorf("persistence: persist step run: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStepRuns(ctx context.Context, runID string) ([]runmodel.StepRun, error) {
	var rows []stepRunRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM step_runs WHERE run_id = $1 ORDER BY step_index ASC`, runID); err != nil {
		return nil, fmt.Errorf("persistence: list step runs: %w", err)
	}
	out := make([]runmodel.StepRun, 0, len(rows))
	for _, row := range rows {
		sr, err := fromStepRunRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, nil
}

var _ Store = (*PostgresStore)(nil)
