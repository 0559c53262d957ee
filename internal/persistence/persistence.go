// Package persistence implements the Run Persistence Adapter (spec §4.9,
// §4.8): durable storage for Run and StepRun records. internal/flow sees
// only the flow.StepPersister slice of this via Store.PersistStep; the
// wider Store interface is what internal/api and internal/queue use to
// create/transition/list runs.
package persistence

import (
	"context"
	"errors"

	"github.com/flowtest/engine/internal/runmodel"
)

// ErrNotFound is returned when a lookup by run ID finds nothing.
var ErrNotFound = errors.New("persistence: run not found")

// Store is the full Run Persistence Adapter contract. internal/flow only
// needs PersistStep (see flow.StepPersister); the rest is consumed by the
// queue worker and the REST boundary.
type Store interface {
	CreateRun(ctx context.Context, run runmodel.Run) error
	UpdateRun(ctx context.Context, run runmodel.Run) error
	GetRun(ctx context.Context, runID string) (runmodel.Run, error)
	ListRuns(ctx context.Context, suiteRef string, limit int) ([]runmodel.Run, error)

	PersistStep(ctx context.Context, runID string, stepRun runmodel.StepRun) error
	ListStepRuns(ctx context.Context, runID string) ([]runmodel.StepRun, error)
}
