package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/flowtest/engine/internal/runmodel"
)

// MemoryStore is an in-process Store for tests and local development
// without a database, satisfying the same Store contract as PostgresStore.
type MemoryStore struct {
	mu       sync.Mutex
	runs     map[string]runmodel.Run
	stepRuns map[string][]runmodel.StepRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:     make(map[string]runmodel.Run),
		stepRuns: make(map[string][]runmodel.StepRun),
	}
}

func (m *MemoryStore) CreateRun(ctx context.Context, run runmodel.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.RunID] = run
	return nil
}

func (m *MemoryStore) UpdateRun(ctx context.Context, run runmodel.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.RunID]; !ok {
		return ErrNotFound
	}
	m.runs[run.RunID] = run
	return nil
}

func (m *MemoryStore) GetRun(ctx context.Context, runID string) (runmodel.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return runmodel.Run{}, ErrNotFound
	}
	return run, nil
}

func (m *MemoryStore) ListRuns(ctx context.Context, suiteRef string, limit int) ([]runmodel.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]runmodel.Run, 0, len(m.runs))
	for _, run := range m.runs {
		if suiteRef == "" || run.SuiteRef == suiteRef {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.After(out[j].QueuedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) PersistStep(ctx context.Context, runID string, stepRun runmodel.StepRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stepRun.RunID = runID
	existing := m.stepRuns[runID]
	for i, sr := range existing {
		if sr.StepIndex == stepRun.StepIndex {
			existing[i] = stepRun
			return nil
		}
	}
	m.stepRuns[runID] = append(existing, stepRun)
	return nil
}

func (m *MemoryStore) ListStepRuns(ctx context.Context, runID string) ([]runmodel.StepRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]runmodel.StepRun, len(m.stepRuns[runID]))
	copy(out, m.stepRuns[runID])
	sort.Slice(out, func(i, j int) bool { return out[i].StepIndex < out[j].StepIndex })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
