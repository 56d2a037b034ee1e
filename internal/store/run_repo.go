package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("export run not found")

// RunStatus mirrors the export_runs.status column.
type RunStatus string

// Run statuses persisted in export_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// TaskCounts are per-outcome counters, used both as deltas and as totals.
type TaskCounts struct {
	Found          int64
	NotListed      int64
	Failed         int64
	Duplicates     int64
	DegradedFields int64
}

// IsZero reports whether every counter is zero.
func (c TaskCounts) IsZero() bool {
	return c == TaskCounts{}
}

// Run models one row of export_runs.
type Run struct {
	ID           uuid.UUID
	StartedAt    time.Time
	FinishedAt   *time.Time
	UpdatedAt    time.Time
	Status       RunStatus
	ErrorMessage *string
	Counts       TaskCounts
}

// RunRepository records export runs for operators. The pipeline only writes;
// reads serve the operator API.
type RunRepository interface {
	// StartRun inserts the run as running. Repeated calls are idempotent.
	StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// AddTaskCounts applies outcome deltas to the run's counters.
	AddTaskCounts(ctx context.Context, runID uuid.UUID, delta TaskCounts, at time.Time) error
	// CompleteRun marks the run finished with the final status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error

	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs newest first, optionally filtered by status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}
