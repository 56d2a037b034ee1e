package sinks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
	"github.com/JakeFAU/catalog-exporter/internal/progress"
	"github.com/JakeFAU/catalog-exporter/internal/store"
)

func TestStoreSinkCollapsesTaskCounts(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now()

	batch := []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, TS: now},
		{RunID: runID, Stage: progress.StageTaskFound, SKU: "A", TS: now.Add(time.Second)},
		{RunID: runID, Stage: progress.StageFieldDegraded, SKU: "A", Field: catalog.FieldName, TS: now.Add(time.Second)},
		{RunID: runID, Stage: progress.StageTaskFound, SKU: "B", TS: now.Add(2 * time.Second)},
		{RunID: runID, Stage: progress.StageTaskNotListed, SKU: "C", TS: now.Add(3 * time.Second)},
		{RunID: runID, Stage: progress.StageRunDone, TS: now.Add(4 * time.Second)},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, []uuid.UUID{runUUID}, repo.starts)
	require.Len(t, repo.deltas, 1)
	require.Equal(t, store.TaskCounts{Found: 2, NotListed: 1, DegradedFields: 1}, repo.deltas[0].counts)
	require.Equal(t, now.Add(3*time.Second), repo.deltas[0].at)
	require.Equal(t, []store.RunStatus{store.RunSuccess}, repo.completed)
	require.Equal(t, []string{"add", "complete"}, repo.calls[1:])
}

func TestStoreSinkFlushesTrailingDeltas(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageTaskFailed, SKU: "X", TS: time.Now()},
	}))
	require.Len(t, repo.deltas, 1)
	require.Equal(t, int64(1), repo.deltas[0].counts.Failed)
	require.Empty(t, repo.completed)
}

func TestStoreSinkRecordsRunErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, Stage: progress.StageRunError, TS: time.Now(), Note: "disk full"},
	}))
	require.Equal(t, []store.RunStatus{store.RunError}, repo.completed)
	require.Equal(t, "disk full", repo.lastNote)
}

func TestStoreSinkSurfacesRepositoryErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(uuid.New()), Stage: progress.StageRunStart, TS: time.Now()},
	})
	require.ErrorContains(t, err, "start run")
}

type deltaCall struct {
	counts store.TaskCounts
	at     time.Time
}

type fakeRunRepo struct {
	mu        sync.Mutex
	fail      bool
	calls     []string
	starts    []uuid.UUID
	deltas    []deltaCall
	completed []store.RunStatus
	lastNote  string
}

func (f *fakeRunRepo) StartRun(_ context.Context, runID uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("start failed")
	}
	f.calls = append(f.calls, "start")
	f.starts = append(f.starts, runID)
	return nil
}

func (f *fakeRunRepo) AddTaskCounts(_ context.Context, _ uuid.UUID, delta store.TaskCounts, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("add failed")
	}
	f.calls = append(f.calls, "add")
	f.deltas = append(f.deltas, deltaCall{counts: delta, at: at})
	return nil
}

func (f *fakeRunRepo) CompleteRun(
	_ context.Context,
	_ uuid.UUID,
	_ time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("complete failed")
	}
	f.calls = append(f.calls, "complete")
	f.completed = append(f.completed, status)
	if errMsg != nil {
		f.lastNote = *errMsg
	}
	return nil
}

func (f *fakeRunRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return store.Run{}, store.ErrNotFound
}

func (f *fakeRunRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.Run, error) {
	return nil, nil
}
