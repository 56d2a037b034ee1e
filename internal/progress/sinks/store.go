package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-exporter/internal/progress"
	"github.com/JakeFAU/catalog-exporter/internal/store"
)

// StoreSink folds each batch into per-run counter deltas and writes them
// through a store.RunRepository.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for repo.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies the batch in order: run starts are written immediately,
// task deltas are collapsed and flushed before the run they belong to is
// completed, and any remainder is flushed at the end.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	pending := make(map[uuid.UUID]*pendingCounts)

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, runID, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageRunDone, progress.StageRunError:
			if err := s.flushRun(ctx, runID, pending); err != nil {
				return err
			}
			if err := s.completeRun(ctx, runID, evt); err != nil {
				return err
			}
		default:
			accumulate(pending, runID, evt)
		}
	}
	for runID := range pending {
		if err := s.flushRun(ctx, runID, pending); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) completeRun(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	status := store.RunSuccess
	var note *string
	if evt.Stage == progress.StageRunError {
		status = store.RunError
		if evt.Note != "" {
			note = &evt.Note
		}
	}
	if err := s.repo.CompleteRun(ctx, runID, evt.TS, status, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

func (s *StoreSink) flushRun(ctx context.Context, runID uuid.UUID, pending map[uuid.UUID]*pendingCounts) error {
	delta, ok := pending[runID]
	if !ok {
		return nil
	}
	delete(pending, runID)
	if delta.counts.IsZero() {
		return nil
	}
	if err := s.repo.AddTaskCounts(ctx, runID, delta.counts, delta.at); err != nil {
		return fmt.Errorf("add task counts: %w", err)
	}
	return nil
}

// Close implements progress.Sink; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type pendingCounts struct {
	counts store.TaskCounts
	at     time.Time
}

func accumulate(pending map[uuid.UUID]*pendingCounts, runID uuid.UUID, evt progress.Event) {
	delta := pending[runID]
	if delta == nil {
		delta = &pendingCounts{}
		pending[runID] = delta
	}
	switch evt.Stage {
	case progress.StageTaskFound:
		delta.counts.Found++
	case progress.StageTaskNotListed:
		delta.counts.NotListed++
	case progress.StageTaskFailed:
		delta.counts.Failed++
	case progress.StageTaskDuplicate:
		delta.counts.Duplicates++
	case progress.StageFieldDegraded:
		delta.counts.DegradedFields++
	}
	if evt.TS.After(delta.at) {
		delta.at = evt.TS
	}
}
