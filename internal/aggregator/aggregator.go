// Package aggregator is the single consumer of task outcomes. It is the only
// component that writes to the output, which it does at most once per
// identifier, and it keeps the run's counters.
package aggregator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
	"github.com/JakeFAU/catalog-exporter/internal/progress"
)

// ErrWrite wraps the first output failure seen during a run.
var ErrWrite = errors.New("write record")

// Aggregator drains outcomes in completion order.
type Aggregator struct {
	runID   [16]byte
	writer  catalog.RecordWriter
	emitter progress.Emitter
	clock   catalog.Clock
	logger  *zap.Logger

	mu      sync.Mutex
	summary catalog.Summary
	written map[catalog.Identifier]struct{}
}

// New creates an Aggregator expecting submitted outcomes.
func New(
	runID uuid.UUID,
	submitted int,
	writer catalog.RecordWriter,
	emitter progress.Emitter,
	clock catalog.Clock,
	logger *zap.Logger,
) *Aggregator {
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		runID:   progress.UUIDToBytes(runID),
		writer:  writer,
		emitter: emitter,
		clock:   clock,
		logger:  logger,
		summary: catalog.Summary{Submitted: submitted},
		written: make(map[catalog.Identifier]struct{}, submitted),
	}
}

// Consume drains results until the channel is closed. Write failures do not
// stop the drain; the first one is returned once the channel closes.
func (a *Aggregator) Consume(results <-chan catalog.Outcome) (catalog.Summary, error) {
	var firstErr error
	for out := range results {
		if err := a.handle(out); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return a.Summary(), firstErr
}

// Summary returns the counters so far. It is safe to call while Consume runs.
func (a *Aggregator) Summary() catalog.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summary
}

func (a *Aggregator) handle(out catalog.Outcome) error {
	sku := string(out.Task.ID)
	logger := a.logger.With(zap.String("sku", sku), zap.Int("seq", out.Task.Seq))

	switch out.Kind {
	case catalog.OutcomeNotListed:
		logger.Info("item not listed")
		a.count(func(s *catalog.Summary) { s.NotListed++ })
		a.emit(progress.StageTaskNotListed, out, "")
		return nil
	case catalog.OutcomeFailed:
		logger.Error("task failed", zap.String("reason", out.Reason()), zap.Duration("dur", out.Duration))
		a.count(func(s *catalog.Summary) { s.Failed++ })
		a.emit(progress.StageTaskFailed, out, out.Reason())
		return nil
	}

	for _, diag := range out.Diagnostics {
		logger.Warn("field degraded", zap.String("field", string(diag.Field)), zap.Error(diag.Err))
		a.emitField(out, diag)
	}
	a.count(func(s *catalog.Summary) { s.DegradedFields += len(out.Diagnostics) })

	if a.alreadyWritten(out.Task.ID) {
		logger.Warn("duplicate identifier dropped")
		a.count(func(s *catalog.Summary) { s.Duplicates++ })
		a.emit(progress.StageTaskDuplicate, out, "")
		return nil
	}
	if err := a.writer.WriteRecord(out.Record); err != nil {
		logger.Error("write record failed", zap.Error(err))
		a.count(func(s *catalog.Summary) { s.WriteErrors++ })
		a.emit(progress.StageTaskFailed, out, err.Error())
		return fmt.Errorf("%w %s: %w", ErrWrite, sku, err)
	}
	a.mu.Lock()
	a.written[out.Task.ID] = struct{}{}
	a.summary.Found++
	a.mu.Unlock()
	logger.Debug("record written", zap.Duration("dur", out.Duration))
	a.emit(progress.StageTaskFound, out, "")
	return nil
}

func (a *Aggregator) alreadyWritten(id catalog.Identifier) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.written[id]
	return ok
}

func (a *Aggregator) count(update func(*catalog.Summary)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	update(&a.summary)
}

func (a *Aggregator) emit(stage progress.Stage, out catalog.Outcome, note string) {
	a.emitter.Emit(progress.Event{
		RunID: a.runID,
		TS:    a.clock.Now(),
		Stage: stage,
		SKU:   string(out.Task.ID),
		Dur:   out.Duration,
		Note:  note,
	})
}

func (a *Aggregator) emitField(out catalog.Outcome, diag catalog.FieldDiagnostic) {
	note := ""
	if diag.Err != nil {
		note = diag.Err.Error()
	}
	a.emitter.Emit(progress.Event{
		RunID: a.runID,
		TS:    a.clock.Now(),
		Stage: progress.StageFieldDegraded,
		SKU:   string(out.Task.ID),
		Field: diag.Field,
		Note:  note,
	})
}
