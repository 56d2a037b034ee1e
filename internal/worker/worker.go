// Package worker runs one export task at a time: acquire a dedicated
// session, probe the item, extract its fields and report a single outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
	"github.com/JakeFAU/catalog-exporter/internal/metrics"
)

// ErrCanceled is the failure reason for tasks abandoned after the run was
// interrupted.
var ErrCanceled = errors.New("canceled")

const tracerName = "github.com/JakeFAU/catalog-exporter/internal/worker"

// Worker consumes tasks from the queue until it is closed and drained.
type Worker struct {
	id        int
	queue     catalog.TaskQueue
	sessions  catalog.SessionProvider
	prober    catalog.Prober
	extractor catalog.FieldExtractor
	clock     catalog.Clock
	results   chan<- catalog.Outcome
	logger    *zap.Logger
	tracer    trace.Tracer
}

// Option customizes a Worker.
type Option func(*Worker)

// WithTracer records task spans on t instead of the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(w *Worker) {
		if t != nil {
			w.tracer = t
		}
	}
}

// New constructs a Worker reporting outcomes on results.
func New(
	id int,
	queue catalog.TaskQueue,
	sessions catalog.SessionProvider,
	prober catalog.Prober,
	extractor catalog.FieldExtractor,
	clock catalog.Clock,
	results chan<- catalog.Outcome,
	logger *zap.Logger,
	opts ...Option,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		id:        id,
		queue:     queue,
		sessions:  sessions,
		prober:    prober,
		extractor: extractor,
		clock:     clock,
		results:   results,
		logger:    logger.With(zap.Int("worker", id)),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until the queue is closed and empty. Cancelling ctx does not
// stop the loop: the remaining tasks are still dequeued and failed fast so
// every submitted task reports exactly one outcome.
func (w *Worker) Run(ctx context.Context) {
	drainCtx := context.WithoutCancel(ctx)
	for {
		task, err := w.queue.Dequeue(drainCtx)
		if err != nil {
			if !errors.Is(err, catalog.ErrQueueClosed) {
				w.logger.Error("queue dequeue failed", zap.Error(err))
			}
			return
		}
		w.results <- w.Process(ctx, task)
	}
}

// Process runs the full lifecycle for one task and returns its outcome.
func (w *Worker) Process(ctx context.Context, task catalog.Task) (out catalog.Outcome) {
	ctx, span := w.tracer.Start(ctx, "export.task", trace.WithAttributes(
		attribute.String("catalog.sku", string(task.ID)),
		attribute.Int("catalog.seq", task.Seq),
		attribute.Int("worker.id", w.id),
	))
	start := w.clock.Now()
	defer func() {
		out.Duration = w.clock.Now().Sub(start)
		metrics.ObserveTask(string(out.Kind), out.Duration)
		endSpan(span, out)
	}()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("task panicked", zap.String("sku", string(task.ID)), zap.Any("panic", r))
			out = catalog.Failed(task, fmt.Errorf("panic: %v", r))
		}
	}()

	if ctx.Err() != nil {
		return catalog.Failed(task, ErrCanceled)
	}

	acquiredAt := time.Now()
	sess, err := w.sessions.Acquire(ctx)
	if err != nil {
		return catalog.Failed(task, fmt.Errorf("acquire session: %w", err))
	}
	metrics.ObserveSessionAcquire(time.Since(acquiredAt))
	metrics.IncActiveSessions()
	defer func() {
		metrics.DecActiveSessions()
		if err := sess.Release(); err != nil {
			w.logger.Warn("release session failed", zap.String("sku", string(task.ID)), zap.Error(err))
		}
	}()

	return w.run(ctx, sess, task)
}

func (w *Worker) run(ctx context.Context, sess catalog.Session, task catalog.Task) catalog.Outcome {
	probeCtx, probeSpan := w.tracer.Start(ctx, "export.probe")
	listed, err := w.prober.Probe(probeCtx, sess, task.ID)
	probeSpan.SetAttributes(attribute.Bool("catalog.listed", listed))
	if err != nil {
		probeSpan.RecordError(err)
	}
	probeSpan.End()
	switch {
	case ctx.Err() != nil:
		return catalog.Failed(task, ErrCanceled)
	case err != nil:
		return catalog.Failed(task, err)
	case !listed:
		return catalog.NotListed(task)
	}

	extractCtx, extractSpan := w.tracer.Start(ctx, "export.extract")
	rec, diags := w.extractor.Extract(extractCtx, sess, task.ID)
	extractSpan.SetAttributes(attribute.Int("catalog.degraded_fields", len(diags)))
	extractSpan.End()
	if ctx.Err() != nil {
		return catalog.Failed(task, ErrCanceled)
	}
	return catalog.Found(task, rec, diags)
}

func endSpan(span trace.Span, out catalog.Outcome) {
	span.SetAttributes(attribute.String("catalog.outcome", string(out.Kind)))
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
	}
	span.End()
}
