// Package dispatcher fans a fixed list of identifiers out to a fixed-width
// pool of workers and streams their outcomes back in completion order.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
	"github.com/JakeFAU/catalog-exporter/internal/metrics"
	"github.com/JakeFAU/catalog-exporter/internal/queue/memory"
	"github.com/JakeFAU/catalog-exporter/internal/worker"
)

const defaultWidth = 9

// Config controls pool sizing.
type Config struct {
	// Width caps how many sessions are open at once.
	Width int
	// Tracer records task spans; nil uses the global provider.
	Tracer trace.Tracer
}

// Dispatcher owns the worker pool for one run.
type Dispatcher struct {
	cfg       Config
	sessions  catalog.SessionProvider
	prober    catalog.Prober
	extractor catalog.FieldExtractor
	clock     catalog.Clock
	logger    *zap.Logger
}

// New creates a Dispatcher. A zero width selects the default.
func New(
	cfg Config,
	sessions catalog.SessionProvider,
	prober catalog.Prober,
	extractor catalog.FieldExtractor,
	clock catalog.Clock,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.Width <= 0 {
		cfg.Width = defaultWidth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:       cfg,
		sessions:  sessions,
		prober:    prober,
		extractor: extractor,
		clock:     clock,
		logger:    logger,
	}
}

// Width reports the configured pool width.
func (d *Dispatcher) Width() int {
	return d.cfg.Width
}

// Run submits every identifier up front and starts the pool. The returned
// channel yields exactly one outcome per identifier and is closed once all
// workers have exited. A canceled ctx still yields one outcome per
// identifier; the workers fail what they have not started.
func (d *Dispatcher) Run(ctx context.Context, ids []catalog.Identifier) (<-chan catalog.Outcome, error) {
	queue := memory.NewQueue(len(ids))
	// The queue holds every task, so submission never blocks.
	submitCtx := context.WithoutCancel(ctx)
	for i, id := range ids {
		if err := queue.Enqueue(submitCtx, catalog.Task{Seq: i, ID: id}); err != nil {
			queue.Close()
			return nil, fmt.Errorf("submit task %d: %w", i, err)
		}
	}
	queue.Close()
	metrics.SetQueueDepth(queue.Len())

	width := d.cfg.Width
	if len(ids) < width {
		width = len(ids)
	}
	results := make(chan catalog.Outcome, d.cfg.Width)
	source := &depthReportingQueue{Queue: queue}

	var wg sync.WaitGroup
	for i := 1; i <= width; i++ {
		w := worker.New(i, source, d.sessions, d.prober, d.extractor, d.clock, results, d.logger.Named("worker"),
			worker.WithTracer(d.cfg.Tracer))
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	d.logger.Info("pool started", zap.Int("workers", width), zap.Int("tasks", len(ids)))

	go func() {
		wg.Wait()
		close(results)
	}()
	return results, nil
}

type depthReportingQueue struct {
	*memory.Queue
}

func (q *depthReportingQueue) Dequeue(ctx context.Context) (catalog.Task, error) {
	task, err := q.Queue.Dequeue(ctx)
	metrics.SetQueueDepth(q.Len())
	if err != nil {
		return task, fmt.Errorf("dequeue: %w", err)
	}
	return task, nil
}
