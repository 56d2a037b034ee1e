package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
	"github.com/JakeFAU/catalog-exporter/internal/metrics"
	"github.com/JakeFAU/catalog-exporter/internal/queue/memory"
)

func init() {
	metrics.Init()
}

func TestProcessFound(t *testing.T) {
	t.Parallel()

	sessions := &fakeProvider{}
	w := newWorker(sessions, &fakeProber{listed: true}, &fakeExtractor{})

	out := w.Process(context.Background(), catalog.Task{Seq: 0, ID: "A"})
	require.Equal(t, catalog.OutcomeFound, out.Kind)
	require.Equal(t, "name-A", out.Record.Name)
	require.Equal(t, 5*time.Second, out.Duration)
	require.Equal(t, 1, sessions.released())
}

func TestProcessNotListed(t *testing.T) {
	t.Parallel()

	sessions := &fakeProvider{}
	extractor := &fakeExtractor{}
	w := newWorker(sessions, &fakeProber{listed: false}, extractor)

	out := w.Process(context.Background(), catalog.Task{ID: "B"})
	require.Equal(t, catalog.OutcomeNotListed, out.Kind)
	require.Zero(t, extractor.calls)
	require.Equal(t, 1, sessions.released())
}

func TestProcessProbeErrorFails(t *testing.T) {
	t.Parallel()

	sessions := &fakeProvider{}
	w := newWorker(sessions, &fakeProber{err: errors.New("navigation refused")}, &fakeExtractor{})

	out := w.Process(context.Background(), catalog.Task{ID: "C"})
	require.Equal(t, catalog.OutcomeFailed, out.Kind)
	require.Contains(t, out.Reason(), "navigation refused")
	require.Equal(t, 1, sessions.released())
}

func TestProcessAcquireErrorFails(t *testing.T) {
	t.Parallel()

	sessions := &fakeProvider{acquireErr: errors.New("chrome missing")}
	w := newWorker(sessions, &fakeProber{listed: true}, &fakeExtractor{})

	out := w.Process(context.Background(), catalog.Task{ID: "D"})
	require.Equal(t, catalog.OutcomeFailed, out.Kind)
	require.Contains(t, out.Reason(), "acquire session")
	require.Zero(t, sessions.released())
}

func TestProcessRecoversPanicAndReleases(t *testing.T) {
	t.Parallel()

	sessions := &fakeProvider{}
	w := newWorker(sessions, &fakeProber{listed: true}, &fakeExtractor{panicWith: "boom"})

	out := w.Process(context.Background(), catalog.Task{ID: "E"})
	require.Equal(t, catalog.OutcomeFailed, out.Kind)
	require.Equal(t, "panic: boom", out.Reason())
	require.Equal(t, 1, sessions.released())
}

func TestProcessCanceledFailsFast(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sessions := &fakeProvider{}
	w := newWorker(sessions, &fakeProber{listed: true}, &fakeExtractor{})

	out := w.Process(ctx, catalog.Task{ID: "F"})
	require.Equal(t, catalog.OutcomeFailed, out.Kind)
	require.ErrorIs(t, out.Err, ErrCanceled)
	require.Zero(t, sessions.acquired())
}

func TestRunDrainsQueueAfterCancel(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(3)
	for i, id := range []catalog.Identifier{"A", "B", "C"} {
		require.NoError(t, q.Enqueue(context.Background(), catalog.Task{Seq: i, ID: id}))
	}
	q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := make(chan catalog.Outcome, 3)
	w := New(1, q, &fakeProvider{}, &fakeProber{listed: true}, &fakeExtractor{}, &fakeClock{}, results, zap.NewNop())

	w.Run(ctx)
	close(results)

	var got []catalog.Identifier
	for out := range results {
		require.Equal(t, catalog.OutcomeFailed, out.Kind)
		got = append(got, out.Task.ID)
	}
	require.Equal(t, []catalog.Identifier{"A", "B", "C"}, got)
}

func TestProcessRecordsSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	w := New(3, nil, &fakeProvider{}, &fakeProber{listed: true}, &fakeExtractor{}, &fakeClock{}, nil, zap.NewNop(),
		WithTracer(tp.Tracer("test")))

	w.Process(context.Background(), catalog.Task{Seq: 7, ID: "A"})

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	require.Equal(t, "export.probe", spans[0].Name())
	require.Equal(t, "export.extract", spans[1].Name())
	task := spans[2]
	require.Equal(t, "export.task", task.Name())
	require.Equal(t, task.SpanContext().SpanID(), spans[0].Parent().SpanID())
	require.Contains(t, task.Attributes(), attribute.String("catalog.sku", "A"))
	require.Contains(t, task.Attributes(), attribute.Int("catalog.seq", 7))
	require.Contains(t, task.Attributes(), attribute.String("catalog.outcome", "found"))
	require.Equal(t, codes.Unset, task.Status().Code)
}

func TestProcessFailedSpanCarriesError(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	w := New(1, nil, &fakeProvider{acquireErr: errors.New("chrome missing")}, &fakeProber{}, &fakeExtractor{},
		&fakeClock{}, nil, zap.NewNop(), WithTracer(tp.Tracer("test")))

	w.Process(context.Background(), catalog.Task{ID: "X"})

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Contains(t, spans[0].Status().Description, "chrome missing")
}

func newWorker(sessions catalog.SessionProvider, prober catalog.Prober, extractor catalog.FieldExtractor) *Worker {
	return New(1, nil, sessions, prober, extractor, &fakeClock{}, nil, zap.NewNop())
}

type fakeProvider struct {
	mu         sync.Mutex
	acquireErr error
	acquireN   int
	releaseN   int
}

func (p *fakeProvider) Acquire(context.Context) (catalog.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	p.acquireN++
	return &fakeSession{provider: p}, nil
}

func (p *fakeProvider) acquired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireN
}

func (p *fakeProvider) released() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releaseN
}

type fakeSession struct {
	catalog.Session
	provider *fakeProvider
}

func (s *fakeSession) Release() error {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	s.provider.releaseN++
	return nil
}

type fakeProber struct {
	listed bool
	err    error
}

func (p *fakeProber) Probe(context.Context, catalog.Session, catalog.Identifier) (bool, error) {
	return p.listed, p.err
}

type fakeExtractor struct {
	mu        sync.Mutex
	calls     int
	panicWith string
}

func (e *fakeExtractor) Extract(_ context.Context, _ catalog.Session, id catalog.Identifier) (catalog.Record, []catalog.FieldDiagnostic) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.panicWith != "" {
		panic(e.panicWith)
	}
	return catalog.Record{Identifier: id, Name: "name-" + string(id)}, nil
}

// fakeClock advances five seconds per call.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now.IsZero() {
		c.now = time.Unix(1700000000, 0)
	}
	c.now = c.now.Add(5 * time.Second)
	return c.now
}
