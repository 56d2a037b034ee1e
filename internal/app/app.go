// Package app builds the exporter's dependencies from configuration and runs
// one export end to end.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-exporter/internal/aggregator"
	"github.com/JakeFAU/catalog-exporter/internal/api"
	"github.com/JakeFAU/catalog-exporter/internal/catalog"
	"github.com/JakeFAU/catalog-exporter/internal/clock/system"
	"github.com/JakeFAU/catalog-exporter/internal/config"
	"github.com/JakeFAU/catalog-exporter/internal/delivery"
	"github.com/JakeFAU/catalog-exporter/internal/dispatcher"
	"github.com/JakeFAU/catalog-exporter/internal/extractor"
	"github.com/JakeFAU/catalog-exporter/internal/hash/sha256"
	iduuid "github.com/JakeFAU/catalog-exporter/internal/id/uuid"
	"github.com/JakeFAU/catalog-exporter/internal/metrics"
	"github.com/JakeFAU/catalog-exporter/internal/progress"
	progresssinks "github.com/JakeFAU/catalog-exporter/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/catalog-exporter/internal/publisher/pubsub"
	"github.com/JakeFAU/catalog-exporter/internal/publisher/redisstream"
	"github.com/JakeFAU/catalog-exporter/internal/session/headless"
	"github.com/JakeFAU/catalog-exporter/internal/session/playwright"
	"github.com/JakeFAU/catalog-exporter/internal/session/static"
	"github.com/JakeFAU/catalog-exporter/internal/sink/csvfile"
	gcsstorage "github.com/JakeFAU/catalog-exporter/internal/storage/gcs"
	localstorage "github.com/JakeFAU/catalog-exporter/internal/storage/local"
	pgstore "github.com/JakeFAU/catalog-exporter/internal/storage/postgres"
	"github.com/JakeFAU/catalog-exporter/internal/store"
	"github.com/JakeFAU/catalog-exporter/internal/telemetry"
)

const tracerName = "github.com/JakeFAU/catalog-exporter"

// App contains the exporter's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  catalog.Clock
	ids    *iduuid.Generator

	registerer prometheus.Registerer
	sessions   catalog.SessionProvider
	dispatch   *dispatcher.Dispatcher
	hub        *progress.Hub
	runStore   *pgstore.RunStore
	deliverer  *delivery.Deliverer
	tracer     trace.Tracer

	opsMu     sync.Mutex
	opsServer *api.Server

	closers []func() error
}

// Option customizes Build.
type Option func(*App)

// WithRegisterer registers progress collectors on reg instead of the default
// registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// WithSessionProvider replaces the configured session provider.
func WithSessionProvider(p catalog.SessionProvider) Option {
	return func(a *App) { a.sessions = p }
}

// WithTracer records run and task spans on t. Configured tracing replaces it.
func WithTracer(t trace.Tracer) Option {
	return func(a *App) { a.tracer = t }
}

// WithClock replaces the system clock.
func WithClock(c catalog.Clock) Option {
	return func(a *App) { a.clock = c }
}

// Build creates the application's dependencies. Startup errors are returned
// after releasing anything already opened.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:        cfg,
		logger:     logger,
		clock:      system.New(),
		ids:        iduuid.New(),
		registerer: prometheus.DefaultRegisterer,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	metrics.Init()

	if err := a.build(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	if err := a.setupTracing(ctx); err != nil {
		return err
	}
	if a.sessions == nil {
		if err := a.setupSessions(); err != nil {
			return err
		}
	}
	if err := a.setupDatabase(ctx); err != nil {
		return err
	}
	if err := a.setupProgress(); err != nil {
		return err
	}
	if err := a.setupDelivery(ctx); err != nil {
		return err
	}
	a.dispatch = dispatcher.New(
		dispatcher.Config{Width: a.cfg.Pool.Width, Tracer: a.tracer},
		a.sessions,
		extractor.NewProber(a.cfg.Schema, a.cfg.Timeouts.Probe),
		extractor.New(a.cfg.Schema, a.cfg.Timeouts.Field),
		a.clock,
		a.logger,
	)
	a.logger.Info("exporter ready",
		zap.String("provider", a.cfg.Session.Provider),
		zap.Int("width", a.dispatch.Width()),
		zap.Duration("probe_timeout", a.cfg.Timeouts.Probe),
		zap.Duration("field_timeout", a.cfg.Timeouts.Field),
	)
	return nil
}

func (a *App) setupTracing(ctx context.Context) error {
	tcfg := a.cfg.Tracing
	if !tcfg.Enabled {
		return nil
	}
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		ServiceName: tcfg.ServiceName,
		ProjectID:   tcfg.ProjectID,
		SampleRatio: tcfg.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing init failed: %w", err)
	}
	telemetry.Install(tp)
	a.tracer = tp.Tracer(tracerName)
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	})
	a.logger.Info("tracing enabled",
		zap.String("service", tcfg.ServiceName),
		zap.String("project", tcfg.ProjectID),
		zap.Float64("sample_ratio", tcfg.SampleRatio),
	)
	return nil
}

func (a *App) setupSessions() error {
	hcfg := a.cfg.Headless
	switch a.cfg.Session.Provider {
	case config.ProviderStatic:
		p, err := static.NewFromDir(a.cfg.Session.StaticDir, a.cfg.Schema)
		if err != nil {
			return fmt.Errorf("static session provider init failed: %w", err)
		}
		a.sessions = p
		a.logger.Info("using static session provider", zap.String("dir", a.cfg.Session.StaticDir))
	case config.ProviderPlaywright:
		p, err := playwright.New(playwright.Config{
			UserAgent:         hcfg.UserAgent,
			ExecPath:          hcfg.ExecPath,
			Headful:           hcfg.Headful,
			NavigationTimeout: hcfg.NavigationTimeout,
			ActionTimeout:     hcfg.ActionTimeout,
		})
		if err != nil {
			return fmt.Errorf("playwright session provider init failed: %w", err)
		}
		a.sessions = p
		a.closers = append(a.closers, p.Close)
		a.logger.Info("using playwright session provider")
	default:
		p, err := headless.New(headless.Config{
			UserAgent:         hcfg.UserAgent,
			ExecPath:          hcfg.ExecPath,
			Headful:           hcfg.Headful,
			NavigationTimeout: hcfg.NavigationTimeout,
			ActionTimeout:     hcfg.ActionTimeout,
		})
		if err != nil {
			return fmt.Errorf("headless session provider init failed: %w", err)
		}
		a.sessions = p
		a.closers = append(a.closers, func() error { p.Close(); return nil })
		a.logger.Info("using chromedp session provider")
	}
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Debug("no db.dsn configured, run bookkeeping disabled")
		return nil
	}
	s, err := pgstore.NewRunStore(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	a.runStore = s
	a.closers = append(a.closers, func() error { s.Close(); return nil })
	a.logger.Info("run store initialized")
	return nil
}

func (a *App) setupProgress() error {
	promSink, err := progresssinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
	}
	if a.runStore != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.runStore, a.logger.Named("progress_store")))
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Debug("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
	)
	return nil
}

func (a *App) setupDelivery(ctx context.Context) error {
	dcfg := a.cfg.Delivery
	var blobs catalog.BlobStore
	switch {
	case dcfg.GCSBucket != "":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		blobs, err = gcsstorage.New(client, gcsstorage.Config{Bucket: dcfg.GCSBucket, Prefix: dcfg.Prefix})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("uploading exports to GCS", zap.String("bucket", dcfg.GCSBucket))
	case dcfg.ArchiveDir != "":
		archive, err := localstorage.New(localstorage.Config{BaseDir: dcfg.ArchiveDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		blobs = archive
		a.logger.Info("archiving exports locally", zap.String("dir", dcfg.ArchiveDir))
	}

	var targets []delivery.Target
	if a.cfg.PubSub.Topic != "" {
		pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic)
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		targets = append(targets, delivery.Target{Name: "pubsub", Topic: a.cfg.PubSub.Topic, Publisher: pub})
		a.logger.Info("pubsub notifications enabled",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.Topic),
		)
	}
	if a.cfg.Redis.Addr != "" {
		pub, err := redisstream.Open(redisstream.Config{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			MaxLen:   a.cfg.Redis.MaxLen,
		})
		if err != nil {
			return fmt.Errorf("redis publisher init failed: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		targets = append(targets, delivery.Target{Name: "redis", Topic: a.cfg.Redis.Stream, Publisher: pub})
		a.logger.Info("redis stream notifications enabled", zap.String("stream", a.cfg.Redis.Stream))
	}

	a.deliverer = delivery.New(
		delivery.Config{ContentType: dcfg.ContentType},
		sha256.New(),
		blobs,
		targets,
		a.clock,
		a.logger,
	)
	return nil
}

// RunStore exposes the run repository, or nil when no database is configured.
func (a *App) RunStore() store.RunRepository {
	if a.runStore == nil {
		return nil
	}
	return a.runStore
}

// Run exports ids to the configured output file and returns the run summary.
// Per-item failures never fail the run; a write, close or delivery failure
// does, as does cancellation of ctx.
func (a *App) Run(ctx context.Context, ids []catalog.Identifier) (summary catalog.Summary, err error) {
	runID, err := a.ids.NewRunID()
	if err != nil {
		return catalog.Summary{}, fmt.Errorf("run id: %w", err)
	}
	ctx, span := a.tracer.Start(ctx, "export.run", trace.WithAttributes(
		attribute.String("run.id", runID.String()),
		attribute.Int("run.submitted", len(ids)),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("run.found", summary.Found),
			attribute.Int("run.failed", summary.Failed),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	logger := a.logger.With(zap.String("run_id", runID.String()))
	started := a.clock.Now()

	writer, err := csvfile.Create(a.cfg.Output.Path)
	if err != nil {
		return catalog.Summary{}, err
	}
	agg := aggregator.New(runID, len(ids), writer, a.hub, a.clock, logger.Named("aggregator"))

	ops, err := a.startOps(runID, started, agg)
	if err != nil {
		_ = writer.Close()
		return catalog.Summary{}, err
	}
	if ops != nil {
		defer a.stopOps(ops)
	}

	a.emitRun(runID, progress.StageRunStart, 0, "", catalog.Summary{Submitted: len(ids)})
	logger.Info("export started",
		zap.Int("submitted", len(ids)),
		zap.String("output", a.cfg.Output.Path),
	)

	results, err := a.dispatch.Run(ctx, ids)
	if err != nil {
		_ = writer.Close()
		a.finish(logger, runID, started, agg.Summary(), err)
		return agg.Summary(), err
	}
	if ops != nil {
		ops.SetReady(true)
	}
	summary, consumeErr := agg.Consume(results)
	runErr := errors.Join(consumeErr, writer.Close(), ctx.Err())

	if runErr == nil {
		res, err := a.deliverer.Deliver(ctx, runID.String(), a.cfg.Output.Path, writer.Rows(), summary)
		if err != nil {
			runErr = fmt.Errorf("deliver export: %w", err)
		} else {
			logger.Info("export delivered",
				zap.String("sha256", res.Notice.SHA256),
				zap.String("uri", res.Notice.URI),
				zap.Int("notices", len(res.MessageIDs)),
			)
		}
	}
	a.finish(logger, runID, started, summary, runErr)
	return summary, runErr
}

func (a *App) finish(logger *zap.Logger, runID uuid.UUID, started time.Time, summary catalog.Summary, runErr error) {
	dur := a.clock.Now().Sub(started)
	fields := []zap.Field{
		zap.Int("submitted", summary.Submitted),
		zap.Int("found", summary.Found),
		zap.Int("not_listed", summary.NotListed),
		zap.Int("failed", summary.Failed),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("degraded_fields", summary.DegradedFields),
		zap.Int("write_errors", summary.WriteErrors),
		zap.Duration("duration", dur),
	}
	if runErr != nil {
		a.emitRun(runID, progress.StageRunError, dur, runErr.Error(), summary)
		logger.Error("export failed", append(fields, zap.Error(runErr))...)
		return
	}
	a.emitRun(runID, progress.StageRunDone, dur, "", summary)
	logger.Info("export finished", fields...)
}

func (a *App) emitRun(runID uuid.UUID, stage progress.Stage, dur time.Duration, note string, summary catalog.Summary) {
	a.hub.Emit(progress.Event{
		RunID:   progress.UUIDToBytes(runID),
		TS:      a.clock.Now(),
		Stage:   stage,
		Dur:     dur,
		Note:    note,
		Summary: summary,
	})
}

func (a *App) startOps(runID uuid.UUID, started time.Time, src api.SummarySource) (*api.Server, error) {
	if a.cfg.Ops.Addr == "" {
		return nil, nil
	}
	srv := api.NewServer(
		api.Config{CORSOrigins: a.cfg.Ops.CORSOrigins, Logger: a.logger},
		api.LiveRun{ID: runID, StartedAt: started, Source: src},
		a.RunStore(),
	)
	if err := srv.Listen(a.cfg.Ops.Addr); err != nil {
		return nil, fmt.Errorf("operator server: %w", err)
	}
	a.opsMu.Lock()
	a.opsServer = srv
	a.opsMu.Unlock()
	return srv, nil
}

// OpsAddr reports the operator server's bound address while a run is in
// progress, or "" otherwise.
func (a *App) OpsAddr() string {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	if a.opsServer == nil {
		return ""
	}
	return a.opsServer.Addr()
}

func (a *App) stopOps(srv *api.Server) {
	a.opsMu.Lock()
	a.opsServer = nil
	a.opsMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Warn("operator server shutdown failed", zap.Error(err))
	}
}

// Close flushes the progress stream and releases every client Build opened.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	errs = append(errs, a.closeAll())
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
