// Package delivery hands a finished export file to downstream consumers: it
// digests the file, optionally uploads it, and sends one completion notice per
// configured target. Delivery runs only after the file is closed, so it never
// observes a partial export.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
)

const defaultContentType = "text/csv"

// Target is one completion notification destination.
type Target struct {
	// Name labels the target in logs, e.g. "pubsub" or "redis".
	Name      string
	Topic     string
	Publisher catalog.Publisher
}

// Config tunes delivery.
type Config struct {
	ContentType string
}

// Notice is the payload published to every target.
type Notice struct {
	RunID       string          `json:"run_id"`
	File        string          `json:"file"`
	URI         string          `json:"uri,omitempty"`
	SHA256      string          `json:"sha256"`
	Rows        int             `json:"rows"`
	Summary     catalog.Summary `json:"summary"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Result reports what delivery did.
type Result struct {
	Notice     Notice
	MessageIDs map[string]string
}

// Deliverer performs post-run delivery.
type Deliverer struct {
	cfg     Config
	hasher  catalog.Hasher
	store   catalog.BlobStore
	targets []Target
	clock   catalog.Clock
	logger  *zap.Logger
}

// New builds a Deliverer. store may be nil to skip uploading.
func New(
	cfg Config,
	hasher catalog.Hasher,
	store catalog.BlobStore,
	targets []Target,
	clock catalog.Clock,
	logger *zap.Logger,
) *Deliverer {
	if cfg.ContentType == "" {
		cfg.ContentType = defaultContentType
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deliverer{
		cfg:     cfg,
		hasher:  hasher,
		store:   store,
		targets: targets,
		clock:   clock,
		logger:  logger.Named("delivery"),
	}
}

// Deliver digests path, uploads it when a store is configured and notifies
// every target. A failed hash or upload stops delivery; notification errors
// are collected so one unreachable target does not starve the others.
func (d *Deliverer) Deliver(ctx context.Context, runID, path string, rows int, summary catalog.Summary) (Result, error) {
	digest, err := d.digest(path)
	if err != nil {
		return Result{}, err
	}
	notice := Notice{
		RunID:   runID,
		File:    filepath.Base(path),
		SHA256:  digest,
		Rows:    rows,
		Summary: summary,
	}

	if d.store != nil {
		uri, err := d.upload(ctx, runID, path)
		if err != nil {
			return Result{Notice: notice}, err
		}
		notice.URI = uri
		d.logger.Info("export uploaded", zap.String("run_id", runID), zap.String("uri", uri))
	}
	notice.CompletedAt = d.clock.Now()

	result := Result{Notice: notice, MessageIDs: make(map[string]string, len(d.targets))}
	var errs []error
	for _, target := range d.targets {
		id, err := target.Publisher.Publish(ctx, target.Topic, notice)
		if err != nil {
			d.logger.Error("completion notice failed",
				zap.String("run_id", runID),
				zap.String("target", target.Name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("notify %s: %w", target.Name, err))
			continue
		}
		result.MessageIDs[target.Name] = id
		d.logger.Info("completion notice sent",
			zap.String("run_id", runID),
			zap.String("target", target.Name),
			zap.String("message_id", id),
		)
	}
	return result, errors.Join(errs...)
}

func (d *Deliverer) digest(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path is the run's own output file
	if err != nil {
		return "", fmt.Errorf("open export: %w", err)
	}
	defer func() { _ = f.Close() }()
	digest, err := d.hasher.HashReader(f)
	if err != nil {
		return "", fmt.Errorf("hash export: %w", err)
	}
	return digest, nil
}

func (d *Deliverer) upload(ctx context.Context, runID, path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path is the run's own output file
	if err != nil {
		return "", fmt.Errorf("open export: %w", err)
	}
	defer func() { _ = f.Close() }()
	object := runID + "/" + filepath.Base(path)
	uri, err := d.store.PutObject(ctx, object, d.cfg.ContentType, f)
	if err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}
	return uri, nil
}
