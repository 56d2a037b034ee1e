package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
	"github.com/JakeFAU/catalog-exporter/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StageTaskFound, SKU: "A"},
		{RunID: runID, TS: now, Stage: progress.StageFieldDegraded, SKU: "A", Field: catalog.FieldImageURL},
		{RunID: runID, TS: now, Stage: progress.StageTaskNotListed, SKU: "B"},
		{RunID: runID, TS: now, Stage: progress.StageTaskFailed, SKU: "C"},
		{RunID: runID, TS: now, Stage: progress.StageTaskDuplicate, SKU: "A"},
		{RunID: runID, TS: now.Add(time.Minute), Stage: progress.StageRunDone, Dur: time.Minute},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsStarted), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.runsRunning), 1e-9)
	for _, outcome := range []string{"found", "not_listed", "failed", "duplicate"} {
		require.InDelta(t, 1.0, testutil.ToFloat64(sink.tasksCompleted.WithLabelValues(outcome)), 1e-9, outcome)
	}
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.fieldsDegraded.WithLabelValues("image_url")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.runDuration, "exporter_run_duration_seconds"))
}

func TestPrometheusSinkSharesCollectorsOnReregistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	first, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	second, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, second.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart},
	}))
	require.InDelta(t, 1.0, testutil.ToFloat64(first.runsStarted), 1e-9)
}

func TestPrometheusSinkConflictingRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "exporter_runs_started_total",
		Help: "Conflicting help text.",
	})))
	_, err := NewPrometheusSink(reg)
	require.Error(t, err)
}
