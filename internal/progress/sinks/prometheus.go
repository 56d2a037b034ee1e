package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/catalog-exporter/internal/progress"
)

// PrometheusSink turns the event stream into run and task collectors.
type PrometheusSink struct {
	runsStarted    prometheus.Counter
	runsCompleted  *prometheus.CounterVec
	runsRunning    prometheus.Gauge
	runDuration    *prometheus.HistogramVec
	tasksCompleted *prometheus.CounterVec
	fieldsDegraded *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against reg (the default
// registerer when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exporter_runs_started_total",
			Help: "Export runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exporter_runs_completed_total",
			Help: "Export runs completed, partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exporter_runs_running",
			Help: "Export runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exporter_run_duration_seconds",
			Help:    "Wall time per completed export run.",
			Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"result"}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exporter_tasks_completed_total",
			Help: "Task outcomes consumed by the aggregator, partitioned by outcome.",
		}, []string{"outcome"}),
		fieldsDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exporter_fields_degraded_total",
			Help: "Fields left empty after a soft extraction failure.",
		}, []string{"field"}),
	}
	var err error
	if s.runsStarted, err = register(reg, s.runsStarted); err != nil {
		return nil, err
	}
	if s.runsCompleted, err = register(reg, s.runsCompleted); err != nil {
		return nil, err
	}
	if s.runsRunning, err = register(reg, s.runsRunning); err != nil {
		return nil, err
	}
	if s.runDuration, err = register(reg, s.runDuration); err != nil {
		return nil, err
	}
	if s.tasksCompleted, err = register(reg, s.tasksCompleted); err != nil {
		return nil, err
	}
	if s.fieldsDegraded, err = register(reg, s.fieldsDegraded); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds c to reg, reusing the collector already registered under the
// same descriptor so a process can build more than one sink.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register progress collector: %w", err)
	}
	return c, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			s.runsRunning.Inc()
		case progress.StageRunDone:
			s.finishRun(evt, "success")
		case progress.StageRunError:
			s.finishRun(evt, "error")
		case progress.StageTaskFound:
			s.tasksCompleted.WithLabelValues("found").Inc()
		case progress.StageTaskNotListed:
			s.tasksCompleted.WithLabelValues("not_listed").Inc()
		case progress.StageTaskFailed:
			s.tasksCompleted.WithLabelValues("failed").Inc()
		case progress.StageTaskDuplicate:
			s.tasksCompleted.WithLabelValues("duplicate").Inc()
		case progress.StageFieldDegraded:
			s.fieldsDegraded.WithLabelValues(string(evt.Field)).Inc()
		}
	}
	return nil
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	s.runsRunning.Dec()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// Close implements progress.Sink; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
