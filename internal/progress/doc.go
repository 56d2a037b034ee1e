// Package progress carries the export run's diagnostic stream. The aggregator
// emits one Event per task outcome and per degraded field; a Hub batches them
// on a background goroutine and fans them out to pluggable sinks (structured
// logs, Prometheus counters, run bookkeeping in Postgres). Emitting never
// blocks the pipeline.
package progress
