// Package api hosts the operator HTTP server that runs alongside an export.
// Notable routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the live summary of the export in progress.
//   - GET /v1/runs and /v1/runs/{run_id} for run history read through the
//     store.RunRepository interface when a database is configured.
package api
