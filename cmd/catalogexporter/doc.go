// Package main hosts the catalog exporter entrypoint.
//
// Architecture overview:
//   - Input: one identifier per line from --input (or stdin). Blank lines are
//     skipped; duplicates are kept and resolved by the aggregator.
//   - Dispatcher & workers: every identifier is queued up front and a fixed
//     pool (pool.width, default 9) drains the queue. Each task acquires its own
//     browser session, probes the item's detail view for a marker element and,
//     when listed, extracts the six output fields.
//   - Aggregator: the single consumer of task outcomes. It writes the first row
//     per identifier to the CSV file, counts duplicates and failures, and emits
//     progress events to the hub.
//   - Delivery: after the file is closed it is hashed and optionally uploaded
//     (GCS or a local archive) and announced on Pub/Sub and/or a Redis stream.
//   - Operator server: with ops.addr set, /healthz, /readyz, /metrics and the
//     live run summary are served while the export runs.
//
// Quick checklist:
//   - Configure env vars: CATALOG_POOL_WIDTH, CATALOG_TIMEOUTS_PROBE,
//     CATALOG_SESSION_PROVIDER (chromedp, playwright or static),
//     CATALOG_OPS_ADDR, CATALOG_DB_DSN, CATALOG_DELIVERY_GCS_BUCKET,
//     CATALOG_PUBSUB_TOPIC and CATALOG_REDIS_ADDR as needed. A .env file in the
//     working directory is loaded first.
//   - Run locally: go run ./cmd/catalogexporter export --input skus.txt --output out.csv
package main
