// Package sinks implements progress consumers: structured logging,
// Prometheus counters and run bookkeeping through a store.RunRepository.
package sinks
