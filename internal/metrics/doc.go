// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Jobs processed by the worker pool, by outcome, and their latency
//   - Rows inserted and deleted by the series merger
//   - Pagination continuation pages
//   - Provider requests by outcome
//   - Stream events emitted, by event type
//   - Job queue depth
//
// All recording methods are safe to call on a nil *Collector.
package metrics
