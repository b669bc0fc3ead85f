// Package analytics is the cache-aside serving core for precomputed
// analytical aggregates.
//
// # Overview
//
// Dashboard clients read expensive aggregates (hourly metrics, cohort
// retention, funnel conversion, revenue trends, RFM segments) that only
// need to reflect reality within a bounded staleness window. The
// Service answers each query from Redis when it can, recomputes via the
// Executor under a statement timeout when it cannot, and repopulates
// the cache best-effort. The Refresher periodically recomputes the
// underlying materialized views and evicts every dependent cache entry.
//
// # Components
//
//   - Catalog: the static allowlist of analytical operations. One typed
//     parameter struct per operation; query text never comes from
//     callers.
//   - Service: the cache-aside orchestrator, with per-key singleflight
//     so concurrent misses share one recompute.
//   - SQLExecutor: parameterized execution with a per-query
//     statement_timeout.
//   - Refresher: fixed-period refresh of materialized views plus
//     invalidation of all cached variants derived from them.
//   - Realtime: zero-default reads of streaming counters maintained by
//     the ingestion side.
//
// # Staleness contract
//
// No ordering is guaranteed between a write and a subsequent cached
// read. Staleness is bounded by the operation TTL, or by one TTL plus
// one refresh period when refresh invalidation fails.
package analytics
