package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dgreene/pulse/pkg/cache"
	"github.com/dgreene/pulse/pkg/observability"
)

// Service is the cache-aside orchestrator. For cacheable operations it
// checks the cache store, computes on miss via the executor, and
// populates the cache best-effort. Cache-layer faults are fully
// absorbed here; relational and timeout faults propagate as
// distinguishable failure kinds.
type Service struct {
	catalog  *Catalog
	executor Executor
	store    cache.Store
	logger   *observability.Logger
	metrics  *observability.Metrics

	// group deduplicates concurrent recomputes of the same cache key:
	// at most one in-flight query per key, late arrivals share its
	// result.
	group singleflight.Group
}

// NewService constructs the orchestrator. The cache store and metrics
// are injected capabilities; store may be nil to disable caching
// entirely (every call executes fresh).
func NewService(catalog *Catalog, executor Executor, store cache.Store, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		catalog:  catalog,
		executor: executor,
		store:    store,
		logger:   logger,
		metrics:  metrics,
	}
}

// DashboardMetrics returns hourly dashboard metrics (cached).
func (s *Service) DashboardMetrics(ctx context.Context, p DashboardParams) ([]Row, error) {
	return s.getOrCompute(ctx, p)
}

// CohortAnalysis returns cohort retention (cached).
func (s *Service) CohortAnalysis(ctx context.Context, p CohortParams) ([]Row, error) {
	return s.getOrCompute(ctx, p)
}

// FunnelAnalysis returns step-by-step funnel conversion (cached).
func (s *Service) FunnelAnalysis(ctx context.Context, p FunnelParams) ([]Row, error) {
	return s.getOrCompute(ctx, p)
}

// RollingRevenue returns daily revenue trends. Never cached: freshness
// matters more than latency here.
func (s *Service) RollingRevenue(ctx context.Context, p RevenueParams) ([]Row, error) {
	return s.getOrCompute(ctx, p)
}

// RFMAnalysis returns customer segmentation. Never cached: the
// parameter space is too large to cache effectively.
func (s *Service) RFMAnalysis(ctx context.Context, p RFMParams) ([]Row, error) {
	return s.getOrCompute(ctx, p)
}

// CustomQueryResult wraps an allowlisted diagnostic query result with
// execution statistics.
type CustomQueryResult struct {
	QueryType       string  `json:"query_type"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
	RowCount        int     `json:"rows_count"`
	Data            []Row   `json:"data"`
}

// CustomQuery executes one of the parameter-light diagnostic operations
// by name. Anything outside the allowlist fails with
// ErrUnknownOperation before touching the executor.
func (s *Service) CustomQuery(ctx context.Context, queryType string, days int) (*CustomQueryResult, error) {
	var params Params
	switch queryType {
	case OpAnomalyDetection:
		if days == 0 {
			days = 7
		}
		params = AnomalyParams{Days: days}
	case OpTopProducts:
		params = TopProductsParams{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, queryType)
	}

	start := time.Now()
	rows, err := s.getOrCompute(ctx, params)
	if err != nil {
		return nil, err
	}

	return &CustomQueryResult{
		QueryType:       queryType,
		ExecutionTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
		RowCount:        len(rows),
		Data:            rows,
	}, nil
}

// getOrCompute applies the cache-aside protocol: validate, check cache,
// compute on miss, populate cache, return. Parameter validation happens
// before any cache lookup or query execution.
func (s *Service) getOrCompute(ctx context.Context, p Params) ([]Row, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	op, err := s.catalog.Lookup(p.Operation())
	if err != nil {
		return nil, err
	}

	if !op.Cacheable || s.store == nil {
		return s.execute(ctx, op, p)
	}

	key := p.CacheKey()
	if rows, ok := s.cacheGet(ctx, op.Name, key); ok {
		if s.metrics != nil {
			s.metrics.CacheHitsTotal.WithLabelValues(op.Name).Inc()
		}
		return rows, nil
	}
	if s.metrics != nil {
		s.metrics.CacheMissesTotal.WithLabelValues(op.Name).Inc()
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		rows, err := s.execute(ctx, op, p)
		if err != nil {
			return nil, err
		}
		s.cacheSet(ctx, op.Name, key, rows, op.TTL)
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Row), nil
}

// execute runs the operation via the executor and classifies failures.
func (s *Service) execute(ctx context.Context, op Operation, p Params) ([]Row, error) {
	timeout := s.catalog.TimeoutFor(op)

	start := time.Now()
	rows, err := s.executor.Execute(ctx, op.SQL, p.args(), timeout)
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.QueryDuration.WithLabelValues(op.Name).Observe(elapsed.Seconds())
	}

	if err != nil {
		if isTimeoutCause(err) {
			if s.metrics != nil {
				s.metrics.QueryErrorsTotal.WithLabelValues(op.Name, "timeout").Inc()
			}
			return nil, &QueryTimeoutError{Operation: op.Name, Timeout: timeout, Err: err}
		}
		if s.metrics != nil {
			s.metrics.QueryErrorsTotal.WithLabelValues(op.Name, "query").Inc()
		}
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"operation":   op.Name,
		"duration_ms": elapsed.Milliseconds(),
		"rows":        len(rows),
	}).Debug("analytical query executed")

	return rows, nil
}

// cacheGet reads and deserializes a cached result. Any cache-layer
// fault, including a corrupt payload, is treated as a miss; corrupt
// entries are deleted so they do not mask future writes.
func (s *Service) cacheGet(ctx context.Context, operation, key string) ([]Row, bool) {
	payload, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			if s.metrics != nil {
				s.metrics.CacheErrorsTotal.WithLabelValues(operation).Inc()
			}
			s.logger.WithError(err).WithField("key", key).Warn("cache read failed, treating as miss")
		}
		return nil, false
	}

	var rows []Row
	if err := json.Unmarshal(payload, &rows); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("corrupt cache entry, deleting")
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.WithError(delErr).WithField("key", key).Warn("failed to delete corrupt cache entry")
		}
		return nil, false
	}
	return rows, true
}

// cacheSet writes a computed result best-effort: a failure is logged
// and counted but never fails the request.
func (s *Service) cacheSet(ctx context.Context, operation, key string, rows []Row, ttl time.Duration) {
	payload, err := json.Marshal(rows)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("failed to serialize result for cache")
		return
	}
	if err := s.store.Set(ctx, key, payload, ttl); err != nil {
		if s.metrics != nil {
			s.metrics.CacheErrorsTotal.WithLabelValues(operation).Inc()
		}
		s.logger.WithError(err).WithField("key", key).Warn("cache write failed, serving uncached result")
	}
}
