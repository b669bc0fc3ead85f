package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dgreene/pulse/pkg/cache"
	"github.com/dgreene/pulse/pkg/observability"
)

// RefreshState is the coordinator's state machine:
// Idle -> Refreshing -> Idle.
type RefreshState int

const (
	RefreshIdle RefreshState = iota
	RefreshRunning
)

func (s RefreshState) String() string {
	if s == RefreshRunning {
		return "refreshing"
	}
	return "idle"
}

// ChangeNotifier fans a change notification out to connected observers.
type ChangeNotifier interface {
	Broadcast(v interface{}) int
}

// dependentKeyPatterns enumerates every cached variant derived from the
// materialized aggregates. Invalidation covers all parameterizations,
// not just the default dashboard key.
var dependentKeyPatterns = []string{
	"dashboard_metrics:*",
	"cohort_analysis:*",
	"funnel_analysis:*",
}

// Refresher periodically recomputes the materialized aggregates and
// invalidates dependent cache entries. A failed cycle leaves the cache
// untouched; entries self-expire via TTL, bounding staleness to at most
// one TTL period plus one refresh period.
type Refresher struct {
	db       *sql.DB
	store    cache.Store
	notifier ChangeNotifier
	logger   *observability.Logger
	metrics  *observability.Metrics
	interval time.Duration
	timeout  time.Duration

	cron *cron.Cron

	mu       sync.Mutex
	state    RefreshState
	lastRun  time.Time
	lastErr  error
	runCount int64
}

// NewRefresher constructs the coordinator. It does not start the timer;
// call Start.
func NewRefresher(db *sql.DB, store cache.Store, notifier ChangeNotifier, interval time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Refresher {
	return &Refresher{
		db:       db,
		store:    store,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		interval: interval,
		timeout:  2 * time.Minute,
	}
}

// Start begins the fixed-period refresh timer. A failed cycle never
// stops the timer; the next tick still fires.
func (r *Refresher) Start() error {
	if r.cron != nil {
		return fmt.Errorf("refresher already started")
	}

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", r.interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.Refresh(ctx); err != nil {
			r.logger.WithError(err).Warn("scheduled refresh cycle failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}

	c.Start()
	r.cron = c
	r.logger.Infof("refresh coordinator started, interval %s", r.interval)
	return nil
}

// Stop halts the timer and waits for an in-flight cycle to finish or
// the context to expire.
func (r *Refresher) Stop(ctx context.Context) {
	if r.cron == nil {
		return
	}
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		r.logger.Warn("refresh coordinator stop timed out with a cycle in flight")
	}
	r.logger.Info("refresh coordinator stopped")
}

// Refresh runs one cycle: recompute the materialized aggregates, then
// invalidate the dependent cache keys, then notify observers. The
// manual trigger and the periodic timer both call this method.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.state == RefreshRunning {
		r.mu.Unlock()
		return ErrRefreshInProgress
	}
	r.state = RefreshRunning
	r.mu.Unlock()

	start := time.Now()
	err := r.runCycle(ctx)

	r.mu.Lock()
	r.state = RefreshIdle
	r.lastRun = start
	r.lastErr = err
	r.runCount++
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			r.metrics.RefreshCyclesTotal.WithLabelValues("failed").Inc()
		} else {
			r.metrics.RefreshCyclesTotal.WithLabelValues("success").Inc()
		}
	}
	return err
}

func (r *Refresher) runCycle(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, refreshViewsSQL); err != nil {
		// Cache entries stay untouched; they self-expire via TTL.
		return fmt.Errorf("refresh materialized views: %w", err)
	}

	evicted := 0
	for _, pattern := range dependentKeyPatterns {
		n, err := r.store.DeletePattern(ctx, pattern)
		evicted += n
		if err != nil {
			// The cycle is reported as failed and retried on the next
			// tick; any keys left behind expire via TTL.
			return fmt.Errorf("invalidate pattern %s: %w", pattern, err)
		}
	}

	if r.metrics != nil {
		r.metrics.RefreshKeysEvicted.Add(float64(evicted))
	}

	if r.notifier != nil {
		delivered := r.notifier.Broadcast(map[string]interface{}{
			"type":      "data_refreshed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		if r.metrics != nil {
			r.metrics.WSBroadcastsTotal.Inc()
		}
		r.logger.WithFields(map[string]interface{}{
			"evicted_keys": evicted,
			"notified":     delivered,
		}).Info("refresh cycle completed")
	} else {
		r.logger.WithField("evicted_keys", evicted).Info("refresh cycle completed")
	}

	return nil
}

// Status reports the coordinator's current state for diagnostics.
type RefreshStatus struct {
	State    string     `json:"state"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
	RunCount int64      `json:"run_count"`
}

// Status returns a snapshot of the coordinator state
func (r *Refresher) Status() RefreshStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := RefreshStatus{
		State:    r.state.String(),
		RunCount: r.runCount,
	}
	if !r.lastRun.IsZero() {
		t := r.lastRun
		st.LastRun = &t
	}
	if r.lastErr != nil {
		st.LastErr = r.lastErr.Error()
	}
	return st
}
