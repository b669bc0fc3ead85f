package analytics

import (
	"context"
	"errors"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/dgreene/pulse/pkg/cache"
)

// Streaming counter keys maintained by ingestion-side collaborators.
// This package only reads them.
const (
	activeUsersKey     = "active_users:now"
	ordersLastHourKey  = "orders:last_hour"
	revenueLastHourKey = "revenue:last_hour"
	eventsPerSecondKey = "events:per_second"
)

// RealtimeMetrics is the read path over streaming counters. These are
// best-effort telemetry, not authoritative state.
type RealtimeMetrics struct {
	ActiveUsersNow  int64           `json:"active_users_now"`
	OrdersLastHour  int64           `json:"orders_last_hour"`
	RevenueLastHour decimal.Decimal `json:"revenue_last_hour"`
	EventsPerSecond float64         `json:"events_per_second"`
}

// Realtime reads the streaming counters. Absent keys yield zero values,
// never an error; an unreachable cache yields all-zero metrics.
func (s *Service) Realtime(ctx context.Context) RealtimeMetrics {
	m := RealtimeMetrics{RevenueLastHour: decimal.Zero}
	if s.store == nil {
		return m
	}

	m.ActiveUsersNow = s.counterInt(ctx, activeUsersKey)
	m.OrdersLastHour = s.counterInt(ctx, ordersLastHourKey)
	m.RevenueLastHour = s.counterDecimal(ctx, revenueLastHourKey)
	m.EventsPerSecond = s.counterFloat(ctx, eventsPerSecondKey)
	return m
}

func (s *Service) counterRaw(ctx context.Context, key string) (string, bool) {
	payload, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.WithError(err).WithField("key", key).Warn("realtime counter read failed")
		}
		return "", false
	}
	return string(payload), true
}

func (s *Service) counterInt(ctx context.Context, key string) int64 {
	raw, ok := s.counterRaw(ctx, key)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.logger.WithField("key", key).Warnf("malformed counter value %q", raw)
		return 0
	}
	return n
}

func (s *Service) counterFloat(ctx context.Context, key string) float64 {
	raw, ok := s.counterRaw(ctx, key)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.logger.WithField("key", key).Warnf("malformed counter value %q", raw)
		return 0
	}
	return f
}

func (s *Service) counterDecimal(ctx context.Context, key string) decimal.Decimal {
	raw, ok := s.counterRaw(ctx, key)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		s.logger.WithField("key", key).Warnf("malformed counter value %q", raw)
		return decimal.Zero
	}
	return d
}
