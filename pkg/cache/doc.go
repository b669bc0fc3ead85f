// Package cache provides the key/value store used by the analytics
// serving layer for cached query results and realtime counters.
//
// The Store interface is deliberately small: single-key get/set/delete,
// atomic increments, TTL expiry. No multi-key transactions are assumed.
package cache
