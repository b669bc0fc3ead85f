// Package api exposes the HTTP surface of the analytics serving layer.
//
// # Endpoints
//
// Analytics reads:
//
//	GET /analytics/dashboard?hours=24
//	GET /analytics/cohorts?weeks=12&source=google
//	GET /analytics/funnel?days=7
//	GET /analytics/revenue?days=30
//	GET /analytics/rfm?limit=1000
//	GET /analytics/realtime
//	POST /analytics/custom-query
//
// Ingestion:
//
//	POST /events
//	POST /orders
//
// Operations:
//
//	GET /health
//	GET /metrics
//	POST /admin/refresh-views
//	GET /admin/refresh-status
//	GET /ws
//
// # Error Mapping
//
// Service errors map onto HTTP statuses: parameter validation failures
// are 400, unknown operations 404, refresh collisions 409, query
// timeouts 504. Cache unavailability never surfaces as an error on the
// read path.
package api
