// Package httputil provides HTTP utilities for standardized
// request/response handling.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteSuccess(w, data)
//	httputil.WriteCreated(w, resource)
//
// Error responses:
//
//	httputil.WriteBadRequest(w, "Invalid input")
//	httputil.WriteNotFoundError(w, "Unknown operation")
//	httputil.WriteGatewayTimeout(w, "Query exceeded its timeout")
//
// # Request Parsing
//
//	var req CreateEventRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	hours, ok := httputil.ParseQueryIntOrError(w, r, "hours", 24)
//
// # Middleware
//
//	httputil.Chain(handler,
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger, metrics),
//	)
package httputil
