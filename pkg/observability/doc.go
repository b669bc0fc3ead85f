// Package observability provides structured logging and Prometheus
// metrics for the analytics serving layer.
package observability
