// Package config loads application configuration from environment
// variables with sensible defaults for local development.
//
// All variables are prefixed with PULSE_. Durations use Go duration
// syntax (e.g. "30s", "5m").
package config
