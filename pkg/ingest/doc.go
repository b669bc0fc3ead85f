// Package ingest records incoming events and orders into the base
// tables that the analytical aggregates are built from.
//
// Writes here do not invalidate cached analytics. Cached reads reflect
// new data only after the next materialized view refresh; the realtime
// counter path covers the gap in between.
package ingest
