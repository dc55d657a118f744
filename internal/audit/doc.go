// ABOUTME: Package audit is the append-only execution log.
// ABOUTME: One NDJSON file per (partition, calendar day), never rewritten.

// Package audit records every plugin invocation and state write as one
// newline-delimited JSON line under logs/<partition>/<YYYY-MM-DD>.ndjson.
// Files are append-only; deleting runtime state never touches audit history.
package audit
