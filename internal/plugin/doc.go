// ABOUTME: Package plugin executes listener and action templates.
// ABOUTME: Handlers run against a capability-scoped context, never the hub.

// Package plugin is the execution runtime for file-described templates.
// A template names a handler; handlers live in a fixed in-process dispatch
// table and receive a Capabilities value built fresh per invocation. Every
// invocation is timed and recorded in the append-only audit log; handler
// errors and panics become failure results, never crashes.
package plugin
