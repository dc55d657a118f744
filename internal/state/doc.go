// ABOUTME: Package state is the persistent keyed UI-state store.
// ABOUTME: Whole-value writes with audit records and synchronous fan-out.

// Package state layers template-aware reads and change notification over
// the persistence boundary. Reads fall back to the owning template's
// declared initial value without persisting it; every successful write
// appends one audit record and notifies every subscriber exactly once,
// even when another subscriber misbehaves.
package state
