// ABOUTME: Package queue provides the per-session turn queue.
// ABOUTME: Decouples turn arrival from the session pump that consumes turns.

// Package queue implements a closeable FIFO that hands items to blocked
// consumers in arrival order. A push either satisfies exactly one waiting
// consumer or appends to the backlog, never both. After Close, pushes fail
// and drained consumers observe completion instead of blocking forever.
package queue
