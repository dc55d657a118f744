// ABOUTME: Package store is the persistence boundary for switchboard.
// ABOUTME: Defines entity types and the Store interface over SQLite.

// Package store persists UI state blobs, component instances and the email
// table behind a narrow key-value-flavored interface. Values are whole JSON
// documents; mutation is full replacement, never partial patch. ErrNotFound
// is a normal result, translated to 404 or error messages only at the edges.
package store
