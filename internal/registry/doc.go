// ABOUTME: Package registry discovers and hot-reloads file-based plugin templates.
// ABOUTME: One registry instance per template kind, reloaded wholesale on change.

// Package registry loads plugin templates (listeners, actions, UI states,
// components) from JSON files in a designated directory. Reload is always
// full load-and-swap: the in-memory map is replaced atomically under lock,
// so readers never observe a partially updated set and a re-loaded id
// replaces its previous entry. Files with a leading underscore are private
// and skipped; files that fail validation are logged and skipped without
// aborting the rest of the load.
package registry
