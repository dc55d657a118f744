// ABOUTME: Package hub is the broadcast layer between sessions and viewers.
// ABOUTME: Websocket fan-out, session registry, inbox poller, UI-state REST.

// Package hub connects websocket viewers to sessions, templates and state.
// Each connection gets a buffered writer goroutine so a slow client only
// drops itself. Sessions are created lazily, swept after a grace window
// once nobody watches them, and revived by a re-subscribe. The inbox
// poller broadcasts snapshots on a fixed interval and fires listener
// templates for newly seen emails.
package hub
