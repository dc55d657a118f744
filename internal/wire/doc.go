// ABOUTME: Package wire defines the websocket JSON message vocabulary.
// ABOUTME: Shared by the hub and the session layer; clients mirror it.

// Package wire holds the typed client/server message structs and the
// envelope type lookup. Every message carries a type field; unknown types
// are answered with an error message, never silence.
package wire
