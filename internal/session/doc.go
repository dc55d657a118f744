// ABOUTME: Package session serializes conversation turns per session.
// ABOUTME: One queue, one pump goroutine, one subscriber set per session.

// Package session drives one conversation at a time per session id. Turns
// queue up and run strictly in order; the runner's event stream is
// translated into wire messages and broadcast to every subscriber as the
// events arrive. Errors always surface as an explicit error message plus
// a failed result.
package session
