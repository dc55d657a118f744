// ABOUTME: Package agent defines the boundary to the external model runtime.
// ABOUTME: Sessions drive a Runner; plugin handlers delegate through SubAgent.

// Package agent treats the language model as an opaque streaming generator.
// A Runner turns one submitted turn into an ordered stream of typed events,
// terminated by a result event. The conversation handle carried on the
// system/init event lets the next turn continue the same conversation.
//
// SubAgent is the recursive delegation point: plugin handlers hand a prompt
// and an output schema to a (usually cheaper) model and get back a
// schema-checked JSON document.
package agent
