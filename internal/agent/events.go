// ABOUTME: Typed conversation events emitted by a Runner while driving a turn
// ABOUTME: Defines the Runner contract the session layer consumes

package agent

import (
	"context"
	"encoding/json"
	"time"
)

// EventType indicates the kind of conversation event.
type EventType int

const (
	// EventSystemInit is emitted once at the start of a turn and carries
	// the conversation handle used to resume on the next turn.
	EventSystemInit EventType = iota
	EventText
	EventToolUse
	EventToolResult
	EventResult
	EventError
)

// Event is one element of a turn's event stream.
type Event struct {
	Type       EventType
	Handle     string // EventSystemInit only
	Text       string
	ToolUse    *ToolUseEvent
	ToolResult *ToolResultEvent
	Result     *ResultEvent
	Error      string
}

// ToolUseEvent represents a tool invocation by the model.
type ToolUseEvent struct {
	ID        string
	Name      string
	InputJSON json.RawMessage
}

// ToolResultEvent represents the outcome of a tool invocation.
type ToolResultEvent struct {
	ID      string
	Output  string
	IsError bool
}

// ResultEvent terminates a turn.
type ResultEvent struct {
	Success  bool
	CostUSD  float64
	Duration time.Duration
	Error    string
}

// TurnRequest is one user turn handed to a Runner.
type TurnRequest struct {
	SessionID string
	// Handle resumes a prior conversation; empty starts a fresh one.
	Handle  string
	Content string
}

// Runner drives the external model for one turn. The returned channel is
// closed after the terminal result (or error) event. Cancelling ctx aborts
// the turn; the channel still closes.
type Runner interface {
	Run(ctx context.Context, req TurnRequest) (<-chan *Event, error)
}
