// ABOUTME: Runner implementation backed by the Anthropic Messages API
// ABOUTME: Keeps per-handle message history so retained handles resume context

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
)

// AnthropicOptions configures the AnthropicRunner.
type AnthropicOptions struct {
	Model     string
	MaxTokens int64
	APIKey    string
	System    string
}

// AnthropicRunner drives turns against the Anthropic Messages API. The
// conversation handle maps to an in-memory message history, so a session
// that retains its handle continues the same conversation.
type AnthropicRunner struct {
	client *anthropic.Client
	opts   AnthropicOptions
	logger *slog.Logger

	mu        sync.Mutex
	histories map[string][]anthropic.MessageParam
}

// NewAnthropicRunner creates a runner. Pass nil logger for default.
func NewAnthropicRunner(opts AnthropicOptions, logger *slog.Logger) *AnthropicRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &AnthropicRunner{
		client:    &client,
		opts:      opts,
		logger:    logger.With("component", "anthropic-runner"),
		histories: make(map[string][]anthropic.MessageParam),
	}
}

// Run implements Runner. The returned channel emits a system/init event
// first, then streamed text, then the terminal result event, and closes.
func (r *AnthropicRunner) Run(ctx context.Context, req TurnRequest) (<-chan *Event, error) {
	if req.Content == "" {
		return nil, fmt.Errorf("turn content is required")
	}

	handle := req.Handle
	if handle == "" {
		handle = uuid.New().String()
	}

	out := make(chan *Event, 32)
	go r.drive(ctx, req, handle, out)
	return out, nil
}

// drive runs one turn to completion, always closing out.
func (r *AnthropicRunner) drive(ctx context.Context, req TurnRequest, handle string, out chan<- *Event) {
	defer close(out)
	start := time.Now()

	out <- &Event{Type: EventSystemInit, Handle: handle}

	history := r.history(handle)
	messages := append(history, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Content)))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.opts.Model),
		Messages:  messages,
		MaxTokens: r.opts.MaxTokens,
	}
	if r.opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: r.opts.System}}
	}

	stream := r.client.Messages.NewStreaming(ctx, params)
	message := anthropic.Message{}

	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			r.fail(out, start, fmt.Errorf("accumulating stream event: %w", err))
			return
		}

		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				out <- &Event{Type: EventText, Text: delta.Text}
			}
		}
	}
	if err := stream.Err(); err != nil {
		r.fail(out, start, fmt.Errorf("anthropic stream: %w", err))
		return
	}

	// Surface any tool_use blocks the model produced. Tools are not
	// executed here; the hub's plugin runtime is the tool surface.
	for _, block := range message.Content {
		if block.Type == "tool_use" {
			tool := block.AsToolUse()
			input, _ := json.Marshal(tool.Input)
			out <- &Event{Type: EventToolUse, ToolUse: &ToolUseEvent{
				ID:        tool.ID,
				Name:      tool.Name,
				InputJSON: input,
			}}
		}
	}

	r.appendHistory(handle, req.Content, message)

	out <- &Event{Type: EventResult, Result: &ResultEvent{
		Success:  true,
		Duration: time.Since(start),
	}}

	r.logger.Debug("turn complete",
		"session_id", req.SessionID,
		"handle", handle,
		"input_tokens", message.Usage.InputTokens,
		"output_tokens", message.Usage.OutputTokens)
}

// fail emits an error event followed by a failed result event.
func (r *AnthropicRunner) fail(out chan<- *Event, start time.Time, err error) {
	r.logger.Error("turn failed", "error", err)
	out <- &Event{Type: EventError, Error: err.Error()}
	out <- &Event{Type: EventResult, Result: &ResultEvent{
		Success:  false,
		Duration: time.Since(start),
		Error:    err.Error(),
	}}
}

// history returns a copy of the message history for a handle.
func (r *AnthropicRunner) history(handle string) []anthropic.MessageParam {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.histories[handle]
	out := make([]anthropic.MessageParam, len(history))
	copy(out, history)
	return out
}

// appendHistory records the user turn and the assistant reply for resumption.
func (r *AnthropicRunner) appendHistory(handle, content string, message anthropic.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.histories[handle] = append(r.histories[handle],
		anthropic.NewUserMessage(anthropic.NewTextBlock(content)),
		message.ToParam(),
	)
}

// Forget drops the stored history for a handle. Used when a conversation
// is explicitly ended so the memory does not grow unbounded.
func (r *AnthropicRunner) Forget(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.histories, handle)
}
