// ABOUTME: Session owns one turn queue, one runner and a subscriber set
// ABOUTME: A single pump goroutine serializes turns; events broadcast as wire messages

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/switchboard/internal/agent"
	"github.com/2389/switchboard/internal/queue"
	"github.com/2389/switchboard/internal/wire"
)

// Subscriber receives the session's wire messages. Send must not block;
// the hub backs it with a buffered per-connection writer.
type Subscriber interface {
	Send(v any)
}

// turn is one queued user message plus its completion signal.
type turn struct {
	content string
	done    chan struct{}
}

// Session serializes the turns of one conversation and fans the resulting
// event stream out to its subscribers. Turns run strictly one at a time:
// a second SubmitTurn's processing starts only after the first turn's
// terminal event.
type Session struct {
	id     string
	runner agent.Runner
	logger *slog.Logger

	queue      *queue.Queue[*turn]
	pumpDone   chan struct{}
	cancelPump context.CancelFunc

	mu        sync.Mutex
	subs      map[Subscriber]struct{}
	handle    string
	busy      bool
	turns     int
	abortTurn context.CancelFunc
}

// New creates a session and starts its pump goroutine.
func New(id string, runner agent.Runner, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         id,
		runner:     runner,
		logger:     logger.With("component", "session", "session_id", id),
		queue:      queue.New[*turn](),
		pumpDone:   make(chan struct{}),
		cancelPump: cancel,
		subs:       make(map[Subscriber]struct{}),
	}
	go s.pump(pumpCtx)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// SubmitTurn enqueues one user turn and blocks until its terminal event
// (or until ctx is done, in which case the turn still runs in order).
func (s *Session) SubmitTurn(ctx context.Context, content string) error {
	t := &turn{content: content, done: make(chan struct{})}

	s.mu.Lock()
	s.turns++
	s.mu.Unlock()

	if err := s.queue.Push(t); err != nil {
		return fmt.Errorf("submitting turn: %w", err)
	}

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe adds a subscriber and sends it a session_info snapshot. Only
// the new subscriber receives the snapshot.
func (s *Session) Subscribe(sub Subscriber) {
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	info := &wire.SessionInfo{
		Type:         wire.TypeSessionInfo,
		SessionID:    s.id,
		MessageCount: s.turns,
		IsActive:     s.busy,
	}
	s.mu.Unlock()

	sub.Send(info)
}

// Unsubscribe removes a subscriber. Unknown subscribers are a no-op.
func (s *Session) Unsubscribe(sub Subscriber) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// SubscriberCount reports the current number of subscribers.
func (s *Session) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Busy reports whether a turn is currently being processed.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// TurnCount reports how many turns have been submitted.
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// EndConversation drops the resume handle so the next turn starts a fresh
// conversation. Queued turns and subscribers are untouched. Runners that
// keep per-handle history release it here.
func (s *Session) EndConversation() {
	s.mu.Lock()
	handle := s.handle
	s.handle = ""
	s.mu.Unlock()

	if handle != "" {
		if f, ok := s.runner.(interface{ Forget(handle string) }); ok {
			f.Forget(handle)
		}
	}
	s.logger.Info("conversation ended")
}

// Abort cancels the in-flight turn, if any. The aborted SubmitTurn
// returns and the session does not stay busy.
func (s *Session) Abort() {
	s.mu.Lock()
	cancel := s.abortTurn
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Close shuts the session down: no further turns are accepted, queued
// turns are abandoned and the pump exits.
func (s *Session) Close() {
	s.queue.Close()
	s.cancelPump()
	<-s.pumpDone
}

// Broadcast sends a wire message to every current subscriber.
func (s *Session) Broadcast(v any) {
	s.mu.Lock()
	subs := make([]Subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Send(v)
	}
}

// pump consumes queued turns one at a time.
func (s *Session) pump(ctx context.Context) {
	defer close(s.pumpDone)

	for {
		t, ok, err := s.queue.Next(ctx)
		if err != nil || !ok {
			return
		}
		s.runTurn(ctx, t)
	}
}

// runTurn drives the runner for one turn and broadcasts its events.
func (s *Session) runTurn(ctx context.Context, t *turn) {
	defer close(t.done)

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.busy = true
	s.abortTurn = cancel
	handle := s.handle
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.abortTurn = nil
		s.mu.Unlock()
	}()

	s.Broadcast(&wire.StreamEvent{
		Type:      wire.TypeUserMessage,
		SessionID: s.id,
		Content:   t.content,
		Timestamp: time.Now().UTC(),
	})

	events, err := s.runner.Run(turnCtx, agent.TurnRequest{
		SessionID: s.id,
		Handle:    handle,
		Content:   t.content,
	})
	if err != nil {
		s.logger.Error("turn start failed", "error", err)
		s.broadcastFailure(err.Error())
		return
	}

	sawResult := false
	for ev := range events {
		s.handleEvent(ev)
		if ev.Type == agent.EventResult {
			sawResult = true
		}
	}
	if !sawResult {
		// Stream ended without a terminal event (abort or runner bug).
		s.broadcastFailure("turn aborted")
	}
}

// handleEvent translates one runner event into wire messages.
func (s *Session) handleEvent(ev *agent.Event) {
	now := time.Now().UTC()

	switch ev.Type {
	case agent.EventSystemInit:
		s.mu.Lock()
		s.handle = ev.Handle
		s.mu.Unlock()
		s.Broadcast(&wire.StreamEvent{
			Type:      wire.TypeSystem,
			SessionID: s.id,
			Subtype:   "init",
			Timestamp: now,
		})

	case agent.EventText:
		s.Broadcast(&wire.StreamEvent{
			Type:      wire.TypeAssistantMessage,
			SessionID: s.id,
			Content:   ev.Text,
			Timestamp: now,
		})

	case agent.EventToolUse:
		if ev.ToolUse == nil {
			return
		}
		s.Broadcast(&wire.StreamEvent{
			Type:      wire.TypeToolUse,
			SessionID: s.id,
			ToolName:  ev.ToolUse.Name,
			ToolID:    ev.ToolUse.ID,
			ToolInput: ev.ToolUse.InputJSON,
			Timestamp: now,
		})

	case agent.EventToolResult:
		if ev.ToolResult == nil {
			return
		}
		s.Broadcast(&wire.StreamEvent{
			Type:      wire.TypeToolResult,
			SessionID: s.id,
			ToolID:    ev.ToolResult.ID,
			Content:   ev.ToolResult.Output,
			Timestamp: now,
		})

	case agent.EventResult:
		if ev.Result == nil {
			return
		}
		s.Broadcast(&wire.TurnResult{
			Type:       wire.TypeResult,
			Success:    ev.Result.Success,
			SessionID:  s.id,
			CostUSD:    ev.Result.CostUSD,
			DurationMS: ev.Result.Duration.Milliseconds(),
			Error:      ev.Result.Error,
		})

	case agent.EventError:
		s.Broadcast(&wire.Error{Type: wire.TypeError, Error: ev.Error})
	}
}

// broadcastFailure emits the explicit error-then-result pair so viewers
// never see a silent hang.
func (s *Session) broadcastFailure(msg string) {
	s.Broadcast(&wire.Error{Type: wire.TypeError, Error: msg})
	s.Broadcast(&wire.TurnResult{
		Type:      wire.TypeResult,
		Success:   false,
		SessionID: s.id,
		Error:     msg,
	})
}
