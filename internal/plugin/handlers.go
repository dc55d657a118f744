// ABOUTME: Handler dispatch table and the capability-scoped handler context
// ABOUTME: Templates reference handlers by name; collisions are registration errors

package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/2389/switchboard/internal/agent"
	"github.com/2389/switchboard/internal/mailbox"
	"github.com/2389/switchboard/internal/registry"
)

// ErrHandlerCollision indicates a handler name is already registered.
var ErrHandlerCollision = errors.New("handler name collision")

// StateAccess is the slice of the state store a handler may touch.
type StateAccess interface {
	Get(ctx context.Context, id string) (json.RawMessage, error)
	Set(ctx context.Context, id string, data json.RawMessage) error
}

// NotifyFunc surfaces a handler message to connected clients.
type NotifyFunc func(level, message string)

// Capabilities bundles exactly the operations a handler is permitted to
// call. The hub constructs one per invocation; handlers never see the hub,
// sessions or the raw store.
type Capabilities struct {
	SessionID string

	// Mail queries and mutates the external email source.
	Mail mailbox.Source

	// Agent delegates judgment to a sub-agent (prompt + schema in,
	// checked JSON out).
	Agent agent.SubAgent

	// State reads and writes UI-state documents.
	State StateAccess

	// Notify pushes a message to connected clients.
	Notify NotifyFunc

	// HTTP performs raw outbound fetches.
	HTTP *http.Client

	Logger *slog.Logger
}

// Handler executes one template invocation. The template supplies static
// config; params carry the per-invocation arguments.
type Handler func(ctx context.Context, caps *Capabilities, tmpl *registry.Template, params json.RawMessage) (*Result, error)

// HandlerTable is the fixed dispatch table handlers are resolved against.
type HandlerTable struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerTable creates an empty table.
func NewHandlerTable() *HandlerTable {
	return &HandlerTable{handlers: make(map[string]Handler)}
}

// Register adds a named handler. Registering an existing name fails.
func (t *HandlerTable) Register(name string, h Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.handlers[name]; exists {
		return fmt.Errorf("%w: %q", ErrHandlerCollision, name)
	}
	t.handlers[name] = h
	return nil
}

// Get resolves a handler by name. Absence is a normal result.
func (t *HandlerTable) Get(name string) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handlers[name]
	return h, ok
}

// Names returns the registered handler names, for diagnostics.
func (t *HandlerTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.handlers))
	for name := range t.handlers {
		names = append(names, name)
	}
	return names
}
