// ABOUTME: Store interface and entity types for switchboard persistence
// ABOUTME: UI states, component instances and emails over a SQLite backend

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// UIState is one persisted state document.
type UIState struct {
	StateID   string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UIStateInfo is the listing projection of a UIState (no payload).
type UIStateInfo struct {
	StateID   string    `json:"stateId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ComponentInstance is a rendered component bound to a state document.
// Instances are immutable after creation and pruned by age.
type ComponentInstance struct {
	InstanceID  string    `json:"instanceId"`
	ComponentID string    `json:"componentId"`
	StateID     string    `json:"stateId"`
	SessionID   string    `json:"sessionId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Email is one message in the external-source snapshot table.
type Email struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"receivedAt"`
	Read       bool      `json:"read"`
}

// Store is the persistence interface used by the runtime.
type Store interface {
	// UI state documents
	GetUIState(ctx context.Context, stateID string) (*UIState, error)
	SetUIState(ctx context.Context, stateID string, data json.RawMessage) error
	DeleteUIState(ctx context.Context, stateID string) error
	ListUIStates(ctx context.Context) ([]UIStateInfo, error)

	// Component instances
	SaveComponentInstance(ctx context.Context, inst *ComponentInstance) error
	GetComponentInstance(ctx context.Context, instanceID string) (*ComponentInstance, error)
	ListComponentInstances(ctx context.Context, sessionID string) ([]*ComponentInstance, error)
	PruneComponentInstances(ctx context.Context, olderThan time.Time) (int, error)

	// Emails
	SaveEmail(ctx context.Context, email *Email) error
	GetEmail(ctx context.Context, id string) (*Email, error)
	ListEmails(ctx context.Context, limit int) ([]*Email, error)
	MarkEmailRead(ctx context.Context, id string) error

	Close() error
}
