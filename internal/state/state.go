// ABOUTME: StateStore: get/set/delete/list with template-initial fallback
// ABOUTME: Writes audit one record and synchronously notify all subscribers

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/switchboard/internal/audit"
	"github.com/2389/switchboard/internal/registry"
	"github.com/2389/switchboard/internal/store"
)

// auditPartition is the audit log partition for state writes.
const auditPartition = "ui-state"

// ErrNotFound is returned when an id has neither a persisted value nor a
// declaring template.
var ErrNotFound = store.ErrNotFound

// TemplateSource resolves UI-state templates for initial-value fallback.
type TemplateSource interface {
	Get(id string) (*registry.Template, bool)
}

// Subscriber receives every successful write. Called synchronously, in
// registration order, before Set returns.
type Subscriber func(stateID string, data json.RawMessage)

// Store is the single writer of persisted UI state.
type Store struct {
	db        store.Store
	templates TemplateSource
	audit     *audit.Log
	logger    *slog.Logger

	mu     sync.RWMutex
	subs   map[string]Subscriber
	subIDs []string // preserves registration order
}

// New creates a state store. Pass nil logger for default.
func New(db store.Store, templates TemplateSource, auditLog *audit.Log, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:        db,
		templates: templates,
		audit:     auditLog,
		logger:    logger.With("component", "state"),
		subs:      make(map[string]Subscriber),
	}
}

// Get returns the persisted value, or the declaring template's initial value
// when nothing is persisted yet. The fallback is side-effect free: nothing
// is written. Returns ErrNotFound when neither exists.
func (s *Store) Get(ctx context.Context, id string) (json.RawMessage, error) {
	st, err := s.db.GetUIState(ctx, id)
	if err == nil {
		return st.Data, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if tmpl, ok := s.templates.Get(id); ok {
		return tmpl.InitialState, nil
	}
	return nil, ErrNotFound
}

// Set persists the whole value, appends one audit record and notifies every
// subscriber before returning. A subscriber panic is contained: the write
// still succeeds and the remaining subscribers are still notified.
func (s *Store) Set(ctx context.Context, id string, data json.RawMessage) error {
	if !json.Valid(data) {
		return fmt.Errorf("state %q: value is not valid JSON", id)
	}

	if err := s.db.SetUIState(ctx, id, data); err != nil {
		return err
	}

	if err := s.audit.Append(auditPartition, audit.Record{
		Target:  auditPartition,
		StateID: id,
		Size:    len(data),
		Success: true,
	}); err != nil {
		// The write already happened; a failed audit line is logged, not fatal.
		s.logger.Error("audit append failed", "state_id", id, "error", err)
	}

	s.notify(id, data)
	return nil
}

// InitializeIfNeeded writes the template's initial value when no row exists
// yet. Returns whether it actually initialized. Idempotent: once a row
// exists, later calls are no-ops.
func (s *Store) InitializeIfNeeded(ctx context.Context, id string) (bool, error) {
	_, err := s.db.GetUIState(ctx, id)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	tmpl, ok := s.templates.Get(id)
	if !ok {
		return false, nil
	}

	if err := s.Set(ctx, id, tmpl.InitialState); err != nil {
		return false, err
	}
	s.logger.Info("state initialized from template", "state_id", id)
	return true, nil
}

// List returns ids and update times of all persisted states.
func (s *Store) List(ctx context.Context) ([]store.UIStateInfo, error) {
	return s.db.ListUIStates(ctx)
}

// Delete removes the persisted value only; audit history is untouched.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.DeleteUIState(ctx, id)
}

// Subscribe registers a write callback and returns an id for Unsubscribe.
func (s *Store) Subscribe(fn Subscriber) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.subs[id] = fn
	s.subIDs = append(s.subIDs, id)
	return id
}

// Unsubscribe removes a subscriber.
func (s *Store) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subs, id)
	for i, cand := range s.subIDs {
		if cand == id {
			s.subIDs = append(s.subIDs[:i], s.subIDs[i+1:]...)
			return
		}
	}
}

// notify calls every subscriber exactly once, isolating panics.
func (s *Store) notify(id string, data json.RawMessage) {
	s.mu.RLock()
	fns := make([]Subscriber, 0, len(s.subIDs))
	for _, subID := range s.subIDs {
		if fn, ok := s.subs[subID]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		s.safeNotify(fn, id, data)
	}
}

func (s *Store) safeNotify(fn Subscriber, id string, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("state subscriber panicked", "state_id", id, "panic", r)
		}
	}()
	fn(id, data)
}
