// ABOUTME: Email source interface plus the store-backed implementation
// ABOUTME: Snapshot-oriented: recent N messages, lookup, mark-read, add

package mailbox

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/2389/switchboard/internal/store"
)

// DefaultSnapshotSize is how many recent emails a snapshot carries.
const DefaultSnapshotSize = 50

// Source is the external email data source at its boundary.
type Source interface {
	Recent(ctx context.Context, limit int) ([]*store.Email, error)
	Get(ctx context.Context, id string) (*store.Email, error)
	MarkRead(ctx context.Context, id string) error
	Add(ctx context.Context, email *store.Email) error
}

// StoreSource implements Source over the persistence layer.
type StoreSource struct {
	db     store.Store
	logger *slog.Logger
}

// NewStoreSource creates a store-backed source. Pass nil logger for default.
func NewStoreSource(db store.Store, logger *slog.Logger) *StoreSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSource{
		db:     db,
		logger: logger.With("component", "mailbox"),
	}
}

// Recent returns the newest emails, most recent first.
func (s *StoreSource) Recent(ctx context.Context, limit int) ([]*store.Email, error) {
	if limit <= 0 {
		limit = DefaultSnapshotSize
	}
	return s.db.ListEmails(ctx, limit)
}

// Get returns one email or store.ErrNotFound.
func (s *StoreSource) Get(ctx context.Context, id string) (*store.Email, error) {
	return s.db.GetEmail(ctx, id)
}

// MarkRead flags an email read.
func (s *StoreSource) MarkRead(ctx context.Context, id string) error {
	return s.db.MarkEmailRead(ctx, id)
}

// Add stores a new email, assigning an id when absent.
func (s *StoreSource) Add(ctx context.Context, email *store.Email) error {
	if email.ID == "" {
		email.ID = uuid.New().String()
	}
	if err := s.db.SaveEmail(ctx, email); err != nil {
		return err
	}
	s.logger.Debug("email stored", "id", email.ID, "from", email.From)
	return nil
}
