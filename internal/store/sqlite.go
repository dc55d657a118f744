// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides state/instance/email persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS ui_states (
			state_id   TEXT PRIMARY KEY,
			data       TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS component_instances (
			instance_id  TEXT PRIMARY KEY,
			component_id TEXT NOT NULL,
			state_id     TEXT NOT NULL,
			session_id   TEXT NOT NULL,
			created_at   DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_instances_session
			ON component_instances(session_id);

		CREATE INDEX IF NOT EXISTS idx_instances_created
			ON component_instances(created_at);

		CREATE TABLE IF NOT EXISTS emails (
			id          TEXT PRIMARY KEY,
			from_addr   TEXT NOT NULL,
			subject     TEXT NOT NULL,
			body        TEXT NOT NULL,
			received_at DATETIME NOT NULL,
			read        INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_emails_received
			ON emails(received_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// GetUIState returns the persisted state document or ErrNotFound.
func (s *SQLiteStore) GetUIState(ctx context.Context, stateID string) (*UIState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT state_id, data, created_at, updated_at FROM ui_states WHERE state_id = ?`,
		stateID)

	var st UIState
	var data string
	if err := row.Scan(&st.StateID, &data, &st.CreatedAt, &st.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying ui state: %w", err)
	}
	st.Data = json.RawMessage(data)
	return &st, nil
}

// SetUIState persists a whole state document, inserting or replacing.
func (s *SQLiteStore) SetUIState(ctx context.Context, stateID string, data json.RawMessage) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ui_states (state_id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(state_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, stateID, string(data), now, now)
	if err != nil {
		return fmt.Errorf("writing ui state: %w", err)
	}
	return nil
}

// DeleteUIState removes a state document. Deleting a missing id is ErrNotFound.
func (s *SQLiteStore) DeleteUIState(ctx context.Context, stateID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ui_states WHERE state_id = ?`, stateID)
	if err != nil {
		return fmt.Errorf("deleting ui state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUIStates returns id and update time for every persisted state.
func (s *SQLiteStore) ListUIStates(ctx context.Context) ([]UIStateInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state_id, updated_at FROM ui_states ORDER BY state_id`)
	if err != nil {
		return nil, fmt.Errorf("listing ui states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	infos := []UIStateInfo{}
	for rows.Next() {
		var info UIStateInfo
		if err := rows.Scan(&info.StateID, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning ui state row: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ui states: %w", err)
	}
	return infos, nil
}

// SaveComponentInstance inserts a new immutable instance row.
func (s *SQLiteStore) SaveComponentInstance(ctx context.Context, inst *ComponentInstance) error {
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO component_instances (instance_id, component_id, state_id, session_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, inst.InstanceID, inst.ComponentID, inst.StateID, inst.SessionID, inst.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting component instance: %w", err)
	}
	return nil
}

// GetComponentInstance returns one instance or ErrNotFound.
func (s *SQLiteStore) GetComponentInstance(ctx context.Context, instanceID string) (*ComponentInstance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT instance_id, component_id, state_id, session_id, created_at
		FROM component_instances WHERE instance_id = ?
	`, instanceID)

	var inst ComponentInstance
	if err := row.Scan(&inst.InstanceID, &inst.ComponentID, &inst.StateID, &inst.SessionID, &inst.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying component instance: %w", err)
	}
	return &inst, nil
}

// ListComponentInstances returns instances, optionally filtered by session.
func (s *SQLiteStore) ListComponentInstances(ctx context.Context, sessionID string) ([]*ComponentInstance, error) {
	query := `
		SELECT instance_id, component_id, state_id, session_id, created_at
		FROM component_instances
		WHERE (? = '' OR session_id = ?)
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing component instances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var instances []*ComponentInstance
	for rows.Next() {
		var inst ComponentInstance
		if err := rows.Scan(&inst.InstanceID, &inst.ComponentID, &inst.StateID, &inst.SessionID, &inst.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning component instance: %w", err)
		}
		instances = append(instances, &inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating component instances: %w", err)
	}
	return instances, nil
}

// PruneComponentInstances deletes instances created before the cutoff and
// returns how many rows were removed.
func (s *SQLiteStore) PruneComponentInstances(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM component_instances WHERE created_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning component instances: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking prune result: %w", err)
	}
	if n > 0 {
		s.logger.Debug("pruned component instances", "count", n)
	}
	return int(n), nil
}

// SaveEmail inserts or replaces an email row.
func (s *SQLiteStore) SaveEmail(ctx context.Context, email *Email) error {
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emails (id, from_addr, subject, body, received_at, read)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			from_addr = excluded.from_addr,
			subject = excluded.subject,
			body = excluded.body,
			received_at = excluded.received_at
	`, email.ID, email.From, email.Subject, email.Body, email.ReceivedAt, boolToInt(email.Read))
	if err != nil {
		return fmt.Errorf("saving email: %w", err)
	}
	return nil
}

// GetEmail returns one email or ErrNotFound.
func (s *SQLiteStore) GetEmail(ctx context.Context, id string) (*Email, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, from_addr, subject, body, received_at, read
		FROM emails WHERE id = ?
	`, id)
	return scanEmail(row)
}

// ListEmails returns the most recent emails, newest first.
func (s *SQLiteStore) ListEmails(ctx context.Context, limit int) ([]*Email, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_addr, subject, body, received_at, read
		FROM emails ORDER BY received_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing emails: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var emails []*Email
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating emails: %w", err)
	}
	return emails, nil
}

// MarkEmailRead flags an email as read. Missing id is ErrNotFound.
func (s *SQLiteStore) MarkEmailRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE emails SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking email read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanEmail scans one email row.
func scanEmail(scanner interface{ Scan(dest ...any) error }) (*Email, error) {
	var email Email
	var read int
	if err := scanner.Scan(&email.ID, &email.From, &email.Subject, &email.Body, &email.ReceivedAt, &read); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning email: %w", err)
	}
	email.Read = read != 0
	return &email, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
