// ABOUTME: Append-only NDJSON audit log partitioned by target id and day
// ABOUTME: Records timestamp, params, result or error and duration per entry

package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Record is one audit log line.
type Record struct {
	Timestamp  time.Time       `json:"timestamp"`
	Target     string          `json:"target"`
	Params     json.RawMessage `json:"params,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"durationMs"`
	// State-write fields (partition "ui-state")
	StateID string `json:"stateId,omitempty"`
	Size    int    `json:"size,omitempty"`
}

// Log appends records to per-partition, per-day NDJSON files.
type Log struct {
	mu     sync.Mutex
	root   string
	logger *slog.Logger
}

// New creates a log rooted at dir. Pass nil logger for default.
func New(dir string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		root:   dir,
		logger: logger.With("component", "audit"),
	}
}

// Append writes one record to the partition's file for the record's day.
// The timestamp is filled in when zero.
func (l *Log) Append(partition string, rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}

	path := l.partitionFile(partition, rec.Timestamp)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating audit partition dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening audit file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}
	return nil
}

// Recent returns up to limit records from the partition's file for the given
// day, newest last. A missing file yields an empty slice, not an error.
func (l *Log) Recent(partition string, day time.Time, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	path := l.partitionFile(partition, day)

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("opening audit file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			// A torn or corrupt line must not hide the rest of the log.
			l.logger.Warn("skipping unreadable audit line", "partition", partition, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading audit file: %w", err)
	}

	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// partitionFile maps a partition and day to its NDJSON path.
func (l *Log) partitionFile(partition string, day time.Time) string {
	return filepath.Join(l.root, sanitize(partition), day.UTC().Format("2006-01-02")+".ndjson")
}

// sanitize keeps partition ids filesystem-safe.
func sanitize(partition string) string {
	if partition == "" {
		return "unknown"
	}
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	return r.Replace(partition)
}
