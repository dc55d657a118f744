// ABOUTME: Tests for the NDJSON audit log partition layout and append semantics
// ABOUTME: Verifies per-day files, append-only growth and corrupt-line tolerance

package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend_CreatesPartitionPerDay(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, nil)

	day1 := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)

	require.NoError(t, l.Append("triage-listener", Record{Timestamp: day1, Target: "triage-listener", Success: true}))
	require.NoError(t, l.Append("triage-listener", Record{Timestamp: day2, Target: "triage-listener", Success: true}))

	assert.FileExists(t, filepath.Join(dir, "triage-listener", "2026-08-20.ndjson"))
	assert.FileExists(t, filepath.Join(dir, "triage-listener", "2026-08-21.ndjson"))
}

func TestAppend_IsAppendOnly(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, nil)
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Append("p", Record{Timestamp: day, Target: "p", Success: true}))
	}

	records, err := l.Recent("p", day, 10)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRecent_MissingFileIsEmpty(t *testing.T) {
	l := New(t.TempDir(), nil)

	records, err := l.Recent("never-ran", time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecent_LimitKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, nil)
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Append("p", Record{
			Timestamp: day.Add(time.Duration(i) * time.Minute),
			Target:    "p",
			Error:     "",
			Success:   true,
		}))
	}

	records, err := l.Recent("p", day, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, day.Add(4*time.Minute), records[1].Timestamp)
}

func TestRecent_SkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, nil)
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.Append("p", Record{Timestamp: day, Target: "p", Success: true}))

	path := filepath.Join(dir, "p", "2026-08-20.ndjson")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{torn line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, l.Append("p", Record{Timestamp: day, Target: "p", Success: false, Error: "boom"}))

	records, err := l.Recent("p", day, 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestAppend_RecordShape(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, nil)
	day := time.Date(2026, 8, 20, 12, 30, 0, 0, time.UTC)

	require.NoError(t, l.Append("archiver", Record{
		Timestamp:  day,
		Target:     "archiver",
		Params:     json.RawMessage(`{"emailId":"m1"}`),
		Result:     json.RawMessage(`{"archived":true}`),
		Success:    true,
		DurationMS: 42,
	}))

	records, err := l.Recent("archiver", day, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "archiver", rec.Target)
	assert.JSONEq(t, `{"emailId":"m1"}`, string(rec.Params))
	assert.True(t, rec.Success)
	assert.EqualValues(t, 42, rec.DurationMS)
}

func TestSanitize_PathSeparators(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, nil)

	require.NoError(t, l.Append("../escape/attempt", Record{Target: "x", Success: true}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), "..")
}
