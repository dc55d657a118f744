// ABOUTME: Tests for the SQLite store: states, instances, emails
// ABOUTME: Uses :memory: databases and table-driven assertions

package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUIState_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	data := json.RawMessage(`{"tasks":[{"title":"reply to ops","done":false}]}`)
	require.NoError(t, s.SetUIState(ctx, "task_board", data))

	st, err := s.GetUIState(ctx, "task_board")
	require.NoError(t, err)
	assert.Equal(t, "task_board", st.StateID)
	assert.JSONEq(t, string(data), string(st.Data))
	assert.False(t, st.UpdatedAt.IsZero())
}

func TestUIState_WholeValueReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.SetUIState(ctx, "counter", json.RawMessage(`{"n":1}`)))
	require.NoError(t, s.SetUIState(ctx, "counter", json.RawMessage(`{"n":2}`)))

	st, err := s.GetUIState(ctx, "counter")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(st.Data))
}

func TestUIState_GetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetUIState(t.Context(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUIState_DeleteAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.SetUIState(ctx, "a", json.RawMessage(`{}`)))
	require.NoError(t, s.SetUIState(ctx, "b", json.RawMessage(`{}`)))

	infos, err := s.ListUIStates(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].StateID)

	require.NoError(t, s.DeleteUIState(ctx, "a"))
	assert.ErrorIs(t, s.DeleteUIState(ctx, "a"), ErrNotFound)

	infos, err = s.ListUIStates(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestComponentInstances_SaveGetList(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	inst := &ComponentInstance{
		InstanceID:  "c1",
		ComponentID: "board",
		StateID:     "task_board",
		SessionID:   "s1",
	}
	require.NoError(t, s.SaveComponentInstance(ctx, inst))

	got, err := s.GetComponentInstance(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "board", got.ComponentID)
	assert.False(t, got.CreatedAt.IsZero())

	list, err := s.ListComponentInstances(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = s.ListComponentInstances(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestComponentInstances_PruneByAge(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	old := &ComponentInstance{
		InstanceID:  "old",
		ComponentID: "board",
		StateID:     "st",
		SessionID:   "s1",
		CreatedAt:   time.Now().Add(-48 * time.Hour),
	}
	fresh := &ComponentInstance{
		InstanceID:  "fresh",
		ComponentID: "board",
		StateID:     "st",
		SessionID:   "s1",
	}
	require.NoError(t, s.SaveComponentInstance(ctx, old))
	require.NoError(t, s.SaveComponentInstance(ctx, fresh))

	n, err := s.PruneComponentInstances(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetComponentInstance(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetComponentInstance(ctx, "fresh")
	assert.NoError(t, err)
}

func TestEmails_SaveListMarkRead(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	emails := []*Email{
		{ID: "m1", From: "alice@example.com", Subject: "hello", Body: "hi", ReceivedAt: time.Now().Add(-time.Hour)},
		{ID: "m2", From: "bob@example.com", Subject: "urgent", Body: "!!", ReceivedAt: time.Now()},
	}
	for _, e := range emails {
		require.NoError(t, s.SaveEmail(ctx, e))
	}

	list, err := s.ListEmails(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m2", list[0].ID, "newest first")

	require.NoError(t, s.MarkEmailRead(ctx, "m1"))
	got, err := s.GetEmail(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, got.Read)

	assert.ErrorIs(t, s.MarkEmailRead(ctx, "ghost"), ErrNotFound)
}
