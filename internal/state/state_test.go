// ABOUTME: Tests for the state store: round-trip, fallback, fan-out, init
// ABOUTME: Uses in-memory sqlite plus a stub template source

package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/switchboard/internal/audit"
	"github.com/2389/switchboard/internal/registry"
	"github.com/2389/switchboard/internal/store"
)

type stubTemplates map[string]*registry.Template

func (s stubTemplates) Get(id string) (*registry.Template, bool) {
	tmpl, ok := s[id]
	return tmpl, ok
}

func newTestState(t *testing.T, templates stubTemplates) *Store {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if templates == nil {
		templates = stubTemplates{}
	}
	return New(db, templates, audit.New(t.TempDir(), nil), nil)
}

func TestSetGet_RoundTrip(t *testing.T) {
	s := newTestState(t, nil)
	ctx := t.Context()

	value := json.RawMessage(`{"tasks":[{"title":"triage inbox","done":false}],"count":1}`)
	require.NoError(t, s.Set(ctx, "task_board", value))

	got, err := s.Get(ctx, "task_board")
	require.NoError(t, err)
	assert.JSONEq(t, string(value), string(got))
}

func TestGet_FallsBackToTemplateInitialValue(t *testing.T) {
	s := newTestState(t, stubTemplates{
		"task_board": {ID: "task_board", InitialState: json.RawMessage(`{"tasks":[]}`)},
	})
	ctx := t.Context()

	got, err := s.Get(ctx, "task_board")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tasks":[]}`, string(got))

	// The fallback is side-effect free: still nothing persisted.
	infos, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestGet_NoValueNoTemplateIsNotFound(t *testing.T) {
	s := newTestState(t, nil)

	_, err := s.Get(t.Context(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSet_RejectsInvalidJSON(t *testing.T) {
	s := newTestState(t, nil)

	err := s.Set(t.Context(), "x", json.RawMessage(`{broken`))
	assert.Error(t, err)
}

func TestSet_NotifiesAllSubscribersOnceEachEvenIfOnePanics(t *testing.T) {
	s := newTestState(t, nil)
	ctx := t.Context()

	var first, second int
	s.Subscribe(func(id string, data json.RawMessage) {
		first++
		panic("subscriber misbehaved")
	})
	s.Subscribe(func(id string, data json.RawMessage) {
		second++
		assert.Equal(t, "counter", id)
		assert.JSONEq(t, `{"n":1}`, string(data))
	})

	require.NoError(t, s.Set(ctx, "counter", json.RawMessage(`{"n":1}`)))
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestUnsubscribe_StopsNotifications(t *testing.T) {
	s := newTestState(t, nil)
	ctx := t.Context()

	var calls int
	id := s.Subscribe(func(string, json.RawMessage) { calls++ })

	require.NoError(t, s.Set(ctx, "a", json.RawMessage(`1`)))
	s.Unsubscribe(id)
	require.NoError(t, s.Set(ctx, "a", json.RawMessage(`2`)))

	assert.Equal(t, 1, calls)
}

func TestInitializeIfNeeded_WritesOnceThenNoOps(t *testing.T) {
	s := newTestState(t, stubTemplates{
		"board": {ID: "board", InitialState: json.RawMessage(`{"cards":[]}`)},
	})
	ctx := t.Context()

	initialized, err := s.InitializeIfNeeded(ctx, "board")
	require.NoError(t, err)
	assert.True(t, initialized)

	initialized, err = s.InitializeIfNeeded(ctx, "board")
	require.NoError(t, err)
	assert.False(t, initialized)

	got, err := s.Get(ctx, "board")
	require.NoError(t, err)
	assert.JSONEq(t, `{"cards":[]}`, string(got))
}

func TestInitializeIfNeeded_NoTemplateIsNoOp(t *testing.T) {
	s := newTestState(t, nil)

	initialized, err := s.InitializeIfNeeded(t.Context(), "unknown")
	require.NoError(t, err)
	assert.False(t, initialized)
}

func TestDelete_RemovesPersistedValueOnly(t *testing.T) {
	s := newTestState(t, stubTemplates{
		"board": {ID: "board", InitialState: json.RawMessage(`{"cards":[]}`)},
	})
	ctx := t.Context()

	require.NoError(t, s.Set(ctx, "board", json.RawMessage(`{"cards":["x"]}`)))
	require.NoError(t, s.Delete(ctx, "board"))

	// Back to the template fallback after delete.
	got, err := s.Get(ctx, "board")
	require.NoError(t, err)
	assert.JSONEq(t, `{"cards":[]}`, string(got))
}
