// ABOUTME: Tests for template discovery, validation and hot-swap idempotence
// ABOUTME: Exercises skip-invalid, private-prefix filtering and reload replace

package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadAll_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "actions")
	r := New(KindAction, dir, nil)

	require.NoError(t, r.LoadAll())
	assert.DirExists(t, dir)
	assert.Equal(t, 0, r.Len())
}

func TestLoadAll_LoadsValidTemplates(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "archive.json",
		`{"id":"archive","name":"Archive email","handler":"email_archive","icon":"box"}`)
	writeTemplate(t, dir, "summarize.json",
		`{"id":"summarize","name":"Summarize","handler":"inbox_summarize"}`)

	r := New(KindAction, dir, nil)
	require.NoError(t, r.LoadAll())

	assert.Equal(t, 2, r.Len())
	tmpl, ok := r.Get("archive")
	require.True(t, ok)
	assert.Equal(t, "email_archive", tmpl.Handler)
	assert.Equal(t, "box", tmpl.Icon)
}

func TestLoadAll_SkipsPrivateAndNonJSON(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "_draft.json", `{"id":"draft","handler":"h"}`)
	writeTemplate(t, dir, "notes.txt", `not a template`)
	writeTemplate(t, dir, "real.json", `{"id":"real","handler":"h"}`)

	r := New(KindAction, dir, nil)
	require.NoError(t, r.LoadAll())

	assert.Equal(t, 1, r.Len())
	_, ok := r.Get("draft")
	assert.False(t, ok)
}

func TestLoadAll_InvalidFileDoesNotAbortLoading(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "broken.json", `{"id": "broken",`)
	writeTemplate(t, dir, "no-handler.json", `{"id":"no-handler"}`)
	writeTemplate(t, dir, "good.json", `{"id":"good","handler":"h"}`)

	r := New(KindAction, dir, nil)
	require.NoError(t, r.LoadAll())

	assert.Equal(t, 1, r.Len())
	_, ok := r.Get("good")
	assert.True(t, ok)
}

func TestLoadAll_ReloadIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "a.json", `{"id":"a","handler":"h"}`)
	writeTemplate(t, dir, "b.json", `{"id":"b","handler":"h"}`)

	r := New(KindAction, dir, nil)
	require.NoError(t, r.LoadAll())
	require.NoError(t, r.LoadAll())

	assert.Equal(t, 2, r.Len())
}

func TestLoadAll_EditReplacesOnlyThatEntry(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "a.json", `{"id":"a","name":"first","handler":"h"}`)
	writeTemplate(t, dir, "b.json", `{"id":"b","name":"other","handler":"h"}`)

	r := New(KindAction, dir, nil)
	require.NoError(t, r.LoadAll())

	writeTemplate(t, dir, "a.json", `{"id":"a","name":"edited","handler":"h2"}`)
	require.NoError(t, r.LoadAll())

	assert.Equal(t, 2, r.Len())
	a, _ := r.Get("a")
	assert.Equal(t, "edited", a.Name)
	assert.Equal(t, "h2", a.Handler)
	b, _ := r.Get("b")
	assert.Equal(t, "other", b.Name)
}

func TestLoadAll_RemovedFileDropsEntry(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "a.json", `{"id":"a","handler":"h"}`)

	r := New(KindAction, dir, nil)
	require.NoError(t, r.LoadAll())
	require.Equal(t, 1, r.Len())

	require.NoError(t, os.Remove(filepath.Join(dir, "a.json")))
	require.NoError(t, r.LoadAll())
	assert.Equal(t, 0, r.Len())
}

func TestValidate_PerKindRequirements(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		tmpl    Template
		wantErr bool
	}{
		{"listener ok", KindListener, Template{ID: "l", Trigger: "email_received", Handler: "h"}, false},
		{"listener no trigger", KindListener, Template{ID: "l", Handler: "h"}, true},
		{"listener no handler", KindListener, Template{ID: "l", Trigger: "t"}, true},
		{"action ok", KindAction, Template{ID: "a", Handler: "h"}, false},
		{"action no handler", KindAction, Template{ID: "a"}, true},
		{"ui state ok", KindUIState, Template{ID: "s", InitialState: []byte(`{"items":[]}`)}, false},
		{"ui state missing initial", KindUIState, Template{ID: "s"}, true},
		{"ui state invalid json", KindUIState, Template{ID: "s", InitialState: []byte(`{`)}, true},
		{"component ok", KindComponent, Template{ID: "c", StateID: "s"}, false},
		{"component no state", KindComponent, Template{ID: "c"}, true},
		{"missing id", KindAction, Template{Handler: "h"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tmpl.Validate(tt.kind)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestList_SortedByID(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "z.json", `{"id":"zulu","handler":"h"}`)
	writeTemplate(t, dir, "a.json", `{"id":"alpha","handler":"h"}`)

	r := New(KindAction, dir, nil)
	require.NoError(t, r.LoadAll())

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].ID)
	assert.Equal(t, "zulu", list[1].ID)
}
