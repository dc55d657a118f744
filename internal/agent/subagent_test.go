// ABOUTME: Tests for sub-agent output extraction and schema checking
// ABOUTME: Network calls are not exercised; validation logic is pure

package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_PlainObject(t *testing.T) {
	out, err := ExtractJSON(`{"urgent": true, "category": "billing"}`, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"urgent": true, "category": "billing"}`, string(out))
}

func TestExtractJSON_StripsMarkdownFences(t *testing.T) {
	text := "```json\n{\"urgent\": false}\n```"
	out, err := ExtractJSON(text, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"urgent": false}`, string(out))
}

func TestExtractJSON_RequiredFieldsEnforced(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"urgent": {"type": "boolean"},
			"category": {"type": "string"}
		},
		"required": ["urgent", "category"]
	}`)

	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"all required present", `{"urgent": true, "category": "spam"}`, false},
		{"missing category", `{"urgent": true}`, true},
		{"missing everything", `{}`, true},
		{"extra fields allowed", `{"urgent": false, "category": "x", "note": "y"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractJSON(tt.text, schema)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedOutput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExtractJSON_ProseIsRejected(t *testing.T) {
	_, err := ExtractJSON("Sure! Here is the classification you asked for.", nil)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}
