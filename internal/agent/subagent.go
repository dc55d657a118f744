// ABOUTME: Sub-agent delegation: prompt plus output schema in, checked JSON out
// ABOUTME: Plugin handlers use this to hand classification judgment to a model

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"
)

// ErrMalformedOutput indicates the model did not return JSON matching the
// requested schema.
var ErrMalformedOutput = errors.New("sub-agent returned malformed output")

// Model tiers selectable per Ask call.
const (
	TierFast     = "fast"
	TierStandard = "standard"
)

// AskRequest describes one structured-extraction call.
type AskRequest struct {
	Prompt string
	// Schema is a JSON Schema object; its required properties are enforced
	// on the model's reply.
	Schema json.RawMessage
	// Tier selects the model tier; empty means TierStandard.
	Tier string
}

// SubAgent answers a prompt with a schema-conforming JSON document.
type SubAgent interface {
	Ask(ctx context.Context, req AskRequest) (json.RawMessage, error)
}

// AnthropicSubAgent implements SubAgent on the Anthropic Messages API.
type AnthropicSubAgent struct {
	client    *anthropic.Client
	models    map[string]string // tier -> model id
	maxTokens int64
	logger    *slog.Logger
}

// SubAgentOptions configures an AnthropicSubAgent.
type SubAgentOptions struct {
	APIKey        string
	FastModel     string
	StandardModel string
	MaxTokens     int64
}

// NewAnthropicSubAgent creates a sub-agent caller. Pass nil logger for default.
func NewAnthropicSubAgent(opts SubAgentOptions, logger *slog.Logger) *AnthropicSubAgent {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 1024
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &AnthropicSubAgent{
		client: &client,
		models: map[string]string{
			TierFast:     opts.FastModel,
			TierStandard: opts.StandardModel,
		},
		maxTokens: opts.MaxTokens,
		logger:    logger.With("component", "subagent"),
	}
}

const subAgentSystem = "You answer with a single JSON object and nothing else. " +
	"No prose, no markdown fences. The object must conform to the JSON Schema " +
	"given in the user message."

// Ask implements SubAgent.
func (a *AnthropicSubAgent) Ask(ctx context.Context, req AskRequest) (json.RawMessage, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	tier := req.Tier
	if tier == "" {
		tier = TierStandard
	}
	model, ok := a.models[tier]
	if !ok || model == "" {
		return nil, fmt.Errorf("unknown model tier %q", tier)
	}

	prompt := req.Prompt
	if len(req.Schema) > 0 {
		prompt = fmt.Sprintf("%s\n\nOutput JSON Schema:\n%s", req.Prompt, req.Schema)
	}

	start := time.Now()
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: subAgentSystem}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sub-agent call: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}

	result, err := ExtractJSON(text, req.Schema)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("sub-agent answered",
		"tier", tier,
		"duration_ms", time.Since(start).Milliseconds(),
		"output_bytes", len(result))
	return result, nil
}

// ExtractJSON pulls a JSON object out of model text output and validates the
// schema's required properties are present. Models occasionally wrap output
// in markdown fences despite instructions; those are stripped.
func ExtractJSON(text string, schema json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if !gjson.Valid(trimmed) {
		return nil, fmt.Errorf("%w: not valid JSON: %.80s", ErrMalformedOutput, trimmed)
	}

	if len(schema) > 0 {
		for _, field := range gjson.GetBytes(schema, "required").Array() {
			if !gjson.Get(trimmed, field.String()).Exists() {
				return nil, fmt.Errorf("%w: missing required field %q", ErrMalformedOutput, field.String())
			}
		}
	}

	return json.RawMessage(trimmed), nil
}
