// ABOUTME: Built-in handlers available to the template dispatch table
// ABOUTME: Email triage/archive, task board, inbox summary, webhook notify

package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/switchboard/internal/agent"
	"github.com/2389/switchboard/internal/registry"
)

// RegisterBuiltins installs the default handlers into the table.
func RegisterBuiltins(table *HandlerTable) error {
	handlers := map[string]Handler{
		"email_archive":   emailArchive,
		"email_triage":    emailTriage,
		"task_board_add":  taskBoardAdd,
		"inbox_summarize": inboxSummarize,
		"webhook_notify":  webhookNotify,
	}
	for name, h := range handlers {
		if err := table.Register(name, h); err != nil {
			return fmt.Errorf("registering builtin %q: %w", name, err)
		}
	}
	return nil
}

// handlerConfig is the static config templates may attach to a handler.
type handlerConfig struct {
	StateID     string `json:"stateId"`
	ComponentID string `json:"componentId"`
	URL         string `json:"url"`
	Tier        string `json:"tier"`
}

// parseConfig decodes the template config, tolerating absence.
func parseConfig(tmpl *registry.Template) (handlerConfig, error) {
	var cfg handlerConfig
	if len(tmpl.Config) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(tmpl.Config, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid template config: %w", err)
	}
	return cfg, nil
}

// componentFor returns a component spec when the template config binds one.
func componentFor(cfg handlerConfig, stateID string) []ComponentSpec {
	if cfg.ComponentID == "" {
		return nil
	}
	return []ComponentSpec{{
		InstanceID:  uuid.New().String(),
		ComponentID: cfg.ComponentID,
		StateID:     stateID,
	}}
}

type emailArchiveInput struct {
	EmailID string `json:"emailId"`
}

// emailArchive marks one email as read.
func emailArchive(ctx context.Context, caps *Capabilities, tmpl *registry.Template, params json.RawMessage) (*Result, error) {
	var in emailArchiveInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.EmailID == "" {
		return nil, fmt.Errorf("emailId is required")
	}

	if err := caps.Mail.MarkRead(ctx, in.EmailID); err != nil {
		return nil, err
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("archived %s", in.EmailID),
	}, nil
}

type emailTriageInput struct {
	EmailID string `json:"emailId"`
}

// triageEntry is one classified email on the triage board.
type triageEntry struct {
	EmailID  string `json:"emailId"`
	Subject  string `json:"subject"`
	Urgent   bool   `json:"urgent"`
	Category string `json:"category"`
	At       string `json:"at"`
}

var triageSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"urgent": {"type": "boolean"},
		"category": {"type": "string"}
	},
	"required": ["urgent", "category"]
}`)

// emailTriage asks the sub-agent to classify an email and records the
// verdict on the triage board state.
func emailTriage(ctx context.Context, caps *Capabilities, tmpl *registry.Template, params json.RawMessage) (*Result, error) {
	var in emailTriageInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.EmailID == "" {
		return nil, fmt.Errorf("emailId is required")
	}

	cfg, err := parseConfig(tmpl)
	if err != nil {
		return nil, err
	}
	stateID := cfg.StateID
	if stateID == "" {
		stateID = "triage_board"
	}

	email, err := caps.Mail.Get(ctx, in.EmailID)
	if err != nil {
		return nil, fmt.Errorf("loading email: %w", err)
	}

	verdict, err := caps.Agent.Ask(ctx, agent.AskRequest{
		Prompt: fmt.Sprintf("Classify this email.\nFrom: %s\nSubject: %s\n\n%s",
			email.From, email.Subject, email.Body),
		Schema: triageSchema,
		Tier:   cfg.Tier,
	})
	if err != nil {
		return nil, fmt.Errorf("classifying email: %w", err)
	}

	var parsed struct {
		Urgent   bool   `json:"urgent"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal(verdict, &parsed); err != nil {
		return nil, fmt.Errorf("reading verdict: %w", err)
	}

	entry := triageEntry{
		EmailID:  email.ID,
		Subject:  email.Subject,
		Urgent:   parsed.Urgent,
		Category: parsed.Category,
		At:       time.Now().UTC().Format(time.RFC3339),
	}
	if err := appendToList(ctx, caps.State, stateID, "entries", entry); err != nil {
		return nil, err
	}

	if parsed.Urgent {
		caps.Notify("warn", fmt.Sprintf("urgent email from %s: %s", email.From, email.Subject))
	}

	return &Result{
		Success:    true,
		Message:    fmt.Sprintf("classified as %s", parsed.Category),
		Data:       verdict,
		Components: componentFor(cfg, stateID),
	}, nil
}

type taskBoardInput struct {
	Title string `json:"title"`
}

// taskBoardAdd appends a task to the configured board state.
func taskBoardAdd(ctx context.Context, caps *Capabilities, tmpl *registry.Template, params json.RawMessage) (*Result, error) {
	var in taskBoardInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	cfg, err := parseConfig(tmpl)
	if err != nil {
		return nil, err
	}
	stateID := cfg.StateID
	if stateID == "" {
		stateID = "task_board"
	}

	task := map[string]any{
		"id":    uuid.New().String(),
		"title": in.Title,
		"done":  false,
	}
	if err := appendToList(ctx, caps.State, stateID, "tasks", task); err != nil {
		return nil, err
	}

	return &Result{
		Success:    true,
		Message:    fmt.Sprintf("added task %q", in.Title),
		Components: componentFor(cfg, stateID),
	}, nil
}

// inboxSummarize writes an inbox overview document to state.
func inboxSummarize(ctx context.Context, caps *Capabilities, tmpl *registry.Template, params json.RawMessage) (*Result, error) {
	cfg, err := parseConfig(tmpl)
	if err != nil {
		return nil, err
	}
	stateID := cfg.StateID
	if stateID == "" {
		stateID = "inbox_summary"
	}

	emails, err := caps.Mail.Recent(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("reading inbox: %w", err)
	}

	unread := 0
	latest := ""
	for _, e := range emails {
		if !e.Read {
			unread++
		}
	}
	if len(emails) > 0 {
		latest = emails[0].Subject
	}

	summary := map[string]any{
		"total":         len(emails),
		"unread":        unread,
		"latestSubject": latest,
		"updatedAt":     time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, err
	}
	if err := caps.State.Set(ctx, stateID, data); err != nil {
		return nil, err
	}

	return &Result{
		Success:    true,
		Message:    fmt.Sprintf("%d emails, %d unread", len(emails), unread),
		Data:       data,
		Components: componentFor(cfg, stateID),
	}, nil
}

// webhookNotify POSTs the invocation params to the configured URL.
func webhookNotify(ctx context.Context, caps *Capabilities, tmpl *registry.Template, params json.RawMessage) (*Result, error) {
	cfg, err := parseConfig(tmpl)
	if err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("template config missing url")
	}

	body := params
	if len(body) == 0 {
		body = json.RawMessage(`{}`)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := caps.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("notified %s", cfg.URL),
	}, nil
}

// appendToList does a read-modify-write on a list field of a state
// document. The read and write are not interleaved with other awaits on
// the same id; last write wins by store policy.
func appendToList(ctx context.Context, states StateAccess, stateID, field string, item any) error {
	doc := map[string]json.RawMessage{}
	if current, err := states.Get(ctx, stateID); err == nil && len(current) > 0 {
		if err := json.Unmarshal(current, &doc); err != nil {
			return fmt.Errorf("state %q is not an object: %w", stateID, err)
		}
	}

	var list []json.RawMessage
	if raw, ok := doc[field]; ok {
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("state %q field %q is not a list: %w", stateID, field, err)
		}
	}

	itemJSON, err := json.Marshal(item)
	if err != nil {
		return err
	}
	list = append(list, itemJSON)

	listJSON, err := json.Marshal(list)
	if err != nil {
		return err
	}
	doc[field] = listJSON

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return states.Set(ctx, stateID, data)
}
