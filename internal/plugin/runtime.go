// ABOUTME: PluginRuntime: resolve template, run handler, time it, audit it
// ABOUTME: Handler errors and panics become failure results, never propagate

package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/switchboard/internal/audit"
	"github.com/2389/switchboard/internal/registry"
)

// ComponentSpec is a component instance a handler asks the hub to create.
type ComponentSpec struct {
	InstanceID  string `json:"instanceId"`
	ComponentID string `json:"componentId"`
	StateID     string `json:"stateId"`
}

// Result is the outcome of one plugin execution.
type Result struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	Components []ComponentSpec `json:"components,omitempty"`
}

// Runtime executes listener and action templates.
type Runtime struct {
	listeners *registry.Registry
	actions   *registry.Registry
	handlers  *HandlerTable
	audit     *audit.Log
	logger    *slog.Logger
}

// New creates a runtime. Pass nil logger for default.
func New(listeners, actions *registry.Registry, handlers *HandlerTable, auditLog *audit.Log, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		listeners: listeners,
		actions:   actions,
		handlers:  handlers,
		audit:     auditLog,
		logger:    logger.With("component", "plugin-runtime"),
	}
}

// Execute runs one template. It never returns an error to the caller: every
// failure mode is a failure Result, and every invocation — success or
// failure — lands in the audit log before the result is returned. The
// returned record is what was logged (used for listener_log broadcasts).
func (r *Runtime) Execute(ctx context.Context, kind registry.Kind, templateID string, params json.RawMessage, caps *Capabilities) (*Result, audit.Record) {
	start := time.Now()

	tmpl, ok := r.resolve(kind, templateID)
	if !ok {
		result := failure(fmt.Sprintf("template not found: %s", templateID))
		return result, r.record(templateID, params, result, start)
	}

	handler, ok := r.handlers.Get(tmpl.Handler)
	if !ok {
		result := failure(fmt.Sprintf("handler not registered: %s", tmpl.Handler))
		return result, r.record(templateID, params, result, start)
	}

	result := r.invoke(ctx, handler, caps, tmpl, params)
	rec := r.record(templateID, params, result, start)

	r.logger.Info("plugin executed",
		"kind", string(kind),
		"template_id", templateID,
		"success", result.Success,
		"duration_ms", rec.DurationMS)
	return result, rec
}

// resolve finds the template in the registry matching the kind.
func (r *Runtime) resolve(kind registry.Kind, templateID string) (*registry.Template, bool) {
	switch kind {
	case registry.KindListener:
		return r.listeners.Get(templateID)
	case registry.KindAction:
		return r.actions.Get(templateID)
	default:
		return nil, false
	}
}

// invoke runs the handler with panic containment.
func (r *Runtime) invoke(ctx context.Context, handler Handler, caps *Capabilities, tmpl *registry.Template, params json.RawMessage) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panicked", "template_id", tmpl.ID, "panic", rec)
			result = failure(fmt.Sprintf("handler panic: %v", rec))
		}
	}()

	res, err := handler(ctx, caps, tmpl, params)
	if err != nil {
		return failure(err.Error())
	}
	if res == nil {
		return failure("handler returned no result")
	}
	return res
}

// record appends the audit entry for one invocation and returns it.
func (r *Runtime) record(templateID string, params json.RawMessage, result *Result, start time.Time) audit.Record {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		r.logger.Error("marshaling result for audit", "template_id", templateID, "error", err)
		resultJSON = nil
	}

	rec := audit.Record{
		Timestamp:  time.Now().UTC(),
		Target:     templateID,
		Params:     params,
		Result:     resultJSON,
		Success:    result.Success,
		Error:      result.Error,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err := r.audit.Append(templateID, rec); err != nil {
		r.logger.Error("audit append failed", "template_id", templateID, "error", err)
	}
	return rec
}

// failure builds a failed Result carrying the error message.
func failure(msg string) *Result {
	return &Result{Success: false, Error: msg}
}
