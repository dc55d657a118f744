// ABOUTME: Template type, kinds and per-kind validation rules
// ABOUTME: Handlers are names resolved against the in-process dispatch table

package registry

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the four template registries.
type Kind string

const (
	KindListener  Kind = "listener"
	KindAction    Kind = "action"
	KindUIState   Kind = "ui_state"
	KindComponent Kind = "component"
)

// Template is one discovered, validated plugin definition. Which fields are
// required depends on the kind; the rest stay empty.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Listener: the event that fires it plus the handler to run.
	Trigger string `json:"trigger,omitempty"`

	// Listener/Action: name of the registered handler, plus optional
	// static configuration passed to every invocation.
	Handler string          `json:"handler,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`

	// Action: display icon.
	Icon string `json:"icon,omitempty"`

	// UIState: the value a state document starts from.
	InitialState json.RawMessage `json:"initialState,omitempty"`

	// Component: the state document this component renders.
	StateID string `json:"stateId,omitempty"`
}

// Validate checks the shape required for the given kind.
func (t *Template) Validate(kind Kind) error {
	if t.ID == "" {
		return fmt.Errorf("template missing id")
	}

	switch kind {
	case KindListener:
		if t.Trigger == "" {
			return fmt.Errorf("listener %q missing trigger", t.ID)
		}
		if t.Handler == "" {
			return fmt.Errorf("listener %q missing handler", t.ID)
		}
	case KindAction:
		if t.Handler == "" {
			return fmt.Errorf("action %q missing handler", t.ID)
		}
	case KindUIState:
		if len(t.InitialState) == 0 {
			return fmt.Errorf("ui state %q missing initialState", t.ID)
		}
		if !json.Valid(t.InitialState) {
			return fmt.Errorf("ui state %q has invalid initialState", t.ID)
		}
	case KindComponent:
		if t.StateID == "" {
			return fmt.Errorf("component %q missing stateId", t.ID)
		}
	default:
		return fmt.Errorf("unknown template kind %q", kind)
	}
	return nil
}
