// ABOUTME: Typed JSON message vocabulary for the websocket protocol
// ABOUTME: Client and server payloads share a {type:...} envelope dispatched by type

package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Client message types.
const (
	TypeChat            = "chat"
	TypeSubscribe       = "subscribe"
	TypeUnsubscribe     = "unsubscribe"
	TypeExecuteAction   = "execute_action"
	TypeRequestInbox    = "request_inbox"
	TypeComponentAction = "component_action"
)

// Server message types.
const (
	TypeConnected          = "connected"
	TypeSessionInfo        = "session_info"
	TypeAssistantMessage   = "assistant_message"
	TypeToolUse            = "tool_use"
	TypeToolResult         = "tool_result"
	TypeUserMessage        = "user_message"
	TypeSystem             = "system"
	TypeResult             = "result"
	TypeInboxUpdate        = "inbox_update"
	TypeActionTemplates    = "action_templates"
	TypeUIStateTemplates   = "ui_state_templates"
	TypeComponentTemplates = "component_templates"
	TypeUIStateUpdate      = "ui_state_update"
	TypeComponentInstance  = "component_instance"
	TypeActionResult       = "action_result"
	TypeListenerLog        = "listener_log"
	TypeError              = "error"
)

// ChatRequest submits a user turn to a session.
type ChatRequest struct {
	Type            string `json:"type"`
	Content         string `json:"content"`
	SessionID       string `json:"sessionId"`
	NewConversation bool   `json:"newConversation,omitempty"`
}

// SubscribeRequest subscribes or unsubscribes the connection to a session.
type SubscribeRequest struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// ExecuteActionRequest runs an action template. InstanceID names the
// action being invoked; params are optional extra arguments.
type ExecuteActionRequest struct {
	Type       string          `json:"type"`
	InstanceID string          `json:"instanceId"`
	Params     json.RawMessage `json:"params,omitempty"`
	SessionID  string          `json:"sessionId"`
}

// ComponentActionRequest runs an action from within a rendered component.
type ComponentActionRequest struct {
	Type       string          `json:"type"`
	InstanceID string          `json:"instanceId"`
	ActionID   string          `json:"actionId"`
	Params     json.RawMessage `json:"params,omitempty"`
	SessionID  string          `json:"sessionId"`
}

// RequestInbox asks for the current inbox snapshot.
type RequestInbox struct {
	Type string `json:"type"`
}

// Connected acknowledges a new connection.
type Connected struct {
	Type              string   `json:"type"`
	AvailableSessions []string `json:"availableSessions"`
}

// SessionInfo is the snapshot sent to a new subscriber.
type SessionInfo struct {
	Type         string `json:"type"`
	SessionID    string `json:"sessionId"`
	MessageCount int    `json:"messageCount"`
	IsActive     bool   `json:"isActive"`
}

// StreamEvent carries one normalized conversation event for a session.
// Used for assistant_message, tool_use, tool_result, user_message and system.
type StreamEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Content   string          `json:"content,omitempty"`
	ToolName  string          `json:"toolName,omitempty"`
	ToolID    string          `json:"toolId,omitempty"`
	ToolInput json.RawMessage `json:"toolInput,omitempty"`
	Subtype   string          `json:"subtype,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// TurnResult is the terminal event of one turn.
type TurnResult struct {
	Type       string  `json:"type"`
	Success    bool    `json:"success"`
	SessionID  string  `json:"sessionId"`
	CostUSD    float64 `json:"cost,omitempty"`
	DurationMS int64   `json:"duration,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// InboxUpdate broadcasts the latest email snapshot.
type InboxUpdate struct {
	Type   string `json:"type"`
	Emails any    `json:"emails"`
}

// Templates broadcasts the full template set of one registry kind.
// Type is one of action_templates, ui_state_templates, component_templates.
type Templates struct {
	Type      string `json:"type"`
	Templates any    `json:"templates"`
}

// UIStateUpdate notifies subscribers of a state write.
type UIStateUpdate struct {
	Type    string          `json:"type"`
	StateID string          `json:"stateId"`
	Data    json.RawMessage `json:"data"`
}

// ComponentInstance announces a newly created component instance.
type ComponentInstance struct {
	Type      string `json:"type"`
	Instance  any    `json:"instance"`
	SessionID string `json:"sessionId"`
}

// ActionResult reports the outcome of an action execution, echoing the
// invoking request's instance id.
type ActionResult struct {
	Type       string `json:"type"`
	InstanceID string `json:"instanceId"`
	Result     any    `json:"result"`
	SessionID  string `json:"sessionId"`
}

// ListenerLog broadcasts one listener execution audit record.
type ListenerLog struct {
	Type string `json:"type"`
	Log  any    `json:"log"`
}

// Error is the explicit failure message; the UI never sees a silent hang.
type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// MessageType extracts the envelope type from a raw client message.
// Returns an error when the payload is not JSON or lacks a type field.
func MessageType(raw []byte) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("invalid JSON message")
	}
	t := gjson.GetBytes(raw, "type")
	if !t.Exists() || t.String() == "" {
		return "", fmt.Errorf("message missing type field")
	}
	return t.String(), nil
}
