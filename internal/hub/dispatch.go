// ABOUTME: Inbound websocket message dispatch: chat, subscribe, actions, inbox
// ABOUTME: Every failure is answered with an explicit error message

package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389/switchboard/internal/mailbox"
	"github.com/2389/switchboard/internal/plugin"
	"github.com/2389/switchboard/internal/registry"
	"github.com/2389/switchboard/internal/store"
	"github.com/2389/switchboard/internal/wire"
)

// dispatch routes one raw client message.
func (h *Hub) dispatch(ctx context.Context, c *conn, raw []byte) {
	msgType, err := wire.MessageType(raw)
	if err != nil {
		c.Send(&wire.Error{Type: wire.TypeError, Error: err.Error()})
		return
	}

	switch msgType {
	case wire.TypeChat:
		h.handleChat(ctx, c, raw)
	case wire.TypeSubscribe:
		h.handleSubscribe(c, raw)
	case wire.TypeUnsubscribe:
		h.handleUnsubscribe(c, raw)
	case wire.TypeRequestInbox:
		h.handleRequestInbox(ctx, c)
	case wire.TypeExecuteAction:
		h.handleExecuteAction(ctx, c, raw)
	case wire.TypeComponentAction:
		h.handleComponentAction(ctx, c, raw)
	default:
		c.Send(&wire.Error{
			Type:  wire.TypeError,
			Error: fmt.Sprintf("unknown message type: %s", msgType),
		})
	}
}

// handleChat resolves (or creates) the session, auto-subscribes the
// sender and submits the turn without blocking the read loop.
func (h *Hub) handleChat(ctx context.Context, c *conn, raw []byte) {
	var req wire.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.Send(&wire.Error{Type: wire.TypeError, Error: "malformed chat request"})
		return
	}
	if req.Content == "" {
		c.Send(&wire.Error{Type: wire.TypeError, Error: "chat content is empty"})
		return
	}

	sess := h.sessionFor(req.SessionID)
	sess.Subscribe(c)
	if req.NewConversation {
		sess.EndConversation()
	}

	go func() {
		if err := sess.SubmitTurn(context.WithoutCancel(ctx), req.Content); err != nil {
			h.logger.Error("turn submission failed",
				"session_id", sess.ID(), "error", err)
		}
	}()
}

func (h *Hub) handleSubscribe(c *conn, raw []byte) {
	var req wire.SubscribeRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.SessionID == "" {
		c.Send(&wire.Error{Type: wire.TypeError, Error: "malformed subscribe request"})
		return
	}
	h.sessionFor(req.SessionID).Subscribe(c)
}

func (h *Hub) handleUnsubscribe(c *conn, raw []byte) {
	var req wire.SubscribeRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.SessionID == "" {
		c.Send(&wire.Error{Type: wire.TypeError, Error: "malformed unsubscribe request"})
		return
	}

	h.mu.Lock()
	sess, ok := h.sessions[req.SessionID]
	h.mu.Unlock()
	if !ok {
		return
	}
	sess.Unsubscribe(c)
	h.maybeScheduleCleanup(sess)
}

func (h *Hub) handleRequestInbox(ctx context.Context, c *conn) {
	emails, err := h.deps.Mail.Recent(ctx, mailbox.DefaultSnapshotSize)
	if err != nil {
		c.Send(&wire.Error{Type: wire.TypeError, Error: "inbox unavailable"})
		return
	}
	c.Send(&wire.InboxUpdate{Type: wire.TypeInboxUpdate, Emails: emails})
}

// handleExecuteAction runs the action template the request's instance id
// names and reports its result to the requesting connection. Component
// instances the action declares are persisted and announced to every
// connection.
func (h *Hub) handleExecuteAction(ctx context.Context, c *conn, raw []byte) {
	var req wire.ExecuteActionRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.InstanceID == "" {
		c.Send(&wire.Error{Type: wire.TypeError, Error: "malformed execute_action request"})
		return
	}

	result, _ := h.deps.Runtime.Execute(ctx, registry.KindAction, req.InstanceID,
		req.Params, h.capabilities(req.SessionID))
	h.publishComponents(ctx, result, req.SessionID)

	c.Send(&wire.ActionResult{
		Type:       wire.TypeActionResult,
		InstanceID: req.InstanceID,
		Result:     result,
		SessionID:  req.SessionID,
	})
}

// handleComponentAction runs an action invoked from inside a rendered
// component instance.
func (h *Hub) handleComponentAction(ctx context.Context, c *conn, raw []byte) {
	var req wire.ComponentActionRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.ActionID == "" || req.InstanceID == "" {
		c.Send(&wire.Error{Type: wire.TypeError, Error: "malformed component_action request"})
		return
	}

	if _, err := h.deps.Store.GetComponentInstance(ctx, req.InstanceID); err != nil {
		c.Send(&wire.Error{
			Type:  wire.TypeError,
			Error: fmt.Sprintf("unknown component instance: %s", req.InstanceID),
		})
		return
	}

	result, _ := h.deps.Runtime.Execute(ctx, registry.KindAction, req.ActionID,
		req.Params, h.capabilities(req.SessionID))
	h.publishComponents(ctx, result, req.SessionID)

	c.Send(&wire.ActionResult{
		Type:       wire.TypeActionResult,
		InstanceID: req.InstanceID,
		Result:     result,
		SessionID:  req.SessionID,
	})
}

// publishComponents persists each component instance a result declares,
// initializes its bound state and announces it to all connections. New
// instances are visible to every viewer, not just the requester.
func (h *Hub) publishComponents(ctx context.Context, result *plugin.Result, sessionID string) {
	for _, spec := range result.Components {
		instanceID := spec.InstanceID
		if instanceID == "" {
			instanceID = uuid.New().String()
		}

		instance := &store.ComponentInstance{
			InstanceID:  instanceID,
			ComponentID: spec.ComponentID,
			StateID:     spec.StateID,
			SessionID:   sessionID,
			CreatedAt:   time.Now().UTC(),
		}
		if err := h.deps.Store.SaveComponentInstance(ctx, instance); err != nil {
			h.logger.Error("persisting component instance failed",
				"instance_id", instanceID, "error", err)
			continue
		}
		if spec.StateID != "" {
			if _, err := h.deps.State.InitializeIfNeeded(ctx, spec.StateID); err != nil {
				h.logger.Warn("initializing component state failed",
					"state_id", spec.StateID, "error", err)
			}
		}

		h.broadcast(&wire.ComponentInstance{
			Type:      wire.TypeComponentInstance,
			Instance:  instance,
			SessionID: sessionID,
		})
	}
}
