// ABOUTME: BroadcastHub: websocket endpoint, session registry, inbox poller
// ABOUTME: Per-connection writer goroutines; a slow client drops only itself

package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/switchboard/internal/agent"
	"github.com/2389/switchboard/internal/audit"
	"github.com/2389/switchboard/internal/mailbox"
	"github.com/2389/switchboard/internal/plugin"
	"github.com/2389/switchboard/internal/registry"
	"github.com/2389/switchboard/internal/session"
	"github.com/2389/switchboard/internal/state"
	"github.com/2389/switchboard/internal/store"
	"github.com/2389/switchboard/internal/wire"
)

// TriggerEmailReceived fires listener templates when the poller sees a
// new email.
const TriggerEmailReceived = "email_received"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Viewers connect from arbitrary origins; there is no auth layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Options tunes hub behavior. Zero values get sensible defaults.
type Options struct {
	// SessionGrace is how long a zero-subscriber session survives before
	// it is closed and forgotten.
	SessionGrace time.Duration

	// InboxPoll is the interval between inbox refetches.
	InboxPoll time.Duration

	// SendBuffer is the per-connection outbound queue depth.
	SendBuffer int

	// InstanceTTL is how old a component instance may grow before the
	// pruner removes it.
	InstanceTTL time.Duration
}

func (o *Options) defaults() {
	if o.SessionGrace <= 0 {
		o.SessionGrace = 5 * time.Minute
	}
	if o.InboxPoll <= 0 {
		o.InboxPoll = 30 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.InstanceTTL <= 0 {
		o.InstanceTTL = 24 * time.Hour
	}
}

// Deps are the collaborators the hub wires together.
type Deps struct {
	Runner     agent.Runner
	SubAgent   agent.SubAgent
	State      *state.Store
	Store      store.Store
	Mail       mailbox.Source
	Runtime    *plugin.Runtime
	Audit      *audit.Log
	Listeners  *registry.Registry
	Actions    *registry.Registry
	UIStates   *registry.Registry
	Components *registry.Registry
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Hub owns the connection set and the session registry and fans server
// events out to every viewer.
type Hub struct {
	opts Options
	deps Deps

	logger *slog.Logger

	mu         sync.Mutex
	conns      map[*conn]struct{}
	sessions   map[string]*session.Session
	cleanups   map[string]*time.Timer
	seenEmails map[string]struct{}
	polledOnce bool
}

// New creates a hub. Call Start to launch the poller and watchers.
func New(opts Options, deps Deps) *Hub {
	opts.defaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Hub{
		opts:       opts,
		deps:       deps,
		logger:     deps.Logger.With("component", "hub"),
		conns:      make(map[*conn]struct{}),
		sessions:   make(map[string]*session.Session),
		cleanups:   make(map[string]*time.Timer),
		seenEmails: make(map[string]struct{}),
	}
}

// Start launches the inbox poller, the state-change relay and the
// template watchers. They all stop when ctx is done.
func (h *Hub) Start(ctx context.Context) {
	h.deps.State.Subscribe(func(stateID string, data json.RawMessage) {
		h.broadcast(&wire.UIStateUpdate{
			Type:    wire.TypeUIStateUpdate,
			StateID: stateID,
			Data:    data,
		})
	})

	go h.pollInbox(ctx)
	go h.pruneInstances(ctx)

	watch := func(r *registry.Registry, msgType string) {
		go func() {
			err := r.Watch(ctx, func(templates []*registry.Template) {
				if msgType != "" {
					h.broadcast(&wire.Templates{Type: msgType, Templates: templates})
				}
			})
			if err != nil {
				h.logger.Error("template watcher failed",
					"kind", string(r.Kind()), "error", err)
			}
		}()
	}
	watch(h.deps.Listeners, "")
	watch(h.deps.Actions, wire.TypeActionTemplates)
	watch(h.deps.UIStates, wire.TypeUIStateTemplates)
	watch(h.deps.Components, wire.TypeComponentTemplates)
}

// Close drops every connection and session.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	sessions := make([]*session.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	for _, t := range h.cleanups {
		t.Stop()
	}
	h.sessions = make(map[string]*session.Session)
	h.cleanups = make(map[string]*time.Timer)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	for _, s := range sessions {
		s.Close()
	}
}

// ServeWS upgrades an HTTP request to a websocket viewer connection and
// blocks in its read loop until the connection drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newConn(h, ws)
	h.register(c)
	defer h.unregister(c)

	h.sendWelcome(r.Context(), c)
	c.readLoop(r.Context())
}

// register adds the connection and starts its writer.
func (h *Hub) register(c *conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()

	go c.writeLoop()
	h.logger.Info("viewer connected", "connections", n)
}

// unregister removes the connection, detaches it from every session and
// schedules cleanup for sessions it left empty.
func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	delete(h.conns, c)
	n := len(h.conns)
	sessions := make([]*session.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	c.close()
	for _, s := range sessions {
		s.Unsubscribe(c)
		h.maybeScheduleCleanup(s)
	}
	h.logger.Info("viewer disconnected", "connections", n)
}

// welcomeLogLimit caps how many audit records per listener template are
// replayed to a new connection.
const welcomeLogLimit = 10

// sendWelcome sends the connected ack, template snapshots, today's
// listener logs and the latest inbox to one new connection.
func (h *Hub) sendWelcome(ctx context.Context, c *conn) {
	h.mu.Lock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	sort.Strings(ids)

	c.Send(&wire.Connected{Type: wire.TypeConnected, AvailableSessions: ids})
	c.Send(&wire.Templates{Type: wire.TypeActionTemplates, Templates: h.deps.Actions.List()})
	c.Send(&wire.Templates{Type: wire.TypeUIStateTemplates, Templates: h.deps.UIStates.List()})
	c.Send(&wire.Templates{Type: wire.TypeComponentTemplates, Templates: h.deps.Components.List()})
	h.replayListenerLogs(c)

	emails, err := h.deps.Mail.Recent(ctx, mailbox.DefaultSnapshotSize)
	if err != nil {
		h.logger.Warn("inbox snapshot for welcome failed", "error", err)
		return
	}
	c.Send(&wire.InboxUpdate{Type: wire.TypeInboxUpdate, Emails: emails})
}

// replayListenerLogs sends today's recent audit records for each listener
// template so a fresh viewer sees what fired before it connected.
func (h *Hub) replayListenerLogs(c *conn) {
	day := time.Now().UTC()
	for _, tmpl := range h.deps.Listeners.List() {
		records, err := h.deps.Audit.Recent(tmpl.ID, day, welcomeLogLimit)
		if err != nil {
			h.logger.Warn("reading listener audit failed",
				"template_id", tmpl.ID, "error", err)
			continue
		}
		for i := range records {
			c.Send(&wire.ListenerLog{Type: wire.TypeListenerLog, Log: records[i]})
		}
	}
}

// broadcast sends one message to every connection.
func (h *Hub) broadcast(v any) {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Send(v)
	}
}

// sessionFor returns the session for id, creating it lazily. An empty id
// allocates a fresh session. Pending cleanup for the id is cancelled.
func (h *Hub) sessionFor(id string) *session.Session {
	if id == "" {
		id = uuid.New().String()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.cleanups[id]; ok {
		t.Stop()
		delete(h.cleanups, id)
	}
	if s, ok := h.sessions[id]; ok {
		return s
	}

	s := session.New(id, h.deps.Runner, h.deps.Logger)
	h.sessions[id] = s
	h.logger.Info("session created", "session_id", id)
	return s
}

// maybeScheduleCleanup arms the grace timer for a session nobody watches.
// A re-subscribe within the window cancels it.
func (h *Hub) maybeScheduleCleanup(s *session.Session) {
	if s.SubscriberCount() > 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id := s.ID()
	if _, pending := h.cleanups[id]; pending {
		return
	}
	h.cleanups[id] = time.AfterFunc(h.opts.SessionGrace, func() {
		h.sweepSession(id)
	})
}

// sweepSession removes the session if it is still unwatched.
func (h *Hub) sweepSession(id string) {
	h.mu.Lock()
	delete(h.cleanups, id)
	s, ok := h.sessions[id]
	if ok && s.SubscriberCount() > 0 {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, id)
	h.mu.Unlock()

	if ok {
		s.Close()
		h.logger.Info("idle session swept", "session_id", id)
	}
}

// pollInbox refetches the inbox on a fixed interval, broadcasts the
// snapshot unconditionally and fires email_received listeners for emails
// not seen before.
func (h *Hub) pollInbox(ctx context.Context) {
	ticker := time.NewTicker(h.opts.InboxPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pollInboxOnce(ctx)
		}
	}
}

func (h *Hub) pollInboxOnce(ctx context.Context) {
	emails, err := h.deps.Mail.Recent(ctx, mailbox.DefaultSnapshotSize)
	if err != nil {
		h.logger.Warn("inbox poll failed", "error", err)
		return
	}

	h.broadcast(&wire.InboxUpdate{Type: wire.TypeInboxUpdate, Emails: emails})

	h.mu.Lock()
	firstPoll := !h.polledOnce
	h.polledOnce = true
	var fresh []*store.Email
	for _, e := range emails {
		if _, seen := h.seenEmails[e.ID]; !seen {
			h.seenEmails[e.ID] = struct{}{}
			fresh = append(fresh, e)
		}
	}
	h.mu.Unlock()

	// The first poll establishes the baseline; pre-existing mail does
	// not fire listeners.
	if firstPoll {
		return
	}
	for _, e := range fresh {
		h.fireEmailListeners(ctx, e)
	}
}

// pruneInstances removes component instances older than the TTL, hourly.
func (h *Hub) pruneInstances(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-h.opts.InstanceTTL)
			n, err := h.deps.Store.PruneComponentInstances(ctx, cutoff)
			if err != nil {
				h.logger.Warn("pruning component instances failed", "error", err)
				continue
			}
			if n > 0 {
				h.logger.Info("component instances pruned", "count", n)
			}
		}
	}
}

// fireEmailListeners runs every listener template triggered by
// email_received against one new email.
func (h *Hub) fireEmailListeners(ctx context.Context, email *store.Email) {
	params, err := json.Marshal(map[string]string{
		"emailId": email.ID,
		"from":    email.From,
		"subject": email.Subject,
	})
	if err != nil {
		return
	}

	for _, tmpl := range h.deps.Listeners.List() {
		if tmpl.Trigger != TriggerEmailReceived {
			continue
		}
		_, rec := h.deps.Runtime.Execute(ctx, registry.KindListener, tmpl.ID,
			params, h.capabilities(""))
		h.broadcast(&wire.ListenerLog{Type: wire.TypeListenerLog, Log: rec})
	}
}

// capabilities builds the per-invocation capability set handlers run with.
func (h *Hub) capabilities(sessionID string) *plugin.Capabilities {
	return &plugin.Capabilities{
		SessionID: sessionID,
		Mail:      h.deps.Mail,
		Agent:     h.deps.SubAgent,
		State:     h.deps.State,
		Notify: func(level, message string) {
			h.broadcast(&wire.StreamEvent{
				Type:      wire.TypeSystem,
				SessionID: sessionID,
				Subtype:   level,
				Content:   message,
				Timestamp: time.Now().UTC(),
			})
		},
		HTTP:   h.deps.HTTPClient,
		Logger: h.logger,
	}
}
