// ABOUTME: HTTP surface: websocket endpoint, UI-state REST API, health
// ABOUTME: Stdlib mux with Go 1.22 method patterns; JSON in, JSON out

package hub

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/2389/switchboard/internal/state"
)

// maxStateBody bounds a PUT body; state documents are small.
const maxStateBody = 1 << 20

// Handler returns the hub's full HTTP surface.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /api/ui-states", h.handleListStates)
	mux.HandleFunc("GET /api/ui-state/{id}", h.handleGetState)
	mux.HandleFunc("PUT /api/ui-state/{id}", h.handlePutState)
	mux.HandleFunc("DELETE /api/ui-state/{id}", h.handleDeleteState)
	mux.HandleFunc("GET /api/ui-state-templates", h.handleStateTemplates)
	mux.HandleFunc("GET /api/component-templates", h.handleComponentTemplates)
	return mux
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Hub) handleListStates(w http.ResponseWriter, r *http.Request) {
	states, err := h.deps.State.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing states failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"states": states})
}

func (h *Hub) handleGetState(w http.ResponseWriter, r *http.Request) {
	stateID := r.PathValue("id")
	data, err := h.deps.State.Get(r.Context(), stateID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			writeError(w, http.StatusNotFound, "state not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "reading state failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stateId": stateID,
		"data":    data,
	})
}

func (h *Hub) handlePutState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxStateBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body failed")
		return
	}

	var req struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object with a data field")
		return
	}
	if len(req.Data) == 0 {
		writeError(w, http.StatusBadRequest, "missing data field")
		return
	}

	if err := h.deps.State.Set(r.Context(), r.PathValue("id"), req.Data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Hub) handleDeleteState(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.State.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			writeError(w, http.StatusNotFound, "state not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "deleting state failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Hub) handleStateTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": h.deps.UIStates.List()})
}

func (h *Hub) handleComponentTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": h.deps.Components.List()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
