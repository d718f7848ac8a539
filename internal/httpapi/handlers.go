package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/alignment-sync/internal/actions"
	"github.com/DoyleJ11/alignment-sync/internal/client"
	"github.com/DoyleJ11/alignment-sync/internal/hub"
	"github.com/DoyleJ11/alignment-sync/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// lookup resolves {gameID}. It writes the error response itself and returns
// nil when there is nothing to serve.
func lookup(h *hub.Hub, w http.ResponseWriter, r *http.Request) *client.Client {
	c, err := h.Get(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
		return nil
	}
	if c == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil
	}
	return c
}

func ListSessions(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := h.List(r.Context())
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Sessions []string `json:"sessions"`
		}{Sessions: ids})
	}
}

func GameState(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := lookup(h, w, r)
		if c == nil {
			return
		}
		gs, ok := c.GameState()
		if !ok {
			http.Error(w, "no game state yet", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, gs)
	}
}

func Connection(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := lookup(h, w, r)
		if c == nil {
			return
		}
		cs := c.ConnectionState()
		writeJSON(w, http.StatusOK, struct {
			IsConnected    bool   `json:"is_connected"`
			IsReconnecting bool   `json:"is_reconnecting"`
			LastError      string `json:"last_error,omitempty"`
			SyncMode       string `json:"sync_mode"`
		}{
			IsConnected:    cs.IsConnected,
			IsReconnecting: cs.IsReconnecting,
			LastError:      cs.LastError,
			SyncMode:       c.SyncMode(chi.URLParam(r, "gameID")),
		})
	}
}

func Session(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := lookup(h, w, r)
		if c == nil {
			return
		}
		v, err := c.Session(r.Context())
		if err != nil {
			http.Error(w, "session closed", http.StatusGone)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Version int              `json:"version"`
			Session session.Snapshot `json:"session"`
		}{Version: v.Version, Session: v.Snapshot})
	}
}

// SubmitAction accepts a JSON intent for the game server. The predicted
// events, if any, are echoed back.
func SubmitAction(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := lookup(h, w, r)
		if c == nil {
			return
		}
		var in actions.Intent
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		predicted, err := c.Submit(r.Context(), in)
		switch {
		case err == nil:
		case errors.Is(err, actions.ErrUnknownAction):
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		case errors.Is(err, actions.ErrNotConnected), errors.Is(err, client.ErrNoSession):
			http.Error(w, err.Error(), http.StatusConflict)
			return
		default:
			// the action was sent; only the local prediction failed
			log.Warn("prediction failed", zap.String("action", string(in.Type)), zap.Error(err))
		}
		writeJSON(w, http.StatusAccepted, struct {
			Predicted int `json:"predicted"`
		}{Predicted: len(predicted)})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
