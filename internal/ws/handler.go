// Package ws streams one game client's session to a local UI over a
// websocket and takes the UI's intents and session actions in return.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/alignment-sync/internal/actions"
	"github.com/DoyleJ11/alignment-sync/internal/client"
	"github.com/DoyleJ11/alignment-sync/internal/hub"
	"github.com/DoyleJ11/alignment-sync/internal/session"
)

const writeTimeout = 3 * time.Second

// ClientMessage is what the UI sends. Kind "submit" carries an Intent for
// the game server, kind "dispatch" a session Action.
type ClientMessage struct {
	Kind   string          `json:"kind"`
	Intent *actions.Intent `json:"intent,omitempty"`
	Action *session.Action `json:"action,omitempty"`
}

// ServerMessage is what the UI receives.
type ServerMessage struct {
	Type    string            `json:"type"`
	Version int               `json:"version,omitempty"`
	Session *session.Snapshot `json:"session,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Handler serves /sessions/{gameID}/stream.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")
		c, err := h.Get(r.Context(), gameID)
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		if c == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan session.Update, 8)
		watcherID := "ui-" + uuid.NewString()
		if err := c.Watch(r.Context(), watcherID, out); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "session closed")
			return
		}
		defer func() { _ = c.Unwatch(context.Background(), watcherID) }()

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for u := range out {
				snap := u.Snapshot
				writeJSON(writeCtx, conn, ServerMessage{Type: "SessionSnapshot", Version: u.Version, Session: &snap})
			}
			// closed because the client stopped or this watcher fell behind
			_ = conn.Close(websocket.StatusGoingAway, "session stream ended")
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("ui stream ended", zap.String("game_id", gameID), zap.Error(err))
				}
				return
			}

			var cm ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeJSON(r.Context(), conn, ServerMessage{Type: "Error", Error: "bad json"})
				continue
			}
			if err := handle(r.Context(), c, cm); err != nil {
				writeJSON(r.Context(), conn, ServerMessage{Type: "Error", Error: err.Error()})
			}
		}
	}
}

var errUnknownKind = errors.New("unknown message kind")

func handle(ctx context.Context, c *client.Client, m ClientMessage) error {
	switch {
	case m.Kind == "submit" && m.Intent != nil:
		_, err := c.Submit(ctx, *m.Intent)
		return err
	case m.Kind == "dispatch" && m.Action != nil:
		_, err := c.Dispatch(ctx, *m.Action)
		return err
	default:
		return errUnknownKind
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
