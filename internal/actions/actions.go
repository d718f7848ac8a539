// Package actions turns user intents into the wire action sent to the
// server and the events predicted locally while the server's answer is in
// flight.
package actions

import (
	"maps"
	"time"

	"github.com/DoyleJ11/alignment-sync/internal/engine"
	"github.com/DoyleJ11/alignment-sync/pkg/protocol"
)

// Intent is one thing the local player asked for. It is never persisted.
type Intent struct {
	Type     protocol.ActionType `json:"type"`
	GameID   string              `json:"game_id"`
	PlayerID string              `json:"player_id"`
	Payload  map[string]any      `json:"payload,omitempty"`
}

// IDFunc mints ids for predicted events.
type IDFunc func() string

// predictions maps an action to the event the server is expected to answer
// with. Actions missing here have no local prediction.
var predictions = map[protocol.ActionType]protocol.EventType{
	protocol.ActionSubmitVote:          protocol.EventVoteCast,
	protocol.ActionPostChatMessage:     protocol.EventChatMessage,
	protocol.ActionSubmitNightAction:   protocol.EventNightActionSubmitted,
	protocol.ActionSubmitPulseCheck:    protocol.EventPulseCheckSubmitted,
	protocol.ActionUpdateStatus:        protocol.EventSlackStatusChanged,
	protocol.ActionSubmitExitInterview: protocol.EventPartingShotSet,
}

// Predicts reports whether Translate yields any event for t.
func Predicts(t protocol.ActionType) bool {
	_, ok := predictions[t]
	return ok
}

// Translate returns the events the server is expected to answer in with.
// It has no side effects; ids come from newID and every event is stamped
// with now.
func Translate(in Intent, newID IDFunc, now time.Time) []engine.Event {
	typ, ok := predictions[in.Type]
	if !ok {
		return nil
	}
	payload := maps.Clone(in.Payload)
	if payload == nil {
		payload = map[string]any{}
	}
	if in.Type == protocol.ActionSubmitNightAction {
		if _, ok := payload["target_id"]; !ok {
			if target, ok := payload["target_player_id"]; ok {
				payload["target_id"] = target
			}
		}
	}
	return []engine.Event{{
		ID:        newID(),
		Type:      typ,
		GameID:    in.GameID,
		PlayerID:  in.PlayerID,
		Timestamp: now,
		Payload:   payload,
	}}
}

// Wire builds the envelope the server expects, with the game and player ids
// carried inside the payload.
func Wire(in Intent) protocol.Action {
	payload := maps.Clone(in.Payload)
	if payload == nil {
		payload = map[string]any{}
	}
	if in.GameID != "" {
		payload["game_id"] = in.GameID
	}
	if in.PlayerID != "" {
		payload["player_id"] = in.PlayerID
	}
	return protocol.Action{Type: in.Type, Payload: payload}
}
