package client

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/alignment-sync/internal/engine"
	"github.com/DoyleJ11/alignment-sync/internal/session"
	"github.com/DoyleJ11/alignment-sync/pkg/protocol"
)

type clientIdentified struct {
	PlayerID string `json:"your_player_id"`
}

type systemMessage struct {
	Message string `json:"message"`
	Error   bool   `json:"error"`
}

type countdown struct {
	Duration  float64 `json:"duration"`
	Remaining float64 `json:"remaining"`
}

// bridge turns server events and game state changes into session actions.
func (c *Client) bridge() {
	c.router.On(protocol.EventClientIdentified, func(ev protocol.Event) {
		var p clientIdentified
		if c.decode(ev, &p) && p.PlayerID != "" {
			c.apply(session.Action{Type: session.ActionClientIdentified, PlayerID: p.PlayerID})
		}
	})
	c.router.On(protocol.EventLobbyStateUpdate, func(ev protocol.Event) {
		var u session.LobbyUpdate
		if c.decode(ev, &u) {
			c.apply(session.Action{Type: session.ActionUpdateLobbyState, Lobby: u})
		}
	})
	c.router.On(protocol.EventSystemMessage, func(ev protocol.Event) {
		var m systemMessage
		if c.decode(ev, &m) && m.Error {
			c.apply(session.Action{Type: session.ActionSetConnectionError, Message: m.Message})
		}
	})
	c.router.On(protocol.EventCountdownInitiated, func(ev protocol.Event) {
		var p countdown
		if c.decode(ev, &p) {
			c.apply(session.Action{Type: session.ActionCountdownStart, Seconds: int(p.Duration)})
		}
	})
	c.router.On(protocol.EventCountdownUpdate, func(ev protocol.Event) {
		var p countdown
		if c.decode(ev, &p) {
			c.apply(session.Action{Type: session.ActionCountdownUpdate, Seconds: int(p.Remaining)})
		}
	})
	c.router.On(protocol.EventCountdownCancelled, func(protocol.Event) {
		c.apply(session.Action{Type: session.ActionCountdownCancel})
	})
	c.router.On(protocol.EventGameStarted, func(protocol.Event) {
		c.apply(session.Action{Type: session.ActionEnterGame})
	})

	c.engine.OnStateChange(c.followGame)
}

// followGame keeps the session phase and role assignment in line with the
// game: a running game moves the lobby into the game, a win condition ends
// it.
func (c *Client) followGame(gs engine.GameState) {
	v, err := c.session.State(c.ctx)
	if err != nil {
		return
	}
	snap := v.Snapshot

	if snap.State == session.InLobby && gs.Phase.Type != engine.PhaseLobby {
		snap = c.apply(session.Action{Type: session.ActionEnterGame})
	}

	if p, ok := gs.Player(snap.Identity.PlayerID); ok && p.Role != nil && p.Alignment != "" {
		next := &session.RoleAssignment{Role: *p.Role, Alignment: p.Alignment}
		if p.PersonalKPI != nil {
			kpi := *p.PersonalKPI
			next.PersonalKPI = &kpi
		}
		if !sameRole(snap.Role, next) {
			snap = c.apply(session.Action{Type: session.ActionUpdateRoleAssignment, Role: next})
		}
	}

	if gs.WinCondition != nil && snap.State == session.InGame {
		c.log.Info("game over", zap.String("winner", gs.WinCondition.Winner), zap.String("condition", gs.WinCondition.Condition))
		c.apply(session.Action{Type: session.ActionGameOver})
	}
}

func sameRole(a, b *session.RoleAssignment) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Role.Type == b.Role.Type &&
		a.Role.IsUnlocked == b.Role.IsUnlocked &&
		a.Alignment == b.Alignment &&
		(a.PersonalKPI == nil) == (b.PersonalKPI == nil)
}

// apply dispatches a bridged action. A transition the session does not
// allow from its current state is expected and only logged at debug level.
func (c *Client) apply(a session.Action) session.Snapshot {
	snap, err := c.session.Dispatch(c.ctx, a)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrIllegalTransition):
		c.log.Debug("bridged action ignored", zap.String("action", string(a.Type)), zap.Error(err))
	default:
		c.log.Warn("bridged action failed", zap.String("action", string(a.Type)), zap.Error(err))
	}
	return snap
}

func (c *Client) decode(ev protocol.Event, v any) bool {
	raw, err := json.Marshal(ev.Payload)
	if err == nil {
		err = json.Unmarshal(raw, v)
	}
	if err != nil {
		c.log.Warn("bad event payload", zap.String("type", string(ev.Type)), zap.Error(err))
		return false
	}
	return true
}
