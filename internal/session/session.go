// Package session is the coarse state machine over the player's session:
// idle, waiting in a lobby, playing, and looking at the results. It decides
// whether a game connection should exist at all and knows nothing about the
// game state itself.
package session

import (
	"errors"
	"fmt"
	"slices"

	"github.com/DoyleJ11/alignment-sync/internal/engine"
	"github.com/DoyleJ11/alignment-sync/pkg/protocol"
)

var ErrIllegalTransition = errors.New("illegal session transition")
var ErrUnknownAction = errors.New("unknown session action")

type State string

const (
	Idle     State = "IDLE"
	InLobby  State = "IN_LOBBY"
	InGame   State = "IN_GAME"
	PostGame State = "POST_GAME"
)

type ActionType string

const (
	ActionLogin       ActionType = "LOGIN"
	ActionJoinLobby   ActionType = "JOIN_LOBBY"
	ActionCreateGame  ActionType = "CREATE_GAME"
	ActionLeaveLobby  ActionType = "LEAVE_LOBBY"
	ActionEnterGame   ActionType = "ENTER_GAME"
	ActionGameOver    ActionType = "GAME_OVER"
	ActionPlayAgain   ActionType = "PLAY_AGAIN"
	ActionBackToLogin ActionType = "BACK_TO_LOGIN"

	ActionUpdateLobbyState     ActionType = "UPDATE_LOBBY_STATE"
	ActionSetConnectionError   ActionType = "SET_CONNECTION_ERROR"
	ActionClearConnectionError ActionType = "CLEAR_CONNECTION_ERROR"
	ActionClientIdentified     ActionType = "CLIENT_IDENTIFIED"
	ActionUpdateRoleAssignment ActionType = "UPDATE_ROLE_ASSIGNMENT"
	ActionResetLobbyState      ActionType = "RESET_LOBBY_STATE"
	ActionCountdownStart       ActionType = "COUNTDOWN_START"
	ActionCountdownUpdate      ActionType = "COUNTDOWN_UPDATE"
	ActionCountdownCancel      ActionType = "COUNTDOWN_CANCEL"
)

// validFrom lists the states a phase action may be taken from. A nil entry
// means any state. Actions absent from the map only touch the payload.
var validFrom = map[ActionType][]State{
	ActionLogin:       nil,
	ActionJoinLobby:   {Idle},
	ActionCreateGame:  {Idle},
	ActionLeaveLobby:  {InLobby},
	ActionEnterGame:   {InLobby},
	ActionGameOver:    {InGame},
	ActionPlayAgain:   {PostGame},
	ActionBackToLogin: nil,
}

const defaultMaxPlayers = 8

type LobbyPlayer struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type Countdown struct {
	Active    bool `json:"is_active"`
	Remaining int  `json:"remaining"`
	Duration  int  `json:"duration"`
}

type Lobby struct {
	PlayerID        string        `json:"player_id,omitempty"`
	Players         []LobbyPlayer `json:"players"`
	HostID          string        `json:"host_id"`
	IsHost          bool          `json:"is_host"`
	CanStart        bool          `json:"can_start"`
	Name            string        `json:"name"`
	MaxPlayers      int           `json:"max_players"`
	ConnectionError string        `json:"connection_error,omitempty"`
	Countdown       *Countdown    `json:"countdown,omitempty"`
}

type RoleAssignment struct {
	Role        engine.Role         `json:"role"`
	Alignment   string              `json:"alignment"`
	PersonalKPI *engine.PersonalKPI `json:"personal_kpi,omitempty"`
}

// LobbyUpdate is the payload of UPDATE_LOBBY_STATE, shaped like the
// server's LOBBY_STATE_UPDATE event.
type LobbyUpdate struct {
	LobbyID    string        `json:"lobby_id"`
	Name       string        `json:"name"`
	HostID     string        `json:"host_id"`
	CanStart   bool          `json:"can_start"`
	MaxPlayers int           `json:"max_players"`
	Players    []LobbyPlayer `json:"players"`
}

// Action drives Reduce. Only the fields its Type needs are read: LOGIN
// takes the player name and avatar, JOIN_LOBBY and CREATE_GAME the identity,
// CLIENT_IDENTIFIED the player id, and the countdown actions Seconds.
type Action struct {
	Type ActionType `json:"type"`

	PlayerName   string            `json:"player_name,omitempty"`
	PlayerAvatar string            `json:"player_avatar,omitempty"`
	Identity     protocol.Identity `json:"identity"`
	PlayerID     string            `json:"player_id,omitempty"`
	Message      string            `json:"message,omitempty"`
	Lobby        LobbyUpdate       `json:"lobby"`
	Role         *RoleAssignment   `json:"role,omitempty"`
	Seconds      int               `json:"seconds,omitempty"`
}

type Snapshot struct {
	State         State             `json:"state"`
	PlayerName    string            `json:"player_name"`
	PlayerAvatar  string            `json:"player_avatar,omitempty"`
	Identity      protocol.Identity `json:"identity"`
	InGameSession bool              `json:"in_game_session"`
	Lobby         Lobby             `json:"lobby"`
	Role          *RoleAssignment   `json:"role,omitempty"`
}

func Initial() Snapshot {
	return Snapshot{State: Idle, Lobby: emptyLobby("")}
}

func emptyLobby(playerID string) Lobby {
	return Lobby{PlayerID: playerID, Players: []LobbyPlayer{}, MaxPlayers: defaultMaxPlayers}
}

// ShouldConnect reports whether a game connection belongs to s.
func ShouldConnect(s Snapshot) bool {
	return s.InGameSession && s.Identity.Complete()
}

// Reduce returns the snapshot after a. An action that is not allowed from
// the current state leaves s unchanged and returns ErrIllegalTransition.
func Reduce(s Snapshot, a Action) (Snapshot, error) {
	if from, ok := validFrom[a.Type]; ok && from != nil && !slices.Contains(from, s.State) {
		return s, fmt.Errorf("%w: %s from %s", ErrIllegalTransition, a.Type, s.State)
	}

	next := s
	switch a.Type {
	case ActionLogin:
		next.PlayerName = a.PlayerName
		next.PlayerAvatar = a.PlayerAvatar
		next.State = Idle
		next.InGameSession = false

	case ActionJoinLobby, ActionCreateGame:
		next.Identity = a.Identity
		next.Lobby.PlayerID = a.Identity.PlayerID
		next.Lobby.Countdown = nil
		next.State = InLobby
		next.InGameSession = true

	case ActionLeaveLobby:
		next.Identity = protocol.Identity{}
		next.Lobby = emptyLobby("")
		next.State = Idle
		next.InGameSession = false

	case ActionBackToLogin:
		next = Initial()

	case ActionEnterGame:
		next.State = InGame

	case ActionGameOver:
		next.State = PostGame

	case ActionPlayAgain:
		next.Identity.GameID = ""
		next.Identity.SessionToken = ""
		next.Role = nil
		next.State = Idle
		next.InGameSession = false

	case ActionUpdateLobbyState:
		u := a.Lobby
		next.Lobby.Players = slices.Clone(u.Players)
		if next.Lobby.Players == nil {
			next.Lobby.Players = []LobbyPlayer{}
		}
		next.Lobby.HostID = u.HostID
		next.Lobby.CanStart = u.CanStart
		next.Lobby.Name = u.Name
		if u.MaxPlayers > 0 {
			next.Lobby.MaxPlayers = u.MaxPlayers
		}
		next.Lobby.IsHost = next.Lobby.PlayerID != "" && next.Lobby.PlayerID == u.HostID
		next.Lobby.ConnectionError = ""

	case ActionSetConnectionError:
		next.Lobby.ConnectionError = a.Message

	case ActionClearConnectionError:
		next.Lobby.ConnectionError = ""

	case ActionClientIdentified:
		next.Identity.PlayerID = a.PlayerID
		next.Lobby.PlayerID = a.PlayerID
		next.Lobby.Countdown = nil

	case ActionUpdateRoleAssignment:
		next.Role = a.Role

	case ActionResetLobbyState:
		next.Lobby = emptyLobby(s.Lobby.PlayerID)
		next.Lobby.MaxPlayers = s.Lobby.MaxPlayers

	case ActionCountdownStart:
		next.Lobby.Countdown = &Countdown{Active: true, Remaining: a.Seconds, Duration: a.Seconds}

	case ActionCountdownUpdate:
		if c := s.Lobby.Countdown; c != nil {
			updated := *c
			updated.Remaining = a.Seconds
			next.Lobby.Countdown = &updated
		}

	case ActionCountdownCancel:
		next.Lobby.Countdown = nil

	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
	return next, nil
}
