package protocol

import "time"

type ActionType string

const (
	ActionReconnect           ActionType = "RECONNECT"
	ActionCreateGame          ActionType = "CREATE_GAME"
	ActionJoinGame            ActionType = "JOIN_GAME"
	ActionStartGame           ActionType = "START_GAME"
	ActionLeaveGame           ActionType = "LEAVE_GAME"
	ActionPostChatMessage     ActionType = "POST_CHAT_MESSAGE"
	ActionUpdateStatus        ActionType = "UPDATE_STATUS"
	ActionSubmitNightAction   ActionType = "SUBMIT_NIGHT_ACTION"
	ActionSubmitVote          ActionType = "SUBMIT_VOTE"
	ActionSubmitPulseCheck    ActionType = "SUBMIT_PULSE_CHECK"
	ActionSubmitExitInterview ActionType = "SUBMIT_EXIT_INTERVIEW"
	ActionRequestLobbyList    ActionType = "REQUEST_LOBBY_LIST"
)

// ActionTypeValues lists every action the server accepts.
var ActionTypeValues = []ActionType{
	ActionReconnect,
	ActionCreateGame,
	ActionJoinGame,
	ActionStartGame,
	ActionLeaveGame,
	ActionPostChatMessage,
	ActionUpdateStatus,
	ActionSubmitNightAction,
	ActionSubmitVote,
	ActionSubmitPulseCheck,
	ActionSubmitExitInterview,
	ActionRequestLobbyList,
}

func (t ActionType) Valid() bool {
	for _, v := range ActionTypeValues {
		if v == t {
			return true
		}
	}
	return false
}

// Action is the client -> server envelope.
type Action struct {
	Type    ActionType     `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Heartbeat is written on the ping interval; the server does not answer it.
type Heartbeat struct {
	Type string `json:"type"`
}

var Ping = Heartbeat{Type: "ping"}

// Event is the server -> client envelope. It is treated as immutable once
// decoded.
type Event struct {
	ID        string         `json:"id,omitempty"`
	Type      EventType      `json:"type"`
	GameID    string         `json:"game_id,omitempty"`
	PlayerID  string         `json:"player_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ReconnectAction asks the server to replay everything after lastEventID.
func ReconnectAction(gameID, playerID, lastEventID string) Action {
	return Action{
		Type: ActionReconnect,
		Payload: map[string]any{
			"last_event_id": lastEventID,
			"game_id":       gameID,
			"player_id":     playerID,
		},
	}
}

// Identity is what a participant presents on the connect handshake.
type Identity struct {
	GameID       string `json:"game_id"`
	PlayerID     string `json:"player_id"`
	SessionToken string `json:"session_token"`
}

// Complete reports whether all three fields are set. Anonymous lobby
// connections leave them empty.
func (id Identity) Complete() bool {
	return id.GameID != "" && id.PlayerID != "" && id.SessionToken != ""
}
