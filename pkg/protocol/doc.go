// Package protocol is the wire contract between the game client and the
// game server.
//
// Client -> Server (one JSON object per websocket message):
//
//	{"type": <ActionType>, "payload": {...}}
//	{"type": "ping"}                              // heartbeat, every 30s
//	RECONNECT:
//	  last_event_id: string
//	  game_id:       string
//	  player_id:     string
//
// Server -> Client (one or more JSON objects per websocket message,
// separated by '\n'):
//
//	{"type": <EventType>, "id": string, "game_id": string,
//	 "player_id": string, "timestamp": RFC3339, "payload": {...}}
//
// GAME_STATE_UPDATE:
//
//	game_state: full snapshot, replaces whatever the client holds
//
// SYSTEM_MESSAGE:
//
//	message: string
//	error:   bool // lobby-level failure, surfaced as a connection error
package protocol
