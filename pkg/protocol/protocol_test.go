package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindTable_CoversEveryEventType(t *testing.T) {
	seen := map[EventType]bool{}
	for _, et := range EventTypeValues {
		assert.Truef(t, Known(et), "event type %s has no kind", et)
		assert.Falsef(t, seen[et], "event type %s listed twice", et)
		seen[et] = true
	}
	assert.Len(t, eventKinds, len(EventTypeValues), "kind table and EventTypeValues drifted")
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		in   EventType
		want Kind
	}{
		{name: "chat folds", in: EventChatMessage, want: KindFold},
		{name: "vote cast folds", in: EventVoteCast, want: KindFold},
		{name: "chat history folds", in: EventChatHistorySnapshot, want: KindFold},
		{name: "system message is informational", in: EventSystemMessage, want: KindInformational},
		{name: "lobby update is informational", in: EventLobbyStateUpdate, want: KindInformational},
		{name: "game state update is a snapshot", in: EventGameStateUpdate, want: KindSnapshot},
		{name: "unknown type never folds", in: EventType("SOMETHING_NEW"), want: KindInformational},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.in))
		})
	}
}

func TestDecodeBatch_KeepsOrderAndSkipsBadLines(t *testing.T) {
	frame := []byte(`{"type":"CHAT_MESSAGE","id":"e1","game_id":"g1","timestamp":"2025-01-01T00:00:00Z","payload":{"message":"hi"}}
{not json

{"type":"VOTE_CAST","id":"e2","game_id":"g1","timestamp":"2025-01-01T00:00:01Z","payload":{"target_id":"p2"}}
{"id":"e3"}`)

	events, errs := DecodeBatch(frame)
	require.Len(t, events, 2)
	assert.Equal(t, EventChatMessage, events[0].Type)
	assert.Equal(t, "e1", events[0].ID)
	assert.Equal(t, EventVoteCast, events[1].Type)
	assert.Equal(t, "p2", events[1].Payload["target_id"])

	require.Len(t, errs, 2)
	assert.Equal(t, 1, errs[0].Index)
	assert.ErrorIs(t, errs[1], ErrMissingType)
}

func TestSplitBatch_TrailingNewline(t *testing.T) {
	lines := SplitBatch([]byte("{\"type\":\"A\"}\n\n{\"type\":\"B\"}\n"))
	require.Len(t, lines, 2)
	assert.Equal(t, `{"type":"B"}`, string(lines[1]))
}

func TestReconnectAction_Envelope(t *testing.T) {
	raw, err := json.Marshal(ReconnectAction("g1", "p1", "e42"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"RECONNECT","payload":{"last_event_id":"e42","game_id":"g1","player_id":"p1"}}`, string(raw))
}

func TestActionTypeValid(t *testing.T) {
	assert.True(t, ActionSubmitVote.Valid())
	assert.False(t, ActionType("MINE_TOKENS").Valid())
}
