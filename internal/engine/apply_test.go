package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/alignment-sync/pkg/protocol"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func ev(id string, typ protocol.EventType, player string, sec int, payload map[string]any) Event {
	return Event{ID: id, Type: typ, GameID: "g1", PlayerID: player, Timestamp: at(sec), Payload: payload}
}

// lobbyOf returns a started game with the given players joined in order.
func lobbyOf(players ...string) GameState {
	s := NewGameState("g1", t0)
	for i, id := range players {
		s = Apply(s, ev("join-"+id, protocol.EventPlayerJoined, id, i, map[string]any{"name": "name-" + id, "job_title": "Eng"}))
	}
	return Apply(s, ev("start", protocol.EventGameStarted, "", 100, nil))
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	before := lobbyOf("p1", "p2")
	snapshot, err := json.Marshal(before)
	require.NoError(t, err)

	_ = Apply(before, ev("e1", protocol.EventTokensAwarded, "p1", 200, map[string]any{"amount": 3.0}))
	_ = Apply(before, ev("e2", protocol.EventChatMessage, "p1", 201, map[string]any{"message": "hi"}))
	_ = Apply(before, ev("e3", protocol.EventVoteCast, "p1", 202, map[string]any{"target_id": "p2"}))

	after, err := json.Marshal(before)
	require.NoError(t, err)
	assert.JSONEq(t, string(snapshot), string(after))
}

func TestApplyLifecycle(t *testing.T) {
	s := lobbyOf("p1")
	assert.Equal(t, PhaseSitrep, s.Phase.Type)
	assert.Equal(t, 1, s.DayNumber)
	assert.Equal(t, s.Settings.SitrepDuration, s.Phase.Duration)

	s = Apply(s, ev("ph1", protocol.EventPhaseChanged, "", 200, map[string]any{"phase_type": "DISCUSSION", "duration": 90.0}))
	assert.Equal(t, PhaseDiscussion, s.Phase.Type)
	assert.Equal(t, 90*time.Second, s.Phase.Duration)
	assert.Equal(t, at(200), s.Phase.StartTime)
	assert.Equal(t, 1, s.DayNumber)

	s = Apply(s, ev("ph2", protocol.EventPhaseChanged, "", 300, map[string]any{"phase_type": "NIGHT"}))
	assert.Equal(t, s.Settings.NightDuration, s.Phase.Duration, "missing duration falls back to settings")

	s = Apply(s, ev("ph3", protocol.EventPhaseChanged, "", 400, map[string]any{"phase_type": "SITREP", "duration": 15}))
	assert.Equal(t, 2, s.DayNumber, "entering SITREP starts a new day")

	s = Apply(s, ev("end", protocol.EventGameEnded, "", 500, nil))
	assert.Equal(t, PhaseGameOver, s.Phase.Type)
	assert.Equal(t, at(500), s.UpdatedAt)
}

func TestApplyRoster(t *testing.T) {
	s := lobbyOf("p1", "p2", "p3")
	p1, ok := s.Player("p1")
	require.True(t, ok)
	assert.Equal(t, "name-p1", p1.Name)
	assert.Equal(t, s.Settings.StartingTokens, p1.Tokens)
	assert.Equal(t, AlignmentHuman, p1.Alignment)
	assert.True(t, p1.IsAlive)

	roster := s.Roster()
	require.Len(t, roster, 3)
	assert.Equal(t, []string{"p1", "p2", "p3"}, []string{roster[0].ID, roster[1].ID, roster[2].ID})

	cases := []struct {
		name  string
		event Event
		check func(t *testing.T, s GameState)
	}{
		{
			name:  "player left is no longer alive",
			event: ev("x", protocol.EventPlayerLeft, "p2", 200, nil),
			check: func(t *testing.T, s GameState) { assert.False(t, s.Players["p2"].IsAlive) },
		},
		{
			name:  "deactivated player is no longer alive",
			event: ev("x", protocol.EventPlayerDeactivated, "p3", 200, nil),
			check: func(t *testing.T, s GameState) { assert.False(t, s.Players["p3"].IsAlive) },
		},
		{
			name:  "elimination reveals role and alignment",
			event: ev("x", protocol.EventPlayerEliminated, "p1", 200, map[string]any{"role_type": "CFO", "alignment": "ALIGNED"}),
			check: func(t *testing.T, s GameState) {
				p := s.Players["p1"]
				assert.False(t, p.IsAlive)
				require.NotNil(t, p.Role)
				assert.Equal(t, RoleCFO, p.Role.Type)
				assert.Equal(t, AlignmentAligned, p.Alignment)
			},
		},
		{
			name:  "alignment change accepts new_alignment",
			event: ev("x", protocol.EventAlignmentChanged, "p2", 200, map[string]any{"new_alignment": "ALIGNED"}),
			check: func(t *testing.T, s GameState) { assert.Equal(t, AlignmentAligned, s.Players["p2"].Alignment) },
		},
		{
			name:  "alignment change accepts alignment",
			event: ev("x", protocol.EventAlignmentChanged, "p2", 200, map[string]any{"alignment": "ALIGNED"}),
			check: func(t *testing.T, s GameState) { assert.Equal(t, AlignmentAligned, s.Players["p2"].Alignment) },
		},
		{
			name:  "event for unknown player is ignored",
			event: ev("x", protocol.EventTokensAwarded, "ghost", 200, map[string]any{"amount": 5.0}),
			check: func(t *testing.T, s GameState) { assert.Len(t, s.Players, 3) },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, Apply(s, tc.event))
		})
	}
}

func TestApplyRolesAndMilestones(t *testing.T) {
	s := lobbyOf("p1")
	s = Apply(s, ev("r", protocol.EventRoleAssigned, "p1", 200, map[string]any{
		"role_type": "CISO", "role_name": "Chief Security", "kpi_type": "GUARDIAN", "alignment": "HUMAN",
	}))
	p := s.Players["p1"]
	require.NotNil(t, p.Role)
	assert.Equal(t, RoleCISO, p.Role.Type)
	assert.False(t, p.Role.IsUnlocked)
	require.NotNil(t, p.PersonalKPI)
	assert.Equal(t, 1, p.PersonalKPI.Target)

	s = Apply(s, ev("m2", protocol.EventProjectMilestone, "p1", 201, map[string]any{"milestone": 2.0}))
	assert.False(t, s.Players["p1"].Role.IsUnlocked)

	s = Apply(s, ev("m3", protocol.EventProjectMilestone, "p1", 202, map[string]any{"milestone": 3.0}))
	assert.True(t, s.Players["p1"].Role.IsUnlocked)

	s = Apply(s, ev("u", protocol.EventRoleAbilityUnlocked, "p1", 203, map[string]any{"ability_name": "Run Audit"}))
	require.NotNil(t, s.Players["p1"].Role.Ability)
	assert.True(t, s.Players["p1"].Role.Ability.IsReady)

	s = Apply(s, ev("k", protocol.EventKPIProgress, "p1", 204, map[string]any{"progress": 1.0}))
	s = Apply(s, ev("kc", protocol.EventKPICompleted, "p1", 205, nil))
	assert.Equal(t, 1, s.Players["p1"].PersonalKPI.Progress)
	assert.True(t, s.Players["p1"].PersonalKPI.IsCompleted)
}

func TestApplyVoting(t *testing.T) {
	s := lobbyOf("p1", "p2", "p3")
	s = Apply(s, ev("a", protocol.EventTokensAwarded, "p1", 200, map[string]any{"amount": 2.0}))

	s = Apply(s, ev("v1", protocol.EventVoteCast, "p1", 201, map[string]any{"target_id": "p3", "vote_type": "NOMINATION"}))
	s = Apply(s, ev("v2", protocol.EventVoteCast, "p2", 202, map[string]any{"target_id": "p3"}))
	require.NotNil(t, s.VoteState)
	assert.Equal(t, VoteNomination, s.VoteState.Type)
	assert.Equal(t, 4, s.VoteState.Results["p3"], "p1 weighs 3 tokens, p2 weighs 1")

	s = Apply(s, ev("v3", protocol.EventVoteCast, "p1", 203, map[string]any{"target_id": "p2"}))
	assert.Equal(t, 1, s.VoteState.Results["p3"])
	assert.Equal(t, 3, s.VoteState.Results["p2"])

	s = Apply(s, ev("vc", protocol.EventVoteCompleted, "", 204, nil))
	assert.True(t, s.VoteState.IsComplete)

	s = Apply(s, ev("vs", protocol.EventVoteStarted, "", 205, map[string]any{"vote_type": "VERDICT"}))
	assert.Equal(t, VoteVerdict, s.VoteState.Type)
	assert.Empty(t, s.VoteState.Votes)
}

func TestApplyEconomy(t *testing.T) {
	cases := []struct {
		name   string
		events []Event
		want   map[string]int
	}{
		{
			name:   "awarded tokens add",
			events: []Event{ev("a", protocol.EventTokensAwarded, "p1", 200, map[string]any{"amount": 4.0})},
			want:   map[string]int{"p1": 5, "p2": 1},
		},
		{
			name:   "lost tokens floor at zero",
			events: []Event{ev("l", protocol.EventTokensLost, "p1", 200, map[string]any{"amount": 9.0})},
			want:   map[string]int{"p1": 0, "p2": 1},
		},
		{
			name:   "spent tokens subtract",
			events: []Event{ev("s", protocol.EventTokensSpent, "p2", 200, map[string]any{"amount": 1})},
			want:   map[string]int{"p1": 1, "p2": 0},
		},
		{
			name:   "mining success defaults to one token",
			events: []Event{ev("m", protocol.EventMiningSuccessful, "p1", 200, nil)},
			want:   map[string]int{"p1": 2, "p2": 1},
		},
		{
			name: "distribution pays every listed player",
			events: []Event{ev("d", protocol.EventTokensDistributed, "", 200, map[string]any{
				"distribution": map[string]any{"p1": 2.0, "p2": 3.0, "ghost": 9.0},
			})},
			want: map[string]int{"p1": 3, "p2": 4},
		},
		{
			name: "budget reallocation moves tokens",
			events: []Event{
				ev("a", protocol.EventTokensAwarded, "p1", 200, map[string]any{"amount": 2.0}),
				ev("r", protocol.EventReallocateBudget, "p2", 201, map[string]any{"from_player": "p1", "to_player": "p2", "amount": 2.0}),
			},
			want: map[string]int{"p1": 1, "p2": 3},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Reduce(lobbyOf("p1", "p2"), tc.events)
			for id, tokens := range tc.want {
				assert.Equalf(t, tokens, s.Players[id].Tokens, "tokens of %s", id)
			}
		})
	}
}

func TestApplyNightResolution(t *testing.T) {
	s := lobbyOf("p1", "p2")
	s = Apply(s, ev("n1", protocol.EventNightActionSubmitted, "p1", 200, map[string]any{"action_type": "MINE", "target_id": "p1"}))
	s = Apply(s, ev("b", protocol.EventPlayerBlocked, "p2", 201, map[string]any{"blocked_by": "p1"}))
	require.Contains(t, s.NightActions, "p1")
	require.NotNil(t, s.Players["p1"].LastNightAction)
	assert.Equal(t, NightMine, s.Players["p1"].LastNightAction.Type)
	assert.True(t, s.BlockedPlayersTonight["p2"])
	assert.Equal(t, "Action blocked by p1", s.Players["p2"].StatusMessage)

	s = Apply(s, ev("r", protocol.EventNightActionsResolved, "", 202, map[string]any{
		"results": map[string]any{
			"p1": map[string]any{"token_change": 2.0, "status_message": "mined"},
			"p2": map[string]any{"alignment": "ALIGNED", "ai_equity": 40.0},
		},
	}))
	assert.Equal(t, 3, s.Players["p1"].Tokens)
	assert.Equal(t, "mined", s.Players["p1"].StatusMessage)
	assert.Nil(t, s.Players["p1"].LastNightAction)
	assert.Equal(t, AlignmentAligned, s.Players["p2"].Alignment)
	assert.Equal(t, 40, s.Players["p2"].AIEquity)
	assert.Empty(t, s.NightActions)
	assert.Empty(t, s.BlockedPlayersTonight)
}

func TestApplyCommunication(t *testing.T) {
	s := lobbyOf("p1")
	s = Apply(s, ev("c1", protocol.EventChatMessage, "p1", 200, map[string]any{"player_name": "Ann", "message": "hello"}))
	s = Apply(s, ev("n1", protocol.EventPrivateNotification, "p1", 201, map[string]any{"notification_type": "AUDIT_RESULT", "title": "Audit", "message": "p2 is HUMAN"}))

	require.Len(t, s.ChatMessages, 1)
	assert.Equal(t, ChatMessage{ID: "c1", PlayerID: "p1", PlayerName: "Ann", Message: "hello", Timestamp: at(200)}, s.ChatMessages[0])
	require.Len(t, s.Notifications, 1)
	assert.Equal(t, "AUDIT_RESULT", s.Notifications[0].Type)
	assert.Equal(t, "p2 is HUMAN", s.Notifications[0].Message)
}

func TestApplyChatHistoryReplacesLog(t *testing.T) {
	history := []any{
		map[string]any{"id": "h1", "player_id": "p1", "player_name": "Ann", "message": "first", "timestamp": "2025-03-01T12:00:05Z"},
		map[string]any{"id": "h2", "player_id": "p2", "player_name": "Bo", "message": "second", "timestamp": "2025-03-01T12:00:06Z"},
	}
	cases := []struct {
		name    string
		payload map[string]any
		want    []string
	}{
		{name: "server key", payload: map[string]any{"messages": history}, want: []string{"h1", "h2"}},
		{name: "client key", payload: map[string]any{"chat_messages": history[:1]}, want: []string{"h1"}},
		{name: "typed messages", payload: map[string]any{"messages": []ChatMessage{{ID: "h9", Message: "typed"}}}, want: []string{"h9"}},
		{name: "empty history clears", payload: map[string]any{"messages": []any{}}, want: []string{}},
		{name: "missing history keeps log", payload: map[string]any{}, want: []string{"c1"}},
		{name: "bad history keeps log", payload: map[string]any{"messages": "nope"}, want: []string{"c1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Apply(lobbyOf("p1"), ev("c1", protocol.EventChatMessage, "p1", 200, map[string]any{"message": "old"}))
			s = Apply(s, ev("hist", protocol.EventChatHistorySnapshot, "p1", 201, tc.payload))

			ids := []string{}
			for _, m := range s.ChatMessages {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tc.want, ids)
		})
	}

	s := Apply(lobbyOf("p1"), ev("hist", protocol.EventChatHistorySnapshot, "p1", 201, map[string]any{"messages": history}))
	assert.Equal(t, ChatMessage{ID: "h2", PlayerID: "p2", PlayerName: "Bo", Message: "second", Timestamp: at(6)}, s.ChatMessages[1])
}

func TestApplyVictoryEndsGame(t *testing.T) {
	s := Apply(lobbyOf("p1"), ev("w", protocol.EventVictoryCondition, "", 300, map[string]any{
		"winner": "HUMANS", "condition": "CONTAINMENT", "description": "contained",
	}))
	require.NotNil(t, s.WinCondition)
	assert.Equal(t, "HUMANS", s.WinCondition.Winner)
	assert.Equal(t, PhaseGameOver, s.Phase.Type)
}

func TestApplySystemShockUsesEventTime(t *testing.T) {
	s := Apply(lobbyOf("p1"), ev("sh", protocol.EventSystemShockApplied, "p1", 200, map[string]any{
		"shock_type": "FORCED_SILENCE", "duration_hours": 2.0,
	}))
	require.Len(t, s.Players["p1"].SystemShocks, 1)
	assert.Equal(t, at(200).Add(2*time.Hour), s.Players["p1"].SystemShocks[0].ExpiresAt)
}

func TestApplyAbilityEffectsLandInCrisisEffects(t *testing.T) {
	s := lobbyOf("p1")
	s = Apply(s, ev("pv", protocol.EventPivot, "p1", 200, map[string]any{"selected_crisis": "DATA_BREACH"}))
	s = Apply(s, ev("hf", protocol.EventDeployHotfix, "p1", 201, map[string]any{"redaction_target": "role"}))
	s = Apply(s, ev("mp", protocol.EventMiningPoolUpdated, "", 202, map[string]any{"difficulty": 0.2}))

	require.NotNil(t, s.CrisisEvent)
	assert.Equal(t, "DATA_BREACH", s.CrisisEvent.Effects["next_crisis"])
	assert.Equal(t, "role", s.CrisisEvent.Effects["sitrep_redaction"])
	assert.Equal(t, 0.2, s.CrisisEvent.Effects["mining_difficulty"])
	assert.True(t, s.Players["p1"].HasUsedAbility)
}

func TestCloneIsDeep(t *testing.T) {
	s := lobbyOf("p1")
	s = Apply(s, ev("c", protocol.EventCrisisTriggered, "", 200, map[string]any{"effects": map[string]any{"nested": map[string]any{"k": 1.0}}}))

	c := s.Clone()
	c.Players["p1"].Tokens = 99
	c.CrisisEvent.Effects["nested"].(map[string]any)["k"] = 2.0

	assert.Equal(t, 1, s.Players["p1"].Tokens)
	assert.Equal(t, 1.0, s.CrisisEvent.Effects["nested"].(map[string]any)["k"])
}

func TestNextPhase(t *testing.T) {
	cases := []struct {
		in   PhaseType
		want PhaseType
		ok   bool
	}{
		{in: PhaseSitrep, want: PhasePulseCheck, ok: true},
		{in: PhaseVerdict, want: PhaseNight, ok: true},
		{in: PhaseNight, want: PhaseSitrep, ok: true},
		{in: PhaseLobby, ok: false},
	}
	for _, tc := range cases {
		t.Run(string(tc.in), func(t *testing.T) {
			got, ok := NextPhase(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
