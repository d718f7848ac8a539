package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/alignment-sync/pkg/protocol"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(WithLogger(zaptest.NewLogger(t)), WithClock(func() time.Time { return t0 }))
	e.Init()
	return e
}

func TestEngineNotInitialized(t *testing.T) {
	e := New()
	assert.ErrorIs(t, e.CreateGame("g1"), ErrNotInitialized)
	assert.ErrorIs(t, e.ApplyEvent(ev("e1", protocol.EventChatMessage, "p1", 1, nil)), ErrNotInitialized)
	assert.ErrorIs(t, e.LoadState(NewGameState("g1", t0)), ErrNotInitialized)
	_, err := e.SerializeGameState()
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, ok := e.CurrentState()
	assert.False(t, ok)
	assert.False(t, e.CanPlayerVote("p1", PhaseNomination))
	assert.Nil(t, e.CheckWinCondition())
}

func TestEngineApplyWithoutGame(t *testing.T) {
	e := newTestEngine(t)
	err := e.ApplyEvent(ev("e1", protocol.EventPlayerJoined, "p1", 1, map[string]any{"name": "Ann"}))
	assert.ErrorIs(t, err, ErrNoGameState)

	require.NoError(t, e.CreateGame("other"))
	err = e.ApplyEvent(ev("e1", protocol.EventPlayerJoined, "p1", 1, map[string]any{"name": "Ann"}))
	assert.ErrorIs(t, err, ErrGameMismatch)
	assert.ErrorIs(t, err, ErrNoGameState, "a mismatch is recovered the same way")
}

func TestEngineRejectsInformationalEvents(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateGame("g1"))
	err := e.ApplyEvent(ev("s1", protocol.EventSystemMessage, "", 1, map[string]any{"message": "hi"}))
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
}

// Creating the game after a NoGameState failure and retrying must land in
// the same place as creating it up front.
func TestEngineNoGameStateRecoveryMatchesFreshGame(t *testing.T) {
	join := ev("e1", protocol.EventPlayerJoined, "p1", 1, map[string]any{"name": "Ann"})

	recovered := newTestEngine(t)
	require.ErrorIs(t, recovered.ApplyEvent(join), ErrNoGameState)
	require.NoError(t, recovered.CreateGame("g1"))
	require.NoError(t, recovered.ApplyEvent(join))

	fresh := newTestEngine(t)
	require.NoError(t, fresh.CreateGame("g1"))
	require.NoError(t, fresh.ApplyEvent(join))

	got, ok := recovered.CurrentState()
	require.True(t, ok)
	want, ok := fresh.CurrentState()
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestEngineFoldIsAssociativeOverDelivery(t *testing.T) {
	events := []Event{
		ev("e1", protocol.EventPlayerJoined, "p1", 1, map[string]any{"name": "Ann"}),
		ev("e2", protocol.EventPlayerJoined, "p2", 2, map[string]any{"name": "Bo"}),
		ev("e3", protocol.EventChatMessage, "p1", 3, map[string]any{"message": "hi"}),
		ev("e4", protocol.EventVoteCast, "p2", 4, map[string]any{"target_id": "p1"}),
		ev("e5", protocol.EventTokensAwarded, "p1", 5, map[string]any{"amount": 2.0}),
	}

	one := newTestEngine(t)
	require.NoError(t, one.CreateGame("g1"))
	for _, e := range events {
		require.NoError(t, one.ApplyEvent(e))
	}
	got, _ := one.CurrentState()

	want := Reduce(NewGameState("g1", t0), events)
	assert.Equal(t, want, got)
}

func TestEngineSkipsDuplicateEventIDs(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateGame("g1"))
	require.NoError(t, e.ApplyEvent(ev("e1", protocol.EventPlayerJoined, "p1", 1, nil)))

	award := ev("e2", protocol.EventTokensAwarded, "p1", 2, map[string]any{"amount": 3.0})
	require.NoError(t, e.ApplyEvent(award))
	require.NoError(t, e.ApplyEvent(award))

	s, _ := e.CurrentState()
	assert.Equal(t, 4, s.Players["p1"].Tokens)
}

func TestEngineDedupeWindowIsBounded(t *testing.T) {
	e := New(WithLogger(zaptest.NewLogger(t)), WithDedupeWindow(3))
	e.Init()
	require.NoError(t, e.CreateGame("g1"))
	require.NoError(t, e.ApplyEvent(ev("j1", protocol.EventPlayerJoined, "p1", 1, nil)))

	awards := []string{"a1", "a2", "a3", "a4"}
	for i, id := range awards {
		require.NoError(t, e.ApplyEvent(ev(id, protocol.EventTokensAwarded, "p1", 2+i, map[string]any{"amount": 1.0})))
	}
	assert.Equal(t, 3, e.applied.size())

	cases := []struct {
		id     string
		tokens int
	}{
		{id: "a4", tokens: 5},
		{id: "a3", tokens: 5},
		// a1 fell out of the window and folds again
		{id: "a1", tokens: 6},
	}
	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			require.NoError(t, e.ApplyEvent(ev(tc.id, protocol.EventTokensAwarded, "p1", 10, map[string]any{"amount": 1.0})))
			s, _ := e.CurrentState()
			assert.Equal(t, tc.tokens, s.Players["p1"].Tokens)
			assert.LessOrEqual(t, e.applied.size(), 3)
		})
	}
}

func TestEngineOptimisticEventsRetireOnConfirmation(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateGame("g1"))
	require.NoError(t, e.ApplyEvent(ev("e1", protocol.EventPlayerJoined, "p1", 1, nil)))

	local := ev("local-1", protocol.EventChatMessage, "p1", 2, map[string]any{"message": "hi"})
	require.NoError(t, e.ApplyOptimistic(local))
	assert.Equal(t, 1, e.PendingCount())

	s, _ := e.CurrentState()
	require.Len(t, s.ChatMessages, 1, "optimistic message is visible")
	raw, err := e.SerializeGameState()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "local-1", "serialized state is authoritative only")

	require.NoError(t, e.ApplyEvent(ev("e2", protocol.EventChatMessage, "p1", 3, map[string]any{"message": "hi"})))
	assert.Equal(t, 0, e.PendingCount())

	s, _ = e.CurrentState()
	require.Len(t, s.ChatMessages, 1, "confirmation replaces the prediction")
	assert.Equal(t, "e2", s.ChatMessages[0].ID)
}

func TestEngineResetAndLoadDropsStaleState(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateGame("g1"))
	require.NoError(t, e.ApplyEvent(ev("e1", protocol.EventPlayerJoined, "p1", 1, nil)))
	require.NoError(t, e.ApplyOptimistic(ev("local", protocol.EventChatMessage, "p1", 2, map[string]any{"message": "x"})))

	var seen []GameState
	unsubscribe := e.OnStateChange(func(s GameState) { seen = append(seen, s) })
	defer unsubscribe()

	loaded := lobbyOf("p7")
	require.NoError(t, e.ResetAndLoadState(loaded))
	require.Len(t, seen, 1, "one notification per load")
	assert.Contains(t, seen[0].Players, "p7")
	assert.NotContains(t, seen[0].Players, "p1")
	assert.Empty(t, seen[0].ChatMessages)
	assert.Equal(t, 0, e.PendingCount())

	// event ids seen before the load apply again afterwards
	require.NoError(t, e.ApplyEvent(ev("e1", protocol.EventPlayerJoined, "p1", 3, nil)))
	s, _ := e.CurrentState()
	assert.Contains(t, s.Players, "p1")
}

func TestEngineLoadStateValidates(t *testing.T) {
	e := newTestEngine(t)
	assert.ErrorIs(t, e.LoadState(GameState{}), ErrInvalidSnapshot)
	assert.ErrorIs(t, e.DeserializeGameState([]byte("{")), ErrInvalidSnapshot)
	assert.ErrorIs(t, e.DeserializeGameState([]byte(`{"day_number":2}`)), ErrInvalidSnapshot)
}

func TestEngineSerializeRoundTrip(t *testing.T) {
	src := newTestEngine(t)
	require.NoError(t, src.LoadState(lobbyOf("p1", "p2")))
	raw, err := src.SerializeGameState()
	require.NoError(t, err)

	dst := newTestEngine(t)
	require.NoError(t, dst.DeserializeGameState(raw))
	want, _ := src.CurrentState()
	got, _ := dst.CurrentState()
	assert.Equal(t, want.Roster(), got.Roster())
	assert.Equal(t, want.Phase.Type, got.Phase.Type)
	assert.Equal(t, want.DayNumber, got.DayNumber)
}

func TestEngineListenerPanicIsIsolated(t *testing.T) {
	e := newTestEngine(t)
	calls := 0
	e.OnStateChange(func(GameState) { panic("boom") })
	e.OnStateChange(func(GameState) { calls++ })

	require.NoError(t, e.CreateGame("g1"))
	require.NoError(t, e.ApplyEvent(ev("e1", protocol.EventPlayerJoined, "p1", 1, nil)))
	assert.Equal(t, 2, calls)
}

func TestEngineUnsubscribe(t *testing.T) {
	e := newTestEngine(t)
	calls := 0
	unsubscribe := e.OnStateChange(func(GameState) { calls++ })
	require.NoError(t, e.CreateGame("g1"))
	unsubscribe()
	unsubscribe()
	require.NoError(t, e.CreateGame("g2"))
	assert.Equal(t, 1, calls)
}

func TestEngineListenerGetsACopy(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateGame("g1"))
	e.OnStateChange(func(s GameState) {
		for _, p := range s.Players {
			p.Tokens = 1000
		}
	})
	require.NoError(t, e.ApplyEvent(ev("e1", protocol.EventPlayerJoined, "p1", 1, nil)))

	s, _ := e.CurrentState()
	assert.Equal(t, 1, s.Players["p1"].Tokens)
}

func TestEngineQueries(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadState(lobbyOf("p1", "p2")))
	require.NoError(t, e.ApplyEvent(ev("v1", protocol.EventVoteCast, "p1", 200, map[string]any{"target_id": "p2"})))

	assert.True(t, e.CanPlayerVote("p1", PhaseNomination))
	assert.True(t, e.CanPlayerSendMessage("p2"))
	assert.True(t, e.CanPlayerUseNightAction("p1", NightMine))
	assert.False(t, e.CanPlayerAffordAbility("p1"))
	assert.True(t, e.IsValidNightActionTarget("p1", "p2", NightInvestigate))
	if wc := e.CheckWinCondition(); assert.NotNil(t, wc) {
		assert.Equal(t, "CONTAINMENT", wc.Condition, "no aligned players left")
	}

	winner, ok := e.GetVoteWinner(0)
	assert.True(t, ok)
	assert.Equal(t, "p2", winner)
	assert.Equal(t, CalculateMiningSuccess(lobbyOf("p1", "p2"), "p1", 0.1), e.CalculateMiningSuccess("p1", 0.1))

	assert.Equal(t, CalculateAIConversionSuccess(lobbyOf("p1", "p2"), "p2", 70), e.CalculateAIConversionSuccess("p2", 70))
	assert.Equal(t, 1, e.CalculateTokenReward(protocol.EventMiningSuccessful, "p1"))
	assert.False(t, e.IsMessageCorrupted("p1", "hello"))
	assert.False(t, e.CheckScapegoatKPI("p2"))

	next, ok := e.NextPhase()
	assert.True(t, ok)
	assert.Equal(t, PhasePulseCheck, next, "a started game sits in SITREP")
}

func TestEngineQueriesWithoutSnapshot(t *testing.T) {
	e := newTestEngine(t)

	_, ok := e.NextPhase()
	assert.False(t, ok)
	assert.False(t, e.CalculateAIConversionSuccess("p1", 100))
	assert.Zero(t, e.CalculateTokenReward(protocol.EventMiningSuccessful, "p1"))
	assert.False(t, e.IsMessageCorrupted("p1", "hello"))
	assert.False(t, e.CheckScapegoatKPI("p1"))
}
