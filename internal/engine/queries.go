package engine

import "github.com/DoyleJ11/alignment-sync/pkg/protocol"

// Engine queries read the visible snapshot, pending optimistic events
// included. With no snapshot they answer false or nil.

func (e *Engine) snapshot() (GameState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.view == nil {
		return GameState{}, false
	}
	return *e.view, true
}

func (e *Engine) CanPlayerVote(playerID string, phase PhaseType) bool {
	s, ok := e.snapshot()
	return ok && CanPlayerVote(s, playerID, phase, e.now())
}

func (e *Engine) CanPlayerSendMessage(playerID string) bool {
	s, ok := e.snapshot()
	return ok && CanPlayerSendMessage(s, playerID, e.now())
}

func (e *Engine) CanPlayerUseNightAction(playerID string, action NightActionType) bool {
	s, ok := e.snapshot()
	return ok && CanPlayerUseNightAction(s, playerID, action, e.now())
}

func (e *Engine) CanPlayerAffordAbility(playerID string) bool {
	s, ok := e.snapshot()
	return ok && CanPlayerAffordAbility(s, playerID)
}

func (e *Engine) IsValidNightActionTarget(actorID, targetID string, action NightActionType) bool {
	s, ok := e.snapshot()
	return ok && IsValidNightActionTarget(s, actorID, targetID, action)
}

func (e *Engine) CalculateMiningSuccess(playerID string, difficulty float64) bool {
	s, ok := e.snapshot()
	return ok && CalculateMiningSuccess(s, playerID, difficulty)
}

func (e *Engine) CheckWinCondition() *WinCondition {
	s, ok := e.snapshot()
	if !ok {
		return nil
	}
	return CheckWinCondition(s)
}

// GetVoteWinner evaluates the open vote; a threshold <= 0 uses the game's
// configured voting threshold.
func (e *Engine) GetVoteWinner(threshold float64) (string, bool) {
	s, ok := e.snapshot()
	if !ok || s.VoteState == nil {
		return "", false
	}
	if threshold <= 0 {
		threshold = s.Settings.VotingThreshold
	}
	return GetVoteWinner(*s.VoteState, threshold)
}

func (e *Engine) IsGamePhaseOver() bool {
	s, ok := e.snapshot()
	return ok && IsGamePhaseOver(s, e.now())
}

// NextPhase is the phase that normally follows the current one.
func (e *Engine) NextPhase() (PhaseType, bool) {
	s, ok := e.snapshot()
	if !ok {
		return "", false
	}
	return NextPhase(s.Phase.Type)
}

func (e *Engine) CalculateAIConversionSuccess(targetID string, aiEquity int) bool {
	s, ok := e.snapshot()
	return ok && CalculateAIConversionSuccess(s, targetID, aiEquity)
}

func (e *Engine) CalculateTokenReward(t protocol.EventType, playerID string) int {
	s, ok := e.snapshot()
	if !ok {
		return 0
	}
	return CalculateTokenReward(s, t, playerID)
}

func (e *Engine) IsMessageCorrupted(playerID, content string) bool {
	s, ok := e.snapshot()
	return ok && IsMessageCorrupted(s, playerID, content, e.now())
}

func (e *Engine) CheckScapegoatKPI(playerID string) bool {
	s, ok := e.snapshot()
	return ok && CheckScapegoatKPI(s, playerID)
}
