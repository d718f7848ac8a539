package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/DoyleJ11/alignment-sync/pkg/protocol"
)

// Apply folds one event into s and returns the new snapshot. s is never
// modified. Events whose type does not fold leave everything but UpdatedAt
// untouched.
func Apply(s GameState, ev Event) GameState {
	next := s.Clone()
	next.UpdatedAt = ev.Timestamp

	switch ev.Type {
	// Lifecycle
	case protocol.EventGameStarted:
		next.setPhase(PhaseSitrep, ev.Timestamp, next.Settings.SitrepDuration)
		next.DayNumber = 1
	case protocol.EventGameEnded:
		next.setPhase(PhaseGameOver, ev.Timestamp, 0)
	case protocol.EventPhaseChanged:
		next.applyPhaseChanged(ev)
	case protocol.EventDayStarted:
		if day, ok := payloadInt(ev.Payload, "day_number"); ok {
			next.DayNumber = day
		} else {
			next.DayNumber++
		}
		next.setPhase(PhaseSitrep, ev.Timestamp, next.Settings.SitrepDuration)
	case protocol.EventNightStarted:
		next.setPhase(PhaseNight, ev.Timestamp, next.Settings.NightDuration)

	// Roster
	case protocol.EventPlayerJoined:
		next.applyPlayerJoined(ev)
	case protocol.EventPlayerLeft, protocol.EventPlayerDeactivated:
		if p := next.player(ev.PlayerID); p != nil {
			p.IsAlive = false
		}
	case protocol.EventPlayerEliminated:
		next.applyPlayerEliminated(ev)
	case protocol.EventPlayerAligned:
		if p := next.player(ev.PlayerID); p != nil {
			p.Alignment = AlignmentAligned
			p.StatusMessage = ""
		}
	case protocol.EventAlignmentChanged:
		next.applyAlignmentChanged(ev)
	case protocol.EventPlayerShocked:
		if p := next.player(ev.PlayerID); p != nil {
			p.StatusMessage = payloadString(ev.Payload, "shock_message")
		}
	case protocol.EventPlayerStatusChanged:
		if p := next.player(ev.PlayerID); p != nil {
			p.StatusMessage = payloadString(ev.Payload, "status")
		}
	case protocol.EventRoleAssigned:
		next.applyRoleAssigned(ev)
	case protocol.EventRoleAbilityUnlocked:
		next.applyRoleAbilityUnlocked(ev)
	case protocol.EventProjectMilestone:
		next.applyProjectMilestone(ev)

	// Communication
	case protocol.EventChatMessage:
		next.applyChatMessage(ev)
	case protocol.EventChatHistorySnapshot:
		next.applyChatHistory(ev)
	case protocol.EventPrivateNotification:
		next.applyPrivateNotification(ev)

	// Voting
	case protocol.EventVoteStarted:
		next.VoteState = newVoteState(VoteType(payloadString(ev.Payload, "vote_type")))
	case protocol.EventVoteCast:
		next.applyVoteCast(ev)
	case protocol.EventVoteCompleted:
		if next.VoteState != nil {
			next.VoteState.IsComplete = true
		}
	case protocol.EventPlayerNominated:
		next.NominatedPlayer = payloadString(ev.Payload, "nominated_player")

	// Economy
	case protocol.EventTokensAwarded:
		amount, _ := payloadInt(ev.Payload, "amount")
		next.adjustTokens(ev.PlayerID, amount)
	case protocol.EventTokensLost, protocol.EventTokensSpent:
		amount, _ := payloadInt(ev.Payload, "amount")
		next.adjustTokens(ev.PlayerID, -amount)
	case protocol.EventMiningSuccessful:
		amount, ok := payloadInt(ev.Payload, "amount")
		if !ok {
			amount = 1
		}
		next.adjustTokens(ev.PlayerID, amount)
	case protocol.EventMiningFailed:
		if p := next.player(ev.PlayerID); p != nil {
			if reason := payloadString(ev.Payload, "reason"); reason != "" {
				p.StatusMessage = "Mining failed: " + reason
			} else {
				p.StatusMessage = "Mining attempt failed"
			}
		}
	case protocol.EventMiningPoolUpdated:
		if d, ok := payloadFloat(ev.Payload, "difficulty"); ok {
			next.crisisEffects()["mining_difficulty"] = d
		}
		if r, ok := payloadFloat(ev.Payload, "base_reward"); ok {
			next.crisisEffects()["mining_base_reward"] = r
		}
	case protocol.EventTokensDistributed:
		for id, v := range payloadMap(ev.Payload, "distribution") {
			if amount, ok := toFloat(v); ok {
				next.adjustTokens(id, int(amount))
			}
		}

	// Night actions and conversion
	case protocol.EventNightActionSubmitted:
		next.applyNightActionSubmitted(ev)
	case protocol.EventNightActionsResolved:
		next.applyNightActionsResolved(ev)
	case protocol.EventPlayerBlocked:
		next.applyPlayerBlocked(ev)
	case protocol.EventPlayerProtected:
		next.applyPlayerProtected(ev)
	case protocol.EventPlayerInvestigated:
		if p := next.player(ev.PlayerID); p != nil {
			p.HasUsedAbility = true
		}
	case protocol.EventAIConversionAttempt:
		if p := next.player(payloadString(ev.Payload, "target_id")); p != nil {
			p.AIEquity, _ = payloadInt(ev.Payload, "ai_equity")
		}
	case protocol.EventAIConversionSuccess:
		if p := next.player(ev.PlayerID); p != nil {
			p.Alignment = AlignmentAligned
			p.StatusMessage = "Conversion successful"
			p.AIEquity = 0
		}
	case protocol.EventAIConversionFailed:
		if p := next.player(ev.PlayerID); p != nil {
			p.StatusMessage = payloadString(ev.Payload, "shock_message")
			p.AIEquity = 0
		}

	// Crisis, pulse check, win
	case protocol.EventCrisisTriggered:
		next.CrisisEvent = &CrisisEvent{
			Type:        payloadString(ev.Payload, "crisis_type"),
			Title:       payloadString(ev.Payload, "title"),
			Description: payloadString(ev.Payload, "description"),
			Effects:     cloneMap(payloadMap(ev.Payload, "effects")),
		}
	case protocol.EventPulseCheckStarted:
		next.crisisEffects()["pulse_check_question"] = payloadString(ev.Payload, "question")
		next.PulseCheckResponses = map[string]string{}
	case protocol.EventPulseCheckSubmitted:
		if next.PulseCheckResponses == nil {
			next.PulseCheckResponses = map[string]string{}
		}
		next.PulseCheckResponses[ev.PlayerID] = payloadString(ev.Payload, "response")
	case protocol.EventPulseCheckRevealed:
		// responses are already recorded; the reveal only moves the clock
	case protocol.EventVictoryCondition:
		next.WinCondition = &WinCondition{
			Winner:      payloadString(ev.Payload, "winner"),
			Condition:   payloadString(ev.Payload, "condition"),
			Description: payloadString(ev.Payload, "description"),
		}
		next.setPhase(PhaseGameOver, ev.Timestamp, 0)

	// Role abilities
	case protocol.EventRunAudit:
		next.useAbility(ev.PlayerID, "Audit completed")
	case protocol.EventOverclockServers:
		next.useAbility(ev.PlayerID, "Servers overclocked")
		target := payloadString(ev.Payload, "target_id")
		amount, _ := payloadInt(ev.Payload, "tokens_awarded")
		if p := next.player(target); p != nil {
			p.Tokens += amount
			p.StatusMessage = "Received bonus tokens"
		}
	case protocol.EventIsolateNode:
		next.useAbility(ev.PlayerID, "Node isolated")
		target := payloadString(ev.Payload, "target_id")
		if p := next.player(target); p != nil {
			p.StatusMessage = "Connection isolated"
		}
		next.markBlocked(target)
	case protocol.EventPerformanceReview:
		next.useAbility(ev.PlayerID, "Performance review completed")
		if p := next.player(payloadString(ev.Payload, "target_id")); p != nil {
			p.StatusMessage = "Under performance review - " + payloadString(ev.Payload, "forced_action")
		}
	case protocol.EventReallocateBudget:
		next.applyReallocateBudget(ev)
	case protocol.EventPivot:
		next.useAbility(ev.PlayerID, "Strategy pivoted")
		next.crisisEffects()["next_crisis"] = payloadString(ev.Payload, "selected_crisis")
	case protocol.EventDeployHotfix:
		next.useAbility(ev.PlayerID, "Hotfix deployed")
		next.crisisEffects()["sitrep_redaction"] = payloadString(ev.Payload, "redaction_target")

	// Status, KPI, mandates, shocks, equity
	case protocol.EventSlackStatusChanged:
		if p := next.player(ev.PlayerID); p != nil {
			p.SlackStatus = payloadString(ev.Payload, "status")
		}
	case protocol.EventPartingShotSet:
		if p := next.player(ev.PlayerID); p != nil {
			p.PartingShot = payloadString(ev.Payload, "parting_shot")
		}
	case protocol.EventKPIProgress:
		if p := next.player(ev.PlayerID); p != nil && p.PersonalKPI != nil {
			p.PersonalKPI.Progress, _ = payloadInt(ev.Payload, "progress")
		}
	case protocol.EventKPICompleted:
		if p := next.player(ev.PlayerID); p != nil && p.PersonalKPI != nil {
			p.PersonalKPI.IsCompleted = true
		}
	case protocol.EventMandateActivated:
		next.CorporateMandate = &CorporateMandate{
			Type:        MandateType(payloadString(ev.Payload, "mandate_type")),
			Name:        payloadString(ev.Payload, "name"),
			Description: payloadString(ev.Payload, "description"),
			Effects:     cloneMap(payloadMap(ev.Payload, "effects")),
			IsActive:    true,
		}
	case protocol.EventMandateEffect:
		if next.CorporateMandate == nil {
			break
		}
		if next.CorporateMandate.Effects == nil {
			next.CorporateMandate.Effects = map[string]any{}
		}
		for k, v := range payloadMap(ev.Payload, "effects") {
			next.CorporateMandate.Effects[k] = cloneAny(v)
		}
	case protocol.EventSystemShockApplied:
		next.applySystemShock(ev)
	case protocol.EventShockEffectTriggered:
		next.applyShockEffect(ev)
	case protocol.EventAIEquityChanged:
		next.applyAIEquityChanged(ev)
	case protocol.EventEquityThreshold:
		if p := next.player(ev.PlayerID); p != nil {
			threshold, _ := payloadInt(ev.Payload, "threshold")
			p.StatusMessage = fmt.Sprintf("AI Equity threshold %d reached - %s", threshold, payloadString(ev.Payload, "action"))
		}
	}

	return next
}

// Reduce folds events, in order, onto initial.
func Reduce(initial GameState, events []Event) GameState {
	s := initial
	for _, ev := range events {
		s = Apply(s, ev)
	}
	return s
}

func (s *GameState) player(id string) *Player {
	if id == "" {
		return nil
	}
	return s.Players[id]
}

func (s *GameState) setPhase(t PhaseType, start time.Time, d time.Duration) {
	s.Phase = Phase{Type: t, StartTime: start, Duration: d}
}

func (s *GameState) crisisEffects() map[string]any {
	if s.CrisisEvent == nil {
		s.CrisisEvent = &CrisisEvent{}
	}
	if s.CrisisEvent.Effects == nil {
		s.CrisisEvent.Effects = map[string]any{}
	}
	return s.CrisisEvent.Effects
}

// adjustTokens never lets a balance go below zero.
func (s *GameState) adjustTokens(id string, delta int) {
	p := s.player(id)
	if p == nil {
		return
	}
	p.Tokens += delta
	if p.Tokens < 0 {
		p.Tokens = 0
	}
}

func (s *GameState) useAbility(id, status string) {
	if p := s.player(id); p != nil {
		p.HasUsedAbility = true
		p.StatusMessage = status
	}
}

func (s *GameState) markBlocked(id string) {
	if s.BlockedPlayersTonight == nil {
		s.BlockedPlayersTonight = map[string]bool{}
	}
	s.BlockedPlayersTonight[id] = true
}

func (s *GameState) applyPhaseChanged(ev Event) {
	t := PhaseType(payloadString(ev.Payload, "phase_type"))
	d := s.Settings.DurationFor(t)
	if secs, ok := payloadFloat(ev.Payload, "duration"); ok {
		d = time.Duration(secs * float64(time.Second))
	}
	s.setPhase(t, ev.Timestamp, d)
	if t == PhaseSitrep {
		s.DayNumber++
	}
}

func (s *GameState) applyPlayerJoined(ev Event) {
	id := ev.PlayerID
	if id == "" {
		id = payloadString(ev.Payload, "player_id")
	}
	if id == "" {
		return
	}
	s.Players[id] = &Player{
		ID:          id,
		Name:        payloadString(ev.Payload, "name"),
		JobTitle:    payloadString(ev.Payload, "job_title"),
		ControlType: "HUMAN",
		IsAlive:     true,
		Tokens:      s.Settings.StartingTokens,
		JoinedAt:    ev.Timestamp,
		Alignment:   AlignmentHuman,
	}
}

func (s *GameState) applyPlayerEliminated(ev Event) {
	p := s.player(ev.PlayerID)
	if p == nil {
		return
	}
	p.IsAlive = false
	if p.Role == nil {
		p.Role = &Role{}
	}
	if rt := payloadString(ev.Payload, "role_type"); rt != "" {
		p.Role.Type = RoleType(rt)
	}
	if a := payloadString(ev.Payload, "alignment"); a != "" {
		p.Alignment = a
	}
}

func (s *GameState) applyAlignmentChanged(ev Event) {
	p := s.player(ev.PlayerID)
	if p == nil {
		return
	}
	a := payloadString(ev.Payload, "new_alignment")
	if a == "" {
		a = payloadString(ev.Payload, "alignment")
	}
	if a != "" {
		p.Alignment = a
	}
}

func (s *GameState) applyRoleAssigned(ev Event) {
	p := s.player(ev.PlayerID)
	if p == nil {
		return
	}
	p.Role = &Role{
		Type:        RoleType(payloadString(ev.Payload, "role_type")),
		Name:        payloadString(ev.Payload, "role_name"),
		Description: payloadString(ev.Payload, "role_description"),
	}
	if kt := payloadString(ev.Payload, "kpi_type"); kt != "" {
		p.PersonalKPI = &PersonalKPI{
			Type:        KPIType(kt),
			Description: payloadString(ev.Payload, "kpi_description"),
			Target:      1,
		}
	}
	if a := payloadString(ev.Payload, "alignment"); a != "" {
		p.Alignment = a
	}
}

func (s *GameState) applyRoleAbilityUnlocked(ev Event) {
	p := s.player(ev.PlayerID)
	if p == nil || p.Role == nil {
		return
	}
	p.Role.IsUnlocked = true
	p.Role.Ability = &Ability{
		Name:        payloadString(ev.Payload, "ability_name"),
		Description: payloadString(ev.Payload, "ability_description"),
		IsReady:     true,
	}
}

// Three milestones unlock the role ability.
func (s *GameState) applyProjectMilestone(ev Event) {
	p := s.player(ev.PlayerID)
	if p == nil {
		return
	}
	p.ProjectMilestones, _ = payloadInt(ev.Payload, "milestone")
	if p.ProjectMilestones >= 3 && p.Role != nil && !p.Role.IsUnlocked {
		p.Role.IsUnlocked = true
		if p.Role.Ability != nil {
			p.Role.Ability.IsReady = true
		}
	}
}

func (s *GameState) applyChatMessage(ev Event) {
	s.ChatMessages = append(s.ChatMessages, ChatMessage{
		ID:         ev.ID,
		PlayerID:   ev.PlayerID,
		PlayerName: payloadString(ev.Payload, "player_name"),
		Message:    payloadString(ev.Payload, "message"),
		Timestamp:  ev.Timestamp,
		IsSystem:   payloadBool(ev.Payload, "is_system"),
	})
}

// applyChatHistory replaces the chat log with the history the server sends
// on join. A payload that does not decode leaves the log alone.
func (s *GameState) applyChatHistory(ev Event) {
	v, ok := ev.Payload["messages"]
	if !ok {
		v, ok = ev.Payload["chat_messages"]
	}
	if !ok {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	var history []ChatMessage
	if err := json.Unmarshal(raw, &history); err != nil {
		return
	}
	if history == nil {
		history = []ChatMessage{}
	}
	s.ChatMessages = history
}

func (s *GameState) applyPrivateNotification(ev Event) {
	kind := payloadString(ev.Payload, "notification_type")
	if kind == "" {
		kind = payloadString(ev.Payload, "type")
	}
	s.Notifications = append(s.Notifications, PrivateNotification{
		ID:        ev.ID,
		PlayerID:  ev.PlayerID,
		Type:      kind,
		Title:     payloadString(ev.Payload, "title"),
		Message:   payloadString(ev.Payload, "message"),
		Priority:  payloadString(ev.Payload, "priority"),
		Timestamp: ev.Timestamp,
	})
}

func newVoteState(t VoteType) *VoteState {
	return &VoteState{
		Type:         t,
		Votes:        map[string]string{},
		TokenWeights: map[string]int{},
		Results:      map[string]int{},
	}
}

// A vote weighs as many tokens as the voter held when casting it.
func (s *GameState) applyVoteCast(ev Event) {
	if s.VoteState == nil {
		s.VoteState = newVoteState(VoteType(payloadString(ev.Payload, "vote_type")))
	}
	vs := s.VoteState
	vs.Votes[ev.PlayerID] = payloadString(ev.Payload, "target_id")
	if p := s.player(ev.PlayerID); p != nil {
		vs.TokenWeights[ev.PlayerID] = p.Tokens
	}

	vs.Results = map[string]int{}
	for voter, target := range vs.Votes {
		if w, ok := vs.TokenWeights[voter]; ok {
			vs.Results[target] += w
		}
	}
}

func (s *GameState) applyNightActionSubmitted(ev Event) {
	kind := payloadString(ev.Payload, "action_type")
	target := payloadString(ev.Payload, "target_id")
	if s.NightActions == nil {
		s.NightActions = map[string]*SubmittedNightAction{}
	}
	s.NightActions[ev.PlayerID] = &SubmittedNightAction{
		PlayerID:  ev.PlayerID,
		Type:      kind,
		TargetID:  target,
		Payload:   cloneMap(ev.Payload),
		Timestamp: ev.Timestamp,
	}
	if p := s.player(ev.PlayerID); p != nil {
		p.LastNightAction = &NightAction{Type: NightActionType(kind), TargetID: target}
	}
}

func (s *GameState) applyNightActionsResolved(ev Event) {
	results := payloadMap(ev.Payload, "results")
	if results == nil {
		return
	}
	for id, raw := range results {
		r, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		p := s.player(id)
		if p == nil {
			continue
		}
		if change, ok := payloadInt(r, "token_change"); ok {
			s.adjustTokens(id, change)
		}
		if msg, ok := r["status_message"].(string); ok {
			p.StatusMessage = msg
		}
		if a, ok := r["alignment"].(string); ok {
			p.Alignment = a
		}
		if eq, ok := payloadInt(r, "ai_equity"); ok {
			p.AIEquity = eq
		}
		p.LastNightAction = nil
		p.HasUsedAbility = false
	}

	s.NightActions = map[string]*SubmittedNightAction{}
	s.BlockedPlayersTonight = map[string]bool{}
	s.ProtectedPlayersTonight = map[string]bool{}
}

func (s *GameState) applyPlayerBlocked(ev Event) {
	if p := s.player(ev.PlayerID); p != nil {
		if by := payloadString(ev.Payload, "blocked_by"); by != "" {
			p.StatusMessage = "Action blocked by " + by
		} else {
			p.StatusMessage = "Action blocked"
		}
	}
	s.markBlocked(ev.PlayerID)
}

func (s *GameState) applyPlayerProtected(ev Event) {
	if p := s.player(ev.PlayerID); p != nil {
		if by := payloadString(ev.Payload, "protected_by"); by != "" {
			p.StatusMessage = "Protected by " + by
		} else {
			p.StatusMessage = "Protected"
		}
	}
	if s.ProtectedPlayersTonight == nil {
		s.ProtectedPlayersTonight = map[string]bool{}
	}
	s.ProtectedPlayersTonight[ev.PlayerID] = true
}

func (s *GameState) applyReallocateBudget(ev Event) {
	s.useAbility(ev.PlayerID, "Budget reallocated")
	amount, _ := payloadInt(ev.Payload, "amount")

	from := payloadString(ev.Payload, "from_player")
	if p := s.player(from); p != nil {
		s.adjustTokens(from, -amount)
		p.StatusMessage = "Budget reduced"
	}
	if p := s.player(payloadString(ev.Payload, "to_player")); p != nil {
		p.Tokens += amount
		p.StatusMessage = "Budget increased"
	}
}

// Shock expiry is measured from the event timestamp so replays agree.
func (s *GameState) applySystemShock(ev Event) {
	p := s.player(ev.PlayerID)
	if p == nil {
		return
	}
	hours, _ := payloadFloat(ev.Payload, "duration_hours")
	p.SystemShocks = append(p.SystemShocks, SystemShock{
		Type:        ShockType(payloadString(ev.Payload, "shock_type")),
		Description: payloadString(ev.Payload, "description"),
		ExpiresAt:   ev.Timestamp.Add(time.Duration(hours * float64(time.Hour))),
		IsActive:    true,
	})
}

func (s *GameState) applyShockEffect(ev Event) {
	p := s.player(ev.PlayerID)
	if p == nil {
		return
	}
	switch payloadString(ev.Payload, "effect_type") {
	case "message_corruption":
		p.StatusMessage = "Message corruption active"
	case "action_lock":
		p.StatusMessage = "Action lock in effect"
	case "forced_silence":
		p.StatusMessage = "Communication restricted"
	default:
		p.StatusMessage = payloadString(ev.Payload, "description")
	}
}

// A non-zero delta wins over an absolute value.
func (s *GameState) applyAIEquityChanged(ev Event) {
	p := s.player(ev.PlayerID)
	if p == nil {
		return
	}
	if change, _ := payloadInt(ev.Payload, "ai_equity_change"); change != 0 {
		p.AIEquity += change
		return
	}
	if v, ok := payloadInt(ev.Payload, "new_ai_equity"); ok && v != 0 {
		p.AIEquity = v
	}
}
