package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/DoyleJ11/alignment-sync/pkg/protocol"
)

// Queries below read one snapshot and never change it. Anything time
// dependent takes now explicitly.

func hasActiveShock(p Player, t ShockType, now time.Time) bool {
	for _, shock := range p.SystemShocks {
		if shock.Type == t && shock.activeAt(now) {
			return true
		}
	}
	return false
}

func CanPlayerVote(s GameState, playerID string, phase PhaseType, now time.Time) bool {
	p, ok := s.Player(playerID)
	if !ok || !p.IsAlive {
		return false
	}
	if hasActiveShock(p, ShockForcedSilence, now) {
		return false
	}
	return phase == PhaseNomination || phase == PhaseVerdict || phase == PhaseExtension
}

func CanPlayerSendMessage(s GameState, playerID string, now time.Time) bool {
	p, ok := s.Player(playerID)
	if !ok || !p.IsAlive {
		return false
	}
	return !hasActiveShock(p, ShockForcedSilence, now)
}

func CanPlayerUseNightAction(s GameState, playerID string, action NightActionType, now time.Time) bool {
	p, ok := s.Player(playerID)
	if !ok || !p.IsAlive {
		return false
	}
	if hasActiveShock(p, ShockActionLock, now) {
		return false
	}

	if action == NightMine {
		return true
	}
	if action == NightConvert {
		return p.Alignment == AlignmentAligned
	}

	if p.Role == nil || !p.Role.IsUnlocked || p.HasUsedAbility {
		return false
	}
	switch p.Role.Type {
	case RoleCISO:
		return action == NightInvestigate || action == NightBlock
	case RoleCEO:
		return action == NightProtect
	}
	return false
}

// CanPlayerAffordAbility reports whether the player holds an unlocked,
// ready, unused role ability.
func CanPlayerAffordAbility(s GameState, playerID string) bool {
	p, ok := s.Player(playerID)
	if !ok || p.Role == nil || !p.Role.IsUnlocked || p.HasUsedAbility {
		return false
	}
	return p.Role.Ability != nil && p.Role.Ability.IsReady
}

func IsValidNightActionTarget(s GameState, actorID, targetID string, action NightActionType) bool {
	if _, ok := s.Player(actorID); !ok {
		return false
	}
	target, ok := s.Player(targetID)
	if !ok {
		return false
	}
	if actorID == targetID && action != NightMine {
		return false
	}
	if !target.IsAlive {
		return false
	}
	if action == NightConvert && target.Alignment == AlignmentAligned {
		return false
	}
	return true
}

func IsGamePhaseOver(s GameState, now time.Time) bool {
	return now.After(s.Phase.StartTime.Add(s.Phase.Duration))
}

// GetVoteWinner returns the candidate whose weighted total reaches
// threshold of all cast weight. When several do, the largest total wins and
// ties go to the lowest id.
func GetVoteWinner(v VoteState, threshold float64) (string, bool) {
	if len(v.Results) == 0 {
		return "", false
	}
	total := 0
	for _, w := range v.TokenWeights {
		total += w
	}
	required := int(float64(total) * threshold)

	candidates := make([]string, 0, len(v.Results))
	for id := range v.Results {
		candidates = append(candidates, id)
	}
	sort.Strings(candidates)

	winner, best := "", -1
	for _, id := range candidates {
		if n := v.Results[id]; n >= required && n > best {
			winner, best = id, n
		}
	}
	return winner, best >= 0
}

// CalculateMiningSuccess is deterministic for a given player, day and
// difficulty.
func CalculateMiningSuccess(s GameState, playerID string, difficulty float64) bool {
	p, ok := s.Player(playerID)
	if !ok {
		return false
	}
	tokenBonus := min(float64(p.Tokens)*0.05, 0.3)
	milestoneBonus := min(float64(p.ProjectMilestones)*0.1, 0.3)
	rate := clamp(0.6+tokenBonus+milestoneBonus-difficulty, 0.1, 0.9)

	return roll(hashPlayerAction(p.ID, s.DayNumber, "MINE")) < rate
}

func CalculateAIConversionSuccess(s GameState, targetID string, aiEquity int) bool {
	p, ok := s.Player(targetID)
	if !ok {
		return false
	}
	resistance := 0.0
	if p.Role != nil {
		switch p.Role.Type {
		case RoleCISO:
			resistance = 0.3
		case RoleEthics:
			resistance = 0.25
		case RoleCEO:
			resistance = 0.2
		default:
			resistance = 0.1
		}
	}
	if p.Tokens >= 5 {
		resistance += 0.1
	}
	rate := clamp(float64(aiEquity)/100-resistance, 0.05, 0.8)

	return roll(hashPlayerAction(p.ID, s.DayNumber, "CONVERSION")) < rate
}

// CheckWinCondition returns nil while no side has won or the game has not
// left the lobby.
func CheckWinCondition(s GameState) *WinCondition {
	if s.Phase.Type == PhaseLobby || len(s.Players) == 0 {
		return nil
	}

	humans, ai := 0, 0
	for _, p := range s.Players {
		if p == nil || !p.IsAlive {
			continue
		}
		if p.Alignment == AlignmentAligned {
			ai++
		} else {
			humans++
		}
	}

	for _, p := range s.Roster() {
		if p.PersonalKPI == nil || p.PersonalKPI.Type != KPISuccessionPlanner {
			continue
		}
		if humans == 2 && p.IsAlive && p.Alignment == AlignmentHuman {
			return &WinCondition{
				Winner:      "HUMANS",
				Condition:   "SUCCESSION_PLANNER",
				Description: fmt.Sprintf("%s achieved succession plan with exactly 2 humans remaining", p.Name),
			}
		}
	}

	switch {
	case ai > 0 && ai >= humans:
		return &WinCondition{Winner: "AI", Condition: "SINGULARITY", Description: "AI has achieved majority control"}
	case ai == 0 && humans > 0:
		return &WinCondition{Winner: "HUMANS", Condition: "CONTAINMENT", Description: "All AI threats have been contained"}
	case s.DayNumber >= 7 && humans > ai:
		return &WinCondition{Winner: "HUMANS", Condition: "CONTAINMENT", Description: "Humans maintained control through time limit"}
	case s.DayNumber >= 7:
		return &WinCondition{Winner: "AI", Condition: "SINGULARITY", Description: "AI survived to time limit"}
	}
	return nil
}

func CalculateTokenReward(s GameState, t protocol.EventType, playerID string) int {
	p, _ := s.Player(playerID)

	baseReward := 1
	if s.CrisisEvent != nil {
		if r, ok := payloadInt(s.CrisisEvent.Effects, "mining_base_reward"); ok {
			baseReward = r
		}
	}

	switch t {
	case protocol.EventMiningSuccessful:
		return baseReward + p.ProjectMilestones/3
	case protocol.EventProjectMilestone:
		return 1
	case protocol.EventKPICompleted:
		if p.PersonalKPI != nil {
			switch p.PersonalKPI.Type {
			case KPISuccessionPlanner:
				return 5
			case KPIScapegoat:
				return 4
			}
		}
		return 3
	}
	return 0
}

// IsMessageCorrupted applies a 25% corruption chance while a corruption
// shock is active, seeded by the message content.
func IsMessageCorrupted(s GameState, playerID, content string, now time.Time) bool {
	p, ok := s.Player(playerID)
	if !ok || !hasActiveShock(p, ShockMessageCorruption, now) {
		return false
	}
	return roll(hashString(content+":"+p.ID)) < 0.25
}

// CheckScapegoatKPI reports a unanimous vote of at least three voters
// against a player holding the scapegoat KPI.
func CheckScapegoatKPI(s GameState, playerID string) bool {
	p, ok := s.Player(playerID)
	if !ok || p.PersonalKPI == nil || p.PersonalKPI.Type != KPIScapegoat || s.VoteState == nil {
		return false
	}
	total := len(s.VoteState.Votes)
	against := 0
	for _, target := range s.VoteState.Votes {
		if target == playerID {
			against++
		}
	}
	return total >= 3 && against == total
}

func hashPlayerAction(playerID string, day int, action string) uint32 {
	return hashString(fmt.Sprintf("%s:%d:%s", playerID, day, action))
}

func hashString(s string) uint32 {
	sum := sha256.Sum256([]byte(s))
	return binary.BigEndian.Uint32(sum[:4])
}

// roll maps a hash onto [0, 1).
func roll(h uint32) float64 {
	return float64(h%10000) / 10000
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
