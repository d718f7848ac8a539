package engine

import (
	"maps"
	"sort"
	"time"
)

// DefaultSettings returns the settings a freshly created game starts with.
func DefaultSettings() GameSettings {
	return GameSettings{
		MaxPlayers:         10,
		MinPlayers:         2,
		SitrepDuration:     15 * time.Second,
		PulseCheckDuration: 30 * time.Second,
		DiscussionDuration: 2 * time.Minute,
		ExtensionDuration:  15 * time.Second,
		NominationDuration: 30 * time.Second,
		TrialDuration:      30 * time.Second,
		VerdictDuration:    30 * time.Second,
		NightDuration:      30 * time.Second,
		StartingTokens:     1,
		VotingThreshold:    0.5,
	}
}

func NewGameState(id string, now time.Time) GameState {
	return GameState{
		ID:           id,
		Phase:        Phase{Type: PhaseLobby, StartTime: now},
		Players:      map[string]*Player{},
		CreatedAt:    now,
		UpdatedAt:    now,
		Settings:     DefaultSettings(),
		ChatMessages: []ChatMessage{},
		NightActions: map[string]*SubmittedNightAction{},
	}
}

// Clone returns a deep copy. Nothing reachable from the copy is shared with s.
func (s GameState) Clone() GameState {
	out := s

	out.Players = make(map[string]*Player, len(s.Players))
	for id, p := range s.Players {
		if p == nil {
			continue
		}
		out.Players[id] = clonePlayer(p)
	}

	out.ChatMessages = append([]ChatMessage(nil), s.ChatMessages...)
	if out.ChatMessages == nil {
		out.ChatMessages = []ChatMessage{}
	}
	out.Notifications = append([]PrivateNotification(nil), s.Notifications...)

	if s.CrisisEvent != nil {
		c := *s.CrisisEvent
		c.Effects = cloneMap(s.CrisisEvent.Effects)
		out.CrisisEvent = &c
	}
	if s.VoteState != nil {
		v := *s.VoteState
		v.Votes = maps.Clone(s.VoteState.Votes)
		v.TokenWeights = maps.Clone(s.VoteState.TokenWeights)
		v.Results = maps.Clone(s.VoteState.Results)
		out.VoteState = &v
	}
	if s.WinCondition != nil {
		w := *s.WinCondition
		out.WinCondition = &w
	}
	if s.CorporateMandate != nil {
		m := *s.CorporateMandate
		m.Effects = cloneMap(s.CorporateMandate.Effects)
		out.CorporateMandate = &m
	}

	out.NightActions = make(map[string]*SubmittedNightAction, len(s.NightActions))
	for id, a := range s.NightActions {
		if a == nil {
			continue
		}
		c := *a
		c.Payload = cloneMap(a.Payload)
		out.NightActions[id] = &c
	}

	out.PulseCheckResponses = maps.Clone(s.PulseCheckResponses)
	out.BlockedPlayersTonight = maps.Clone(s.BlockedPlayersTonight)
	out.ProtectedPlayersTonight = maps.Clone(s.ProtectedPlayersTonight)
	return out
}

func clonePlayer(p *Player) *Player {
	c := *p
	if p.Role != nil {
		r := *p.Role
		if p.Role.Ability != nil {
			a := *p.Role.Ability
			r.Ability = &a
		}
		c.Role = &r
	}
	if p.PersonalKPI != nil {
		k := *p.PersonalKPI
		c.PersonalKPI = &k
	}
	if p.LastNightAction != nil {
		n := *p.LastNightAction
		c.LastNightAction = &n
	}
	c.SystemShocks = append([]SystemShock(nil), p.SystemShocks...)
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}

// Roster returns the players ordered by join time, ties broken by id.
func (s GameState) Roster() []Player {
	out := make([]Player, 0, len(s.Players))
	for _, p := range s.Players {
		if p != nil {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Player returns a copy of the player with id.
func (s GameState) Player(id string) (Player, bool) {
	p, ok := s.Players[id]
	if !ok || p == nil {
		return Player{}, false
	}
	return *p, true
}
