package engine

import (
	"time"

	"github.com/DoyleJ11/alignment-sync/pkg/protocol"
)

// Event is the server event envelope; the engine folds it as-is.
type Event = protocol.Event

type PhaseType string

const (
	PhaseLobby      PhaseType = "LOBBY"
	PhaseSitrep     PhaseType = "SITREP"
	PhasePulseCheck PhaseType = "PULSE_CHECK"
	PhaseDiscussion PhaseType = "DISCUSSION"
	PhaseExtension  PhaseType = "EXTENSION"
	PhaseNomination PhaseType = "NOMINATION"
	PhaseTrial      PhaseType = "TRIAL"
	PhaseVerdict    PhaseType = "VERDICT"
	PhaseNight      PhaseType = "NIGHT"
	PhaseGameOver   PhaseType = "GAME_OVER"
)

type Phase struct {
	Type      PhaseType     `json:"type"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
}

const (
	AlignmentHuman   = "HUMAN"
	AlignmentAligned = "ALIGNED"
)

type RoleType string

const (
	RoleCISO      RoleType = "CISO"
	RoleCEO       RoleType = "CEO"
	RoleCTO       RoleType = "CTO"
	RoleCOO       RoleType = "COO"
	RoleCFO       RoleType = "CFO"
	RoleEthics    RoleType = "ETHICS"
	RolePlatforms RoleType = "PLATFORMS"
	RoleIntern    RoleType = "INTERN"
)

type KPIType string

const (
	KPICapitalist        KPIType = "CAPITALIST"
	KPIGuardian          KPIType = "GUARDIAN"
	KPIInquisitor        KPIType = "INQUISITOR"
	KPISuccessionPlanner KPIType = "SUCCESSION_PLANNER"
	KPIScapegoat         KPIType = "SCAPEGOAT"
)

type ShockType string

const (
	ShockMessageCorruption ShockType = "MESSAGE_CORRUPTION"
	ShockActionLock        ShockType = "ACTION_LOCK"
	ShockForcedSilence     ShockType = "FORCED_SILENCE"
)

type NightActionType string

const (
	NightMine        NightActionType = "MINE"
	NightConvert     NightActionType = "CONVERT"
	NightBlock       NightActionType = "BLOCK"
	NightInvestigate NightActionType = "INVESTIGATE"
	NightProtect     NightActionType = "PROTECT"
)

type VoteType string

const (
	VoteExtension  VoteType = "EXTENSION"
	VoteNomination VoteType = "NOMINATION"
	VoteVerdict    VoteType = "VERDICT"
)

type MandateType string

type Player struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	JobTitle          string    `json:"job_title"`
	ControlType       string    `json:"control_type,omitempty"`
	IsAlive           bool      `json:"is_alive"`
	Tokens            int       `json:"tokens"`
	ProjectMilestones int       `json:"project_milestones"`
	StatusMessage     string    `json:"status_message"`
	JoinedAt          time.Time `json:"joined_at"`

	// Only populated for the local player until revealed.
	Alignment       string       `json:"alignment,omitempty"`
	Role            *Role        `json:"role,omitempty"`
	PersonalKPI     *PersonalKPI `json:"personal_kpi,omitempty"`
	AIEquity        int          `json:"ai_equity,omitempty"`
	HasUsedAbility  bool         `json:"has_used_ability,omitempty"`
	LastNightAction *NightAction `json:"last_night_action,omitempty"`

	SlackStatus  string        `json:"slack_status,omitempty"`
	PartingShot  string        `json:"parting_shot,omitempty"`
	SystemShocks []SystemShock `json:"system_shocks,omitempty"`
}

type Role struct {
	Type        RoleType `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IsUnlocked  bool     `json:"is_unlocked"`
	Ability     *Ability `json:"ability,omitempty"`
}

type Ability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsReady     bool   `json:"is_ready"`
}

type PersonalKPI struct {
	Type        KPIType `json:"type"`
	Description string  `json:"description"`
	Progress    int     `json:"progress"`
	Target      int     `json:"target"`
	IsCompleted bool    `json:"is_completed"`
	Reward      string  `json:"reward"`
}

type SystemShock struct {
	Type        ShockType `json:"type"`
	Description string    `json:"description"`
	ExpiresAt   time.Time `json:"expires_at"`
	IsActive    bool      `json:"is_active"`
}

// activeAt reports whether the shock still applies at now.
func (s SystemShock) activeAt(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

type NightAction struct {
	Type     NightActionType `json:"type"`
	TargetID string          `json:"target_id,omitempty"`
}

type SubmittedNightAction struct {
	PlayerID  string         `json:"player_id"`
	Type      string         `json:"type"`
	TargetID  string         `json:"target_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type CrisisEvent struct {
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Effects     map[string]any `json:"effects"`
}

type CorporateMandate struct {
	Type        MandateType    `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Effects     map[string]any `json:"effects"`
	IsActive    bool           `json:"is_active"`
}

type ChatMessage struct {
	ID         string    `json:"id"`
	PlayerID   string    `json:"player_id"`
	PlayerName string    `json:"player_name"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	IsSystem   bool      `json:"is_system"`
}

type PrivateNotification struct {
	ID        string    `json:"id"`
	PlayerID  string    `json:"player_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  string    `json:"priority,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type VoteState struct {
	Type         VoteType          `json:"type"`
	Votes        map[string]string `json:"votes"`         // voter -> target
	TokenWeights map[string]int    `json:"token_weights"` // voter -> tokens at cast time
	Results      map[string]int    `json:"results"`       // target -> weighted total
	IsComplete   bool              `json:"is_complete"`
}

type WinCondition struct {
	Winner      string `json:"winner"`    // HUMANS | AI
	Condition   string `json:"condition"` // CONTAINMENT | SINGULARITY | SUCCESSION_PLANNER
	Description string `json:"description"`
}

type GameSettings struct {
	MaxPlayers         int           `json:"max_players"`
	MinPlayers         int           `json:"min_players"`
	SitrepDuration     time.Duration `json:"sitrep_duration"`
	PulseCheckDuration time.Duration `json:"pulse_check_duration"`
	DiscussionDuration time.Duration `json:"discussion_duration"`
	ExtensionDuration  time.Duration `json:"extension_duration"`
	NominationDuration time.Duration `json:"nomination_duration"`
	TrialDuration      time.Duration `json:"trial_duration"`
	VerdictDuration    time.Duration `json:"verdict_duration"`
	NightDuration      time.Duration `json:"night_duration"`
	StartingTokens     int           `json:"starting_tokens"`
	VotingThreshold    float64       `json:"voting_threshold"`
}

// GameState is one immutable snapshot of a game. Transitions go through
// Apply, which works on a deep copy.
type GameState struct {
	ID                  string                           `json:"id"`
	Phase               Phase                            `json:"phase"`
	DayNumber           int                              `json:"day_number"`
	Players             map[string]*Player               `json:"players"`
	CreatedAt           time.Time                        `json:"created_at"`
	UpdatedAt           time.Time                        `json:"updated_at"`
	Settings            GameSettings                     `json:"settings"`
	CrisisEvent         *CrisisEvent                     `json:"crisis_event,omitempty"`
	ChatMessages        []ChatMessage                    `json:"chat_messages"`
	VoteState           *VoteState                       `json:"vote_state,omitempty"`
	NominatedPlayer     string                           `json:"nominated_player,omitempty"`
	WinCondition        *WinCondition                    `json:"win_condition,omitempty"`
	NightActions        map[string]*SubmittedNightAction `json:"night_actions,omitempty"`
	CorporateMandate    *CorporateMandate                `json:"corporate_mandate,omitempty"`
	PulseCheckResponses map[string]string                `json:"pulse_check_responses,omitempty"`
	Notifications       []PrivateNotification            `json:"private_notifications,omitempty"`

	// Night bookkeeping, cleared when night actions resolve.
	BlockedPlayersTonight   map[string]bool `json:"-"`
	ProtectedPlayersTonight map[string]bool `json:"-"`
}
