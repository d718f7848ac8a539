package protocol

type EventType string

const (
	// Game lifecycle
	EventGameCreated  EventType = "GAME_CREATED"
	EventGameStarted  EventType = "GAME_STARTED"
	EventGameEnded    EventType = "GAME_ENDED"
	EventPhaseChanged EventType = "PHASE_CHANGED"
	EventDayStarted   EventType = "DAY_STARTED"
	EventNightStarted EventType = "NIGHT_STARTED"

	// Roster
	EventPlayerJoined        EventType = "PLAYER_JOINED"
	EventPlayerLeft          EventType = "PLAYER_LEFT"
	EventPlayerDeactivated   EventType = "PLAYER_DEACTIVATED"
	EventPlayerEliminated    EventType = "PLAYER_ELIMINATED"
	EventPlayerRoleRevealed  EventType = "PLAYER_ROLE_REVEALED"
	EventPlayerAligned       EventType = "PLAYER_ALIGNED"
	EventPlayerShocked       EventType = "PLAYER_SHOCKED"
	EventRoleAssigned        EventType = "ROLE_ASSIGNED"
	EventAlignmentChanged    EventType = "ALIGNMENT_CHANGED"
	EventRoleAbilityUnlocked EventType = "ROLE_ABILITY_UNLOCKED"
	EventProjectMilestone    EventType = "PROJECT_MILESTONE"
	EventPlayerStatusChanged EventType = "PLAYER_STATUS_CHANGED"
	EventPlayerReconnected   EventType = "PLAYER_RECONNECTED"
	EventPlayerDisconnected  EventType = "PLAYER_DISCONNECTED"

	// Communication
	EventChatMessage         EventType = "CHAT_MESSAGE"
	EventSystemMessage       EventType = "SYSTEM_MESSAGE"
	EventPrivateNotification EventType = "PRIVATE_NOTIFICATION"
	EventChatHistorySnapshot EventType = "CHAT_HISTORY_SNAPSHOT"

	// Voting
	EventVoteStarted      EventType = "VOTE_STARTED"
	EventVoteCast         EventType = "VOTE_CAST"
	EventVoteTallyUpdated EventType = "VOTE_TALLY_UPDATED"
	EventVoteCompleted    EventType = "VOTE_COMPLETED"
	EventPlayerNominated  EventType = "PLAYER_NOMINATED"

	// Economy
	EventTokensAwarded     EventType = "TOKENS_AWARDED"
	EventTokensSpent       EventType = "TOKENS_SPENT"
	EventTokensLost        EventType = "TOKENS_LOST"
	EventTokensDistributed EventType = "TOKENS_DISTRIBUTED"
	EventMiningAttempted   EventType = "MINING_ATTEMPTED"
	EventMiningSuccessful  EventType = "MINING_SUCCESSFUL"
	EventMiningFailed      EventType = "MINING_FAILED"
	EventMiningPoolUpdated EventType = "MINING_POOL_UPDATED"

	// Night actions and conversion
	EventNightActionSubmitted EventType = "NIGHT_ACTION_SUBMITTED"
	EventNightActionsResolved EventType = "NIGHT_ACTIONS_RESOLVED"
	EventPlayerBlocked        EventType = "PLAYER_BLOCKED"
	EventPlayerProtected      EventType = "PLAYER_PROTECTED"
	EventPlayerInvestigated   EventType = "PLAYER_INVESTIGATED"
	EventAIConversionAttempt  EventType = "AI_CONVERSION_ATTEMPT"
	EventAIConversionSuccess  EventType = "AI_CONVERSION_SUCCESS"
	EventAIConversionFailed   EventType = "AI_CONVERSION_FAILED"
	EventAIRevealed           EventType = "AI_REVEALED"

	// Crisis, pulse check, win
	EventCrisisTriggered     EventType = "CRISIS_TRIGGERED"
	EventPulseCheckStarted   EventType = "PULSE_CHECK_STARTED"
	EventPulseCheckSubmitted EventType = "PULSE_CHECK_SUBMITTED"
	EventPulseCheckRevealed  EventType = "PULSE_CHECK_REVEALED"
	EventVictoryCondition    EventType = "VICTORY_CONDITION"

	// Role abilities
	EventRunAudit          EventType = "RUN_AUDIT"
	EventOverclockServers  EventType = "OVERCLOCK_SERVERS"
	EventIsolateNode       EventType = "ISOLATE_NODE"
	EventPerformanceReview EventType = "PERFORMANCE_REVIEW"
	EventReallocateBudget  EventType = "REALLOCATE_BUDGET"
	EventPivot             EventType = "PIVOT"
	EventDeployHotfix      EventType = "DEPLOY_HOTFIX"

	// Status, KPI, mandates, shocks, equity
	EventSlackStatusChanged   EventType = "SLACK_STATUS_CHANGED"
	EventPartingShotSet       EventType = "PARTING_SHOT_SET"
	EventKPIProgress          EventType = "KPI_PROGRESS"
	EventKPICompleted         EventType = "KPI_COMPLETED"
	EventMandateActivated     EventType = "MANDATE_ACTIVATED"
	EventMandateEffect        EventType = "MANDATE_EFFECT"
	EventSystemShockApplied   EventType = "SYSTEM_SHOCK_APPLIED"
	EventShockEffectTriggered EventType = "SHOCK_EFFECT_TRIGGERED"
	EventAIEquityChanged      EventType = "AI_EQUITY_CHANGED"
	EventEquityThreshold      EventType = "EQUITY_THRESHOLD"

	// Session
	EventGameStateUpdate    EventType = "GAME_STATE_UPDATE"
	EventSyncComplete       EventType = "SYNC_COMPLETE"
	EventLobbyStateUpdate   EventType = "LOBBY_STATE_UPDATE"
	EventClientIdentified   EventType = "CLIENT_IDENTIFIED"
	EventCountdownInitiated EventType = "GAME_START_COUNTDOWN_INITIATED"
	EventCountdownUpdate    EventType = "GAME_START_COUNTDOWN_UPDATE"
	EventCountdownCancelled EventType = "GAME_START_COUNTDOWN_CANCELLED"
)

// Kind says what the client does with an event beyond notifying listeners.
type Kind int

const (
	// KindInformational events only reach listeners.
	KindInformational Kind = iota
	// KindFold events are folded into the game state.
	KindFold
	// KindSnapshot events carry a full game state that replaces the current one.
	KindSnapshot
)

func (k Kind) String() string {
	switch k {
	case KindFold:
		return "fold"
	case KindSnapshot:
		return "snapshot"
	default:
		return "informational"
	}
}

// eventKinds must have an entry for every value in EventTypeValues.
var eventKinds = map[EventType]Kind{
	EventGameCreated:  KindInformational,
	EventGameStarted:  KindFold,
	EventGameEnded:    KindFold,
	EventPhaseChanged: KindFold,
	EventDayStarted:   KindFold,
	EventNightStarted: KindFold,

	EventPlayerJoined:        KindFold,
	EventPlayerLeft:          KindFold,
	EventPlayerDeactivated:   KindFold,
	EventPlayerEliminated:    KindFold,
	EventPlayerRoleRevealed:  KindInformational,
	EventPlayerAligned:       KindFold,
	EventPlayerShocked:       KindFold,
	EventRoleAssigned:        KindFold,
	EventAlignmentChanged:    KindFold,
	EventRoleAbilityUnlocked: KindFold,
	EventProjectMilestone:    KindFold,
	EventPlayerStatusChanged: KindFold,
	EventPlayerReconnected:   KindInformational,
	EventPlayerDisconnected:  KindInformational,

	EventChatMessage:         KindFold,
	EventSystemMessage:       KindInformational,
	EventPrivateNotification: KindFold,
	EventChatHistorySnapshot: KindFold,

	EventVoteStarted:      KindFold,
	EventVoteCast:         KindFold,
	EventVoteTallyUpdated: KindInformational,
	EventVoteCompleted:    KindFold,
	EventPlayerNominated:  KindFold,

	EventTokensAwarded:     KindFold,
	EventTokensSpent:       KindFold,
	EventTokensLost:        KindFold,
	EventTokensDistributed: KindFold,
	EventMiningAttempted:   KindInformational,
	EventMiningSuccessful:  KindFold,
	EventMiningFailed:      KindFold,
	EventMiningPoolUpdated: KindFold,

	EventNightActionSubmitted: KindFold,
	EventNightActionsResolved: KindFold,
	EventPlayerBlocked:        KindFold,
	EventPlayerProtected:      KindFold,
	EventPlayerInvestigated:   KindFold,
	EventAIConversionAttempt:  KindFold,
	EventAIConversionSuccess:  KindFold,
	EventAIConversionFailed:   KindFold,
	EventAIRevealed:           KindInformational,

	EventCrisisTriggered:     KindFold,
	EventPulseCheckStarted:   KindFold,
	EventPulseCheckSubmitted: KindFold,
	EventPulseCheckRevealed:  KindFold,
	EventVictoryCondition:    KindFold,

	EventRunAudit:          KindFold,
	EventOverclockServers:  KindFold,
	EventIsolateNode:       KindFold,
	EventPerformanceReview: KindFold,
	EventReallocateBudget:  KindFold,
	EventPivot:             KindFold,
	EventDeployHotfix:      KindFold,

	EventSlackStatusChanged:   KindFold,
	EventPartingShotSet:       KindFold,
	EventKPIProgress:          KindFold,
	EventKPICompleted:         KindFold,
	EventMandateActivated:     KindFold,
	EventMandateEffect:        KindFold,
	EventSystemShockApplied:   KindFold,
	EventShockEffectTriggered: KindFold,
	EventAIEquityChanged:      KindFold,
	EventEquityThreshold:      KindFold,

	EventGameStateUpdate:    KindSnapshot,
	EventSyncComplete:       KindInformational,
	EventLobbyStateUpdate:   KindInformational,
	EventClientIdentified:   KindInformational,
	EventCountdownInitiated: KindInformational,
	EventCountdownUpdate:    KindInformational,
	EventCountdownCancelled: KindInformational,
}

// EventTypeValues lists every event type the client understands.
var EventTypeValues = []EventType{
	EventGameCreated, EventGameStarted, EventGameEnded, EventPhaseChanged,
	EventDayStarted, EventNightStarted,

	EventPlayerJoined, EventPlayerLeft, EventPlayerDeactivated, EventPlayerEliminated,
	EventPlayerRoleRevealed, EventPlayerAligned, EventPlayerShocked, EventRoleAssigned,
	EventAlignmentChanged, EventRoleAbilityUnlocked, EventProjectMilestone,
	EventPlayerStatusChanged, EventPlayerReconnected, EventPlayerDisconnected,

	EventChatMessage, EventSystemMessage, EventPrivateNotification, EventChatHistorySnapshot,

	EventVoteStarted, EventVoteCast, EventVoteTallyUpdated, EventVoteCompleted,
	EventPlayerNominated,

	EventTokensAwarded, EventTokensSpent, EventTokensLost, EventTokensDistributed,
	EventMiningAttempted, EventMiningSuccessful, EventMiningFailed, EventMiningPoolUpdated,

	EventNightActionSubmitted, EventNightActionsResolved, EventPlayerBlocked,
	EventPlayerProtected, EventPlayerInvestigated, EventAIConversionAttempt,
	EventAIConversionSuccess, EventAIConversionFailed, EventAIRevealed,

	EventCrisisTriggered, EventPulseCheckStarted, EventPulseCheckSubmitted,
	EventPulseCheckRevealed, EventVictoryCondition,

	EventRunAudit, EventOverclockServers, EventIsolateNode, EventPerformanceReview,
	EventReallocateBudget, EventPivot, EventDeployHotfix,

	EventSlackStatusChanged, EventPartingShotSet, EventKPIProgress, EventKPICompleted,
	EventMandateActivated, EventMandateEffect, EventSystemShockApplied,
	EventShockEffectTriggered, EventAIEquityChanged, EventEquityThreshold,

	EventGameStateUpdate, EventSyncComplete, EventLobbyStateUpdate, EventClientIdentified,
	EventCountdownInitiated, EventCountdownUpdate, EventCountdownCancelled,
}

// KindOf reports how the client treats t. Unknown types are informational
// and never reach the engine.
func KindOf(t EventType) Kind {
	k, ok := eventKinds[t]
	if !ok {
		return KindInformational
	}
	return k
}

// Known reports whether t appears in the kind table.
func Known(t EventType) bool {
	_, ok := eventKinds[t]
	return ok
}

// Folds reports whether events of type t are folded into the game state.
func Folds(t EventType) bool { return KindOf(t) == KindFold }
