package engine

import "time"

// DayOrder is the phase sequence of one in-game day. EXTENSION and TRIAL
// are entered only when a vote calls for them.
var DayOrder = []PhaseType{
	PhaseSitrep,
	PhasePulseCheck,
	PhaseDiscussion,
	PhaseExtension,
	PhaseNomination,
	PhaseTrial,
	PhaseVerdict,
	PhaseNight,
}

// NextPhase returns the phase that normally follows p. NIGHT wraps to the
// next day's SITREP; LOBBY and GAME_OVER have no successor inside a day.
func NextPhase(p PhaseType) (PhaseType, bool) {
	for i, step := range DayOrder {
		if step != p {
			continue
		}
		if i == len(DayOrder)-1 {
			return DayOrder[0], true
		}
		return DayOrder[i+1], true
	}
	return "", false
}

// DurationFor is the configured length of phase p; zero for phases
// without a timer.
func (g GameSettings) DurationFor(p PhaseType) time.Duration {
	switch p {
	case PhaseSitrep:
		return g.SitrepDuration
	case PhasePulseCheck:
		return g.PulseCheckDuration
	case PhaseDiscussion:
		return g.DiscussionDuration
	case PhaseExtension:
		return g.ExtensionDuration
	case PhaseNomination:
		return g.NominationDuration
	case PhaseTrial:
		return g.TrialDuration
	case PhaseVerdict:
		return g.VerdictDuration
	case PhaseNight:
		return g.NightDuration
	default:
		return 0
	}
}
