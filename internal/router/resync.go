package router

import (
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/alignment-sync/pkg/protocol"
)

const defaultResyncTimeout = 30 * time.Second

// syncMode tracks how a game is catching up after a RECONNECT. Whichever of
// a snapshot or a folded tail event arrives first decides the mode. Events
// newer than what the mode already covers are always admitted, so live
// traffic keeps folding while the replay drains.
type syncMode int

const (
	live syncMode = iota
	awaiting
	snapshotSync
	tailSync
)

func (m syncMode) String() string {
	switch m {
	case awaiting:
		return "awaiting"
	case snapshotSync:
		return "snapshot"
	case tailSync:
		return "tail"
	default:
		return "live"
	}
}

type resyncState struct {
	mode syncMode
	// cutoff is the UpdatedAt of the loaded snapshot in snapshot mode and
	// the newest folded event timestamp in tail mode.
	cutoff  time.Time
	started time.Time
}

// BeginResync is called just before a RECONNECT for gameID is sent. Any
// catch-up still running for gameID starts over.
func (r *Router) BeginResync(gameID string) {
	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()
	r.resync[gameID] = &resyncState{mode: awaiting, started: r.now()}
}

// SyncMode reports the catch-up mode for gameID.
func (r *Router) SyncMode(gameID string) string {
	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()
	st := r.current(gameID)
	if st == nil {
		return live.String()
	}
	return st.mode.String()
}

// current returns the catch-up state for gameID, ending it first when
// SYNC_COMPLETE never arrived within the timeout.
func (r *Router) current(gameID string) *resyncState {
	st, ok := r.resync[gameID]
	if !ok {
		return nil
	}
	if r.resyncTimeout > 0 && r.now().Sub(st.started) > r.resyncTimeout {
		r.log.Warn("resync timed out without SYNC_COMPLETE", zap.String("game_id", gameID), zap.Stringer("mode", st.mode))
		delete(r.resync, gameID)
		return nil
	}
	return st
}

func (r *Router) admitTail(ev protocol.Event) bool {
	st := r.current(ev.GameID)
	if st == nil {
		return true
	}
	switch st.mode {
	case awaiting:
		st.mode, st.cutoff = tailSync, ev.Timestamp
	case tailSync:
		if ev.Timestamp.After(st.cutoff) {
			st.cutoff = ev.Timestamp
		}
	case snapshotSync:
		return !covered(ev.Timestamp, st.cutoff)
	}
	return true
}

// admitSnapshot takes a snapshot unless a tail replay already folded events
// at least as new as it.
func (r *Router) admitSnapshot(gameID string, updatedAt time.Time) bool {
	st := r.current(gameID)
	if st == nil {
		return true
	}
	switch st.mode {
	case tailSync:
		if !updatedAt.After(st.cutoff) {
			return false
		}
	case snapshotSync:
		if updatedAt.Before(st.cutoff) {
			return false
		}
	}
	st.mode, st.cutoff = snapshotSync, updatedAt
	return true
}

func (r *Router) endResync(gameID string) {
	delete(r.resync, gameID)
}

// covered reports whether an event at ts is already part of a snapshot
// taken at cutoff. Untimed events are never treated as covered; the engine
// still drops ids it has seen.
func covered(ts, cutoff time.Time) bool {
	if ts.IsZero() || cutoff.IsZero() {
		return false
	}
	return !ts.After(cutoff)
}
