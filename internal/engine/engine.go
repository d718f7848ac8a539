package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/alignment-sync/pkg/protocol"
)

var ErrNotInitialized = errors.New("engine not initialized")
var ErrNoGameState = errors.New("no game state")
var ErrGameMismatch = fmt.Errorf("%w: snapshot belongs to another game", ErrNoGameState)
var ErrInvalidSnapshot = errors.New("invalid game state snapshot")
var ErrUnsupportedEvent = errors.New("event type does not fold into game state")

// Engine owns the snapshot of one game session. All mutation is serialized
// behind mu. Listeners run outside mu, one notification at a time and in
// the order the changes happened; they must not call back into mutating
// methods synchronously.
type Engine struct {
	mu      sync.Mutex
	ready   bool
	state   *GameState // authoritative
	pending []Event    // optimistic, not yet confirmed
	view    *GameState // state with pending folded on top
	applied *recentIDs

	dedupeWindow int

	notifyMu  sync.Mutex
	listeners []listener
	nextID    int

	now func() time.Time
	log *zap.Logger
}

type listener struct {
	id int
	fn func(GameState)
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock replaces time.Now for game creation and time-dependent queries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithDedupeWindow sets how many recent event ids are remembered for
// duplicate detection.
func WithDedupeWindow(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.dedupeWindow = n
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		now:          time.Now,
		log:          zap.NewNop(),
		dedupeWindow: defaultDedupeWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.applied = newRecentIDs(e.dedupeWindow)
	return e
}

// Init marks the engine usable. Every other mutating call fails with
// ErrNotInitialized until it has run.
func (e *Engine) Init() {
	e.mu.Lock()
	e.ready = true
	e.mu.Unlock()
}

// CreateGame discards any current snapshot and starts an empty one for id.
func (e *Engine) CreateGame(gameID string) error {
	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	s := NewGameState(gameID, e.now())
	e.replaceLocked(s)
	e.publishLocked()
	return nil
}

// ApplyEvent folds one authoritative event. An event id among the recent
// ones seen since the last create or load is a no-op. The first pending optimistic event with the
// same type and player is retired.
func (e *Engine) ApplyEvent(ev Event) error {
	e.mu.Lock()
	if err := e.checkLocked(ev); err != nil {
		e.mu.Unlock()
		return err
	}
	if ev.ID != "" {
		if e.applied.has(ev.ID) {
			e.mu.Unlock()
			e.log.Debug("duplicate event skipped", zap.String("event_id", ev.ID), zap.String("type", string(ev.Type)))
			return nil
		}
		e.applied.add(ev.ID)
	}

	next := Apply(*e.state, ev)
	e.state = &next
	e.retireLocked(ev)
	e.rebuildViewLocked()
	e.publishLocked()
	return nil
}

// ApplyOptimistic folds locally predicted events on top of the
// authoritative snapshot until matching server events arrive.
func (e *Engine) ApplyOptimistic(events ...Event) error {
	e.mu.Lock()
	for _, ev := range events {
		if err := e.checkLocked(ev); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	if len(events) == 0 {
		e.mu.Unlock()
		return nil
	}
	e.pending = append(e.pending, events...)
	e.rebuildViewLocked()
	e.publishLocked()
	return nil
}

// LoadState atomically replaces the snapshot with s.
func (e *Engine) LoadState(s GameState) error {
	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	if s.ID == "" {
		e.mu.Unlock()
		return fmt.Errorf("%w: missing id", ErrInvalidSnapshot)
	}
	e.replaceLocked(normalize(s.Clone()))
	e.publishLocked()
	return nil
}

// ResetAndLoadState drops the current snapshot, including any pending
// optimistic events, before loading s. Listeners see only the loaded state.
func (e *Engine) ResetAndLoadState(s GameState) error {
	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	if s.ID == "" {
		e.mu.Unlock()
		return fmt.Errorf("%w: missing id", ErrInvalidSnapshot)
	}
	e.replaceLocked(normalize(s.Clone()))
	e.publishLocked()
	return nil
}

// DeserializeGameState loads a JSON encoded snapshot.
func (e *Engine) DeserializeGameState(data []byte) error {
	s, err := DecodeGameState(data)
	if err != nil {
		return err
	}
	return e.LoadState(s)
}

// SerializeGameState encodes the authoritative snapshot, without pending
// optimistic events.
func (e *Engine) SerializeGameState() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return nil, ErrNotInitialized
	}
	if e.state == nil {
		return nil, ErrNoGameState
	}
	return json.Marshal(e.state)
}

// CurrentState returns a copy of the visible snapshot.
func (e *Engine) CurrentState() (GameState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.view == nil {
		return GameState{}, false
	}
	return e.view.Clone(), true
}

// GameID is the id of the current snapshot, or "" when there is none.
func (e *Engine) GameID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return ""
	}
	return e.state.ID
}

// PendingCount reports how many optimistic events await confirmation.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// OnStateChange registers fn for every successful change. The returned
// func removes it; calling it twice is harmless.
func (e *Engine) OnStateChange(fn func(GameState)) (unsubscribe func()) {
	e.notifyMu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, listener{id: id, fn: fn})
	e.notifyMu.Unlock()

	return func() {
		e.notifyMu.Lock()
		defer e.notifyMu.Unlock()
		for i, l := range e.listeners {
			if l.id == id {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) checkLocked(ev Event) error {
	if !e.ready {
		return ErrNotInitialized
	}
	if !protocol.Folds(ev.Type) {
		return fmt.Errorf("%w: %s", ErrUnsupportedEvent, ev.Type)
	}
	if e.state == nil {
		return fmt.Errorf("%w: %s", ErrNoGameState, ev.GameID)
	}
	if ev.GameID != "" && ev.GameID != e.state.ID {
		return fmt.Errorf("%w: have %s, event for %s", ErrGameMismatch, e.state.ID, ev.GameID)
	}
	return nil
}

func (e *Engine) replaceLocked(s GameState) {
	e.state = &s
	e.pending = nil
	e.applied = newRecentIDs(e.dedupeWindow)
	e.rebuildViewLocked()
}

func (e *Engine) retireLocked(ev Event) {
	for i, p := range e.pending {
		if p.Type == ev.Type && p.PlayerID == ev.PlayerID {
			e.pending = append(e.pending[:i:i], e.pending[i+1:]...)
			return
		}
	}
}

func (e *Engine) rebuildViewLocked() {
	if e.state == nil {
		e.view = nil
		return
	}
	if len(e.pending) == 0 {
		e.view = e.state
		return
	}
	v := Reduce(*e.state, e.pending)
	e.view = &v
}

// publishLocked hands the visible snapshot to listeners and releases mu.
// notifyMu is taken before mu is released so notifications keep the order
// of the changes that caused them.
func (e *Engine) publishLocked() {
	var snap GameState
	if e.view != nil {
		snap = e.view.Clone()
	}
	e.notifyMu.Lock()
	e.mu.Unlock()
	defer e.notifyMu.Unlock()

	for _, l := range e.listeners {
		e.notify(l, snap)
	}
}

func (e *Engine) notify(l listener, s GameState) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("state listener panicked", zap.Int("listener", l.id), zap.Any("panic", r))
		}
	}()
	l.fn(s.Clone())
}

// DecodeGameState parses a JSON snapshot.
func DecodeGameState(data []byte) (GameState, error) {
	var s GameState
	if err := json.Unmarshal(data, &s); err != nil {
		return GameState{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if s.ID == "" {
		return GameState{}, fmt.Errorf("%w: missing id", ErrInvalidSnapshot)
	}
	return normalize(s), nil
}

// GameStateFromPayload converts the decoded "game_state" field of a
// GAME_STATE_UPDATE event.
func GameStateFromPayload(v any) (GameState, error) {
	if v == nil {
		return GameState{}, fmt.Errorf("%w: empty payload", ErrInvalidSnapshot)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return GameState{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return DecodeGameState(raw)
}

func normalize(s GameState) GameState {
	if s.Players == nil {
		s.Players = map[string]*Player{}
	}
	if s.ChatMessages == nil {
		s.ChatMessages = []ChatMessage{}
	}
	if s.NightActions == nil {
		s.NightActions = map[string]*SubmittedNightAction{}
	}
	if s.Settings == (GameSettings{}) {
		s.Settings = DefaultSettings()
	}
	for id, p := range s.Players {
		if p == nil {
			delete(s.Players, id)
			continue
		}
		if p.ID == "" {
			p.ID = id
		}
	}
	return s
}

const defaultDedupeWindow = 4096

// recentIDs remembers the last len(ring) ids added.
type recentIDs struct {
	seen map[string]struct{}
	ring []string
	next int
}

func newRecentIDs(size int) *recentIDs {
	return &recentIDs{seen: make(map[string]struct{}, size), ring: make([]string, size)}
}

func (r *recentIDs) has(id string) bool {
	_, ok := r.seen[id]
	return ok
}

func (r *recentIDs) add(id string) {
	if old := r.ring[r.next]; old != "" {
		delete(r.seen, old)
	}
	r.ring[r.next] = id
	r.next = (r.next + 1) % len(r.ring)
	r.seen[id] = struct{}{}
}

func (r *recentIDs) size() int { return len(r.seen) }
