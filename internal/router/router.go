// Package router fans inbound server events out to the game engine and to
// typed listeners, and records the durable checkpoint once an event has been
// fully processed.
package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/alignment-sync/internal/checkpoint"
	"github.com/DoyleJ11/alignment-sync/internal/engine"
	"github.com/DoyleJ11/alignment-sync/pkg/protocol"
)

// Engine is the part of *engine.Engine the router drives.
type Engine interface {
	CreateGame(gameID string) error
	ApplyEvent(ev engine.Event) error
	ResetAndLoadState(s engine.GameState) error
}

// Sender is the outbound half of the transport.
type Sender interface {
	SendAction(ctx context.Context, a protocol.Action)
}

type Handler func(protocol.Event)

// Subscription identifies one registered handler for Off.
type Subscription struct {
	eventType protocol.EventType
	wildcard  bool
	id        int
}

type entry struct {
	id int
	fn Handler
}

type Option func(*Router)

func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

func WithCheckpoints(s checkpoint.Store) Option {
	return func(r *Router) { r.store = s }
}

func WithSender(s Sender) Option {
	return func(r *Router) { r.sender = s }
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// WithResyncTimeout bounds how long a game waits for SYNC_COMPLETE after a
// RECONNECT. Zero waits forever.
func WithResyncTimeout(d time.Duration) Option {
	return func(r *Router) { r.resyncTimeout = d }
}

type Router struct {
	engine Engine
	store  checkpoint.Store
	sender Sender
	log    *zap.Logger
	now    func() time.Time

	// dispatchMu makes each Dispatch, checkpoint write included, atomic
	// with respect to the next one.
	dispatchMu    sync.Mutex
	resync        map[string]*resyncState
	resyncTimeout time.Duration

	handlersMu sync.RWMutex
	handlers   map[protocol.EventType][]entry
	wildcard   []entry
	nextID     int
}

func New(eng Engine, opts ...Option) *Router {
	r := &Router{
		engine:        eng,
		log:           zap.NewNop(),
		now:           time.Now,
		resync:        map[string]*resyncState{},
		resyncTimeout: defaultResyncTimeout,
		handlers:      map[protocol.EventType][]entry{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// On registers fn for events of type t. Handlers for one type run in
// registration order.
func (r *Router) On(t protocol.EventType, fn Handler) Subscription {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	r.nextID++
	r.handlers[t] = append(r.handlers[t], entry{id: r.nextID, fn: fn})
	return Subscription{eventType: t, id: r.nextID}
}

// OnAny registers fn for every event. Wildcard handlers run after the
// type-specific ones.
func (r *Router) OnAny(fn Handler) Subscription {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	r.nextID++
	r.wildcard = append(r.wildcard, entry{id: r.nextID, fn: fn})
	return Subscription{wildcard: true, id: r.nextID}
}

// Off removes a handler. Removing one that is not registered does nothing.
func (r *Router) Off(sub Subscription) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	if sub.wildcard {
		r.wildcard = without(r.wildcard, sub.id)
		return
	}
	list := without(r.handlers[sub.eventType], sub.id)
	if len(list) == 0 {
		delete(r.handlers, sub.eventType)
		return
	}
	r.handlers[sub.eventType] = list
}

func without(list []entry, id int) []entry {
	for i, e := range list {
		if e.id == id {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// SendAction forwards a to the transport, if one is attached.
func (r *Router) SendAction(ctx context.Context, a protocol.Action) {
	if r.sender == nil {
		r.log.Warn("no sender attached, dropping action", zap.String("action", string(a.Type)))
		return
	}
	r.sender.SendAction(ctx, a)
}

// Dispatch processes one inbound event: fold it into the engine when its
// kind calls for that, deliver it to handlers, then advance the checkpoint.
// The checkpoint only moves when the engine accepted the event.
func (r *Router) Dispatch(ctx context.Context, ev protocol.Event) {
	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()

	advance := r.reduce(ev)
	r.deliver(ev)

	if !advance || r.store == nil || ev.ID == "" || ev.GameID == "" {
		return
	}
	if err := r.store.Set(ctx, ev.GameID, ev.ID); err != nil {
		r.log.Warn("checkpoint not saved", zap.String("game_id", ev.GameID), zap.String("event_id", ev.ID), zap.Error(err))
	}
}

// reduce reports whether the event was processed to the point where the
// checkpoint may move past it.
func (r *Router) reduce(ev protocol.Event) bool {
	switch protocol.KindOf(ev.Type) {
	case protocol.KindFold:
		if !r.admitTail(ev) {
			r.log.Debug("skipping replayed event covered by snapshot", zap.String("event_id", ev.ID), zap.String("type", string(ev.Type)))
			return false
		}
		return r.fold(ev) == nil

	case protocol.KindSnapshot:
		return r.loadSnapshot(ev)

	default:
		if ev.Type == protocol.EventSyncComplete {
			r.endResync(ev.GameID)
		}
		return true
	}
}

// fold applies ev, creating the game and retrying exactly once when the
// engine has no state for it.
func (r *Router) fold(ev protocol.Event) error {
	err := r.engine.ApplyEvent(ev)
	if errors.Is(err, engine.ErrNoGameState) {
		if cerr := r.engine.CreateGame(ev.GameID); cerr != nil {
			r.log.Error("create game for event failed", zap.String("game_id", ev.GameID), zap.Error(cerr))
			return cerr
		}
		err = r.engine.ApplyEvent(ev)
	}
	if err != nil {
		r.log.Error("event not folded",
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.String("game_id", ev.GameID),
			zap.Error(err))
	}
	return err
}

func (r *Router) loadSnapshot(ev protocol.Event) bool {
	st, err := engine.GameStateFromPayload(ev.Payload["game_state"])
	if err != nil {
		r.log.Error("bad game state snapshot", zap.String("event_id", ev.ID), zap.Error(err))
		return false
	}
	gameID := ev.GameID
	if gameID == "" {
		gameID = st.ID
	}
	asOf := st.UpdatedAt
	if asOf.IsZero() {
		asOf = ev.Timestamp
	}
	if !r.admitSnapshot(gameID, asOf) {
		r.log.Info("ignoring snapshot older than replayed events", zap.String("game_id", gameID), zap.Time("as_of", asOf))
		return false
	}
	if err := r.engine.ResetAndLoadState(st); err != nil {
		r.log.Error("load snapshot failed", zap.String("game_id", gameID), zap.Error(err))
		return false
	}
	return true
}

func (r *Router) deliver(ev protocol.Event) {
	r.handlersMu.RLock()
	typed := append([]entry(nil), r.handlers[ev.Type]...)
	wild := append([]entry(nil), r.wildcard...)
	r.handlersMu.RUnlock()

	for _, e := range typed {
		r.call(e, ev)
	}
	for _, e := range wild {
		r.call(e, ev)
	}
}

func (r *Router) call(e entry, ev protocol.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("event handler panicked",
				zap.Int("handler", e.id),
				zap.String("type", string(ev.Type)),
				zap.Any("panic", rec))
		}
	}()
	e.fn(ev)
}
