package session

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var ErrClosed = errors.New("session store closed")

type Msg interface{ isSessionMsg() }

// Apply runs Reduce on the current snapshot and answers on Reply.
type Apply struct {
	Action Action
	Reply  chan Result
}

func (Apply) isSessionMsg() {}

type Join struct {
	SubscriberID string
	Outbox       chan Update // receives the current snapshot right away, then every change
}

func (Join) isSessionMsg() {}

type Leave struct{ SubscriberID string }

func (Leave) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type Result struct {
	Version  int
	Snapshot Snapshot
	Err      error
}

type Update struct {
	Version  int
	Snapshot Snapshot
}

type View struct {
	Version        int
	NumSubscribers int
	Snapshot       Snapshot
}

// Store owns one session snapshot. Every change goes through its inbox, so
// dispatches are applied one at a time in arrival order.
type Store struct {
	inbox   chan Msg
	snap    Snapshot
	version int
	subs    map[string]chan Update
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	log     *zap.Logger
}

func NewStore(parent context.Context, initial Snapshot, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Store{
		inbox:  make(chan Msg, 64),
		snap:   initial,
		subs:   make(map[string]chan Update),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    log,
	}
	go s.loop()
	return s
}

func (s *Store) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the store has stopped and closed every outbox.
func (s *Store) Done() <-chan struct{} { return s.done }

func (s *Store) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Apply:
				next, err := Reduce(s.snap, msg.Action)
				if err != nil {
					s.log.Debug("session action rejected", zap.String("action", string(msg.Action.Type)), zap.Error(err))
					msg.Reply <- Result{Version: s.version, Snapshot: s.snap, Err: err}
					break
				}
				if next.State != s.snap.State {
					s.log.Info("session state changed",
						zap.String("from", string(s.snap.State)),
						zap.String("to", string(next.State)),
						zap.String("action", string(msg.Action.Type)))
				}
				s.snap = next
				s.version++
				msg.Reply <- Result{Version: s.version, Snapshot: s.snap}
				s.broadcast(Update{Version: s.version, Snapshot: s.snap})

			case Join:
				if old, ok := s.subs[msg.SubscriberID]; ok && old != msg.Outbox {
					close(old)
				}
				s.subs[msg.SubscriberID] = msg.Outbox
				select {
				case msg.Outbox <- Update{Version: s.version, Snapshot: s.snap}:
				default:
					close(msg.Outbox)
					delete(s.subs, msg.SubscriberID)
				}

			case Leave:
				if ch, ok := s.subs[msg.SubscriberID]; ok {
					close(ch)
					delete(s.subs, msg.SubscriberID)
				}

			case GetState:
				msg.Reply <- View{Version: s.version, NumSubscribers: len(s.subs), Snapshot: s.snap}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Store) shutdown() {
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.cancel()
}

// broadcast drops any subscriber whose outbox is full.
func (s *Store) broadcast(u Update) {
	for id, ch := range s.subs {
		select {
		case ch <- u:
		default:
			s.log.Warn("dropping slow session subscriber", zap.String("subscriber", id))
			close(ch)
			delete(s.subs, id)
		}
	}
}

func (s *Store) send(ctx context.Context, m Msg) error {
	select {
	case s.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// Dispatch applies a and returns the resulting snapshot.
func (s *Store) Dispatch(ctx context.Context, a Action) (Snapshot, error) {
	reply := make(chan Result, 1)
	if err := s.send(ctx, Apply{Action: a, Reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case r := <-reply:
		return r.Snapshot, r.Err
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-s.done:
		return Snapshot{}, ErrClosed
	}
}

func (s *Store) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := s.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-s.done:
		return View{}, ErrClosed
	}
}

// Subscribe joins out under id. out first receives the current snapshot,
// then every change, and is closed on Unsubscribe, on Close, or when it
// falls behind.
func (s *Store) Subscribe(ctx context.Context, id string, out chan Update) error {
	return s.send(ctx, Join{SubscriberID: id, Outbox: out})
}

func (s *Store) Unsubscribe(ctx context.Context, id string) error {
	return s.send(ctx, Leave{SubscriberID: id})
}

// Close stops the store and waits for it to release its subscribers.
func (s *Store) Close() {
	s.cancel()
	<-s.done
}
