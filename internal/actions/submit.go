package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/alignment-sync/internal/engine"
	"github.com/DoyleJ11/alignment-sync/pkg/protocol"
)

var ErrUnknownAction = errors.New("unknown action type")
var ErrNotConnected = errors.New("not connected")

type Sender interface {
	SendAction(ctx context.Context, a protocol.Action)
}

// Predictor is the optimistic half of *engine.Engine.
type Predictor interface {
	ApplyOptimistic(events ...engine.Event) error
}

type Option func(*Submitter)

func WithLogger(l *zap.Logger) Option {
	return func(s *Submitter) {
		if l != nil {
			s.log = l
		}
	}
}

func WithIDs(fn IDFunc) Option {
	return func(s *Submitter) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Submitter) {
		if now != nil {
			s.now = now
		}
	}
}

// WithConnectedCheck makes Submit refuse intents while connected reports
// false, so nothing is predicted for an action that would be dropped.
func WithConnectedCheck(connected func() bool) Option {
	return func(s *Submitter) { s.connected = connected }
}

// Submitter sends intents to the server and applies their predicted events
// to the engine straight away.
type Submitter struct {
	sender    Sender
	predictor Predictor
	newID     IDFunc
	now       func() time.Time
	connected func() bool
	log       *zap.Logger
}

func NewSubmitter(sender Sender, predictor Predictor, opts ...Option) *Submitter {
	s := &Submitter{
		sender:    sender,
		predictor: predictor,
		newID:     func() string { return "local-" + uuid.NewString() },
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit sends in and returns the events that were predicted for it. A
// prediction the engine rejects is logged and reported; the action has
// already been sent by then.
func (s *Submitter) Submit(ctx context.Context, in Intent) ([]engine.Event, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, in.Type)
	}
	if s.connected != nil && !s.connected() {
		return nil, ErrNotConnected
	}

	s.sender.SendAction(ctx, Wire(in))

	events := Translate(in, s.newID, s.now())
	if len(events) == 0 || s.predictor == nil {
		return events, nil
	}
	if err := s.predictor.ApplyOptimistic(events...); err != nil {
		s.log.Warn("prediction rejected", zap.String("action", string(in.Type)), zap.Error(err))
		return nil, fmt.Errorf("apply prediction: %w", err)
	}
	return events, nil
}
