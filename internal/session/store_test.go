package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// recvUpdate waits for one update so tests never hang.
func recvUpdate(t *testing.T, ch <-chan Update, within time.Duration) Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		if !ok {
			t.Fatalf("subscriber outbox closed unexpectedly")
		}
		return u
	case <-time.After(within):
		t.Fatalf("timed out waiting for update")
		return Update{}
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(context.Background(), Initial(), zaptest.NewLogger(t))
	t.Cleanup(s.Close)
	return s
}

func TestStore_JoinGetsCurrentSnapshotThenChanges(t *testing.T) {
	s := newTestStore(t)
	out := make(chan Update, 4)
	s.Inbox() <- Join{SubscriberID: "ui", Outbox: out}

	first := recvUpdate(t, out, 100*time.Millisecond)
	assert.Equal(t, 0, first.Version)
	assert.Equal(t, Idle, first.Snapshot.State)

	snap, err := s.Dispatch(context.Background(), Action{Type: ActionJoinLobby, Identity: id})
	require.NoError(t, err)
	assert.Equal(t, InLobby, snap.State)

	next := recvUpdate(t, out, 100*time.Millisecond)
	assert.Equal(t, 1, next.Version)
	assert.Equal(t, InLobby, next.Snapshot.State)
}

func TestStore_IllegalActionIsNotBroadcast(t *testing.T) {
	s := newTestStore(t)
	out := make(chan Update, 4)
	s.Inbox() <- Join{SubscriberID: "ui", Outbox: out}
	recvUpdate(t, out, 100*time.Millisecond)

	_, err := s.Dispatch(context.Background(), Action{Type: ActionGameOver})
	assert.ErrorIs(t, err, ErrIllegalTransition)

	v, err := s.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, v.Version)
	select {
	case u := <-out:
		t.Fatalf("expected no update, got %+v", u)
	default:
	}
}

func TestStore_DispatchesAreSerialized(t *testing.T) {
	s := newTestStore(t)
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			_, _ = s.Dispatch(context.Background(), Action{Type: ActionSetConnectionError, Message: "x"})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}

	v, err := s.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, v.Version)
}

func TestStore_DropSlowSubscriber(t *testing.T) {
	s := newTestStore(t)
	out := make(chan Update, 1)
	s.Inbox() <- Join{SubscriberID: "slow", Outbox: out}

	_, err := s.Dispatch(context.Background(), Action{Type: ActionCountdownStart, Seconds: 5})
	require.NoError(t, err)

	v, err := s.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, v.NumSubscribers)
}

func TestStore_RejoinReplacesOutbox(t *testing.T) {
	cases := []struct {
		name      string
		sameChan  bool
		oldClosed bool
	}{
		{name: "new outbox closes the old one", oldClosed: true},
		{name: "same outbox stays open", sameChan: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t)
			old := make(chan Update, 4)
			s.Inbox() <- Join{SubscriberID: "ui", Outbox: old}
			recvUpdate(t, old, 100*time.Millisecond)

			replacement := old
			if !tc.sameChan {
				replacement = make(chan Update, 4)
			}
			s.Inbox() <- Join{SubscriberID: "ui", Outbox: replacement}
			recvUpdate(t, replacement, 100*time.Millisecond)

			if tc.oldClosed {
				_, open := <-old
				assert.False(t, open, "the replaced outbox is released")
			}

			v, err := s.State(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, v.NumSubscribers)

			_, err = s.Dispatch(context.Background(), Action{Type: ActionCountdownStart, Seconds: 5})
			require.NoError(t, err)
			assert.Equal(t, v.Version+1, recvUpdate(t, replacement, 100*time.Millisecond).Version)
		})
	}
}

func TestStore_LeaveAndClose(t *testing.T) {
	s := NewStore(context.Background(), Initial(), nil)
	a := make(chan Update, 4)
	b := make(chan Update, 4)
	s.Inbox() <- Join{SubscriberID: "a", Outbox: a}
	s.Inbox() <- Join{SubscriberID: "b", Outbox: b}
	recvUpdate(t, a, 100*time.Millisecond)
	recvUpdate(t, b, 100*time.Millisecond)

	s.Inbox() <- Leave{SubscriberID: "a"}
	_, open := <-a
	assert.False(t, open)

	s.Close()
	_, open = <-b
	assert.False(t, open, "close releases every subscriber")

	_, err := s.Dispatch(context.Background(), Action{Type: ActionLogin})
	assert.ErrorIs(t, err, ErrClosed)
}
