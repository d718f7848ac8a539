package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/alignment-sync/internal/checkpoint"
	"github.com/DoyleJ11/alignment-sync/internal/client"
	"github.com/DoyleJ11/alignment-sync/internal/session"
)

func newClient(t *testing.T) *client.Client {
	t.Helper()
	c, err := client.New(context.Background(), client.Config{ServerURL: "ws://127.0.0.1:1"},
		client.WithCheckpointStore(checkpoint.NewMemoryStore()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestHub_RegisterGetSamePointer(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = h.Shutdown(ctx) })

	c := newClient(t)
	require.NoError(t, h.Register(ctx, "g1", c))

	got, err := h.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Same(t, c, got)

	missing, err := h.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHub_RegisterTwiceFails(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, nil)
	t.Cleanup(func() { _ = h.Shutdown(ctx) })

	require.NoError(t, h.Register(ctx, "g1", newClient(t)))
	assert.ErrorIs(t, h.Register(ctx, "g1", newClient(t)), ErrExists)
}

func TestHub_ListIsSorted(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, nil)
	t.Cleanup(func() { _ = h.Shutdown(ctx) })

	for _, id := range []string{"g3", "g1", "g2"} {
		require.NoError(t, h.Register(ctx, id, newClient(t)))
	}
	ids, err := h.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2", "g3"}, ids)
}

func TestHub_RemoveClosesClient(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, nil)
	t.Cleanup(func() { _ = h.Shutdown(ctx) })

	c := newClient(t)
	require.NoError(t, h.Register(ctx, "g1", c))
	require.NoError(t, h.Remove(ctx, "g1"))
	require.NoError(t, h.Remove(ctx, "g1"), "removing twice is harmless")

	got, err := h.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = c.Dispatch(ctx, session.Action{Type: session.ActionLogin})
	assert.ErrorIs(t, err, session.ErrClosed)
}

func TestHub_ShutdownClosesEverything(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, nil)
	a, b := newClient(t), newClient(t)
	require.NoError(t, h.Register(ctx, "a", a))
	require.NoError(t, h.Register(ctx, "b", b))

	require.NoError(t, h.Shutdown(ctx))
	for _, c := range []*client.Client{a, b} {
		_, err := c.Dispatch(ctx, session.Action{Type: session.ActionLogin})
		assert.ErrorIs(t, err, session.ErrClosed)
	}

	_, err := h.List(ctx)
	assert.ErrorIs(t, err, ErrStopped)
	assert.NoError(t, h.Shutdown(ctx), "a second shutdown is a no-op")
}
