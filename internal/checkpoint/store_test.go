package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	bolt, err := OpenBolt(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		BackendMemory: NewMemoryStore(),
		BackendBolt:   bolt,
	}
	if dsn := os.Getenv("ALIGNMENT_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := OpenPostgres(ctx, dsn)
		require.NoError(t, err)
		stores[BackendPostgres] = pg
	}
	if addr := os.Getenv("ALIGNMENT_TEST_REDIS_ADDR"); addr != "" {
		rs, err := OpenRedis(ctx, addr)
		require.NoError(t, err)
		stores[BackendRedis] = rs
	}
	for _, s := range stores {
		t.Cleanup(func() { _ = s.Close() })
	}
	return stores
}

func TestStoreContract(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			game := "contract-" + t.Name()

			_, err := store.Get(ctx, game)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Set(ctx, game, "e1"))
			require.NoError(t, store.Set(ctx, game, "e2"))
			got, err := store.Get(ctx, game)
			require.NoError(t, err)
			assert.Equal(t, "e2", got)

			_, err = store.Get(ctx, game+"-other")
			assert.ErrorIs(t, err, ErrNotFound, "checkpoints are keyed per game")

			assert.Error(t, store.Set(ctx, " ", "e3"))
		})
	}
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	ctx := context.Background()

	s, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "g1", "e42"))
	require.NoError(t, s.Close())

	s, err = OpenBolt(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "e42", got)
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemoryStore()
	assert.ErrorIs(t, s.Set(ctx, "g1", "e1"), context.Canceled)
	_, err := s.Get(ctx, "g1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, Config{Backend: "BOLT", Path: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Backend: "etcd"})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = Open(ctx, Config{Backend: BackendBolt})
	assert.Error(t, err, "bolt needs a path")
}
