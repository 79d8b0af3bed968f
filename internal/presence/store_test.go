package presence

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-board/internal/storage"
)

func newBackend(t *testing.T) storage.Backend {
	t.Helper()
	mr := miniredis.RunT(t)
	b := storage.NewRedisBackend(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	t.Cleanup(func() { b.Close() })
	return b
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStore_AddIsUpsertByName(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, newBackend(t).Namespace("presence/b1"), discard())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Add(ctx, UserState{ID: "2026-10-17T10:00:00.000Z", Name: "alice", Online: true})
	require.NoError(t, err)
	_, err = s.Add(ctx, UserState{ID: "2026-10-17T10:00:01.000Z", Name: "bob", Online: true})
	require.NoError(t, err)
	stored, err := s.Add(ctx, UserState{ID: "2026-10-17T10:00:02.000Z", Name: "alice", Online: false})
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Name)

	users, err := s.Latest(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Name, "most recently touched first")
	assert.False(t, users[0].Online)
	assert.Equal(t, "bob", users[1].Name)
}

func TestStore_AddFillsDefaults(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, newBackend(t).Namespace("presence/b2"), discard())
	require.NoError(t, err)
	defer s.Close()

	stored, err := s.Add(ctx, UserState{})
	require.NoError(t, err)
	assert.Equal(t, DefaultName, stored.Name)
	assert.NotEmpty(t, stored.ID)
}

func TestStore_DeleteNeverErrorsOnMissingName(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, newBackend(t).Namespace("presence/b3"), discard())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Add(ctx, UserState{Name: "bob", Online: true})
	require.NoError(t, err)

	existed, err := s.Delete(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Delete(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, existed)

	users, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestStore_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)

	s, err := Open(ctx, backend.Namespace("presence/b4"), discard())
	require.NoError(t, err)
	_, err = s.Add(ctx, UserState{Name: "carol", Online: true})
	require.NoError(t, err)
	s.Close()

	reopened, err := Open(ctx, backend.Namespace("presence/b4"), discard())
	require.NoError(t, err)
	defer reopened.Close()

	users, err := reopened.Latest(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "carol", users[0].Name)
}

func TestRegistry_OneStorePerBoard(t *testing.T) {
	r := NewRegistry(newBackend(t), discard())
	defer r.Close()

	a1, err := r.Get("board-a")
	require.NoError(t, err)
	a2, err := r.Get("board-a")
	require.NoError(t, err)
	b, err := r.Get("board-b")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
}
