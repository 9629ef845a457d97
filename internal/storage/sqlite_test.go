package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteTier_SetGet(t *testing.T) {
	s := newTestSQLite(t)
	tier := s.Tier("profile-a")

	require.NoError(t, tier.Set(context.Background(), "k", "v", 0))
	got, err := tier.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestSQLiteTier_MissingKey(t *testing.T) {
	s := newTestSQLite(t)
	got, err := s.Tier("profile-a").Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestSQLiteTier_Upsert(t *testing.T) {
	s := newTestSQLite(t)
	tier := s.Tier("profile-a")

	require.NoError(t, tier.Set(context.Background(), "k", "first", 0))
	require.NoError(t, tier.Set(context.Background(), "k", "second", 0))

	got, err := tier.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestSQLiteTier_ProfileIsolation(t *testing.T) {
	s := newTestSQLite(t)

	require.NoError(t, s.Tier("profile-a").Set(context.Background(), "k", "a", 0))
	require.NoError(t, s.Tier("profile-b").Set(context.Background(), "k", "b", 0))

	gotA, err := s.Tier("profile-a").Get(context.Background(), "k")
	require.NoError(t, err)
	gotB, err := s.Tier("profile-b").Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "a", gotA)
	assert.Equal(t, "b", gotB)
}

func TestSQLiteTier_ExpiredKeyIsGone(t *testing.T) {
	s := newTestSQLite(t)
	tier := s.Tier("profile-a")

	require.NoError(t, tier.Set(context.Background(), "k", "v", -time.Minute))
	got, err := tier.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	purged, err := s.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
}

func TestSQLiteTier_Delete(t *testing.T) {
	s := newTestSQLite(t)
	tier := s.Tier("profile-a")

	require.NoError(t, tier.Set(context.Background(), "k", "v", 0))
	require.NoError(t, tier.Delete(context.Background(), "k"))

	got, err := tier.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}
