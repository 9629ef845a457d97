package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTier records operations and can be forced to fail.
type fakeTier struct {
	values map[string]string
	sets   int
	fail   bool
}

func newFakeTier() *fakeTier {
	return &fakeTier{values: make(map[string]string)}
}

func (f *fakeTier) Get(_ context.Context, key string) (string, error) {
	if f.fail {
		return "", errors.New("tier unavailable")
	}
	return f.values[key], nil
}

func (f *fakeTier) Set(_ context.Context, key, value string, _ time.Duration) error {
	if f.fail {
		return errors.New("tier unavailable")
	}
	f.sets++
	f.values[key] = value
	return nil
}

func (f *fakeTier) Delete(_ context.Context, key string) error {
	if f.fail {
		return errors.New("tier unavailable")
	}
	delete(f.values, key)
	return nil
}

func TestTiered_ReadPrecedence(t *testing.T) {
	t.Parallel()

	durable, cookie, memory := newFakeTier(), newFakeTier(), newFakeTier()
	durable.values["k"] = "from-durable"
	cookie.values["k"] = "from-cookie"
	memory.values["k"] = "from-memory"

	ts := NewTiered(durable, cookie, memory)
	assert.Equal(t, "from-durable", ts.Get(context.Background(), "k"))
}

func TestTiered_CookieHitBackfillsDurable(t *testing.T) {
	t.Parallel()

	durable, cookie, memory := newFakeTier(), newFakeTier(), newFakeTier()
	cookie.values["k"] = "v"

	ts := NewTiered(durable, cookie, memory)
	require.Equal(t, "v", ts.Get(context.Background(), "k"))

	assert.Equal(t, "v", durable.values["k"])
	assert.Empty(t, memory.values["k"])
}

func TestTiered_MemoryHitBackfillsDurableAndCookie(t *testing.T) {
	t.Parallel()

	durable, cookie, memory := newFakeTier(), newFakeTier(), newFakeTier()
	memory.values["k"] = "v"

	ts := NewTiered(durable, cookie, memory)
	require.Equal(t, "v", ts.Get(context.Background(), "k"))

	assert.Equal(t, "v", durable.values["k"])
	assert.Equal(t, "v", cookie.values["k"])
}

func TestTiered_SetWritesAllTiers(t *testing.T) {
	t.Parallel()

	durable, cookie, memory := newFakeTier(), newFakeTier(), newFakeTier()
	ts := NewTiered(durable, cookie, memory)
	ts.Set(context.Background(), "k", "v", time.Hour)

	assert.Equal(t, "v", durable.values["k"])
	assert.Equal(t, "v", cookie.values["k"])
	assert.Equal(t, "v", memory.values["k"])
}

func TestTiered_FailingTierIsSkipped(t *testing.T) {
	t.Parallel()

	durable, cookie, memory := newFakeTier(), newFakeTier(), newFakeTier()
	durable.fail = true

	ts := NewTiered(durable, cookie, memory)
	ts.Set(context.Background(), "k", "v", 0)

	// Write landed on the healthy tiers.
	assert.Equal(t, "v", cookie.values["k"])
	assert.Equal(t, "v", memory.values["k"])

	// Read skips the broken tier and still finds the value.
	assert.Equal(t, "v", ts.Get(context.Background(), "k"))
}

func TestTiered_AllTiersFailing(t *testing.T) {
	t.Parallel()

	durable, cookie, memory := newFakeTier(), newFakeTier(), newFakeTier()
	durable.fail, cookie.fail, memory.fail = true, true, true

	ts := NewTiered(durable, cookie, memory)
	ts.Set(context.Background(), "k", "v", 0)
	assert.Equal(t, "", ts.Get(context.Background(), "k"))
}

func TestTiered_NilTiers(t *testing.T) {
	t.Parallel()

	memory := newFakeTier()
	ts := NewTiered(nil, nil, memory)
	ts.Set(context.Background(), "k", "v", 0)
	assert.Equal(t, "v", ts.Get(context.Background(), "k"))
}

func TestTiered_MissEverywhere(t *testing.T) {
	t.Parallel()

	ts := NewTiered(newFakeTier(), newFakeTier(), newFakeTier())
	assert.Equal(t, "", ts.Get(context.Background(), "absent"))
}
