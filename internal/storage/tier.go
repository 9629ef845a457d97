// Package storage implements the tiered key/value persistence layer that
// carries session identity, attribution, and lead snapshots across page
// loads. Three tiers back every key: a durable SQL store, a cookie store,
// and an ephemeral in-process store. Any tier may be missing or broken
// (storage disabled, jar unwritable, database gone); the tiered store reads
// and writes around the failure so attribution continuity degrades instead
// of breaking.
package storage

import (
	"context"
	"time"
)

// Tier is a single key/value backend. Get returns "" with a nil error when
// the key is absent or expired; a non-nil error means the tier itself
// failed. Set with a zero ttl persists without expiry.
type Tier interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// DurableStore hands out profile-scoped durable tiers. A profile identifies
// one browser/visitor; keys from different profiles never collide.
type DurableStore interface {
	Tier(profile string) Tier
	Migrate(ctx context.Context) error
	Close() error
}
