package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Tiered reads and writes one logical key across the three backing tiers.
//
// Read precedence is durable, then cookie, then memory. A hit on a
// lower-precedence tier is backfilled into the tiers ahead of it so later
// reads are fast and consistent. Writes go to every available tier. A tier
// that errors is logged and skipped; tier failures never reach the caller.
type Tiered struct {
	durable Tier
	cookie  Tier
	memory  Tier
}

// NewTiered assembles a tiered store. Any tier may be nil and is then
// treated as permanently unavailable.
func NewTiered(durable, cookie, memory Tier) *Tiered {
	return &Tiered{durable: durable, cookie: cookie, memory: memory}
}

// Memory exposes the ephemeral tier directly. The per-session dedup flags
// intentionally live only there so a fresh session starts clean.
func (t *Tiered) Memory() Tier {
	return t.memory
}

// Get returns the first value found in precedence order, or "" when no tier
// holds the key. Every key follows the same durable-first order; there are
// no per-key orderings that would prefer a fresher ephemeral copy over the
// durable one.
func (t *Tiered) Get(ctx context.Context, key string) string {
	if v := t.read(ctx, t.durable, "durable", key); v != "" {
		return v
	}
	if v := t.read(ctx, t.cookie, "cookie", key); v != "" {
		t.write(ctx, t.durable, "durable", key, v, 0)
		return v
	}
	if v := t.read(ctx, t.memory, "memory", key); v != "" {
		t.write(ctx, t.durable, "durable", key, v, 0)
		t.write(ctx, t.cookie, "cookie", key, v, 0)
		return v
	}
	return ""
}

// Set writes the value to every tier that accepts it.
func (t *Tiered) Set(ctx context.Context, key, value string, ttl time.Duration) {
	t.write(ctx, t.durable, "durable", key, value, ttl)
	t.write(ctx, t.cookie, "cookie", key, value, ttl)
	t.write(ctx, t.memory, "memory", key, value, ttl)
}

func (t *Tiered) read(ctx context.Context, tier Tier, name, key string) string {
	if tier == nil {
		return ""
	}
	v, err := tier.Get(ctx, key)
	if err != nil {
		zap.L().Warn("storage: tier read failed",
			zap.String("tier", name),
			zap.String("key", key),
			zap.Error(err),
		)
		return ""
	}
	return v
}

func (t *Tiered) write(ctx context.Context, tier Tier, name, key, value string, ttl time.Duration) {
	if tier == nil {
		return
	}
	if err := tier.Set(ctx, key, value, ttl); err != nil {
		zap.L().Warn("storage: tier write failed",
			zap.String("tier", name),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
