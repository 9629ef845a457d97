// Package identity derives and persists the stable session identifier, the
// campaign attribution map, and the best-effort geo snapshot for one visitor
// profile.
package identity

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meunomeok/leadtrack/internal/config"
	"github.com/meunomeok/leadtrack/internal/model"
	"github.com/meunomeok/leadtrack/internal/storage"
)

// Position is an asynchronous geo fix.
type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// GeoProvider resolves a position for the current visitor. Implementations
// are best-effort telemetry; a nil provider disables enrichment.
type GeoProvider interface {
	Locate(ctx context.Context) (Position, error)
}

// Options configures a Resolver.
type Options struct {
	SessionTTL     time.Duration
	AttributionTTL time.Duration
	Language       string
	Timezone       string
	Provider       GeoProvider
	// Cache, when shared across resolvers, lets a fix fetched during one
	// request enrich events dispatched in later requests for the same
	// profile. Nil gets a private cache.
	Cache *GeoCache
}

// GeoCache holds the geo snapshot independently of any one resolver's
// lifetime. The position is fetched at most once per cache.
type GeoCache struct {
	mu      sync.RWMutex
	snap    *model.GeoSnapshot
	started bool
}

// NewGeoCache creates an empty cache.
func NewGeoCache() *GeoCache {
	return &GeoCache{}
}

func (c *GeoCache) snapshot() *model.GeoSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return nil
	}
	s := *c.snap
	return &s
}

// Resolver reads and writes identity state through the tiered store.
type Resolver struct {
	store *storage.Tiered
	opts  Options
}

// NewResolver creates a resolver over the given tiered store.
func NewResolver(store *storage.Tiered, opts Options) *Resolver {
	if opts.Cache == nil {
		opts.Cache = NewGeoCache()
	}
	return &Resolver{store: store, opts: opts}
}

// EnsureSessionID returns the profile's session id, creating and persisting
// one on first resolution. Idempotent: the id never changes once any tier
// holds it.
func (r *Resolver) EnsureSessionID(ctx context.Context) string {
	if id := r.store.Get(ctx, config.KeySessionID); id != "" {
		return id
	}
	id := uuid.NewString()
	r.store.Set(ctx, config.KeySessionID, id, r.opts.SessionTTL)
	zap.L().Debug("identity: new session", zap.String("session_id", id))
	return id
}

// CaptureAttribution resolves the attribution map for this page load. When
// the query carries any recognized parameter, that set replaces the stored
// map (a new explicit campaign touch wins); otherwise the stored map is
// replayed, and an empty map means no touch was ever recorded.
func (r *Resolver) CaptureAttribution(ctx context.Context, query url.Values) model.AttributionMap {
	collected := model.AttributionMap{}
	for _, key := range config.UTMKeys {
		if v := query.Get(key); v != "" {
			collected[key] = v
		}
	}

	if len(collected) == 0 {
		return r.storedAttribution(ctx)
	}

	data, err := json.Marshal(collected)
	if err != nil {
		zap.L().Warn("identity: marshal attribution", zap.Error(err))
		return collected
	}
	r.store.Set(ctx, config.KeyUTM, string(data), r.opts.AttributionTTL)
	return collected
}

func (r *Resolver) storedAttribution(ctx context.Context) model.AttributionMap {
	raw := r.store.Get(ctx, config.KeyUTM)
	if raw == "" {
		return model.AttributionMap{}
	}
	var m model.AttributionMap
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return model.AttributionMap{}
	}
	return m
}

const locateTimeout = 10 * time.Second

// CollectGeo resolves the synchronous part of the geo snapshot and kicks off
// asynchronous enrichment when a provider is available. Events dispatched
// before the fix arrives carry the unenriched snapshot; the fetch runs at
// most once per cache and outlives the calling scope, so short-lived callers
// still benefit later.
func (r *Resolver) CollectGeo(ctx context.Context) {
	c := r.opts.Cache
	c.mu.Lock()
	if c.snap == nil {
		c.snap = &model.GeoSnapshot{
			Language: r.opts.Language,
			Timezone: r.opts.Timezone,
		}
	}
	if r.opts.Provider == nil || c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	base := *c.snap
	c.mu.Unlock()

	go func() {
		// Detached from the caller's cancellation: the request that
		// triggered the fetch is usually gone before the fix arrives.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), locateTimeout)
		defer cancel()
		pos, err := r.opts.Provider.Locate(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		enriched := base
		if err != nil {
			enriched.Error = err.Error()
		} else {
			enriched.Latitude = pos.Latitude
			enriched.Longitude = pos.Longitude
			enriched.Accuracy = pos.Accuracy
		}
		c.snap = &enriched
	}()
}

// Geo returns a copy of the current snapshot, or nil before CollectGeo.
func (r *Resolver) Geo() *model.GeoSnapshot {
	return r.opts.Cache.snapshot()
}
