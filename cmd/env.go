package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meunomeok/leadtrack/internal/dispatch"
	"github.com/meunomeok/leadtrack/internal/identity"
	"github.com/meunomeok/leadtrack/internal/storage"
	"github.com/meunomeok/leadtrack/internal/tracker"
	"github.com/meunomeok/leadtrack/pkg/crm"
	"github.com/meunomeok/leadtrack/pkg/geoip"
	"github.com/meunomeok/leadtrack/pkg/ingest"
	"github.com/meunomeok/leadtrack/pkg/pixel"
	"github.com/meunomeok/leadtrack/pkg/whatsapp"
)

// localProfile scopes durable state for CLI invocations. serve mode scopes
// by the visitor's profile cookie instead.
const localProfile = "local"

// env is the fully wired capture pipeline for CLI commands.
type env struct {
	durable    storage.DurableStore
	jar        *storage.FileJar
	store      *storage.Tiered
	resolver   *identity.Resolver
	dispatcher *dispatch.Dispatcher
	tracker    *tracker.Tracker
	checker    whatsapp.Checker
}

func (e *env) Close() {
	if e.durable != nil {
		if err := e.durable.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

func initDurable(ctx context.Context) (storage.DurableStore, error) {
	var (
		durable storage.DurableStore
		err     error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		durable, err = storage.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		durable, err = storage.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "none":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := durable.Migrate(ctx); err != nil {
		durable.Close()
		return nil, err
	}
	return durable, nil
}

func initChecker() whatsapp.Checker {
	return whatsapp.NewClient(cfg.WhatsApp.APIURL, cfg.WhatsApp.APIKey,
		whatsapp.WithCountryCode(cfg.Phone.CountryCode))
}

func initCRM() (crm.Sink, error) {
	if cfg.CRM.ClientID == "" {
		return crm.NopSink{}, nil
	}
	pem, err := os.ReadFile(cfg.CRM.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}
	return crm.NewSalesforce(crm.Creds{
		LoginURL: cfg.CRM.LoginURL,
		Username: cfg.CRM.Username,
		ClientID: cfg.CRM.ClientID,
		KeyPEM:   string(pem),
	})
}

func initIngest() ingest.Client {
	if cfg.Backend.URL == "" {
		return nil
	}
	return ingest.NewClient(cfg.Backend.URL, cfg.Backend.APIKey)
}

func initGeo() identity.GeoProvider {
	if cfg.GeoIP.BaseURL == "" {
		return nil
	}
	return geoip.NewClient(cfg.GeoIP.BaseURL)
}

func retention(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

// initEnv wires the pipeline for a single local profile: durable store per
// config, a file-backed cookie jar, and a fresh in-memory session tier.
func initEnv(ctx context.Context) (*env, error) {
	durable, err := initDurable(ctx)
	if err != nil {
		return nil, err
	}

	jar, err := storage.NewFileJar(cfg.Store.CookieJar)
	if err != nil {
		zap.L().Warn("cookie jar unavailable", zap.Error(err))
	}

	var cookieTier storage.Tier
	if jar != nil {
		cookieTier = storage.NewCookie(jar)
	}
	var durableTier storage.Tier
	if durable != nil {
		durableTier = durable.Tier(localProfile)
	}
	store := storage.NewTiered(durableTier, cookieTier, storage.NewMemory())

	resolver := identity.NewResolver(store, identity.Options{
		SessionTTL:     retention(cfg.Retention.SessionDays),
		AttributionTTL: retention(cfg.Retention.AttributionDays),
		Language:       cfg.GeoIP.Language,
		Timezone:       cfg.GeoIP.Timezone,
		Provider:       initGeo(),
	})

	sink, err := initCRM()
	if err != nil {
		if durable != nil {
			durable.Close()
		}
		return nil, err
	}

	var jarForClickIDs storage.Jar
	if jar != nil {
		jarForClickIDs = jar
	}
	dispatcher := dispatch.New(dispatch.Options{
		Store:    store,
		Resolver: resolver,
		CRM:      sink,
		Pixel:    pixel.New(cfg.Pixel.PixelID, cfg.Pixel.AccessToken, pixel.WithBaseURL(cfg.Pixel.BaseURL)),
		Ingest:   initIngest(),
		PixelID:  cfg.Pixel.PixelID,
		Jar:      jarForClickIDs,
	})

	checker := initChecker()
	return &env{
		durable:    durable,
		jar:        jar,
		store:      store,
		resolver:   resolver,
		dispatcher: dispatcher,
		checker:    checker,
		tracker: tracker.New(tracker.Options{
			Store:       store,
			Resolver:    resolver,
			Dispatcher:  dispatcher,
			SnapshotTTL: retention(cfg.Retention.SnapshotDays),
		}),
	}, nil
}
