// Package dispatch assembles the canonical event payload and fans it out to
// the three sinks: CRM, ad-platform pixel, and backend ingestion. The sinks
// have independent failure domains — one sink failing, panicking, or being
// unconfigured never keeps the others from running, and Dispatch always
// returns the assembled payload.
package dispatch

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meunomeok/leadtrack/internal/clickid"
	"github.com/meunomeok/leadtrack/internal/config"
	"github.com/meunomeok/leadtrack/internal/identity"
	"github.com/meunomeok/leadtrack/internal/lead"
	"github.com/meunomeok/leadtrack/internal/model"
	"github.com/meunomeok/leadtrack/internal/storage"
	"github.com/meunomeok/leadtrack/pkg/crm"
	"github.com/meunomeok/leadtrack/pkg/ingest"
	"github.com/meunomeok/leadtrack/pkg/pixel"
)

// Page describes where the tracked interaction happened.
type Page struct {
	Path  string
	URL   string
	Host  string
	Query url.Values
}

// Options wires a Dispatcher.
type Options struct {
	Store    *storage.Tiered
	Resolver *identity.Resolver
	CRM      crm.Sink
	Pixel    pixel.Tracker
	// Ingest may be nil when the backend endpoint is not configured; the
	// backend sink is then skipped.
	Ingest  ingest.Client
	PixelID string
	// Jar supplies the ad-platform click-id cookies; may be nil.
	Jar storage.Jar
	Now func() time.Time
}

// Dispatcher builds and fans out event payloads.
type Dispatcher struct {
	opts Options
}

// New creates a Dispatcher. A nil CRM sink is replaced with the log-only
// default so dispatch never fails for lack of a consumer.
func New(opts Options) *Dispatcher {
	if opts.CRM == nil {
		opts.CRM = crm.NopSink{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{opts: opts}
}

// Dispatch assembles the canonical payload for the event and delivers it to
// every sink. The persisted lead snapshot is merged beneath extra, so caller
// data wins on conflicts. The returned payload is what the sinks saw.
func (d *Dispatcher) Dispatch(ctx context.Context, eventName string, page Page, extra map[string]any) model.EventPayload {
	merged := lead.DecodeSnapshot(d.opts.Store.Get(ctx, config.KeyLeadPayload))
	for k, v := range extra {
		merged[k] = v
	}

	payload := model.EventPayload{
		SessionID: d.opts.Resolver.EnsureSessionID(ctx),
		UTM:       d.opts.Resolver.CaptureAttribution(ctx, page.Query),
		Geo:       d.opts.Resolver.Geo(),
		Path:      page.Path,
		Timestamp: d.opts.Now().UTC().Format(time.RFC3339),
		Extra:     merged,
	}

	var g errgroup.Group
	g.Go(func() error { return d.sendCRM(ctx, eventName, payload) })
	g.Go(func() error { return d.sendPixel(ctx, eventName, payload) })
	g.Go(func() error { return d.sendBackend(ctx, eventName, payload, page) })
	if err := g.Wait(); err != nil {
		zap.L().Error("dispatch: sink failed", zap.String("event", eventName), zap.Error(err))
	}

	return payload
}

func (d *Dispatcher) sendCRM(ctx context.Context, eventName string, payload model.EventPayload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("dispatch: crm sink panic: %v", r)
		}
	}()
	d.opts.CRM.SendEvent(ctx, eventName, payload)
	return nil
}

func (d *Dispatcher) sendPixel(ctx context.Context, eventName string, payload model.EventPayload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("dispatch: pixel sink panic: %v", r)
		}
	}()
	if d.opts.Pixel == nil {
		return nil
	}
	d.opts.Pixel.Track(ctx, eventName, payload.Flatten())
	return nil
}

func (d *Dispatcher) sendBackend(ctx context.Context, eventName string, payload model.EventPayload, page Page) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("dispatch: backend sink panic: %v", r)
		}
	}()

	switch {
	case d.opts.Ingest == nil:
		zap.L().Warn("dispatch: backend not configured, event not sent", zap.String("event", eventName))
		return nil
	case d.opts.PixelID == "":
		zap.L().Warn("dispatch: pixel id not configured, event not sent", zap.String("event", eventName))
		return nil
	case payload.SessionID == "":
		zap.L().Warn("dispatch: no session, event not sent", zap.String("event", eventName))
		return nil
	}

	name, email, phone := lead.FromPayload(payload)
	event := model.IngestEvent{
		PixelID:        d.opts.PixelID,
		SessionID:      payload.SessionID,
		EventName:      eventName,
		EventTime:      d.opts.Now().Unix(),
		ActionSource:   "website",
		Domain:         page.Host,
		EventSourceURL: page.URL,
		Cookies:        lead.BuildCookieSnapshot(name, email, phone),
		Lead:           lead.BuildFields(name, email, phone),
		CustomData: model.IngestContext{
			Path:   payload.Path,
			Geo:    payload.Geo,
			Source: "landing_builder",
		},
	}
	if len(payload.UTM) > 0 {
		event.UTM = payload.UTM
	}
	if d.opts.Jar != nil {
		ids := clickid.Resolve(d.opts.Jar, page.Query)
		event.FBC = ids.FBC
		event.FBP = ids.FBP
	}

	if err := d.opts.Ingest.Send(ctx, event); err != nil {
		return eris.Wrap(err, "dispatch: backend sink")
	}
	return nil
}
