// Package pixel fires custom events at the ad-platform pixel endpoint.
// Initialization is lazy and configuration-gated: without a pixel id the
// sink stays dormant and every Track call is a logged no-op.
package pixel

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Tracker sends custom pixel events.
type Tracker interface {
	// Ready reports whether the pixel was configured and initialized.
	Ready() bool
	// Track fires a custom event. Fire-and-forget: failures are logged,
	// never returned.
	Track(ctx context.Context, eventName string, payload map[string]any)
}

// Option configures the pixel tracker.
type Option func(*tracker)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(t *tracker) {
		t.http = hc
	}
}

// WithBaseURL sets a custom events endpoint base (for testing).
func WithBaseURL(base string) Option {
	return func(t *tracker) {
		t.baseURL = base
	}
}

type tracker struct {
	pixelID     string
	accessToken string
	baseURL     string
	http        *http.Client
}

// New creates a pixel tracker. An empty pixelID produces a dormant tracker.
func New(pixelID, accessToken string, opts ...Option) Tracker {
	t := &tracker{
		pixelID:     pixelID,
		accessToken: accessToken,
		baseURL:     "https://graph.facebook.com/v19.0",
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	if pixelID == "" {
		zap.L().Warn("pixel: pixel id not configured, events will be skipped")
	}
	return t
}

func (t *tracker) Ready() bool {
	return t.pixelID != ""
}

type eventBody struct {
	EventName  string         `json:"event_name"`
	EventTime  int64          `json:"event_time"`
	CustomData map[string]any `json:"custom_data,omitempty"`
}

type trackRequest struct {
	Data []eventBody `json:"data"`
}

func (t *tracker) Track(ctx context.Context, eventName string, payload map[string]any) {
	if !t.Ready() {
		zap.L().Debug("pixel: skipping event, not initialized", zap.String("event", eventName))
		return
	}
	if err := t.send(ctx, eventName, payload); err != nil {
		zap.L().Error("pixel: track failed", zap.String("event", eventName), zap.Error(err))
	}
}

func (t *tracker) send(ctx context.Context, eventName string, payload map[string]any) error {
	body, err := json.Marshal(trackRequest{Data: []eventBody{{
		EventName:  eventName,
		EventTime:  time.Now().Unix(),
		CustomData: payload,
	}}})
	if err != nil {
		return eris.Wrap(err, "pixel: marshal event")
	}

	endpoint := t.baseURL + "/" + url.PathEscape(t.pixelID) + "/events"
	if t.accessToken != "" {
		endpoint += "?access_token=" + url.QueryEscape(t.accessToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "pixel: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "pixel: request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return eris.Errorf("pixel: status %d: %s", resp.StatusCode, string(data))
	}
	return nil
}
