// Package geoip resolves an approximate position for the current host via an
// ip-api-compatible lookup endpoint. Results only enrich event telemetry.
package geoip

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/meunomeok/leadtrack/internal/identity"
)

// ipAPIAccuracyMeters is the nominal accuracy of city-level IP geolocation.
const ipAPIAccuracyMeters = 50000

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.http = hc
	}
}

type client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a geoip provider against the given base URL.
func NewClient(baseURL string, opts ...Option) identity.GeoProvider {
	c := &client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type lookupResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (c *client) Locate(ctx context.Context) (identity.Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/json", nil)
	if err != nil {
		return identity.Position{}, eris.Wrap(err, "geoip: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return identity.Position{}, eris.Wrap(err, "geoip: request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return identity.Position{}, eris.Errorf("geoip: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return identity.Position{}, eris.Wrap(err, "geoip: read response")
	}

	var body lookupResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return identity.Position{}, eris.Wrap(err, "geoip: unmarshal response")
	}
	if body.Status != "success" {
		return identity.Position{}, eris.Errorf("geoip: lookup failed: %s", body.Message)
	}

	return identity.Position{
		Latitude:  body.Lat,
		Longitude: body.Lon,
		Accuracy:  ipAPIAccuracyMeters,
	}, nil
}
