// Package ingest posts tracking events to the backend ingestion endpoint.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/meunomeok/leadtrack/internal/model"
	"github.com/meunomeok/leadtrack/internal/resilience"
)

// Client sends assembled events to the ingestion endpoint.
type Client interface {
	Send(ctx context.Context, event model.IngestEvent) error
}

// Option configures the ingest client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the delivery retry budget.
func WithRetry(cfg resilience.Config) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithRateLimit overrides the default event rate limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	url     string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.Config
}

// NewClient creates an ingest client. Events are throttled to 10/s by
// default so a misbehaving page cannot flood the backend.
func NewClient(url, apiKey string, opts ...Option) Client {
	c := &httpClient{
		url:    url,
		apiKey: apiKey,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(10, 10),
		retry:   resilience.Config{OnRetry: resilience.Logger("ingest")},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Send(ctx context.Context, event model.IngestEvent) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "ingest: rate limit")
		}
	}

	body, err := json.Marshal(event)
	if err != nil {
		return eris.Wrap(err, "ingest: marshal event")
	}

	// Transient failures (timeouts, 5xx, 429) get a short retry budget;
	// anything else fails the delivery outright.
	return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.post(ctx, body)
	})
}

func (c *httpClient) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "ingest: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.Transient(eris.Wrap(err, "ingest: request"), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := eris.Errorf("ingest: status %d: %s", resp.StatusCode, string(data))
		if resilience.TransientStatus(resp.StatusCode) {
			return resilience.Transient(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
