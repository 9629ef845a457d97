// Package whatsapp checks whether a phone number is a reachable messaging
// endpoint via an Evolution-compatible reachability API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meunomeok/leadtrack/internal/phone"
)

// User-facing verdict messages. Product copy, surfaced verbatim in the form.
const (
	msgBadNumber   = "Não conseguimos interpretar seu WhatsApp. Confirme o DDD e utilize apenas números."
	msgCheckFailed = "Não foi possível validar seu WhatsApp agora. Tente novamente em instantes."
	msgNotFound    = "Não conseguimos confirmar o seu WhatsApp. Verifique se o número está correto e com DDD, e tente novamente."
	msgUnstable    = "Instabilidade momentânea na validação de WhatsApp. Recarregue a página e tente novamente."
)

// Verdict is the tri-state outcome of one reachability check. OK=false
// always carries a user-facing Message; Raw holds the provider response for
// diagnostics when one was received.
type Verdict struct {
	OK      bool
	Message string
	Raw     json.RawMessage
}

// Checker answers whether a number is reachable.
type Checker interface {
	Check(ctx context.Context, rawNumber string) Verdict
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.http = hc
	}
}

// WithCountryCode overrides the default country prefix used for E.164
// normalization.
func WithCountryCode(cc string) Option {
	return func(c *client) {
		c.countryCode = cc
	}
}

type client struct {
	apiURL      string
	apiKey      string
	countryCode string
	http        *http.Client
}

// NewClient creates a reachability checker. An empty apiURL is a supported
// degraded mode: every well-formed number is then assumed reachable, keeping
// the form usable when the provider is not configured.
func NewClient(apiURL, apiKey string, opts ...Option) Checker {
	c := &client{
		apiURL:      apiURL,
		apiKey:      apiKey,
		countryCode: phone.DefaultCountryCode,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type checkRequest struct {
	Numbers []string `json:"numbers"`
}

func (c *client) Check(ctx context.Context, rawNumber string) Verdict {
	e164 := phone.ToE164Country(rawNumber, c.countryCode)
	if e164 == "" {
		return Verdict{OK: false, Message: msgBadNumber}
	}

	if c.apiURL == "" {
		zap.L().Warn("whatsapp: reachability endpoint not configured, assuming reachable")
		return Verdict{OK: true}
	}

	raw, err := c.post(ctx, e164)
	if err != nil {
		zap.L().Error("whatsapp: reachability call failed", zap.Error(err))
		return Verdict{OK: false, Message: msgUnstable}
	}
	if raw == nil {
		return Verdict{OK: false, Message: msgCheckFailed}
	}

	if interpret(raw) {
		return Verdict{OK: true, Raw: raw}
	}
	return Verdict{OK: false, Message: msgNotFound, Raw: raw}
}

// post issues the reachability call. A non-2xx status returns (nil, nil) so
// the caller can emit the retry message without treating it as transport
// failure.
func (c *client) post(ctx context.Context, e164 string) (json.RawMessage, error) {
	body, err := json.Marshal(checkRequest{Numbers: []string{e164}})
	if err != nil {
		return nil, eris.Wrap(err, "whatsapp: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "whatsapp: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "whatsapp: request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		zap.L().Warn("whatsapp: non-success status", zap.Int("status", resp.StatusCode))
		return nil, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "whatsapp: read response")
	}
	return data, nil
}
