// Package crm holds the CRM sink contract and its implementations. The
// dispatcher always has a sink: when no CRM is configured the composition
// root installs the log-only NopSink, so dispatch never fails for lack of a
// consumer.
package crm

import (
	"context"

	"go.uber.org/zap"

	"github.com/meunomeok/leadtrack/internal/model"
)

// Sink consumes dispatched events. Implementations must absorb their own
// failures; SendEvent is called with the canonical payload for every event.
type Sink interface {
	SendEvent(ctx context.Context, eventName string, payload model.EventPayload)
}

// NopSink logs each event and does nothing else. It is the default sink.
type NopSink struct{}

func (NopSink) SendEvent(_ context.Context, eventName string, payload model.EventPayload) {
	zap.L().Info("crm: event",
		zap.String("event", eventName),
		zap.String("session_id", payload.SessionID),
		zap.String("path", payload.Path),
	)
}
