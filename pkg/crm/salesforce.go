package crm

import (
	"context"
	"fmt"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meunomeok/leadtrack/internal/lead"
	"github.com/meunomeok/leadtrack/internal/model"
)

// leadInserter is the slice of the Salesforce API the sink needs; tests
// substitute a fake.
type leadInserter interface {
	InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error)
}

// SalesforceSink writes conversion events to Salesforce as Lead records.
// Non-conversion events are acknowledged and logged only. Insert failures
// are logged, never propagated, per the sink isolation contract.
type SalesforceSink struct {
	inserter leadInserter
}

// Creds holds the JWT bearer credentials for the Salesforce connected app.
type Creds struct {
	LoginURL string
	Username string
	ClientID string
	KeyPEM   string
}

// NewSalesforce authenticates against Salesforce and returns a sink.
func NewSalesforce(creds Creds) (*SalesforceSink, error) {
	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         creds.LoginURL,
		Username:       creds.Username,
		ConsumerKey:    creds.ClientID,
		ConsumerRSAPem: creds.KeyPEM,
	})
	if err != nil {
		return nil, eris.Wrap(err, "crm: init salesforce")
	}
	return &SalesforceSink{inserter: &sfInserter{sf: sf}}, nil
}

// NewSalesforceWithInserter wires a sink over an existing inserter. Used by
// tests.
func NewSalesforceWithInserter(ins leadInserter) *SalesforceSink {
	return &SalesforceSink{inserter: ins}
}

func (s *SalesforceSink) SendEvent(ctx context.Context, eventName string, payload model.EventPayload) {
	if eventName != "Lead" {
		zap.L().Debug("crm: non-conversion event", zap.String("event", eventName))
		return
	}

	name, email, phone := lead.FromPayload(payload)
	first, last := lead.SplitName(name)
	if last == "" {
		last = first
	}
	record := map[string]any{
		"FirstName":  first,
		"LastName":   last,
		"Email":      email,
		"Phone":      phone,
		"Company":    "Pessoa Física",
		"LeadSource": "Landing Page",
	}
	if src := payload.UTM["utm_source"]; src != "" {
		record["LeadSource"] = src
	}

	id, err := s.inserter.InsertOne(ctx, "Lead", record)
	if err != nil {
		zap.L().Error("crm: insert lead failed", zap.Error(err))
		return
	}
	zap.L().Info("crm: lead created", zap.String("id", id), zap.String("session_id", payload.SessionID))
}

type sfInserter struct {
	sf *salesforce.Salesforce
}

func (i *sfInserter) InsertOne(_ context.Context, sObjectName string, record map[string]any) (string, error) {
	result, err := i.sf.InsertOne(sObjectName, record)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("crm: insert %s", sObjectName))
	}
	if !result.Success {
		return "", eris.New(fmt.Sprintf("crm: insert %s failed: %v", sObjectName, result.Errors))
	}
	return result.Id, nil
}
