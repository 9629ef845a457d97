// Package lead derives the structured lead objects attached to outbound
// events from the free-text form fields.
package lead

import (
	"encoding/json"
	"strings"

	"github.com/meunomeok/leadtrack/internal/gender"
	"github.com/meunomeok/leadtrack/internal/model"
)

// SplitName splits a display name into first name and the remainder joined
// as last name.
func SplitName(fullName string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(fullName))
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// BuildFields assembles the lead object for an event payload. Returns nil
// when no field carries a value, so the payload omits the block entirely.
func BuildFields(name, email, phone string) *model.LeadFields {
	trimmed := strings.TrimSpace(name)
	first, last := SplitName(trimmed)

	f := model.LeadFields{
		Email:     email,
		Phone:     phone,
		Name:      trimmed,
		FirstName: first,
		LastName:  last,
		Gender:    gender.Infer(trimmed),
	}
	if f.Empty() {
		return nil
	}
	return &f
}

// BuildCookieSnapshot assembles the ad-matching cookie block. Returns nil
// when every field is empty.
func BuildCookieSnapshot(name, email, phone string) *model.CookieSnapshot {
	first, last := SplitName(name)

	c := model.CookieSnapshot{
		LeadEmail:     email,
		LeadPhone:     phone,
		LeadFirstName: first,
		LeadLastName:  last,
		LeadGenero:    gender.Infer(name),
	}
	if c.Empty() {
		return nil
	}
	return &c
}

// FromPayload reads the lead fields out of a dispatched payload's extra data.
func FromPayload(p model.EventPayload) (name, email, phone string) {
	return p.Field("name"), p.Field("email"), p.Field("phone")
}

// Normalize keeps only the known string fields of a persisted snapshot.
// Unknown keys and non-string values in old or foreign snapshots are
// dropped.
func Normalize(raw map[string]any) map[string]any {
	normalized := make(map[string]any, 4)
	for _, key := range []string{"name", "email", "phone", "gender"} {
		if s, ok := raw[key].(string); ok {
			normalized[key] = s
		}
	}
	return normalized
}

// DecodeSnapshot parses a persisted snapshot, tolerating malformed JSON by
// returning an empty map.
func DecodeSnapshot(data string) map[string]any {
	if data == "" {
		return map[string]any{}
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return map[string]any{}
	}
	return Normalize(raw)
}
