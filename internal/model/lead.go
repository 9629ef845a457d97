// Package model holds the shared domain types for the lead capture pipeline.
package model

// LeadSnapshot is the persisted copy of a submitted lead, written after the
// conversion event so the follow-up page can replay it.
type LeadSnapshot struct {
	Name        string         `json:"name,omitempty"`
	Email       string         `json:"email,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	Gender      string         `json:"gender,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	UTM         AttributionMap `json:"utm,omitempty"`
	ValidatedAt string         `json:"validated_at,omitempty"`
}

// LeadFields is the structured lead object attached to outbound events for
// downstream ad matching. Every field is omit-empty; a LeadFields with no set
// field is represented as nil and absent from the payload.
type LeadFields struct {
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Name      string `json:"name,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Gender    string `json:"gender,omitempty"`
}

// Empty reports whether no field carries a value.
func (f LeadFields) Empty() bool {
	return f == LeadFields{}
}

// CookieSnapshot mirrors the ad-platform matching cookies derived from a
// lead. Key names are part of the external contract.
type CookieSnapshot struct {
	LeadEmail     string `json:"LeadEmail,omitempty"`
	LeadPhone     string `json:"LeadPhone,omitempty"`
	LeadFirstName string `json:"LeadFirstName,omitempty"`
	LeadLastName  string `json:"LeadLastName,omitempty"`
	LeadGenero    string `json:"LeadGenero,omitempty"`
}

// Empty reports whether no cookie field carries a value.
func (c CookieSnapshot) Empty() bool {
	return c == CookieSnapshot{}
}
