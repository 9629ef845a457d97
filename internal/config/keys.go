package config

// Storage keys. Namespaced to survive alongside unrelated client state; the
// names are part of the persisted-state contract and match what the landing
// page historically wrote.
const (
	KeySessionID     = "mnok_session_id"
	KeyUTM           = "mnok_utm_params"
	KeyFormCompleted = "mnok_form_completed"
	KeyFormSubmitted = "mnok_form_submitted"
	KeyLeadPayload   = "mnok_lead_payload"
)

// UTMKeys is the fixed set of recognized attribution query parameters. Only
// these names are captured; anything else in the query string is ignored.
var UTMKeys = []string{
	"utm_source",
	"utm_medium",
	"utm_campaign",
	"utm_content",
	"utm_term",
	"utm_id",
	"utm_adset",
	"utm_placement",
	"utm_site_source_name",
}
