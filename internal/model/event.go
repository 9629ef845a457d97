package model

// AttributionMap maps recognized campaign parameter names to the values
// captured from the landing page URL. Once captured it is frozen and replayed
// for the retention window even when later page loads carry no parameters.
type AttributionMap map[string]string

// GeoSnapshot is best-effort visitor telemetry. Language and timezone are
// resolved synchronously; coordinates arrive asynchronously and only benefit
// events dispatched after enrichment completes.
type GeoSnapshot struct {
	Language  string  `json:"language,omitempty"`
	Timezone  string  `json:"timezone,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// EventPayload is the canonical payload assembled per dispatch and handed to
// every sink. Extra carries caller-supplied event data merged over the
// persisted lead fields.
type EventPayload struct {
	SessionID string         `json:"session_id"`
	UTM       AttributionMap `json:"utm,omitempty"`
	Geo       *GeoSnapshot   `json:"geo,omitempty"`
	Path      string         `json:"path"`
	Timestamp string         `json:"timestamp"`
	Extra     map[string]any `json:"-"`
}

// Field returns the string value of an extra field, or "" when absent or not
// a string.
func (p EventPayload) Field(key string) string {
	if p.Extra == nil {
		return ""
	}
	s, _ := p.Extra[key].(string)
	return s
}

// Flatten merges the fixed payload fields and the extra data into one map,
// the shape sinks serialize. Extra keys never shadow the fixed keys.
func (p EventPayload) Flatten() map[string]any {
	out := make(map[string]any, len(p.Extra)+5)
	for k, v := range p.Extra {
		out[k] = v
	}
	out["session_id"] = p.SessionID
	if len(p.UTM) > 0 {
		out["utm"] = p.UTM
	}
	if p.Geo != nil {
		out["geo"] = p.Geo
	}
	out["path"] = p.Path
	out["timestamp"] = p.Timestamp
	return out
}

// IngestEvent is the body POSTed to the backend ingestion endpoint.
type IngestEvent struct {
	PixelID        string          `json:"pixelId"`
	SessionID      string          `json:"sessionId"`
	EventName      string          `json:"eventName"`
	EventTime      int64           `json:"eventTime"`
	ActionSource   string          `json:"actionSource"`
	Domain         string          `json:"domain,omitempty"`
	EventSourceURL string          `json:"eventSourceUrl,omitempty"`
	UTM            AttributionMap  `json:"utm,omitempty"`
	Cookies        *CookieSnapshot `json:"cookies,omitempty"`
	Lead           *LeadFields     `json:"lead,omitempty"`
	FBC            string          `json:"fbc,omitempty"`
	FBP            string          `json:"fbp,omitempty"`
	CustomData     IngestContext   `json:"customData"`
}

// IngestContext is the free-form context block of an IngestEvent.
type IngestContext struct {
	Path   string       `json:"path,omitempty"`
	Geo    *GeoSnapshot `json:"geo,omitempty"`
	Source string       `json:"source,omitempty"`
}
