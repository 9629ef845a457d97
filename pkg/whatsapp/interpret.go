package whatsapp

import (
	"encoding/json"
	"strings"
)

// Known provider response shapes. The API has shipped several over time:
// a bare boolean, {"valid": ...}, {"exists": ...}, {"status": "..."} — each
// optionally wrapped in a one-element array. Anything unrecognized counts as
// not reachable.
type statusBody struct {
	Valid  *bool  `json:"valid"`
	Exists *bool  `json:"exists"`
	Status string `json:"status"`
}

var reachableStatuses = map[string]bool{
	"valid":     true,
	"connected": true,
	"online":    true,
	"exists":    true,
	"ok":        true,
}

// interpret normalizes a provider response body into a single reachable
// verdict.
func interpret(raw json.RawMessage) bool {
	raw = unwrapArray(raw)
	if len(raw) == 0 {
		return false
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}

	var body statusBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return false
	}
	switch {
	case body.Valid != nil:
		return *body.Valid
	case body.Exists != nil:
		return *body.Exists
	case body.Status != "":
		return reachableStatuses[strings.ToLower(body.Status)]
	}
	return false
}

// unwrapArray returns the first element of a JSON array, or the input
// unchanged when it is not an array.
func unwrapArray(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "[") {
		return raw
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) == 0 {
		return nil
	}
	return arr[0]
}
