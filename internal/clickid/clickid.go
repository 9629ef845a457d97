// Package clickid reads the ad-platform click identifiers used for event
// matching. The browser pixel writes _fbp and _fbc cookies; when _fbc is
// missing but the landing URL carries a click id, an equivalent value is
// synthesized and persisted so later events keep the attribution.
package clickid

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/meunomeok/leadtrack/internal/storage"
)

const (
	cookieFBP = "_fbp"
	cookieFBC = "_fbc"

	clickParam = "fbclid"
	cookieTTL  = 90 * 24 * time.Hour
)

// Identifiers holds the click identifiers found for the current visitor.
// Either field may be empty.
type Identifiers struct {
	FBP string
	FBC string
}

// Resolve reads the identifiers from the jar, synthesizing _fbc from the
// page URL's click id when no cookie exists yet.
func Resolve(jar storage.Jar, pageQuery url.Values) Identifiers {
	ids := Identifiers{}
	if v, ok := jar.Cookie(cookieFBP); ok {
		ids.FBP = v
	}
	if v, ok := jar.Cookie(cookieFBC); ok {
		ids.FBC = v
		return ids
	}

	clickID := strings.TrimSpace(pageQuery.Get(clickParam))
	if clickID == "" {
		return ids
	}
	ids.FBC = fmt.Sprintf("fb.1.%d.%s", time.Now().Unix(), clickID)
	jar.SetCookie(cookieFBC, ids.FBC, cookieTTL)
	return ids
}
