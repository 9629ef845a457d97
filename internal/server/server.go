// Package server exposes the capture pipeline over HTTP for headless page
// clients. Every request is scoped to a visitor profile carried in a cookie,
// and the three storage tiers are assembled per request: the durable store
// keyed by profile, the request's own cookie jar, and a per-profile in-memory
// tier that lives for the process (the session).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meunomeok/leadtrack/internal/dispatch"
	"github.com/meunomeok/leadtrack/internal/identity"
	"github.com/meunomeok/leadtrack/internal/model"
	"github.com/meunomeok/leadtrack/internal/phone"
	"github.com/meunomeok/leadtrack/internal/storage"
	"github.com/meunomeok/leadtrack/internal/tracker"
	"github.com/meunomeok/leadtrack/pkg/crm"
	"github.com/meunomeok/leadtrack/pkg/ingest"
	"github.com/meunomeok/leadtrack/pkg/pixel"
	"github.com/meunomeok/leadtrack/pkg/whatsapp"
)

const profileCookie = "mnok_profile_id"

type contextKey string

const profileKey contextKey = "profile"

// Options wires a Server.
type Options struct {
	// Durable may be nil; the durable tier is then skipped.
	Durable storage.DurableStore
	Checker whatsapp.Checker
	CRM     crm.Sink
	Pixel   pixel.Tracker
	Ingest  ingest.Client
	PixelID string
	Geo     identity.GeoProvider

	AllowedOrigins []string
	Language       string
	Timezone       string
	SessionTTL     time.Duration
	AttributionTTL time.Duration
	SnapshotTTL    time.Duration
	Now            func() time.Time
}

// Server routes capture requests to per-profile trackers.
type Server struct {
	opts Options

	mu       sync.Mutex
	profiles map[string]*profileState
}

// profileState is what must outlive a single request: the session tier and
// the geo cache, so a fix fetched during one request enriches later ones.
type profileState struct {
	memory *storage.MemoryTier
	geo    *identity.GeoCache
}

func New(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{opts: opts, profiles: map[string]*profileState{}}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.profileMiddleware)
		api.Post("/events/pageview", s.handlePageView)
		api.Post("/phone/validate", s.handleValidatePhone)
		api.Post("/leads", s.handleLead)
		api.Post("/events/{name}", s.handleEvent)
	})
	return r
}

// profileMiddleware pins every request to a visitor profile. A missing or
// blank cookie gets a fresh id, set back on the response.
func (s *Server) profileMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(profileCookie); err == nil {
			id = c.Value
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     profileCookie,
				Value:    id,
				Path:     "/",
				Expires:  s.opts.Now().Add(s.sessionTTL()),
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), profileKey, id)))
	})
}

func (s *Server) sessionTTL() time.Duration {
	if s.opts.SessionTTL > 0 {
		return s.opts.SessionTTL
	}
	return 365 * 24 * time.Hour
}

// stateFor returns the profile's cross-request state, creating it on first
// use. It lives until the process exits, which is what bounds a session.
func (s *Server) stateFor(profile string) *profileState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.profiles[profile]
	if !ok {
		state = &profileState{memory: storage.NewMemory(), geo: identity.NewGeoCache()}
		s.profiles[profile] = state
	}
	return state
}

// requestScope is the per-request assembly: tiered store, resolver,
// dispatcher, and tracker, all bound to the request's profile and jar.
type requestScope struct {
	tracker *tracker.Tracker
	jar     *httpJar
}

func (s *Server) scope(w http.ResponseWriter, r *http.Request) *requestScope {
	profile, _ := r.Context().Value(profileKey).(string)
	jar := newHTTPJar(w, r, s.opts.Now)

	var durable storage.Tier
	if s.opts.Durable != nil {
		durable = s.opts.Durable.Tier(profile)
	}
	state := s.stateFor(profile)
	store := storage.NewTiered(durable, storage.NewCookie(jar), state.memory)

	resolver := identity.NewResolver(store, identity.Options{
		SessionTTL:     s.opts.SessionTTL,
		AttributionTTL: s.opts.AttributionTTL,
		Language:       s.opts.Language,
		Timezone:       s.opts.Timezone,
		Provider:       s.opts.Geo,
		Cache:          state.geo,
	})
	dispatcher := dispatch.New(dispatch.Options{
		Store:    store,
		Resolver: resolver,
		CRM:      s.opts.CRM,
		Pixel:    s.opts.Pixel,
		Ingest:   s.opts.Ingest,
		PixelID:  s.opts.PixelID,
		Jar:      jar,
		Now:      s.opts.Now,
	})
	return &requestScope{
		tracker: tracker.New(tracker.Options{
			Store:       store,
			Resolver:    resolver,
			Dispatcher:  dispatcher,
			SnapshotTTL: s.opts.SnapshotTTL,
			Now:         s.opts.Now,
		}),
		jar: jar,
	}
}

type pageRequest struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// page reconstructs the visited page from the reported URL. The query string
// is what feeds attribution capture, so it must come from the page URL, not
// from this API call's own URL.
func (p pageRequest) page() dispatch.Page {
	out := dispatch.Page{Path: p.Path, URL: p.URL, Query: url.Values{}}
	if u, err := url.Parse(p.URL); err == nil {
		out.Host = u.Host
		out.Query = u.Query()
		if out.Path == "" {
			out.Path = u.Path
		}
	}
	return out
}

func (s *Server) handlePageView(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	sc := s.scope(w, r)
	sc.tracker.Init(r.Context(), req.page())
	sc.tracker.TrackPageView(r.Context(), req.page())
	writeJSON(w, http.StatusAccepted, map[string]any{"tracked": true})
}

func (s *Server) handleValidatePhone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	verdict := whatsapp.Verdict{OK: true}
	if s.opts.Checker != nil {
		verdict = s.opts.Checker.Check(r.Context(), req.Phone)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      verdict.OK,
		"message": verdict.Message,
		"e164":    phone.ToE164(req.Phone),
	})
}

func (s *Server) handleLead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		pageRequest
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	sc := s.scope(w, r)
	page := req.page()
	sc.tracker.Init(r.Context(), page)

	// Reachability gate. The checker fails open when unconfigured, so this
	// only blocks when a configured endpoint said the number has no
	// WhatsApp.
	if s.opts.Checker != nil && phone.IsValid(req.Phone) {
		if verdict := s.opts.Checker.Check(r.Context(), req.Phone); !verdict.OK {
			sc.tracker.ReportFormError(r.Context(), page, "whatsapp_invalid", verdict.Raw)
			writeError(w, http.StatusUnprocessableEntity, verdict.Message)
			return
		}
	}

	payload, err := sc.tracker.SubmitLead(r.Context(), page, tracker.LeadInput{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	switch {
	case errors.Is(err, tracker.ErrAlreadySubmitted):
		writeError(w, http.StatusConflict, "lead already submitted")
	case errors.Is(err, tracker.ErrInvalidFields):
		writeError(w, http.StatusUnprocessableEntity, "incomplete or malformed lead fields")
	case err != nil:
		zap.L().Error("server: lead submission failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lead submission failed")
	default:
		writeJSON(w, http.StatusCreated, map[string]any{
			"session_id": payload.SessionID,
			"payload":    payload.Flatten(),
		})
	}
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req struct {
		pageRequest
		Data map[string]any `json:"data"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	sc := s.scope(w, r)
	page := req.page()
	sc.tracker.Init(r.Context(), page)

	// The form-completed event carries its own dedupe and sanitization, so
	// it must go through the facade, not raw engagement dispatch.
	if name == tracker.EventFormCompleted {
		sc.tracker.MarkFormCompleted(r.Context(), page, tracker.LeadInput{
			Name:  stringField(req.Data, "name"),
			Email: stringField(req.Data, "email"),
			Phone: stringField(req.Data, "phone"),
		})
		writeJSON(w, http.StatusAccepted, map[string]any{"event": name, "tracked": true})
		return
	}

	var payload model.EventPayload
	if name == tracker.EventThankYou {
		payload = sc.tracker.ThankYouView(r.Context(), page)
	} else {
		payload = sc.tracker.TrackEngagement(r.Context(), name, page, req.Data)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"event": name, "payload": payload.Flatten()})
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func readJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("server: response write failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
