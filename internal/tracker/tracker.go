// Package tracker is the service facade over the capture pipeline: it owns
// the session lifecycle, the per-session dedupe flags, and the submission
// gate, and delegates payload assembly and fan-out to the dispatcher.
package tracker

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meunomeok/leadtrack/internal/config"
	"github.com/meunomeok/leadtrack/internal/dispatch"
	"github.com/meunomeok/leadtrack/internal/gender"
	"github.com/meunomeok/leadtrack/internal/identity"
	"github.com/meunomeok/leadtrack/internal/model"
	"github.com/meunomeok/leadtrack/internal/phone"
	"github.com/meunomeok/leadtrack/internal/storage"
	"github.com/meunomeok/leadtrack/internal/validation"
)

// Event names emitted by the facade. Lead and PreencheuForm match what the
// downstream automations key on, so they are not translatable.
const (
	EventPageView       = "PageView"
	EventLead           = "Lead"
	EventFormCompleted  = "PreencheuForm"
	EventFormError      = "LeadFormError"
	EventThankYou       = "view_thank_you"
	EventWhatsAppClick  = "ChamouWhats"
	EventInstagramClick = "instagram_click"
)

// Submission failure sentinels. Each maps to the diagnostic reason sent
// alongside it in the LeadFormError event.
var (
	ErrAlreadySubmitted  = eris.New("tracker: lead already submitted this session")
	ErrInvalidFields     = eris.New("tracker: lead fields incomplete or malformed")
	ErrPhoneNotValidated = eris.New("tracker: phone not confirmed reachable")
	ErrSubmitFailed      = eris.New("tracker: lead submission failed")
)

var emailPattern = regexp.MustCompile(`(?i)^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// LeadInput is the raw, unsanitized form data.
type LeadInput struct {
	Name  string
	Email string
	Phone string
}

// Options wires a Tracker.
type Options struct {
	Store      *storage.Tiered
	Resolver   *identity.Resolver
	Dispatcher *dispatch.Dispatcher
	// Machine gates submission on a confirmed reachability verdict. When
	// nil the gate is skipped (fail-open, matching an unconfigured
	// verification endpoint).
	Machine *validation.Machine
	// SnapshotTTL bounds the persisted lead snapshot; zero means no expiry.
	SnapshotTTL time.Duration
	Now         func() time.Time
}

// Tracker coordinates capture operations for one visitor profile.
type Tracker struct {
	opts     Options
	pageView sync.Once
}

func New(opts Options) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{opts: opts}
}

// Init resolves the visitor identity for the page: session id, frozen
// attribution, and the geo lookup (which keeps enriching in the background).
func (t *Tracker) Init(ctx context.Context, page dispatch.Page) {
	t.opts.Resolver.EnsureSessionID(ctx)
	t.opts.Resolver.CaptureAttribution(ctx, page.Query)
	t.opts.Resolver.CollectGeo(ctx)
}

// TrackPageView dispatches the page-view event at most once per process.
func (t *Tracker) TrackPageView(ctx context.Context, page dispatch.Page) {
	t.pageView.Do(func() {
		t.opts.Dispatcher.Dispatch(ctx, EventPageView, page, nil)
	})
}

// MarkFormCompleted dispatches PreencheuForm the first time the form holds a
// complete, valid set of fields. Subsequent calls in the same session are
// no-ops, keyed on the ephemeral completed flag.
func (t *Tracker) MarkFormCompleted(ctx context.Context, page dispatch.Page, in LeadInput) {
	if validateInput(in) != nil {
		return
	}
	if t.sessionFlag(ctx, config.KeyFormCompleted) {
		return
	}
	t.setSessionFlag(ctx, config.KeyFormCompleted)
	t.opts.Dispatcher.Dispatch(ctx, EventFormCompleted, page, map[string]any{
		"form_state": "completed",
		"name":       sanitizeText(in.Name),
		"email":      sanitizeEmail(in.Email),
		"phone":      phone.Sanitize(in.Phone),
	})
}

// SubmitLead runs the full submission path: dedupe flag, field validation,
// reachability gate, snapshot persistence, Lead dispatch. Failures short of
// the dedupe check emit a LeadFormError diagnostic with the matching reason.
func (t *Tracker) SubmitLead(ctx context.Context, page dispatch.Page, in LeadInput) (payload model.EventPayload, err error) {
	if t.sessionFlag(ctx, config.KeyFormSubmitted) {
		return model.EventPayload{}, ErrAlreadySubmitted
	}

	if verr := validateInput(in); verr != nil {
		t.ReportFormError(ctx, page, "invalid_fields", nil)
		return model.EventPayload{}, verr
	}

	digits := phone.Sanitize(in.Phone)
	if t.opts.Machine != nil {
		if !t.opts.Machine.CanSubmit() || t.opts.Machine.ConfirmedNumber() != digits {
			t.ReportFormError(ctx, page, "whatsapp_not_validated", nil)
			return model.EventPayload{}, ErrPhoneNotValidated
		}
	}

	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("tracker: submission panic", zap.Any("cause", r))
			t.ReportFormError(ctx, page, "submission_failed", nil)
			payload, err = model.EventPayload{}, ErrSubmitFailed
		}
	}()

	name := sanitizeText(in.Name)
	snapshot := model.LeadSnapshot{
		Name:        name,
		Email:       sanitizeEmail(in.Email),
		Phone:       digits,
		Gender:      gender.Infer(name),
		SessionID:   t.opts.Resolver.EnsureSessionID(ctx),
		UTM:         t.opts.Resolver.CaptureAttribution(ctx, page.Query),
		ValidatedAt: t.opts.Now().UTC().Format(time.RFC3339),
	}
	if encoded, merr := json.Marshal(snapshot); merr == nil {
		t.opts.Store.Set(ctx, config.KeyLeadPayload, string(encoded), t.opts.SnapshotTTL)
	} else {
		zap.L().Warn("tracker: lead snapshot not persisted", zap.Error(merr))
	}

	extra := map[string]any{
		"name":         snapshot.Name,
		"email":        snapshot.Email,
		"phone":        snapshot.Phone,
		"validated_at": snapshot.ValidatedAt,
	}
	if snapshot.Gender != "" {
		extra["gender"] = snapshot.Gender
	}
	payload = t.opts.Dispatcher.Dispatch(ctx, EventLead, page, extra)
	t.setSessionFlag(ctx, config.KeyFormSubmitted)
	return payload, nil
}

// ThankYouView replays the persisted lead snapshot on the follow-up page.
// The dispatcher merges the snapshot on its own, so no extra data is needed.
func (t *Tracker) ThankYouView(ctx context.Context, page dispatch.Page) model.EventPayload {
	return t.opts.Dispatcher.Dispatch(ctx, EventThankYou, page, nil)
}

// TrackEngagement dispatches a named engagement event (WhatsApp click,
// Instagram click) with optional event-specific data.
func (t *Tracker) TrackEngagement(ctx context.Context, eventName string, page dispatch.Page, extra map[string]any) model.EventPayload {
	return t.opts.Dispatcher.Dispatch(ctx, eventName, page, extra)
}

// ReportFormError emits a LeadFormError diagnostic. response carries the raw
// provider body when the reason is a reachability rejection.
func (t *Tracker) ReportFormError(ctx context.Context, page dispatch.Page, reason string, response json.RawMessage) {
	extra := map[string]any{"reason": reason}
	if len(response) > 0 {
		extra["response"] = response
	}
	t.opts.Dispatcher.Dispatch(ctx, EventFormError, page, extra)
}

// RejectionReporter adapts ReportFormError to the validation machine's
// OnRejected hook, tagging rejections with the whatsapp_invalid reason.
func (t *Tracker) RejectionReporter(page dispatch.Page) func(json.RawMessage) {
	return func(raw json.RawMessage) {
		t.ReportFormError(context.Background(), page, "whatsapp_invalid", raw)
	}
}

// Session flags are deliberately ephemeral: they live in the memory tier
// only, so a new process starts a new session.
func (t *Tracker) sessionFlag(ctx context.Context, key string) bool {
	mem := t.opts.Store.Memory()
	if mem == nil {
		return false
	}
	v, err := mem.Get(ctx, key)
	return err == nil && v != ""
}

func (t *Tracker) setSessionFlag(ctx context.Context, key string) {
	if mem := t.opts.Store.Memory(); mem != nil {
		if err := mem.Set(ctx, key, "true", 0); err != nil {
			zap.L().Warn("tracker: session flag not persisted", zap.String("key", key), zap.Error(err))
		}
	}
}

func validateInput(in LeadInput) error {
	switch {
	case len(sanitizeText(in.Name)) < 3:
		return ErrInvalidFields
	case !emailPattern.MatchString(strings.TrimSpace(in.Email)):
		return ErrInvalidFields
	case !phone.IsValid(in.Phone):
		return ErrInvalidFields
	}
	return nil
}

func sanitizeText(value string) string {
	return strings.TrimSpace(strings.NewReplacer("<", "", ">", "").Replace(value))
}

func sanitizeEmail(value string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r == '<' || r == '>':
			return -1
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			return -1
		}
		return r
	}, value)
	return strings.ToLower(clean)
}
