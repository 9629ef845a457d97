package dispatch

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meunomeok/leadtrack/internal/config"
	"github.com/meunomeok/leadtrack/internal/identity"
	"github.com/meunomeok/leadtrack/internal/model"
	"github.com/meunomeok/leadtrack/internal/storage"
)

type recordingSink struct {
	mu     sync.Mutex
	events []string
	last   model.EventPayload
	panics bool
}

func (s *recordingSink) SendEvent(_ context.Context, eventName string, payload model.EventPayload) {
	s.mu.Lock()
	s.events = append(s.events, eventName)
	s.last = payload
	s.mu.Unlock()
	if s.panics {
		panic("crm exploded")
	}
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type recordingPixel struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPixel) Ready() bool { return true }

func (p *recordingPixel) Track(_ context.Context, eventName string, _ map[string]any) {
	p.mu.Lock()
	p.events = append(p.events, eventName)
	p.mu.Unlock()
}

func (p *recordingPixel) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type recordingIngest struct {
	mu     sync.Mutex
	events []model.IngestEvent
	err    error
}

func (i *recordingIngest) Send(_ context.Context, event model.IngestEvent) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.events = append(i.events, event)
	return i.err
}

func (i *recordingIngest) lastEvent() model.IngestEvent {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.events[len(i.events)-1]
}

func (i *recordingIngest) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.events)
}

type fixture struct {
	dispatcher *Dispatcher
	store      *storage.Tiered
	crm        *recordingSink
	pixel      *recordingPixel
	ingest     *recordingIngest
}

func newFixture(mutate func(*Options)) *fixture {
	store := storage.NewTiered(storage.NewMemory(), storage.NewMemory(), storage.NewMemory())
	f := &fixture{
		store:  store,
		crm:    &recordingSink{},
		pixel:  &recordingPixel{},
		ingest: &recordingIngest{},
	}
	opts := Options{
		Store:    store,
		Resolver: identity.NewResolver(store, identity.Options{}),
		CRM:      f.crm,
		Pixel:    f.pixel,
		Ingest:   f.ingest,
		PixelID:  "px-1",
		Now:      func() time.Time { return time.Unix(1700000000, 0) },
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.dispatcher = New(opts)
	return f
}

func page() Page {
	return Page{
		Path:  "/",
		URL:   "https://example.com.br/?utm_source=test",
		Host:  "example.com.br",
		Query: url.Values{"utm_source": {"test"}},
	}
}

func TestDispatch_AllSinksReceiveEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	payload := f.dispatcher.Dispatch(context.Background(), "PageView", page(), nil)

	assert.NotEmpty(t, payload.SessionID)
	assert.Equal(t, "test", payload.UTM["utm_source"])
	assert.Equal(t, "/", payload.Path)
	assert.Equal(t, "2023-11-14T22:13:20Z", payload.Timestamp)

	assert.Equal(t, 1, f.crm.count())
	assert.Equal(t, 1, f.pixel.count())
	require.Equal(t, 1, f.ingest.count())

	sent := f.ingest.lastEvent()
	assert.Equal(t, "px-1", sent.PixelID)
	assert.Equal(t, payload.SessionID, sent.SessionID)
	assert.Equal(t, int64(1700000000), sent.EventTime)
	assert.Equal(t, "website", sent.ActionSource)
	assert.Equal(t, "example.com.br", sent.Domain)
	assert.Equal(t, "landing_builder", sent.CustomData.Source)
}

func TestDispatch_BackendFailureDoesNotAffectOthers(t *testing.T) {
	t.Parallel()

	f := newFixture(func(o *Options) {})
	f.ingest.err = errors.New("backend unreachable")

	payload := f.dispatcher.Dispatch(context.Background(), "Lead", page(), map[string]any{"name": "Maria Clara"})

	assert.NotEmpty(t, payload.SessionID)
	assert.Equal(t, 1, f.crm.count())
	assert.Equal(t, 1, f.pixel.count())
}

func TestDispatch_CRMPanicIsIsolated(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.crm.panics = true

	payload := f.dispatcher.Dispatch(context.Background(), "PageView", page(), nil)

	assert.NotEmpty(t, payload.SessionID)
	assert.Equal(t, 1, f.pixel.count())
	assert.Equal(t, 1, f.ingest.count())
}

func TestDispatch_BackendSkippedWithoutConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"no ingest client", func(o *Options) { o.Ingest = nil }},
		{"no pixel id", func(o *Options) { o.PixelID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(tt.mutate)
			f.dispatcher.Dispatch(context.Background(), "PageView", page(), nil)
			assert.Equal(t, 1, f.crm.count())
			assert.Equal(t, 1, f.pixel.count())
			assert.Equal(t, 0, f.ingest.count())
		})
	}
}

func TestDispatch_MergesPersistedLeadBeneathExtra(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.store.Set(context.Background(), config.KeyLeadPayload,
		`{"name":"Ana Paula","email":"ana@example.com","phone":"11987654321","gender":"f"}`, 0)

	payload := f.dispatcher.Dispatch(context.Background(), "view_thank_you", page(), map[string]any{
		"email": "override@example.com",
		"page":  "thank-you",
	})

	assert.Equal(t, "Ana Paula", payload.Field("name"))
	assert.Equal(t, "override@example.com", payload.Field("email")) // caller wins
	assert.Equal(t, "11987654321", payload.Field("phone"))
	assert.Equal(t, "thank-you", payload.Field("page"))

	sent := f.ingest.lastEvent()
	require.NotNil(t, sent.Lead)
	assert.Equal(t, "Ana", sent.Lead.FirstName)
	assert.Equal(t, "Paula", sent.Lead.LastName)
	assert.Equal(t, "f", sent.Lead.Gender)
	require.NotNil(t, sent.Cookies)
	assert.Equal(t, "override@example.com", sent.Cookies.LeadEmail)
}

func TestDispatch_EmptyLeadBlocksOmitted(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.dispatcher.Dispatch(context.Background(), "PageView", page(), nil)

	sent := f.ingest.lastEvent()
	assert.Nil(t, sent.Lead)
	assert.Nil(t, sent.Cookies)
}

func TestDispatch_ClickIDsAttached(t *testing.T) {
	t.Parallel()

	jar, err := storage.NewFileJar(t.TempDir() + "/jar.json")
	require.NoError(t, err)
	jar.SetCookie("_fbp", "fb.1.1700000000.999", 0)

	f := newFixture(func(o *Options) { o.Jar = jar })

	p := page()
	p.Query.Set("fbclid", "click-abc")
	f.dispatcher.Dispatch(context.Background(), "Lead", p, nil)

	sent := f.ingest.lastEvent()
	assert.Equal(t, "fb.1.1700000000.999", sent.FBP)
	assert.Contains(t, sent.FBC, ".click-abc")
}
