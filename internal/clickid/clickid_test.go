package clickid

import (
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memJar struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemJar() *memJar { return &memJar{m: make(map[string]string)} }

func (j *memJar) Cookie(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	v, ok := j.m[name]
	return v, ok
}

func (j *memJar) SetCookie(name, value string, _ time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.m[name] = value
}

func (j *memJar) DeleteCookie(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.m, name)
}

func TestResolve_ExistingCookies(t *testing.T) {
	t.Parallel()

	jar := newMemJar()
	jar.SetCookie("_fbp", "fb.1.1700000000.12345", 0)
	jar.SetCookie("_fbc", "fb.1.1700000000.abc", 0)

	ids := Resolve(jar, url.Values{"fbclid": {"ignored"}})
	assert.Equal(t, "fb.1.1700000000.12345", ids.FBP)
	assert.Equal(t, "fb.1.1700000000.abc", ids.FBC)
}

func TestResolve_SynthesizesFBCFromClickID(t *testing.T) {
	t.Parallel()

	jar := newMemJar()
	ids := Resolve(jar, url.Values{"fbclid": {"XyZ123"}})

	require.True(t, strings.HasPrefix(ids.FBC, "fb.1."))
	assert.True(t, strings.HasSuffix(ids.FBC, ".XyZ123"))

	// Persisted so the next resolution reuses it.
	persisted, ok := jar.Cookie("_fbc")
	require.True(t, ok)
	assert.Equal(t, ids.FBC, persisted)
}

func TestResolve_NothingAvailable(t *testing.T) {
	t.Parallel()

	ids := Resolve(newMemJar(), url.Values{})
	assert.Empty(t, ids.FBP)
	assert.Empty(t, ids.FBC)
}
