package storage

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// Jar is the cookie surface the cookie tier writes through. In serve mode it
// is bound to one HTTP exchange (request cookies in, Set-Cookie out); in CLI
// mode a file-backed jar stands in.
type Jar interface {
	Cookie(name string) (string, bool)
	SetCookie(name, value string, ttl time.Duration)
	DeleteCookie(name string)
}

// CookieTier adapts a Jar to the Tier interface.
type CookieTier struct {
	jar Jar
}

// NewCookie wraps a jar as a storage tier.
func NewCookie(jar Jar) *CookieTier {
	return &CookieTier{jar: jar}
}

func (c *CookieTier) Get(_ context.Context, key string) (string, error) {
	v, ok := c.jar.Cookie(key)
	if !ok {
		return "", nil
	}
	return v, nil
}

func (c *CookieTier) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.jar.SetCookie(key, value, ttl)
	return nil
}

func (c *CookieTier) Delete(_ context.Context, key string) error {
	c.jar.DeleteCookie(key)
	return nil
}

type fileJarEntry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// FileJar is a JSON-file cookie jar for CLI mode. Every mutation is flushed
// to disk; load and flush errors surface through Err so the tiered store can
// log and skip the tier.
type FileJar struct {
	mu      sync.Mutex
	path    string
	entries map[string]fileJarEntry
	err     error
}

// NewFileJar loads (or creates) a jar at path.
func NewFileJar(path string) (*FileJar, error) {
	j := &FileJar{path: path, entries: make(map[string]fileJarEntry)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return j, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "storage: read cookie jar %s", path)
	}
	if err := json.Unmarshal(data, &j.entries); err != nil {
		// A corrupt jar starts fresh rather than blocking the flow.
		j.entries = make(map[string]fileJarEntry)
	}
	return j, nil
}

func (j *FileJar) Cookie(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.entries[name]
	if !ok {
		return "", false
	}
	if !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt) {
		delete(j.entries, name)
		j.flush()
		return "", false
	}
	return e.Value, true
}

func (j *FileJar) SetCookie(name, value string, ttl time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e := fileJarEntry{Value: value}
	if ttl > 0 {
		e.ExpiresAt = time.Now().Add(ttl)
	}
	j.entries[name] = e
	j.flush()
}

func (j *FileJar) DeleteCookie(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.entries, name)
	j.flush()
}

// Err returns the last flush failure, if any.
func (j *FileJar) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *FileJar) flush() {
	data, err := json.MarshalIndent(j.entries, "", "  ")
	if err != nil {
		j.err = eris.Wrap(err, "storage: marshal cookie jar")
		return
	}
	j.err = eris.Wrapf(os.WriteFile(j.path, data, 0o600), "storage: write cookie jar %s", j.path)
}
