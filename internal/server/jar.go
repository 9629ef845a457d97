package server

import (
	"net/http"
	"net/url"
	"time"
)

// httpJar exposes one request/response pair as a cookie jar. Reads come from
// the request; writes become Set-Cookie headers on the response, shadowed
// locally so a value written earlier in the same request reads back.
type httpJar struct {
	r       *http.Request
	w       http.ResponseWriter
	written map[string]string
	deleted map[string]bool
	now     func() time.Time
}

func newHTTPJar(w http.ResponseWriter, r *http.Request, now func() time.Time) *httpJar {
	return &httpJar{
		r:       r,
		w:       w,
		written: map[string]string{},
		deleted: map[string]bool{},
		now:     now,
	}
}

func (j *httpJar) Cookie(name string) (string, bool) {
	if j.deleted[name] {
		return "", false
	}
	if v, ok := j.written[name]; ok {
		return v, true
	}
	c, err := j.r.Cookie(name)
	if err != nil {
		return "", false
	}
	v, err := url.QueryUnescape(c.Value)
	if err != nil {
		return "", false
	}
	return v, true
}

func (j *httpJar) SetCookie(name, value string, ttl time.Duration) {
	j.written[name] = value
	delete(j.deleted, name)

	c := &http.Cookie{
		Name:     name,
		Value:    url.QueryEscape(value),
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		c.Expires = j.now().Add(ttl)
		c.MaxAge = int(ttl / time.Second)
	}
	http.SetCookie(j.w, c)
}

func (j *httpJar) DeleteCookie(name string) {
	delete(j.written, name)
	j.deleted[name] = true
	http.SetCookie(j.w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
}
