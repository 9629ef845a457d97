package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json", r.URL.Path)
		w.Write([]byte(`{"status":"success","lat":-23.5505,"lon":-46.6333}`))
	}))
	defer srv.Close()

	pos, err := NewClient(srv.URL).Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -23.5505, pos.Latitude)
	assert.Equal(t, -46.6333, pos.Longitude)
	assert.NotZero(t, pos.Accuracy)
}

func TestLocate_Failure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fail","message":"private range"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Locate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private range")
}

func TestLocate_BadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Locate(context.Background())
	require.Error(t, err)
}
