package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCompression_GzipsJSON(t *testing.T) {
	h := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total_patients":3}`))
	}))

	rec := serve(h, http.MethodGet, "/api/metrics", map[string]string{"Accept-Encoding": "gzip"})
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Contains(t, rec.Header().Values("Vary"), "Accept-Encoding")

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_patients":3}`, string(body))
}

func TestCompression_SkipsNoContentAndStreams(t *testing.T) {
	noContent := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := serve(noContent, http.MethodDelete, "/api/patients/p-1", map[string]string{"Accept-Encoding": "gzip"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Zero(t, rec.Body.Len())

	stream := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: connected\ndata: {}\n\n"))
	}))
	rec = serve(stream, http.MethodGet, "/api/stream/warnings", map[string]string{"Accept-Encoding": "gzip"})
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "event: connected\ndata: {}\n\n", rec.Body.String())
}

func TestNoStore_OnlyAPIPaths(t *testing.T) {
	h := NoStore(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := serve(h, http.MethodGet, "/api/patients", nil)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = serve(h, http.MethodGet, "/health", nil)
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestCORSMiddleware(t *testing.T) {
	called := false
	h := CORSMiddleware([]string{"https://dashboard.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := serve(h, http.MethodOptions, "/api/patients", map[string]string{"Origin": "https://dashboard.example"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dashboard.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)

	rec = serve(h, http.MethodGet, "/api/patients", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, called)
}
