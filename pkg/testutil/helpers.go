// Package testutil provides common utility functions for testing.
package testutil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/iwvelando/tank-quote/internal/tank"
)

// RecordedRequest is one request the fake backend received.
type RecordedRequest struct {
	Method      string
	Path        string
	EscapedPath string
	Query       string
	ContentType string
	Body        []byte
}

// Backend is a fake quoting backend. Routes use http.ServeMux patterns;
// anything unrouted answers 404.
type Backend struct {
	*httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewBackend starts a fake backend serving routes and stops it when the test ends.
func NewBackend(t testing.TB, routes map[string]http.HandlerFunc) *Backend {
	t.Helper()

	mux := http.NewServeMux()
	for pattern, h := range routes {
		mux.HandleFunc(pattern, h)
	}

	b := &Backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.requests = append(b.requests, RecordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			EscapedPath: r.URL.EscapedPath(),
			Query:       r.URL.RawQuery,
			ContentType: r.Header.Get("Content-Type"),
			Body:        body,
		})
		b.mu.Unlock()
		r.Body = io.NopCloser(bytes.NewReader(body))
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.Close)
	return b
}

// Requests returns a copy of every request received so far.
func (b *Backend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]RecordedRequest(nil), b.requests...)
}

// Paths lists the escaped request paths received so far, in order.
func (b *Backend) Paths() []string {
	reqs := b.Requests()
	paths := make([]string, 0, len(reqs))
	for _, r := range reqs {
		paths = append(paths, r.EscapedPath)
	}
	return paths
}

// Respond returns a handler that writes body with the given status and content type.
func Respond(status int, contentType, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// JSON returns a handler that answers with a JSON body.
func JSON(status int, body string) http.HandlerFunc {
	return Respond(status, "application/json", body)
}

// SampleParams returns a representative cone-roof tank with a manway.
func SampleParams() tank.TankParams {
	key := "a36"
	return tank.TankParams{
		Diameter:    96,
		Height:      120,
		RoofType:    tank.RoofCone,
		Manway:      &tank.ManwaySpec{Width: 18, Height: 24},
		MaterialKey: &key,
	}
}

// FindPreset finds a preset by name in list.
// Returns a pointer to the preset if found, nil otherwise.
func FindPreset(list []tank.Preset, name string) *tank.Preset {
	for i := range list {
		if list[i].Name == name {
			return &list[i]
		}
	}
	return nil
}
