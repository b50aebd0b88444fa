package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/iwvelando/tank-quote/internal/backend"
	"github.com/iwvelando/tank-quote/pkg/constants"
	"github.com/iwvelando/tank-quote/pkg/testutil"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T, routes map[string]http.HandlerFunc) (http.Handler, *testutil.Backend) {
	t.Helper()
	b := testutil.NewBackend(t, routes)
	client, err := backend.New(b.URL, 0)
	if err != nil {
		t.Fatalf("backend.New() error = %v", err)
	}
	return NewHandler(Options{Logger: zap.NewNop(), Backend: client, Version: "test"}), b
}

func perform(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestHandleVersion(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rr := perform(h, http.MethodGet, "/api/version", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := decodeBody(t, rr)["version"]; got != "test" {
		t.Fatalf("expected version test, got %v", got)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	rr := perform(h, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("unexpected health response: %d %q", rr.Code, rr.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rr := perform(h, http.MethodGet, "/api/version", "")
	if rr.Header().Get(constants.RequestIDHeader) == "" {
		t.Fatal("expected a generated request ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	req.Header.Set(constants.RequestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get(constants.RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected caller's request ID to be kept, got %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rr := perform(h, http.MethodGet, "/api/quote", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rr.Code)
	}
}

func TestMaterialsAllCandidatesFail(t *testing.T) {
	h, b := newTestHandler(t, map[string]http.HandlerFunc{
		"GET /materials": testutil.Respond(http.StatusOK, "text/html", "<html></html>"),
		"GET /pricing":   testutil.JSON(http.StatusInternalServerError, `{"error":"down"}`),
	})

	rr := perform(h, http.MethodGet, "/api/materials", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"materials":{}}` {
		t.Fatalf("expected empty materials, got %s", rr.Body.String())
	}

	want := []string{"/materials", "/pricing", constants.LegacyPricingPath}
	got := b.Paths()
	if len(got) != len(want) {
		t.Fatalf("expected candidates %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected candidates %v, got %v", want, got)
		}
	}
}

func TestMaterialsBackendUnreachable(t *testing.T) {
	h, b := newTestHandler(t, nil)
	b.Close()

	rr := perform(h, http.MethodGet, "/api/materials", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"materials":{}}` {
		t.Fatalf("expected empty materials, got %s", rr.Body.String())
	}
}

func TestMaterialsFallbackAndNormalization(t *testing.T) {
	tests := []struct {
		name   string
		routes map[string]http.HandlerFunc
	}{
		{
			name: "pricing envelope",
			routes: map[string]http.HandlerFunc{
				"GET /pricing": testutil.JSON(http.StatusOK, `{"materials":{"a36":{"name":"A36","density_lb_per_in3":0.284,"price_per_lb":1.1}},"labor":{}}`),
			},
		},
		{
			name: "bare legacy map",
			routes: map[string]http.HandlerFunc{
				"GET " + constants.LegacyPricingPath: testutil.JSON(http.StatusOK, `{"a36":{"name":"A36","density_lb_per_in3":0.284,"price_per_lb":1.1},"version":2}`),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, tt.routes)
			rr := perform(h, http.MethodGet, "/api/materials", "")
			if rr.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rr.Code)
			}

			var resp struct {
				Materials map[string]map[string]interface{} `json:"materials"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(resp.Materials) != 1 {
				t.Fatalf("expected exactly one material, got %v", resp.Materials)
			}
			a36 := resp.Materials["a36"]
			if a36["name"] != "A36" || a36["density_lb_per_in3"] != 0.284 || a36["price_per_lb"] != 1.1 {
				t.Fatalf("unexpected material entry: %v", a36)
			}
		})
	}
}

func TestPricingGet(t *testing.T) {
	h, _ := newTestHandler(t, map[string]http.HandlerFunc{
		"GET " + constants.LegacyPricingPath: testutil.JSON(http.StatusOK, `{"defaults":{"material_key":"a36"}}`),
	})

	rr := perform(h, http.MethodGet, "/api/pricing", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := decodeBody(t, rr)["defaults"].(map[string]interface{})["material_key"]; got != "a36" {
		t.Fatalf("expected relayed pricing, got %s", rr.Body.String())
	}

	h, _ = newTestHandler(t, nil)
	rr = perform(h, http.MethodGet, "/api/pricing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if got := decodeBody(t, rr)["error"]; got != "Pricing not found" {
		t.Fatalf("unexpected error %v", got)
	}
}

func TestPricingPut(t *testing.T) {
	h, b := newTestHandler(t, map[string]http.HandlerFunc{
		"PUT /pricing": testutil.JSON(http.StatusOK, `{"ok":true}`),
	})

	rr := perform(h, http.MethodPut, "/api/pricing", `{"labor":{"shop_rate_per_hour":95}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	reqs := b.Requests()
	if len(reqs) != 1 || string(reqs[0].Body) != `{"labor":{"shop_rate_per_hour":95}}` {
		t.Fatalf("expected body to be forwarded, got %+v", reqs)
	}
	if reqs[0].ContentType != constants.ContentTypeJSON {
		t.Fatalf("expected JSON content type upstream, got %q", reqs[0].ContentType)
	}

	h, _ = newTestHandler(t, map[string]http.HandlerFunc{
		"PUT /pricing": testutil.Respond(http.StatusUnprocessableEntity, "text/plain", "labor rate must be positive"),
	})
	rr = perform(h, http.MethodPut, "/api/pricing", `{}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected backend status 422, got %d", rr.Code)
	}
	if got := decodeBody(t, rr)["error"]; got != "labor rate must be positive" {
		t.Fatalf("expected verbatim backend error, got %v", got)
	}
}

func TestQuoteProxy(t *testing.T) {
	h, b := newTestHandler(t, map[string]http.HandlerFunc{
		"POST /quote": testutil.JSON(http.StatusOK, `{"total":1234.5,"line_items":[]}`),
	})

	rr := perform(h, http.MethodPost, "/api/quote", `{"diameter":96,"height":120}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := decodeBody(t, rr)["total"]; got != 1234.5 {
		t.Fatalf("expected relayed total, got %v", got)
	}
	if reqs := b.Requests(); len(reqs) != 1 || string(reqs[0].Body) != `{"diameter":96,"height":120}` {
		t.Fatalf("expected params to be forwarded, got %+v", reqs)
	}
}

func TestQuoteProxyErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantError  string
	}{
		{
			name:       "backend text relayed",
			handler:    testutil.Respond(http.StatusBadRequest, "text/plain", "diameter out of range"),
			wantStatus: http.StatusBadRequest,
			wantError:  "diameter out of range",
		},
		{
			name:       "empty backend body",
			handler:    testutil.Respond(http.StatusBadGateway, "", ""),
			wantStatus: http.StatusBadGateway,
			wantError:  "Failed to fetch quote",
		},
		{
			name:       "malformed success body",
			handler:    testutil.JSON(http.StatusOK, `{"total":`),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to fetch quote",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, map[string]http.HandlerFunc{"POST /quote": tt.handler})
			rr := perform(h, http.MethodPost, "/api/quote", `{}`)
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if got := decodeBody(t, rr)["error"]; got != tt.wantError {
				t.Fatalf("expected error %q, got %v", tt.wantError, got)
			}
		})
	}
}

func TestBodyTooLarge(t *testing.T) {
	b := testutil.NewBackend(t, nil)
	client, _ := backend.New(b.URL, 0)
	h := NewHandler(Options{Backend: client, MaxBodySize: 16})

	rr := perform(h, http.MethodPost, "/api/quote", `{"diameter":96,"height":120}`)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", rr.Code)
	}
	if len(b.Requests()) != 0 {
		t.Fatal("oversized body must not reach the backend")
	}
}

func TestPresetList(t *testing.T) {
	h, _ := newTestHandler(t, map[string]http.HandlerFunc{
		"GET /presets": testutil.Respond(http.StatusOK, "application/json", ""),
	})
	rr := perform(h, http.MethodGet, "/api/presets", "")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"presets":{}}` {
		t.Fatalf("expected empty presets default, got %d %s", rr.Code, rr.Body.String())
	}

	h, _ = newTestHandler(t, map[string]http.HandlerFunc{
		"GET /presets": testutil.JSON(http.StatusServiceUnavailable, `{"error":"db offline"}`),
	})
	rr = perform(h, http.MethodGet, "/api/presets", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected backend status, got %d", rr.Code)
	}
	if got := decodeBody(t, rr)["error"]; got != "db offline" {
		t.Fatalf("expected relayed error, got %v", got)
	}
}

func TestPresetItemEncodesName(t *testing.T) {
	h, b := newTestHandler(t, map[string]http.HandlerFunc{
		"PUT /presets/{name}":    testutil.JSON(http.StatusOK, `{"saved":true}`),
		"GET /presets/{name}":    testutil.JSON(http.StatusOK, `{"name":"x","params":{}}`),
		"DELETE /presets/{name}": testutil.Respond(http.StatusNoContent, "", ""),
	})

	rr := perform(h, http.MethodPut, "/api/presets/My%20Tank%2F2", `{"diameter":96,"height":120}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	reqs := b.Requests()
	if reqs[0].EscapedPath != "/presets/My%20Tank%2F2" {
		t.Fatalf("expected encoded name upstream, got %q", reqs[0].EscapedPath)
	}
	if string(reqs[0].Body) != `{"diameter":96,"height":120}` {
		t.Fatalf("expected params forwarded, got %s", reqs[0].Body)
	}

	rr = perform(h, http.MethodGet, "/api/presets/x", "")
	if rr.Code != http.StatusOK || decodeBody(t, rr)["name"] != "x" {
		t.Fatalf("unexpected get response: %d %s", rr.Code, rr.Body.String())
	}

	rr = perform(h, http.MethodDelete, "/api/presets/x", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected relayed 204, got %d", rr.Code)
	}
}

func TestPresetItemEmptyName(t *testing.T) {
	h, b := newTestHandler(t, nil)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rr := perform(h, method, "/api/presets/", "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", method, rr.Code)
		}
		if got := decodeBody(t, rr)["error"]; got != "Preset name is required" {
			t.Fatalf("%s: unexpected error %v", method, got)
		}
	}
	if len(b.Requests()) != 0 {
		t.Fatal("empty names must fail before reaching the backend")
	}
}

func TestPresetItemBackendDown(t *testing.T) {
	h, b := newTestHandler(t, nil)
	b.Close()

	rr := perform(h, http.MethodDelete, "/api/presets/x", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	if got := decodeBody(t, rr)["error"]; got != "Failed to delete preset" {
		t.Fatalf("unexpected error %v", got)
	}
}

func TestGenerateStepSynthesizesLinks(t *testing.T) {
	h, _ := newTestHandler(t, map[string]http.HandlerFunc{
		"POST /generate-step": testutil.JSON(http.StatusOK, `{"file_path":"/out/x.step"}`),
	})

	rr := perform(h, http.MethodPost, "/api/generate-step", `{"diameter":96,"height":120}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	resp := decodeBody(t, rr)
	if resp["download_url"] != "/api/download-step?path=%2Fout%2Fx.step" {
		t.Fatalf("unexpected download_url %v", resp["download_url"])
	}
	if resp["view_url"] != "/generated/x.step" {
		t.Fatalf("unexpected view_url %v", resp["view_url"])
	}
	if resp["filename"] != "x.step" {
		t.Fatalf("unexpected filename %v", resp["filename"])
	}
}

func TestGenerateStepLinkVariants(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantDownload string
		wantView     string
	}{
		{
			name:         "relative path with explicit filename",
			body:         `{"path":"cadmodels/output/abc.step","filename":"tank-96x120.step"}`,
			wantDownload: "/api/download-step?path=%2Fcadmodels%2Foutput%2Fabc.step",
			wantView:     "/generated/tank-96x120.step",
		},
		{
			name:         "unsafe filename falls back to the path",
			body:         `{"file_path":"/cadmodels/output/abc.step","filename":"tank 01.step"}`,
			wantDownload: "/api/download-step?path=%2Fcadmodels%2Foutput%2Fabc.step",
			wantView:     "/generated/abc.step",
		},
		{
			name:         "unsafe filename and path segment are sanitized",
			body:         `{"file_path":"/cadmodels/output/tank 01.step","filename":"../x"}`,
			wantDownload: "/api/download-step?path=%2Fcadmodels%2Foutput%2Ftank%2001.step",
			wantView:     "/generated/tank01.step",
		},
		{
			name:         "path without a file name",
			body:         `{"file_path":"/"}`,
			wantDownload: "/api/download-step?path=%2F",
			wantView:     "/generated/tank.step",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, map[string]http.HandlerFunc{
				"POST /generate-step": testutil.JSON(http.StatusOK, tt.body),
			})
			resp := decodeBody(t, perform(h, http.MethodPost, "/api/generate-step", `{}`))
			if resp["download_url"] != tt.wantDownload || resp["view_url"] != tt.wantView {
				t.Fatalf("unexpected links %v", resp)
			}
			if rr := perform(h, http.MethodGet, tt.wantView, ""); rr.Code == http.StatusBadRequest {
				t.Fatalf("view_url %s rejected by the viewer route", tt.wantView)
			}
		})
	}
}

func TestGenerateStepPassthroughJSON(t *testing.T) {
	h, _ := newTestHandler(t, map[string]http.HandlerFunc{
		"POST /generate-step": testutil.JSON(http.StatusOK, `{"download_url":"https://cdn.example/x.step","filename":"x.step"}`),
	})

	rr := perform(h, http.MethodPost, "/api/generate-step", `{}`)
	resp := decodeBody(t, rr)
	if rr.Code != http.StatusOK || resp["download_url"] != "https://cdn.example/x.step" {
		t.Fatalf("expected download_url to pass through, got %d %v", rr.Code, resp)
	}
	if _, ok := resp["view_url"]; ok {
		t.Fatalf("passthrough must not invent a view_url: %v", resp)
	}

	h, _ = newTestHandler(t, map[string]http.HandlerFunc{
		"POST /generate-step": testutil.JSON(http.StatusUnprocessableEntity, `{"error":"roof slope too steep"}`),
	})
	rr = perform(h, http.MethodPost, "/api/generate-step", `{}`)
	if rr.Code != http.StatusUnprocessableEntity || decodeBody(t, rr)["error"] != "roof slope too steep" {
		t.Fatalf("expected error passthrough, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestGenerateStepStreamsBinary(t *testing.T) {
	h, _ := newTestHandler(t, map[string]http.HandlerFunc{
		"POST /generate-step": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/step")
			w.Header().Set("Content-Disposition", `attachment; filename="tank.step"`)
			_, _ = w.Write([]byte("ISO-10303-21;"))
		},
	})

	rr := perform(h, http.MethodPost, "/api/generate-step", `{}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "application/step" {
		t.Fatalf("expected content type to be preserved, got %q", rr.Header().Get("Content-Type"))
	}
	if rr.Header().Get("Content-Disposition") != `attachment; filename="tank.step"` {
		t.Fatalf("expected disposition to be preserved, got %q", rr.Header().Get("Content-Disposition"))
	}
	if rr.Body.String() != "ISO-10303-21;" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestDownloadStepRejectsBadPaths(t *testing.T) {
	h, b := newTestHandler(t, nil)

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{name: "missing path", query: "", wantStatus: http.StatusBadRequest},
		{name: "traversal", query: "?path=" + url.QueryEscape("/../etc/passwd"), wantStatus: http.StatusBadRequest},
		{name: "raw traversal", query: "?path=/../etc/passwd", wantStatus: http.StatusBadRequest},
		{name: "double encoded traversal", query: "?path=%252F..%252Fetc%252Fpasswd", wantStatus: http.StatusBadRequest},
		{name: "relative traversal", query: "?path=" + url.QueryEscape("cadmodels/../../secret"), wantStatus: http.StatusBadRequest},
		{name: "foreign origin", query: "?path=" + url.QueryEscape("http://evil.example/x.step"), wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := perform(h, http.MethodGet, "/api/download-step"+tt.query, "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
				t.Fatal("expected CORS headers on error responses")
			}
		})
	}
	if len(b.Requests()) != 0 {
		t.Fatalf("rejected paths must not reach the backend, got %v", b.Paths())
	}
}

func TestDownloadStepRelativeBaseIgnoresRequestHost(t *testing.T) {
	var hit atomic.Bool
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit.Store(true)
		_, _ = w.Write([]byte("internal-secret"))
	}))
	t.Cleanup(other.Close)
	otherHost := strings.TrimPrefix(other.URL, "http://")

	relative, err := backend.New("/backend", 0)
	if err != nil {
		t.Fatalf("backend.New() error = %v", err)
	}
	h := NewHandler(Options{Logger: zap.NewNop(), Backend: relative})

	req := httptest.NewRequest(http.MethodGet,
		"/api/download-step?path="+url.QueryEscape(other.URL+"/admin/secret"), nil)
	req.Host = otherHost
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d: %s", rr.Code, rr.Body.String())
	}
	if hit.Load() {
		t.Fatal("absolute URL matching the request Host must not be fetched")
	}

	// A configured public origin replaces the request Host.
	b := testutil.NewBackend(t, map[string]http.HandlerFunc{
		"GET /backend/cadmodels/output/tank.step": testutil.Respond(http.StatusOK, "model/step", "ISO-10303-21;"),
	})
	pinned, _ := backend.New("/backend", 0)
	if _, err := pinned.WithPublicOrigin(b.URL); err != nil {
		t.Fatalf("WithPublicOrigin() error = %v", err)
	}
	h = NewHandler(Options{Logger: zap.NewNop(), Backend: pinned})

	req = httptest.NewRequest(http.MethodGet,
		"/api/download-step?path="+url.QueryEscape(other.URL+"/admin/secret"), nil)
	req.Host = otherHost
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden || hit.Load() {
		t.Fatalf("expected foreign origin to be refused, got %d (hit=%v)", rr.Code, hit.Load())
	}

	req = httptest.NewRequest(http.MethodGet,
		"/api/download-step?path="+url.QueryEscape(b.URL+"/backend/cadmodels/output/tank.step"), nil)
	req.Host = otherHost
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "ISO-10303-21;" {
		t.Fatalf("expected public-origin URL to be served, got %d: %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet,
		"/api/download-step?path="+url.QueryEscape("/cadmodels/output/tank.step"), nil)
	req.Host = otherHost
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected relative path to resolve against the public origin, got %d", rr.Code)
	}
	if hit.Load() {
		t.Fatal("request Host must not receive backend calls")
	}
}

func TestDownloadStepForwardsAllowedPath(t *testing.T) {
	h, b := newTestHandler(t, map[string]http.HandlerFunc{
		"GET /cadmodels/output/tank.step": testutil.Respond(http.StatusOK, "model/step", "ISO-10303-21;"),
	})

	rr := perform(h, http.MethodGet, "/api/download-step?path="+url.QueryEscape("/cadmodels/output/tank.step"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "ISO-10303-21;" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="tank.step"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if got := rr.Header().Get("Content-Type"); got != constants.ContentTypeBinary {
		t.Fatalf("unexpected content type %q", got)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected permissive CORS")
	}
	if paths := b.Paths(); len(paths) != 1 || paths[0] != "/cadmodels/output/tank.step" {
		t.Fatalf("unexpected upstream paths %v", paths)
	}

	// Absolute URLs on the backend origin are honored too.
	rr = perform(h, http.MethodGet, "/api/download-step?path="+url.QueryEscape(b.URL+"/cadmodels/output/tank.step"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected same-origin absolute URL to be accepted, got %d", rr.Code)
	}

	rr = perform(h, http.MethodGet, "/api/download-step?path="+url.QueryEscape("/cadmodels/output/missing.step"), "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestDownloadStepPreflight(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	rr := perform(h, http.MethodOptions, "/api/download-step", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Methods") != constants.CORSAllowedMethods {
		t.Fatalf("unexpected CORS methods %q", rr.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestOutputFileFilenameAllowList(t *testing.T) {
	h, b := newTestHandler(t, map[string]http.HandlerFunc{
		"GET /cadmodels/output/tank_01.step": testutil.Respond(http.StatusOK, "model/step", "ISO-10303-21;"),
	})

	for _, target := range []string{"/generated/..%2Fsecret", "/generated/a%2Fb.step", "/cadmodels/output/..%2Fsecret", "/generated/", "/generated/tank%2001.step"} {
		rr := perform(h, http.MethodGet, target, "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", target, rr.Code)
		}
	}
	if len(b.Requests()) != 0 {
		t.Fatalf("rejected filenames must not reach the backend, got %v", b.Paths())
	}

	for _, route := range []struct {
		target      string
		disposition string
	}{
		{target: "/generated/tank_01.step", disposition: `inline; filename="tank_01.step"`},
		{target: "/cadmodels/output/tank_01.step", disposition: `attachment; filename="tank_01.step"`},
	} {
		rr := perform(h, http.MethodGet, route.target, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", route.target, rr.Code)
		}
		if rr.Header().Get("Cache-Control") != constants.FileCacheControl {
			t.Fatalf("%s: unexpected cache control %q", route.target, rr.Header().Get("Cache-Control"))
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Fatalf("%s: expected CORS header", route.target)
		}
		if rr.Header().Get("Content-Type") != "model/step" {
			t.Fatalf("%s: expected backend content type, got %q", route.target, rr.Header().Get("Content-Type"))
		}
		if rr.Header().Get("Content-Disposition") != route.disposition {
			t.Fatalf("%s: unexpected disposition %q", route.target, rr.Header().Get("Content-Disposition"))
		}
	}
	for _, p := range b.Paths() {
		if p != "/cadmodels/output/tank_01.step" {
			t.Fatalf("unexpected upstream path %q", p)
		}
	}
}

func TestOutputFileInfersContentType(t *testing.T) {
	h, _ := newTestHandler(t, map[string]http.HandlerFunc{
		"GET /cadmodels/output/part.stp": func(w http.ResponseWriter, r *http.Request) {
			w.Header()["Content-Type"] = nil
			_, _ = w.Write([]byte("ISO-10303-21;"))
		},
	})

	rr := perform(h, http.MethodGet, "/generated/part.stp", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != constants.ContentTypeStep {
		t.Fatalf("expected inferred STEP content type, got %q", got)
	}
}

func TestOutputFileBackendMissing(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rr := perform(h, http.MethodGet, "/generated/nothing.step", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestInferContentType(t *testing.T) {
	tests := map[string]string{
		"a.step": constants.ContentTypeStep,
		"a.STP":  constants.ContentTypeStep,
		"a":      constants.ContentTypeBinary,
		"a.zzzq": constants.ContentTypeBinary,
	}
	for name, want := range tests {
		if got := inferContentType(name); got != want {
			t.Errorf("inferContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestConcurrentQuotes(t *testing.T) {
	h, b := newTestHandler(t, map[string]http.HandlerFunc{
		"POST /quote": func(w http.ResponseWriter, r *http.Request) {
			var params map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&params)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"total": params["diameter"]})
		},
	})

	const workers = 32
	errs := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rr := perform(h, http.MethodPost, "/api/quote", fmt.Sprintf(`{"diameter":%d,"height":10}`, i+1))
			var resp map[string]float64
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || rr.Code != http.StatusOK || resp["total"] != float64(i+1) {
				errs <- fmt.Sprintf("request %d: status %d body %s", i, rr.Code, rr.Body.String())
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
	if got := len(b.Requests()); got != workers {
		t.Fatalf("expected %d backend requests, got %d", workers, got)
	}
}
