// Package server implements the proxy routes that sit between the browser
// and the quoting backend.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/tank-quote/internal/backend"
	"github.com/iwvelando/tank-quote/internal/telemetry"
	"github.com/iwvelando/tank-quote/pkg/constants"
	"go.uber.org/zap"
)

type handler struct {
	logger      *zap.Logger
	upstream    *backend.Client
	metrics     telemetry.Recorder
	maxBodySize int64
	version     string
}

// Options configures NewHandler. Backend is required.
type Options struct {
	Logger      *zap.Logger
	Backend     *backend.Client
	Metrics     telemetry.Recorder
	MaxBodySize int64
	Version     string
}

// NewHandler constructs the HTTP handler that serves the proxy API and the
// generated-file routes.
func NewHandler(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewNoOpRecorder()
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = constants.DefaultMaxBodySizeBytes
	}

	trimmedVersion := strings.TrimSpace(opts.Version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{
		logger:      opts.Logger,
		upstream:    opts.Backend,
		metrics:     opts.Metrics,
		maxBodySize: opts.MaxBodySize,
		version:     trimmedVersion,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/version", h.handleVersion)

	// Materials and pricing
	mux.HandleFunc("GET /api/materials", h.instrument("materials", h.handleMaterials))
	mux.HandleFunc("GET /api/pricing", h.instrument("pricing", h.handlePricingGet))
	mux.HandleFunc("PUT /api/pricing", h.instrument("pricing", h.handlePricingPut))

	mux.HandleFunc("POST /api/quote", h.instrument("quote", h.handleQuote))

	// Presets
	mux.HandleFunc("GET /api/presets", h.instrument("presets", h.handlePresetList))
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		mux.HandleFunc(method+" /api/presets/{name}", h.instrument("preset", h.handlePreset))
		mux.HandleFunc(method+" /api/presets/{$}", h.instrument("preset", h.handlePreset))
	}

	// STEP generation and download
	mux.HandleFunc("POST /api/generate-step", h.instrument("generate-step", h.handleGenerateStep))
	mux.HandleFunc("GET "+constants.DownloadStepRoute, h.instrument("download-step", h.handleDownloadStep))
	mux.HandleFunc("OPTIONS "+constants.DownloadStepRoute, h.handlePreflight)

	// Generated output files for the viewer
	for _, route := range []struct {
		prefix      string
		disposition string
	}{
		{prefix: constants.GeneratedRoute, disposition: "inline"},
		{prefix: constants.CadOutputRoute, disposition: "attachment"},
	} {
		serve := h.instrument("output-file", h.serveOutputFile(route.disposition))
		mux.HandleFunc("GET "+route.prefix+"{filename}", serve)
		mux.HandleFunc("GET "+route.prefix+"{$}", serve)
		mux.HandleFunc("OPTIONS "+route.prefix+"{filename}", h.handlePreflight)
	}

	return h.withRequestID(mux)
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

type requestIDKey struct{}

// withRequestID tags every request with an ID, reusing the caller's when sent.
func (h *handler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(constants.RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(constants.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// log returns the handler logger annotated with the request ID.
func (h *handler) log(r *http.Request) *zap.Logger {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return h.logger.With(zap.String("request_id", id))
	}
	return h.logger
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (h *handler) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		h.metrics.RecordRequest(r.Context(), route, r.Method, status, elapsed)
		h.log(r).Debug("proxied request",
			zap.String("route", route),
			zap.String("method", r.Method),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
		)
	}
}

// requestOrigin returns scheme://host of the incoming request.
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// readBody reads the request body, enforcing the configured size limit.
func (h *handler) readBody(w http.ResponseWriter, r *http.Request, op string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds limit of %d bytes", h.maxBodySize), op)
			return nil, false
		}
		h.respondErrorWithOp(w, r, http.StatusBadRequest, fmt.Sprintf("failed to read request body: %v", err), op)
		return nil, false
	}
	return body, true
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), constants.ContentTypeJSON)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", constants.CORSAllowedMethods)
	w.Header().Set("Access-Control-Allow-Headers", constants.CORSAllowedHeaders)
}

func (h *handler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, r *http.Request, status int, msg string, op string) {
	h.log(r).Error("proxy request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

// relayUpstreamError answers with the backend's status and its body text
// wrapped as {error}, falling back to msg when the body is empty.
func (h *handler) relayUpstreamError(w http.ResponseWriter, r *http.Request, resp *http.Response, msg string, op string) {
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		h.log(r).Warn("failed to read backend error body",
			zap.String("op", op),
			zap.Error(err),
		)
	}
	if len(payload) > 0 {
		msg = string(payload)
	}
	h.respondErrorWithOp(w, r, resp.StatusCode, msg, op)
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", constants.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && h.logger != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *handler) writeRaw(w http.ResponseWriter, status int, contentType string, payload []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(status)
	if len(payload) == 0 || status == http.StatusNoContent || status == http.StatusNotModified {
		return
	}
	if _, err := w.Write(payload); err != nil && h.logger != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}

// stream copies a backend body to the client after headers are written.
func (h *handler) stream(w http.ResponseWriter, r *http.Request, body io.Reader, op string) {
	if _, err := io.Copy(w, body); err != nil {
		h.log(r).Warn("failed to stream backend response",
			zap.String("op", op),
			zap.Error(err),
		)
	}
}

func closeBody(logger *zap.Logger, resp *http.Response, op string) {
	if err := resp.Body.Close(); err != nil && logger != nil {
		logger.Warn("failed to close backend response",
			zap.String("op", op),
			zap.Error(err),
		)
	}
}
