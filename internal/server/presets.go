package server

import (
	"io"
	"net/http"

	"github.com/iwvelando/tank-quote/internal/backend"
	"github.com/iwvelando/tank-quote/pkg/constants"
	"go.uber.org/zap"
)

func (h *handler) handlePresetList(w http.ResponseWriter, r *http.Request) {
	const op = "server.handlePresetList"

	resp, err := h.upstream.Get(r.Context(), h.upstream.Endpoint(requestOrigin(r), "/presets"))
	if err != nil {
		h.log(r).Error("preset list proxy error", zap.String("op", op), zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to load presets"})
		return
	}
	defer closeBody(h.logger, resp, op)

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		h.respondErrorWithOp(w, r, http.StatusInternalServerError, "Failed to load presets", op)
		return
	}

	if !isSuccess(resp.StatusCode) {
		h.log(r).Error("preset list error",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", payload),
		)
		if len(payload) == 0 {
			payload = []byte(`{"error":"Failed to load presets"}`)
		}
		h.writeRaw(w, resp.StatusCode, constants.ContentTypeJSON, payload)
		return
	}

	if len(payload) == 0 {
		payload = []byte(`{"presets":{}}`)
	}
	h.writeRaw(w, http.StatusOK, constants.ContentTypeJSON, payload)
}

var presetFailures = map[string]string{
	http.MethodGet:    "Failed to load preset",
	http.MethodPut:    "Failed to save preset",
	http.MethodDelete: "Failed to delete preset",
}

func (h *handler) handlePreset(w http.ResponseWriter, r *http.Request) {
	const op = "server.handlePreset"

	name := r.PathValue("name")
	if name == "" {
		h.respondErrorWithOp(w, r, http.StatusBadRequest, "Preset name is required", op)
		return
	}
	target := h.upstream.Endpoint(requestOrigin(r), "/presets/"+backend.EscapeComponent(name))

	var body []byte
	var contentType string
	if r.Method == http.MethodPut {
		var ok bool
		if body, ok = h.readBody(w, r, op); !ok {
			return
		}
		contentType = constants.ContentTypeJSON
	}

	resp, err := h.upstream.Do(r.Context(), r.Method, target, body, contentType)
	if err != nil {
		h.log(r).Error("preset proxy error",
			zap.String("op", op),
			zap.String("method", r.Method),
			zap.String("preset", name),
			zap.Error(err),
		)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": presetFailures[r.Method]})
		return
	}
	defer closeBody(h.logger, resp, op)

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		h.respondErrorWithOp(w, r, http.StatusInternalServerError, presetFailures[r.Method], op)
		return
	}

	relayType := resp.Header.Get("Content-Type")
	if relayType == "" {
		relayType = constants.ContentTypeJSON
	}
	h.writeRaw(w, resp.StatusCode, relayType, payload)
}
