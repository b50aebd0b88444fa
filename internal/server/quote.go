package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/iwvelando/tank-quote/pkg/constants"
	"go.uber.org/zap"
)

func (h *handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleQuote"

	body, ok := h.readBody(w, r, op)
	if !ok {
		return
	}

	resp, err := h.upstream.Do(r.Context(), http.MethodPost,
		h.upstream.Endpoint(requestOrigin(r), "/quote"), body, constants.ContentTypeJSON)
	if err != nil {
		h.log(r).Error("quote proxy error", zap.String("op", op), zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch quote"})
		return
	}
	defer closeBody(h.logger, resp, op)

	if !isSuccess(resp.StatusCode) {
		h.relayUpstreamError(w, r, resp, "Failed to fetch quote", op)
		return
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil || !json.Valid(payload) {
		h.log(r).Error("backend quote response unusable",
			zap.String("op", op),
			zap.Int("bytes", len(payload)),
			zap.Error(err),
		)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch quote"})
		return
	}
	h.writeRaw(w, resp.StatusCode, constants.ContentTypeJSON, payload)
}
