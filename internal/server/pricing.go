package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/iwvelando/tank-quote/internal/tank"
	"github.com/iwvelando/tank-quote/pkg/constants"
	"go.uber.org/zap"
)

var (
	// materialCandidates are tried in order; the newest endpoint comes first.
	materialCandidates = []string{"/materials", "/pricing", constants.LegacyPricingPath}
	pricingCandidates  = []string{"/pricing", constants.LegacyPricingPath}

	errNotJSON = errors.New("backend did not return JSON")
)

func (h *handler) handleMaterials(w http.ResponseWriter, r *http.Request) {
	origin := requestOrigin(r)
	for _, candidate := range materialCandidates {
		body, err := h.fetchJSON(r.Context(), h.upstream.Endpoint(origin, candidate))
		if err != nil {
			h.log(r).Debug("materials candidate failed",
				zap.String("op", "server.handleMaterials"),
				zap.String("candidate", candidate),
				zap.Error(err),
			)
			continue
		}
		materials, err := decodeMaterials(body)
		if err != nil {
			h.log(r).Debug("materials candidate returned unusable JSON",
				zap.String("op", "server.handleMaterials"),
				zap.String("candidate", candidate),
				zap.Error(err),
			)
			continue
		}
		h.writeJSON(w, http.StatusOK, tank.MaterialsResponse{Materials: materials})
		return
	}

	// The UI has to render without pricing data.
	h.log(r).Warn("no materials source available, serving empty listing",
		zap.String("op", "server.handleMaterials"),
	)
	h.writeJSON(w, http.StatusOK, tank.MaterialsResponse{Materials: tank.MaterialMap{}})
}

// decodeMaterials accepts either {materials: {...}} or a bare map of
// material entries. Entries that are not objects are skipped.
func decodeMaterials(body []byte) (tank.MaterialMap, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	if envelope == nil {
		return nil, errors.New("materials payload is null")
	}

	entries := envelope
	if raw, ok := envelope["materials"]; ok && string(raw) != "null" {
		entries = nil
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("materials field is not an object: %w", err)
		}
	}

	materials := make(tank.MaterialMap, len(entries))
	for key, raw := range entries {
		var def tank.MaterialDefinition
		if err := json.Unmarshal(raw, &def); err != nil {
			continue
		}
		materials[key] = def
	}
	return materials, nil
}

func (h *handler) handlePricingGet(w http.ResponseWriter, r *http.Request) {
	origin := requestOrigin(r)
	var lastErr error
	for _, candidate := range pricingCandidates {
		body, err := h.fetchJSON(r.Context(), h.upstream.Endpoint(origin, candidate))
		if err != nil {
			lastErr = err
			continue
		}
		h.writeRaw(w, http.StatusOK, constants.ContentTypeJSON, body)
		return
	}

	h.log(r).Error("pricing fetch failed",
		zap.String("op", "server.handlePricingGet"),
		zap.Error(lastErr),
	)
	h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Pricing not found"})
}

func (h *handler) handlePricingPut(w http.ResponseWriter, r *http.Request) {
	const op = "server.handlePricingPut"

	body, ok := h.readBody(w, r, op)
	if !ok {
		return
	}

	resp, err := h.upstream.Do(r.Context(), http.MethodPut,
		h.upstream.Endpoint(requestOrigin(r), "/pricing"), body, constants.ContentTypeJSON)
	if err != nil {
		h.log(r).Error("pricing update transport error", zap.String("op", op), zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update pricing"})
		return
	}
	defer closeBody(h.logger, resp, op)

	if !isSuccess(resp.StatusCode) {
		h.relayUpstreamError(w, r, resp, "Failed to update pricing", op)
		return
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		h.respondErrorWithOp(w, r, http.StatusInternalServerError, "Failed to update pricing", op)
		return
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	h.writeRaw(w, resp.StatusCode, constants.ContentTypeJSON, payload)
}

// fetchJSON GETs target and returns its body when the backend answered OK
// with a JSON document.
func (h *handler) fetchJSON(ctx context.Context, target string) ([]byte, error) {
	resp, err := h.upstream.Get(ctx, target)
	if err != nil {
		return nil, err
	}
	defer closeBody(h.logger, resp, "server.fetchJSON")

	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("backend %s returned status %d", target, resp.StatusCode)
	}
	if !isJSON(resp.Header.Get("Content-Type")) {
		return nil, errNotJSON
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", target, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("backend %s returned malformed JSON", target)
	}
	return body, nil
}
