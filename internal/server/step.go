package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/iwvelando/tank-quote/internal/backend"
	"github.com/iwvelando/tank-quote/pkg/constants"
	"github.com/iwvelando/tank-quote/pkg/mathutil"
	"github.com/iwvelando/tank-quote/pkg/validation"
	"go.uber.org/zap"
)

type stepLinks struct {
	DownloadURL string `json:"download_url"`
	ViewURL     string `json:"view_url"`
	Filename    string `json:"filename"`
}

// stepLinksFor points the browser at this proxy's own download and viewer
// routes for a file the backend reported by path. The filename must pass the
// viewer route's allow-list; otherwise the path's last segment is used, and
// failing that a sanitized name.
func stepLinksFor(filePath, filename string) stepLinks {
	if !strings.HasPrefix(filePath, "/") {
		filePath = "/" + filePath
	}
	if !validation.IsSafeFilename(filename) {
		filename = validation.BaseName(filePath, constants.DefaultStepName)
	}
	if !validation.IsSafeFilename(filename) {
		filename = validation.SanitizeFilename(filename)
	}
	return stepLinks{
		DownloadURL: constants.DownloadStepRoute + "?path=" + backend.EscapeComponent(filePath),
		ViewURL:     constants.GeneratedRoute + backend.EscapeComponent(filename),
		Filename:    filename,
	}
}

func (h *handler) handleGenerateStep(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleGenerateStep"

	body, ok := h.readBody(w, r, op)
	if !ok {
		return
	}

	resp, err := h.upstream.Do(r.Context(), http.MethodPost,
		h.upstream.Endpoint(requestOrigin(r), "/generate-step"), body, constants.ContentTypeJSON)
	if err != nil {
		h.log(r).Error("generate-step proxy error", zap.String("op", op), zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to generate STEP file"})
		return
	}
	defer closeBody(h.logger, resp, op)

	contentType := resp.Header.Get("Content-Type")
	if !isJSON(contentType) {
		// Raw file stream from the generator.
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		if cd := resp.Header.Get("Content-Disposition"); cd != "" {
			w.Header().Set("Content-Disposition", cd)
		}
		w.WriteHeader(resp.StatusCode)
		h.stream(w, r, resp.Body, op)
		return
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		h.respondErrorWithOp(w, r, http.StatusInternalServerError, "Failed to generate STEP file", op)
		return
	}
	var data map[string]interface{}
	if err := json.Unmarshal(payload, &data); err != nil {
		h.log(r).Error("generate-step returned malformed JSON",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to generate STEP file"})
		return
	}

	if filePath := mathutil.FirstString(data, "", "file_path", "path"); filePath != "" && isSuccess(resp.StatusCode) {
		links := stepLinksFor(filePath, mathutil.FirstString(data, "", "filename"))
		h.log(r).Info("STEP file generated",
			zap.String("op", op),
			zap.String("file_path", filePath),
			zap.String("filename", links.Filename),
		)
		h.writeJSON(w, http.StatusOK, links)
		return
	}

	// The backend already supplied its own download_url, or reported an error.
	h.writeRaw(w, resp.StatusCode, constants.ContentTypeJSON, payload)
}

func (h *handler) handleDownloadStep(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleDownloadStep"
	setCORS(w)

	filePath := r.URL.Query().Get("path")
	if filePath == "" {
		writeText(w, http.StatusBadRequest, "File path required")
		return
	}

	origin := requestOrigin(r)
	var target, namePath string
	if validation.IsAbsoluteURL(filePath) {
		if !h.upstream.SameOrigin(origin, filePath) {
			h.log(r).Warn("rejected download outside backend origin",
				zap.String("op", op),
				zap.String("path", filePath),
			)
			writeText(w, http.StatusForbidden, "Forbidden")
			return
		}
		u, err := url.Parse(filePath)
		if err != nil {
			writeText(w, http.StatusBadRequest, "Invalid file path")
			return
		}
		target, namePath = filePath, u.Path
	} else {
		normalized, err := validation.NormalizeFilePath(filePath)
		if err != nil {
			h.log(r).Warn("rejected download path",
				zap.String("op", op),
				zap.String("path", filePath),
			)
			writeText(w, http.StatusBadRequest, "Invalid file path")
			return
		}
		target, namePath = h.upstream.Endpoint(origin, normalized), normalized
	}

	resp, err := h.upstream.Get(r.Context(), target)
	if err != nil {
		h.log(r).Error("error downloading file", zap.String("op", op), zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Error downloading file")
		return
	}
	defer closeBody(h.logger, resp, op)

	if !isSuccess(resp.StatusCode) {
		writeText(w, http.StatusNotFound, "File not found")
		return
	}

	filename := validation.SanitizeFilename(validation.BaseName(namePath, constants.DefaultStepName))
	w.Header().Set("Content-Type", constants.ContentTypeBinary)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	h.stream(w, r, resp.Body, op)
}

// serveOutputFile streams a generated file from the backend's output
// directory so the viewer can embed it.
func (h *handler) serveOutputFile(disposition string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "server.serveOutputFile"
		setCORS(w)

		filename := r.PathValue("filename")
		if !validation.IsSafeFilename(filename) {
			writeText(w, http.StatusBadRequest, "Invalid filename")
			return
		}

		resp, err := h.upstream.Get(r.Context(),
			h.upstream.Endpoint(requestOrigin(r), constants.BackendOutputPath+filename))
		if err != nil {
			h.log(r).Error("error serving file", zap.String("op", op), zap.Error(err))
			writeText(w, http.StatusInternalServerError, "Error serving file")
			return
		}
		defer closeBody(h.logger, resp, op)

		if !isSuccess(resp.StatusCode) {
			message, _ := io.ReadAll(resp.Body)
			if len(message) == 0 {
				message = []byte("File not found")
			}
			writeText(w, resp.StatusCode, string(message))
			return
		}

		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = inferContentType(filename)
		}
		w.Header().Set("Content-Type", contentType)
		if cd := resp.Header.Get("Content-Disposition"); cd != "" {
			w.Header().Set("Content-Disposition", cd)
		} else {
			w.Header().Set("Content-Disposition", fmt.Sprintf(`%s; filename="%s"`, disposition, filename))
		}
		w.Header().Set("Cache-Control", constants.FileCacheControl)
		w.WriteHeader(http.StatusOK)
		h.stream(w, r, resp.Body, op)
	}
}

func inferContentType(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".step", ".stp":
		return constants.ContentTypeStep
	case "":
		return constants.ContentTypeBinary
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return constants.ContentTypeBinary
}
