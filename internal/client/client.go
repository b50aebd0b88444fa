// Package client calls the tank-quote proxy API and normalizes its
// responses into the types in package tank.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/iwvelando/tank-quote/internal/backend"
	"github.com/iwvelando/tank-quote/internal/tank"
	"github.com/iwvelando/tank-quote/pkg/constants"
	"github.com/iwvelando/tank-quote/pkg/mathutil"
	"github.com/iwvelando/tank-quote/pkg/validation"
)

var dispositionFilename = regexp.MustCompile(`(?i)filename="?([^";]+)"?`)

// ErrPresetNameRequired is returned for preset calls with an empty name.
var ErrPresetNameRequired = errors.New("preset name is required")

// APIError is returned when the proxy answers with a non-OK status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client talks to the proxy's /api routes.
type Client struct {
	base       *url.URL
	httpClient *http.Client
}

// New returns a Client for the proxy at baseURL, which must be an absolute
// http(s) URL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !validation.IsAbsoluteURL(trimmed) {
		return nil, fmt.Errorf("client base URL %q must be an http(s) URL", baseURL)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid client base URL %q: %w", baseURL, err)
	}
	return &Client{
		base:       u,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) api(p string) string {
	return c.base.String() + constants.APIPrefix + p
}

// response is a fully read proxy response.
type response struct {
	status      int
	contentType string
	disposition string
	body        []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (r *response) isJSON() bool {
	return strings.Contains(strings.ToLower(r.contentType), constants.ContentTypeJSON)
}

func (c *Client) do(ctx context.Context, method, target string, payload interface{}) (*response, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", constants.ContentTypeJSON)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", target, err)
	}
	return &response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		disposition: resp.Header.Get("Content-Disposition"),
		body:        data,
	}, nil
}

// errorMessage extracts a human message from a failed response: the JSON
// error field, else the raw text, else fallback.
func errorMessage(body []byte, fallback string) string {
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed == nil {
		if text := strings.TrimSpace(string(body)); text != "" {
			return text
		}
		return fallback
	}
	if obj, ok := parsed.(map[string]interface{}); ok {
		return mathutil.FirstString(obj, fallback, "error")
	}
	return fallback
}

func decodeObject(body []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data map[string]interface{}
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// FetchMaterials lists the available materials.
func (c *Client) FetchMaterials(ctx context.Context) (tank.MaterialMap, error) {
	resp, err := c.do(ctx, http.MethodGet, c.api("/materials"), nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, &APIError{Status: resp.status, Message: "failed to load materials"}
	}

	var decoded tank.MaterialsResponse
	if err := json.Unmarshal(resp.body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode materials: %w", err)
	}
	if decoded.Materials == nil {
		decoded.Materials = tank.MaterialMap{}
	}
	return decoded.Materials, nil
}

// RequestQuote prices params. Line items are remapped from the backend's
// field names and every numeric field is guaranteed finite.
func (c *Client) RequestQuote(ctx context.Context, params tank.TankParams) (*tank.QuoteResult, error) {
	resp, err := c.do(ctx, http.MethodPost, c.api("/quote"), params)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, &APIError{Status: resp.status, Message: errorMessage(resp.body, "quote failed")}
	}

	data, err := decodeObject(resp.body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	quote := tank.NormalizeQuote(data)
	return &quote, nil
}

// FetchPricing loads the pricing configuration, normalized so every
// numeric field is finite and every nested section is present.
func (c *Client) FetchPricing(ctx context.Context) (tank.PricingConfig, error) {
	resp, err := c.do(ctx, http.MethodGet, c.api("/pricing"), nil)
	if err != nil {
		return tank.PricingConfig{}, err
	}
	if !resp.ok() {
		return tank.PricingConfig{}, &APIError{Status: resp.status, Message: "failed to load pricing"}
	}

	data, err := decodeObject(resp.body)
	if err != nil {
		return tank.PricingConfig{}, fmt.Errorf("failed to decode pricing: %w", err)
	}
	return tank.NormalizePricingConfig(data), nil
}

// UpdatePricing replaces the pricing configuration.
func (c *Client) UpdatePricing(ctx context.Context, cfg tank.PricingConfig) error {
	resp, err := c.do(ctx, http.MethodPut, c.api("/pricing"), cfg)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return &APIError{Status: resp.status, Message: "failed to update pricing"}
	}
	return nil
}

// StepResult describes a generated STEP file. Either Href points at a
// download route, or Data holds the file the backend streamed back.
type StepResult struct {
	Href        string
	ViewURL     string
	Filename    string
	ContentType string
	Data        []byte
}

// IsFile reports whether the STEP file was returned inline.
func (s *StepResult) IsFile() bool {
	return s.Data != nil
}

// GenerateStep asks the backend to build a STEP model for params.
func (c *Client) GenerateStep(ctx context.Context, params tank.TankParams) (*StepResult, error) {
	const fallback = "failed to generate STEP file"

	resp, err := c.do(ctx, http.MethodPost, c.api("/generate-step"), params)
	if err != nil {
		return nil, err
	}

	if !resp.ok() {
		msg := strings.TrimSpace(string(resp.body))
		if resp.isJSON() {
			msg = fallback
			if data, err := decodeObject(resp.body); err == nil {
				msg = mathutil.FirstString(data, fallback, "error")
			}
		}
		if msg == "" {
			msg = fallback
		}
		return nil, &APIError{Status: resp.status, Message: msg}
	}

	if resp.isJSON() {
		data, err := decodeObject(resp.body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode STEP response: %w", err)
		}
		href := mathutil.FirstString(data, "", "download_url", "url", "href")
		if href == "" {
			return nil, errors.New("backend did not provide a download URL")
		}
		return &StepResult{
			Href:     href,
			ViewURL:  mathutil.FirstString(data, href, "view_url"),
			Filename: mathutil.FirstString(data, "", "filename"),
		}, nil
	}

	contentType := resp.contentType
	if contentType == "" {
		contentType = constants.ContentTypeBinary
	}
	data := resp.body
	if data == nil {
		data = []byte{}
	}
	return &StepResult{
		Filename:    filenameFromDisposition(resp.disposition),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func filenameFromDisposition(header string) string {
	if m := dispositionFilename.FindStringSubmatch(header); m != nil {
		return m[1]
	}
	return ""
}

// File is a downloaded file.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Download fetches href, which may be relative to the proxy base (as the
// links GenerateStep returns are).
func (c *Client) Download(ctx context.Context, href string) (*File, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("invalid download URL %q: %w", href, err)
	}
	target := c.base.ResolveReference(ref)

	resp, err := c.do(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, &APIError{Status: resp.status, Message: errorMessage(resp.body, "download failed")}
	}

	name := filenameFromDisposition(resp.disposition)
	if name == "" {
		name = validation.BaseName(target.Query().Get("path"), "")
	}
	if name == "" {
		name = validation.BaseName(target.Path, constants.DefaultStepName)
	}
	return &File{
		Filename:    validation.SanitizeFilename(name),
		ContentType: resp.contentType,
		Data:        resp.body,
	}, nil
}

// ListPresets returns every saved preset, ordered by name.
func (c *Client) ListPresets(ctx context.Context) ([]tank.Preset, error) {
	resp, err := c.do(ctx, http.MethodGet, c.api("/presets"), nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, &APIError{Status: resp.status, Message: errorMessage(resp.body, "failed to load presets")}
	}

	var decoded tank.PresetListResponse
	if err := json.Unmarshal(resp.body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode presets: %w", err)
	}

	names := make([]string, 0, len(decoded.Presets))
	for name := range decoded.Presets {
		names = append(names, name)
	}
	sort.Strings(names)

	presets := make([]tank.Preset, 0, len(names))
	for _, name := range names {
		presets = append(presets, tank.Preset{Name: name, Params: decoded.Presets[name]})
	}
	return presets, nil
}

func (c *Client) presetURL(name string) (string, error) {
	if name == "" {
		return "", ErrPresetNameRequired
	}
	return c.api("/presets/" + backend.EscapeComponent(name)), nil
}

// GetPreset loads one preset. The backend may answer with {name, params} or
// with the bare parameters.
func (c *Client) GetPreset(ctx context.Context, name string) (*tank.Preset, error) {
	target, err := c.presetURL(name)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, &APIError{Status: resp.status, Message: errorMessage(resp.body, "failed to load preset")}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(resp.body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode preset %q: %w", name, err)
	}
	preset := tank.Preset{Name: name}
	if _, ok := envelope["params"]; ok {
		var wrapped tank.PresetResponse
		if err := json.Unmarshal(resp.body, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode preset %q: %w", name, err)
		}
		preset.Params = wrapped.Params
		if wrapped.Name != "" {
			preset.Name = wrapped.Name
		}
		return &preset, nil
	}
	if err := json.Unmarshal(resp.body, &preset.Params); err != nil {
		return nil, fmt.Errorf("failed to decode preset %q: %w", name, err)
	}
	return &preset, nil
}

// SavePreset creates or replaces the preset called name.
func (c *Client) SavePreset(ctx context.Context, name string, params tank.TankParams) error {
	target, err := c.presetURL(name)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPut, target, params)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return &APIError{Status: resp.status, Message: errorMessage(resp.body, "failed to save preset")}
	}
	return nil
}

// DeletePreset removes the preset called name.
func (c *Client) DeletePreset(ctx context.Context, name string) error {
	target, err := c.presetURL(name)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return &APIError{Status: resp.status, Message: errorMessage(resp.body, "failed to delete preset")}
	}
	return nil
}
