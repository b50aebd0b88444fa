// Package backend forwards proxy requests to the quoting backend service and
// resolves backend URLs from the configured base.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iwvelando/tank-quote/pkg/validation"
)

// Client is a thin HTTP forwarder bound to one backend base URL.
type Client struct {
	base         string
	publicOrigin string
	httpClient   *http.Client
}

// New builds a Client for baseURL. The base is either an absolute http(s)
// URL or a path prefix. A path prefix is resolved against the public origin
// when one is set and against the origin of each incoming request otherwise.
// A zero timeout means backend calls are never cut short.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errors.New("backend base URL is required")
	}
	if validation.IsAbsoluteURL(trimmed) {
		u, err := url.Parse(trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid backend base URL %q: %w", trimmed, err)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("backend base URL %q has no host", trimmed)
		}
	}

	return &Client{
		base:       strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithPublicOrigin pins the origin that a path-prefix base resolves against,
// so the request Host no longer decides where backend calls go.
func (c *Client) WithPublicOrigin(origin string) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(origin), "/")
	if trimmed == "" {
		c.publicOrigin = ""
		return c, nil
	}
	u, err := url.Parse(trimmed)
	if err != nil || !validation.IsAbsoluteURL(trimmed) || u.Host == "" {
		return nil, fmt.Errorf("invalid public origin %q", origin)
	}
	c.publicOrigin = strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
	return c, nil
}

// PinnedOrigin reports whether the backend origin is fixed by configuration
// rather than taken from the incoming request.
func (c *Client) PinnedOrigin() bool {
	return validation.IsAbsoluteURL(c.base) || c.publicOrigin != ""
}

// BaseURL returns the backend base for a request arriving at origin.
func (c *Client) BaseURL(origin string) string {
	if validation.IsAbsoluteURL(c.base) {
		return c.base
	}
	if c.publicOrigin != "" {
		origin = c.publicOrigin
	}
	prefix := strings.Trim(c.base, "/")
	if prefix != "" {
		prefix = "/" + prefix
	}
	return strings.TrimRight(origin, "/") + prefix
}

// Endpoint joins p onto the backend base.
func (c *Client) Endpoint(origin, p string) string {
	return c.BaseURL(origin) + "/" + strings.TrimLeft(p, "/")
}

// Origin returns scheme://host of the backend as seen from origin.
func (c *Client) Origin(origin string) (string, error) {
	u, err := url.Parse(c.BaseURL(origin))
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

// SameOrigin reports whether target is hosted on the backend's origin. It is
// always false when the backend origin would come from the request itself.
func (c *Client) SameOrigin(origin, target string) bool {
	if !c.PinnedOrigin() {
		return false
	}
	backendOrigin, err := c.Origin(origin)
	if err != nil {
		return false
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" || u.User != nil {
		return false
	}
	return strings.ToLower(u.Scheme)+"://"+strings.ToLower(u.Host) == backendOrigin
}

// Do sends one request to target. The caller owns the response body.
func (c *Client) Do(ctx context.Context, method, target string, body []byte, contentType string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build backend request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend %s %s: %w", method, target, err)
	}
	return resp, nil
}

// Get is Do with GET and no body.
func (c *Client) Get(ctx context.Context, target string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, target, nil, "")
}

// EscapeComponent percent-encodes s as a single URI component, leaving
// only letters, digits and -_.!~*'() untouched.
func EscapeComponent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if isUnreserved(ch) {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", ch)
	}
	return b.String()
}

func isUnreserved(ch byte) bool {
	switch {
	case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", ch) >= 0
}
