// Package api is the REST client for the dabir notification endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/dabir-notify/internal/zlog"
)

// Cookie names used by the Django session middleware.
const (
	SessionCookie = "sessionid"
	CSRFCookie    = "csrftoken"
	csrfHeader    = "X-CSRFToken"
)

// maxErrorBody bounds how much of an error response is kept in StatusError.
const maxErrorBody = 512

// Session is the ambient browser session the client presents.
type Session struct {
	SessionID string
	CSRFToken string
}

// Config configures a Client.
type Config struct {
	// Origin is the scheme and host of the web application.
	Origin string

	// Prefix is prepended to every request path. Defaults to "/api".
	Prefix string

	// Timeout bounds each HTTP request. Defaults to 15s.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after HTTP 429.
	// Defaults to 3; negative disables retries.
	MaxRetries int
}

// Client is a thin HTTP client for the dabir REST API. Authentication is
// the session cookie held in its jar, which is shared with the push
// channel dialer. It retries with exponential backoff on HTTP 429.
type Client struct {
	origin     *url.URL
	prefix     string
	jar        http.CookieJar
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a client for the given origin.
func NewClient(cfg Config) (*Client, error) {
	origin, err := url.Parse(strings.TrimRight(cfg.Origin, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing origin %q: %w", cfg.Origin, err)
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return nil, fmt.Errorf("origin %q must use http or https", cfg.Origin)
	}
	if origin.Host == "" {
		return nil, fmt.Errorf("origin %q has no host", cfg.Origin)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "/api"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retries := cfg.MaxRetries
	switch {
	case retries == 0:
		retries = 3
	case retries < 0:
		retries = 0
	}

	return &Client{
		origin:     origin,
		prefix:     "/" + strings.Trim(prefix, "/"),
		jar:        jar,
		httpClient: &http.Client{Timeout: timeout, Jar: jar},
		maxRetries: retries,
	}, nil
}

// Origin returns the configured origin, e.g. "https://dabir.example.org".
func (c *Client) Origin() string {
	return c.origin.String()
}

// Jar returns the cookie jar holding the session.
func (c *Client) Jar() http.CookieJar {
	return c.jar
}

// SetSession stores the session and CSRF cookies for the origin.
func (c *Client) SetSession(s Session) {
	var cookies []*http.Cookie
	if s.SessionID != "" {
		cookies = append(cookies, &http.Cookie{Name: SessionCookie, Value: s.SessionID, Path: "/"})
	}
	if s.CSRFToken != "" {
		cookies = append(cookies, &http.Cookie{Name: CSRFCookie, Value: s.CSRFToken, Path: "/"})
	}
	c.jar.SetCookies(c.origin, cookies)
}

// ClearSession expires the session and CSRF cookies held for the origin.
func (c *Client) ClearSession() {
	c.jar.SetCookies(c.origin, []*http.Cookie{
		{Name: SessionCookie, Path: "/", MaxAge: -1},
		{Name: CSRFCookie, Path: "/", MaxAge: -1},
	})
}

// Session returns the session cookies currently held for the origin. The
// server may have rotated them since SetSession.
func (c *Client) Session() Session {
	var s Session
	for _, ck := range c.jar.Cookies(c.origin) {
		switch ck.Name {
		case SessionCookie:
			s.SessionID = ck.Value
		case CSRFCookie:
			s.CSRFToken = ck.Value
		}
	}
	return s
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// Post performs an HTTP POST request with a JSON body and unmarshals
// the JSON response.
func (c *Client) Post(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// Put performs an HTTP PUT request with a JSON body and unmarshals the
// JSON response.
func (c *Client) Put(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, http.MethodPut, path, body, result)
}

func (c *Client) url(path string) string {
	return c.origin.String() + c.prefix + path
}

func (c *Client) csrfToken() string {
	for _, ck := range c.jar.Cookies(c.origin) {
		if ck.Name == CSRFCookie {
			return ck.Value
		}
	}
	return ""
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// do is the core HTTP method that builds the request, attaches the CSRF
// header for unsafe methods, retries on rate limiting and handles JSON
// (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body any,
	result any,
) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.url(path), bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if !isSafeMethod(method) {
			req.Header.Set("Referer", c.origin.String()+"/")
			if token := c.csrfToken(); token != "" {
				req.Header.Set(csrfHeader, token)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfterDuration(resp, attempt)
			lastErr = &StatusError{Status: resp.StatusCode, Method: method, Path: path}
			zlog.Warn("rate limited",
				zap.String("method", method),
				zap.String("path", path),
				zap.Duration("wait", wait))

			if attempt == c.maxRetries {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &AuthError{Status: resp.StatusCode, Message: errorDetail(respBody)}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{
				Status: resp.StatusCode,
				Method: method,
				Path:   path,
				Body:   errorDetail(respBody),
			}
		}

		// No content to parse (e.g. 204).
		if result == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
		}

		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// errorDetail extracts the DRF "detail" or "error" message from an error
// body, falling back to the truncated raw body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return text
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
