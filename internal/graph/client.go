// Package graph is a small read-only client for the Facebook Graph API:
// bearer auth, a pinned API version, cursor pagination and retry of
// transient failures.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Options configures a Client.
type Options struct {
	BaseURL     string // e.g. https://graph.facebook.com
	Version     string // e.g. v22.0
	AccessToken string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
	// OnResponse is called once per HTTP attempt with the status code, or 0
	// when the request failed before a response arrived.
	OnResponse func(status int)
}

// Client provides access to Graph API endpoints under one API version.
type Client struct {
	httpClient  *http.Client
	base        string
	token       string
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger
	onResponse  func(int)
}

// New creates a Client. Zero-valued options fall back to sensible defaults.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if v := strings.Trim(opts.Version, "/"); v != "" {
		base += "/" + v
	}
	return &Client{
		httpClient:  hc,
		base:        base,
		token:       opts.AccessToken,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		logger:      logger,
		onResponse:  opts.OnResponse,
	}
}

// Get fetches path with params and decodes the JSON body into out.
// Numbers decode as json.Number so large ids keep their precision.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.base + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return retryWithBackoff(ctx, c.maxAttempts, c.backoff, func() error {
		return c.do(ctx, u, out)
	})
}

// GetObject fetches a single Graph node.
func (c *Client) GetObject(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	var obj map[string]any
	if err := c.Get(ctx, path, params, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func (c *Client) do(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(0)
		if ctx.Err() != nil {
			return permanent(ctx.Err())
		}
		return fmt.Errorf("graph request %s: %w", redact(req.URL), err)
	}
	defer resp.Body.Close()
	c.observe(resp.StatusCode)
	c.logger.Debug("graph request",
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeError(resp)
		if !apiErr.Temporary() {
			return permanent(apiErr)
		}
		return apiErr
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return permanent(fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err))
	}
	return nil
}

func (c *Client) observe(status int) {
	if c.onResponse != nil {
		c.onResponse(status)
	}
}

func redact(u *url.URL) string {
	cp := *u
	q := cp.Query()
	if q.Has("access_token") {
		q.Set("access_token", "REDACTED")
		cp.RawQuery = q.Encode()
	}
	return cp.String()
}

// APIError is a non-2xx Graph API response.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
	Code       int
	Subcode    int
	FBTraceID  string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "graph api: HTTP %d", e.StatusCode)
	if e.Type != "" {
		fmt.Fprintf(&b, " %s", e.Type)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d", e.Code)
		if e.Subcode != 0 {
			fmt.Fprintf(&b, ", subcode %d", e.Subcode)
		}
		b.WriteString(")")
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.FBTraceID != "" {
		fmt.Fprintf(&b, " [fbtrace_id %s]", e.FBTraceID)
	}
	return b.String()
}

// Graph error codes for throttling and temporary unavailability.
var throttleCodes = map[int]bool{1: true, 2: true, 4: true, 17: true, 32: true, 341: true, 613: true}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return true
	}
	return throttleCodes[e.Code]
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var env struct {
		Error struct {
			Message   string `json:"message"`
			Type      string `json:"type"`
			Code      int    `json:"code"`
			Subcode   int    `json:"error_subcode"`
			FBTraceID string `json:"fbtrace_id"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		apiErr.Message = env.Error.Message
		apiErr.Type = env.Error.Type
		apiErr.Code = env.Error.Code
		apiErr.Subcode = env.Error.Subcode
		apiErr.FBTraceID = env.Error.FBTraceID
		return apiErr
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	apiErr.Message = msg
	return apiErr
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

func permanent(err error) error { return &permanentError{err: err} }

// retryWithBackoff retries fn with exponential backoff until it succeeds,
// returns a permanent error, or maxAttempts is reached.
func retryWithBackoff(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		var p *permanentError
		if errors.As(err, &p) {
			return p.err
		}
		lastErr = err
	}

	return lastErr
}
