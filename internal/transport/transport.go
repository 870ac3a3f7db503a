// Package transport sends JSON requests to an ordered list of upstream base
// URLs, moving on to the next base when one is unreachable or failing.
package transport

import (
	"bytes"
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

const (
	DefaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
)

// ErrNoBaseURL is returned by New when no base URL is configured.
var ErrNoBaseURL = errors.New("transport: at least one base URL is required")

// Error is a response that was not a success.
type Error struct {
	BaseURL    string
	StatusCode int
	Message    string
	// Body is the raw response, for callers that want fields beyond message.
	Body []byte
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%d)", e.BaseURL, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: request failed (%d)", e.BaseURL, e.StatusCode)
}

// Request describes one API call. Path is joined onto each base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   any
}

// Client tries base URLs in order.
type Client struct {
	bases   []string
	http    *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a transport client. Blank and duplicate base URLs are dropped.
func New(bases []string, httpClient *http.Client, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	seen := make(map[string]bool)
	var clean []string
	for _, b := range bases {
		b = strings.TrimRight(strings.TrimSpace(b), "/")
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		clean = append(clean, b)
	}
	if len(clean) == 0 {
		return nil, ErrNoBaseURL
	}
	return &Client{bases: clean, http: httpClient, timeout: timeout, logger: logger}, nil
}

// BaseURLs returns the configured upstreams in order.
func (c *Client) BaseURLs() []string {
	return append([]string(nil), c.bases...)
}

// Do sends req to each base URL until one answers 2xx with a body that is
// not {"ok": false}, then decodes the body into out (when non-nil). A
// definitive client error (4xx other than 404/405/408/429) stops the walk.
// Otherwise the last error is returned.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	var payload []byte
	if req.Body != nil {
		var err error
		if payload, err = json.Marshal(req.Body); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for _, base := range c.bases {
		body, err := c.attempt(ctx, base, req, payload)
		if err == nil {
			if out == nil || len(body) == 0 {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode response from %s: %w", base, err)
			}
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
		var te *Error
		if errors.As(err, &te) && !retryable(te.StatusCode) {
			return err
		}
		c.logger.Debug("upstream attempt failed, trying next", zap.String("base", base), zap.Error(err))
	}
	return lastErr
}

func retryable(status int) bool {
	switch {
	case status >= 500:
		return true
	case status == http.StatusNotFound, status == http.StatusMethodNotAllowed,
		status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 200 && status < 300:
		// 2xx with {"ok": false}
		return true
	default:
		return false
	}
}

func (c *Client) attempt(ctx context.Context, base string, req Request, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := base + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", base, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", base, err)
	}

	var envelope struct {
		OK      *bool  `json:"ok"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)
	message := envelope.Message
	if message == "" {
		message = envelope.Error
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (envelope.OK != nil && !*envelope.OK) {
		return nil, &Error{BaseURL: base, StatusCode: resp.StatusCode, Message: message, Body: body}
	}
	return body, nil
}
