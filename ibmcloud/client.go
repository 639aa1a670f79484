// Package ibmcloud is the shared HTTP client for authenticated calls to
// IBM Cloud service endpoints. It injects the bearer token supplied by the
// auth package, applies a per-call timeout, retries transient failures with
// bounded backoff, and classifies HTTP statuses into the toolkit error
// taxonomy so handlers never look at raw status codes.
package ibmcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/watsonhub/ibmcloudkit/auth"
	"github.com/watsonhub/ibmcloudkit/tool"
)

const (
	// DefaultTimeout bounds one outbound service call.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 4 << 10
)

// TokenSource supplies a valid bearer token for outbound calls. The auth
// package's Manager is the production implementation.
type TokenSource interface {
	Token(ctx context.Context) (auth.Token, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Tokens     TokenSource
	HTTPClient *http.Client
	Retry      RetryPolicy
	UserAgent  string
}

// Client issues authenticated JSON requests against IBM Cloud REST
// endpoints. Safe for concurrent use; handlers share one instance.
type Client struct {
	tokens     TokenSource
	httpClient *http.Client
	retry      RetryPolicy
	userAgent  string

	// calls counts every HTTP request issued, including retries. Tests use
	// it to prove validation failures never reach the network.
	calls atomic.Int64
}

// NewClient creates a service client. Tokens is required.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "ibmcloudkit"
	}
	return &Client{
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		retry:      normalizeRetryPolicy(cfg.Retry),
		userAgent:  userAgent,
	}
}

// Calls returns the number of HTTP requests issued so far.
func (c *Client) Calls() int64 {
	return c.calls.Load()
}

// Request describes one service call.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	// Body is JSON-encoded when non-nil.
	Body any
	// Header carries endpoint-specific extras such as the monitoring
	// IBMInstanceID header.
	Header http.Header
	// Timeout overrides DefaultTimeout for this call.
	Timeout time.Duration
}

// DoJSON executes the request and decodes a 2xx response body into out
// (skipped when out is nil or the body is empty). Transient failures (429,
// 5xx, timeouts) are retried within the client's retry budget; all other
// failures propagate immediately with their classified kind.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return tool.WrapErr(tool.KindTransient, err, "call canceled")
		}

		lastErr = c.doOnce(ctx, req, out)
		if lastErr == nil {
			return nil
		}
		if te, ok := tool.AsError(lastErr); !ok || !te.Retryable() || attempt == c.retry.MaxAttempts {
			return lastErr
		}

		timer := time.NewTimer(c.retry.Backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return tool.WrapErr(tool.KindTransient, ctx.Err(), "call canceled")
		case <-timer.C:
		}
	}
	return lastErr
}

// GetJSON issues a GET with optional query parameters.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodGet, URL: rawURL, Query: query}, out)
}

// PostJSON issues a POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body, out any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodPost, URL: rawURL, Body: body}, out)
}

// PatchJSON issues a PATCH with a JSON body.
func (c *Client) PatchJSON(ctx context.Context, rawURL string, body, out any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodPatch, URL: rawURL, Body: body}, out)
}

// Delete issues a DELETE and discards any response body.
func (c *Client) Delete(ctx context.Context, rawURL string) error {
	return c.DoJSON(ctx, Request{Method: http.MethodDelete, URL: rawURL}, nil)
}

func (c *Client) doOnce(ctx context.Context, req Request, out any) error {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	fullURL := req.URL
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + req.Query.Encode()
	}

	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return tool.WrapErr(tool.KindUpstream, err, "encode request body")
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, bodyReader)
	if err != nil {
		return tool.WrapErr(tool.KindUpstream, err, "build request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token.Value)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	c.calls.Add(1)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return classifyStatus(resp, req)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return tool.WrapErr(tool.KindTransient, err, "read response body")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return tool.WrapErr(tool.KindUpstream, err, "decode response body")
	}
	return nil
}

// classifyStatus maps a non-2xx response to the error taxonomy: 401/403 to
// auth, 404 to not-found, 429 and 5xx to transient (retryable), everything
// else to upstream.
func classifyStatus(resp *http.Response, req Request) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	kind := tool.KindUpstream
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = tool.KindAuth
	case resp.StatusCode == http.StatusNotFound:
		kind = tool.KindNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		kind = tool.KindTransient
	}

	return &tool.Error{
		Kind:    kind,
		Status:  resp.StatusCode,
		Message: fmt.Sprintf("%s %s returned %d: %s", req.Method, redactURL(req.URL), resp.StatusCode, message),
	}
}

// classifyTransportError treats every transport-level failure as transient:
// timeouts and connection resets are exactly what the retry budget is for.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return tool.WrapErr(tool.KindTransient, err, "call timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return tool.WrapErr(tool.KindTransient, err, "call timed out")
	}
	return tool.WrapErr(tool.KindTransient, err, "request failed")
}

// redactURL strips query values from error messages; paths are safe but
// query strings could in principle carry sensitive material.
func redactURL(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
