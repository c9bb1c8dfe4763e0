package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// maxReplyBytes bounds how much of a provider reply is read.
const maxReplyBytes = 4 << 20

// APIError is a non-2xx reply from a provider.
type APIError struct {
	Provider string
	Status   int
	Message  string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.Status, e.Message)
}

// Temporary reports whether the request may succeed when repeated.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// transportError marks a request that never produced a reply.
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// IsRetryable reports whether err is a transient model failure: a transport
// error, HTTP 429 or a 5xx reply.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var te *transportError
	return errors.As(err, &te)
}

// jsonAPI posts JSON to one provider, with rate limiting and retries.
type jsonAPI struct {
	provider   string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration

	// authorize sets the provider's auth headers.
	authorize func(http.Header)
	// errorMessage pulls the message out of an error body, or "".
	errorMessage func([]byte) string
}

func newJSONAPI(provider, defaultBaseURL string, cfg Config) *jsonAPI {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &jsonAPI{
		provider:   provider,
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: cfg.timeout()},
		limiter:    newLimiter(cfg.ratePerMinute()),
		maxRetries: cfg.maxRetries(),
		backoff:    defaultBaseBackoff,
	}
}

func newLimiter(perMinute int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), defaultBurst)
}

// post sends in to path and decodes a 2xx reply into out. Transient
// failures are retried with exponential backoff. A retry that could not
// finish before ctx's deadline is not attempted.
func (c *jsonAPI) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", c.provider, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.pause(ctx, attempt, lastErr); err != nil {
				return err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("%s rate limit: %w", c.provider, err)
		}

		lastErr = c.once(ctx, path, body, out)
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", c.provider, c.maxRetries+1, lastErr)
}

// pause waits before retry number attempt. It returns lastErr when the
// wait would outlive ctx.
func (c *jsonAPI) pause(ctx context.Context, attempt int, lastErr error) error {
	wait := c.backoff << (attempt - 1)
	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > wait {
		wait = apiErr.RetryAfter
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
		return lastErr
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return lastErr
	}
}

func (c *jsonAPI) once(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", c.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authorize != nil {
		c.authorize(req.Header)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s request: %w", c.provider, ctx.Err())
		}
		return &transportError{err: fmt.Errorf("%s request: %w", c.provider, err)}
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return &transportError{err: fmt.Errorf("reading %s reply: %w", c.provider, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp, reply)
	}
	if err := json.Unmarshal(reply, out); err != nil {
		return fmt.Errorf("decoding %s reply: %w", c.provider, err)
	}
	return nil
}

func (c *jsonAPI) apiError(resp *http.Response, reply []byte) *APIError {
	e := &APIError{Provider: c.provider, Status: resp.StatusCode}
	if c.errorMessage != nil {
		e.Message = c.errorMessage(reply)
	}
	if e.Message == "" {
		e.Message = truncate(strings.TrimSpace(string(reply)), 200)
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
