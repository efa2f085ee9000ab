// Package httpclient executes GET requests against JSON APIs with
// timeout, exponential backoff and status categorisation.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/grantpost/internal/common"
)

const (
	DefaultTimeout        = 45 * time.Second
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = time.Second
	DefaultUserAgent      = "grantpost/1.0"

	// maxBodySize caps how much of a response is read into memory
	maxBodySize = 20 * 1024 * 1024
)

// Status categories. A *StatusError wraps exactly one of these.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrRateLimited      = errors.New("rate limited")
	ErrClientStatus     = errors.New("client error")
	ErrServerStatus     = errors.New("server error")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// ErrRetriesExhausted is returned after the last retryable attempt fails
var ErrRetriesExhausted = errors.New("retries exhausted")

// StatusError reports a non-200 response
type StatusError struct {
	StatusCode int
	Message    string
	URL        string
	category   error
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (status: %d, url: %s)", e.category, e.Message, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("%s (status: %d, url: %s)", e.category, e.StatusCode, e.URL)
}

// Unwrap exposes the status category for errors.Is
func (e *StatusError) Unwrap() error {
	return e.category
}

// Retryable reports whether another attempt may succeed
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500
}

// categorize maps a status code to its error category
func categorize(status int) error {
	switch {
	case status == http.StatusBadRequest:
		return ErrBadRequest
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusMethodNotAllowed:
		return ErrMethodNotAllowed
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 400 && status < 500:
		return ErrClientStatus
	case status >= 500:
		return ErrServerStatus
	default:
		return ErrUnexpectedStatus
	}
}

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// Client executes GET requests with retry
type Client struct {
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	userAgent      string
	logger         arbor.ILogger
	sleep          func(ctx context.Context, d time.Duration) error
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = NewDefaultHTTPClient(timeout)
		}
	}
}

// WithMaxRetries sets the total number of attempts for retryable failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithInitialBackoff sets the delay before the second attempt; it doubles after each attempt.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.initialBackoff = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a retrying client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:     NewDefaultHTTPClient(DefaultTimeout),
		maxRetries:     DefaultMaxRetries,
		initialBackoff: DefaultInitialBackoff,
		userAgent:      DefaultUserAgent,
		logger:         arbor.NewLogger(),
		sleep:          common.SleepContext,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Backoff returns the delay after the given zero-based attempt
func (c *Client) Backoff(attempt int) time.Duration {
	return c.initialBackoff << uint(attempt)
}

// Execute performs a GET and returns the body of a 200 response.
// Transport failures and 5xx responses are retried with exponential backoff;
// 4xx responses fail immediately with a *StatusError.
func (c *Client) Execute(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.Backoff(attempt - 1)
			c.logger.Debug().
				Str("url", url).
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Msg("Retrying request")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		body, err := c.do(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			c.logStatus(statusErr)
			return nil, err
		}

		c.logger.Warn().
			Err(err).
			Str("url", url).
			Int("attempt", attempt+1).
			Int("max_attempts", c.maxRetries).
			Msg("Request attempt failed")
	}

	c.logger.Error().
		Err(lastErr).
		Str("url", url).
		Int("attempts", c.maxRetries).
		Msg("Request failed after all retries")

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.maxRetries, lastErr)
}

// Head issues a single HEAD request and returns the status code
func (c *Client) Head(ctx context.Context, url string, timeout time.Duration) (int, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    extractMessage(body),
			URL:        url,
			category:   categorize(resp.StatusCode),
		}
	}

	return body, nil
}

func (c *Client) logStatus(err *StatusError) {
	event := c.logger.Error()
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrRateLimited) {
		event = c.logger.Warn()
	}
	event.
		Int("status", err.StatusCode).
		Str("url", err.URL).
		Str("message", err.Message).
		Msg("Request rejected: " + err.category.Error())
}

// extractMessage pulls "message" or "error" from a JSON error body
func extractMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	message := strings.TrimSpace(string(body))
	if len(message) > 200 {
		message = message[:200]
	}
	return message
}
