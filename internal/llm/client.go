package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// DefaultTimeout bounds a single completion request.
const DefaultTimeout = 120 * time.Second

// Config selects the endpoint for a Client.
type Config struct {
	Provider  string // "anthropic" or "openai"
	Model     string
	BaseURL   string // empty uses the provider default
	APIKey    string
	MaxTokens int
	Timeout   time.Duration // per request; 0 uses DefaultTimeout
}

// Client is an HTTP-backed Completer with bounded retry.
type Client struct {
	cfg         Config
	provider    Provider
	httpClient  *http.Client
	retry       RetryPolicy
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(client *Client) {
		client.retry = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a client for cfg. Returns an error for an unknown provider
// or a missing model.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	provider := GetProvider(cfg.Provider)
	if provider == nil {
		return nil, fmt.Errorf("unknown provider %q: must be one of %v", cfg.Provider, ListProviders())
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required for provider %s", cfg.Provider)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		cfg:         cfg,
		provider:    provider,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		retry:       DefaultRetryPolicy(),
		logger:      slog.Default(),
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete implements Completer. Transient failures (network, 429, 5xx) are
// retried with exponential backoff; fatal failures return immediately.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	requestID := uuid.New().String()
	attempts := c.retry.attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		started := time.Now()
		text, err := c.doRequest(ctx, system, user)
		if err == nil {
			c.logger.Debug("completion received",
				"request_id", requestID,
				"provider", c.provider.Name(),
				"model", c.cfg.Model,
				"attempt", attempt,
				"duration_ms", time.Since(started).Milliseconds(),
				"chars", len(text))
			return text, nil
		}
		lastErr = err

		if IsFatal(err) || ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			wait := c.retry.wait(attempt)
			c.logger.Warn("completion failed, retrying",
				"request_id", requestID,
				"attempt", attempt,
				"max_attempts", attempts,
				"backoff", wait,
				"error", err)
			if err := c.sleep(ctx, wait); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("completion %s via %s: %w", requestID, c.provider.Name(), lastErr)
}

// doRequest executes a single HTTP request.
func (c *Client) doRequest(ctx context.Context, system, user string) (string, error) {
	body, err := c.provider.BuildRequestBody(c.cfg.Model, system, user, c.cfg.MaxTokens)
	if err != nil {
		return "", permanent("encode", 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.provider.BuildURL(c.cfg.BaseURL), bytes.NewReader(body))
	if err != nil {
		return "", permanent("encode", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.provider.SetHeaders(req, c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", retryable("send", 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", retryable("read", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", replyError(resp.StatusCode, respBody)
	}

	text, err := c.provider.ParseResponse(respBody)
	if err != nil {
		return "", permanent("decode", resp.StatusCode, err)
	}
	return text, nil
}

// replyError classifies a non-200 reply. Rate limits and server errors are
// worth another attempt; auth and request errors are not.
func replyError(status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}
	err := fmt.Errorf("endpoint replied %q", snippet)
	if status == http.StatusTooManyRequests || status >= 500 {
		return retryable("reply", status, err)
	}
	return permanent("reply", status, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
