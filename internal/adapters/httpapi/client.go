package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mvrv/internal/adapters/ratelimit"
	"mvrv/internal/adapters/retry"
	"mvrv/internal/metrics"
	"mvrv/pkg/errors"
)

const userAgent = "mvrv-estimator/1.0"

// Config configures a JSON API client
type Config struct {
	Provider   string // metrics / error label
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Headers    map[string]string
	Limiter    *ratelimit.Limiter // optional
	HTTPClient *http.Client       // optional, tests inject a mocked transport
}

// Client performs GET requests against a JSON API with pacing, retries and metrics
type Client struct {
	provider string
	baseURL  string
	headers  map[string]string
	http     *http.Client
	retry    *retry.Middleware
	limiter  *ratelimit.Limiter
}

// New creates a JSON API client
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	rc := retry.DefaultConfig()
	rc.MaxRetries = cfg.MaxRetries

	return &Client{
		provider: cfg.Provider,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		headers:  cfg.Headers,
		http:     httpClient,
		retry:    retry.New(rc),
		limiter:  cfg.Limiter,
	}
}

// HTTPClient exposes the underlying client
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// GetJSON fetches path (relative to the base URL) and decodes the body into dest.
// endpoint is a low-cardinality label for metrics. Non-2xx responses become
// *errors.HTTPStatusError, which matches errors.ErrProviderUnavailable.
func (c *Client) GetJSON(ctx context.Context, endpoint, path string, query url.Values, dest interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	start := time.Now()
	err := c.retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.do(ctx, target, dest)
	})
	metrics.RecordProviderCall(c.provider, endpoint, time.Since(start), err)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, errors.ErrProviderUnavailable) {
			return err
		}
		return errors.Wrapf(errors.ErrProviderUnavailable, "%s %s: %v", c.provider, endpoint, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, target string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s request failed", c.provider)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &errors.HTTPStatusError{Provider: c.provider, Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return errors.Wrapf(err, "decode %s response", c.provider)
	}
	return nil
}
