package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ytaccess/internal/retry"
)

// DefaultUserAgents is the desktop browser pool page fetches rotate through.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// consentCookie skips the EU consent interstitial so the real page is served.
const consentCookie = "CONSENT=YES+1"

// Config configures a Client.
type Config struct {
	// Timeout bounds one request, not the retries around it.
	Timeout time.Duration
	Retry   retry.Config
	// UserAgents is the pool one User-Agent is drawn from per request.
	UserAgents []string
	// AcceptLanguage pins the page language so text parsers see English.
	AcceptLanguage string
	RateLimiter    RateLimiterConfig
	// CircuitBreaker is keyed by host.
	CircuitBreaker CircuitBreakerConfig
	// MaxIdleConnsPerHost sizes the keep-alive pool. Default: 10
	MaxIdleConnsPerHost int
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// DefaultConfig returns the settings used for YouTube page fetches.
func DefaultConfig() *Config {
	cb := DefaultCircuitBreakerConfig()
	cb.IsFailure = IsTransientHTTPError
	return &Config{
		Timeout:             30 * time.Second,
		Retry:               retry.DefaultConfig(),
		UserAgents:          DefaultUserAgents,
		AcceptLanguage:      "en-US,en;q=0.9",
		RateLimiter:         DefaultRateLimiterConfig(),
		CircuitBreaker:      cb,
		MaxIdleConnsPerHost: 10,
	}
}

// Response is a fully read 2xx answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client fetches pages and youtubei endpoints. Every request waits for its
// host's rate limit, is retried on transient failures, and runs inside the
// host's circuit.
type Client struct {
	cfg     *Config
	base    *http.Client
	limiter *RateLimiter
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// New builds a Client. A nil cfg means DefaultConfig().
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = DefaultUserAgents
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost

	return &Client{
		cfg:     cfg,
		base:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter: NewRateLimiter(cfg.RateLimiter),
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		logger:  logger.Named("http"),
	}
}

// Get fetches urlStr.
func (c *Client) Get(ctx context.Context, urlStr string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, urlStr, nil, nil)
}

// Post sends a JSON body. headers are added to the defaults.
func (c *Client) Post(ctx context.Context, urlStr string, body []byte, headers map[string]string) (*Response, error) {
	h := map[string]string{"Content-Type": "application/json"}
	maps.Copy(h, headers)
	return c.Do(ctx, http.MethodPost, urlStr, body, h)
}

// Do sends one request with retries. Non-2xx answers come back as
// *RateLimitError or *HTTPError; an open host circuit as ErrCircuitOpen.
func (c *Client) Do(ctx context.Context, method, urlStr string, body []byte, headers map[string]string) (*Response, error) {
	host := Host(urlStr)
	if err := c.breaker.Allow(host); err != nil {
		c.logger.Debug("circuit open", zap.String("host", host))
		return nil, err
	}

	var resp *Response
	err := retry.Do(ctx, c.cfg.Retry, shouldRetry, func(ctx context.Context) error {
		var err error
		resp, err = c.attempt(ctx, method, urlStr, body, headers)
		return err
	})
	if err != nil {
		c.breaker.RecordFailure(host, err)
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("url", urlStr),
			zap.Error(err))
		return nil, err
	}

	c.limiter.Recover(urlStr)
	c.breaker.RecordSuccess(host)
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, method, urlStr string, body []byte, headers map[string]string) (*Response, error) {
	if err := c.limiter.Wait(ctx, urlStr); err != nil {
		return nil, err
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent())
	if c.cfg.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", c.cfg.AcceptLanguage)
	}
	req.Header.Set("Cookie", consentCookie)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.base.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer res.Body.Close()

	host := req.URL.Hostname()
	switch res.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusForbidden:
		wait := c.limiter.Penalize(urlStr, retryAfter(res.Header))
		c.logger.Warn("rate limited",
			zap.String("host", host),
			zap.Int("status", res.StatusCode),
			zap.Duration("retry_after", wait))
		return nil, &RateLimitError{
			Host:       host,
			StatusCode: res.StatusCode,
			RetryAfter: wait,
			BotCheck:   res.StatusCode == http.StatusForbidden,
		}
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrRequestFailed, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &HTTPError{Host: host, StatusCode: res.StatusCode, Body: data}
	}
	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: data}, nil
}

// UserAgent draws a User-Agent from the pool.
func (c *Client) UserAgent() string {
	return c.cfg.UserAgents[rand.IntN(len(c.cfg.UserAgents))]
}

// HTTPClient returns a plain client that shares this client's per-host rate
// limits. The Data API and library tiers are handed this client.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{
		Timeout:   c.cfg.Timeout,
		Transport: c.limiter.Transport(c.base.Transport),
	}
}

// CircuitStats returns the circuit of host.
func (c *Client) CircuitStats(host string) CircuitStats {
	return c.breaker.Stats(host)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.base.CloseIdleConnections()
	return nil
}
