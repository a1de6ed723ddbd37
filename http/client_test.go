package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig retries fast and leaves the loopback host unlimited.
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Retry.InitialBackoff = 5 * time.Millisecond
	cfg.Retry.MaxBackoff = 10 * time.Millisecond
	cfg.RateLimiter.AdaptiveBackoff = false
	cfg.RateLimiter.HostRates = map[string]float64{"127.0.0.1": 0}
	return cfg
}

func newTestClient(t *testing.T, cfg *Config, h http.HandlerFunc) (*Client, string) {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	c := New(cfg)
	t.Cleanup(func() { _ = c.Close() })
	return c, server.URL
}

func TestNewWithNilConfig(t *testing.T) {
	c := New(nil)
	require.NotNil(t, c)
	assert.Contains(t, DefaultUserAgents, c.UserAgent())
	require.NoError(t, c.Close())
}

func TestClientGetSendsBrowserHeaders(t *testing.T) {
	c, url := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Contains(t, DefaultUserAgents, r.Header.Get("User-Agent"))
		assert.Equal(t, "en-US,en;q=0.9", r.Header.Get("Accept-Language"))
		assert.Equal(t, consentCookie, r.Header.Get("Cookie"))
		_, _ = w.Write([]byte("page"))
	})

	resp, err := c.Get(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "page", string(resp.Body))
}

func TestClientPostReplaysBodyOnRetry(t *testing.T) {
	var attempts atomic.Int32
	c, url := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"q":1}`, string(body))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "2", r.Header.Get("X-Youtube-Client-Name"))
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("{}"))
	})

	_, err := c.Post(context.Background(), url, []byte(`{"q":1}`), map[string]string{"X-Youtube-Client-Name": "2"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, attempts.Load())
}

func TestClientRetriesRateLimit(t *testing.T) {
	var attempts atomic.Int32
	c, url := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	resp, err := c.Get(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
	assert.EqualValues(t, 2, attempts.Load())
}

func TestClientBotCheck(t *testing.T) {
	cfg := testConfig()
	cfg.Retry.MaxRetries = 0
	c, url := newTestClient(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.Get(context.Background(), url)
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.True(t, rl.BotCheck)
	assert.Equal(t, "127.0.0.1", rl.Host)
}

func TestClientNotFoundIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	c, url := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Get(context.Background(), url)
	require.True(t, IsNotFound(err), "got %v", err)
	assert.EqualValues(t, 1, attempts.Load())
	assert.Zero(t, c.CircuitStats("127.0.0.1").Failures, "404 does not count against the host")
}

func TestClientCircuitOpensPerHost(t *testing.T) {
	cfg := testConfig()
	cfg.Retry.MaxRetries = 0
	cfg.CircuitBreaker.FailureThreshold = 2
	c, url := newTestClient(t, cfg, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	for range 2 {
		_, err := c.Get(context.Background(), url)
		require.Error(t, err)
	}

	_, err := c.Get(context.Background(), url)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, CircuitOpen, c.CircuitStats("127.0.0.1").State)
}

func TestClientContextDeadline(t *testing.T) {
	c, url := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, url)
	assert.Error(t, err)
}

func TestClientHTTPClientSharesLimits(t *testing.T) {
	var hits atomic.Int32
	c, url := newTestClient(t, testConfig(), func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	resp, err := c.HTTPClient().Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	assert.EqualValues(t, 1, hits.Load())
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"absent", "", 0},
		{"seconds", "5", 5 * time.Second},
		{"negative", "-3", 0},
		{"past date", "Mon, 02 Jan 2006 15:04:05 GMT", 0},
		{"garbage", "soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			assert.Equal(t, tt.want, retryAfter(h))
		})
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		notFound  bool
	}{
		{"404", &HTTPError{StatusCode: 404}, false, true},
		{"410", &HTTPError{StatusCode: 410}, false, true},
		{"400", &HTTPError{StatusCode: 400}, false, false},
		{"408", &HTTPError{StatusCode: 408}, true, false},
		{"502", &HTTPError{StatusCode: 502}, true, false},
		{"rate limit", &RateLimitError{StatusCode: 429}, true, false},
		{"transport", ErrRequestFailed, true, false},
		{"nil", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransientHTTPError(tt.err))
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
		})
	}

	assert.False(t, shouldRetry(context.Canceled))
	assert.False(t, shouldRetry(errors.Join(context.DeadlineExceeded, &HTTPError{StatusCode: 503})))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "www.youtube.com: status 502", (&HTTPError{Host: "www.youtube.com", StatusCode: 502}).Error())

	rl := &RateLimitError{Host: "www.youtube.com", StatusCode: 403, RetryAfter: time.Second, BotCheck: true}
	assert.Equal(t, "www.youtube.com: bot check (status 403), retry after 1s", rl.Error())

	rl = &RateLimitError{Host: "www.youtube.com", StatusCode: 429}
	assert.Equal(t, "www.youtube.com: rate limited (status 429)", rl.Error())
}
