package http

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Backoff applied to a host after it rate limits us.
const (
	// InitialBackoff is the pause after the first strike.
	InitialBackoff = time.Second
	// MaxBackoff caps the pause.
	MaxBackoff = time.Minute
	// BackoffCooldown is how long a host must stay quiet before its
	// configured rate is restored.
	BackoffCooldown = 5 * time.Minute
)

// slowdown is the fraction of the configured rate kept after n strikes.
var slowdown = [...]float64{1, 0.75, 0.5, 0.25}

// RateLimiterConfig sets request rates per host.
type RateLimiterConfig struct {
	// PageRPS covers www.youtube.com pages and the youtubei endpoints.
	// Default: 2.5
	PageRPS float64
	// DataAPIRPS covers the Data API hosts. Quota is accounted separately by
	// the ledger. Default: 5
	DataAPIRPS float64
	// HostRates overrides the rate of individual hosts. Zero means unlimited.
	HostRates map[string]float64
	// AdaptiveBackoff slows a host down after it rate limits us.
	AdaptiveBackoff bool
}

// DefaultRateLimiterConfig returns conservative rates for YouTube hosts.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		PageRPS:         2.5,
		DataAPIRPS:      5,
		HostRates:       make(map[string]float64),
		AdaptiveBackoff: true,
	}
}

// HostBackoff describes a host that recently rate limited us.
type HostBackoff struct {
	Delay      time.Duration
	LastHit    time.Time
	Strikes    int
	BaseRPS    float64
	CurrentRPS float64
}

// remaining is how much of the delay is left at now.
func (b HostBackoff) remaining(now time.Time) time.Duration {
	return b.Delay - now.Sub(b.LastHit)
}

type hostLimit struct {
	// limiter is nil for unlimited hosts.
	limiter *rate.Limiter
	backoff *HostBackoff
}

// RateLimiter keeps a token bucket and a backoff record per host.
type RateLimiter struct {
	mu    sync.Mutex
	cfg   RateLimiterConfig
	hosts map[string]*hostLimit
}

// NewRateLimiter fills unset rates from DefaultRateLimiterConfig.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if cfg.PageRPS == 0 {
		cfg.PageRPS = def.PageRPS
	}
	if cfg.DataAPIRPS == 0 {
		cfg.DataAPIRPS = def.DataAPIRPS
	}
	rates := make(map[string]float64, len(cfg.HostRates))
	for h, r := range cfg.HostRates {
		rates[h] = r
	}
	cfg.HostRates = rates
	return &RateLimiter{cfg: cfg, hosts: make(map[string]*hostLimit)}
}

// Wait blocks until the host of urlStr may be called: first through any
// backoff, then for a token.
func (rl *RateLimiter) Wait(ctx context.Context, urlStr string) error {
	if rl == nil {
		return nil
	}
	host := Host(urlStr)

	rl.mu.Lock()
	h := rl.host(host)
	var pause time.Duration
	if h.backoff != nil {
		pause = h.backoff.remaining(time.Now())
	}
	limiter := h.limiter
	rl.mu.Unlock()

	if pause > 0 {
		if err := sleep(ctx, pause); err != nil {
			return err
		}
	}
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// SetHostRate changes the rate of one host. Zero means unlimited.
func (rl *RateLimiter) SetHostRate(host string, rps float64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cfg.HostRates[host] = rps
	delete(rl.hosts, host)
}

// Penalize records a rate limit answer from the host of urlStr and returns
// how long to wait before calling it again. Each strike doubles the pause
// and lowers the host's rate; a longer Retry-After wins.
func (rl *RateLimiter) Penalize(urlStr string, retryAfter time.Duration) time.Duration {
	if rl == nil || !rl.cfg.AdaptiveBackoff {
		if retryAfter > 0 {
			return retryAfter
		}
		return InitialBackoff
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	host := Host(urlStr)
	h := rl.host(host)
	b := h.backoff
	if b == nil {
		b = &HostBackoff{Delay: InitialBackoff, BaseRPS: rl.rps(host)}
		h.backoff = b
	} else {
		b.Delay = min(2*b.Delay, MaxBackoff)
	}
	b.Strikes++
	b.LastHit = time.Now()
	b.Delay = max(b.Delay, retryAfter)

	b.CurrentRPS = b.BaseRPS * slowdown[min(b.Strikes, len(slowdown)-1)]
	if h.limiter != nil {
		h.limiter.SetLimit(rate.Limit(b.CurrentRPS))
	}
	return b.Delay
}

// Recover records a successful answer from the host of urlStr. A host quiet
// for BackoffCooldown gets its configured rate back; otherwise one strike is
// forgiven, and the last one lifts the rate to at least half.
func (rl *RateLimiter) Recover(urlStr string) {
	if rl == nil || !rl.cfg.AdaptiveBackoff {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	h := rl.hosts[Host(urlStr)]
	if h == nil || h.backoff == nil {
		return
	}
	b := h.backoff

	if time.Since(b.LastHit) > BackoffCooldown {
		if h.limiter != nil {
			h.limiter.SetLimit(rate.Limit(b.BaseRPS))
		}
		h.backoff = nil
		return
	}
	if b.Strikes == 0 {
		return
	}
	b.Strikes--
	if b.Strikes == 0 && b.CurrentRPS < b.BaseRPS/2 {
		b.CurrentRPS = b.BaseRPS / 2
		if h.limiter != nil {
			h.limiter.SetLimit(rate.Limit(b.CurrentRPS))
		}
	}
}

// Backoff returns a copy of the host's backoff record, or nil.
func (rl *RateLimiter) Backoff(urlStr string) *HostBackoff {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	h := rl.hosts[Host(urlStr)]
	if h == nil || h.backoff == nil {
		return nil
	}
	cp := *h.backoff
	return &cp
}

// host must be called with the mutex held.
func (rl *RateLimiter) host(name string) *hostLimit {
	h, ok := rl.hosts[name]
	if !ok {
		h = &hostLimit{}
		if rps := rl.rps(name); rps > 0 {
			h.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
		rl.hosts[name] = h
	}
	return h
}

// rps must be called with the mutex held.
func (rl *RateLimiter) rps(host string) float64 {
	if r, ok := rl.cfg.HostRates[host]; ok {
		return r
	}
	switch host {
	case "www.googleapis.com", "youtube.googleapis.com":
		return rl.cfg.DataAPIRPS
	default:
		return rl.cfg.PageRPS
	}
}

// Transport wraps base so requests made by third-party SDKs wait for their
// host's token and feed its backoff record.
func (rl *RateLimiter) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		u := req.URL.String()
		if err := rl.Wait(req.Context(), u); err != nil {
			return nil, err
		}
		resp, err := base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			rl.Penalize(u, retryAfter(resp.Header))
		case resp.StatusCode < 400:
			rl.Recover(u)
		}
		return resp, nil
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// Host returns the host of urlStr without its port, or "unknown".
func Host(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Hostname()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
