package youtube

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"ytaccess/quota"
)

// DefaultMaxAttempts bounds the counted attempts of one Execute call.
const DefaultMaxAttempts = 5

// Data API quota costs, in units.
const (
	CostList   = 1
	CostSearch = 100
)

// ServiceFactory builds a Data API client bound to one key.
type ServiceFactory func(ctx context.Context, key string) (*ytapi.Service, error)

// NewServiceFactory returns a factory whose clients send requests through
// client and authenticate with the key as a query parameter. An empty
// endpoint means the public Data API.
func NewServiceFactory(client *http.Client, endpoint string) ServiceFactory {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, key string) (*ytapi.Service, error) {
		base := client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		opts := []option.ClientOption{
			option.WithHTTPClient(&http.Client{
				Timeout:   client.Timeout,
				Transport: &transport.APIKey{Key: key, Transport: base},
			}),
		}
		if endpoint != "" {
			opts = append(opts, option.WithEndpoint(endpoint))
		}
		return ytapi.NewService(ctx, opts...)
	}
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// MaxAttempts counts rate limit, transient and other failures.
	// Quota rotations are not counted. Default: 5
	MaxAttempts int

	// Factory builds one client per key. Required.
	Factory ServiceFactory

	// Sleep waits between attempts. Default: a timer honoring ctx.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called with the failure class before every backoff.
	OnRetry func(op, class string)

	// OnReserve is called after every successful quota reservation.
	OnReserve func(op string, r quota.Reservation)

	Logger *zap.Logger
}

// Executor runs Data API calls against the quota ledger. Every dispatch is
// paid for up front, and provider errors decide between key rotation,
// backoff and giving up.
type Executor struct {
	ledger *quota.Ledger
	cfg    ExecutorConfig
	logger *zap.Logger

	mu       sync.Mutex
	services map[string]*ytapi.Service
}

// NewExecutor returns an executor drawing keys from ledger.
func NewExecutor(ledger *quota.Ledger, cfg ExecutorConfig) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Factory == nil {
		cfg.Factory = NewServiceFactory(nil, "")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		ledger:   ledger,
		cfg:      cfg,
		logger:   logger.Named("executor"),
		services: make(map[string]*ytapi.Service),
	}
}

// Execute reserves cost units and runs call with a client for the reserved
// key, retrying according to the failure class:
//
//   - quotaExceeded, dailyLimitExceeded: the key is marked exhausted and the
//     call is repeated at once with the next key
//   - rate limits: jittered exponential backoff, capped at 30s
//   - network errors and 5xx: exponential backoff, capped at 30s
//   - 400, 401, 404: returned immediately
//   - anything else: exponential backoff capped at 10s
//
// When no key can pay for the call the error wraps ErrQuotaExhausted.
func (e *Executor) Execute(ctx context.Context, op string, cost int, call func(context.Context, *ytapi.Service) error) error {
	attempt := 0
	rotations := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := e.ledger.Reserve(cost)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrQuotaExhausted, op, err)
		}
		if e.cfg.OnReserve != nil {
			e.cfg.OnReserve(op, res)
		}

		svc, err := e.service(ctx, res.Key)
		if err != nil {
			return fmt.Errorf("youtube: build api client: %w", err)
		}

		err = call(ctx, svc)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		class := classifyAPIError(err)
		log := e.logger.With(
			zap.String("op", op),
			zap.Int("key_index", res.Index),
			zap.String("class", class.String()),
		)

		switch class {
		case classQuota:
			e.ledger.MarkExhausted(res.Key)
			rotations++
			log.Warn("key quota exceeded, rotating", zap.Int("rotations", rotations))
			if rotations >= e.ledger.Len() {
				return fmt.Errorf("%w: %s: %w", ErrQuotaExhausted, op, err)
			}
			continue
		case classPermanent:
			if isNotFound(err) {
				return fmt.Errorf("%w: %s: %w", ErrNotFound, op, err)
			}
			return err
		}

		attempt++
		if attempt >= e.cfg.MaxAttempts {
			log.Warn("giving up", zap.Int("attempt", attempt), zap.Error(err))
			return class.wrap(err)
		}

		delay := class.delay(attempt)
		log.Info("retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if e.cfg.OnRetry != nil {
			e.cfg.OnRetry(op, class.String())
		}
		if err := e.cfg.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Ledger returns the ledger the executor reserves from.
func (e *Executor) Ledger() *quota.Ledger {
	return e.ledger
}

func (e *Executor) service(ctx context.Context, key string) (*ytapi.Service, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if svc, ok := e.services[key]; ok {
		return svc, nil
	}
	svc, err := e.cfg.Factory(ctx, key)
	if err != nil {
		return nil, err
	}
	e.services[key] = svc
	return svc, nil
}

type errorClass int

const (
	classOther errorClass = iota
	classQuota
	classRateLimit
	classTransient
	classPermanent
)

func (c errorClass) String() string {
	switch c {
	case classQuota:
		return "quota"
	case classRateLimit:
		return "rate_limit"
	case classTransient:
		return "transient"
	case classPermanent:
		return "permanent"
	default:
		return "other"
	}
}

// delay returns the pause before the next attempt. attempt starts at 1.
func (c errorClass) delay(attempt int) time.Duration {
	switch c {
	case classRateLimit:
		return backoffDelay(attempt, 30*time.Second, 0.25)
	case classTransient:
		return backoffDelay(attempt, 30*time.Second, 0)
	default:
		return backoffDelay(attempt, 10*time.Second, 0)
	}
}

func (c errorClass) wrap(err error) error {
	switch c {
	case classRateLimit:
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case classTransient:
		return fmt.Errorf("%w: %w", ErrTransient, err)
	default:
		return err
	}
}

// backoffDelay returns the attempt-th interval of a doubling schedule that
// starts at 2s, clamped to maxDelay.
func backoffDelay(attempt int, maxDelay time.Duration, jitter float64) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2
	b.MaxInterval = maxDelay
	b.RandomizationFactor = jitter
	b.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return min(d, maxDelay)
}

func classifyAPIError(err error) errorClass {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		for _, item := range apiErr.Errors {
			switch item.Reason {
			case "quotaExceeded", "dailyLimitExceeded":
				return classQuota
			case "rateLimitExceeded", "userRateLimitExceeded":
				return classRateLimit
			}
		}
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return classRateLimit
		case apiErr.Code >= 500:
			return classTransient
		// A 403 that is not about quota or rate (accessNotConfigured,
		// forbidden, commentsDisabled) fails the same way on every key.
		case apiErr.Code == http.StatusBadRequest,
			apiErr.Code == http.StatusUnauthorized,
			apiErr.Code == http.StatusForbidden,
			apiErr.Code == http.StatusNotFound:
			return classPermanent
		}
		return classOther
	}

	if isTransientNetworkError(err) {
		return classTransient
	}
	return classOther
}

func isTransientNetworkError(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// hasReason reports whether err is a Data API error carrying reason.
func hasReason(err error, reason string) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, item := range apiErr.Errors {
		if item.Reason == reason {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
