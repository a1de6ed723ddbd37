package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(retries int) Config {
	return Config{
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), nil, func(ctx context.Context) error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_PermanentError(t *testing.T) {
	attempts := 0
	permanentErr := errors.New("permanent")
	classifier := func(err error) bool { return !errors.Is(err, permanentErr) }

	err := Do(context.Background(), fastConfig(3), classifier, func(ctx context.Context) error {
		attempts++
		return permanentErr
	})

	assert.Same(t, permanentErr, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetryThenSucceed(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(5), IsRetryable, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_MaxRetriesExceeded(t *testing.T) {
	attempts := 0
	tempErr := errors.New("temporary")

	err := Do(context.Background(), fastConfig(2), nil, func(ctx context.Context) error {
		attempts++
		return tempErr
	})

	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, tempErr)

	var retryErr *RetryableError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 2, retryErr.Retries)
}

func TestDo_ZeroRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(0), nil, func(ctx context.Context) error {
		attempts++
		return errors.New("boom")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 10, InitialBackoff: time.Second, MaxBackoff: time.Second, Multiplier: 2}

	attempts := 0
	err := Do(ctx, cfg, nil, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("temporary")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"generic", errors.New("x"), true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestNewBackOff(t *testing.T) {
	bo := NewBackOff(Config{InitialBackoff: 2 * time.Second, MaxBackoff: 30 * time.Second, Multiplier: 2})

	want := []time.Duration{2, 4, 8, 16, 30, 30}
	for i, w := range want {
		assert.Equal(t, w*time.Second, bo.NextBackOff(), "step %d", i)
	}
}
