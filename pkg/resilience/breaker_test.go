package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"licensehub-engine/pkg/errutil"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	m := NewBreakerManager()
	cfg := BreakerConfig{FailureThreshold: 3, Interval: time.Minute, RecoveryTimeout: time.Minute}

	fail := func() (any, error) { return nil, errutil.ServiceUnavailable("down", nil) }

	for i := 0; i < 3; i++ {
		_, err := m.Execute("remote", cfg, fail)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrCircuitOpen)
	}

	require.Equal(t, "open", m.State("remote"))

	// subsequent calls fail fast without invoking fn
	invoked := false
	_, err := m.Execute("remote", cfg, func() (any, error) {
		invoked = true
		return nil, nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.False(t, invoked)
}

func TestBreakerIsolatesResources(t *testing.T) {
	m := NewBreakerManager()
	cfg := BreakerConfig{FailureThreshold: 1, Interval: time.Minute, RecoveryTimeout: time.Minute}

	_, err := m.Execute("flaky", cfg, func() (any, error) {
		return nil, errutil.ServiceUnavailable("down", nil)
	})
	require.Error(t, err)
	require.Equal(t, "open", m.State("flaky"))

	_, err = m.Execute("healthy", cfg, func() (any, error) { return nil, nil })
	require.NoError(t, err)
	require.Equal(t, "closed", m.State("healthy"))
}

func TestBreakerRecoversAfterTimeout(t *testing.T) {
	m := NewBreakerManager()
	cfg := BreakerConfig{FailureThreshold: 1, Interval: time.Minute, RecoveryTimeout: 20 * time.Millisecond}

	_, err := m.Execute("remote", cfg, func() (any, error) {
		return nil, errutil.ServiceUnavailable("down", nil)
	})
	require.Error(t, err)
	require.Equal(t, "open", m.State("remote"))

	time.Sleep(30 * time.Millisecond)

	_, err = m.Execute("remote", cfg, func() (any, error) { return nil, nil })
	require.NoError(t, err)
	require.Equal(t, "closed", m.State("remote"))
}

func TestCallerComposesBreakerAndRetry(t *testing.T) {
	caller := NewCaller(CallerConfig{
		Timeout: time.Second,
		Retry:   RetryConfig{MaxAttempts: 2, Delay: time.Millisecond},
		Breaker: BreakerConfig{FailureThreshold: 1, Interval: time.Minute, RecoveryTimeout: time.Minute},
	})

	calls := 0
	err := caller.Call(context.Background(), "remote", "fetch", func(ctx context.Context) error {
		calls++
		return errutil.ServiceUnavailable("down", nil)
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)

	// the whole retried call counts as one breaker failure; threshold 1
	// means the breaker is now open and the next call never runs fn
	err = caller.Call(context.Background(), "remote", "fetch", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.Equal(t, 2, calls)
	require.Equal(t, "open", caller.BreakerState("remote"))
}

func TestCallerTimeoutBoundsRetries(t *testing.T) {
	caller := NewCaller(CallerConfig{
		Timeout: 30 * time.Millisecond,
		Retry:   RetryConfig{MaxAttempts: 10, Delay: 20 * time.Millisecond},
		Breaker: BreakerConfig{FailureThreshold: 100, Interval: time.Minute, RecoveryTimeout: time.Minute},
	})

	calls := 0
	start := time.Now()
	err := caller.Call(context.Background(), "remote", "fetch", func(ctx context.Context) error {
		calls++
		return errutil.ServiceUnavailable("down", nil)
	})

	require.Error(t, err)
	require.Less(t, calls, 10)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}
