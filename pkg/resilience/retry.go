package resilience

import (
	"context"
	"errors"
	"net"
	"time"

	"licensehub-engine/pkg/errutil"

	"go.uber.org/zap"
)

// RetryConfig bounds a retry loop. When Backoff is false each retry waits a
// fixed Delay; otherwise delay grows exponentially with full jitter.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool
	OnRetry     func(err error, attempt int, delay time.Duration)
}

// IsRetryable reports whether an error is worth another attempt:
// network-class errors, timeouts, and 5xx-class upstream responses.
// Validation and other 4xx-class errors propagate immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	switch code := errutil.StatusOf(err); code {
	case errutil.StatusTimeout, errutil.StatusGatewayTimeout, errutil.StatusTooManyRequests:
		return true
	case errutil.StatusUnauthorized:
		// bad credentials do not heal within a retry budget; the breaker
		// and health checker surface a misconfigured key instead
		return false
	case errutil.StatusUnknown:
		// fall through to network classification
	default:
		return code.HTTPCode() >= 500
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// Retry executes fn until it succeeds, returns a non-retryable error, or the
// attempt budget is exhausted. The observer callback fires before each sleep.
func Retry(ctx context.Context, op string, cfg RetryConfig, fn func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) {
			return lastErr
		}

		if attempt == attempts {
			break
		}

		delay := cfg.Delay
		if cfg.Backoff {
			delay = ExponentialWithJitter(cfg.Delay, attempt-1)
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(lastErr, attempt, delay)
		} else {
			zap.L().Warn("retrying operation",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
		}

		if err := SleepWithContext(ctx, delay); err != nil {
			return lastErr
		}
	}

	return lastErr
}
