package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Caller composes the reliability primitives around an outbound call in a
// fixed order: circuit breaker, then timeout, then retry, then the raw call.
// The breaker is consulted before any budget is spent, and retries share a
// single timeout budget rather than each getting their own.
type Caller struct {
	breakers *BreakerManager
	breaker  BreakerConfig
	retry    RetryConfig
	timeout  time.Duration
}

type CallerConfig struct {
	Timeout time.Duration
	Retry   RetryConfig
	Breaker BreakerConfig
}

func NewCaller(cfg CallerConfig) *Caller {
	return &Caller{
		breakers: NewBreakerManager(),
		breaker:  cfg.Breaker,
		retry:    cfg.Retry,
		timeout:  cfg.Timeout,
	}
}

// Call guards fn with the breaker of the named resource; op labels the
// logical operation in logs and timeout errors.
func (c *Caller) Call(ctx context.Context, resource, op string, fn func(ctx context.Context) error) error {
	_, err := c.breakers.Execute(resource, c.breaker, func() (any, error) {
		err := WithTimeout(ctx, op, c.timeout, c.onTimeout, func(tctx context.Context) error {
			return Retry(tctx, op, c.retry, fn)
		})
		return nil, err
	})

	return err
}

func (c *Caller) onTimeout(op string, budget time.Duration) {
	zap.L().Warn("operation timed out",
		zap.String("operation", op),
		zap.Duration("budget", budget),
	)
}

// BreakerState exposes the breaker state for a named resource, for health
// reporting.
func (c *Caller) BreakerState(resource string) string {
	return c.breakers.State(resource)
}
