package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"licensehub-engine/pkg/errutil"
)

// WithTimeout runs fn under a deadline. A blown budget surfaces as a distinct
// timeout error and fires the optional observer callback.
func WithTimeout(ctx context.Context, op string, budget time.Duration, onTimeout func(op string, budget time.Duration), fn func(ctx context.Context) error) error {
	if budget <= 0 {
		return fn(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	err := fn(tctx)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		if onTimeout != nil {
			onTimeout(op, budget)
		}
		return errutil.Timeout(fmt.Sprintf("%s exceeded %s budget", op, budget), err)
	}

	return err
}
