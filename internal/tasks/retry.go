package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/plx/internal/services"
	"github.com/desertthunder/plx/internal/shared"
)

// RetryPolicy controls how upstream calls are retried. Only transient
// failures (upstream unavailability and per-call timeouts) are retried;
// everything else fails the call immediately.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	CallTimeout  time.Duration
}

// PolicyFromConfig derives a retry policy from the transfer configuration.
func PolicyFromConfig(cfg shared.TransferConfig) RetryPolicy {
	policy := RetryPolicy{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		CallTimeout:  cfg.CallTimeout(),
	}

	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	return policy
}

// withRetry runs fn with a per-attempt timeout, retrying transient failures
// with exponential backoff and jitter. A RetryAfterError from the upstream
// overrides the computed delay.
func withRetry(ctx context.Context, logger *log.Logger, policy RetryPolicy, label string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if policy.CallTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.CallTimeout)
		}

		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s: %v", shared.ErrTimeout, label, ctx.Err())
		}

		if !isTransient(err) {
			return err
		}

		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := policy.backoff(attempt)
		var retryAfter *services.RetryAfterError
		if errors.As(err, &retryAfter) && retryAfter.After > 0 {
			delay = retryAfter.After
		}

		logger.Warn("transient failure, retrying",
			"call", label,
			"attempt", attempt+1,
			"max_attempts", policy.MaxAttempts,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", shared.ErrTimeout, label, ctx.Err())
		case <-time.After(delay):
		}
	}

	return lastErr
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.Multiplier
	}

	if max := float64(p.MaxDelay); delay > max {
		delay = max
	}

	// Full jitter on the upper half keeps concurrent workers from
	// retrying in lockstep.
	half := delay / 2
	return time.Duration(half + rand.Float64()*half)
}

func isTransient(err error) bool {
	return errors.Is(err, shared.ErrUpstreamUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
