// Package stageexec applies the uniform execution policy every stage uses
// for external calls: a per-call timeout, bounded exponential-backoff
// retries for transient failures, and immediate surfacing of permanent ones.
package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"claimlens/internal/clients"
	"claimlens/internal/config"
	"claimlens/internal/logging"
	"claimlens/internal/services"
)

// Policy bounds a single logical stage call.
type Policy struct {
	// CallTimeout bounds each individual attempt.
	CallTimeout time.Duration
	// MaxAttempts caps total attempts, the first try included.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff between attempts.
	BaseDelay time.Duration
	// MaxDelay caps individual backoff delays.
	MaxDelay time.Duration
}

// FromConfig builds the policy from the stages configuration section.
func FromConfig(cfg *config.Config) Policy {
	return Policy{
		CallTimeout: time.Duration(cfg.Stages.CallTimeoutSeconds) * time.Second,
		MaxAttempts: cfg.Stages.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.Stages.RetryBaseDelayMillis) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Stages.RetryMaxDelayMillis) * time.Millisecond,
	}
}

func (p Policy) normalized() Policy {
	if p.CallTimeout <= 0 {
		p.CallTimeout = 60 * time.Second
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Run invokes op under the policy. Each attempt gets a fresh timeout
// context; only transient failures are retried. The error from the final
// attempt is returned with its classification intact.
func Run(ctx context.Context, policy Policy, logger *slog.Logger, operation string, op func(context.Context) error) error {
	policy = policy.normalized()
	if logger == nil {
		logger = logging.NewNop()
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = policy.BaseDelay
	expo.MaxInterval = policy.MaxDelay
	expo.MaxElapsedTime = 0
	expo.Reset()

	attempt := 0
	call := func() error {
		attempt++
		callCtx := ctx
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, policy.CallTimeout)
		defer cancel()

		err := op(callCtx)
		if err == nil {
			return nil
		}
		// The per-attempt deadline shows up as context.DeadlineExceeded;
		// treat it as transient unless the parent is done too.
		if ctx.Err() != nil {
			return backoff.Permanent(services.Wrap(services.ErrCancelled, "", operation, "abandoned", ctx.Err()))
		}
		if !services.IsRetryable(err) || attempt >= policy.MaxAttempts {
			return backoff.Permanent(err)
		}
		if hint, ok := clients.RetryAfterHint(err); ok {
			logger.Debug("service requested retry delay",
				logging.String("operation", operation),
				logging.Duration("retry_after", hint))
		}
		logger.Warn("retrying after transient failure",
			logging.String(logging.FieldEventType, "stage_retry"),
			logging.String("operation", operation),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", policy.MaxAttempts),
			logging.Error(err))
		return err
	}

	if err := backoff.Retry(call, backoff.WithContext(expo, ctx)); err != nil {
		if attempt > 1 {
			return fmt.Errorf("%s failed after %d attempts: %w", operation, attempt, err)
		}
		return err
	}
	return nil
}
