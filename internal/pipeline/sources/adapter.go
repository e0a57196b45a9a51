// internal/pipeline/sources/adapter.go
package sources

import (
	"context"
	stderrors "errors"
	"time"

	"clientpulse/internal/common/errors"
	"clientpulse/internal/common/logger"
	"clientpulse/internal/common/metrics"
	"clientpulse/internal/models"
	"clientpulse/internal/pipeline/resilience"
)

// Adapter is the uniform contract every external source sits behind.
type Adapter interface {
	Source() models.SourceConfig
	Fetch(ctx context.Context, entity models.Entity, windowDays, maxResults int) ([]models.RawResult, error)
}

// RetryPolicy is the per-call retry behavior shared by all source adapters:
// exponential backoff with doubling delay, same policy for every source type.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Caller wraps one external call with the rate limiter, circuit breaker,
// and retry loop. Adapters delegate their Fetch bodies to it.
type Caller struct {
	registry *resilience.Registry
	retry    RetryPolicy
	log      logger.Logger
}

func NewCaller(registry *resilience.Registry, retry RetryPolicy, log logger.Logger) *Caller {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Caller{registry: registry, retry: retry, log: log}
}

// Call runs fn under the source's resilience controls. Every attempt is
// recorded against the rate budget. A 429 aborts the retry loop early.
// The final outcome is reported to the circuit breaker exactly once.
func (c *Caller) Call(ctx context.Context, src models.SourceConfig, fn func(ctx context.Context) error) error {
	if !c.registry.CanCall(src.ID) {
		metrics.SourceCalls.WithLabelValues(src.Name, "blocked_budget").Inc()
		return errors.NewRateBudgetExhaustedError(src.Name)
	}
	if allowed, reason := c.registry.ShouldAllow(src.ID); !allowed {
		metrics.SourceCalls.WithLabelValues(src.Name, "blocked_circuit").Inc()
		return errors.NewCircuitOpenError(src.Name, reason)
	}

	var lastErr error
	delay := c.retry.BaseDelay

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		c.registry.RecordCall(src.ID)

		lastErr = fn(ctx)
		if lastErr == nil {
			c.registry.RecordSuccess(src.ID)
			metrics.SourceCalls.WithLabelValues(src.Name, "success").Inc()
			return nil
		}

		kind := failureKind(lastErr)
		if kind == resilience.KindRateLimit || !errors.IsRetryable(lastErr) || attempt == c.retry.MaxAttempts {
			c.registry.RecordFailure(src.ID, lastErr, kind)
			metrics.SourceCalls.WithLabelValues(src.Name, "failure").Inc()
			return lastErr
		}

		c.log.Warn("source call failed, retrying", map[string]interface{}{
			"source":      src.Name,
			"attempt":     attempt,
			"maxAttempts": c.retry.MaxAttempts,
			"nextRetryIn": delay.String(),
			"error":       lastErr.Error(),
		})

		select {
		case <-ctx.Done():
			c.registry.RecordFailure(src.ID, ctx.Err(), resilience.KindTimeout)
			metrics.SourceCalls.WithLabelValues(src.Name, "failure").Inc()
			return errors.NewTransientSourceError(src.Name, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return lastErr
}

// failureKind maps an error to the breaker's diagnostic kind.
func failureKind(err error) resilience.ErrorKind {
	switch errors.KindOf(err) {
	case errors.ErrCodeSourceRateLimited:
		return resilience.KindRateLimit
	case errors.ErrCodeAuth:
		return resilience.KindAuthError
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return resilience.KindTimeout
	}
	return resilience.KindGenericAPIError
}
