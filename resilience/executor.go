package resilience

import (
	"context"
	"time"
)

// ExecutorConfig configures retry behavior and the error-policy hooks the
// executor consults. The executor itself never inspects error contents;
// callers inject classification so the same loop serves any error taxonomy.
type ExecutorConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Default: 3
	MaxRetries int

	// Backoff computes the delay before each retry.
	// Default: DefaultBackoff()
	Backoff *Backoff

	// RetryIf reports whether an error is transient and worth retrying
	// with backoff. Errors it rejects fail fast: no backoff sleep, no
	// breaker failure recorded.
	// Default: never retry.
	RetryIf func(err error) bool

	// AuthErrorIf reports whether an error is an authentication failure.
	AuthErrorIf func(err error) bool

	// OnAuthFailure attempts credential recovery after an auth failure.
	// When it succeeds the failed attempt is retried once, immediately:
	// the fix is credential replacement, not time, so the retry is exempt
	// from backoff and does not consume a retry slot. When it fails, its
	// error replaces the original so callers see the root cause. Leave nil
	// for strategies that cannot recover (a static token cannot self-heal).
	OnAuthFailure func(ctx context.Context) error

	// RetryDelayHint extracts a server-supplied minimum delay from an
	// error (e.g. a rate-limit retry-after). The executor sleeps the
	// larger of the hint and the computed backoff.
	RetryDelayHint func(err error) time.Duration

	// OnRejected is called when the breaker rejects a call outright.
	OnRejected func(endpoint string)

	// OnRetry is called before each backoff sleep.
	OnRetry func(endpoint string, attempt int, err error, delay time.Duration)

	// OnReauth is called after a successful credential recovery.
	OnReauth func(endpoint string)
}

// Executor wraps a single logical call with circuit-breaker admission,
// bounded retry with exponential backoff, and auth-failure recovery.
type Executor struct {
	breaker *Breaker
	config  ExecutorConfig
}

// NewExecutor creates an executor gated by the given breaker.
func NewExecutor(breaker *Breaker, config ExecutorConfig) *Executor {
	// Apply defaults
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.Backoff == nil {
		config.Backoff = DefaultBackoff()
	}

	return &Executor{breaker: breaker, config: config}
}

// Breaker returns the breaker gating this executor.
func (e *Executor) Breaker() *Breaker {
	return e.breaker
}

// Config returns the executor configuration with defaults applied.
func (e *Executor) Config() ExecutorConfig {
	return e.config
}

// Execute runs op under the endpoint's circuit with the configured retry
// budget.
func (e *Executor) Execute(ctx context.Context, endpoint string, op func(context.Context) error) error {
	return e.ExecuteWithRetries(ctx, endpoint, e.config.MaxRetries, op)
}

// ExecuteWithRetries runs op under the endpoint's circuit, retrying
// transient failures up to maxRetries times.
//
// Each attempt is gated by the breaker; a rejection fails immediately with
// ErrCircuitOpen, consuming no retry slot and no backoff sleep. Transient
// failures record a breaker failure and sleep before the next attempt.
// Non-retryable failures propagate immediately with no sleep, so a
// misconfigured or permanently-down endpoint never stalls the caller for
// the full backoff budget. Auth failures are recovered at most once via
// OnAuthFailure and retried immediately with fresh credentials.
func (e *Executor) ExecuteWithRetries(ctx context.Context, endpoint string, maxRetries int, op func(context.Context) error) error {
	reauthed := false

	for attempt := 0; ; {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.breaker.Check(endpoint); err != nil {
			if e.config.OnRejected != nil {
				e.config.OnRejected(endpoint)
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			e.breaker.RecordSuccess(endpoint)
			return nil
		}

		if !reauthed && e.config.OnAuthFailure != nil &&
			e.config.AuthErrorIf != nil && e.config.AuthErrorIf(err) {
			if rerr := e.config.OnAuthFailure(ctx); rerr != nil {
				return rerr
			}
			reauthed = true
			if e.config.OnReauth != nil {
				e.config.OnReauth(endpoint)
			}
			// Immediate retry with fresh credentials: no backoff, no
			// breaker failure, no retry slot consumed.
			continue
		}

		if e.config.RetryIf == nil || !e.config.RetryIf(err) {
			// Known-unretryable: the endpoint is not unhealthy, the call
			// is unanswerable as issued. Fail fast.
			return err
		}

		e.breaker.RecordFailure(endpoint)

		if attempt >= maxRetries {
			return err
		}
		attempt++

		delay := e.config.Backoff.Delay(attempt)
		if e.config.RetryDelayHint != nil {
			if hint := e.config.RetryDelayHint(err); hint > delay {
				delay = hint
			}
		}
		if e.config.OnRetry != nil {
			e.config.OnRetry(endpoint, attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
