// Package resilience provides the failure-handling primitives behind the
// API client: per-endpoint circuit breaking, retry with backoff, bounded
// concurrency, timeouts, and outbound throttling.
//
// # Patterns
//
//   - Breaker: owns one circuit per logical endpoint. A circuit opens after
//     a threshold of failures within a sliding window, fails calls fast
//     while open, and admits a bounded number of probe calls after a reset
//     timeout. A single successful probe closes it.
//
//   - Executor: wraps one logical call with breaker admission, bounded
//     retry with exponential backoff, and single-shot credential recovery.
//     Error policy (what is transient, what is an auth failure) is injected
//     by the caller.
//
//   - Bulkhead: a fixed-size semaphore bounding concurrent operations, with
//     fail-fast, bounded-wait, and blocking acquire modes.
//
//   - Timeout: per-operation deadline wrapper.
//
//   - Throttle: self-imposed token-bucket pacing for outbound batches.
//
// # Usage
//
//	br := resilience.NewBreaker(resilience.BreakerConfig{
//	    FailureThreshold: 5,
//	    FailureWindow:    time.Minute,
//	    ResetTimeout:     30 * time.Second,
//	})
//
//	exec := resilience.NewExecutor(br, resilience.ExecutorConfig{
//	    MaxRetries: 3,
//	    RetryIf:    isTransient,
//	})
//
//	err := exec.Execute(ctx, "server/info", func(ctx context.Context) error {
//	    return fetchServerInfo(ctx)
//	})
//
// All types are safe for concurrent use.
package resilience
