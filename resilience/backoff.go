package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy defines how delays increase between retries.
type BackoffStrategy int

const (
	// BackoffExponential doubles the delay each attempt with jitter.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear increases delay linearly.
	BackoffLinear
	// BackoffConstant uses the same delay for all retries.
	BackoffConstant
)

// BackoffConfig configures delay computation between retries.
type BackoffConfig struct {
	// InitialDelay is the delay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is the growth factor for exponential backoff.
	// Default: 2.0
	Multiplier float64

	// Strategy is the backoff strategy.
	// Default: BackoffExponential
	Strategy BackoffStrategy

	// Jitter adds randomness to delays to prevent thundering herd.
	// Default: true
	Jitter bool
}

// Backoff computes retry delays. It holds no mutable state and is safe
// for concurrent use.
type Backoff struct {
	config BackoffConfig
}

// NewBackoff creates a backoff policy.
//
// Note: the zero BackoffConfig disables jitter; use DefaultBackoff for the
// jittered default policy.
func NewBackoff(config BackoffConfig) *Backoff {
	// Apply defaults
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}

	return &Backoff{config: config}
}

// DefaultBackoff returns the default policy: exponential, 100ms initial,
// 30s cap, jittered.
func DefaultBackoff() *Backoff {
	return NewBackoff(BackoffConfig{Jitter: true})
}

// Delay returns the delay before retry number attempt (1-based).
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var delay time.Duration
	switch b.config.Strategy {
	case BackoffConstant:
		delay = b.config.InitialDelay
	case BackoffLinear:
		delay = b.config.InitialDelay * time.Duration(attempt)
	case BackoffExponential:
		multiplier := math.Pow(b.config.Multiplier, float64(attempt-1))
		delay = time.Duration(float64(b.config.InitialDelay) * multiplier)
	}

	// Cap at max delay
	if delay > b.config.MaxDelay {
		delay = b.config.MaxDelay
	}

	// Add up to 25% jitter
	if b.config.Jitter && delay > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}

	return delay
}

// Config returns the backoff configuration.
func (b *Backoff) Config() BackoffConfig {
	return b.config
}
