package resilience

import (
	"context"
	"sync"
	"time"
)

// ThrottleConfig configures the outbound throttle.
type ThrottleConfig struct {
	// EventsPerSecond is the sustained send rate.
	// Default: 500
	EventsPerSecond float64

	// Burst is the bucket capacity: how many events may be sent at once
	// after an idle period.
	// Default: 100
	Burst int
}

// Throttle is a token-bucket limiter for outbound batches. Unlike a
// server-imposed rate limit, which surfaces as an error to be retried, the
// throttle is self-imposed: WaitN blocks until the batch is admissible.
type Throttle struct {
	config ThrottleConfig

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewThrottle creates a throttle. The bucket starts full.
func NewThrottle(config ThrottleConfig) *Throttle {
	// Apply defaults
	if config.EventsPerSecond <= 0 {
		config.EventsPerSecond = 500
	}
	if config.Burst <= 0 {
		config.Burst = 100
	}

	return &Throttle{
		config:     config,
		tokens:     float64(config.Burst),
		lastRefill: time.Now(),
	}
}

// AllowN reports whether n events may be sent now, consuming tokens if so.
func (t *Throttle) AllowN(n int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refillLocked()
	if t.tokens >= float64(n) {
		t.tokens -= float64(n)
		return true
	}
	return false
}

// WaitN blocks until n events may be sent or ctx is done. Batches larger
// than the burst capacity are admitted once the bucket is full.
func (t *Throttle) WaitN(ctx context.Context, n int) error {
	want := n
	if want > t.config.Burst {
		want = t.config.Burst
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.AllowN(want) {
			return nil
		}

		t.mu.Lock()
		deficit := float64(want) - t.tokens
		t.mu.Unlock()
		wait := time.Duration(deficit / t.config.EventsPerSecond * float64(time.Second))
		if wait < time.Millisecond {
			wait = time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Tokens returns the current number of available tokens.
func (t *Throttle) Tokens() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refillLocked()
	return t.tokens
}

func (t *Throttle) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(t.lastRefill)
	t.lastRefill = now

	t.tokens += elapsed.Seconds() * t.config.EventsPerSecond
	if t.tokens > float64(t.config.Burst) {
		t.tokens = float64(t.config.Burst)
	}
}
