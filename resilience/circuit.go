package resilience

import (
	"sync"
	"time"
)

// State represents a circuit's state.
type State int

const (
	// StateClosed means calls pass through normally.
	StateClosed State = iota
	// StateOpen means calls fail fast without being attempted.
	StateOpen
	// StateHalfOpen means a limited number of probe calls are allowed
	// to test whether the endpoint recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures every circuit owned by a Breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of failures within FailureWindow
	// before a circuit opens.
	// Default: 5
	FailureThreshold int

	// FailureWindow is the sliding window over which failures count toward
	// the threshold. Failures older than the window are pruned on every
	// state-changing operation, so failures spread thinly over a long
	// period never open the circuit.
	// Default: 60 seconds
	FailureWindow time.Duration

	// ResetTimeout is how long an open circuit waits before admitting
	// probe calls.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is the max probe calls admitted while half-open
	// before a probe result forces a transition.
	// Default: 1
	HalfOpenMaxRequests int

	// OnStateChange is called when a circuit changes state.
	OnStateChange func(endpoint string, from, to State)
}

// Breaker owns one circuit per logical endpoint. Circuits are created
// lazily on first use and live for the Breaker's lifetime; the set of
// endpoints is expected to be small and fixed.
//
// All circuit mutation happens under the Breaker's lock. Callers never see
// the underlying map.
type Breaker struct {
	config BreakerConfig

	mu       sync.Mutex
	circuits map[string]*circuit
}

// circuit is the per-endpoint failure-gating state machine.
type circuit struct {
	state         State
	failures      []time.Time // within FailureWindow, oldest first
	openedAt      time.Time
	halfOpenCount int
}

// NewBreaker creates a breaker with the given configuration.
func NewBreaker(config BreakerConfig) *Breaker {
	// Apply defaults
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.FailureWindow <= 0 {
		config.FailureWindow = 60 * time.Second
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}

	return &Breaker{
		config:   config,
		circuits: make(map[string]*circuit),
	}
}

// Check reports whether a call to the endpoint may proceed. When the
// circuit is closed it always admits. When open, it admits only once
// ResetTimeout has elapsed since opening, transitioning to half-open and
// counting the call as a probe. When half-open, it admits up to
// HalfOpenMaxRequests probes and rejects the rest until a probe resolves.
//
// A rejection returns ErrCircuitOpen.
func (b *Breaker) Check(endpoint string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitLocked(endpoint)

	switch c.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(c.openedAt) < b.config.ResetTimeout {
			return ErrCircuitOpen
		}
		b.transitionLocked(endpoint, c, StateHalfOpen)
		c.halfOpenCount = 1 // this call is the first probe
		return nil

	case StateHalfOpen:
		if c.halfOpenCount >= b.config.HalfOpenMaxRequests {
			return ErrCircuitOpen
		}
		c.halfOpenCount++
		return nil
	}

	return nil
}

// RecordSuccess records a successful call. A single success while
// half-open closes the circuit and clears failure history; there is no
// multi-success confirmation threshold, favoring fast recovery. While
// closed, success clears any accumulated failures so a healthy endpoint
// never sits just under the threshold. No-op while open.
func (b *Breaker) RecordSuccess(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitLocked(endpoint)

	switch c.state {
	case StateClosed:
		c.failures = c.failures[:0]
	case StateHalfOpen:
		c.failures = c.failures[:0]
		c.halfOpenCount = 0
		b.transitionLocked(endpoint, c, StateClosed)
	}
}

// RecordFailure records a failed call. The failure is appended to the
// sliding window and stale entries are pruned; crossing FailureThreshold
// opens the circuit. A probe failure while half-open re-opens the circuit
// immediately, restarting the reset timer.
func (b *Breaker) RecordFailure(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	c := b.circuitLocked(endpoint)
	c.failures = append(c.failures, now)
	c.pruneLocked(now, b.config.FailureWindow)

	switch c.state {
	case StateClosed:
		if len(c.failures) >= b.config.FailureThreshold {
			c.openedAt = now
			b.transitionLocked(endpoint, c, StateOpen)
		}
	case StateHalfOpen:
		c.openedAt = now
		c.halfOpenCount = 0
		b.transitionLocked(endpoint, c, StateOpen)
	case StateOpen:
		// Already open; opening again would only restamp the timer.
	}
}

// State returns the endpoint's current state without side effects. An
// open circuit whose reset timeout has elapsed still reports open until a
// Check admits the first probe.
func (b *Breaker) State(endpoint string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.circuitLocked(endpoint).state
}

// CircuitMetrics is a snapshot of one endpoint's circuit.
type CircuitMetrics struct {
	Endpoint       string
	State          State
	RecentFailures int
	OpenedAt       time.Time
}

// Metrics returns snapshots of all circuits, for diagnostic tooling.
func (b *Breaker) Metrics() []CircuitMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]CircuitMetrics, 0, len(b.circuits))
	for endpoint, c := range b.circuits {
		c.pruneLocked(time.Now(), b.config.FailureWindow)
		out = append(out, CircuitMetrics{
			Endpoint:       endpoint,
			State:          c.state,
			RecentFailures: len(c.failures),
			OpenedAt:       c.openedAt,
		})
	}
	return out
}

// Reset forces the endpoint's circuit back to closed with cleared history.
// This is an administrative override for operator-triggered recovery, not
// part of the automatic failure path.
func (b *Breaker) Reset(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked(endpoint, b.circuitLocked(endpoint))
}

// ResetAll resets every known circuit to closed.
func (b *Breaker) ResetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for endpoint, c := range b.circuits {
		b.resetLocked(endpoint, c)
	}
}

func (b *Breaker) resetLocked(endpoint string, c *circuit) {
	c.failures = c.failures[:0]
	c.halfOpenCount = 0
	if c.state != StateClosed {
		b.transitionLocked(endpoint, c, StateClosed)
	}
}

// circuitLocked returns the endpoint's circuit, creating it closed if
// absent. Caller must hold b.mu.
func (b *Breaker) circuitLocked(endpoint string) *circuit {
	c, ok := b.circuits[endpoint]
	if !ok {
		c = &circuit{state: StateClosed}
		b.circuits[endpoint] = c
	}
	return c
}

func (b *Breaker) transitionLocked(endpoint string, c *circuit, to State) {
	from := c.state
	c.state = to
	if from != to && b.config.OnStateChange != nil {
		b.config.OnStateChange(endpoint, from, to)
	}
}

// pruneLocked drops failures older than window. Caller must hold the
// breaker lock.
func (c *circuit) pruneLocked(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(c.failures) && c.failures[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		c.failures = append(c.failures[:0], c.failures[i:]...)
	}
}
