package resilience

import "errors"

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when an endpoint's circuit rejects a call
	// without attempting it. It is deliberately distinct from whatever error
	// opened the circuit, so callers can tell "the endpoint is being
	// avoided" from "the endpoint just failed".
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrBulkheadFull is returned when the bulkhead is at capacity and the
	// caller asked for a non-blocking acquire.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation exceeds its time limit.
	ErrTimeout = errors.New("resilience: operation timed out")
)
