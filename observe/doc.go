// Package observe provides telemetry for remote API calls: OpenTelemetry
// tracing and metrics behind a single Observer, a JSON structured logger
// with credential redaction, and a Middleware that wraps a call with all
// three at once.
package observe
