package client

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/searchctl/resilience"
)

// clientMetrics is the optional observability side-channel: counters for
// breaker state transitions, circuit-open rejections, retries, and
// re-authentications. Callers that wire no meter get nil instruments and
// every record method is a no-op; correctness never depends on metrics.
type clientMetrics struct {
	transitions metric.Int64Counter
	rejections  metric.Int64Counter
	retries     metric.Int64Counter
	reauths     metric.Int64Counter
}

func newClientMetrics(meter metric.Meter) (*clientMetrics, error) {
	if meter == nil {
		return &clientMetrics{}, nil
	}

	transitions, err := meter.Int64Counter(
		"client.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	rejections, err := meter.Int64Counter(
		"client.breaker.rejected",
		metric.WithDescription("Requests rejected by an open circuit"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter(
		"client.retries",
		metric.WithDescription("Retry attempts after transient failures"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	reauths, err := meter.Int64Counter(
		"client.reauth",
		metric.WithDescription("Successful re-authentication exchanges"),
		metric.WithUnit("{login}"),
	)
	if err != nil {
		return nil, err
	}

	return &clientMetrics{
		transitions: transitions,
		rejections:  rejections,
		retries:     retries,
		reauths:     reauths,
	}, nil
}

func (m *clientMetrics) recordTransition(endpoint string, from, to resilience.State) {
	if m.transitions == nil {
		return
	}
	m.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

func (m *clientMetrics) recordRejection(endpoint string) {
	if m.rejections == nil {
		return
	}
	m.rejections.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

func (m *clientMetrics) recordRetry(endpoint string) {
	if m.retries == nil {
		return
	}
	m.retries.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

func (m *clientMetrics) recordReauth(endpoint string) {
	if m.reauths == nil {
		return
	}
	m.reauths.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}
