package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RelayMetrics records chat relay activity
type RelayMetrics struct {
	events   metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRelayMetrics registers the relay instruments on meter. A nil meter uses the global provider.
func NewRelayMetrics(meter metric.Meter) (*RelayMetrics, error) {
	if meter == nil {
		meter = otel.Meter("persona-chat/relay")
	}

	events, err := meter.Int64Counter("chat_relay_events",
		metric.WithDescription("Stream events emitted by the chat relay"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("chat_relay_duration_seconds",
		metric.WithDescription("End-to-end duration of a relayed chat turn"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &RelayMetrics{events: events, duration: duration}, nil
}

// Event counts one emitted stream event of the given type
func (m *RelayMetrics) Event(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

// Turn records how long a relayed turn took and whether it succeeded
func (m *RelayMetrics) Turn(ctx context.Context, transport string, elapsed time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("transport", transport),
		attribute.Bool("ok", ok),
	))
}
