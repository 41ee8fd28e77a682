package usp

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for every metric this
// package records.
const meterName = "github.com/Benjamin-KY/cognitive-services-speech-sdk/pkg/usp"

// Metrics holds the OpenTelemetry instruments recorded by a [Context]. It
// is distinct from the per-request [Telemetry] log: these are aggregate,
// process-wide operational counters meant for a dashboard, not a per-turn
// diagnostic payload shipped to the service.
type Metrics struct {
	// UnhandledResponses counts inbound frames whose path matched neither
	// the system dispatch table nor any registered user handler.
	UnhandledResponses metric.Int64Counter

	// TurnDuration tracks wall-clock time from turn.start to turn.end.
	TurnDuration metric.Float64Histogram

	// TransportErrors counts asynchronous transport failures, labeled by
	// error code.
	TransportErrors metric.Int64Counter
}

var turnDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

// NewMetrics creates instruments against mp. Returns an error if any
// instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.UnhandledResponses, err = m.Int64Counter("usp.dispatch.unhandled_responses",
		metric.WithDescription("Inbound frames whose path matched no system or user handler."),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("usp.turn.duration",
		metric.WithDescription("Wall-clock duration of a turn, from turn.start to turn.end."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(turnDurationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TransportErrors, err = m.Int64Counter("usp.transport.errors",
		metric.WithDescription("Asynchronous transport failures by error code."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level Metrics instance built against
// the global OTel meter provider, creating it on first call.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("usp: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordUnhandledResponse increments UnhandledResponses with the offending path attached.
func (m *Metrics) RecordUnhandledResponse(ctx context.Context, path string) {
	m.UnhandledResponses.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
}

// RecordTransportError increments TransportErrors for code.
func (m *Metrics) RecordTransportError(ctx context.Context, code ErrorCode) {
	m.TransportErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code.String())))
}

// RecordTurnDuration records the observed duration of one completed turn,
// in seconds.
func (m *Metrics) RecordTurnDuration(ctx context.Context, seconds float64) {
	m.TurnDuration.Record(ctx, seconds)
}
