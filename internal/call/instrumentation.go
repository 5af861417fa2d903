package call

import (
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/gosuda/callsim/internal/call"

type engineOptions struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

// WithTracerProvider sets where turn and step spans go. The global provider
// is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(o *engineOptions) { o.tracerProvider = tp }
}

// WithMeterProvider sets where turn counters are recorded. The global
// provider is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) EngineOption {
	return func(o *engineOptions) { o.meterProvider = mp }
}

func newEngineOptions(opts []EngineOption) engineOptions {
	o := engineOptions{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newCounter(m metric.Meter, name, description string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		log.Warn().Err(err).Str("instrument", name).Msg("create counter")
		return noop.Int64Counter{}
	}
	return c
}
