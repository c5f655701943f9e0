package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/skanga/conductor/core"
)

// OTelTelemetry implements core.Telemetry over the OpenTelemetry tracer
// API. Exporter and SDK wiring belong to the embedding application; this
// adapter only creates spans against whatever global tracer provider is
// installed, so it degrades to no-ops when none is.
type OTelTelemetry struct {
	tracer trace.Tracer
}

// NewOTelTelemetry creates a telemetry adapter. serviceName becomes the
// instrumentation scope name.
func NewOTelTelemetry(serviceName string) *OTelTelemetry {
	return &OTelTelemetry{
		tracer: otel.Tracer(serviceName),
	}
}

// StartSpan begins a span and returns the derived context
func (t *OTelTelemetry) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric is a no-op: the value is not recorded, neither as a metric
// instrument nor as a span event.
func (t *OTelTelemetry) RecordMetric(name string, value float64, labels map[string]string) {
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	if err != nil {
		s.span.RecordError(err)
	}
}
