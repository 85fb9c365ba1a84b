package dispatcher

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kiln-ai/router/pkg/models"
)

// Tracer wraps an OpenTelemetry tracer with a one-span-per-dispatch
// pattern: one span covers authorization, routing, the adapter call, and
// terminal accounting.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps otel.Tracer(instrumentationName). A nil *Tracer is
// valid and produces no-op spans (every method tolerates a nil receiver),
// so tracing can be left unwired entirely.
func NewTracer(instrumentationName string) *Tracer {
	return &Tracer{tracer: otel.Tracer(instrumentationName)}
}

// Start opens a span named after the provider being dispatched to.
func (t *Tracer) Start(ctx context.Context, provider models.ProviderId, model string) (context.Context, *Span) {
	if t == nil || t.tracer == nil {
		return ctx, &Span{}
	}
	ctx, raw := t.tracer.Start(ctx, "dispatch."+string(provider), trace.WithSpanKind(trace.SpanKindClient))
	raw.SetAttributes(
		attribute.String("ai.provider", string(provider)),
		attribute.String("ai.model", model),
	)
	return ctx, &Span{raw: raw}
}

// Span wraps a trace.Span so callers never need a nil check; a zero
// Span's methods are no-ops.
type Span struct {
	raw trace.Span
}

// SetFinishReason records the terminal finish reason as a span attribute.
func (s *Span) SetFinishReason(reason models.FinishReason) {
	if s == nil || s.raw == nil {
		return
	}
	s.raw.SetAttributes(attribute.String("ai.finish_reason", string(reason)))
}

// RecordError records err on the span and marks it as failed.
func (s *Span) RecordError(err error) {
	if s == nil || s.raw == nil || err == nil {
		return
	}
	s.raw.RecordError(err)
	s.raw.SetStatus(codes.Error, err.Error())
}

// End closes the span.
func (s *Span) End() {
	if s == nil || s.raw == nil {
		return
	}
	s.raw.End()
}
