package server

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/atrilabs/atri-runtime/pkg/server"

func newTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// startHookSpan starts the span of one hook invocation.
func startHookSpan(ctx context.Context, tracer trace.Tracer, s *Session, phase, eventType string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("atri.session_id", s.ID),
		attribute.String("atri.route", s.Route.Path),
		attribute.String("atri.phase", phase),
	}
	name := "atri.init"
	if phase == phaseEvent {
		name = "atri.event " + eventType
		attrs = append(attrs, attribute.String("atri.event_type", eventType))
	}
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// endHookSpan records the outcome and ends span.
func endHookSpan(span trace.Span, ops int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(CodeFor(err)))
	} else {
		span.SetAttributes(attribute.Int("atri.delta_ops", ops))
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
