package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// CallMeta describes one gateway operation for telemetry purposes: an
// agent's trading/market/account call, an inbound event dispatch, or a
// supervisor lifecycle transition.
type CallMeta struct {
	ID        string   // Fully qualified call ID (component.operation or just operation)
	Component string   // Owning component (agent, router, supervisor, ...)
	Operation string   // Operation name (required)
	AgentID   string   // Agent the call is scoped to (optional)
	Tags      []string // Free-form tags for discovery (optional)
}

// SpanName returns the deterministic span name for this call.
// Format: gateway.<component>.<operation> or gateway.<operation>
func (m CallMeta) SpanName() string {
	if m.Component != "" {
		return "gateway." + m.Component + "." + m.Operation
	}
	return "gateway." + m.Operation
}

// CallID returns the fully qualified call identifier.
func (m CallMeta) CallID() string {
	if m.ID != "" {
		return m.ID
	}
	if m.Component != "" {
		return m.Component + "." + m.Operation
	}
	return m.Operation
}

// Validate returns ErrMissingOperation if Operation is empty.
func (m CallMeta) Validate() error {
	if m.Operation == "" {
		return ErrMissingOperation
	}
	return nil
}

// Tracer wraps OpenTelemetry tracing with call-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: StartSpan derives the returned context from ctx; it does not check ctx for cancellation.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a gateway operation.
	StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// newTracer creates a new Tracer wrapping the given OpenTelemetry tracer.
func newTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// NewTracer wraps an OpenTelemetry tracer (e.g. Observer.Tracer()) as a
// Tracer, for callers assembling components outside a Middleware pipeline.
func NewTracer(t trace.Tracer) Tracer {
	return newTracer(t)
}

// StartSpan starts a new span with call metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	spanName := meta.SpanName()

	attrs := []attribute.KeyValue{
		attribute.String("gateway.call_id", meta.CallID()),
		attribute.String("gateway.operation", meta.Operation),
		attribute.Bool("gateway.error", false), // Updated in EndSpan if error
	}

	if meta.Component != "" {
		attrs = append(attrs, attribute.String("gateway.component", meta.Component))
	}
	if meta.AgentID != "" {
		attrs = append(attrs, attribute.String("gateway.agent_id", meta.AgentID))
	}
	if len(meta.Tags) > 0 {
		attrs = append(attrs, attribute.StringSlice("gateway.tags", meta.Tags))
	}

	ctx, span := t.tracer.Start(ctx, spanName,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	return ctx, span
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("gateway.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

// NewNoopTracer returns a Tracer that starts real (but unexported) no-op
// spans, for components that accept an optional tracer and fall back to
// silence when none is configured.
func NewNoopTracer() Tracer { return newNoopTracer() }

// newNoopTracer creates a no-op tracer.
func newNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
