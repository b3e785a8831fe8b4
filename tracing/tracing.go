// Package tracing emits OpenTelemetry GenAI spans around agent and engine
// execution. Spans are created through the global tracer provider; when no
// provider is registered every span is a no-op, so instrumented code pays
// nothing unless the host application wires up an OTel SDK.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies this instrumentation scope.
const TracerName = "agentharness"

// ProviderName is recorded as gen_ai.provider.name on every span.
const ProviderName = "anthropic"

func tracer() trace.Tracer { return otel.Tracer(TracerName) }

// Span wraps an OTel span with GenAI attribute helpers. A nil Span is safe
// to use.
type Span struct {
	span trace.Span
}

// StartAgentSpan opens an invoke_agent span covering one full agent run.
func StartAgentSpan(ctx context.Context, agentName, model string) (context.Context, *Span) {
	ctx, span := tracer().Start(ctx, "invoke_agent "+agentName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "invoke_agent"),
			attribute.String("gen_ai.provider.name", ProviderName),
			attribute.String("gen_ai.agent.name", agentName),
			attribute.String("gen_ai.request.model", model),
		),
	)
	return ctx, &Span{span: span}
}

// StartChatSpan opens a chat span covering one engine round-trip.
func StartChatSpan(ctx context.Context, model string) (context.Context, *Span) {
	ctx, span := tracer().Start(ctx, "chat "+model,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "chat"),
			attribute.String("gen_ai.provider.name", ProviderName),
			attribute.String("gen_ai.request.model", model),
		),
	)
	return ctx, &Span{span: span}
}

// StartToolSpan opens an execute_tool span for one tool invocation. Custom
// agent loops that run their own tools can use it to keep tool latency
// visible under the enclosing agent span.
func StartToolSpan(ctx context.Context, toolName, toolCallID string) (context.Context, *Span) {
	ctx, span := tracer().Start(ctx, "execute_tool "+toolName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "execute_tool"),
			attribute.String("gen_ai.tool.name", toolName),
			attribute.String("gen_ai.tool.call.id", toolCallID),
		),
	)
	return ctx, &Span{span: span}
}

// RecordUsage sets token usage attributes on the span.
func (s *Span) RecordUsage(inputTokens, outputTokens int64) {
	if s == nil {
		return
	}
	s.span.SetAttributes(
		attribute.Int64("gen_ai.usage.input_tokens", inputTokens),
		attribute.Int64("gen_ai.usage.output_tokens", outputTokens),
	)
}

// End closes the span. A non-nil err marks the span as failed and records
// the error type.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.SetStatus(codes.Error, err.Error())
		s.span.SetAttributes(attribute.String("error.type", fmt.Sprintf("%T", err)))
	}
	s.span.End()
}
