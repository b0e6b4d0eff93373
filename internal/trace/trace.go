// Package trace is a thin wrapper over the global OpenTelemetry tracer
// provider for the build pipeline. Stages open spans through Start so
// callers never hold a tracer; when no provider is configured the spans
// are no-ops.
package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies this library's spans.
const TracerName = "mirage"

// Pipeline stage span names.
const (
	SpanLoad      = "mirage.load"
	SpanGraph     = "mirage.graph"
	SpanInline    = "mirage.inline"
	SpanTranspile = "mirage.transpile"
	SpanGenerate  = "mirage.generate"
	SpanWrite     = "mirage.write"
)

// Start opens a span for one pipeline stage on the named unit.
func Start(ctx context.Context, span, unit string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, span,
		trace.WithAttributes(attribute.String("mirage.unit", unit)))
}

// End finishes the span, recording err when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
