package boxoffice

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"

// startSpan opens a span on the global tracer provider. The returned func ends it and records err.
func startSpan(ctx context.Context, name string, attributes ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	span.SetAttributes(attributes...)
	return ctx, func(err error) {
		if err != nil {
			category, reason := Classify(err)
			span.SetAttributes(attribute.String("error.category", string(category)), attribute.String("error.reason", reason))
			span.RecordError(err)
			span.SetStatus(codes.Error, reason)
		}
		span.End()
	}
}
