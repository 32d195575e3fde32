package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Ключи атрибутов span'ов.
const (
	AttrWorkflowID  = attribute.Key("fieldflow.workflow.id")
	AttrExecutionID = attribute.Key("fieldflow.execution.id")
	AttrMessageID   = attribute.Key("fieldflow.message.id")
	AttrTriggerType = attribute.Key("fieldflow.trigger.type")
	AttrStepID      = attribute.Key("fieldflow.step.id")
	AttrSubtype     = attribute.Key("fieldflow.step.subtype")
	AttrChannel     = attribute.Key("fieldflow.channel")
)

// SetupTracing создаёт tracer.
//
// Если трейсинг выключен, возвращает noop tracer и пустую функцию shutdown.
// Экспортёр OTLP/HTTP настраивается стандартными OTEL_EXPORTER_OTLP_* переменными.
func SetupTracing(ctx context.Context, serviceName string, enabled bool) (trace.Tracer, func(context.Context) error, error) {
	if !enabled {
		return noop.NewTracerProvider().Tracer(serviceName), func(context.Context) error { return nil }, nil
	}

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp.Tracer(serviceName), tp.Shutdown, nil
}

// Tracer возвращает tracer или noop, если t == nil.
func Tracer(t trace.Tracer) trace.Tracer {
	if t == nil {
		return noop.NewTracerProvider().Tracer("fieldflow")
	}
	return t
}

// StartSpan начинает span с атрибутами.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer(tracer).Start(ctx, name, trace.WithAttributes(attrs...))
}
