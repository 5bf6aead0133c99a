package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/palchat"

// Span attribute keys shared by the pipeline.
const (
	AttrStage     = attribute.Key("palchat.stage")
	AttrProvider  = attribute.Key("palchat.provider")
	AttrCharacter = attribute.Key("palchat.character")
)

// stageSpanNames maps a stage to its span name.
var stageSpanNames = map[string]string{
	StageSTT: "stt.transcribe",
	StageLLM: "llm.generate",
	StageTTS: "tts.synthesize",
}

// Tracer returns the palchat tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller ends it, usually via EndSpan.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartStage starts the span for one provider call of a pipeline stage
// (StageSTT, StageLLM or StageTTS) tagged with the stage and provider name.
func StartStage(ctx context.Context, stage, provider string) (context.Context, trace.Span) {
	name, ok := stageSpanNames[stage]
	if !ok {
		name = stage
	}
	return StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrStage.String(stage), AttrProvider.String(provider)),
	)
}

// StartTurn starts the span covering a whole turn for character.
func StartTurn(ctx context.Context, character string, historyLen int) (context.Context, trace.Span) {
	return StartSpan(ctx, "turn", trace.WithAttributes(
		AttrCharacter.String(character),
		attribute.Int("palchat.history_len", historyLen),
	))
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
// It is what clients see in the X-Correlation-ID header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger, with trace_id and span_id attached
// when ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}

// EndSpan marks span failed when err is non-nil and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
