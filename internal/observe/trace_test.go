package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer installs an in-memory tracer as the global provider for the
// duration of the test. Tests using it must not run in parallel.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestCorrelationID(t *testing.T) {
	useTestTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("no span: want empty, got %q", got)
	}

	seen := make(map[string]bool)
	for range 20 {
		ctx, span := StartSpan(context.Background(), "turn")
		cid := CorrelationID(ctx)
		span.End()
		if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
			t.Fatalf("correlation id %q is not 32 hex chars", cid)
		}
		if seen[cid] {
			t.Fatalf("duplicate correlation id %s", cid)
		}
		seen[cid] = true
	}
}

func TestEndSpan(t *testing.T) {
	exp := useTestTracer(t)

	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
		wantEvts int
	}{
		{"stt.transcribe", nil, codes.Unset, 0},
		{"tts.synthesize", errors.New("elevenlabs: HTTP 401"), codes.Error, 1},
	}
	for _, tc := range tests {
		_, span := StartSpan(context.Background(), tc.name)
		EndSpan(span, tc.err)
	}

	spans := exp.GetSpans()
	if len(spans) != len(tests) {
		t.Fatalf("spans: want %d, got %d", len(tests), len(spans))
	}
	for i, tc := range tests {
		s := spans[i]
		if s.Name != tc.name {
			t.Errorf("span %d: name %q, want %q", i, s.Name, tc.name)
		}
		if s.Status.Code != tc.wantCode {
			t.Errorf("%s: status %v, want %v", tc.name, s.Status.Code, tc.wantCode)
		}
		if len(s.Events) != tc.wantEvts {
			t.Errorf("%s: events %d, want %d", tc.name, len(s.Events), tc.wantEvts)
		}
	}
	if spans[1].Status.Description != "elevenlabs: HTTP 401" {
		t.Errorf("status description: %q", spans[1].Status.Description)
	}
}

func TestStartSpan_NestsUnderParent(t *testing.T) {
	exp := useTestTracer(t)

	ctx, turn := StartSpan(context.Background(), "turn")
	_, stage := StartSpan(ctx, "llm.generate")
	stage.End()
	turn.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans: want 2, got %d", len(spans))
	}
	child, parent := spans[0], spans[1]
	if child.Parent.SpanID() != parent.SpanContext.SpanID() {
		t.Error("stage span is not a child of the turn span")
	}
	if child.SpanContext.TraceID() != parent.SpanContext.TraceID() {
		t.Error("stage span has a different trace id")
	}
}

func TestLogger(t *testing.T) {
	useTestTracer(t)
	buf := captureLogs(t)

	Logger(context.Background()).Info("no span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log without span should not carry trace_id: %s", buf)
	}
	buf.Reset()

	ctx, span := StartSpan(context.Background(), "turn")
	defer span.End()
	Logger(ctx).Info("turn failed", "kind", "synthesis")

	out := buf.String()
	if !strings.Contains(out, "trace_id="+CorrelationID(ctx)) || !strings.Contains(out, "span_id=") {
		t.Errorf("log output missing trace ids: %s", out)
	}
	if !strings.Contains(out, "kind=synthesis") {
		t.Errorf("log output missing attributes: %s", out)
	}
}

func TestStartStage(t *testing.T) {
	exp := useTestTracer(t)

	tests := []struct {
		stage, provider, wantName string
	}{
		{StageSTT, "whisper", "stt.transcribe"},
		{StageLLM, "openai", "llm.generate"},
		{StageTTS, "elevenlabs", "tts.synthesize"},
		{"rerank", "local", "rerank"},
	}
	ctx, turn := StartTurn(context.Background(), "elsa", 4)
	for _, tc := range tests {
		_, span := StartStage(ctx, tc.stage, tc.provider)
		span.End()
	}
	turn.End()

	spans := exp.GetSpans()
	if len(spans) != len(tests)+1 {
		t.Fatalf("spans: want %d, got %d", len(tests)+1, len(spans))
	}
	root := spans[len(spans)-1]
	if root.Name != "turn" {
		t.Fatalf("last span %q, want turn", root.Name)
	}
	if v := attrValue(root.Attributes, AttrCharacter); v != "elsa" {
		t.Errorf("turn character attribute %q, want elsa", v)
	}
	for i, tc := range tests {
		s := spans[i]
		if s.Name != tc.wantName {
			t.Errorf("span %d: name %q, want %q", i, s.Name, tc.wantName)
		}
		if got := attrValue(s.Attributes, AttrProvider); got != tc.provider {
			t.Errorf("%s: provider %q, want %q", s.Name, got, tc.provider)
		}
		if got := attrValue(s.Attributes, AttrStage); got != tc.stage {
			t.Errorf("%s: stage %q, want %q", s.Name, got, tc.stage)
		}
		if s.Parent.SpanID() != root.SpanContext.SpanID() {
			t.Errorf("%s: not a child of the turn span", s.Name)
		}
	}
}

func attrValue(attrs []attribute.KeyValue, key attribute.Key) string {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value.Emit()
		}
	}
	return ""
}
