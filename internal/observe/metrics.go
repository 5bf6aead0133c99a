// Package observe holds palchat's observability plumbing: OpenTelemetry
// metrics exported to Prometheus, tracing helpers for turns and pipeline
// stages, a trace-aware slog accessor and the HTTP middleware that ties
// them to requests.
//
// Tests should build their own [Metrics] with [NewMetrics] over a private
// meter provider; [DefaultMetrics] binds to the global one.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/palchat"

// Pipeline stages, used as the "stage" attribute on stage metrics and spans
// and as "kind" on the provider counters.
const (
	StageSTT = "stt"
	StageLLM = "llm"
	StageTTS = "tts"
)

// Metrics holds the instruments. All fields are safe for concurrent use.
type Metrics struct {
	// StageDuration is the latency of one provider call, by stage and provider.
	StageDuration metric.Float64Histogram

	// TurnDuration is the latency of a whole turn, by character.
	TurnDuration metric.Float64Histogram

	// ProviderRequests counts provider calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed provider calls by provider and kind.
	ProviderErrors metric.Int64Counter

	// Turns counts finished turns by character and status.
	Turns metric.Int64Counter

	// ActiveSessions is the number of live chat sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration is request latency by method, route and status class.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets suit round trips to hosted speech and language services,
// which range from tens of milliseconds to tens of seconds.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	latency := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	var (
		met  Metrics
		errs [7]error
	)
	met.StageDuration, errs[0] = latency("palchat.stage.duration", "Latency of one provider call by pipeline stage.")
	met.TurnDuration, errs[1] = latency("palchat.turn.duration", "Latency of a full conversation turn.")
	met.ProviderRequests, errs[2] = m.Int64Counter("palchat.provider.requests",
		metric.WithDescription("Provider calls by provider, kind and status."))
	met.ProviderErrors, errs[3] = m.Int64Counter("palchat.provider.errors",
		metric.WithDescription("Failed provider calls by provider and kind."))
	met.Turns, errs[4] = m.Int64Counter("palchat.turns",
		metric.WithDescription("Finished conversation turns by character and status."))
	met.ActiveSessions, errs[5] = m.Int64UpDownCounter("palchat.active_sessions",
		metric.WithDescription("Live chat sessions."))
	met.HTTPRequestDuration, errs[6] = m.Float64Histogram("palchat.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status class."),
		metric.WithUnit("s"))

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return &met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns instruments bound to the global meter provider,
// created on first use. Call it after [InitProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		if defaultMetrics, err = NewMetrics(otel.GetMeterProvider()); err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordStage records one provider call of stage that took elapsed and
// ended with err.
func (m *Metrics) RecordStage(ctx context.Context, stage, provider string, elapsed time.Duration, err error) {
	m.StageDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("provider", provider),
	))
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", stage),
		attribute.String("status", status(err)),
	))
	if err != nil {
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", stage),
		))
	}
}

// RecordTurn records one finished turn for character.
func (m *Metrics) RecordTurn(ctx context.Context, character string, elapsed time.Duration, err error) {
	m.TurnDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("character", character)))
	m.Turns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("character", character),
		attribute.String("status", status(err)),
	))
}
