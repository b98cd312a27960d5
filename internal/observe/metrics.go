// Package observe provides application-wide observability primitives for
// Intervox: OpenTelemetry metrics, tracing helpers, context-aware logging
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped from /metrics. [DefaultMetrics] returns a lazily created instance
// bound to the global meter provider; tests should use [NewMetrics] with a
// dedicated [metric.MeterProvider].
package observe

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/intervox"

// Metrics holds all OpenTelemetry metric instruments for the application.
type Metrics struct {
	// LLMDuration tracks the latency of a single provider attempt.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks the synthesis latency of one narration chunk.
	TTSDuration metric.Float64Histogram

	// EvaluationDuration tracks answer submission to evaluation applied.
	EvaluationDuration metric.Float64Histogram

	// ProviderRequests counts provider attempts. Attributes: provider,
	// credential, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed attempts. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// CredentialFailures counts credentials marked failed. Attribute: provider.
	CredentialFailures metric.Int64Counter

	// RouterExhausted counts requests where every credential had failed.
	RouterExhausted metric.Int64Counter

	// QuestionsAsked counts top-level questions. Attributes: interview_type,
	// source (provider or fallback).
	QuestionsAsked metric.Int64Counter

	// AnswersDropped counts submissions rejected while an evaluation was in
	// flight.
	AnswersDropped metric.Int64Counter

	// SessionsCompleted counts finalized sessions. Attributes:
	// interview_type, reason.
	SessionsCompleted metric.Int64Counter

	// ActiveSessions tracks the number of running interview sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, route.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets (seconds) sized for LLM round trips, which are much slower
// than audio frames.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.LLMDuration, err = m.Float64Histogram("intervox.llm.duration",
		metric.WithDescription("Latency of a single LLM provider attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("intervox.tts.duration",
		metric.WithDescription("Latency of narrating one text chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EvaluationDuration, err = m.Float64Histogram("intervox.evaluation.duration",
		metric.WithDescription("Time from answer submission to applied evaluation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("intervox.provider.requests",
		metric.WithDescription("Provider attempts by provider, credential and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("intervox.provider.errors",
		metric.WithDescription("Failed provider attempts by provider and error kind."),
	); err != nil {
		return nil, err
	}
	if met.CredentialFailures, err = m.Int64Counter("intervox.credential.failures",
		metric.WithDescription("Credentials marked failed for the current epoch."),
	); err != nil {
		return nil, err
	}
	if met.RouterExhausted, err = m.Int64Counter("intervox.router.exhausted",
		metric.WithDescription("Requests that found every credential failed."),
	); err != nil {
		return nil, err
	}
	if met.QuestionsAsked, err = m.Int64Counter("intervox.questions.asked",
		metric.WithDescription("Top-level interview questions by interview type and source."),
	); err != nil {
		return nil, err
	}
	if met.AnswersDropped, err = m.Int64Counter("intervox.answers.dropped",
		metric.WithDescription("Answer submissions dropped while an evaluation was in flight."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCompleted, err = m.Int64Counter("intervox.sessions.completed",
		metric.WithDescription("Finalized interview sessions by type and termination reason."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("intervox.active_sessions",
		metric.WithDescription("Number of running interview sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("intervox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records one provider attempt.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider string, credential int, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("credential", strconv.Itoa(credential)),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a failed provider attempt and the credential
// failure it caused.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	attrs := metric.WithAttributes(attribute.String("provider", provider), attribute.String("kind", kind))
	m.ProviderErrors.Add(ctx, 1, attrs)
	m.CredentialFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordQuestion records a top-level question and where it came from.
func (m *Metrics) RecordQuestion(ctx context.Context, interviewType, source string) {
	m.QuestionsAsked.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("interview_type", interviewType),
			attribute.String("source", source),
		),
	)
}

// RecordSessionCompleted records a finalized session.
func (m *Metrics) RecordSessionCompleted(ctx context.Context, interviewType, reason string) {
	m.SessionsCompleted.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("interview_type", interviewType),
			attribute.String("reason", reason),
		),
	)
}
