package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	TokensUsed          metric.Int64Counter
	IngestChunks        metric.Int64Counter
	IngestDuration      metric.Float64Histogram
	QueryDuration       metric.Float64Histogram
	EmbeddingFailures   metric.Int64Counter
	CacheLookups        metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics registers instruments on the global meter provider.
func InitMetrics(serviceName string) (*Metrics, error) {
	meter := otel.Meter(serviceName)
	m := &Metrics{}
	var err error

	if m.RequestCounter, err = meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	); err != nil {
		return nil, err
	}
	if m.RequestDuration, err = meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.TokensUsed, err = meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	); err != nil {
		return nil, err
	}
	if m.IngestChunks, err = meter.Int64Counter(
		"rag.ingest.chunks",
		metric.WithDescription("Chunks processed during ingestion, by outcome"),
	); err != nil {
		return nil, err
	}
	if m.IngestDuration, err = meter.Float64Histogram(
		"rag.ingest.duration",
		metric.WithDescription("Material ingestion duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.QueryDuration, err = meter.Float64Histogram(
		"rag.query.duration",
		metric.WithDescription("Retrieval query duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.EmbeddingFailures, err = meter.Int64Counter(
		"rag.embedding.failures",
		metric.WithDescription("Chunks skipped because the embedding provider failed"),
	); err != nil {
		return nil, err
	}
	if m.CacheLookups, err = meter.Int64Counter(
		"rag.cache.lookups",
		metric.WithDescription("Context cache lookups, by hit or miss"),
	); err != nil {
		return nil, err
	}
	if m.CircuitBreakerState, err = meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(ctx context.Context, method, route, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.String("http.status", status),
	)
	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, duration, attrs)
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(ctx context.Context, tokens int64, model, operation string) {
	if m == nil {
		return
	}
	m.TokensUsed.Add(ctx, tokens, metric.WithAttributes(
		attribute.String("gemini.model", model),
		attribute.String("operation", operation),
	))
}

// RecordIngestion records the outcome of one material ingestion.
func (m *Metrics) RecordIngestion(ctx context.Context, stored, skipped int, duration float64, status string) {
	if m == nil {
		return
	}
	m.IngestChunks.Add(ctx, int64(stored), metric.WithAttributes(attribute.String("outcome", "stored")))
	if skipped > 0 {
		m.IngestChunks.Add(ctx, int64(skipped), metric.WithAttributes(attribute.String("outcome", "skipped")))
		m.EmbeddingFailures.Add(ctx, int64(skipped))
	}
	m.IngestDuration.Record(ctx, duration, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) RecordQuery(ctx context.Context, duration float64, matches int, source string) {
	if m == nil {
		return
	}
	m.QueryDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("empty", matches == 0),
	))
}

func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(ctx context.Context, service, state string) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("state", state),
	))
}
