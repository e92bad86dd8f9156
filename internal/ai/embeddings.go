package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"elearning-platform/internal/rag"
	"elearning-platform/internal/telemetry"
)

// embedFunc performs one raw embedding call.
type embedFunc func(ctx context.Context, text string) ([]float32, error)

// GeminiEmbedder implements rag.Embedder on top of the Google embedding
// models (text-embedding-004 by default). Calls go through a client-side rate
// limiter and a circuit breaker; every failure surfaces as
// *rag.EmbeddingUnavailableError.
type GeminiEmbedder struct {
	client  *genai.Client
	embed   embedFunc
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model, tier string, logger *slog.Logger) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, &rag.ConfigurationError{Field: "gemini_api_key", Reason: "is empty"}
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	em := client.EmbeddingModel(model)
	fn := func(ctx context.Context, text string) ([]float32, error) {
		resp, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil {
			return nil, errors.New("no embedding returned")
		}
		return resp.Embedding.Values, nil
	}

	e := newEmbedder(fn, getRateLimits(tier), logger)
	e.client = client
	return e, nil
}

func newEmbedder(fn embedFunc, limits RateLimits, logger *slog.Logger) *GeminiEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	// Embedding quotas are roughly 15x the generate quotas on every tier.
	rpm := limits.RPM * 15
	e := &GeminiEmbedder{
		embed:   fn,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)*0.9/60.0), max(rpm/10, 1)),
		logger:  logger,
	}
	e.breaker = newBreaker("GeminiEmbeddings", logger, e.recordState)
	return e
}

// SetMetrics reports breaker state changes to m. Call it before first use.
func (e *GeminiEmbedder) SetMetrics(m *telemetry.Metrics) { e.metrics = m }

func (e *GeminiEmbedder) recordState(name, state string) {
	e.metrics.RecordCircuitBreakerState(context.Background(), name, state)
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &rag.EmbeddingUnavailableError{Err: errors.New("empty text")}
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, &rag.EmbeddingUnavailableError{Err: fmt.Errorf("rate limiter: %w", err)}
	}

	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.embed(ctx, text)
	})
	if err != nil {
		return nil, &rag.EmbeddingUnavailableError{Err: err}
	}
	return result.([]float32), nil
}

func (e *GeminiEmbedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// newBreaker opens after three requests in a 10s window with at least 60%
// failures, then lets a trial request through after a minute.
func newBreaker(name string, logger *slog.Logger, observe func(name, state string)) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		// Blocked prompts and caller cancellations say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrContentBlocked) || errors.Is(err, context.Canceled)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if observe != nil {
				observe(name, to.String())
			}
			if to == gobreaker.StateOpen {
				logger.Error("Circuit breaker opened - AI service degraded", "breaker", name, "from", from.String())
				return
			}
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

var _ rag.Embedder = (*GeminiEmbedder)(nil)
