// Package external wraps the AI capabilities with circuit breakers and
// latency metrics. Provider clients live in the sub-packages.
package external

import (
	"context"
	"time"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/review"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/internal/infrastructure/metrics"
	"github.com/skillmate/skillmate-core/pkg/circuitbreaker"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

// BreakerSettings configures a capability breaker.
type BreakerSettings struct {
	Threshold   int
	OpenTimeout time.Duration
}

func newBreaker[T any](name string, s BreakerSettings, log *logger.Logger) *circuitbreaker.Breaker[T] {
	cfg := circuitbreaker.DefaultConfig(name)
	if s.Threshold > 0 {
		cfg.FailureThreshold = uint32(s.Threshold)
	}
	if s.OpenTimeout > 0 {
		cfg.OpenTimeout = s.OpenTimeout
	}
	cfg.OnStateChange = func(name, from, to string) {
		metrics.RecordBreakerState(name, to)
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name), logger.String("from", from), logger.String("to", to))
	}
	return circuitbreaker.New[T](cfg)
}

// ══════════════════════════════════════════════════════════════════════════════
// TOPIC GENERATOR
// ══════════════════════════════════════════════════════════════════════════════

// GuardedGenerator decorates a coursepath.TopicGenerator.
type GuardedGenerator struct {
	inner    coursepath.TopicGenerator
	provider string
	breaker  *circuitbreaker.Breaker[[]coursepath.GeneratedTopic]
}

// NewGuardedGenerator wraps inner. provider labels metrics ("gemini", "analyzer").
func NewGuardedGenerator(inner coursepath.TopicGenerator, provider string, s BreakerSettings, log *logger.Logger) *GuardedGenerator {
	return &GuardedGenerator{
		inner:    inner,
		provider: provider,
		breaker:  newBreaker[[]coursepath.GeneratedTopic]("generation-"+provider, s, log),
	}
}

// GenerateTopics implements coursepath.TopicGenerator. An open circuit yields
// ErrGeneratorUnavailable without calling the provider.
func (g *GuardedGenerator) GenerateTopics(ctx context.Context, subject string, difficulty shared.Difficulty) ([]coursepath.GeneratedTopic, error) {
	start := time.Now()
	topics, err := g.breaker.Execute(ctx, func(ctx context.Context) ([]coursepath.GeneratedTopic, error) {
		return g.inner.GenerateTopics(ctx, subject, difficulty)
	})
	metrics.RecordCapability("generation", g.provider, start, err)
	if circuitbreaker.IsOpen(err) {
		return nil, shared.WrapError("generation", "Request", shared.ErrServiceUnavailable,
			"topic generator is unavailable", shared.ErrGeneratorUnavailable)
	}
	return topics, err
}

// ══════════════════════════════════════════════════════════════════════════════
// SENTIMENT CLASSIFIER
// ══════════════════════════════════════════════════════════════════════════════

// GuardedClassifier decorates a review.SentimentClassifier.
type GuardedClassifier struct {
	inner    review.SentimentClassifier
	provider string
	breaker  *circuitbreaker.Breaker[review.Classification]
}

// NewGuardedClassifier wraps inner.
func NewGuardedClassifier(inner review.SentimentClassifier, provider string, s BreakerSettings, log *logger.Logger) *GuardedClassifier {
	return &GuardedClassifier{
		inner:    inner,
		provider: provider,
		breaker:  newBreaker[review.Classification]("sentiment-"+provider, s, log),
	}
}

// Classify implements review.SentimentClassifier.
func (c *GuardedClassifier) Classify(ctx context.Context, text string) (review.Classification, error) {
	start := time.Now()
	out, err := c.breaker.Execute(ctx, func(ctx context.Context) (review.Classification, error) {
		return c.inner.Classify(ctx, text)
	})
	metrics.RecordCapability("sentiment", c.provider, start, err)
	if err != nil {
		return review.Classification{}, shared.WrapError("sentiment", "Classify", shared.ErrExternalService,
			"sentiment classification failed", err)
	}
	return out, nil
}
