package sentiment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmate/skillmate-core/internal/domain/review"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

func TestLexicon_Classify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want shared.Sentiment
	}{
		{"positive", "Great course, very helpful and clear!", shared.SentimentPositive},
		{"negative", "Boring and outdated. A waste of time.", shared.SentimentNegative},
		{"negated positive", "It was not good", shared.SentimentNegative},
		{"no signal", "I watched the videos on Tuesday", shared.SentimentNeutral},
		{"empty", "", shared.SentimentNeutral},
		{"mixed", "good but confusing", shared.SentimentNeutral},
	}

	l := NewLexicon()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Classify(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Label)
			assert.GreaterOrEqual(t, got.Score, -1.0)
			assert.LessOrEqual(t, got.Score, 1.0)
		})
	}
}

type failing struct{}

func (failing) Classify(context.Context, string) (review.Classification, error) {
	return review.Classification{}, errors.New("unavailable")
}

func TestFallback(t *testing.T) {
	f := WithFallback(failing{}, NewLexicon())
	got, err := f.Classify(context.Background(), "excellent")
	require.NoError(t, err)
	assert.Equal(t, shared.SentimentPositive, got.Label)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Classify(ctx, "excellent")
	assert.Error(t, err)
}
