// Package sentiment provides the offline lexicon classifier and a fallback
// combinator for remote classifiers.
package sentiment

import (
	"context"
	"strings"
	"unicode"

	"github.com/skillmate/skillmate-core/internal/domain/review"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// threshold is the minimum |score| for a non-neutral label.
const threshold = 0.2

var positiveWords = map[string]float64{
	"good": 1, "great": 2, "excellent": 2, "amazing": 2, "awesome": 2, "love": 2, "loved": 2,
	"helpful": 1, "clear": 1, "useful": 1, "recommend": 1, "recommended": 1, "fantastic": 2,
	"best": 2, "enjoyed": 1, "perfect": 2, "easy": 1, "well": 1, "nice": 1, "informative": 1,
}

var negativeWords = map[string]float64{
	"bad": 1, "poor": 1, "terrible": 2, "awful": 2, "boring": 1, "confusing": 1, "useless": 2,
	"waste": 2, "hate": 2, "hated": 2, "worst": 2, "outdated": 1, "unclear": 1, "broken": 1,
	"disappointing": 2, "slow": 1, "hard": 1, "wrong": 1, "missing": 1,
}

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "isn't": true, "wasn't": true, "don't": true,
	"didn't": true, "doesn't": true, "hardly": true,
}

// Lexicon is a word-list classifier. It never fails and never blocks.
type Lexicon struct{}

// NewLexicon creates a lexicon classifier.
func NewLexicon() *Lexicon {
	return &Lexicon{}
}

// Classify scores text in [-1, 1]. A negator flips the next scored word.
func (l *Lexicon) Classify(_ context.Context, text string) (review.Classification, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	if len(words) == 0 {
		return review.Neutral(), nil
	}

	var sum, weight float64
	negate := false
	for _, w := range words {
		if negators[w] {
			negate = true
			continue
		}
		s := positiveWords[w] - negativeWords[w]
		if s == 0 {
			continue
		}
		if negate {
			s = -s
			negate = false
		}
		sum += s
		weight += abs(s)
	}
	if weight == 0 {
		return review.Neutral(), nil
	}

	score := shared.RoundTo(sum/weight, 2)
	switch {
	case score >= threshold:
		return review.Classification{Label: shared.SentimentPositive, Score: score}, nil
	case score <= -threshold:
		return review.Classification{Label: shared.SentimentNegative, Score: score}, nil
	default:
		return review.Classification{Label: shared.SentimentNeutral, Score: score}, nil
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Fallback tries primary and falls back to secondary on error.
type Fallback struct {
	primary   review.SentimentClassifier
	secondary review.SentimentClassifier
}

// WithFallback combines two classifiers.
func WithFallback(primary, secondary review.SentimentClassifier) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

// Classify implements review.SentimentClassifier.
func (f *Fallback) Classify(ctx context.Context, text string) (review.Classification, error) {
	c, err := f.primary.Classify(ctx, text)
	if err == nil {
		return c, nil
	}
	if ctx.Err() != nil {
		return review.Classification{}, err
	}
	return f.secondary.Classify(ctx, text)
}
