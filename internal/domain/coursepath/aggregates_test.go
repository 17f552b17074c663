package coursepath

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

func TestAggregates_InsertThenUpdate(t *testing.T) {
	var a Aggregates
	assert.Nil(t, a.AverageRating())

	a, err := a.WithReviewInserted(5, shared.SentimentPositive)
	require.NoError(t, err)
	a, err = a.WithReviewInserted(4, shared.SentimentNeutral)
	require.NoError(t, err)

	require.NotNil(t, a.AverageRating())
	assert.Equal(t, 4.5, *a.AverageRating())
	assert.Equal(t, 2, a.ReviewCount)
	assert.Equal(t, SentimentSummary{Positive: 1, Neutral: 1}, a.Sentiment)

	// user A changes 5/positive to 3/negative
	a, err = a.WithReviewUpdated(5, 3, shared.SentimentPositive, shared.SentimentNegative)
	require.NoError(t, err)
	assert.Equal(t, 2, a.ReviewCount)
	assert.Equal(t, 3.5, *a.AverageRating())
	assert.Equal(t, SentimentSummary{Neutral: 1, Negative: 1}, a.Sentiment)
	assert.Equal(t, [5]int{0, 0, 1, 1, 0}, a.RatingDistribution)
}

func TestAggregates_UpdateWithZeroCountIsDrift(t *testing.T) {
	var a Aggregates
	_, err := a.WithReviewUpdated(3, 4, shared.SentimentNeutral, shared.SentimentPositive)
	require.Error(t, err)
	assert.True(t, shared.IsDrift(err))
}

func TestAggregates_InconsistentStateIsDrift(t *testing.T) {
	a := Aggregates{ReviewCount: 2, RatingSum: 9, RatingDistribution: [5]int{0, 0, 0, 1, 1}}
	// sentiment summary does not add up to review count
	_, err := a.WithReviewInserted(5, shared.SentimentPositive)
	assert.True(t, shared.IsDrift(err))

	_, err = Aggregates{}.WithEnrollmentDelta(-1)
	assert.True(t, shared.IsDrift(err))
}

func TestAggregates_RejectsInvalidRating(t *testing.T) {
	_, err := Aggregates{}.WithReviewInserted(6, shared.SentimentPositive)
	require.Error(t, err)
	assert.Equal(t, "rating", shared.FieldOf(err))
}

func TestAggregates_AverageRounding(t *testing.T) {
	a := Recompute(0, []ReviewSample{
		{Rating: 5, Sentiment: shared.SentimentPositive},
		{Rating: 4, Sentiment: shared.SentimentPositive},
		{Rating: 4, Sentiment: shared.SentimentNeutral},
	})
	assert.Equal(t, 4.33, *a.AverageRating())
	assert.Equal(t, 13, a.RatingSum)
}

// Incremental transitions must always agree with a full recomputation.
func TestAggregates_IncrementalMatchesRecompute(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	labels := []shared.Sentiment{shared.SentimentPositive, shared.SentimentNeutral, shared.SentimentNegative}

	for round := 0; round < 50; round++ {
		reviews := map[int]ReviewSample{}
		enrolled := map[int]bool{}
		var agg Aggregates

		for step := 0; step < 200; step++ {
			user := rng.Intn(20)
			var err error
			switch rng.Intn(3) {
			case 0:
				if !enrolled[user] {
					enrolled[user] = true
					agg, err = agg.WithEnrollmentDelta(1)
				} else {
					delete(enrolled, user)
					agg, err = agg.WithEnrollmentDelta(-1)
				}
			default:
				next := ReviewSample{
					Rating:    shared.Rating(rng.Intn(5) + 1),
					Sentiment: labels[rng.Intn(3)],
				}
				if old, ok := reviews[user]; ok {
					agg, err = agg.WithReviewUpdated(old.Rating, next.Rating, old.Sentiment, next.Sentiment)
				} else {
					agg, err = agg.WithReviewInserted(next.Rating, next.Sentiment)
				}
				reviews[user] = next
			}
			require.NoError(t, err)
		}

		samples := make([]ReviewSample, 0, len(reviews))
		for _, r := range reviews {
			samples = append(samples, r)
		}
		want := Recompute(len(enrolled), samples)
		assert.Equal(t, want, agg, "round %d", round)
		assert.NoError(t, agg.Check())
	}
}
