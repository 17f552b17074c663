package command

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/review"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

func TestLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.readyPath(t, "author")
	require.NotEmpty(t, p.Topics)

	f.mustEnroll(t, "user1", p.ID)
	assert.Equal(t, 1, f.path(t, p.ID).Aggregates.EnrollmentCount)
	f.mustEnroll(t, "user1", p.ID)
	assert.Equal(t, 1, f.path(t, p.ID).Aggregates.EnrollmentCount)

	first, err := f.review.Handle(ctx, SubmitReviewCommand{UserID: "user1", CoursePathID: p.ID, Rating: 5, Text: "great"})
	require.NoError(t, err)
	assert.False(t, first.Updated)
	require.NotNil(t, first.Aggregates.AverageRating)
	assert.Equal(t, 5.0, *first.Aggregates.AverageRating)
	assert.Equal(t, 1, first.Aggregates.ReviewCount)
	assert.Equal(t, shared.SentimentPositive, first.Review.SentimentLabel)

	second, err := f.review.Handle(ctx, SubmitReviewCommand{UserID: "user1", CoursePathID: p.ID, Rating: 3, Text: "ok"})
	require.NoError(t, err)
	assert.True(t, second.Updated)
	assert.Equal(t, first.Review.ID, second.Review.ID)
	assert.Equal(t, 3.0, *second.Aggregates.AverageRating)
	assert.Equal(t, 1, second.Aggregates.ReviewCount)
	assert.Equal(t, coursepath.SentimentSummary{Neutral: 1}, second.Aggregates.SentimentSummary)
	assert.Equal(t, map[string]int{"1": 0, "2": 0, "3": 1, "4": 0, "5": 0}, second.Aggregates.RatingDistribution)
}

func TestSubmitReview_RatingBoundaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.readyPath(t, "author")
	f.mustEnroll(t, "user1", p.ID)

	for _, rating := range []int{0, 6, -1} {
		_, err := f.review.Handle(ctx, SubmitReviewCommand{UserID: "user1", CoursePathID: p.ID, Rating: rating})
		assert.True(t, shared.IsValidation(err), "rating %d", rating)
		assert.Equal(t, "rating", shared.FieldOf(err))
	}
	for _, rating := range []int{1, 5} {
		_, err := f.review.Handle(ctx, SubmitReviewCommand{UserID: "user1", CoursePathID: p.ID, Rating: rating})
		assert.NoError(t, err, "rating %d", rating)
	}
	assert.Equal(t, 1, f.path(t, p.ID).Aggregates.ReviewCount)
}

func TestSubmitReview_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.readyPath(t, "author")

	_, err := f.review.Handle(ctx, SubmitReviewCommand{UserID: "user1", CoursePathID: p.ID, Rating: 4})
	assert.True(t, shared.IsNotEnrolled(err))

	_, err = f.review.Handle(ctx, SubmitReviewCommand{UserID: "user1", CoursePathID: "missing", Rating: 4})
	assert.True(t, shared.IsNotFound(err))

	f.mustEnroll(t, "user1", p.ID)
	_, err = f.catalogue.Archive(ctx, ArchiveCoursePathCommand{CoursePathID: p.ID, CallerID: "author"})
	require.NoError(t, err)
	_, err = f.review.Handle(ctx, SubmitReviewCommand{UserID: "user1", CoursePathID: p.ID, Rating: 4})
	assert.True(t, shared.IsInvalidState(err))
}

func TestSubmitReview_ClassifierFailureIsNeutral(t *testing.T) {
	f := newFixture(t)
	p := f.readyPath(t, "author")
	f.mustEnroll(t, "user1", p.ID)

	res, err := f.review.Handle(context.Background(), SubmitReviewCommand{
		UserID: "user1", CoursePathID: p.ID, Rating: 4, Text: "boom goes the classifier",
	})
	require.NoError(t, err)
	assert.Equal(t, shared.SentimentNeutral, res.Review.SentimentLabel)
	assert.Equal(t, coursepath.SentimentSummary{Neutral: 1}, res.Aggregates.SentimentSummary)
}

// stallingClassifier answers only after delay unless its context ends first.
type stallingClassifier struct{ delay time.Duration }

func (c stallingClassifier) Classify(ctx context.Context, _ string) (review.Classification, error) {
	select {
	case <-time.After(c.delay):
		return review.Classification{Label: shared.SentimentPositive, Score: 1}, nil
	case <-ctx.Done():
		return review.Classification{}, ctx.Err()
	}
}

func TestSubmitReview_ClassifierTimeoutIsNeutral(t *testing.T) {
	f := newFixture(t)
	p := f.readyPath(t, "author")
	f.mustEnroll(t, "user1", p.ID)

	cfg := DefaultSubmitReviewHandlerConfig()
	cfg.SentimentTimeout = 20 * time.Millisecond
	h := NewSubmitReviewHandler(f.store.CoursePaths(), f.store.Enrollments(), f.store.Reviews(), f.store.Aggregates(),
		stallingClassifier{delay: 5 * time.Second}, f.events, logger.Nop(), cfg)

	start := time.Now()
	res, err := h.Handle(context.Background(), SubmitReviewCommand{
		UserID: "user1", CoursePathID: p.ID, Rating: 5, Text: "great, but the classifier is slow",
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, shared.SentimentNeutral, res.Review.SentimentLabel)

	stored, err := f.store.Reviews().Get(context.Background(), "user1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.SentimentNeutral, stored.SentimentLabel)
	assert.Equal(t, coursepath.SentimentSummary{Neutral: 1}, f.path(t, p.ID).Aggregates.Sentiment)
}

// Concurrent inserts and updates from many users must leave the incremental
// aggregates equal to a full recompute.
func TestSubmitReview_ConcurrentWritesMatchRecompute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.readyPath(t, "author")

	const users = 12
	for i := 0; i < users; i++ {
		f.mustEnroll(t, fmt.Sprintf("user-%d", i), p.ID)
	}

	texts := []string{"great", "awful", "fine", ""}
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(int64(i)))
			for j := 0; j < 3; j++ {
				_, err := f.review.Handle(ctx, SubmitReviewCommand{
					UserID:       fmt.Sprintf("user-%d", i),
					CoursePathID: p.ID,
					Rating:       1 + rnd.Intn(5),
					Text:         texts[rnd.Intn(len(texts))],
				})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	stored := f.path(t, p.ID).Aggregates
	assert.Equal(t, users, stored.ReviewCount)
	require.NoError(t, stored.Check())

	res, err := f.reconcile.Handle(ctx, ReconcileAggregatesCommand{CoursePathID: p.ID})
	require.NoError(t, err)
	assert.False(t, res.Repaired, "incremental aggregates drifted: before %+v after %+v", res.Before, res.After)
}

func TestSubmitReview_RepairsDriftInline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.readyPath(t, "author")
	f.mustEnroll(t, "user1", p.ID)

	_, err := f.review.Handle(ctx, SubmitReviewCommand{UserID: "user1", CoursePathID: p.ID, Rating: 4})
	require.NoError(t, err)

	// Lose the review from the counters: an update now looks impossible.
	require.True(t, f.store.OverwriteAggregates(p.ID, coursepath.Aggregates{EnrollmentCount: 1}))

	res, err := f.review.Handle(ctx, SubmitReviewCommand{UserID: "user1", CoursePathID: p.ID, Rating: 2})
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, 1, res.Aggregates.ReviewCount)
	assert.Equal(t, 2.0, *res.Aggregates.AverageRating)
	assert.Equal(t, 1, f.events.count(shared.EventAggregatesRepaired))
}

func TestSubmitReview_DriftWithoutRepairSurfaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.review.cfg.ReconcileOnDrift = false
	p := f.readyPath(t, "author")
	f.mustEnroll(t, "user1", p.ID)

	_, err := f.review.Handle(ctx, SubmitReviewCommand{UserID: "user1", CoursePathID: p.ID, Rating: 4})
	require.NoError(t, err)
	require.True(t, f.store.OverwriteAggregates(p.ID, coursepath.Aggregates{EnrollmentCount: 1}))

	_, err = f.review.Handle(ctx, SubmitReviewCommand{UserID: "user1", CoursePathID: p.ID, Rating: 2})
	assert.True(t, shared.IsDrift(err))
}

func TestMarkReviewHelpful(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.readyPath(t, "author")
	f.mustEnroll(t, "user1", p.ID)
	res, err := f.review.Handle(ctx, SubmitReviewCommand{UserID: "user1", CoursePathID: p.ID, Rating: 5, Text: "great"})
	require.NoError(t, err)

	_, err = f.helpful.Handle(ctx, MarkReviewHelpfulCommand{ReviewID: res.Review.ID, UserID: "user1"})
	assert.True(t, shared.IsValidation(err), "own review")

	vote, err := f.helpful.Handle(ctx, MarkReviewHelpfulCommand{ReviewID: res.Review.ID, UserID: "user2"})
	require.NoError(t, err)
	assert.True(t, vote.Added)
	assert.Equal(t, 1, vote.HelpfulCount)

	vote, err = f.helpful.Handle(ctx, MarkReviewHelpfulCommand{ReviewID: res.Review.ID, UserID: "user2"})
	require.NoError(t, err)
	assert.False(t, vote.Added)
	assert.Equal(t, 1, vote.HelpfulCount)

	_, err = f.helpful.Handle(ctx, MarkReviewHelpfulCommand{ReviewID: "missing", UserID: "user2"})
	assert.True(t, shared.IsNotFound(err))
}
