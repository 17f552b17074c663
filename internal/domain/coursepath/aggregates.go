package coursepath

import (
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// SentimentSummary counts reviews per sentiment label.
type SentimentSummary struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// Total returns the number of classified reviews.
func (s SentimentSummary) Total() int {
	return s.Positive + s.Neutral + s.Negative
}

func (s SentimentSummary) add(label shared.Sentiment, delta int) SentimentSummary {
	switch label {
	case shared.SentimentPositive:
		s.Positive += delta
	case shared.SentimentNegative:
		s.Negative += delta
	default:
		s.Neutral += delta
	}
	return s
}

// Aggregates are the derived counters kept on a course path.
//
// RatingSum keeps the exact average reconstructible: AverageRating is
// RatingSum / ReviewCount, rounded only for display.
type Aggregates struct {
	EnrollmentCount    int              `json:"enrollmentCount"`
	ReviewCount        int              `json:"reviewCount"`
	RatingSum          int              `json:"ratingSum"`
	RatingDistribution [5]int           `json:"ratingDistribution"`
	Sentiment          SentimentSummary `json:"sentimentSummary"`
}

// AverageRating returns nil when there are no reviews.
func (a Aggregates) AverageRating() *float64 {
	if a.ReviewCount == 0 {
		return nil
	}
	avg := shared.RoundTo(float64(a.RatingSum)/float64(a.ReviewCount), 2)
	return &avg
}

// Check reports ErrAggregateInvariant when the counters describe a state no
// sequence of valid operations could have produced.
func (a Aggregates) Check() error {
	if a.EnrollmentCount < 0 || a.ReviewCount < 0 || a.RatingSum < 0 {
		return shared.ErrAggregateInvariant
	}
	if a.Sentiment.Positive < 0 || a.Sentiment.Neutral < 0 || a.Sentiment.Negative < 0 {
		return shared.ErrAggregateInvariant
	}
	if a.Sentiment.Total() != a.ReviewCount {
		return shared.ErrAggregateInvariant
	}
	n, sum := 0, 0
	for i, c := range a.RatingDistribution {
		if c < 0 {
			return shared.ErrAggregateInvariant
		}
		n += c
		sum += c * (i + 1)
	}
	if n != a.ReviewCount || sum != a.RatingSum {
		return shared.ErrAggregateInvariant
	}
	return nil
}

// WithEnrollmentDelta applies +1 for enroll and -1 for unenroll.
func (a Aggregates) WithEnrollmentDelta(delta int) (Aggregates, error) {
	a.EnrollmentCount += delta
	if a.EnrollmentCount < 0 {
		return a, shared.ErrAggregateInvariant
	}
	return a, nil
}

// WithReviewInserted applies a first review by a user.
func (a Aggregates) WithReviewInserted(r shared.Rating, s shared.Sentiment) (Aggregates, error) {
	if err := a.Check(); err != nil {
		return a, err
	}
	if !r.IsValid() {
		return a, shared.NewValidationError("review", "Apply", "rating", "rating must be an integer between 1 and 5")
	}
	a.ReviewCount++
	a.RatingSum += r.Int()
	a.RatingDistribution[r.Int()-1]++
	a.Sentiment = a.Sentiment.add(s, 1)
	return a, nil
}

// WithReviewUpdated replaces an existing review's contribution. The count is
// unchanged; a stored count of zero means the row and the cache disagree.
func (a Aggregates) WithReviewUpdated(oldR, newR shared.Rating, oldS, newS shared.Sentiment) (Aggregates, error) {
	if err := a.Check(); err != nil {
		return a, err
	}
	if a.ReviewCount == 0 || !oldR.IsValid() || a.RatingDistribution[oldR.Int()-1] == 0 {
		return a, shared.ErrAggregateInvariant
	}
	if !newR.IsValid() {
		return a, shared.NewValidationError("review", "Apply", "rating", "rating must be an integer between 1 and 5")
	}
	a.RatingSum += newR.Int() - oldR.Int()
	a.RatingDistribution[oldR.Int()-1]--
	a.RatingDistribution[newR.Int()-1]++
	a.Sentiment = a.Sentiment.add(oldS, -1).add(newS, 1)
	if err := a.Check(); err != nil {
		return a, err
	}
	return a, nil
}

// ReviewSample is the part of a review row aggregates depend on.
type ReviewSample struct {
	Rating    shared.Rating
	Sentiment shared.Sentiment
}

// Recompute derives aggregates from source rows. It is the reference the
// incremental transitions must agree with.
func Recompute(enrollments int, reviews []ReviewSample) Aggregates {
	var a Aggregates
	a.EnrollmentCount = enrollments
	for _, r := range reviews {
		if !r.Rating.IsValid() {
			continue
		}
		a.ReviewCount++
		a.RatingSum += r.Rating.Int()
		a.RatingDistribution[r.Rating.Int()-1]++
		a.Sentiment = a.Sentiment.add(r.Sentiment, 1)
	}
	return a
}

// Snapshot is the read view of aggregates handed to callers.
type Snapshot struct {
	EnrollmentCount    int              `json:"enrollmentCount"`
	AverageRating      *float64         `json:"averageRating"`
	ReviewCount        int              `json:"reviewCount"`
	RatingDistribution map[string]int   `json:"ratingDistribution"`
	SentimentSummary   SentimentSummary `json:"sentimentSummary"`
}

// Snapshot converts stored counters into their read view.
func (a Aggregates) Snapshot() Snapshot {
	dist := make(map[string]int, len(a.RatingDistribution))
	for i, c := range a.RatingDistribution {
		dist[string(rune('1'+i))] = c
	}
	return Snapshot{
		EnrollmentCount:    a.EnrollmentCount,
		AverageRating:      a.AverageRating(),
		ReviewCount:        a.ReviewCount,
		RatingDistribution: dist,
		SentimentSummary:   a.Sentiment,
	}
}
