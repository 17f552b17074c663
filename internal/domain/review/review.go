// Package review models course path reviews and their helpful votes.
package review

import (
	"context"
	"strings"
	"time"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// MaxTextLength bounds review text in characters.
const MaxTextLength = 5000

// Review is unique per (UserID, CoursePathID). A resubmission updates it.
type Review struct {
	ID             string
	CoursePathID   string
	UserID         shared.UserID
	Rating         shared.Rating
	Text           string
	SentimentLabel shared.Sentiment
	SentimentScore float64
	HelpfulCount   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalizeText trims text and enforces the length limit.
func NormalizeText(text string) (string, error) {
	t := strings.TrimSpace(text)
	if len([]rune(t)) > MaxTextLength {
		return "", shared.NewValidationError("review", "Validate", "text", "text must be at most 5000 characters")
	}
	return t, nil
}

// Classification is a sentiment classifier verdict.
type Classification struct {
	Label shared.Sentiment
	Score float64
}

// Neutral is the fallback verdict for empty text or an unavailable classifier.
func Neutral() Classification {
	return Classification{Label: shared.SentimentNeutral, Score: 0}
}

// SentimentClassifier is the external sentiment capability.
type SentimentClassifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// Sort orders review listings.
type Sort string

const (
	SortRecent     Sort = "recent"
	SortRatingHigh Sort = "rating_high"
	SortRatingLow  Sort = "rating_low"
	SortHelpful    Sort = "helpful"
)

// ParseSort falls back to SortRecent for unknown values.
func ParseSort(s string) Sort {
	switch Sort(strings.ToLower(strings.TrimSpace(s))) {
	case SortRatingHigh:
		return SortRatingHigh
	case SortRatingLow:
		return SortRatingLow
	case SortHelpful:
		return SortHelpful
	default:
		return SortRecent
	}
}

// Write is one atomic review mutation: the review row plus the course path's
// new aggregates, guarded by the path version the aggregates were computed from.
type Write struct {
	Review          *Review
	Insert          bool
	ExpectedVersion int64
	Aggregates      coursepath.Aggregates
}

// Page is a slice of reviews with the total count for pagination.
type Page struct {
	Items []*Review
	Total int
}

// Repository persists reviews.
type Repository interface {
	// Get returns the user's review of the path or ErrReviewNotFound.
	Get(ctx context.Context, userID shared.UserID, coursePathID string) (*Review, error)

	// GetByID returns ErrReviewNotFound when missing.
	GetByID(ctx context.Context, id string) (*Review, error)

	// Apply writes the aggregates when the path version still equals
	// ExpectedVersion, then upserts the review, atomically. A version mismatch
	// or a concurrent first insert by the same user yields ErrCoursePathConflict.
	// On success the path version is ExpectedVersion+1.
	Apply(ctx context.Context, w Write) error

	// ListByCoursePath returns a sorted page of reviews.
	ListByCoursePath(ctx context.Context, coursePathID string, sort Sort, page shared.Pagination) (Page, error)

	// AddHelpfulVote records a vote once per (review, voter) and returns the
	// review's helpful count. added is false for a repeated vote.
	AddHelpfulVote(ctx context.Context, reviewID string, voterID shared.UserID) (added bool, helpfulCount int, err error)
}
