// Package query contains read operations (CQRS - Queries).
package query

import (
	"time"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/learningpath"
	"github.com/skillmate/skillmate-core/internal/domain/progress"
	"github.com/skillmate/skillmate-core/internal/domain/review"
)

// ══════════════════════════════════════════════════════════════════════════════
// READ MODELS
// DTO - то, что отдаётся наружу (HTTP, кэш). Доменные сущности не утекают.
// ══════════════════════════════════════════════════════════════════════════════

// ResourceDTO - учебный ресурс топика.
type ResourceDTO struct {
	Title        string `json:"title"`
	URL          string `json:"url"`
	StartSeconds *int   `json:"startSeconds,omitempty"`
	EndSeconds   *int   `json:"endSeconds,omitempty"`
}

// TopicDTO - топик учебного пути.
type TopicDTO struct {
	Index         int           `json:"index"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Resources     []ResourceDTO `json:"resources"`
	Prerequisites []string      `json:"prerequisites"`
	Tags          []string      `json:"tags"`
}

// CoursePathDTO - полное представление учебного пути.
type CoursePathDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Идентификация и жизненный цикл
	// ─────────────────────────────────────────────────────────────────────────

	ID            string     `json:"id"`
	Subject       string     `json:"subject"`
	Difficulty    string     `json:"difficulty"`
	CreatorID     string     `json:"creatorId"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failureReason,omitempty"`
	Archived      bool       `json:"archived"`
	ArchivedAt    *time.Time `json:"archivedAt,omitempty"`

	// ─────────────────────────────────────────────────────────────────────────
	// Содержимое
	// ─────────────────────────────────────────────────────────────────────────

	Topics     []TopicDTO `json:"topics"`
	TopicCount int        `json:"topicCount"`

	// ─────────────────────────────────────────────────────────────────────────
	// Агрегаты (только для чтения)
	// ─────────────────────────────────────────────────────────────────────────

	Aggregates coursepath.Snapshot `json:"aggregates"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CoursePathSummaryDTO - краткое представление для списков.
type CoursePathSummaryDTO struct {
	ID              string   `json:"id"`
	Subject         string   `json:"subject"`
	Difficulty      string   `json:"difficulty"`
	Status          string   `json:"status"`
	TopicCount      int      `json:"topicCount"`
	EnrollmentCount int      `json:"enrollmentCount"`
	AverageRating   *float64 `json:"averageRating"`
	ReviewCount     int      `json:"reviewCount"`
	Archived        bool     `json:"archived"`
}

// ProgressDTO - прогресс пользователя по пути.
type ProgressDTO struct {
	UserID           string     `json:"userId"`
	CoursePathID     string     `json:"coursePathId"`
	CompletedIndices []int      `json:"completedTopicIndices"`
	CompletedCount   int        `json:"completedCount"`
	TopicCount       int        `json:"topicCount"`
	Percentage       float64    `json:"percentage"`
	LastActivityAt   *time.Time `json:"lastActivityAt,omitempty"`
}

// ReviewDTO - отзыв.
type ReviewDTO struct {
	ID             string    `json:"id"`
	CoursePathID   string    `json:"coursePathId"`
	UserID         string    `json:"userId"`
	Rating         int       `json:"rating"`
	Text           string    `json:"text"`
	Sentiment      string    `json:"sentiment"`
	SentimentScore float64   `json:"sentimentScore"`
	HelpfulCount   int       `json:"helpfulCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// LearningPathDTO - учебная программа из нескольких путей.
type LearningPathDTO struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Difficulty  string                 `json:"difficulty"`
	CreatorID   string                 `json:"creatorId"`
	CoursePaths []CoursePathSummaryDTO `json:"coursePaths"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPERS
// ══════════════════════════════════════════════════════════════════════════════

// NewCoursePathDTO maps a course path to its read model.
func NewCoursePathDTO(p *coursepath.CoursePath) *CoursePathDTO {
	topics := make([]TopicDTO, len(p.Topics))
	for i, t := range p.Topics {
		resources := make([]ResourceDTO, len(t.Resources))
		for j, r := range t.Resources {
			resources[j] = ResourceDTO{Title: r.Title, URL: r.URL, StartSeconds: r.StartSeconds, EndSeconds: r.EndSeconds}
		}
		topics[i] = TopicDTO{
			Index:         t.Index,
			Title:         t.Title,
			Description:   t.Description,
			Resources:     resources,
			Prerequisites: nonNil(t.Prerequisites),
			Tags:          nonNil(t.Tags),
		}
	}
	return &CoursePathDTO{
		ID:            p.ID,
		Subject:       p.Subject,
		Difficulty:    p.Difficulty.String(),
		CreatorID:     string(p.CreatorID),
		Status:        string(p.Status),
		FailureReason: p.FailureReason,
		Archived:      p.IsArchived(),
		ArchivedAt:    p.ArchivedAt,
		Topics:        topics,
		TopicCount:    len(topics),
		Aggregates:    p.Aggregates.Snapshot(),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// NewCoursePathSummaryDTO maps a course path to its list view.
func NewCoursePathSummaryDTO(p *coursepath.CoursePath) CoursePathSummaryDTO {
	return CoursePathSummaryDTO{
		ID:              p.ID,
		Subject:         p.Subject,
		Difficulty:      p.Difficulty.String(),
		Status:          string(p.Status),
		TopicCount:      p.TopicCount(),
		EnrollmentCount: p.Aggregates.EnrollmentCount,
		AverageRating:   p.Aggregates.AverageRating(),
		ReviewCount:     p.Aggregates.ReviewCount,
		Archived:        p.IsArchived(),
	}
}

func summaries(paths []*coursepath.CoursePath) []CoursePathSummaryDTO {
	out := make([]CoursePathSummaryDTO, len(paths))
	for i, p := range paths {
		out[i] = NewCoursePathSummaryDTO(p)
	}
	return out
}

// NewReviewDTO maps a review to its read model.
func NewReviewDTO(r *review.Review) ReviewDTO {
	return ReviewDTO{
		ID:             r.ID,
		CoursePathID:   r.CoursePathID,
		UserID:         string(r.UserID),
		Rating:         r.Rating.Int(),
		Text:           r.Text,
		Sentiment:      string(r.SentimentLabel),
		SentimentScore: r.SentimentScore,
		HelpfulCount:   r.HelpfulCount,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func newProgressDTO(rec *progress.Record, topicCount int) *ProgressDTO {
	dto := &ProgressDTO{
		UserID:           string(rec.UserID),
		CoursePathID:     rec.CoursePathID,
		CompletedIndices: rec.CompletedIndices(),
		CompletedCount:   len(rec.Completed),
		TopicCount:       topicCount,
		Percentage:       rec.Percentage,
	}
	if !rec.LastActivityAt.IsZero() {
		at := rec.LastActivityAt
		dto.LastActivityAt = &at
	}
	return dto
}

func newLearningPathDTO(lp *learningpath.LearningPath, paths []*coursepath.CoursePath) *LearningPathDTO {
	return &LearningPathDTO{
		ID:          lp.ID,
		Title:       lp.Title,
		Description: lp.Description,
		Difficulty:  lp.Difficulty.String(),
		CreatorID:   string(lp.CreatorID),
		CoursePaths: summaries(paths),
		CreatedAt:   lp.CreatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
