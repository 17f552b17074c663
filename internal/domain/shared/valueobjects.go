package shared

import (
	"math"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID is the opaque identifier supplied by the identity provider.
type UserID string

// IsValid checks that the id is non-empty and reasonably sized.
func (u UserID) IsValid() bool {
	s := strings.TrimSpace(string(u))
	return s != "" && len(s) <= 128
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	u := UserID(strings.TrimSpace(id))
	if !u.IsValid() {
		return "", NewValidationError("user", "Validate", "userId", "user id must be non-empty")
	}
	return u, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Difficulty Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Difficulty is the target level of a course or learning path.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "BEGINNER"
	DifficultyIntermediate Difficulty = "INTERMEDIATE"
	DifficultyAdvanced     Difficulty = "ADVANCED"
)

// IsValid checks if the difficulty is one of the supported levels.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// String returns the string representation.
func (d Difficulty) String() string {
	return string(d)
}

// MaxTopics caps how many topics a generator may return for this level.
func (d Difficulty) MaxTopics() int {
	switch d {
	case DifficultyIntermediate:
		return 25
	case DifficultyAdvanced:
		return 50
	default:
		return 15
	}
}

// ParseDifficulty accepts any casing ("beginner", "Beginner").
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToUpper(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", NewValidationError("coursepath", "Validate", "difficulty",
			"difficulty must be one of BEGINNER, INTERMEDIATE, ADVANCED")
	}
	return d, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Sentiment Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Sentiment is a classified polarity of review text.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// IsValid checks if the sentiment label is known.
func (s Sentiment) IsValid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// ParseSentiment maps a free-form label to a Sentiment, defaulting to neutral.
func ParseSentiment(s string) Sentiment {
	v := Sentiment(strings.ToLower(strings.TrimSpace(s)))
	if v.IsValid() {
		return v
	}
	return SentimentNeutral
}

// ═══════════════════════════════════════════════════════════════════════════
// Rating Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Rating represents a review rating (1-5 stars).
type Rating int

const (
	MinRating Rating = 1
	MaxRating Rating = 5
)

// IsValid checks if the rating is in range.
func (r Rating) IsValid() bool {
	return r >= MinRating && r <= MaxRating
}

// Int returns the underlying int value.
func (r Rating) Int() int {
	return int(r)
}

// NewRating creates a new Rating with validation.
func NewRating(value int) (Rating, error) {
	if value < int(MinRating) || value > int(MaxRating) {
		return 0, NewValidationError("review", "Validate", "rating", "rating must be an integer between 1 and 5")
	}
	return Rating(value), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Role Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Role is an authorization role name.
type Role string

const (
	RoleUser       Role = "ROLE_USER"
	RoleAdmin      Role = "ROLE_ADMIN"
	RoleInstructor Role = "ROLE_INSTRUCTOR"
)

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleInstructor:
		return true
	}
	return false
}

// ParseRole accepts "admin", "ROLE_ADMIN" and similar spellings.
func ParseRole(s string) (Role, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(v, "ROLE_") {
		v = "ROLE_" + v
	}
	r := Role(v)
	if !r.IsValid() {
		return "", NewValidationError("user", "Validate", "roles", "unknown role "+s)
	}
	return r, nil
}

// AllRoles returns the seeded role set.
func AllRoles() []Role {
	return []Role{RoleUser, RoleAdmin, RoleInstructor}
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with defaults.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// ═══════════════════════════════════════════════════════════════════════════
// Numeric helpers
// ═══════════════════════════════════════════════════════════════════════════

// RoundTo rounds v half away from zero to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
