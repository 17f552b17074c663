package coursepath

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MaxSubjectLength - максимальная длина темы курса.
	MaxSubjectLength = 200
	// MaxTopicTitleLength - максимальная длина заголовка топика.
	MaxTopicTitleLength = 300
	// MaxIdempotencyKeyLength - максимальная длина ключа идемпотентности.
	MaxIdempotencyKeyLength = 128
	// MaxFailureReasonLength - причина ошибки обрезается до этой длины.
	MaxFailureReasonLength = 500
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status - состояние жизненного цикла учебного пути.
type Status string

const (
	// StatusDraft - путь создан, генерация топиков ещё не завершена.
	StatusDraft Status = "DRAFT"
	// StatusReady - генерация успешна, есть хотя бы один топик.
	StatusReady Status = "READY"
	// StatusFailed - генерация завершилась ошибкой.
	StatusFailed Status = "FAILED"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusReady, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusReady || next == StatusFailed
	case StatusFailed:
		return next == StatusDraft
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TOPIC
// ══════════════════════════════════════════════════════════════════════════════

// Resource - внешний учебный материал топика (например, видео).
type Resource struct {
	Title        string `json:"title"`
	URL          string `json:"url"`
	StartSeconds *int   `json:"startSeconds,omitempty"`
	EndSeconds   *int   `json:"endSeconds,omitempty"`
}

// Topic - элемент упорядоченного списка внутри CoursePath.
// Собственной идентичности вне пути не имеет.
type Topic struct {
	Index         int        `json:"index"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Resources     []Resource `json:"resources,omitempty"`
	Prerequisites []string   `json:"prerequisites,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
}

// GeneratedTopic is what a TopicGenerator hands back before indexing.
type GeneratedTopic struct {
	Title         string
	Description   string
	Resources     []Resource
	Prerequisites []string
	Tags          []string
}

// BuildTopics trims titles, drops blank ones, caps the list and assigns
// contiguous 0-based indices in the generator's order.
func BuildTopics(generated []GeneratedTopic, limit int) []Topic {
	topics := make([]Topic, 0, len(generated))
	for _, g := range generated {
		title := strings.TrimSpace(g.Title)
		if title == "" {
			continue
		}
		title = truncateRunes(title, MaxTopicTitleLength)
		topics = append(topics, Topic{
			Index:         len(topics),
			Title:         title,
			Description:   strings.TrimSpace(g.Description),
			Resources:     g.Resources,
			Prerequisites: g.Prerequisites,
			Tags:          g.Tags,
		})
		if limit > 0 && len(topics) == limit {
			break
		}
	}
	return topics
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE PATH
// ══════════════════════════════════════════════════════════════════════════════

// CoursePath - учебный путь, сгенерированный по запросу пользователя.
type CoursePath struct {
	ID             string
	Subject        string
	Difficulty     shared.Difficulty
	CreatorID      shared.UserID
	Topics         []Topic
	Status         Status
	FailureReason  string
	IdempotencyKey string

	// Aggregates никогда не пишутся клиентом напрямую.
	Aggregates Aggregates

	// Version - счётчик оптимистичной блокировки.
	Version int64

	CreatedAt  time.Time
	UpdatedAt  time.Time
	ArchivedAt *time.Time
}

// NewCoursePathParams - параметры для создания нового пути.
type NewCoursePathParams struct {
	ID             string
	Subject        string
	Difficulty     shared.Difficulty
	CreatorID      shared.UserID
	IdempotencyKey string
	Now            time.Time
}

// NewCoursePath создаёт путь в состоянии DRAFT.
func NewCoursePath(p NewCoursePathParams) (*CoursePath, error) {
	subject, err := NormalizeSubject(p.Subject)
	if err != nil {
		return nil, err
	}
	if !p.Difficulty.IsValid() {
		return nil, shared.NewValidationError("coursepath", "New", "difficulty", "unsupported difficulty")
	}
	if !p.CreatorID.IsValid() {
		return nil, shared.NewValidationError("coursepath", "New", "creatorId", "creator id must be non-empty")
	}
	if p.ID == "" {
		return nil, shared.NewValidationError("coursepath", "New", "id", "id must be non-empty")
	}
	if len(p.IdempotencyKey) > MaxIdempotencyKeyLength {
		return nil, shared.NewValidationError("coursepath", "New", "idempotencyKey", "idempotency key is too long")
	}
	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return &CoursePath{
		ID:             p.ID,
		Subject:        subject,
		Difficulty:     p.Difficulty,
		CreatorID:      p.CreatorID,
		Status:         StatusDraft,
		IdempotencyKey: p.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NormalizeSubject обрезает пробелы и проверяет длину.
func NormalizeSubject(s string) (string, error) {
	subject := strings.TrimSpace(s)
	if subject == "" {
		return "", shared.NewValidationError("coursepath", "Validate", "subject", "subject must not be empty")
	}
	if len([]rune(subject)) > MaxSubjectLength {
		return "", shared.NewValidationError("coursepath", "Validate", "subject", "subject must be at most 200 characters")
	}
	return subject, nil
}

// truncateRunes cuts s to at most n characters without splitting a
// multi-byte sequence; the result stays valid UTF-8 for TEXT columns.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	cut := 0
	for i := 0; i < n; i++ {
		_, size := utf8.DecodeRuneInString(s[cut:])
		cut += size
	}
	return s[:cut]
}

// MarkReady переводит DRAFT -> READY. Требует хотя бы один топик.
func (c *CoursePath) MarkReady(topics []Topic, now time.Time) error {
	if !c.Status.CanTransitionTo(StatusReady) {
		return shared.ErrInvalidPathStatus
	}
	if len(topics) == 0 {
		return shared.ErrEmptyGeneration
	}
	for i, t := range topics {
		if t.Index != i || strings.TrimSpace(t.Title) == "" {
			return shared.NewValidationError("coursepath", "MarkReady", "topics", "topics must be titled and contiguously indexed")
		}
	}
	c.Topics = topics
	c.Status = StatusReady
	c.FailureReason = ""
	c.UpdatedAt = now
	return nil
}

// MarkFailed переводит DRAFT -> FAILED с указанием причины.
func (c *CoursePath) MarkFailed(reason string, now time.Time) error {
	if !c.Status.CanTransitionTo(StatusFailed) {
		return shared.ErrInvalidPathStatus
	}
	reason = truncateRunes(reason, MaxFailureReasonLength)
	c.Topics = nil
	c.Status = StatusFailed
	c.FailureReason = reason
	c.UpdatedAt = now
	return nil
}

// ResetForRetry переводит FAILED -> DRAFT для повторной генерации.
func (c *CoursePath) ResetForRetry(now time.Time) error {
	if !c.Status.CanTransitionTo(StatusDraft) {
		return shared.ErrInvalidPathStatus
	}
	c.Status = StatusDraft
	c.FailureReason = ""
	c.UpdatedAt = now
	return nil
}

// Archive выполняет мягкое архивирование. Повторный вызов - no-op.
func (c *CoursePath) Archive(now time.Time) {
	if c.ArchivedAt != nil {
		return
	}
	c.ArchivedAt = &now
	c.UpdatedAt = now
}

// IsArchived возвращает true для архивированных путей.
func (c *CoursePath) IsArchived() bool {
	return c.ArchivedAt != nil
}

// EnsureAcceptsParticipation проверяет, можно ли записаться или оставить отзыв.
func (c *CoursePath) EnsureAcceptsParticipation() error {
	if c.Status != StatusReady {
		return shared.ErrCoursePathNotReady
	}
	if c.IsArchived() {
		return shared.ErrCoursePathArchived
	}
	return nil
}

// TopicCount возвращает количество топиков.
func (c *CoursePath) TopicCount() int {
	return len(c.Topics)
}

// CanBeManagedBy returns true for the creator and for admins.
func (c *CoursePath) CanBeManagedBy(userID shared.UserID, roles []shared.Role) bool {
	if c.CreatorID == userID {
		return true
	}
	for _, r := range roles {
		if r == shared.RoleAdmin {
			return true
		}
	}
	return false
}
