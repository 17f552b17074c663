package query

import (
	"context"
	"strings"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/learningpath"
	"github.com/skillmate/skillmate-core/internal/domain/review"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOGUE QUERIES
// Отзывы, поиск и учебные программы.
// ══════════════════════════════════════════════════════════════════════════════

// MaxSearchTerms ограничивает количество термов в поисковом запросе.
const MaxSearchTerms = 8

// ListReviewsQuery запрашивает страницу отзывов.
type ListReviewsQuery struct {
	CoursePathID string
	Sort         string
	Page         int
	PageSize     int
}

// ReviewPageDTO - страница отзывов.
type ReviewPageDTO struct {
	Items    []ReviewDTO `json:"items"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

// SearchCoursePathsQuery - поиск по теме.
type SearchCoursePathsQuery struct {
	Query    string
	Page     int
	PageSize int
}

// GetLearningPathQuery запрашивает учебную программу.
type GetLearningPathQuery struct {
	LearningPathID string
}

// CatalogueHandler обрабатывает запросы каталога.
type CatalogueHandler struct {
	paths    coursepath.Repository
	reviews  review.Repository
	learning learningpath.Repository
}

// NewCatalogueHandler создаёт обработчик.
func NewCatalogueHandler(paths coursepath.Repository, reviews review.Repository, learning learningpath.Repository) *CatalogueHandler {
	return &CatalogueHandler{paths: paths, reviews: reviews, learning: learning}
}

// ListReviews возвращает отзывы пути. Неизвестная сортировка = recent.
func (h *CatalogueHandler) ListReviews(ctx context.Context, q ListReviewsQuery) (*ReviewPageDTO, error) {
	if _, err := h.paths.GetByID(ctx, q.CoursePathID); err != nil {
		return nil, err
	}
	page := shared.NewPagination(q.Page, q.PageSize)
	res, err := h.reviews.ListByCoursePath(ctx, q.CoursePathID, review.ParseSort(q.Sort), page)
	if err != nil {
		return nil, err
	}

	items := make([]ReviewDTO, len(res.Items))
	for i, r := range res.Items {
		items[i] = NewReviewDTO(r)
	}
	return &ReviewPageDTO{Items: items, Total: res.Total, Page: page.Page, PageSize: page.PageSize}, nil
}

// Search ищет READY пути, тема которых содержит все слова запроса.
func (h *CatalogueHandler) Search(ctx context.Context, q SearchCoursePathsQuery) ([]CoursePathSummaryDTO, error) {
	terms := strings.Fields(q.Query)
	if len(terms) == 0 {
		return nil, shared.NewValidationError("coursepath", "Search", "q", "search query must not be empty")
	}
	if len(terms) > MaxSearchTerms {
		terms = terms[:MaxSearchTerms]
	}
	paths, err := h.paths.Search(ctx, terms, shared.NewPagination(q.Page, q.PageSize))
	if err != nil {
		return nil, err
	}
	return summaries(paths), nil
}

// GetLearningPath возвращает программу с краткими данными путей в её порядке.
func (h *CatalogueHandler) GetLearningPath(ctx context.Context, q GetLearningPathQuery) (*LearningPathDTO, error) {
	if q.LearningPathID == "" {
		return nil, shared.NewValidationError("learningpath", "Get", "learningPathId", "learning path id is required")
	}
	lp, err := h.learning.GetByID(ctx, q.LearningPathID)
	if err != nil {
		return nil, err
	}
	paths, err := h.paths.ListByIDs(ctx, lp.CoursePathIDs)
	if err != nil {
		return nil, err
	}
	return newLearningPathDTO(lp, paths), nil
}
