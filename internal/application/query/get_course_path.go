package query

import (
	"context"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/internal/infrastructure/metrics"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COURSE PATH QUERY
// Read-through кэш: сначала Redis, затем репозиторий. Кэш сбрасывается
// обработчиком событий при любом изменении пути или его агрегатов.
// ══════════════════════════════════════════════════════════════════════════════

// CoursePathCache хранит готовые DTO путей. Реализация может терять данные;
// источник истины - репозиторий.
//
// FillToken is taken before the repository read; SetIfUnchanged stores the
// DTO only if no Invalidate happened since, so a slow reader cannot put back
// a row that a concurrent writer already replaced.
type CoursePathCache interface {
	Get(ctx context.Context, id string) (*CoursePathDTO, bool, error)
	FillToken(ctx context.Context, id string) (string, error)
	SetIfUnchanged(ctx context.Context, dto *CoursePathDTO, token string) (bool, error)
	Invalidate(ctx context.Context, id string) error
}

// GetCoursePathQuery содержит параметры запроса.
type GetCoursePathQuery struct {
	CoursePathID string
}

// Validate проверяет параметры запроса.
func (q GetCoursePathQuery) Validate() error {
	if q.CoursePathID == "" {
		return shared.NewValidationError("coursepath", "Get", "coursePathId", "course path id is required")
	}
	return nil
}

// GetCoursePathHandler обрабатывает запрос пути.
type GetCoursePathHandler struct {
	paths coursepath.Repository
	cache CoursePathCache
	log   *logger.Logger
}

// NewGetCoursePathHandler создаёт обработчик. cache может быть nil.
func NewGetCoursePathHandler(paths coursepath.Repository, cache CoursePathCache, log *logger.Logger) *GetCoursePathHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetCoursePathHandler{paths: paths, cache: cache, log: log}
}

// Handle выполняет запрос.
func (h *GetCoursePathHandler) Handle(ctx context.Context, q GetCoursePathQuery) (*CoursePathDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	token, fill := "", false
	if h.cache != nil {
		dto, ok, err := h.cache.Get(ctx, q.CoursePathID)
		metrics.RecordCache("coursepath", ok, err)
		if err != nil {
			h.log.Warn("course path cache read failed", logger.CoursePathID(q.CoursePathID), logger.Err(err))
		} else if ok {
			return dto, nil
		} else if token, err = h.cache.FillToken(ctx, q.CoursePathID); err != nil {
			h.log.Warn("course path cache token failed", logger.CoursePathID(q.CoursePathID), logger.Err(err))
		} else {
			fill = true
		}
	}

	path, err := h.paths.GetByID(ctx, q.CoursePathID)
	if err != nil {
		return nil, err
	}
	dto := NewCoursePathDTO(path)

	// DRAFT меняется в течение секунд, такой путь не кэшируем.
	if fill && path.Status != coursepath.StatusDraft {
		stored, err := h.cache.SetIfUnchanged(ctx, dto, token)
		switch {
		case err != nil:
			h.log.Warn("course path cache write failed", logger.CoursePathID(path.ID), logger.Err(err))
		case !stored:
			h.log.Debug("course path changed during read, not cached", logger.CoursePathID(path.ID))
		}
	}
	return dto, nil
}
