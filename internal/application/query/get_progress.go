package query

import (
	"context"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/enrollment"
	"github.com/skillmate/skillmate-core/internal/domain/progress"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// GetProgressQuery запрашивает прогресс пользователя по пути.
type GetProgressQuery struct {
	UserID       string
	CoursePathID string
}

// GetProgressHandler обрабатывает запрос прогресса.
type GetProgressHandler struct {
	paths       coursepath.Repository
	enrollments enrollment.Repository
	progress    progress.Repository
}

// NewGetProgressHandler создаёт обработчик.
func NewGetProgressHandler(paths coursepath.Repository, enrollments enrollment.Repository, progressRepo progress.Repository) *GetProgressHandler {
	return &GetProgressHandler{paths: paths, enrollments: enrollments, progress: progressRepo}
}

// Handle возвращает прогресс. Если записи нет, но пользователь записан,
// возвращается нулевой прогресс; иначе - ErrProgressNotFound.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*ProgressDTO, error) {
	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, err
	}
	path, err := h.paths.GetByID(ctx, q.CoursePathID)
	if err != nil {
		return nil, err
	}

	rec, err := h.progress.Get(ctx, userID, path.ID)
	if err == nil {
		return newProgressDTO(rec, path.TopicCount()), nil
	}
	if !shared.IsNotFound(err) {
		return nil, err
	}

	enrolled, eerr := h.enrollments.Exists(ctx, userID, path.ID)
	if eerr != nil {
		return nil, eerr
	}
	if !enrolled {
		return nil, err
	}
	return newProgressDTO(progress.NewRecord(userID, path.ID), path.TopicCount()), nil
}
