package query

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/enrollment"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// GetUserCoursePathsQuery запрашивает пути пользователя.
type GetUserCoursePathsQuery struct {
	UserID string
}

// UserCoursePathsDTO - созданные и записанные пути. Путь, созданный и
// записанный одним пользователем, присутствует в обоих списках.
type UserCoursePathsDTO struct {
	Created  []CoursePathSummaryDTO `json:"created"`
	Enrolled []CoursePathSummaryDTO `json:"enrolled"`
}

// GetUserCoursePathsHandler обрабатывает запрос.
type GetUserCoursePathsHandler struct {
	paths       coursepath.Repository
	enrollments enrollment.Repository
}

// NewGetUserCoursePathsHandler создаёт обработчик.
func NewGetUserCoursePathsHandler(paths coursepath.Repository, enrollments enrollment.Repository) *GetUserCoursePathsHandler {
	return &GetUserCoursePathsHandler{paths: paths, enrollments: enrollments}
}

// Handle загружает оба списка параллельно.
func (h *GetUserCoursePathsHandler) Handle(ctx context.Context, q GetUserCoursePathsQuery) (*UserCoursePathsDTO, error) {
	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, err
	}

	var created, enrolled []*coursepath.CoursePath
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		created, err = h.paths.ListByCreator(gctx, userID)
		return err
	})
	g.Go(func() error {
		ids, err := h.enrollments.ListCoursePathIDs(gctx, userID)
		if err != nil || len(ids) == 0 {
			return err
		}
		enrolled, err = h.paths.ListByIDs(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &UserCoursePathsDTO{
		Created:  summaries(created),
		Enrolled: summaries(enrolled),
	}, nil
}
