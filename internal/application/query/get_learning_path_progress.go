package query

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/learningpath"
	"github.com/skillmate/skillmate-core/internal/domain/progress"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// maxProgressLoads ограничивает параллельные чтения прогресса.
const maxProgressLoads = 4

// GetLearningPathProgressQuery запрашивает прогресс пользователя по программе.
type GetLearningPathProgressQuery struct {
	UserID         string
	LearningPathID string
}

// LearningPathStepDTO - прогресс по одному пути программы.
type LearningPathStepDTO struct {
	CoursePathID string  `json:"coursePathId"`
	Subject      string  `json:"subject"`
	TopicCount   int     `json:"topicCount"`
	Percentage   float64 `json:"percentage"`
	Completed    bool    `json:"completed"`
}

// LearningPathProgressDTO - средний процент по всем путям программы.
type LearningPathProgressDTO struct {
	LearningPathID string                `json:"learningPathId"`
	UserID         string                `json:"userId"`
	Steps          []LearningPathStepDTO `json:"steps"`
	CompletedSteps int                   `json:"completedSteps"`
	Percentage     float64               `json:"percentage"`
}

// GetLearningPathProgressHandler обрабатывает запрос.
type GetLearningPathProgressHandler struct {
	learning learningpath.Repository
	paths    coursepath.Repository
	progress progress.Repository
}

// NewGetLearningPathProgressHandler создаёт обработчик.
func NewGetLearningPathProgressHandler(
	learning learningpath.Repository,
	paths coursepath.Repository,
	progressRepo progress.Repository,
) *GetLearningPathProgressHandler {
	return &GetLearningPathProgressHandler{learning: learning, paths: paths, progress: progressRepo}
}

// Handle averages the user's percentage over the program's course paths in
// order. A path without a progress record counts as 0.
func (h *GetLearningPathProgressHandler) Handle(ctx context.Context, q GetLearningPathProgressQuery) (*LearningPathProgressDTO, error) {
	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, err
	}
	if q.LearningPathID == "" {
		return nil, shared.NewValidationError("learningpath", "Progress", "learningPathId", "learning path id is required")
	}
	lp, err := h.learning.GetByID(ctx, q.LearningPathID)
	if err != nil {
		return nil, err
	}
	paths, err := h.paths.ListByIDs(ctx, lp.CoursePathIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*coursepath.CoursePath, len(paths))
	for _, p := range paths {
		byID[p.ID] = p
	}

	steps := make([]LearningPathStepDTO, len(lp.CoursePathIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxProgressLoads)
	for i, id := range lp.CoursePathIDs {
		steps[i] = LearningPathStepDTO{CoursePathID: id}
		if p, ok := byID[id]; ok {
			steps[i].Subject = p.Subject
			steps[i].TopicCount = p.TopicCount()
		}
		g.Go(func() error {
			rec, err := h.progress.Get(gctx, userID, id)
			switch {
			case shared.IsNotFound(err):
				return nil
			case err != nil:
				return err
			}
			steps[i].Percentage = rec.Percentage
			steps[i].Completed = rec.Percentage >= 100
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &LearningPathProgressDTO{
		LearningPathID: lp.ID,
		UserID:         string(userID),
		Steps:          steps,
	}
	var sum float64
	for _, s := range steps {
		sum += s.Percentage
		if s.Completed {
			out.CompletedSteps++
		}
	}
	if len(steps) > 0 {
		out.Percentage = shared.RoundTo(sum/float64(len(steps)), 1)
	}
	return out, nil
}
