package command

import (
	"context"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/learningpath"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/pkg/logger"
	"github.com/skillmate/skillmate-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOGUE MANAGEMENT COMMANDS
// Soft archive of course paths and curation of learning paths.
// ══════════════════════════════════════════════════════════════════════════════

// ArchiveCoursePathCommand soft-archives a path. Creator or admin only.
type ArchiveCoursePathCommand struct {
	CoursePathID string `field:"coursePathId" validate:"required"`
	CallerID     string `field:"userId" validate:"required"`
	CallerRoles  []shared.Role
}

// CreateLearningPathCommand creates a curated sequence of course paths.
type CreateLearningPathCommand struct {
	CreatorID     string   `field:"creatorId" validate:"required,max=128"`
	Title         string   `field:"title" validate:"required,max=200"`
	Description   string   `field:"description" validate:"max=2000"`
	Difficulty    string   `field:"difficulty" validate:"required"`
	CoursePathIDs []string `field:"coursePathIds" validate:"required,min=1,max=100"`
}

// CatalogueHandler handles archive and learning path commands.
type CatalogueHandler struct {
	paths     coursepath.Repository
	learning  learningpath.Repository
	publisher shared.EventPublisher
	log       *logger.Logger

	conflictRetries int
	ids             IDGenerator
	now             Clock
}

// NewCatalogueHandler creates a new CatalogueHandler.
func NewCatalogueHandler(
	paths coursepath.Repository,
	learning learningpath.Repository,
	publisher shared.EventPublisher,
	log *logger.Logger,
	conflictRetries int,
	ids IDGenerator,
	clock Clock,
) *CatalogueHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CatalogueHandler{
		paths:           paths,
		learning:        learning,
		publisher:       publisher,
		log:             log.With(logger.Component("catalogue")),
		conflictRetries: conflictRetries,
		ids:             defaultIDs(ids),
		now:             defaultClock(clock),
	}
}

// Archive executes ArchiveCoursePathCommand. Archiving twice is a no-op.
func (h *CatalogueHandler) Archive(ctx context.Context, cmd ArchiveCoursePathCommand) (*coursepath.CoursePath, error) {
	if err := validateCommand("coursepath", "Archive", cmd); err != nil {
		return nil, err
	}

	archived := false
	path, err := retry.DoWithData(ctx, conflictRetrier(ctx, "coursepath.archive", h.conflictRetries),
		func(ctx context.Context) (*coursepath.CoursePath, error) {
			p, err := h.paths.GetByID(ctx, cmd.CoursePathID)
			if err != nil {
				return nil, err
			}
			if !p.CanBeManagedBy(shared.UserID(cmd.CallerID), cmd.CallerRoles) {
				return nil, shared.ErrNotPathCreator
			}
			if p.IsArchived() {
				return p, nil
			}
			p.Archive(h.now())
			if err := h.paths.SaveLifecycle(ctx, p); err != nil {
				return nil, err
			}
			archived = true
			return p, nil
		})
	if err != nil {
		return nil, err
	}

	if archived {
		h.log.Info("course path archived", logger.CoursePathID(path.ID), logger.UserID(cmd.CallerID))
		publishAll(ctx, h.publisher, shared.NewCoursePathLifecycleEvent(
			shared.EventCoursePathArchived, path.ID, string(path.CreatorID), path.Subject, path.TopicCount(), ""))
	}
	return path, nil
}

// CreateLearningPath executes CreateLearningPathCommand. Every referenced
// course path must exist.
func (h *CatalogueHandler) CreateLearningPath(ctx context.Context, cmd CreateLearningPathCommand) (*learningpath.LearningPath, error) {
	if err := validateCommand("learningpath", "Create", cmd); err != nil {
		return nil, err
	}
	difficulty, err := shared.ParseDifficulty(cmd.Difficulty)
	if err != nil {
		return nil, err
	}

	lp, err := learningpath.New(learningpath.NewParams{
		ID:            h.ids(),
		Title:         cmd.Title,
		Description:   cmd.Description,
		Difficulty:    difficulty,
		CreatorID:     shared.UserID(cmd.CreatorID),
		CoursePathIDs: cmd.CoursePathIDs,
		Now:           h.now(),
	})
	if err != nil {
		return nil, err
	}

	found, err := h.paths.ListByIDs(ctx, lp.CoursePathIDs)
	if err != nil {
		return nil, err
	}
	if len(found) != len(lp.CoursePathIDs) {
		return nil, shared.WrapError("learningpath", "Create", shared.ErrNotFound,
			"one or more course paths do not exist", shared.ErrCoursePathNotFound)
	}

	if err := h.learning.Create(ctx, lp); err != nil {
		return nil, err
	}
	return lp, nil
}
