package command

import (
	"context"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/enrollment"
	"github.com/skillmate/skillmate-core/internal/domain/progress"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/pkg/logger"
	"github.com/skillmate/skillmate-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK TOPIC COMPLETE COMMAND
// Set semantics over completed topic indices; the record is version-guarded.
// ══════════════════════════════════════════════════════════════════════════════

// MarkTopicCompleteCommand marks one topic of a path complete for a user.
type MarkTopicCompleteCommand struct {
	UserID       string `field:"userId" validate:"required,max=128"`
	CoursePathID string `field:"coursePathId" validate:"required"`
	TopicIndex   int    `field:"topicIndex" validate:"min=0"`
}

// Validate validates the command.
func (c MarkTopicCompleteCommand) Validate() error {
	return validateCommand("progress", "MarkTopicComplete", c)
}

// MarkTopicCompleteResult is the record after the call.
type MarkTopicCompleteResult struct {
	Percentage       float64
	CompletedIndices []int
	TopicCount       int
	// Changed is false when the topic was already complete.
	Changed bool
}

// MarkTopicCompleteHandler handles MarkTopicCompleteCommand.
type MarkTopicCompleteHandler struct {
	paths       coursepath.Repository
	enrollments enrollment.Repository
	progress    progress.Repository
	publisher   shared.EventPublisher
	log         *logger.Logger

	conflictRetries int
	now             Clock
}

// NewMarkTopicCompleteHandler creates a new MarkTopicCompleteHandler.
func NewMarkTopicCompleteHandler(
	paths coursepath.Repository,
	enrollments enrollment.Repository,
	progressRepo progress.Repository,
	publisher shared.EventPublisher,
	log *logger.Logger,
	conflictRetries int,
	clock Clock,
) *MarkTopicCompleteHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &MarkTopicCompleteHandler{
		paths:           paths,
		enrollments:     enrollments,
		progress:        progressRepo,
		publisher:       publisher,
		log:             log.With(logger.Component("progress")),
		conflictRetries: conflictRetries,
		now:             defaultClock(clock),
	}
}

// Handle executes the command.
func (h *MarkTopicCompleteHandler) Handle(ctx context.Context, cmd MarkTopicCompleteCommand) (*MarkTopicCompleteResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	userID := shared.UserID(cmd.UserID)

	path, err := h.paths.GetByID(ctx, cmd.CoursePathID)
	if err != nil {
		return nil, err
	}
	enrolled, err := h.enrollments.Exists(ctx, userID, path.ID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, shared.ErrNotEnrolledInPath
	}
	total := path.TopicCount()
	if cmd.TopicIndex >= total {
		return nil, shared.NewValidationError("progress", "MarkTopicComplete", "topicIndex", "topic index is out of range")
	}

	res, err := retry.DoWithData(ctx, conflictRetrier(ctx, "progress.mark", h.conflictRetries),
		func(ctx context.Context) (*MarkTopicCompleteResult, error) {
			rec, err := h.progress.Get(ctx, userID, path.ID)
			if shared.IsNotFound(err) {
				rec = progress.NewRecord(userID, path.ID)
			} else if err != nil {
				return nil, err
			}

			next := rec.Clone()
			changed, err := next.MarkComplete(cmd.TopicIndex, total, h.now())
			if err != nil {
				return nil, err
			}
			if changed {
				if err := h.progress.Save(ctx, next); err != nil {
					return nil, err
				}
			}
			return &MarkTopicCompleteResult{
				Percentage:       next.Percentage,
				CompletedIndices: next.CompletedIndices(),
				TopicCount:       total,
				Changed:          changed,
			}, nil
		})
	if err != nil {
		return nil, err
	}

	if res.Changed {
		h.log.Debug("topic completed",
			logger.CoursePathID(path.ID),
			logger.UserID(cmd.UserID),
			logger.Int("topic_index", cmd.TopicIndex),
			logger.Float64("percentage", res.Percentage),
		)
		publishAll(ctx, h.publisher, shared.NewTopicCompletedEvent(path.ID, cmd.UserID, cmd.TopicIndex, res.Percentage))
	}
	return res, nil
}
