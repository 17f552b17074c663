package command

import (
	"context"
	"time"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/internal/infrastructure/metrics"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

// AbandonedGenerationReason is stored on drafts the sweeper fails.
const AbandonedGenerationReason = "generation abandoned"

// ExpireStaleDraftsCommand fails drafts not updated for longer than MaxAge.
// A draft that old means its generating process died mid-flight.
type ExpireStaleDraftsCommand struct {
	MaxAge time.Duration
	Limit  int
}

// ExpireStaleDraftsHandler handles ExpireStaleDraftsCommand.
type ExpireStaleDraftsHandler struct {
	paths     coursepath.Repository
	publisher shared.EventPublisher
	log       *logger.Logger
	now       Clock
}

// NewExpireStaleDraftsHandler creates a new ExpireStaleDraftsHandler.
func NewExpireStaleDraftsHandler(paths coursepath.Repository, publisher shared.EventPublisher, log *logger.Logger, clock Clock) *ExpireStaleDraftsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ExpireStaleDraftsHandler{
		paths:     paths,
		publisher: publisher,
		log:       log.With(logger.Component("draft-sweeper")),
		now:       defaultClock(clock),
	}
}

// Handle returns the number of drafts moved to FAILED. A draft that settled
// concurrently loses nothing: its version moved, the save conflicts, and it
// is skipped.
func (h *ExpireStaleDraftsHandler) Handle(ctx context.Context, cmd ExpireStaleDraftsCommand) (int, error) {
	if cmd.MaxAge <= 0 {
		return 0, shared.NewValidationError("coursepath", "ExpireStaleDrafts", "maxAge", "must be positive")
	}
	if cmd.Limit <= 0 {
		cmd.Limit = 100
	}

	now := h.now()
	stale, err := h.paths.ListStaleDrafts(ctx, now.Add(-cmd.MaxAge), cmd.Limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, p := range stale {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		if err := p.MarkFailed(AbandonedGenerationReason, now); err != nil {
			continue
		}
		if err := h.paths.SaveLifecycle(ctx, p); err != nil {
			if shared.IsConflict(err) {
				continue
			}
			h.log.Error("failed to expire draft", logger.CoursePathID(p.ID), logger.Err(err))
			continue
		}
		expired++
		metrics.GenerationOutcomes.WithLabelValues("abandoned").Inc()
		publishAll(ctx, h.publisher, shared.NewCoursePathLifecycleEvent(
			shared.EventCoursePathFailed, p.ID, string(p.CreatorID), p.Subject, 0, AbandonedGenerationReason))
	}

	if expired > 0 {
		h.log.Warn("expired stale drafts", logger.Int("count", expired))
	}
	return expired, nil
}
