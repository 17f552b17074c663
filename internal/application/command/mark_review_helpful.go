package command

import (
	"context"

	"github.com/skillmate/skillmate-core/internal/domain/review"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

// MarkReviewHelpfulCommand records a "helpful" vote. Idempotent per voter.
type MarkReviewHelpfulCommand struct {
	ReviewID string `field:"reviewId" validate:"required"`
	UserID   string `field:"userId" validate:"required,max=128"`
}

// MarkReviewHelpfulResult is the vote outcome.
type MarkReviewHelpfulResult struct {
	ReviewID     string
	HelpfulCount int
	Added        bool
}

// MarkReviewHelpfulHandler handles MarkReviewHelpfulCommand.
type MarkReviewHelpfulHandler struct {
	reviews   review.Repository
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewMarkReviewHelpfulHandler creates a new MarkReviewHelpfulHandler.
func NewMarkReviewHelpfulHandler(reviews review.Repository, publisher shared.EventPublisher, log *logger.Logger) *MarkReviewHelpfulHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &MarkReviewHelpfulHandler{reviews: reviews, publisher: publisher, log: log}
}

// Handle executes the command. Users cannot vote on their own review.
func (h *MarkReviewHelpfulHandler) Handle(ctx context.Context, cmd MarkReviewHelpfulCommand) (*MarkReviewHelpfulResult, error) {
	if err := validateCommand("review", "MarkHelpful", cmd); err != nil {
		return nil, err
	}
	rev, err := h.reviews.GetByID(ctx, cmd.ReviewID)
	if err != nil {
		return nil, err
	}
	if string(rev.UserID) == cmd.UserID {
		return nil, shared.NewValidationError("review", "MarkHelpful", "userId", "cannot mark your own review as helpful")
	}

	added, count, err := h.reviews.AddHelpfulVote(ctx, rev.ID, shared.UserID(cmd.UserID))
	if err != nil {
		return nil, err
	}
	if added {
		publishAll(ctx, h.publisher, shared.NewReviewVotedEvent(rev.ID, cmd.UserID, count))
	}
	return &MarkReviewHelpfulResult{ReviewID: rev.ID, HelpfulCount: count, Added: added}, nil
}
