package command

import (
	"context"
	"time"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/enrollment"
	"github.com/skillmate/skillmate-core/internal/domain/review"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/internal/infrastructure/metrics"
	"github.com/skillmate/skillmate-core/pkg/logger"
	"github.com/skillmate/skillmate-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT REVIEW COMMAND
// Classify first (no locks held), then an optimistic loop: read the path at
// version v, apply the incremental algebra, and commit review + aggregates
// only if the path is still at v.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitReviewCommand creates or updates the user's review of a path.
type SubmitReviewCommand struct {
	UserID       string `field:"userId" validate:"required,max=128"`
	CoursePathID string `field:"coursePathId" validate:"required"`
	Rating       int    `field:"rating" validate:"min=1,max=5"`
	Text         string `field:"text"`
}

// Validate validates the command.
func (c SubmitReviewCommand) Validate() error {
	return validateCommand("review", "Submit", c)
}

// SubmitReviewResult carries the stored review and the aggregates it produced.
type SubmitReviewResult struct {
	Review     *review.Review
	Aggregates coursepath.Snapshot
	// Updated is true when an existing review was replaced.
	Updated bool
}

// SubmitReviewHandlerConfig contains configuration for the handler.
type SubmitReviewHandlerConfig struct {
	// SentimentTimeout bounds the classifier call; on expiry the review is neutral.
	SentimentTimeout time.Duration

	ConflictRetries int

	// RequireEnrollment rejects reviews from users who are not enrolled.
	RequireEnrollment bool

	// ReconcileOnDrift repairs aggregates inline when the algebra detects an
	// impossible stored state, then retries the write.
	ReconcileOnDrift bool

	IDs   IDGenerator
	Clock Clock
}

// DefaultSubmitReviewHandlerConfig returns default configuration.
func DefaultSubmitReviewHandlerConfig() SubmitReviewHandlerConfig {
	return SubmitReviewHandlerConfig{
		SentimentTimeout:  5 * time.Second,
		ConflictRetries:   3,
		RequireEnrollment: true,
		ReconcileOnDrift:  true,
	}
}

// SubmitReviewHandler handles SubmitReviewCommand.
type SubmitReviewHandler struct {
	paths       coursepath.Repository
	enrollments enrollment.Repository
	reviews     review.Repository
	aggregates  coursepath.AggregateStore
	classifier  review.SentimentClassifier
	publisher   shared.EventPublisher
	log         *logger.Logger
	cfg         SubmitReviewHandlerConfig
	ids         IDGenerator
	now         Clock
}

// NewSubmitReviewHandler creates a new SubmitReviewHandler.
func NewSubmitReviewHandler(
	paths coursepath.Repository,
	enrollments enrollment.Repository,
	reviews review.Repository,
	aggregates coursepath.AggregateStore,
	classifier review.SentimentClassifier,
	publisher shared.EventPublisher,
	log *logger.Logger,
	config SubmitReviewHandlerConfig,
) *SubmitReviewHandler {
	if config.SentimentTimeout <= 0 {
		config.SentimentTimeout = DefaultSubmitReviewHandlerConfig().SentimentTimeout
	}
	if config.ConflictRetries <= 0 {
		config.ConflictRetries = DefaultSubmitReviewHandlerConfig().ConflictRetries
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SubmitReviewHandler{
		paths:       paths,
		enrollments: enrollments,
		reviews:     reviews,
		aggregates:  aggregates,
		classifier:  classifier,
		publisher:   publisher,
		log:         log.With(logger.Component("reviews")),
		cfg:         config,
		ids:         defaultIDs(config.IDs),
		now:         defaultClock(config.Clock),
	}
}

// Handle executes the command. A ConflictError is returned only after the
// configured attempts are exhausted; callers may retry it.
func (h *SubmitReviewHandler) Handle(ctx context.Context, cmd SubmitReviewCommand) (*SubmitReviewResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	rating, err := shared.NewRating(cmd.Rating)
	if err != nil {
		return nil, err
	}
	text, err := review.NormalizeText(cmd.Text)
	if err != nil {
		return nil, err
	}
	userID := shared.UserID(cmd.UserID)

	path, err := h.paths.GetByID(ctx, cmd.CoursePathID)
	if err != nil {
		return nil, err
	}
	if err := path.EnsureAcceptsParticipation(); err != nil {
		return nil, err
	}
	if h.cfg.RequireEnrollment {
		enrolled, err := h.enrollments.Exists(ctx, userID, path.ID)
		if err != nil {
			return nil, err
		}
		if !enrolled {
			return nil, shared.ErrNotEnrolledInPath
		}
	}

	verdict := h.classify(ctx, path.ID, text)

	attempt := 0
	res, err := retry.DoWithData(ctx, conflictRetrier(ctx, "review.submit", h.cfg.ConflictRetries),
		func(ctx context.Context) (*SubmitReviewResult, error) {
			attempt++
			return h.apply(ctx, path.ID, userID, rating, text, verdict)
		})
	if err != nil {
		if shared.IsConflict(err) {
			h.log.Warn("review write gave up after conflicts",
				logger.CoursePathID(path.ID), logger.UserID(cmd.UserID), logger.Attempt(attempt))
		}
		return nil, err
	}

	publishAll(ctx, h.publisher,
		shared.NewReviewSubmittedEvent(path.ID, res.Review.ID, cmd.UserID, rating.Int(), verdict.Label, res.Updated),
		shared.NewAggregatesChangedEvent(path.ID, res.Aggregates.EnrollmentCount, res.Aggregates.ReviewCount, false),
	)
	return res, nil
}

// classify never fails: empty text, errors and timeouts all yield neutral.
func (h *SubmitReviewHandler) classify(ctx context.Context, pathID, text string) review.Classification {
	if text == "" || h.classifier == nil {
		return review.Neutral()
	}
	cctx, cancel := context.WithTimeout(ctx, h.cfg.SentimentTimeout)
	defer cancel()

	c, err := h.classifier.Classify(cctx, text)
	if err != nil {
		metrics.SentimentFallbacks.Inc()
		h.log.Warn("sentiment classification failed, using neutral",
			logger.CoursePathID(pathID), logger.Err(err))
		return review.Neutral()
	}
	if !c.Label.IsValid() {
		c.Label = shared.SentimentNeutral
	}
	return c
}

func (h *SubmitReviewHandler) apply(
	ctx context.Context,
	pathID string,
	userID shared.UserID,
	rating shared.Rating,
	text string,
	verdict review.Classification,
) (*SubmitReviewResult, error) {
	path, err := h.paths.GetByID(ctx, pathID)
	if err != nil {
		return nil, err
	}
	existing, err := h.reviews.Get(ctx, userID, pathID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, err
	}

	now := h.now()
	var next coursepath.Aggregates
	var rev *review.Review
	if existing == nil {
		next, err = path.Aggregates.WithReviewInserted(rating, verdict.Label)
		rev = &review.Review{
			ID:           h.ids(),
			CoursePathID: pathID,
			UserID:       userID,
			CreatedAt:    now,
		}
	} else {
		next, err = path.Aggregates.WithReviewUpdated(existing.Rating, rating, existing.SentimentLabel, verdict.Label)
		copied := *existing
		rev = &copied
	}
	if err != nil {
		if shared.IsDrift(err) {
			return nil, h.repairDrift(ctx, pathID, err)
		}
		return nil, err
	}

	rev.Rating = rating
	rev.Text = text
	rev.SentimentLabel = verdict.Label
	rev.SentimentScore = verdict.Score
	rev.UpdatedAt = now

	if err := h.reviews.Apply(ctx, review.Write{
		Review:          rev,
		Insert:          existing == nil,
		ExpectedVersion: path.Version,
		Aggregates:      next,
	}); err != nil {
		return nil, err
	}

	return &SubmitReviewResult{
		Review:     rev,
		Aggregates: next.Snapshot(),
		Updated:    existing != nil,
	}, nil
}

// repairDrift reconciles the path and turns the drift into a conflict so the
// write loop retries against repaired aggregates.
func (h *SubmitReviewHandler) repairDrift(ctx context.Context, pathID string, cause error) error {
	metrics.AggregateDriftDetected.Inc()
	h.log.Warn("aggregate drift detected on write path", logger.CoursePathID(pathID), logger.Err(cause))
	if !h.cfg.ReconcileOnDrift || h.aggregates == nil {
		return cause
	}
	res, err := h.aggregates.Reconcile(ctx, pathID)
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("error").Inc()
		return err
	}
	if res.Repaired {
		metrics.ReconcileRuns.WithLabelValues("repaired").Inc()
		publishAll(ctx, h.publisher, shared.NewAggregatesChangedEvent(
			pathID, res.After.EnrollmentCount, res.After.ReviewCount, true))
	}
	return shared.WrapError("review", "Submit", shared.ErrConcurrentModification, "aggregates repaired, retrying", cause)
}
