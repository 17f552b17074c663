package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/internal/infrastructure/metrics"
	"github.com/skillmate/skillmate-core/pkg/logger"
	"github.com/skillmate/skillmate-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE COURSE PATH COMMAND
// Persists a DRAFT, asks the topic generator for an ordered topic list and
// settles the path as READY or FAILED. Aggregates are never touched here.
// ══════════════════════════════════════════════════════════════════════════════

// settleAllowance is the storage time granted on top of the generator
// timeout to work shared between duplicate requests.
const settleAllowance = 15 * time.Second

// GenerateCoursePathCommand contains the data to generate a course path.
type GenerateCoursePathCommand struct {
	CreatorID  string `field:"creatorId" validate:"required,max=128"`
	Subject    string `field:"subject" validate:"required"`
	Difficulty string `field:"difficulty" validate:"required"`

	// IdempotencyKey makes repeated submissions return the same path.
	IdempotencyKey string `field:"idempotencyKey" validate:"omitempty,max=128,printascii"`
}

// Validate validates the command.
func (c GenerateCoursePathCommand) Validate() error {
	return validateCommand("coursepath", "Generate", c)
}

// GenerateCoursePathResult contains the outcome of a generation.
type GenerateCoursePathResult struct {
	CoursePathID string
	Status       coursepath.Status
	TopicCount   int

	// Reused is true when an idempotency key resolved to an existing path.
	Reused bool

	CoursePath *coursepath.CoursePath
}

// IdempotencyCache remembers which path an idempotency key resolved to.
// Implementations may be lossy; the repository is the source of truth.
type IdempotencyCache interface {
	GetCoursePathID(ctx context.Context, creatorID shared.UserID, key string) (string, bool, error)
	PutCoursePathID(ctx context.Context, creatorID shared.UserID, key, coursePathID string) error
}

// GenerateCoursePathHandlerConfig contains configuration for the handler.
type GenerateCoursePathHandlerConfig struct {
	// Timeout bounds a single generator call.
	Timeout time.Duration

	// ConflictRetries bounds lifecycle save attempts.
	ConflictRetries int

	IDs   IDGenerator
	Clock Clock
}

// DefaultGenerateCoursePathHandlerConfig returns default configuration.
func DefaultGenerateCoursePathHandlerConfig() GenerateCoursePathHandlerConfig {
	return GenerateCoursePathHandlerConfig{
		Timeout:         60 * time.Second,
		ConflictRetries: 3,
	}
}

// GenerateCoursePathHandler handles GenerateCoursePathCommand and retries of
// FAILED paths.
type GenerateCoursePathHandler struct {
	paths     coursepath.Repository
	generator coursepath.TopicGenerator
	keys      IdempotencyCache
	publisher shared.EventPublisher
	log       *logger.Logger

	timeout         time.Duration
	conflictRetries int
	ids             IDGenerator
	now             Clock

	inflight singleflight.Group
}

// NewGenerateCoursePathHandler creates a new GenerateCoursePathHandler.
// keys may be nil.
func NewGenerateCoursePathHandler(
	paths coursepath.Repository,
	generator coursepath.TopicGenerator,
	keys IdempotencyCache,
	publisher shared.EventPublisher,
	log *logger.Logger,
	config GenerateCoursePathHandlerConfig,
) *GenerateCoursePathHandler {
	def := DefaultGenerateCoursePathHandlerConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.ConflictRetries <= 0 {
		config.ConflictRetries = def.ConflictRetries
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GenerateCoursePathHandler{
		paths:           paths,
		generator:       generator,
		keys:            keys,
		publisher:       publisher,
		log:             log.With(logger.Component("generation")),
		timeout:         config.Timeout,
		conflictRetries: config.ConflictRetries,
		ids:             defaultIDs(config.IDs),
		now:             defaultClock(config.Clock),
	}
}

// Handle executes the command.
//
// When generation itself fails the path is persisted as FAILED and Handle
// returns both the result (carrying the path id) and a GenerationError.
func (h *GenerateCoursePathHandler) Handle(ctx context.Context, cmd GenerateCoursePathCommand) (*GenerateCoursePathResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	creator, err := shared.NewUserID(cmd.CreatorID)
	if err != nil {
		return nil, err
	}
	subject, err := coursepath.NormalizeSubject(cmd.Subject)
	if err != nil {
		return nil, err
	}
	difficulty, err := shared.ParseDifficulty(cmd.Difficulty)
	if err != nil {
		return nil, err
	}

	if cmd.IdempotencyKey == "" {
		return h.createAndGenerate(ctx, creator, subject, difficulty, "")
	}

	type outcome struct {
		res *GenerateCoursePathResult
		err error
	}
	// Concurrent duplicates within this process share one generation. The
	// shared work is detached from whichever caller started it, so that
	// caller disconnecting does not fail the others.
	ch := h.inflight.DoChan(string(creator)+"\x00"+cmd.IdempotencyKey, func() (interface{}, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout+settleAllowance)
		defer cancel()
		res, err := h.generateIdempotent(sharedCtx, creator, subject, difficulty, cmd.IdempotencyKey)
		return outcome{res: res, err: err}, nil
	})
	select {
	case r := <-ch:
		out := r.Val.(outcome)
		return out.res, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *GenerateCoursePathHandler) generateIdempotent(
	ctx context.Context,
	creator shared.UserID,
	subject string,
	difficulty shared.Difficulty,
	key string,
) (*GenerateCoursePathResult, error) {
	existing, err := h.findByKey(ctx, creator, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return h.reuse(ctx, existing)
	}

	res, err := h.createAndGenerate(ctx, creator, subject, difficulty, key)
	if shared.IsAlreadyExists(err) {
		// Another process won the unique (creator, key) race.
		existing, ferr := h.paths.GetByIdempotencyKey(ctx, creator, key)
		if ferr != nil {
			return nil, ferr
		}
		return h.reuse(ctx, existing)
	}
	return res, err
}

func (h *GenerateCoursePathHandler) findByKey(ctx context.Context, creator shared.UserID, key string) (*coursepath.CoursePath, error) {
	if h.keys != nil {
		id, ok, err := h.keys.GetCoursePathID(ctx, creator, key)
		metrics.RecordCache("idempotency", ok, err)
		if err == nil && ok {
			p, err := h.paths.GetByID(ctx, id)
			if err == nil {
				return p, nil
			}
			if !shared.IsNotFound(err) {
				return nil, err
			}
		}
	}

	p, err := h.paths.GetByIdempotencyKey(ctx, creator, key)
	if shared.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	h.rememberKey(ctx, p)
	return p, nil
}

// reuse returns an existing path; a FAILED one is regenerated in place.
func (h *GenerateCoursePathHandler) reuse(ctx context.Context, p *coursepath.CoursePath) (*GenerateCoursePathResult, error) {
	if p.Status == coursepath.StatusFailed {
		return h.regenerate(ctx, p)
	}
	metrics.GenerationOutcomes.WithLabelValues("reused").Inc()
	return resultOf(p, true), nil
}

func (h *GenerateCoursePathHandler) createAndGenerate(
	ctx context.Context,
	creator shared.UserID,
	subject string,
	difficulty shared.Difficulty,
	key string,
) (*GenerateCoursePathResult, error) {
	path, err := coursepath.NewCoursePath(coursepath.NewCoursePathParams{
		ID:             h.ids(),
		Subject:        subject,
		Difficulty:     difficulty,
		CreatorID:      creator,
		IdempotencyKey: key,
		Now:            h.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := h.paths.Create(ctx, path); err != nil {
		return nil, err
	}
	h.rememberKey(ctx, path)

	publishAll(ctx, h.publisher, shared.NewCoursePathLifecycleEvent(
		shared.EventCoursePathCreated, path.ID, string(creator), subject, 0, ""))

	return h.generate(ctx, path)
}

// RetryGenerationCommand re-runs generation for a FAILED path in place.
type RetryGenerationCommand struct {
	CoursePathID string `field:"coursePathId" validate:"required"`
	CallerID     string `field:"userId" validate:"required"`
}

// Retry handles RetryGenerationCommand. Only the creator may retry.
func (h *GenerateCoursePathHandler) Retry(ctx context.Context, cmd RetryGenerationCommand) (*GenerateCoursePathResult, error) {
	if err := validateCommand("coursepath", "RetryGeneration", cmd); err != nil {
		return nil, err
	}
	path, err := h.paths.GetByID(ctx, cmd.CoursePathID)
	if err != nil {
		return nil, err
	}
	if string(path.CreatorID) != cmd.CallerID {
		return nil, shared.ErrNotPathCreator
	}
	if path.Status != coursepath.StatusFailed {
		return nil, shared.NewDomainError("coursepath", "RetryGeneration", shared.ErrInvalidState,
			fmt.Sprintf("only FAILED paths can be regenerated, path is %s", path.Status))
	}
	return h.regenerate(ctx, path)
}

func (h *GenerateCoursePathHandler) regenerate(ctx context.Context, path *coursepath.CoursePath) (*GenerateCoursePathResult, error) {
	if err := path.ResetForRetry(h.now()); err != nil {
		return nil, err
	}
	if err := h.paths.SaveLifecycle(ctx, path); err != nil {
		// A concurrent retry already moved the path back to DRAFT.
		if shared.IsConflict(err) {
			return nil, shared.WrapError("coursepath", "RetryGeneration", shared.ErrInvalidState,
				"generation already in progress", err)
		}
		return nil, err
	}
	h.log.Info("retrying generation", logger.CoursePathID(path.ID))
	return h.generate(ctx, path)
}

// generate calls the capability under the timeout and settles the DRAFT.
func (h *GenerateCoursePathHandler) generate(ctx context.Context, path *coursepath.CoursePath) (*GenerateCoursePathResult, error) {
	start := time.Now()
	genCtx, cancel := context.WithTimeout(ctx, h.timeout)
	generated, genErr := h.generator.GenerateTopics(genCtx, path.Subject, path.Difficulty)
	cancel()

	var topics []coursepath.Topic
	var failure error
	switch {
	case genErr != nil && errors.Is(genErr, context.DeadlineExceeded):
		failure = shared.WrapError("generation", "Generate", shared.ErrGeneration,
			fmt.Sprintf("generation timed out after %s", h.timeout), shared.ErrGeneratorTimeout)
	case genErr != nil:
		failure = shared.WrapError("generation", "Generate", shared.ErrGeneration, "topic generator failed", genErr)
	default:
		topics = coursepath.BuildTopics(generated, path.Difficulty.MaxTopics())
		if len(topics) == 0 {
			failure = shared.ErrEmptyGeneration
		}
	}

	// The outcome must be recorded even if the caller went away.
	saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer saveCancel()

	settled, err := h.settle(saveCtx, path, topics, failure)
	if err != nil {
		return nil, err
	}
	switch settled.Status {
	case coursepath.StatusFailed:
		if failure == nil {
			failure = shared.NewDomainError("generation", "Generate", shared.ErrGeneration, settled.FailureReason)
		}
	case coursepath.StatusReady:
		failure = nil
	}

	log := h.log.With(logger.CoursePathID(settled.ID), logger.Latency(time.Since(start)))
	if failure != nil {
		metrics.GenerationOutcomes.WithLabelValues("failed").Inc()
		log.Warn("course path generation failed", logger.Err(failure))
		publishAll(ctx, h.publisher, shared.NewCoursePathLifecycleEvent(
			shared.EventCoursePathFailed, settled.ID, string(settled.CreatorID), settled.Subject, 0, settled.FailureReason))
		return resultOf(settled, false), failure
	}

	metrics.GenerationOutcomes.WithLabelValues("ready").Inc()
	log.Info("course path ready", logger.Int("topics", len(settled.Topics)))
	publishAll(ctx, h.publisher, shared.NewCoursePathLifecycleEvent(
		shared.EventCoursePathReady, settled.ID, string(settled.CreatorID), settled.Subject, len(settled.Topics), ""))
	return resultOf(settled, false), nil
}

// settle applies READY or FAILED, reloading on version conflicts. If the path
// is no longer DRAFT (the stale-draft sweeper got there first) the stored
// state wins.
func (h *GenerateCoursePathHandler) settle(
	ctx context.Context,
	path *coursepath.CoursePath,
	topics []coursepath.Topic,
	failure error,
) (*coursepath.CoursePath, error) {
	current := path
	return retry.DoWithData(ctx, conflictRetrier(ctx, "generation.settle", h.conflictRetries),
		func(ctx context.Context) (*coursepath.CoursePath, error) {
			if current == nil {
				p, err := h.paths.GetByID(ctx, path.ID)
				if err != nil {
					return nil, err
				}
				current = p
			}
			if current.Status != coursepath.StatusDraft {
				return current, nil
			}

			now := h.now()
			var err error
			if failure != nil {
				err = current.MarkFailed(failure.Error(), now)
			} else {
				err = current.MarkReady(topics, now)
			}
			if err != nil {
				return nil, err
			}
			if err := h.paths.SaveLifecycle(ctx, current); err != nil {
				current = nil
				return nil, err
			}
			return current, nil
		})
}

func (h *GenerateCoursePathHandler) rememberKey(ctx context.Context, p *coursepath.CoursePath) {
	if h.keys == nil || p.IdempotencyKey == "" {
		return
	}
	if err := h.keys.PutCoursePathID(ctx, p.CreatorID, p.IdempotencyKey, p.ID); err != nil {
		h.log.Warn("idempotency cache write failed", logger.CoursePathID(p.ID), logger.Err(err))
	}
}

func resultOf(p *coursepath.CoursePath, reused bool) *GenerateCoursePathResult {
	return &GenerateCoursePathResult{
		CoursePathID: p.ID,
		Status:       p.Status,
		TopicCount:   p.TopicCount(),
		Reused:       reused,
		CoursePath:   p,
	}
}
