// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/internal/infrastructure/metrics"
	"github.com/skillmate/skillmate-core/pkg/logger"
	"github.com/skillmate/skillmate-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// SHARED HANDLER PLUMBING
// ══════════════════════════════════════════════════════════════════════════════

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// structValidator returns the shared validator. Field names come from the
// `field` tag so errors name the API field, not the Go field.
func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			if name := f.Tag.Get("field"); name != "" {
				return name
			}
			return f.Name
		})
	})
	return validate
}

// validateCommand runs struct validation and converts the first violation
// into a field-scoped ValidationError.
func validateCommand(domain, op string, cmd any) error {
	err := structValidator().Struct(cmd)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return shared.WrapError(domain, op, shared.ErrValidation, "invalid command", err)
	}
	fe := verrs[0]
	return shared.NewValidationError(domain, op, fe.Field(), describeTag(fe))
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// IDGenerator produces entity IDs.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

func defaultIDs(g IDGenerator) IDGenerator {
	if g == nil {
		return uuid.NewString
	}
	return g
}

func defaultClock(c Clock) Clock {
	if c == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return c
}

// publishAll publishes events best-effort: the write already committed, so a
// publish failure is logged and never surfaced.
func publishAll(ctx context.Context, pub shared.EventPublisher, events ...shared.Event) {
	if pub == nil {
		return
	}
	for _, e := range events {
		if err := pub.Publish(e); err != nil {
			logger.FromContext(ctx).Warn("event publish failed",
				logger.String("event_type", string(e.EventType())),
				logger.String("aggregate_id", e.AggregateID()),
				logger.Err(err),
			)
		}
	}
}

// conflictRetrier retries optimistic-lock conflicts for the named operation.
func conflictRetrier(ctx context.Context, op string, attempts int) *retry.Retrier {
	if attempts < 1 {
		attempts = 3
	}
	log := logger.FromContext(ctx)
	return retry.ConflictRetrier(attempts, shared.IsConflict, func(attempt int, err error, delay time.Duration) {
		metrics.AggregateConflicts.WithLabelValues(op).Inc()
		log.Debug("retrying after version conflict",
			logger.Operation(op),
			logger.Attempt(attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	})
}
