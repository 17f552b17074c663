package command

import (
	"context"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/enrollment"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL / UNENROLL COMMANDS
// The relation row and enrollmentCount move in one repository transaction.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollCommand enrolls a user into a READY course path.
type EnrollCommand struct {
	UserID       string `field:"userId" validate:"required,max=128"`
	CoursePathID string `field:"coursePathId" validate:"required"`
}

// Validate validates the command.
func (c EnrollCommand) Validate() error {
	return validateCommand("enrollment", "Enroll", c)
}

// EnrollResult reports whether a new enrollment was created.
type EnrollResult struct {
	CoursePathID string
	// Created is false for a repeated enroll; nothing was mutated then.
	Created bool
}

// UnenrollCommand removes a user's enrollment.
type UnenrollCommand struct {
	UserID       string `field:"userId" validate:"required,max=128"`
	CoursePathID string `field:"coursePathId" validate:"required"`
}

// UnenrollResult reports whether an enrollment was removed.
type UnenrollResult struct {
	CoursePathID string
	Removed      bool
}

// EnrollmentHandler handles EnrollCommand and UnenrollCommand.
type EnrollmentHandler struct {
	paths       coursepath.Repository
	enrollments enrollment.Repository
	publisher   shared.EventPublisher
	log         *logger.Logger
}

// NewEnrollmentHandler creates a new EnrollmentHandler.
func NewEnrollmentHandler(
	paths coursepath.Repository,
	enrollments enrollment.Repository,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *EnrollmentHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &EnrollmentHandler{
		paths:       paths,
		enrollments: enrollments,
		publisher:   publisher,
		log:         log.With(logger.Component("enrollment")),
	}
}

// Enroll executes EnrollCommand. Re-enrolling is a successful no-op.
func (h *EnrollmentHandler) Enroll(ctx context.Context, cmd EnrollCommand) (*EnrollResult, error) {
	if err := cmd.Validate(); err != nil {
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

	created, err := h.enrollments.Enroll(ctx, userID, path.ID)
	if err != nil {
		return nil, err
	}
	if created {
		h.log.Info("user enrolled", logger.CoursePathID(path.ID), logger.UserID(cmd.UserID))
		publishAll(ctx, h.publisher, shared.NewEnrollmentEvent(shared.EventUserEnrolled, path.ID, cmd.UserID))
	}
	return &EnrollResult{CoursePathID: path.ID, Created: created}, nil
}

// Unenroll executes UnenrollCommand. Progress and reviews are retained;
// removing a missing enrollment is a no-op.
func (h *EnrollmentHandler) Unenroll(ctx context.Context, cmd UnenrollCommand) (*UnenrollResult, error) {
	if err := validateCommand("enrollment", "Unenroll", cmd); err != nil {
		return nil, err
	}
	if _, err := h.paths.GetByID(ctx, cmd.CoursePathID); err != nil {
		return nil, err
	}

	removed, err := h.enrollments.Unenroll(ctx, shared.UserID(cmd.UserID), cmd.CoursePathID)
	if err != nil {
		return nil, err
	}
	if removed {
		h.log.Info("user unenrolled", logger.CoursePathID(cmd.CoursePathID), logger.UserID(cmd.UserID))
		publishAll(ctx, h.publisher, shared.NewEnrollmentEvent(shared.EventUserUnenrolled, cmd.CoursePathID, cmd.UserID))
	}
	return &UnenrollResult{CoursePathID: cmd.CoursePathID, Removed: removed}, nil
}
