// Package enrollment models the (user, course path) participation relation.
package enrollment

import (
	"context"
	"time"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// Enrollment is unique per (UserID, CoursePathID).
type Enrollment struct {
	UserID       shared.UserID
	CoursePathID string
	CreatedAt    time.Time
}

// Repository persists enrollments together with the course path's
// enrollmentCount. Both methods are a single atomic unit: the relation row and
// the counter move together or not at all.
type Repository interface {
	// Enroll inserts the pair and increments enrollmentCount. created is false
	// when the pair already existed; nothing is mutated in that case.
	Enroll(ctx context.Context, userID shared.UserID, coursePathID string) (created bool, err error)

	// Unenroll deletes the pair and decrements enrollmentCount. removed is
	// false when there was nothing to delete.
	Unenroll(ctx context.Context, userID shared.UserID, coursePathID string) (removed bool, err error)

	// Exists reports whether the user is enrolled.
	Exists(ctx context.Context, userID shared.UserID, coursePathID string) (bool, error)

	// ListCoursePathIDs returns the paths a user is enrolled in, newest first.
	ListCoursePathIDs(ctx context.Context, userID shared.UserID) ([]string, error)
}
