package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/review"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newPath(t *testing.T, s *Store, id, key string) *coursepath.CoursePath {
	t.Helper()
	p, err := coursepath.NewCoursePath(coursepath.NewCoursePathParams{
		ID: id, Subject: "Go", Difficulty: shared.DifficultyBeginner, CreatorID: "author",
		IdempotencyKey: key, Now: now,
	})
	require.NoError(t, err)
	require.NoError(t, s.CoursePaths().Create(context.Background(), p))
	return p
}

func readyPath(t *testing.T, s *Store, id string) *coursepath.CoursePath {
	t.Helper()
	p := newPath(t, s, id, "")
	require.NoError(t, p.MarkReady(coursepath.BuildTopics([]coursepath.GeneratedTopic{{Title: "Intro"}}, 0), now))
	require.NoError(t, s.CoursePaths().SaveLifecycle(context.Background(), p))
	return p
}

func TestCoursePaths_CreateAndVersioning(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	p := newPath(t, s, "p1", "k1")
	assert.Equal(t, int64(1), p.Version)

	dup, err := coursepath.NewCoursePath(coursepath.NewCoursePathParams{
		ID: "p2", Subject: "Go", Difficulty: shared.DifficultyBeginner, CreatorID: "author",
		IdempotencyKey: "k1", Now: now,
	})
	require.NoError(t, err)
	assert.True(t, shared.IsAlreadyExists(s.CoursePaths().Create(ctx, dup)))

	byKey, err := s.CoursePaths().GetByIdempotencyKey(ctx, "author", "k1")
	require.NoError(t, err)
	assert.Equal(t, "p1", byKey.ID)
	_, err = s.CoursePaths().GetByIdempotencyKey(ctx, "someone-else", "k1")
	assert.True(t, shared.IsNotFound(err))

	// two writers load version 1; the second save loses
	a, err := s.CoursePaths().GetByID(ctx, "p1")
	require.NoError(t, err)
	b, err := s.CoursePaths().GetByID(ctx, "p1")
	require.NoError(t, err)

	require.NoError(t, a.MarkReady(coursepath.BuildTopics([]coursepath.GeneratedTopic{{Title: "Intro"}}, 0), now))
	require.NoError(t, s.CoursePaths().SaveLifecycle(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	require.NoError(t, b.MarkFailed("late", now))
	assert.True(t, shared.IsConflict(s.CoursePaths().SaveLifecycle(ctx, b)))

	stored, err := s.CoursePaths().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, coursepath.StatusReady, stored.Status)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore()
	newPath(t, s, "p1", "")

	got, err := s.CoursePaths().GetByID(context.Background(), "p1")
	require.NoError(t, err)
	got.Subject = "mutated"

	again, err := s.CoursePaths().GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Go", again.Subject)
}

func TestEnrollments_MoveCounterWithoutVersionBump(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	readyPath(t, s, "p1")

	created, err := s.Enrollments().Enroll(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.Enrollments().Enroll(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.False(t, created)

	p, err := s.CoursePaths().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Aggregates.EnrollmentCount)
	assert.Equal(t, int64(2), p.Version)

	removed, err := s.Enrollments().Unenroll(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.Enrollments().Unenroll(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = s.Enrollments().Enroll(ctx, "u1", "missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestEnrollments_RejectDraftAndArchivedPaths(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	newPath(t, s, "draft", "")
	p := readyPath(t, s, "archived")

	_, err := s.Enrollments().Enroll(ctx, "u1", "draft")
	assert.ErrorIs(t, err, shared.ErrCoursePathNotReady)

	// archived after the caller loaded it as READY
	p.Archive(now)
	require.NoError(t, s.CoursePaths().SaveLifecycle(ctx, p))
	created, err := s.Enrollments().Enroll(ctx, "u1", "archived")
	assert.ErrorIs(t, err, shared.ErrCoursePathArchived)
	assert.False(t, created)

	got, err := s.CoursePaths().GetByID(ctx, "archived")
	require.NoError(t, err)
	assert.Zero(t, got.Aggregates.EnrollmentCount)
}

func TestReviews_ApplyChecksVersion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	newPath(t, s, "p1", "")

	agg, err := coursepath.Aggregates{}.WithReviewInserted(4, shared.SentimentPositive)
	require.NoError(t, err)
	rv := &review.Review{
		ID: "r1", CoursePathID: "p1", UserID: "u1", Rating: 4,
		SentimentLabel: shared.SentimentPositive, CreatedAt: now, UpdatedAt: now,
	}

	err = s.Reviews().Apply(ctx, review.Write{Review: rv, Insert: true, ExpectedVersion: 7, Aggregates: agg})
	assert.True(t, shared.IsConflict(err))

	require.NoError(t, s.Reviews().Apply(ctx, review.Write{Review: rv, Insert: true, ExpectedVersion: 1, Aggregates: agg}))

	// a second insert for the same user is a lost race, not a duplicate row
	other := *rv
	other.ID = "r2"
	err = s.Reviews().Apply(ctx, review.Write{Review: &other, Insert: true, ExpectedVersion: 2, Aggregates: agg})
	assert.True(t, shared.IsConflict(err))

	p, err := s.CoursePaths().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Aggregates.ReviewCount)
	assert.Equal(t, int64(2), p.Version)

	got, err := s.Reviews().Get(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
}

func TestAggregates_ReconcileRepairsDrift(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	readyPath(t, s, "p1")
	_, err := s.Enrollments().Enroll(ctx, "u1", "p1")
	require.NoError(t, err)

	res, err := s.Aggregates().Reconcile(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, res.Repaired)

	require.True(t, s.OverwriteAggregates("p1", coursepath.Aggregates{EnrollmentCount: 9}))
	res, err = s.Aggregates().Reconcile(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, res.Repaired)
	assert.Equal(t, 9, res.Before.EnrollmentCount)
	assert.Equal(t, 1, res.After.EnrollmentCount)

	_, err = s.Aggregates().Reconcile(ctx, "missing")
	assert.True(t, shared.IsNotFound(err))
}
