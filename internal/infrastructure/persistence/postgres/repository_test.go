package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/progress"
	"github.com/skillmate/skillmate-core/internal/domain/review"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/internal/domain/user"
)

// Интеграционные тесты запускаются только при наличии TEST_POSTGRES_DSN.
func newTestConnection(t *testing.T) *Connection {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := DefaultConfig()
	cfg.URL = dsn
	conn, err := NewConnection(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	_, err = NewMigrator(conn).Migrate(ctx)
	require.NoError(t, err)
	return conn
}

func createReadyPath(t *testing.T, repo *CoursePathRepository, creator shared.UserID) *coursepath.CoursePath {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	p, err := coursepath.NewCoursePath(coursepath.NewCoursePathParams{
		ID:         uuid.NewString(),
		Subject:    "Distributed systems " + uuid.NewString()[:8],
		Difficulty: shared.DifficultyIntermediate,
		CreatorID:  creator,
		Now:        now,
	})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, p))
	require.Equal(t, int64(1), p.Version)

	topics := coursepath.BuildTopics([]coursepath.GeneratedTopic{{Title: "Consensus"}, {Title: "Replication"}}, 0)
	require.NoError(t, p.MarkReady(topics, now))
	require.NoError(t, repo.SaveLifecycle(ctx, p))
	return p
}

func TestCoursePathRepository_LifecycleAndIdempotency(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewCoursePathRepository(conn)
	ctx := context.Background()
	creator := shared.UserID("creator-" + uuid.NewString())

	p, err := coursepath.NewCoursePath(coursepath.NewCoursePathParams{
		ID:             uuid.NewString(),
		Subject:        "Go concurrency",
		Difficulty:     shared.DifficultyBeginner,
		CreatorID:      creator,
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, p))

	dup := *p
	dup.ID = uuid.NewString()
	err = repo.Create(ctx, &dup)
	assert.True(t, shared.IsAlreadyExists(err))

	found, err := repo.GetByIdempotencyKey(ctx, creator, "key-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)

	stale := *found
	require.NoError(t, found.MarkFailed("generator down", time.Now().UTC()))
	require.NoError(t, repo.SaveLifecycle(ctx, found))
	assert.Equal(t, int64(2), found.Version)

	require.NoError(t, stale.MarkFailed("late writer", time.Now().UTC()))
	assert.ErrorIs(t, repo.SaveLifecycle(ctx, &stale), shared.ErrCoursePathConflict)
}

func TestEnrollmentRepository_CounterMovesWithRow(t *testing.T) {
	conn := newTestConnection(t)
	paths := NewCoursePathRepository(conn)
	enrollments := NewEnrollmentRepository(conn)
	ctx := context.Background()

	p := createReadyPath(t, paths, "creator-"+shared.UserID(uuid.NewString()))
	u := shared.UserID("learner-" + uuid.NewString())

	created, err := enrollments.Enroll(ctx, u, p.ID)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = enrollments.Enroll(ctx, u, p.ID)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := paths.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Aggregates.EnrollmentCount)
	assert.Equal(t, p.Version, got.Version, "enrollment must not bump the version")

	removed, err := enrollments.Unenroll(ctx, u, p.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	got, err = paths.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Aggregates.EnrollmentCount)

	_, err = enrollments.Enroll(ctx, u, uuid.NewString())
	assert.ErrorIs(t, err, shared.ErrCoursePathNotFound)
}

// The handler checks the status before calling Enroll; an archive committed in
// between must still keep the enrollment out.
func TestEnrollmentRepository_RejectsArchivedPath(t *testing.T) {
	conn := newTestConnection(t)
	paths := NewCoursePathRepository(conn)
	enrollments := NewEnrollmentRepository(conn)
	ctx := context.Background()

	p := createReadyPath(t, paths, "creator-"+shared.UserID(uuid.NewString()))
	p.Archive(time.Now().UTC())
	require.NoError(t, paths.SaveLifecycle(ctx, p))

	created, err := enrollments.Enroll(ctx, shared.UserID("learner-"+uuid.NewString()), p.ID)
	assert.ErrorIs(t, err, shared.ErrCoursePathArchived)
	assert.False(t, created)

	got, err := paths.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Aggregates.EnrollmentCount)
}

func TestProgressRepository_VersionCheck(t *testing.T) {
	conn := newTestConnection(t)
	paths := NewCoursePathRepository(conn)
	repo := NewProgressRepository(conn)
	ctx := context.Background()

	p := createReadyPath(t, paths, "creator-"+shared.UserID(uuid.NewString()))
	u := shared.UserID("learner-" + uuid.NewString())

	rec := progress.NewRecord(u, p.ID)
	_, err := rec.MarkComplete(1, p.TopicCount(), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)

	again := progress.NewRecord(u, p.ID)
	assert.ErrorIs(t, repo.Save(ctx, again), shared.ErrProgressConflict)

	loaded, err := repo.Get(ctx, u, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, loaded.CompletedIndices())
	assert.InDelta(t, 50.0, loaded.Percentage, 0.001)
}

func TestReviewRepository_ApplyAndReconcile(t *testing.T) {
	conn := newTestConnection(t)
	paths := NewCoursePathRepository(conn)
	reviews := NewReviewRepository(conn)
	store := NewAggregateStore(conn)
	ctx := context.Background()

	p := createReadyPath(t, paths, "creator-"+shared.UserID(uuid.NewString()))
	now := time.Now().UTC().Truncate(time.Microsecond)

	next, err := p.Aggregates.WithReviewInserted(5, shared.SentimentPositive)
	require.NoError(t, err)
	rv := &review.Review{
		ID: uuid.NewString(), CoursePathID: p.ID, UserID: "reviewer-1",
		Rating: 5, Text: "great", SentimentLabel: shared.SentimentPositive,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, reviews.Apply(ctx, review.Write{Review: rv, Insert: true, ExpectedVersion: p.Version, Aggregates: next}))

	// A writer holding the old version loses.
	err = reviews.Apply(ctx, review.Write{Review: rv, Insert: false, ExpectedVersion: p.Version, Aggregates: next})
	assert.ErrorIs(t, err, shared.ErrCoursePathConflict)

	got, err := paths.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Version+1, got.Version)
	assert.Equal(t, 1, got.Aggregates.ReviewCount)

	added, count, err := reviews.AddHelpfulVote(ctx, rv.ID, "voter-1")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 1, count)
	added, count, err = reviews.AddHelpfulVote(ctx, rv.ID, "voter-1")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, count)

	// Reconcile is a no-op on consistent rows.
	res, err := store.Reconcile(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, res.Repaired)

	_, err = conn.Exec(ctx, `UPDATE course_paths SET enrollment_count = 7 WHERE id = $1`, p.ID)
	require.NoError(t, err)
	res, err = store.Reconcile(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, res.Repaired)
	assert.Equal(t, 0, res.After.EnrollmentCount)
	assert.Equal(t, 1, res.After.ReviewCount)
}

func TestUserRepository_UniqueConstraints(t *testing.T) {
	conn := newTestConnection(t)
	repo := NewUserRepository(conn)
	ctx := context.Background()
	suffix := uuid.NewString()[:8]

	u, err := user.NewUser(user.NewUserParams{ID: uuid.NewString(), Username: "ada" + suffix, Email: "ada" + suffix + "@example.com"})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, u))

	clash, err := user.NewUser(user.NewUserParams{ID: uuid.NewString(), Username: "ADA" + suffix, Email: "other" + suffix + "@example.com"})
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, clash), shared.ErrUsernameTaken)

	loaded, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []shared.Role{shared.RoleUser}, loaded.Roles)
}
