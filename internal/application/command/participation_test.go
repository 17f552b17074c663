package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

func TestEnroll_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.readyPath(t, "creator")

	first, err := f.enroll.Enroll(ctx, EnrollCommand{UserID: "user-1", CoursePathID: p.ID})
	require.NoError(t, err)
	assert.True(t, first.Created)

	again, err := f.enroll.Enroll(ctx, EnrollCommand{UserID: "user-1", CoursePathID: p.ID})
	require.NoError(t, err)
	assert.False(t, again.Created)

	assert.Equal(t, 1, f.path(t, p.ID).Aggregates.EnrollmentCount)
	assert.Equal(t, 1, f.events.count(shared.EventUserEnrolled))
}

func TestEnroll_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.enroll.Enroll(ctx, EnrollCommand{UserID: "user-1", CoursePathID: "missing"})
	assert.True(t, shared.IsNotFound(err))

	_, err = f.enroll.Enroll(ctx, EnrollCommand{CoursePathID: "missing"})
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, "userId", shared.FieldOf(err))

	f.gen.set(nil, errors.New("down"))
	failed, genErr := f.generate.Handle(ctx, GenerateCoursePathCommand{CreatorID: "creator", Subject: "Go", Difficulty: "beginner"})
	require.Error(t, genErr)
	_, err = f.enroll.Enroll(ctx, EnrollCommand{UserID: "user-1", CoursePathID: failed.CoursePathID})
	assert.True(t, shared.IsInvalidState(err))
}

// stalePaths serves the copy loaded before an archive landed.
type stalePaths struct {
	coursepath.Repository
	snapshot *coursepath.CoursePath
}

func (r stalePaths) GetByID(context.Context, string) (*coursepath.CoursePath, error) {
	c := *r.snapshot
	return &c, nil
}

func TestEnroll_ArchivedBetweenCheckAndWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.readyPath(t, "creator")
	loaded := f.path(t, p.ID)

	_, err := f.catalogue.Archive(ctx, ArchiveCoursePathCommand{CoursePathID: p.ID, CallerID: "creator"})
	require.NoError(t, err)

	h := NewEnrollmentHandler(stalePaths{Repository: f.store.CoursePaths(), snapshot: loaded}, f.store.Enrollments(), f.events, nil)
	_, err = h.Enroll(ctx, EnrollCommand{UserID: "user-1", CoursePathID: p.ID})
	assert.True(t, shared.IsInvalidState(err))
	assert.Zero(t, f.path(t, p.ID).Aggregates.EnrollmentCount)
	assert.Zero(t, f.events.count(shared.EventUserEnrolled))
}

func TestEnroll_ConcurrentUsersAreAllCounted(t *testing.T) {
	f := newFixture(t)
	p := f.readyPath(t, "creator")

	const users = 25
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every user enrolls twice, racing with themselves as well
			for j := 0; j < 2; j++ {
				_, err := f.enroll.Enroll(context.Background(), EnrollCommand{
					UserID: fmt.Sprintf("user-%d", i), CoursePathID: p.ID,
				})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, users, f.path(t, p.ID).Aggregates.EnrollmentCount)
}

func TestUnenroll_DecrementsAndKeepsProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.readyPath(t, "creator")
	f.mustEnroll(t, "user-1", p.ID)

	_, err := f.complete.Handle(ctx, MarkTopicCompleteCommand{UserID: "user-1", CoursePathID: p.ID, TopicIndex: 0})
	require.NoError(t, err)

	res, err := f.enroll.Unenroll(ctx, UnenrollCommand{UserID: "user-1", CoursePathID: p.ID})
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.Equal(t, 0, f.path(t, p.ID).Aggregates.EnrollmentCount)

	res, err = f.enroll.Unenroll(ctx, UnenrollCommand{UserID: "user-1", CoursePathID: p.ID})
	require.NoError(t, err)
	assert.False(t, res.Removed)
	assert.Equal(t, 0, f.path(t, p.ID).Aggregates.EnrollmentCount)

	rec, err := f.store.Progress().Get(ctx, "user-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, rec.CompletedIndices())
}

func TestMarkTopicComplete_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.readyPath(t, "creator")
	f.mustEnroll(t, "user-1", p.ID)
	cmd := MarkTopicCompleteCommand{UserID: "user-1", CoursePathID: p.ID, TopicIndex: 2}

	first, err := f.complete.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Equal(t, 25.0, first.Percentage)

	second, err := f.complete.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, first.Percentage, second.Percentage)
	assert.Equal(t, []int{2}, second.CompletedIndices)
	assert.Equal(t, 1, f.events.count(shared.EventTopicCompleted))
}

func TestMarkTopicComplete_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.readyPath(t, "creator")

	_, err := f.complete.Handle(ctx, MarkTopicCompleteCommand{UserID: "user-1", CoursePathID: p.ID, TopicIndex: 0})
	assert.True(t, shared.IsNotEnrolled(err))

	f.mustEnroll(t, "user-1", p.ID)
	for _, idx := range []int{-1, 4, 100} {
		_, err = f.complete.Handle(ctx, MarkTopicCompleteCommand{UserID: "user-1", CoursePathID: p.ID, TopicIndex: idx})
		assert.True(t, shared.IsValidation(err), "index %d", idx)
		assert.Equal(t, "topicIndex", shared.FieldOf(err))
	}
}

func TestMarkTopicComplete_ConcurrentTopicsAllLand(t *testing.T) {
	f := newFixture(t)
	p := f.readyPath(t, "creator")
	f.mustEnroll(t, "user-1", p.ID)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.complete.Handle(context.Background(), MarkTopicCompleteCommand{
				UserID: "user-1", CoursePathID: p.ID, TopicIndex: i,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	rec, err := f.store.Progress().Get(context.Background(), "user-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, rec.CompletedIndices())
	assert.Equal(t, 100.0, rec.Percentage)
}
