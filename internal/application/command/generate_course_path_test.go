package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

func TestGenerate_ReadyWithTopics(t *testing.T) {
	f := newFixture(t)

	p := f.readyPath(t, "user-1")

	stored := f.path(t, p.ID)
	assert.Equal(t, coursepath.StatusReady, stored.Status)
	assert.Equal(t, "Python Programming", stored.Subject)
	assert.Equal(t, shared.DifficultyBeginner, stored.Difficulty)
	require.Len(t, stored.Topics, 4)
	for i, topic := range stored.Topics {
		assert.Equal(t, i, topic.Index)
	}
	assert.Equal(t, 1, f.events.count(shared.EventCoursePathCreated))
	assert.Equal(t, 1, f.events.count(shared.EventCoursePathReady))
}

func TestGenerate_TruncatesToDifficultyLimit(t *testing.T) {
	f := newFixture(t)
	f.gen.set(sampleTopics(40), nil)

	p := f.readyPath(t, "user-1")
	assert.Len(t, p.Topics, shared.DifficultyBeginner.MaxTopics())
}

func TestGenerate_FailureLeavesFailedPath(t *testing.T) {
	tests := []struct {
		name   string
		topics []coursepath.GeneratedTopic
		err    error
		delay  time.Duration
		is     error
	}{
		{name: "provider error", err: errors.New("quota exceeded")},
		{name: "empty list", topics: nil, is: shared.ErrEmptyGeneration},
		{name: "blank titles only", topics: []coursepath.GeneratedTopic{{Title: "  "}}, is: shared.ErrEmptyGeneration},
		{name: "timeout", topics: sampleTopics(2), delay: 500 * time.Millisecond, is: shared.ErrGeneratorTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.gen.set(tt.topics, tt.err)
			f.gen.delay = tt.delay
			f.generate.timeout = 20 * time.Millisecond

			res, err := f.generate.Handle(context.Background(), GenerateCoursePathCommand{
				CreatorID: "user-1", Subject: "Rust", Difficulty: "ADVANCED",
			})
			require.Error(t, err)
			assert.True(t, shared.IsGeneration(err), "got %v", err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}

			require.NotNil(t, res)
			stored := f.path(t, res.CoursePathID)
			assert.Equal(t, coursepath.StatusFailed, stored.Status)
			assert.Empty(t, stored.Topics)
			assert.NotEmpty(t, stored.FailureReason)
			assert.Equal(t, 1, f.events.count(shared.EventCoursePathFailed))
		})
	}
}

func TestGenerate_ValidationStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.generate.Handle(ctx, GenerateCoursePathCommand{CreatorID: "user-1", Subject: "   ", Difficulty: "beginner"})
	assert.True(t, shared.IsValidation(err))

	_, err = f.generate.Handle(ctx, GenerateCoursePathCommand{CreatorID: "user-1", Subject: "Go", Difficulty: "expert"})
	assert.True(t, shared.IsValidation(err))

	_, err = f.generate.Handle(ctx, GenerateCoursePathCommand{Subject: "Go", Difficulty: "beginner"})
	assert.True(t, shared.IsValidation(err))

	paths, err := f.store.CoursePaths().ListByCreator(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.Zero(t, f.gen.callCount())
}

func TestGenerate_IdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cmd := GenerateCoursePathCommand{CreatorID: "user-1", Subject: "Go", Difficulty: "beginner", IdempotencyKey: "req-42"}

	first, err := f.generate.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, first.Reused)

	second, err := f.generate.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.CoursePathID, second.CoursePathID)
	assert.Equal(t, 1, f.gen.callCount())

	// keys are scoped per creator
	cmd.CreatorID = "user-2"
	other, err := f.generate.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.NotEqual(t, first.CoursePathID, other.CoursePathID)
}

func TestGenerate_ConcurrentDuplicatesShareOnePath(t *testing.T) {
	f := newFixture(t)
	f.gen.delay = 30 * time.Millisecond
	cmd := GenerateCoursePathCommand{CreatorID: "user-1", Subject: "Go", Difficulty: "beginner", IdempotencyKey: "dup"}

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.generate.Handle(context.Background(), cmd)
			if assert.NoError(t, err) {
				ids[i] = res.CoursePathID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, f.gen.callCount())
}

func TestGenerate_FirstCallerLeavingDoesNotFailDuplicates(t *testing.T) {
	f := newFixture(t)
	f.gen.delay = 100 * time.Millisecond
	cmd := GenerateCoursePathCommand{CreatorID: "user-1", Subject: "Go", Difficulty: "beginner", IdempotencyKey: "shared"}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.generate.Handle(firstCtx, cmd)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return f.gen.callCount() == 1 }, time.Second, time.Millisecond)

	type result struct {
		res *GenerateCoursePathResult
		err error
	}
	second := make(chan result, 1)
	go func() {
		res, err := f.generate.Handle(context.Background(), cmd)
		second <- result{res, err}
	}()
	time.Sleep(10 * time.Millisecond)
	cancelFirst()

	assert.ErrorIs(t, <-firstErr, context.Canceled)

	r := <-second
	require.NoError(t, r.err)
	assert.Equal(t, coursepath.StatusReady, r.res.Status)
	assert.Equal(t, coursepath.StatusReady, f.path(t, r.res.CoursePathID).Status)
	assert.Equal(t, 1, f.gen.callCount())
}

func TestGenerate_KeyOnFailedPathRegeneratesInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cmd := GenerateCoursePathCommand{CreatorID: "user-1", Subject: "Go", Difficulty: "beginner", IdempotencyKey: "again"}

	f.gen.set(nil, errors.New("down"))
	failed, err := f.generate.Handle(ctx, cmd)
	require.Error(t, err)

	f.gen.set(sampleTopics(2), nil)
	ready, err := f.generate.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, failed.CoursePathID, ready.CoursePathID)
	assert.Equal(t, coursepath.StatusReady, ready.Status)
	assert.Equal(t, 2, ready.TopicCount)
}

func TestRetryGeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gen.set(nil, errors.New("down"))
	failed, err := f.generate.Handle(ctx, GenerateCoursePathCommand{CreatorID: "owner", Subject: "Go", Difficulty: "beginner"})
	require.Error(t, err)

	_, err = f.generate.Retry(ctx, RetryGenerationCommand{CoursePathID: failed.CoursePathID, CallerID: "stranger"})
	assert.True(t, shared.IsForbidden(err))

	f.gen.set(sampleTopics(3), nil)
	res, err := f.generate.Retry(ctx, RetryGenerationCommand{CoursePathID: failed.CoursePathID, CallerID: "owner"})
	require.NoError(t, err)
	assert.Equal(t, coursepath.StatusReady, res.Status)
	assert.Empty(t, f.path(t, failed.CoursePathID).FailureReason)

	_, err = f.generate.Retry(ctx, RetryGenerationCommand{CoursePathID: failed.CoursePathID, CallerID: "owner"})
	assert.True(t, shared.IsInvalidState(err), "READY paths cannot be retried")

	_, err = f.generate.Retry(ctx, RetryGenerationCommand{CoursePathID: "missing", CallerID: "owner"})
	assert.True(t, shared.IsNotFound(err))
}
