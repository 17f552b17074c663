package coursepath

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

func newDraft(t *testing.T) *CoursePath {
	t.Helper()
	p, err := NewCoursePath(NewCoursePathParams{
		ID:         "cp-1",
		Subject:    "  Go concurrency ",
		Difficulty: shared.DifficultyBeginner,
		CreatorID:  "u1",
	})
	require.NoError(t, err)
	return p
}

func TestNewCoursePath_Validation(t *testing.T) {
	p := newDraft(t)
	assert.Equal(t, "Go concurrency", p.Subject)
	assert.Equal(t, StatusDraft, p.Status)

	_, err := NewCoursePath(NewCoursePathParams{ID: "x", Subject: "   ", Difficulty: shared.DifficultyBeginner, CreatorID: "u1"})
	assert.Equal(t, "subject", shared.FieldOf(err))

	_, err = NewCoursePath(NewCoursePathParams{ID: "x", Subject: strings.Repeat("a", 201), Difficulty: shared.DifficultyBeginner, CreatorID: "u1"})
	assert.Equal(t, "subject", shared.FieldOf(err))

	_, err = NewCoursePath(NewCoursePathParams{ID: "x", Subject: "Go", Difficulty: "EXPERT", CreatorID: "u1"})
	assert.Equal(t, "difficulty", shared.FieldOf(err))
}

func TestCoursePath_Lifecycle(t *testing.T) {
	now := time.Now()
	p := newDraft(t)

	require.ErrorIs(t, p.MarkReady(nil, now), shared.ErrEmptyGeneration)

	require.NoError(t, p.MarkFailed("timeout", now))
	assert.Equal(t, StatusFailed, p.Status)
	assert.ErrorIs(t, p.MarkReady([]Topic{{Index: 0, Title: "a"}}, now), shared.ErrInvalidPathStatus)

	require.NoError(t, p.ResetForRetry(now))
	require.NoError(t, p.MarkReady([]Topic{{Index: 0, Title: "a"}, {Index: 1, Title: "b"}}, now))
	assert.Equal(t, StatusReady, p.Status)
	assert.Empty(t, p.FailureReason)

	// READY is terminal for generation
	assert.ErrorIs(t, p.ResetForRetry(now), shared.ErrInvalidPathStatus)
	assert.ErrorIs(t, p.MarkFailed("x", now), shared.ErrInvalidPathStatus)
	assert.NoError(t, p.EnsureAcceptsParticipation())

	p.Archive(now)
	assert.True(t, p.IsArchived())
	assert.ErrorIs(t, p.EnsureAcceptsParticipation(), shared.ErrCoursePathArchived)
}

func TestCoursePath_MarkReadyRejectsGaps(t *testing.T) {
	p := newDraft(t)
	err := p.MarkReady([]Topic{{Index: 0, Title: "a"}, {Index: 2, Title: "b"}}, time.Now())
	assert.True(t, shared.IsValidation(err))
}

func TestBuildTopics(t *testing.T) {
	topics := BuildTopics([]GeneratedTopic{
		{Title: " Variables "},
		{Title: "   "},
		{Title: "Loops", Tags: []string{"basics"}},
		{Title: "Functions"},
	}, 2)

	require.Len(t, topics, 2)
	assert.Equal(t, Topic{Index: 0, Title: "Variables"}, topics[0])
	assert.Equal(t, 1, topics[1].Index)
	assert.Equal(t, "Loops", topics[1].Title)
	assert.Equal(t, []string{"basics"}, topics[1].Tags)
}

func TestTruncationKeepsValidUTF8(t *testing.T) {
	// 260 cyrillic letters = 520 bytes, past the byte length of the limit
	reason := strings.Repeat("ж", 260) + strings.Repeat("ошибка ", 50)
	p := newDraft(t)
	require.NoError(t, p.MarkFailed(reason, time.Now()))
	assert.True(t, utf8.ValidString(p.FailureReason))
	assert.Equal(t, MaxFailureReasonLength, utf8.RuneCountInString(p.FailureReason))

	short := strings.Repeat("я", 260)
	p = newDraft(t)
	require.NoError(t, p.MarkFailed(short, time.Now()))
	assert.Equal(t, short, p.FailureReason)

	topics := BuildTopics([]GeneratedTopic{{Title: strings.Repeat("日本", 200)}}, 0)
	require.Len(t, topics, 1)
	assert.True(t, utf8.ValidString(topics[0].Title))
	assert.Equal(t, MaxTopicTitleLength, utf8.RuneCountInString(topics[0].Title))
}

func TestCoursePath_CanBeManagedBy(t *testing.T) {
	p := newDraft(t)
	assert.True(t, p.CanBeManagedBy("u1", nil))
	assert.False(t, p.CanBeManagedBy("u2", []shared.Role{shared.RoleUser}))
	assert.True(t, p.CanBeManagedBy("u2", []shared.Role{shared.RoleAdmin}))
}
