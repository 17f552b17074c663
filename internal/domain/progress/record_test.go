package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

func TestRecord_MarkCompleteIsIdempotent(t *testing.T) {
	r := NewRecord("u1", "cp")
	now := time.Now()

	changed, err := r.MarkComplete(0, 3, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 33.3, r.Percentage)

	changed, err = r.MarkComplete(0, 3, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 33.3, r.Percentage)
	assert.Equal(t, now, r.LastActivityAt)

	_, err = r.MarkComplete(2, 3, now)
	require.NoError(t, err)
	assert.Equal(t, 66.7, r.Percentage)
	assert.Equal(t, []int{0, 2}, r.CompletedIndices())
}

func TestRecord_MarkCompleteOutOfRange(t *testing.T) {
	r := NewRecord("u1", "cp")
	for _, idx := range []int{-1, 3, 99} {
		_, err := r.MarkComplete(idx, 3, time.Now())
		require.Error(t, err)
		assert.Equal(t, "topicIndex", shared.FieldOf(err))
	}
	assert.Empty(t, r.Completed)
}

func TestRecord_CloneIsDeep(t *testing.T) {
	r := NewRecord("u1", "cp")
	_, _ = r.MarkComplete(1, 2, time.Now())
	c := r.Clone()
	_, _ = c.MarkComplete(0, 2, time.Now())

	assert.Len(t, r.Completed, 1)
	assert.Equal(t, 100.0, c.Percentage)
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, Percentage(0, 0))
	assert.Equal(t, 100.0, Percentage(4, 4))
	assert.Equal(t, 14.3, Percentage(1, 7))
}
