package shared

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRating_Boundaries(t *testing.T) {
	for _, v := range []int{1, 2, 3, 4, 5} {
		r, err := NewRating(v)
		require.NoError(t, err)
		assert.Equal(t, v, r.Int())
	}

	for _, v := range []int{0, 6, -1, 100} {
		_, err := NewRating(v)
		require.Error(t, err)
		assert.True(t, IsValidation(err))
		assert.Equal(t, "rating", FieldOf(err))
	}
}

func TestParseDifficulty(t *testing.T) {
	tests := []struct {
		in      string
		want    Difficulty
		wantErr bool
	}{
		{"BEGINNER", DifficultyBeginner, false},
		{"beginner", DifficultyBeginner, false},
		{" Intermediate ", DifficultyIntermediate, false},
		{"advanced", DifficultyAdvanced, false},
		{"expert", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDifficulty(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, "difficulty", FieldOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDifficulty_MaxTopics(t *testing.T) {
	assert.Equal(t, 15, DifficultyBeginner.MaxTopics())
	assert.Equal(t, 25, DifficultyIntermediate.MaxTopics())
	assert.Equal(t, 50, DifficultyAdvanced.MaxTopics())
}

func TestParseSentiment_DefaultsToNeutral(t *testing.T) {
	assert.Equal(t, SentimentPositive, ParseSentiment("Positive"))
	assert.Equal(t, SentimentNegative, ParseSentiment(" negative"))
	assert.Equal(t, SentimentNeutral, ParseSentiment("mixed"))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	r, err = ParseRole("ROLE_INSTRUCTOR")
	require.NoError(t, err)
	assert.Equal(t, RoleInstructor, r)

	_, err = ParseRole("root")
	assert.True(t, IsValidation(err))
}

func TestDomainError_Matching(t *testing.T) {
	err := WrapError("review", "Submit", ErrConcurrentModification, "version mismatch", errors.New("0 rows"))
	assert.True(t, IsConflict(err))
	assert.False(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "review.Submit")

	v := NewValidationError("coursepath", "Generate", "subject", "must not be empty")
	assert.Equal(t, "coursepath.Generate: subject: must not be empty", v.Error())
	assert.True(t, errors.Is(v, ErrValidation))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 33.3, RoundTo(100.0/3.0, 1))
	assert.Equal(t, 66.7, RoundTo(200.0/3.0, 1))
	assert.Equal(t, 4.5, RoundTo(4.5, 2))
	assert.Equal(t, 4.33, RoundTo(13.0/3.0, 2))
}
