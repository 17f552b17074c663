package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/pkg/retry"
)

type fakeModels struct {
	text   string
	err    error
	prompt string
	config *genai.GenerateContentConfig

	// failFirst is returned, in order, before err/text are used.
	failFirst []error
	calls     int
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	f.config = config
	if len(f.failFirst) > 0 {
		err := f.failFirst[0]
		f.failFirst = f.failFirst[1:]
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func TestParseNumberedList(t *testing.T) {
	text := `Here are your topics:
1. Variables and types
2.  **Control flow**
- not a topic
10. Goroutines

3.`
	assert.Equal(t, []string{"Variables and types", "Control flow", "Goroutines"}, ParseNumberedList(text))
	assert.Empty(t, ParseNumberedList("no numbers here"))
}

func TestTopicGenerator_GenerateTopics(t *testing.T) {
	models := &fakeModels{text: "1. Basics\n2. Channels\n"}
	g := NewTopicGenerator(&Client{models: models, model: DefaultModel})

	topics, err := g.GenerateTopics(context.Background(), "Go", shared.DifficultyBeginner)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "Basics", topics[0].Title)
	assert.Equal(t, "Channels", topics[1].Title)
	assert.Contains(t, models.prompt, "beginner level")
	assert.Contains(t, models.prompt, "under 15")
}

func fastGenerator(models *fakeModels) *TopicGenerator {
	g := NewTopicGenerator(&Client{models: models, model: DefaultModel})
	g.retrier = retry.New(retry.WithMaxAttempts(2), retry.WithInitialDelay(time.Millisecond))
	return g
}

func TestTopicGenerator_EmptyAndError(t *testing.T) {
	empty := &fakeModels{text: ""}
	g := fastGenerator(empty)
	_, err := g.GenerateTopics(context.Background(), "Go", shared.DifficultyAdvanced)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, 2, empty.calls)

	boom := errors.New("quota exceeded")
	failing := &fakeModels{err: boom}
	g = fastGenerator(failing)
	_, err = g.GenerateTopics(context.Background(), "Go", shared.DifficultyAdvanced)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, failing.calls, "plain errors are not retried")

	_, err = g.GenerateTopics(context.Background(), "Go", "EXPERT")
	assert.True(t, shared.IsValidation(err))
}

func TestTopicGenerator_RetriesTransientAPIErrors(t *testing.T) {
	models := &fakeModels{
		text:      "1. Basics\n",
		failFirst: []error{genai.APIError{Code: 503, Message: "overloaded"}},
	}
	topics, err := fastGenerator(models).GenerateTopics(context.Background(), "Go", shared.DifficultyBeginner)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, 2, models.calls)

	badRequest := &fakeModels{failFirst: []error{genai.APIError{Code: 400, Message: "bad prompt"}}, text: "1. Basics\n"}
	_, err = fastGenerator(badRequest).GenerateTopics(context.Background(), "Go", shared.DifficultyBeginner)
	assert.Error(t, err)
	assert.Equal(t, 1, badRequest.calls)

	assert.True(t, isTransient(genai.APIError{Code: 429}))
	assert.True(t, isTransient(&genai.APIError{Code: 500}))
	assert.False(t, isTransient(genai.APIError{Code: 404}))
	assert.False(t, isTransient(nil))
}

func TestSentimentClassifier_Classify(t *testing.T) {
	models := &fakeModels{text: "```json\n{\"label\": \"Positive\", \"score\": 1.7}\n```"}
	c := NewSentimentClassifier(&Client{models: models, model: DefaultModel})

	got, err := c.Classify(context.Background(), "loved it")
	require.NoError(t, err)
	assert.Equal(t, shared.SentimentPositive, got.Label)
	assert.Equal(t, 1.0, got.Score)
	assert.Equal(t, "application/json", models.config.ResponseMIMEType)

	models.text = `{"label": "ecstatic", "score": 0.9}`
	_, err = c.Classify(context.Background(), "loved it")
	assert.Error(t, err)
}
