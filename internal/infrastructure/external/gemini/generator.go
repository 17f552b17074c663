package gemini

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"google.golang.org/genai"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// TOPIC GENERATOR
// ══════════════════════════════════════════════════════════════════════════════

// topicLimit caps the list per difficulty; the model is asked to stay under it.
var topicLimit = map[shared.Difficulty]int{
	shared.DifficultyBeginner:     15,
	shared.DifficultyIntermediate: 25,
	shared.DifficultyAdvanced:     50,
}

const topicPrompt = `You are an expert curriculum designer. Generate a comprehensive list of topics for learning %[1]s at the %[2]s level.

Instructions:
- Provide ONLY a numbered list of topics
- Each topic should be specific and actionable
- Topics should be ordered from foundational to more complex within the %[2]s level
- Do not include any explanations, introductions, or additional text
- Each line should contain only: "1. Topic Name" format
- Keep number of topics under %[3]d

Subject: %[1]s
Difficulty Level: %[2]s

Topics:`

// TopicGenerator implements coursepath.TopicGenerator.
type TopicGenerator struct {
	client  *Client
	retrier *retry.Retrier
}

// NewTopicGenerator creates a generator on a shared client. Rate limits,
// server errors and empty answers get one more attempt.
func NewTopicGenerator(client *Client) *TopicGenerator {
	return &TopicGenerator{client: client, retrier: retry.CapabilityRetrier()}
}

// GenerateTopics asks the model for a numbered list and parses it in order.
func (g *TopicGenerator) GenerateTopics(ctx context.Context, subject string, difficulty shared.Difficulty) ([]coursepath.GeneratedTopic, error) {
	limit, ok := topicLimit[difficulty]
	if !ok {
		return nil, shared.NewValidationError("generation", "GenerateTopics", "difficulty", "unsupported difficulty")
	}
	level := strings.ToLower(string(difficulty))

	prompt := fmt.Sprintf(topicPrompt, subject, level, limit)
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.4)}
	text, err := retry.DoWithData(ctx, g.retrier, func(ctx context.Context) (string, error) {
		text, err := g.client.generate(ctx, prompt, config)
		if isTransient(err) {
			return "", retry.Retryable(err)
		}
		return text, err
	})
	if err != nil {
		return nil, err
	}

	titles := ParseNumberedList(text)
	if len(titles) > limit {
		titles = titles[:limit]
	}
	out := make([]coursepath.GeneratedTopic, 0, len(titles))
	for _, t := range titles {
		out = append(out, coursepath.GeneratedTopic{Title: t})
	}
	return out, nil
}

// ParseNumberedList keeps lines that start with a digit and strips the
// "N." prefix. Other lines are ignored.
func ParseNumberedList(text string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !unicode.IsDigit(rune(line[0])) {
			continue
		}
		if _, rest, found := strings.Cut(line, "."); found {
			line = rest
		}
		line = strings.Trim(strings.TrimSpace(line), "*")
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
