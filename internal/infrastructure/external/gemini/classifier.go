package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/skillmate/skillmate-core/internal/domain/review"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SENTIMENT CLASSIFIER
// ══════════════════════════════════════════════════════════════════════════════

const sentimentPrompt = `Classify the sentiment of the following course review.
Respond with JSON only: {"label": "positive" | "neutral" | "negative", "score": number between -1 and 1}.

Review:
%s`

// SentimentClassifier implements review.SentimentClassifier in JSON mode.
type SentimentClassifier struct {
	client *Client
}

// NewSentimentClassifier creates a classifier on a shared client.
func NewSentimentClassifier(client *Client) *SentimentClassifier {
	return &SentimentClassifier{client: client}
}

type sentimentVerdict struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classify returns the model verdict. Unknown labels are an error so the
// caller falls back to neutral.
func (c *SentimentClassifier) Classify(ctx context.Context, text string) (review.Classification, error) {
	raw, err := c.client.generate(ctx, fmt.Sprintf(sentimentPrompt, text), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return review.Classification{}, err
	}
	return parseVerdict(raw)
}

func parseVerdict(raw string) (review.Classification, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "```"), "```")

	var v sentimentVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
		return review.Classification{}, fmt.Errorf("gemini: decode sentiment: %w", err)
	}
	label := shared.Sentiment(strings.ToLower(strings.TrimSpace(v.Label)))
	if !label.IsValid() {
		return review.Classification{}, fmt.Errorf("gemini: unknown sentiment label %q", v.Label)
	}
	score := min(max(v.Score, -1), 1)
	return review.Classification{Label: label, Score: score}, nil
}
