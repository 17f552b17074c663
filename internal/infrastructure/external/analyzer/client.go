// Package analyzer implements the topic generation capability against the
// ai-analyzer HTTP service. The analyzer returns topics with a selected video
// segment per topic.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/skillmate/skillmate-core/internal/domain/coursepath"
	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

const generatePath = "/api/v1/generate-course-path"

// ErrAnalyzerFailed is returned when the analyzer reports success=false.
var ErrAnalyzerFailed = errors.New("analyzer: generation failed")

// ClientConfig contains configuration for the analyzer client.
type ClientConfig struct {
	// BaseURL is the analyzer base URL, e.g. http://localhost:8000
	BaseURL string

	// Timeout is the HTTP request timeout. Generation is slow; the caller's
	// context usually expires first.
	Timeout time.Duration

	// RetryCount retries transport errors and 5xx responses.
	RetryCount int
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:    baseURL,
		Timeout:    2 * time.Minute,
		RetryCount: 1,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements coursepath.TopicGenerator.
type Client struct {
	http *resty.Client
}

// NewClient creates an analyzer client.
func NewClient(cfg ClientConfig) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return r.StatusCode() >= 500
		})
	return &Client{http: c}
}

// GenerateTopics posts the subject and maps the analyzer topics in order.
func (c *Client) GenerateTopics(ctx context.Context, subject string, difficulty shared.Difficulty) ([]coursepath.GeneratedTopic, error) {
	var env envelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(generateRequest{Subject: subject, Difficulty: strings.ToLower(string(difficulty))}).
		SetResult(&env).
		Post(generatePath)
	if err != nil {
		return nil, fmt.Errorf("analyzer: request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("analyzer: unexpected status %d", resp.StatusCode())
	}
	if !env.Success {
		reason := env.Error
		if reason == "" {
			reason = env.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrAnalyzerFailed, reason)
	}

	topics, err := env.topics()
	if err != nil {
		return nil, err
	}
	out := make([]coursepath.GeneratedTopic, 0, len(topics))
	for _, t := range topics {
		out = append(out, t.toGenerated())
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DTO
// ══════════════════════════════════════════════════════════════════════════════

type generateRequest struct {
	Subject    string `json:"subject"`
	Difficulty string `json:"difficulty"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// payload may be nested once more: the analyzer wraps its own
// {success, data} result inside the response envelope.
type payload struct {
	Topics []topicDTO       `json:"topics"`
	Data   *json.RawMessage `json:"data"`
}

type topicDTO struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Prerequisites []string `json:"prerequisites"`
	Tags          []string `json:"tags"`
	VideoInfo     *struct {
		YoutubeURL string `json:"youtubeUrl"`
		Title      string `json:"title"`
		StartTime  int    `json:"startTime"`
		EndTime    int    `json:"endTime"`
	} `json:"videoInfo"`
}

func (e envelope) topics() ([]topicDTO, error) {
	raw := e.Data
	for depth := 0; depth < 3 && len(raw) > 0; depth++ {
		var p payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("analyzer: decode payload: %w", err)
		}
		if len(p.Topics) > 0 || p.Data == nil {
			return p.Topics, nil
		}
		raw = *p.Data
	}
	return nil, nil
}

func (t topicDTO) toGenerated() coursepath.GeneratedTopic {
	g := coursepath.GeneratedTopic{
		Title:         t.Name,
		Description:   t.Description,
		Prerequisites: t.Prerequisites,
		Tags:          t.Tags,
	}
	if v := t.VideoInfo; v != nil && v.YoutubeURL != "" {
		r := coursepath.Resource{Title: v.Title, URL: v.YoutubeURL}
		if v.EndTime > v.StartTime {
			start, end := v.StartTime, v.EndTime
			r.StartSeconds, r.EndSeconds = &start, &end
		}
		g.Resources = []coursepath.Resource{r}
	}
	return g
}
