package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := DefaultClientConfig(srv.URL)
	cfg.RetryCount = 0
	cfg.Timeout = 5 * time.Second
	return NewClient(cfg)
}

func TestClient_GenerateTopics_NestedPayload(t *testing.T) {
	var got generateRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, generatePath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"message": "Course generated successfully",
			"data": {
				"success": true,
				"data": {
					"coursePath": {"id": "course-1", "title": "Go Learning Path"},
					"topics": [
						{"name": "Goroutines", "description": "Learn about goroutines",
						 "videoInfo": {"youtubeUrl": "https://youtu.be/x", "title": "Intro", "startTime": 30, "endTime": 300},
						 "prerequisites": [], "tags": ["go"]},
						{"name": "Channels", "videoInfo": {"youtubeUrl": "", "startTime": 0, "endTime": 0}}
					]
				}
			}
		}`))
	})

	topics, err := c.GenerateTopics(context.Background(), "Go", shared.DifficultyBeginner)
	require.NoError(t, err)
	assert.Equal(t, generateRequest{Subject: "Go", Difficulty: "beginner"}, got)

	require.Len(t, topics, 2)
	assert.Equal(t, "Goroutines", topics[0].Title)
	require.Len(t, topics[0].Resources, 1)
	assert.Equal(t, "https://youtu.be/x", topics[0].Resources[0].URL)
	assert.Equal(t, 30, *topics[0].Resources[0].StartSeconds)
	assert.Equal(t, 300, *topics[0].Resources[0].EndSeconds)
	assert.Empty(t, topics[1].Resources)
}

func TestClient_GenerateTopics_Failure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": false, "error": "no videos found"}`))
	})

	_, err := c.GenerateTopics(context.Background(), "Go", shared.DifficultyBeginner)
	assert.ErrorIs(t, err, ErrAnalyzerFailed)
	assert.Contains(t, err.Error(), "no videos found")
}

func TestClient_GenerateTopics_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.GenerateTopics(context.Background(), "Go", shared.DifficultyBeginner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_GenerateTopics_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GenerateTopics(ctx, "Go", shared.DifficultyBeginner)
	assert.Error(t, err)
}
