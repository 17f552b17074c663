package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MemoryDriverWithDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"STORAGE_DRIVER=memory\nGENERATION_PROVIDER=analyzer\nANALYZER_URL=http://analyzer:8000\nGENERATION_TIMEOUT=20s\n",
	), 0o600))

	t.Setenv("HTTP_PORT", "9090")
	// godotenv never overrides variables that are already set
	t.Setenv("GENERATION_TIMEOUT", "45s")
	for _, k := range []string{"STORAGE_DRIVER", "GENERATION_PROVIDER", "ANALYZER_URL"} {
		k := k
		prev, had := os.LookupEnv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, prev)
			} else {
				os.Unsetenv(k)
			}
		})
	}

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, ProviderAnalyzer, cfg.Generation.Provider)
	assert.Equal(t, "http://analyzer:8000", cfg.Generation.AnalyzerURL)
	assert.Equal(t, 45*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 90*time.Second, cfg.StaleDraftAfter())
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTPAddr())
	assert.Equal(t, ProviderLexicon, cfg.Sentiment.Provider)
	assert.Equal(t, 3, cfg.Consistency.ConflictRetries)
}

func TestLoad_MissingDotEnvIsFine(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("GENERATION_PROVIDER", "analyzer")
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestValidate_Errors(t *testing.T) {
	cfg := &Config{
		App:         AppConfig{Environment: EnvProduction},
		Database:    DatabaseConfig{Driver: DriverMemory},
		Generation:  GenerationConfig{Provider: ProviderGemini, Timeout: time.Second},
		Sentiment:   SentimentConfig{Provider: "vader", Timeout: time.Second},
		Consistency: ConsistencyConfig{ConflictRetries: 0},
		HTTP:        HTTPConfig{Port: 8080},
		Scheduler:   SchedulerConfig{ReconcileBatchSize: 10},
	}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "STORAGE_DRIVER=memory is not allowed in production")
	assert.Contains(t, msg, "GEMINI_API_KEY is required")
	assert.Contains(t, msg, "SENTIMENT_PROVIDER must be lexicon or gemini")
	assert.Contains(t, msg, "CONFLICT_RETRIES must be at least 1")
}

func TestFeatureFlags(t *testing.T) {
	t.Setenv("FEATURE_REVIEW_HELPFUL_VOTES", "false")
	t.Setenv("FEATURE_COURSEPATH_SEARCH", "0")
	ff := LoadFeatureFlags()

	assert.True(t, ff.Enabled(FeatureCoursePathCache))
	assert.False(t, ff.Enabled(FeatureHelpfulVotes))
	assert.False(t, ff.Enabled(FeatureCoursePathSearch))
	assert.True(t, ff.IsEnabled(FeatureHelpfulVotes, &FeatureContext{UserID: "u1", IsAdmin: true}))

	ff.SetUserOverride("u2", FeatureHelpfulVotes, true)
	assert.True(t, ff.IsEnabled(FeatureHelpfulVotes, &FeatureContext{UserID: "u2"}))

	require.NoError(t, ff.SetRolloutPercent(FeatureReconcileOnDrift, 50))
	first := ff.IsEnabled(FeatureReconcileOnDrift, &FeatureContext{UserID: "stable-user"})
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureReconcileOnDrift, &FeatureContext{UserID: "stable-user"}))
	}

	assert.ErrorIs(t, ff.SetRolloutPercent("nope", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureHelpfulVotes, 101), ErrInvalidRolloutPercent)

	var nilFlags *FeatureFlags
	assert.False(t, nilFlags.Enabled(FeatureCoursePathCache))
}
