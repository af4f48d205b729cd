package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "WORKER_COUNT", "SYNC_INTERVAL", "START_DATE", "ALLOWED_ORIGINS", "LLM_BACKOFF"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 15*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 1.8, cfg.LLMBackoff)
	assert.True(t, cfg.IsDevelopment())
	assert.Nil(t, cfg.AllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("SYNC_INTERVAL", "90s")
	t.Setenv("START_DATE", "2024-01-15")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("CLASSIFIER_DISABLED", "true")
	t.Setenv("CASE_LOCK_TTL_SEC", "30")
	t.Setenv("LLM_RATE_PER_SEC", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, 90*time.Second, cfg.SyncInterval)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.ClassifierDisabled)
	assert.Equal(t, 30*time.Second, cfg.CaseLockTTL)
	assert.Zero(t, cfg.LLMRatePerSec)
}

func TestLoadRejectsBadStartDate(t *testing.T) {
	t.Setenv("START_DATE", "last tuesday")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment:      "production",
			DatabaseURL:      "postgres://localhost/complaints",
			OpenAIAPIKey:     "sk-test",
			GraphAccessToken: "token",
			JWTSecret:        "secret",
			LLMBackoff:       1.8,
		}
	}

	assert.NoError(t, base().Validate("all"))

	cfg := base()
	cfg.DatabaseURL = ""
	assert.ErrorContains(t, cfg.Validate("api"), "DATABASE_URL")

	cfg = base()
	cfg.OpenAIAPIKey = ""
	assert.ErrorContains(t, cfg.Validate("worker"), "OPENAI_API_KEY")
	assert.NoError(t, cfg.Validate("api"))
	cfg.ClassifierDisabled = true
	assert.NoError(t, cfg.Validate("worker"))

	cfg = base()
	cfg.GraphAccessToken = ""
	assert.ErrorContains(t, cfg.Validate("once"), "GRAPH_ACCESS_TOKEN")
	cfg.GraphTenantID, cfg.GraphClientID, cfg.GraphClientSecret = "t", "c", "s"
	assert.NoError(t, cfg.Validate("once"))

	cfg = base()
	cfg.JWTSecret = ""
	assert.ErrorContains(t, cfg.Validate("api"), "JWT_SECRET")
	cfg.Environment = "development"
	assert.NoError(t, cfg.Validate("api"))

	cfg = base()
	cfg.LLMBackoff = 0.5
	assert.ErrorContains(t, cfg.Validate("worker"), "LLM_BACKOFF")
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := &Config{OriginTimezone: "Not/AZone"}
	assert.Equal(t, time.UTC, cfg.Location())
}
