package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Storage
	DatabaseURL string
	RedisURL    string
	MongoDBURL  string
	MongoDBName string

	// API
	JWTSecret      string // HS256 bearer tokens
	AllowedOrigins []string
	APIRatePerSec  float64
	APIRateBurst   int

	// Classification
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	LLMModel           string
	LLMMaxTokens       int
	LLMTimeoutSec      int
	LLMMaxRetries      int
	LLMBackoff         float64
	LLMRatePerSec      float64
	LLMCacheTTLMin     int
	LLMBreakerEnabled  bool
	ClassifierDisabled bool

	// Mailbox (Microsoft Graph)
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphAccessToken  string
	GraphMailbox      string
	GraphPageSize     int

	// Pipeline
	WorkerID       string
	WorkerCount    int
	StartDate      time.Time
	SyncInterval   time.Duration
	OriginTimezone string
	PatternFile    string
	PartMasterFile string
	CaseLockTTL    time.Duration
}

func Load() (*Config, error) {
	startDate, err := getEnvTime("START_DATE", time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		return nil, fmt.Errorf("invalid START_DATE: %w", err)
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Storage
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "complaints"),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", nil),
		APIRatePerSec:  getEnvFloat("API_RATE_PER_SEC", 20),
		APIRateBurst:   getEnvInt("API_RATE_BURST", 40),

		// Classification
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		LLMModel:           getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:       getEnvInt("LLM_MAX_TOKENS", 512),
		LLMTimeoutSec:      getEnvInt("LLM_TIMEOUT_SEC", 30),
		LLMMaxRetries:      getEnvInt("LLM_MAX_RETRIES", 3),
		LLMBackoff:         getEnvFloat("LLM_BACKOFF", 1.8),
		LLMRatePerSec:      getEnvFloat("LLM_RATE_PER_SEC", 0),
		LLMCacheTTLMin:     getEnvInt("LLM_CACHE_TTL_MIN", 24*60),
		LLMBreakerEnabled:  getEnvBool("LLM_BREAKER_ENABLED", true),
		ClassifierDisabled: getEnvBool("CLASSIFIER_DISABLED", false),

		// Mailbox
		GraphTenantID:     getEnv("GRAPH_TENANT_ID", ""),
		GraphClientID:     getEnv("GRAPH_CLIENT_ID", ""),
		GraphClientSecret: getEnv("GRAPH_CLIENT_SECRET", ""),
		GraphAccessToken:  getEnv("GRAPH_ACCESS_TOKEN", ""),
		GraphMailbox:      getEnv("GRAPH_MAILBOX", "me"),
		GraphPageSize:     getEnvInt("GRAPH_PAGE_SIZE", 50),

		// Pipeline
		WorkerID:       getEnv("WORKER_ID", generateWorkerID()),
		WorkerCount:    getEnvInt("WORKER_COUNT", 4),
		StartDate:      startDate,
		SyncInterval:   getEnvDuration("SYNC_INTERVAL", 15*time.Minute),
		OriginTimezone: getEnv("ORIGIN_TIMEZONE", "America/New_York"),
		PatternFile:    getEnv("PATTERN_FILE", ""),
		PartMasterFile: getEnv("PART_MASTER_FILE", ""),
		CaseLockTTL:    time.Duration(getEnvInt("CASE_LOCK_TTL_SEC", 120)) * time.Second,
	}, nil
}

// Validate reports settings required by the given run mode.
func (c *Config) Validate(mode string) error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if mode == "worker" || mode == "all" || mode == "once" {
		if c.OpenAIAPIKey == "" && !c.ClassifierDisabled {
			missing = append(missing, "OPENAI_API_KEY")
		}
		if !c.MailboxConfigured() {
			missing = append(missing, "GRAPH_ACCESS_TOKEN or GRAPH_TENANT_ID/GRAPH_CLIENT_ID/GRAPH_CLIENT_SECRET")
		}
	}
	if (mode == "api" || mode == "all") && c.JWTSecret == "" && c.IsProduction() {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if c.LLMBackoff < 1 {
		return fmt.Errorf("LLM_BACKOFF must be >= 1, got %v", c.LLMBackoff)
	}
	return nil
}

// MailboxConfigured reports whether Graph credentials are present.
func (c *Config) MailboxConfigured() bool {
	return c.GraphAccessToken != "" || (c.GraphClientID != "" && c.GraphClientSecret != "" && c.GraphTenantID != "")
}

// LLMTimeout returns the per-attempt classification timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

// Location resolves OriginTimezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.OriginTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvSlice splits a comma-separated value, dropping empty entries.
func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvTime accepts RFC3339 or a bare YYYY-MM-DD date (UTC midnight).
func getEnvTime(key string, defaultValue time.Time) (time.Time, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", value)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
