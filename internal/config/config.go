// Package config loads process configuration from the environment,
// with optional .env support for local development: cache TTLs, LLM
// model and cost rates, lookback windows, and per-adapter timeouts.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the core honors.
type Config struct {
	LogLevel string

	MonitorConfigPath string

	// Cache / baseline
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	BaselineTTL    time.Duration
	RepoMetaTTL    time.Duration
	CodeSearchTTL  time.Duration
	LLMResponseTTL time.Duration

	// LLM
	AnthropicAPIKey    string
	AnthropicModel     string
	LLMCostInputPer1K  float64
	LLMCostOutputPer1K float64

	// Adapters
	MetricsBaseURL       string
	MetricsAPIKey        string
	SourceControlBaseURL string
	SourceControlToken   string
	CodeSearchBaseURL    string
	CodeSearchAPIKey     string
	DBInvestigationDSN   string

	DefaultWebhookURL string

	// HTTP
	MetricsListenAddr string

	// Windows / timeouts
	RecentDeploymentWindow  time.Duration
	GitCommitLookbackWindow time.Duration
	AdapterTimeout          time.Duration
	DBInvestigationTimeout  time.Duration

	// Persistence
	SQLitePath string
}

// Load reads configuration from the environment, first loading a
// local .env file if present (errors loading .env are non-fatal --
// it is expected to be absent in production).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		MonitorConfigPath:       getEnv("MONITOR_CONFIG_PATH", "monitors.json"),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:           getEnv("REDIS_PASSWORD", ""),
		RedisDB:                 getEnvInt("REDIS_DB", 0),
		BaselineTTL:             getEnvDuration("BASELINE_TTL", 24*time.Hour),
		RepoMetaTTL:             getEnvDuration("REPO_METADATA_TTL", 1*time.Hour),
		CodeSearchTTL:           getEnvDuration("CODE_SEARCH_TTL", 15*time.Minute),
		LLMResponseTTL:          getEnvDuration("LLM_RESPONSE_TTL", 1*time.Hour),
		AnthropicAPIKey:         getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:          getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		LLMCostInputPer1K:       getEnvFloat("LLM_COST_INPUT_PER_1K", 0.003),
		LLMCostOutputPer1K:      getEnvFloat("LLM_COST_OUTPUT_PER_1K", 0.015),
		MetricsBaseURL:          getEnv("METRICS_BASE_URL", ""),
		MetricsAPIKey:           getEnv("METRICS_API_KEY", ""),
		SourceControlBaseURL:    getEnv("GITLAB_BASE_URL", "https://gitlab.com/api/v4"),
		SourceControlToken:      getEnv("GITLAB_TOKEN", ""),
		CodeSearchBaseURL:       getEnv("CODE_SEARCH_BASE_URL", ""),
		CodeSearchAPIKey:        getEnv("CODE_SEARCH_API_KEY", ""),
		DBInvestigationDSN:      getEnv("DB_INVESTIGATION_DSN", ""),
		DefaultWebhookURL:       getEnv("DEFAULT_TEAMS_WEBHOOK_URL", ""),
		MetricsListenAddr:       getEnv("METRICS_LISTEN_ADDR", ":9090"),
		RecentDeploymentWindow:  getEnvDuration("RECENT_DEPLOYMENT_WINDOW", 2*time.Hour),
		GitCommitLookbackWindow: getEnvDuration("GIT_COMMIT_LOOKBACK_WINDOW", 24*time.Hour),
		AdapterTimeout:          getEnvDuration("ADAPTER_TIMEOUT", 30*time.Second),
		DBInvestigationTimeout:  getEnvDuration("DB_INVESTIGATION_TIMEOUT", 10*time.Second),
		SQLitePath:              getEnv("SQLITE_PATH", "incidentpilot.db"),
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
