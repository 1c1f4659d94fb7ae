package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/onboarding-engine/internal/retry"
	"github.com/kursadbilgin/onboarding-engine/internal/service"
)

const (
	RunModeLocal = "local"
	RunModeLive  = "live"

	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	RunMode   string `env:"RUN_MODE,default=local"`
	BatchSize int    `env:"BATCH_SIZE,default=10"`
	BatchMode string `env:"BATCH_MODE,default=parallel"`

	MaxRetryAttempts       int     `env:"MAX_RETRY_ATTEMPTS,default=3"`
	RetryBaseDelay         string  `env:"RETRY_BASE_DELAY,default=2s"`
	RetryBackoffMultiplier float64 `env:"RETRY_BACKOFF_MULTIPLIER,default=2"`
	RetryMaxDelay          string  `env:"RETRY_MAX_DELAY,default=60s"`
	CallTimeout            string  `env:"CALL_TIMEOUT,default=30s"`
	RunTimeout             string  `env:"RUN_TIMEOUT,default=1h"`
	MaxFailureRate         float64 `env:"MAX_FAILURE_RATE,default=0.2"`

	StoreBackend string `env:"STORE_BACKEND,default=sqlite"`
	SQLitePath   string `env:"SQLITE_PATH,default=data/onboarding.db"`
	DatabaseDSN  string `env:"DATABASE_DSN"`
	DBMaxConns   int    `env:"DB_MAX_OPEN_CONNS,default=10"`
	RedisURL     string `env:"REDIS_URL"`
	RunRecordTTL string `env:"RUN_RECORD_TTL,default=168h"`

	RabbitMQURL       string `env:"RABBITMQ_URL"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=4"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`

	MemberServiceURL  string  `env:"MEMBER_SERVICE_URL"`
	ProjectServiceURL string  `env:"PROJECT_SERVICE_URL"`
	LFXAPIKey         string  `env:"LFX_API_KEY"`
	SlackAPIURL       string  `env:"SLACK_API_URL,default=https://slack.com/api"`
	SlackBotToken     string  `env:"SLACK_BOT_TOKEN"`
	EmailAPIURL       string  `env:"EMAIL_API_URL"`
	EmailAPIKey       string  `env:"EMAIL_API_KEY"`
	EmailFrom         string  `env:"EMAIL_FROM,default=onboarding@linuxfoundation.org"`
	GitHubAPIURL      string  `env:"GITHUB_API_URL,default=https://api.github.com"`
	GitHubToken       string  `env:"GITHUB_TOKEN"`
	GitHubOrg         string  `env:"GITHUB_ORG"`
	StubFailureRate   float64 `env:"STUB_FAILURE_RATE,default=0"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.RunMode = strings.ToLower(strings.TrimSpace(c.RunMode))
	if c.RunMode == "production" {
		c.RunMode = RunModeLive
	}
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.BatchMode = strings.ToLower(strings.TrimSpace(c.BatchMode))
}

// IsLive reports whether real collaborators are used instead of the in-memory stubs.
func (c *Config) IsLive() bool { return c.RunMode == RunModeLive }

func (c *Config) Validate() error {
	switch c.RunMode {
	case RunModeLocal, RunModeLive:
	default:
		return fmt.Errorf("invalid RUN_MODE %q: must be local or live", c.RunMode)
	}

	if c.BatchSize < 1 || c.BatchSize > 100 {
		return fmt.Errorf("BATCH_SIZE must be between 1 and 100, got %d", c.BatchSize)
	}
	if _, err := service.ParseBatchModeFromString(c.BatchMode); err != nil {
		return fmt.Errorf("invalid BATCH_MODE: %w", err)
	}
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("MAX_RETRY_ATTEMPTS must be at least 1, got %d", c.MaxRetryAttempts)
	}
	if c.RetryBackoffMultiplier < 1 {
		return fmt.Errorf("RETRY_BACKOFF_MULTIPLIER must be at least 1, got %v", c.RetryBackoffMultiplier)
	}
	if c.MaxFailureRate <= 0 || c.MaxFailureRate > 1 {
		return fmt.Errorf("MAX_FAILURE_RATE must be in (0, 1], got %v", c.MaxFailureRate)
	}
	if c.StubFailureRate < 0 || c.StubFailureRate > 1 {
		return fmt.Errorf("STUB_FAILURE_RATE must be in [0, 1], got %v", c.StubFailureRate)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.WorkerConcurrency)
	}

	durations := map[string]string{
		"RETRY_BASE_DELAY": c.RetryBaseDelay,
		"RETRY_MAX_DELAY":  c.RetryMaxDelay,
		"CALL_TIMEOUT":     c.CallTimeout,
		"RUN_TIMEOUT":      c.RunTimeout,
		"RUN_RECORD_TTL":   c.RunRecordTTL,
	}
	for name, value := range durations {
		if _, err := parsePositiveDuration(name, value); err != nil {
			return err
		}
	}

	switch c.StoreBackend {
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("DATABASE_DSN is required for the postgres store")
		}
	case StoreRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required for the redis store")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: must be sqlite, postgres or redis", c.StoreBackend)
	}

	if c.IsLive() {
		required := []struct {
			name  string
			value string
		}{
			{"MEMBER_SERVICE_URL", c.MemberServiceURL},
			{"PROJECT_SERVICE_URL", c.ProjectServiceURL},
			{"SLACK_BOT_TOKEN", c.SlackBotToken},
			{"EMAIL_API_URL", c.EmailAPIURL},
			{"GITHUB_TOKEN", c.GitHubToken},
			{"GITHUB_ORG", c.GitHubOrg},
		}
		for _, r := range required {
			if strings.TrimSpace(r.value) == "" {
				return fmt.Errorf("%s is required when RUN_MODE=live", r.name)
			}
		}
	}

	return nil
}

// RetryPolicy is the outward call policy derived from the retry settings.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.MaxRetryAttempts,
		BaseDelay:   mustDuration(c.RetryBaseDelay),
		Multiplier:  c.RetryBackoffMultiplier,
		MaxDelay:    mustDuration(c.RetryMaxDelay),
		Timeout:     mustDuration(c.CallTimeout),
	}
}

func (c *Config) BatchOptions() service.BatchOptions {
	return service.BatchOptions{
		Size: c.BatchSize,
		Mode: service.BatchMode(c.BatchMode),
	}
}

func (c *Config) OrchestratorOptions() service.OrchestratorOptions {
	return service.OrchestratorOptions{
		Batch:          c.BatchOptions(),
		MaxFailureRate: c.MaxFailureRate,
		RunTimeout:     mustDuration(c.RunTimeout),
	}
}

func (c *Config) RecordTTL() time.Duration {
	return mustDuration(c.RunRecordTTL)
}

func parsePositiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, value)
	}
	return d, nil
}

// mustDuration returns zero for values Validate would reject; callers fall back to their defaults.
func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d < 0 {
		return 0
	}
	return d
}
