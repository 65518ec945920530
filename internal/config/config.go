package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DataDir string `envconfig:"DATA_DIR" default:"data"`

	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIEndpoint  string `envconfig:"OPENAI_ENDPOINT" default:"https://api.openai.com/v1/chat/completions"`
	OpenAIModel     string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	ScoreMaxAttempt int    `envconfig:"SCORE_MAX_ATTEMPTS" default:"3"`
	ScoreRetryDelay int    `envconfig:"SCORE_RETRY_DELAY_SECONDS" default:"2"`

	DedupMaxDistance   int    `envconfig:"DEDUP_MAX_DISTANCE" default:"3"`
	DedupDateWindowHrs int    `envconfig:"DEDUP_DATE_WINDOW_HOURS" default:"72"`
	DedupLookbackDays  int    `envconfig:"DEDUP_LOOKBACK_DAYS" default:"14"`
	CrawlDaysBack      int    `envconfig:"CRAWL_DAYS_BACK" default:"7"`
	CrawlMaxPerSource  int    `envconfig:"CRAWL_MAX_PER_SOURCE" default:"20"`
	SourcesFile        string `envconfig:"SOURCES_FILE" default:""`
	RunSources         string `envconfig:"RUN_SOURCES" default:""`
	RefreshAt          string `envconfig:"REFRESH_AT" default:""`

	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port int    `envconfig:"PORT" default:"8000"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.ScoreMaxAttempt < 1 {
		return fmt.Errorf("SCORE_MAX_ATTEMPTS must be >= 1")
	}
	if c.ScoreRetryDelay < 0 {
		return fmt.Errorf("SCORE_RETRY_DELAY_SECONDS must be >= 0")
	}
	if c.DedupMaxDistance < 0 || c.DedupMaxDistance > 64 {
		return fmt.Errorf("DEDUP_MAX_DISTANCE must be between 0 and 64")
	}
	if c.DedupDateWindowHrs < 1 {
		return fmt.Errorf("DEDUP_DATE_WINDOW_HOURS must be >= 1")
	}
	if c.DedupLookbackDays < 1 {
		return fmt.Errorf("DEDUP_LOOKBACK_DAYS must be >= 1")
	}
	if c.CrawlDaysBack < 1 {
		return fmt.Errorf("CRAWL_DAYS_BACK must be >= 1")
	}
	if c.CrawlMaxPerSource < 1 {
		return fmt.Errorf("CRAWL_MAX_PER_SOURCE must be >= 1")
	}
	if c.RefreshAt != "" {
		if _, err := time.Parse("15:04", c.RefreshAt); err != nil {
			return fmt.Errorf("REFRESH_AT must be HH:MM, got %q", c.RefreshAt)
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	return nil
}

// RunSourceList splits RUN_SOURCES into domains. Empty means every
// registered source.
func (c *Config) RunSourceList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.RunSources, ",")
	domains := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		domain := strings.TrimSpace(part)
		if domain == "" {
			continue
		}
		if _, exists := seen[domain]; exists {
			continue
		}
		seen[domain] = struct{}{}
		domains = append(domains, domain)
	}
	return domains
}
