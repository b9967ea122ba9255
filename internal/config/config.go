package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	TransportLocal = "local"
	TransportNSQ   = "nsq"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	// Transport between contexts: "local" runs every role in-process, "nsq" uses nsqd.
	Transport string `envconfig:"TRANSPORT" default:"local"`
	// Consumers connect to NSQD_HOST directly when NSQ_LOOKUPD is empty.
	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	// Roles
	EnableAPI          bool `envconfig:"ENABLE_API" default:"true"`
	EnableOrchestrator bool `envconfig:"ENABLE_ORCHESTRATOR" default:"true"`
	EnableCompute      bool `envconfig:"ENABLE_COMPUTE" default:"true"`
	EnablePage         bool `envconfig:"ENABLE_PAGE" default:"false"`
	HandlerConcurrency int  `envconfig:"HANDLER_CONCURRENCY" default:"8"`

	// Settings store for content-list overrides
	SettingsStore string `envconfig:"SETTINGS_STORE" default:"memory"`
	DBHost        string `envconfig:"DB_HOST" default:"postgres"`
	DBPort        int    `envconfig:"DB_PORT" default:"5432"`
	DBUser        string `envconfig:"DB_USER" default:"adswap"`
	DBPass        string `envconfig:"DB_PASS" default:"password"`
	DBName        string `envconfig:"DB_NAME" default:"adswap"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Remote collaborators
	RuleListURL          string `envconfig:"RULE_LIST_URL" default:"https://easylist.to/easylist/easylist.txt"`
	RuleListPath         string `envconfig:"RULE_LIST_PATH"`
	RuleFetchTimeoutSecs int    `envconfig:"RULE_FETCH_TIMEOUT_SECONDS" default:"15"`
	RuleRefreshMinutes   int    `envconfig:"RULE_REFRESH_MINUTES" default:"0"`
	QuoteURL             string `envconfig:"QUOTE_URL" default:"https://api.quotable.io/random"`
	QuoteTimeoutSeconds  int    `envconfig:"QUOTE_TIMEOUT_SECONDS" default:"5"`
	QuoteRefreshMinutes  int    `envconfig:"QUOTE_REFRESH_MINUTES" default:"0"`

	// Classification
	ModelPath               string  `envconfig:"MODEL_PATH"`
	ConfidenceThreshold     float64 `envconfig:"CONFIDENCE_THRESHOLD" default:"0.7"`
	ScoreTimeoutMS          int     `envconfig:"SCORE_TIMEOUT_MS" default:"2000"`
	ReadinessTimeoutSeconds int     `envconfig:"READINESS_TIMEOUT_SECONDS" default:"10"`
	RuleOnlyFallback        bool    `envconfig:"RULE_ONLY_FALLBACK" default:"false"`
	DefaultViewportWidth    float64 `envconfig:"DEFAULT_VIEWPORT_WIDTH" default:"1280"`
	DefaultViewportHeight   float64 `envconfig:"DEFAULT_VIEWPORT_HEIGHT" default:"800"`

	// Page context
	PageContextID     string  `envconfig:"PAGE_CONTEXT_ID"`
	PageURL           string  `envconfig:"PAGE_URL"`
	BrowserControlURL string  `envconfig:"BROWSER_CONTROL_URL"`
	CandidateSelector string  `envconfig:"CANDIDATE_SELECTOR" default:"div[class], aside[class], ins[class], iframe[class]"`
	GeometryTolerance float64 `envconfig:"GEOMETRY_TOLERANCE" default:"5"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	DecisionLogPath string `envconfig:"DECISION_LOG_PATH" default:"data/logs/decisions.log"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Transport {
	case TransportLocal:
	case TransportNSQ:
		if c.NSQDHost == "" {
			return fmt.Errorf("%w: NSQD_HOST", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: TRANSPORT=%q", ErrInvalidValue, c.Transport)
	}

	switch c.SettingsStore {
	case StoreMemory:
	case StorePostgres:
		if c.DBHost == "" {
			return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
		}
		if c.DBUser == "" {
			return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
		}
		if c.DBName == "" {
			return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: SETTINGS_STORE=%q", ErrInvalidValue, c.SettingsStore)
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: CONFIDENCE_THRESHOLD must be within [0,1]", ErrInvalidValue)
	}
	if c.GeometryTolerance <= 0 {
		return fmt.Errorf("%w: GEOMETRY_TOLERANCE must be positive", ErrInvalidValue)
	}
	if c.EnablePage && c.PageURL == "" {
		return fmt.Errorf("%w: PAGE_URL", ErrMissingRequired)
	}
	return nil
}

func (c *Config) ScoreTimeout() time.Duration {
	return time.Duration(c.ScoreTimeoutMS) * time.Millisecond
}

func (c *Config) ReadinessTimeout() time.Duration {
	return time.Duration(c.ReadinessTimeoutSeconds) * time.Second
}

func (c *Config) QuoteTimeout() time.Duration {
	return time.Duration(c.QuoteTimeoutSeconds) * time.Second
}

func (c *Config) RuleFetchTimeout() time.Duration {
	return time.Duration(c.RuleFetchTimeoutSecs) * time.Second
}
