// Package config manages application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration of a ytaccess service.
type Config struct {
	// APIKeys are the Data API keys, tried in order. Empty disables the API tier.
	APIKeys []string `json:"api_keys" yaml:"api_keys"`
	// APIEndpoint overrides the Data API base URL (default: the public API)
	APIEndpoint string `json:"api_endpoint" yaml:"api_endpoint"`

	// DailyQuota is the budget every key is replenished to
	DailyQuota int `json:"daily_quota" yaml:"daily_quota"`
	// QuotaResetInterval is how long one budget lasts
	QuotaResetInterval time.Duration `json:"quota_reset_interval" yaml:"quota_reset_interval"`
	// KeyCooldown is how long a key rests after its budget hits zero
	KeyCooldown time.Duration `json:"key_cooldown" yaml:"key_cooldown"`
	// MaxAttempts bounds the counted attempts of one Data API call
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// BreakerThreshold is the number of consecutive chain failures that opens a circuit
	BreakerThreshold int `json:"breaker_threshold" yaml:"breaker_threshold"`
	// BreakerRecovery is how long an open circuit rejects calls
	BreakerRecovery time.Duration `json:"breaker_recovery" yaml:"breaker_recovery"`

	// RequestTimeout bounds a single HTTP request
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
	// ScrapeRPS is the page fetch rate per host (0 = built-in default)
	ScrapeRPS float64 `json:"scrape_rps" yaml:"scrape_rps"`
	// UserAgents is the browser User-Agent pool for page fetches (empty = built-in pool)
	UserAgents []string `json:"user_agents" yaml:"user_agents"`

	// CacheSize is the number of results kept in memory
	CacheSize int `json:"cache_size" yaml:"cache_size"`
	// CacheTTL is how long cached channels and resolved ids stay valid
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	// RedisURL enables the shared result cache (e.g. redis://localhost:6379/0)
	RedisURL string `json:"redis_url" yaml:"redis_url"`

	// LedgerPath is where quota snapshots are kept across restarts (empty = not kept)
	LedgerPath string `json:"ledger_path" yaml:"ledger_path"`

	// Concurrency bounds batch fetches
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	// TranscriptLanguage is the caption language used when none is given
	TranscriptLanguage string `json:"transcript_language" yaml:"transcript_language"`
	// LogLevel is one of debug, info, warn, error
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		DailyQuota:         10000,
		QuotaResetInterval: 24 * time.Hour,
		KeyCooldown:        time.Hour,
		MaxAttempts:        5,
		BreakerThreshold:   5,
		BreakerRecovery:    60 * time.Second,
		RequestTimeout:     30 * time.Second,
		ScrapeRPS:          2.5,
		CacheSize:          1024,
		CacheTTL:           time.Hour,
		Concurrency:        4,
		TranscriptLanguage: "en",
		LogLevel:           "info",
	}
}

// Load loads configuration from the default config file locations and the
// environment. Priority: env vars > config file > defaults
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches
// ytaccess.yaml, ytaccess.yml and ytaccess.json in the working directory,
// then in ~/.config/ytaccess.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(path); err != nil {
		// Config file is optional unless named
		if path != "" || !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg.loadFromEnv()
	cfg.APIKeys = normalizeKeys(cfg.APIKeys)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	paths := []string{path}
	if path == "" {
		dir := filepath.Join(os.Getenv("HOME"), ".config", "ytaccess")
		paths = []string{
			"ytaccess.yaml",
			"ytaccess.yml",
			"ytaccess.json",
			filepath.Join(dir, "ytaccess.yaml"),
			filepath.Join(dir, "ytaccess.yml"),
			filepath.Join(dir, "ytaccess.json"),
		}
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) && path == "" {
				continue
			}
			return err
		}

		if strings.EqualFold(filepath.Ext(p), ".json") {
			err = json.Unmarshal(data, c)
		} else {
			err = yaml.Unmarshal(data, c)
		}
		if err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		return nil
	}

	return os.ErrNotExist
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		c.APIKeys = []string{v}
	}
	if v := os.Getenv("YOUTUBE_API_KEYS"); v != "" {
		c.APIKeys = strings.Split(v, ",")
	}
	if v := os.Getenv("YTACCESS_API_KEYS"); v != "" {
		c.APIKeys = strings.Split(v, ",")
	}
	if v := os.Getenv("YTACCESS_API_ENDPOINT"); v != "" {
		c.APIEndpoint = v
	}

	envInt("YTACCESS_DAILY_QUOTA", &c.DailyQuota)
	envDuration("YTACCESS_QUOTA_RESET_INTERVAL", &c.QuotaResetInterval)
	envDuration("YTACCESS_KEY_COOLDOWN", &c.KeyCooldown)
	envInt("YTACCESS_MAX_ATTEMPTS", &c.MaxAttempts)
	envInt("YTACCESS_BREAKER_THRESHOLD", &c.BreakerThreshold)
	envDuration("YTACCESS_BREAKER_RECOVERY", &c.BreakerRecovery)
	envDuration("YTACCESS_REQUEST_TIMEOUT", &c.RequestTimeout)
	if v := os.Getenv("YTACCESS_SCRAPE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.ScrapeRPS = f
		}
	}
	if v := os.Getenv("YTACCESS_USER_AGENTS"); v != "" {
		c.UserAgents = strings.Split(v, "|")
	}
	envInt("YTACCESS_CACHE_SIZE", &c.CacheSize)
	envDuration("YTACCESS_CACHE_TTL", &c.CacheTTL)
	if v := os.Getenv("YTACCESS_REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("YTACCESS_LEDGER_PATH"); v != "" {
		c.LedgerPath = v
	}
	envInt("YTACCESS_CONCURRENCY", &c.Concurrency)
	if v := os.Getenv("YTACCESS_TRANSCRIPT_LANGUAGE"); v != "" {
		c.TranscriptLanguage = v
	}
	if v := os.Getenv("YTACCESS_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// normalizeKeys trims keys and drops blanks and repeats, keeping order.
func normalizeKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// Validate checks that configuration values are valid and consistent.
// It returns an error if any configuration value is invalid.
func (c *Config) Validate() error {
	if c.DailyQuota <= 0 {
		return fmt.Errorf("daily_quota must be positive")
	}
	if c.QuotaResetInterval <= 0 {
		return fmt.Errorf("quota_reset_interval must be positive")
	}
	if c.KeyCooldown < 0 {
		return fmt.Errorf("key_cooldown must be non-negative")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.BreakerThreshold < 1 {
		return fmt.Errorf("breaker_threshold must be at least 1")
	}
	if c.BreakerRecovery <= 0 {
		return fmt.Errorf("breaker_recovery must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.ScrapeRPS < 0 {
		return fmt.Errorf("scrape_rps must be non-negative")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	return nil
}
