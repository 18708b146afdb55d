package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Search        SearchConfig        `yaml:"search"`
	Scraper       ScraperConfig       `yaml:"scraper"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	ErrorHandling ErrorHandlingConfig `yaml:"error_handling"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	UserAgent     string              `yaml:"user_agent"`
	Logging       LoggingConfig       `yaml:"logging"`
	Timezone      string              `yaml:"timezone"`
}

// OrchestratorConfig carries the scrape-orchestrator thresholds governed by
// the SCRAPER_* environment variables. Loaded once at process start via
// LoadConfig, then overlaid by applyEnvOverrides — never re-read per request,
// matching the "load once at startup" model the rest of this config layer uses.
type OrchestratorConfig struct {
	DetailRefetchDays         int            `yaml:"detail_refetch_days"`
	PerSiteDetailRefetchDays  map[string]int `yaml:"-"`
	SmartScraping             bool           `yaml:"smart_scraping"`
	SmartDayPerHour           int            `yaml:"smart_day_per_hour"`
	SmartNightPerHour         int            `yaml:"smart_night_per_hour"`
	SmartDefaultPerHour       int            `yaml:"smart_default_per_hour"`
	DelaySeconds              float64        `yaml:"delay_seconds"`
	CriticalErrorRate         float64        `yaml:"critical_error_rate"`
	CriticalErrorCount        int            `yaml:"critical_error_count"`
	ConsecutiveErrors         int            `yaml:"consecutive_errors"`
	SuspiciousUpdateThreshold int            `yaml:"suspicious_update_threshold"`
	PreventNullUpdates        bool           `yaml:"prevent_null_updates"`
	PriceMismatchRetryDays    int            `yaml:"price_mismatch_retry_days"`
	MaxPages                  int            `yaml:"max_pages"`
	PauseTimeoutSeconds       int            `yaml:"pause_timeout_seconds"`
}

// DefaultOrchestratorConfig returns the package's baseline thresholds.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		DetailRefetchDays:         90,
		PerSiteDetailRefetchDays:  map[string]int{},
		SmartScraping:             true,
		SmartDayPerHour:           30,
		SmartNightPerHour:         6,
		SmartDefaultPerHour:       15,
		DelaySeconds:              1.0,
		CriticalErrorRate:         0.5,
		CriticalErrorCount:        10,
		ConsecutiveErrors:         5,
		SuspiciousUpdateThreshold: 5,
		PreventNullUpdates:        false,
		PriceMismatchRetryDays:    7,
		MaxPages:                  200,
		PauseTimeoutSeconds:       300,
	}
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
}

// ScraperConfig contains scraper-specific settings
type ScraperConfig struct {
	RequestDelaySeconds int    `yaml:"request_delay_seconds"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	MaxRetries          int    `yaml:"max_retries"`
	RetryDelaySeconds   int    `yaml:"retry_delay_seconds"`
	MaxRequestsPerDay   int    `yaml:"max_requests_per_day"`
	StopOnError         bool   `yaml:"stop_on_error"`
	ConcurrentLimit     int    `yaml:"concurrent_limit"`
	DailyRunEnabled     bool   `yaml:"daily_run_enabled"`
	DailyRunTime        string `yaml:"daily_run_time"`
	ListPageLimit       int    `yaml:"list_page_limit"`
	// AreaCodes maps a source site name to the area code its BuildListURL
	// expects; one orchestrator task runs per entry.
	AreaCodes map[string]string `yaml:"area_codes"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled            bool `yaml:"enabled"`
	RequestsPerMinute  int  `yaml:"requests_per_minute"`
	RequestsPerHour    int  `yaml:"requests_per_hour"`
}

// ErrorHandlingConfig contains error handling settings
type ErrorHandlingConfig struct {
	RetryOnNetworkError bool `yaml:"retry_on_network_error"`
	RetryOn5xx          bool `yaml:"retry_on_5xx"`
	RetryOn4xx          bool `yaml:"retry_on_4xx"`
	LogErrors           bool `yaml:"log_errors"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level        string `yaml:"level"`
	LogRequests  bool   `yaml:"log_requests"`
	LogResponses bool   `yaml:"log_responses"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Scraper: ScraperConfig{
			RequestDelaySeconds: 2,
			TimeoutSeconds:      30,
			MaxRetries:          3,
			RetryDelaySeconds:   2,
			MaxRequestsPerDay:   5000,
			StopOnError:         true,
			ConcurrentLimit:     1,
			DailyRunEnabled:     false,
			DailyRunTime:        "02:00",
			ListPageLimit:       50,
			AreaCodes: map[string]string{
				"suumo":   "13",
				"homes":   "13",
				"athome":  "13",
				"livable": "13",
				"nomu":    "13",
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 30,
			RequestsPerHour:   1800,
		},
		ErrorHandling: ErrorHandlingConfig{
			RetryOnNetworkError: true,
			RetryOn5xx:          true,
			RetryOn4xx:          false,
			LogErrors:           true,
		},
		Orchestrator: DefaultOrchestratorConfig(),
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
		Logging: LoggingConfig{
			Level:        "info",
			LogRequests:  true,
			LogResponses: false,
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		applyEnvOverrides(config)
		return config, nil
	}

	// Read file
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides overlays the SCRAPER_* environment variables onto
// a config already loaded from YAML (or defaults). Every env-governed
// numeric threshold flows through here so they are read once, at startup,
// the same way LoadConfig itself runs once.
func applyEnvOverrides(c *Config) {
	if v, ok := envInt("SCRAPER_DETAIL_REFETCH_DAYS"); ok {
		c.Orchestrator.DetailRefetchDays = v
	}
	for _, site := range []string{"SUUMO", "HOMES", "ATHOME", "LIVABLE", "NOMU"} {
		if v, ok := envInt("SCRAPER_" + site + "_DETAIL_REFETCH_DAYS"); ok {
			if c.Orchestrator.PerSiteDetailRefetchDays == nil {
				c.Orchestrator.PerSiteDetailRefetchDays = map[string]int{}
			}
			c.Orchestrator.PerSiteDetailRefetchDays[strings.ToLower(site)] = v
		}
	}
	if v, ok := envBool("SCRAPER_SMART_SCRAPING"); ok {
		c.Orchestrator.SmartScraping = v
	}
	if v, ok := envFloat("SCRAPER_DELAY"); ok {
		c.Orchestrator.DelaySeconds = v
	}
	if v, ok := envFloat("SCRAPER_CRITICAL_ERROR_RATE"); ok {
		c.Orchestrator.CriticalErrorRate = v
	}
	if v, ok := envInt("SCRAPER_CRITICAL_ERROR_COUNT"); ok {
		c.Orchestrator.CriticalErrorCount = v
	}
	if v, ok := envInt("SCRAPER_CONSECUTIVE_ERRORS"); ok {
		c.Orchestrator.ConsecutiveErrors = v
	}
	if v, ok := envInt("SCRAPER_SUSPICIOUS_UPDATE_THRESHOLD"); ok {
		c.Orchestrator.SuspiciousUpdateThreshold = v
	}
	if v, ok := envBool("SCRAPER_PREVENT_NULL_UPDATES"); ok {
		c.Orchestrator.PreventNullUpdates = v
	}
	if v, ok := envInt("SCRAPER_PRICE_MISMATCH_RETRY_DAYS"); ok {
		c.Orchestrator.PriceMismatchRetryDays = v
	}
}

func envInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envBool(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return b, true
}

// DetailRefetchDaysFor returns the per-site override for sourceSite if one
// was configured, else the global default.
func (c *OrchestratorConfig) DetailRefetchDaysFor(sourceSite string) int {
	if v, ok := c.PerSiteDetailRefetchDays[sourceSite]; ok {
		return v
	}
	return c.DetailRefetchDays
}

// GetRequestDelay returns the request delay as a duration
func (c *ScraperConfig) GetRequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds) * time.Second
}

// GetTimeout returns the timeout as a duration
func (c *ScraperConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetRetryDelay returns the retry delay as a duration
func (c *ScraperConfig) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}
