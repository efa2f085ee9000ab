package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	API         APIConfig        `toml:"api"`
	Keywords    KeywordsConfig   `toml:"keywords"`
	Processing  ProcessingConfig `toml:"processing"`
	Schedule    ScheduleConfig   `toml:"schedule"`
	Lease       LeaseConfig      `toml:"lease"`
	Storage     StorageConfig    `toml:"storage"`
	Redis       RedisConfig      `toml:"redis"`
	Logging     LoggingConfig    `toml:"logging"`
	Gemini      GeminiConfig     `toml:"gemini"`
	Claude      ClaudeConfig     `toml:"claude"`
	LLM         LLMConfig        `toml:"llm"`
	SEO         SEOConfig        `toml:"seo"`
	Metrics     MetricsConfig    `toml:"metrics"`
}

// APIConfig configures the upstream grant search API.
// Durations are strings parsed with time.ParseDuration.
type APIConfig struct {
	BaseURL        string `toml:"base_url" validate:"required,url"`
	UseHTTPS       bool   `toml:"use_https"`
	Timeout        string `toml:"timeout"`
	MaxRetries     int    `toml:"max_retries" validate:"min=1,max=10"`
	InitialBackoff string `toml:"initial_backoff"`
	UserAgent      string `toml:"user_agent"`
	RequestDelay   string `toml:"request_delay"`  // Delay between keyword searches
	DetailSpacing  string `toml:"detail_spacing"` // Minimum spacing between detail requests
	DetailCacheTTL string `toml:"detail_cache_ttl"`
	HealthCacheTTL string `toml:"health_cache_ttl"`
}

// KeywordsConfig holds the operator keyword allow/deny lists
type KeywordsConfig struct {
	Main       []string `toml:"main"`
	Exclude    []string `toml:"exclude"`
	File       string   `toml:"file"` // Optional YAML file with main/exclude lists
	Sort       string   `toml:"sort" validate:"omitempty,oneof=created_date acceptance_start_datetime acceptance_end_datetime"`
	Order      string   `toml:"order" validate:"omitempty,oneof=ASC DESC"`
	Acceptance string   `toml:"acceptance" validate:"omitempty,oneof=0 1"`
}

// ProcessingConfig controls the processing queue consumer
type ProcessingConfig struct {
	BatchSize       int    `toml:"batch_size" validate:"min=1,max=100"`
	ItemDelay       string `toml:"item_delay"` // Delay between processed items (default: "2s")
	AutoPublish     bool   `toml:"auto_publish"`
	DefaultPriority int    `toml:"default_priority"`
}

// ScheduleConfig holds cron expressions (with seconds field)
type ScheduleConfig struct {
	Fetch        string `toml:"fetch"`
	Process      string `toml:"process"`
	CacheSweep   string `toml:"cache_sweep"`
	LogCleanup   string `toml:"log_cleanup"`
	LogRetention string `toml:"log_retention"` // (default: "720h")
}

// LeaseConfig selects the single-flight lock backend
type LeaseConfig struct {
	Backend string `toml:"backend" validate:"oneof=badger redis memory"`
	TTL     string `toml:"ttl"` // (default: "1h")
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// RedisConfig is used when lease.backend = "redis"
type RedisConfig struct {
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// GeminiConfig contains Google Gemini API configuration for enrichment
type GeminiConfig struct {
	APIKey          string  `toml:"api_key"`
	Model           string  `toml:"model"`
	Temperature     float32 `toml:"temperature"`
	TopK            float32 `toml:"top_k"`
	TopP            float32 `toml:"top_p"`
	MaxOutputTokens int32   `toml:"max_output_tokens"`
	Timeout         string  `toml:"timeout"`
}

// ClaudeConfig contains Anthropic Claude API configuration for enrichment
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	Timeout     string  `toml:"timeout"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	LLMProviderGemini LLMProvider = "gemini"
	LLMProviderClaude LLMProvider = "claude"
	LLMProviderNone   LLMProvider = "none"
)

type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider" validate:"oneof=gemini claude none"`
}

type SEOConfig struct {
	Enabled bool `toml:"enabled"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		API: APIConfig{
			BaseURL:        "https://api.jgrants-portal.go.jp/exp/v1/public",
			UseHTTPS:       true,
			Timeout:        "45s",
			MaxRetries:     3,
			InitialBackoff: "1s",
			UserAgent:      "grantpost/" + Version,
			RequestDelay:   "2s",
			DetailSpacing:  "500ms",
			DetailCacheTTL: "24h",
			HealthCacheTTL: "5m",
		},
		Keywords: KeywordsConfig{
			Sort:       "created_date",
			Order:      "DESC",
			Acceptance: "0",
		},
		Processing: ProcessingConfig{
			BatchSize: 10,
			ItemDelay: "2s",
		},
		Schedule: ScheduleConfig{
			Fetch:        "0 0 * * * *",   // Hourly
			Process:      "0 */5 * * * *", // Every 5 minutes
			CacheSweep:   "0 30 3 * * *",  // Daily
			LogCleanup:   "0 45 3 * * *",  // Daily
			LogRetention: "720h",
		},
		Lease: LeaseConfig{
			Backend: "badger",
			TTL:     "1h",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "grantpost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Gemini: GeminiConfig{
			Model:           "gemini-2.5-flash",
			Temperature:     0.7,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 2048,
			Timeout:         "2m",
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-4-5",
			MaxTokens:   2048,
			Temperature: 0.7,
			Timeout:     "2m",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		SEO: SEOConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Addr: ":9102",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if config.Keywords.File != "" {
		if err := config.Keywords.loadFile(config.Keywords.File); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// keywordFile is the YAML layout of keywords.file
type keywordFile struct {
	Main    []string `yaml:"main"`
	Exclude []string `yaml:"exclude"`
}

// loadFile appends the lists found in a YAML keyword file
func (k *KeywordsConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read keyword file %s: %w", path, err)
	}

	var file keywordFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse keyword file %s: %w", path, err)
	}

	k.Main = append(k.Main, file.Main...)
	k.Exclude = append(k.Exclude, file.Exclude...)
	return nil
}

// applyEnvOverrides applies GRANTPOST_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("GRANTPOST_ENV"); env != "" {
		config.Environment = env
	}

	// API configuration
	if baseURL := os.Getenv("GRANTPOST_API_BASE_URL"); baseURL != "" {
		config.API.BaseURL = baseURL
	}
	if useHTTPS := os.Getenv("GRANTPOST_API_USE_HTTPS"); useHTTPS != "" {
		if b, err := strconv.ParseBool(useHTTPS); err == nil {
			config.API.UseHTTPS = b
		}
	}
	if delay := os.Getenv("GRANTPOST_API_REQUEST_DELAY"); delay != "" {
		config.API.RequestDelay = delay
	}

	// Keywords
	if main := os.Getenv("GRANTPOST_KEYWORDS"); main != "" {
		config.Keywords.Main = splitList(main)
	}
	if exclude := os.Getenv("GRANTPOST_EXCLUDE_KEYWORDS"); exclude != "" {
		config.Keywords.Exclude = splitList(exclude)
	}

	// Processing
	if batch := os.Getenv("GRANTPOST_BATCH_SIZE"); batch != "" {
		if n, err := strconv.Atoi(batch); err == nil {
			config.Processing.BatchSize = n
		}
	}
	if publish := os.Getenv("GRANTPOST_AUTO_PUBLISH"); publish != "" {
		if b, err := strconv.ParseBool(publish); err == nil {
			config.Processing.AutoPublish = b
		}
	}

	// Storage and lease
	if badgerPath := os.Getenv("GRANTPOST_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if backend := os.Getenv("GRANTPOST_LEASE_BACKEND"); backend != "" {
		config.Lease.Backend = backend
	}
	if addr := os.Getenv("GRANTPOST_REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	if password := os.Getenv("GRANTPOST_REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}

	// Logging configuration
	if level := os.Getenv("GRANTPOST_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("GRANTPOST_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// LLM configuration (GEMINI_API_KEY / ANTHROPIC_API_KEY as fallbacks)
	if key := firstEnv("GRANTPOST_GEMINI_API_KEY", "GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if key := firstEnv("GRANTPOST_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if provider := os.Getenv("GRANTPOST_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	if enabled := os.Getenv("GRANTPOST_METRICS_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Metrics.Enabled = b
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, logLevel string) {
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// splitList splits a comma or newline separated list, dropping blanks
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate checks struct constraints, durations and cron expressions
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"api.timeout":            c.API.Timeout,
		"api.initial_backoff":    c.API.InitialBackoff,
		"api.request_delay":      c.API.RequestDelay,
		"api.detail_spacing":     c.API.DetailSpacing,
		"api.detail_cache_ttl":   c.API.DetailCacheTTL,
		"api.health_cache_ttl":   c.API.HealthCacheTTL,
		"processing.item_delay":  c.Processing.ItemDelay,
		"schedule.log_retention": c.Schedule.LogRetention,
		"lease.ttl":              c.Lease.TTL,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}

	schedules := map[string]string{
		"schedule.fetch":       c.Schedule.Fetch,
		"schedule.process":     c.Schedule.Process,
		"schedule.cache_sweep": c.Schedule.CacheSweep,
		"schedule.log_cleanup": c.Schedule.LogCleanup,
	}
	for name, value := range schedules {
		if value == "" {
			continue
		}
		if err := ValidateSchedule(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return nil
}

// ValidateSchedule validates a six-field (seconds first) cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ParseDurationOr parses value, returning fallback when empty or invalid
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
