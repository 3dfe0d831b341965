package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/supplier-ingest/internal/categorize"
	"github.com/garyjia/supplier-ingest/internal/invoice"
)

// EnvPrefix prefixes every environment override: chunk_size is INGEST_CHUNK_SIZE,
// openai.api_key is INGEST_OPENAI_API_KEY.
const EnvPrefix = "INGEST"

// Config holds all application configuration
type Config struct {
	ChunkSize              int     `mapstructure:"chunk_size"`
	MaxParallelLLMCalls    int     `mapstructure:"max_parallel_llm_calls"`
	LLMPerCallTimeoutS     float64 `mapstructure:"llm_per_call_timeout_s"`
	LLMMaxRetries          int     `mapstructure:"llm_max_retries"`
	SinkTimeoutS           float64 `mapstructure:"sink_timeout_s"`
	OverallTimeoutS        float64 `mapstructure:"overall_timeout_s"`
	GracefulCancelTimeoutS float64 `mapstructure:"graceful_cancel_timeout_s"`

	// PriceMultipliers maps a supplier to the divisor turning its prices into net cost.
	// Values are kept as text so they parse as exact decimals.
	PriceMultipliers          map[string]string  `mapstructure:"price_multipliers"`
	CategoryKeywords          []categorize.Rule  `mapstructure:"category_keywords"`
	SupplierDefaultCategories map[string]string  `mapstructure:"supplier_default_categories"`
	FallbackCategory          string             `mapstructure:"fallback_category"`
	AdapterSelectors          []invoice.Selector `mapstructure:"adapter_selectors"`
	PromptsPath               string             `mapstructure:"prompts_path"`

	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Output   OutputConfig   `mapstructure:"output"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	BaseURL           string  `mapstructure:"base_url"`
	Model             string  `mapstructure:"model"`
	VisionModel       string  `mapstructure:"vision_model"`
	Temperature       float32 `mapstructure:"temperature"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
}

// OCRConfig holds document recognition settings
type OCRConfig struct {
	MaxPages int `mapstructure:"max_pages"`
	// Vision enables the vision model for images and scanned PDFs
	Vision bool `mapstructure:"vision"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// OutputConfig holds where run archives and reports are written
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load loads configuration from file and environment variables.
// An empty configPath uses defaults and the environment only. A .env file in the
// working directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Pipeline defaults
	v.SetDefault("chunk_size", 25)
	v.SetDefault("max_parallel_llm_calls", 4)
	v.SetDefault("llm_per_call_timeout_s", 180.0)
	v.SetDefault("llm_max_retries", 2)
	v.SetDefault("sink_timeout_s", 30.0)
	v.SetDefault("overall_timeout_s", 900.0)
	v.SetDefault("graceful_cancel_timeout_s", 5.0)
	v.SetDefault("fallback_category", categorize.FallbackCategory)

	// OpenAI defaults
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.vision_model", "gpt-4o")
	v.SetDefault("openai.temperature", 0.0)
	v.SetDefault("openai.max_tokens", 4096)
	v.SetDefault("openai.requests_per_minute", 0)

	// OCR defaults
	v.SetDefault("ocr.max_pages", 10)
	v.SetDefault("ocr.vision", true)

	// Database defaults
	v.SetDefault("database.path", "data/catalog.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stderr")
	v.SetDefault("logger.format", "console")

	// Output defaults
	v.SetDefault("output.dir", "runs")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// The conventional OpenAI variable works without the prefix
	_ = v.BindEnv("openai.api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.base_url", EnvPrefix+"_OPENAI_BASE_URL", "OPENAI_BASE_URL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	case c.MaxParallelLLMCalls <= 0:
		return fmt.Errorf("max_parallel_llm_calls must be positive, got %d", c.MaxParallelLLMCalls)
	case c.LLMMaxRetries < 0:
		return fmt.Errorf("llm_max_retries must not be negative, got %d", c.LLMMaxRetries)
	case c.LLMPerCallTimeoutS <= 0:
		return fmt.Errorf("llm_per_call_timeout_s must be positive")
	case c.SinkTimeoutS <= 0:
		return fmt.Errorf("sink_timeout_s must be positive")
	case c.OverallTimeoutS <= 0:
		return fmt.Errorf("overall_timeout_s must be positive")
	case c.GracefulCancelTimeoutS < 0:
		return fmt.Errorf("graceful_cancel_timeout_s must not be negative")
	case strings.TrimSpace(c.FallbackCategory) == "":
		return fmt.Errorf("fallback_category is required")
	}

	for i, s := range c.AdapterSelectors {
		if strings.TrimSpace(s.Token) == "" {
			return fmt.Errorf("adapter_selectors[%d]: token is required", i)
		}
		if strings.TrimSpace(s.Adapter) == "" {
			return fmt.Errorf("adapter_selectors[%d]: adapter is required", i)
		}
	}
	for i, r := range c.CategoryKeywords {
		if strings.TrimSpace(r.Keyword) == "" {
			return fmt.Errorf("category_keywords[%d]: keyword is required", i)
		}
	}
	if _, err := c.Multipliers(); err != nil {
		return err
	}
	return nil
}

// seconds converts a fractional seconds setting
func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
