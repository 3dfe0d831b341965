package config

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/supplier-ingest/internal/categorize"
	"github.com/garyjia/supplier-ingest/internal/extraction"
	"github.com/garyjia/supplier-ingest/internal/infrastructure/external/openai"
	"github.com/garyjia/supplier-ingest/internal/locale"
	"github.com/garyjia/supplier-ingest/internal/pipeline"
	"github.com/garyjia/supplier-ingest/pkg/database"
	"github.com/garyjia/supplier-ingest/pkg/utils"
)

// The methods below bridge the file-based config loaded by viper and the
// configuration structs of the individual components.

// ExtractionConfig returns the orchestrator settings
func (c *Config) ExtractionConfig() extraction.Config {
	cfg := extraction.DefaultConfig()
	cfg.ChunkSize = c.ChunkSize
	cfg.MaxParallel = c.MaxParallelLLMCalls
	cfg.PerCallTimeout = seconds(c.LLMPerCallTimeoutS)
	cfg.MaxRetries = c.LLMMaxRetries
	cfg.GracefulCancelTimeout = seconds(c.GracefulCancelTimeoutS)
	return cfg
}

// PipelineConfig returns the coordinator settings
func (c *Config) PipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.SinkTimeout = seconds(c.SinkTimeoutS)
	cfg.OverallTimeout = seconds(c.OverallTimeoutS)
	cfg.GracefulWriteTimeout = seconds(c.GracefulCancelTimeoutS)
	cfg.FallbackCategory = strings.TrimSpace(c.FallbackCategory)
	return cfg
}

// DatabaseConfig returns the sqlite settings
func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Path:            c.Database.Path,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

// OpenAIConfig returns the OpenAI client settings
func (c *Config) OpenAIConfig() openai.Config {
	return openai.Config{
		APIKey:            c.OpenAI.APIKey,
		BaseURL:           c.OpenAI.BaseURL,
		Model:             c.OpenAI.Model,
		VisionModel:       c.OpenAI.VisionModel,
		Temperature:       c.OpenAI.Temperature,
		MaxTokens:         c.OpenAI.MaxTokens,
		RequestsPerMinute: c.OpenAI.RequestsPerMinute,
	}
}

// LoggerConfig returns the zap logger settings
func (c *Config) LoggerConfig() utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
	}
}

// Multipliers returns the price multiplier table: the bundled defaults overridden by
// price_multipliers. A multiplier of 1 disables the default for a supplier.
func (c *Config) Multipliers() (map[string]decimal.Decimal, error) {
	table := locale.DefaultMultipliers()
	for supplier, raw := range c.PriceMultipliers {
		f, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("price_multipliers[%s]: %q is not a number", supplier, raw)
		}
		if !f.IsPositive() {
			return nil, fmt.Errorf("price_multipliers[%s] must be positive, got %s", supplier, f)
		}
		table[strings.ToUpper(strings.TrimSpace(supplier))] = f
	}
	return table, nil
}

// PriceAdjuster builds the price adjuster from Multipliers
func (c *Config) PriceAdjuster() (*locale.PriceAdjuster, error) {
	table, err := c.Multipliers()
	if err != nil {
		return nil, err
	}
	return locale.NewPriceAdjuster(table)
}

// CategoryEngine builds the categorization engine. Configured keywords replace the bundled
// table; configured supplier defaults take precedence over the bundled ones.
func (c *Config) CategoryEngine() (*categorize.Engine, error) {
	rules := categorize.DefaultRules()
	if len(c.CategoryKeywords) > 0 {
		rules = c.CategoryKeywords
	}

	// sorted so that containment ties between equally long names resolve the same way every run
	var defaults []categorize.SupplierDefault
	for _, supplier := range slices.Sorted(maps.Keys(c.SupplierDefaultCategories)) {
		defaults = append(defaults, categorize.SupplierDefault{
			Supplier:     supplier,
			CategoryPath: c.SupplierDefaultCategories[supplier],
		})
	}
	// configured entries come first so they win over bundled ones for the same supplier
	defaults = append(defaults, categorize.DefaultSupplierCategories()...)
	engine, err := categorize.NewEngine(rules, defaults)
	if err != nil {
		return nil, fmt.Errorf("invalid category configuration: %w", err)
	}
	return engine, nil
}
