package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.ChunkSize)
	assert.Equal(t, 4, cfg.MaxParallelLLMCalls)
	assert.Equal(t, 2, cfg.LLMMaxRetries)
	assert.Equal(t, "OTROS", cfg.FallbackCategory)

	ext := cfg.ExtractionConfig()
	assert.Equal(t, 180*time.Second, ext.PerCallTimeout)
	assert.Equal(t, 5*time.Second, ext.GracefulCancelTimeout)

	pl := cfg.PipelineConfig()
	assert.Equal(t, 30*time.Second, pl.SinkTimeout)
	assert.Equal(t, 15*time.Minute, pl.OverallTimeout)
}

func TestLoad_FileAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
chunk_size: 10
llm_per_call_timeout_s: 2.5
price_multipliers:
  ALMCE: 1.262
  Hogar Norte: "1.10"
category_keywords:
  - keyword: plancha
    category_path: Planchas
supplier_default_categories:
  ORBEGOZO: Climatización
adapter_selectors:
  - token: ALMCE
    adapter: almce
  - token: NEVIR
    adapter: generic
openai:
  model: gpt-4o
database:
  path: /tmp/catalog.db
`)
	t.Setenv("INGEST_MAX_PARALLEL_LLM_CALLS", "8")
	t.Setenv("INGEST_OPENAI_MODEL", "gpt-4.1")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.ChunkSize)
	assert.Equal(t, 8, cfg.MaxParallelLLMCalls)
	assert.Equal(t, 2500*time.Millisecond, cfg.ExtractionConfig().PerCallTimeout)
	assert.Equal(t, "gpt-4.1", cfg.OpenAIConfig().Model)
	assert.Equal(t, "sk-env", cfg.OpenAIConfig().APIKey)
	assert.Equal(t, "/tmp/catalog.db", cfg.DatabaseConfig().Path)

	require.Len(t, cfg.AdapterSelectors, 2)
	assert.Equal(t, "generic", cfg.AdapterSelectors[1].Adapter)

	table, err := cfg.Multipliers()
	require.NoError(t, err)
	assert.True(t, table["HOGAR NORTE"].Equal(decimal.RequireFromString("1.10")))
	assert.True(t, table["ALMCE"].Equal(decimal.RequireFromString("1.262")))
	assert.True(t, table["WORTEN"].Equal(decimal.RequireFromString("1.21")), "bundled defaults are kept")

	prices, err := cfg.PriceAdjuster()
	require.NoError(t, err)
	assert.True(t, prices.Adjust("Hogar Norte", decimal.RequireFromString("110")).Equal(decimal.NewFromInt(100)))

	engine, err := cfg.CategoryEngine()
	require.NoError(t, err)
	cat, ok := engine.Infer("Plancha de vapor 2400W", "")
	require.True(t, ok)
	assert.Equal(t, "Planchas", cat.Path())
	_, ok = engine.Infer("Microondas 20L", "")
	assert.False(t, ok, "configured keywords replace the bundled table")
	cat, ok = engine.Infer("Abanico", "Orbegozo")
	require.True(t, ok)
	assert.Equal(t, "Climatización", cat.Path())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("INGEST_CHUNK_SIZE=7\n"), 0o600))
	t.Setenv("INGEST_CHUNK_SIZE", "")
	require.NoError(t, os.Unsetenv("INGEST_CHUNK_SIZE"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.ChunkSize)
}

func TestLoad_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"zero chunk size", "chunk_size: 0", "chunk_size"},
		{"negative retries", "llm_max_retries: -1", "llm_max_retries"},
		{"zero parallel", "max_parallel_llm_calls: 0", "max_parallel_llm_calls"},
		{"empty selector token", "adapter_selectors:\n  - token: ''\n    adapter: almce", "token"},
		{"bad multiplier", "price_multipliers:\n  ALMCE: abc", "price_multipliers"},
		{"zero multiplier", "price_multipliers:\n  ALMCE: 0", "must be positive"},
		{"empty keyword", "category_keywords:\n  - keyword: ''\n    category_path: X", "keyword"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	example, err := filepath.Abs(filepath.Join("..", "..", "configs", "config.example.yaml"))
	require.NoError(t, err)
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(example)
	require.NoError(t, err)
	assert.Equal(t, "data/catalog.db", cfg.Database.Path)

	table, err := cfg.Multipliers()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.262").Equal(table["ALMCE"]))

	engine, err := cfg.CategoryEngine()
	require.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestCategoryEngine_SupplierDefaultsAreOrdered(t *testing.T) {
	cfg := &Config{SupplierDefaultCategories: map[string]string{
		"norte": "Climatizacion",
		"hogar": "Hogar",
		"linea": "Cocina",
	}}

	// all three keys have the same length and are contained in the name
	for i := 0; i < 20; i++ {
		engine, err := cfg.CategoryEngine()
		require.NoError(t, err)
		m, ok := engine.SupplierDefault("Linea Hogar Norte S.L.")
		require.True(t, ok)
		assert.Equal(t, "Hogar", m.Category.Path())
	}
}
