// Package container wires the ingestion pipeline from configuration and manages
// the lifecycle of the resources it opens.
package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/config"
	"github.com/garyjia/supplier-ingest/internal/excel"
	"github.com/garyjia/supplier-ingest/internal/extraction"
	"github.com/garyjia/supplier-ingest/internal/infrastructure/external/openai"
	"github.com/garyjia/supplier-ingest/internal/infrastructure/ocr"
	"github.com/garyjia/supplier-ingest/internal/invoice"
	"github.com/garyjia/supplier-ingest/internal/pipeline"
	"github.com/garyjia/supplier-ingest/internal/repository"
	"github.com/garyjia/supplier-ingest/pkg/database"
)

// DatabaseBundle holds the opened catalog database
type DatabaseBundle struct {
	DB *database.DB
	// Applied is the number of migrations run while opening
	Applied int
}

// LLMBundle holds the model client and the prompts it is driven with.
// Client is nil when no API key is configured.
type LLMBundle struct {
	Client  *openai.Client
	Prompts *openai.PromptConfig
}

// ProvideDatabase opens the sqlite catalog and brings its schema up to date.
func ProvideDatabase(ctx context.Context, cfg database.Config, logger *zap.Logger) (*DatabaseBundle, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := database.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	applied, err := repository.Migrate(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{DB: db, Applied: applied}, nil
}

// ProvideSink returns the catalog sink. A dry run writes to memory only.
func ProvideSink(db *database.DB, dryRun bool, logger *zap.Logger) (port.CatalogSink, error) {
	if dryRun {
		logger.Info("Dry run: catalog writes are kept in memory")
		return repository.NewMemorySink(), nil
	}
	if db == nil {
		return nil, fmt.Errorf("database is required unless running dry")
	}
	return repository.NewSQLiteSink(db, logger), nil
}

// ProvideLLM creates the OpenAI client and loads prompts. A missing API key is not an
// error here: invoice imports work without a model and price lists fail per run.
func ProvideLLM(cfg *config.Config, logger *zap.Logger) (*LLMBundle, error) {
	prompts := openai.DefaultPrompts()
	if cfg.PromptsPath != "" {
		loaded, err := openai.LoadPrompts(cfg.PromptsPath)
		if err != nil {
			return nil, err
		}
		prompts = loaded
	}

	bundle := &LLMBundle{Prompts: prompts}
	if cfg.OpenAI.APIKey == "" {
		logger.Warn("No OpenAI API key configured, price list extraction and vision OCR are disabled")
		return bundle, nil
	}

	client, err := openai.NewClient(cfg.OpenAIConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	bundle.Client = client
	return bundle, nil
}

// ProvideExtractor builds the chunked extraction orchestrator. It returns nil when
// there is no model to drive.
func ProvideExtractor(llm *LLMBundle, cfg *config.Config, logger *zap.Logger) (pipeline.Extractor, error) {
	if llm == nil || llm.Client == nil {
		return nil, nil
	}
	prompts, err := extraction.NewPromptBuilder(llm.Prompts.ExtractionTemplate())
	if err != nil {
		return nil, fmt.Errorf("invalid extraction prompt: %w", err)
	}
	orch, err := extraction.NewOrchestrator(llm.Client, prompts, cfg.ExtractionConfig(), logger)
	if err != nil {
		return nil, err
	}
	return orch, nil
}

// ProvideOCR routes documents by content type. PDFs try their text layer first and
// fall back to the vision model when it is enabled and configured.
func ProvideOCR(llm *LLMBundle, cfg *config.Config, logger *zap.Logger) (port.OCRProvider, error) {
	pdf := ocr.NewPDFText(cfg.OCR.MaxPages, logger)
	router := ocr.NewRouter(logger).Handle("text/plain", ocr.PlainText{})

	if !cfg.OCR.Vision || llm == nil || llm.Client == nil {
		router.Handle("application/pdf", pdf)
		return router, nil
	}

	vision, err := openai.NewVisionOCR(cfg.OpenAIConfig(), llm.Prompts, pdf, cfg.OCR.MaxPages, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision OCR: %w", err)
	}
	router.
		Handle("application/pdf", pdf, vision).
		Handle("image/*", vision)
	return router, nil
}

// ProvideRegistry returns the invoice adapter registry with configured selectors
func ProvideRegistry(cfg *config.Config, logger *zap.Logger) (*invoice.Registry, error) {
	registry := invoice.NewRegistry(logger)
	if len(cfg.AdapterSelectors) > 0 {
		if err := registry.SetSelectors(cfg.AdapterSelectors); err != nil {
			return nil, fmt.Errorf("invalid adapter selectors: %w", err)
		}
	}
	return registry, nil
}

// CoordinatorDeps are the collaborators ProvideCoordinator needs
type CoordinatorDeps struct {
	Config    *config.Config
	Sink      port.CatalogSink
	Extractor pipeline.Extractor
	OCR       port.OCRProvider
	Logger    *zap.Logger
}

// ProvideCoordinator builds the pipeline coordinator
func ProvideCoordinator(deps *CoordinatorDeps) (*pipeline.Coordinator, error) {
	if deps == nil || deps.Config == nil {
		return nil, fmt.Errorf("coordinator dependencies are required")
	}
	cfg := deps.Config

	categories, err := cfg.CategoryEngine()
	if err != nil {
		return nil, err
	}
	prices, err := cfg.PriceAdjuster()
	if err != nil {
		return nil, err
	}
	registry, err := ProvideRegistry(cfg, deps.Logger)
	if err != nil {
		return nil, err
	}

	return pipeline.NewCoordinator(pipeline.Dependencies{
		Normalizer: excel.NewNormalizer(deps.Logger),
		Extractor:  deps.Extractor,
		Registry:   registry,
		Categories: categories,
		Prices:     prices,
		Sink:       deps.Sink,
		OCR:        deps.OCR,
	}, cfg.PipelineConfig(), deps.Logger)
}
