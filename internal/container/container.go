package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/config"
	"github.com/garyjia/supplier-ingest/internal/pipeline"
	"github.com/garyjia/supplier-ingest/internal/report"
	"github.com/garyjia/supplier-ingest/internal/storage"
	"github.com/garyjia/supplier-ingest/pkg/database"
)

// Options adjust how the container wires the pipeline
type Options struct {
	// DryRun keeps all catalog writes in memory; the database is not opened
	DryRun bool
}

// Container manages all pipeline dependencies and their lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config  *config.Config
	options Options
	logger  *zap.Logger

	// Infrastructure - Data
	db   *database.DB
	sink port.CatalogSink

	// Infrastructure - External
	llm       *LLMBundle
	extractor pipeline.Extractor
	ocr       port.OCRProvider

	// Infrastructure - Output
	archive *storage.RunArchive
	reports *report.ExcelWriter

	// Application
	coordinator *pipeline.Coordinator

	// Lifecycle
	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, opts Options, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config:  cfg,
		options: opts,
		logger:  logger,
	}, nil
}

// Start initializes all components:
// 1. Database and catalog sink
// 2. External clients (OpenAI, OCR)
// 3. Run archive and report writer
// 4. Pipeline coordinator
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Debug("Starting container initialization", zap.Bool("dry_run", c.options.DryRun))

	if err := c.initSink(ctx); err != nil {
		c.closeResources()
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}

	if err := c.initExternalClients(); err != nil {
		c.closeResources()
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}

	c.archive = storage.NewRunArchive(c.config.Output.Dir, c.logger)
	c.reports = report.NewExcelWriter(c.logger)

	coordinator, err := ProvideCoordinator(&CoordinatorDeps{
		Config:    c.config,
		Sink:      c.sink,
		Extractor: c.extractor,
		OCR:       c.ocr,
		Logger:    c.logger,
	})
	if err != nil {
		c.closeResources()
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	c.coordinator = coordinator

	c.ready.Store(true)
	c.logger.Debug("Container started")
	return nil
}

func (c *Container) initSink(ctx context.Context) error {
	if !c.options.DryRun {
		bundle, err := ProvideDatabase(ctx, c.config.DatabaseConfig(), c.logger)
		if err != nil {
			return err
		}
		c.db = bundle.DB
		if bundle.Applied > 0 {
			c.logger.Info("Catalog schema migrated", zap.Int("applied", bundle.Applied))
		}
	}

	sink, err := ProvideSink(c.db, c.options.DryRun, c.logger)
	if err != nil {
		return err
	}
	c.sink = sink
	return nil
}

func (c *Container) initExternalClients() error {
	llm, err := ProvideLLM(c.config, c.logger)
	if err != nil {
		return err
	}
	c.llm = llm

	extractor, err := ProvideExtractor(llm, c.config, c.logger)
	if err != nil {
		return err
	}
	c.extractor = extractor

	provider, err := ProvideOCR(llm, c.config, c.logger)
	if err != nil {
		return err
	}
	c.ocr = provider
	return nil
}

// Close releases the database. Calling it twice is an error.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}
	c.closed.Store(true)
	c.ready.Store(false)

	if err := c.closeResources(); err != nil {
		return err
	}
	c.logger.Debug("Container closed")
	return nil
}

func (c *Container) closeResources() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		c.logger.Error("Failed to close database", zap.Error(err))
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	switch {
	case c.options.DryRun:
		status.Components["database"] = ComponentHealth{Healthy: true, Message: "dry run, in memory"}
	case c.db == nil:
		status.Components["database"] = ComponentHealth{Healthy: false, Message: "not initialized"}
	default:
		if err := c.db.PingContext(ctx); err != nil {
			status.Components["database"] = ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)}
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	}

	if c.llm != nil && c.llm.Client != nil {
		status.Components["llm"] = ComponentHealth{Healthy: true, Message: c.config.OpenAI.Model}
	} else {
		status.Components["llm"] = ComponentHealth{Healthy: false, Message: "no api key configured"}
	}

	if c.coordinator != nil {
		status.Components["pipeline"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["pipeline"] = ComponentHealth{Healthy: false, Message: "not initialized"}
	}

	// the model is optional, so only the catalog and the pipeline decide overall health
	status.Overall = status.Components["database"].Healthy && status.Components["pipeline"].Healthy
	return status
}

// Getters for accessing container components

// Coordinator returns the pipeline coordinator.
func (c *Container) Coordinator() *pipeline.Coordinator {
	return c.coordinator
}

// Sink returns the catalog sink.
func (c *Container) Sink() port.CatalogSink {
	return c.sink
}

// OCR returns the document recognition provider.
func (c *Container) OCR() port.OCRProvider {
	return c.ocr
}

// Archive returns the run archive.
func (c *Container) Archive() *storage.RunArchive {
	return c.archive
}

// Reports returns the report writer.
func (c *Container) Reports() *report.ExcelWriter {
	return c.reports
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
