// Package pipeline runs price-list and invoice imports end to end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/catalog"
	"github.com/garyjia/supplier-ingest/internal/categorize"
	"github.com/garyjia/supplier-ingest/internal/excel"
	"github.com/garyjia/supplier-ingest/internal/extraction"
	"github.com/garyjia/supplier-ingest/internal/invoice"
	"github.com/garyjia/supplier-ingest/internal/locale"
	"github.com/garyjia/supplier-ingest/internal/models"
	"github.com/garyjia/supplier-ingest/pkg/utils"
)

// Extractor turns normalized rows into product candidates
type Extractor interface {
	Extract(ctx context.Context, req extraction.Request, rec models.Recorder) (*extraction.Result, error)
}

// Config holds coordinator limits
type Config struct {
	SinkTimeout    time.Duration
	OverallTimeout time.Duration
	// GracefulWriteTimeout bounds the writes of already extracted products after cancellation
	GracefulWriteTimeout time.Duration
	// FallbackCategory is assigned when neither keywords, the model nor supplier defaults yield one
	FallbackCategory string
	// SimilarSupplierDistance is the edit distance under which a new supplier name triggers a warning.
	// Zero disables the check.
	SimilarSupplierDistance int
	ProgressInterval        time.Duration
	ProgressEvery           int
}

func DefaultConfig() Config {
	return Config{
		SinkTimeout:             30 * time.Second,
		OverallTimeout:          15 * time.Minute,
		GracefulWriteTimeout:    5 * time.Second,
		FallbackCategory:        categorize.FallbackCategory,
		SimilarSupplierDistance: 2,
		ProgressInterval:        DefaultProgressInterval,
		ProgressEvery:           DefaultProgressEvery,
	}
}

func (c Config) validate() error {
	switch {
	case c.SinkTimeout <= 0:
		return fmt.Errorf("sink timeout must be positive, got %s", c.SinkTimeout)
	case c.OverallTimeout <= 0:
		return fmt.Errorf("overall timeout must be positive, got %s", c.OverallTimeout)
	case c.GracefulWriteTimeout < 0:
		return fmt.Errorf("graceful write timeout must not be negative, got %s", c.GracefulWriteTimeout)
	case c.FallbackCategory == "":
		return fmt.Errorf("fallback category must not be empty")
	case c.SimilarSupplierDistance < 0:
		return fmt.Errorf("similar supplier distance must not be negative")
	}
	return nil
}

// Dependencies are the collaborators of a Coordinator. OCR is only needed by ImportInvoiceDocument.
type Dependencies struct {
	Normalizer *excel.Normalizer
	Extractor  Extractor
	Registry   *invoice.Registry
	Categories *categorize.Engine
	Prices     *locale.PriceAdjuster
	Sink       port.CatalogSink
	OCR        port.OCRProvider
}

// Coordinator is the public entry point of the pipeline. Every call builds its own
// Catalog Index, so concurrent runs share no mutable state.
type Coordinator struct {
	deps     Dependencies
	cfg      Config
	progress ProgressFunc
	logger   *zap.Logger
}

// NewCoordinator validates deps and cfg
func NewCoordinator(deps Dependencies, cfg Config, logger *zap.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("catalog sink is required")
	}
	if deps.Normalizer == nil {
		deps.Normalizer = excel.NewNormalizer(logger)
	}
	if deps.Registry == nil {
		deps.Registry = invoice.NewRegistry(logger)
	}
	if deps.Categories == nil {
		deps.Categories = categorize.Default()
	}
	if deps.Prices == nil {
		prices, err := locale.NewPriceAdjuster(locale.DefaultMultipliers())
		if err != nil {
			return nil, err
		}
		deps.Prices = prices
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return &Coordinator{deps: deps, cfg: cfg, logger: logger}, nil
}

// OnProgress registers the progress callback used by later runs
func (c *Coordinator) OnProgress(fn ProgressFunc) {
	c.progress = fn
}

// RunLevelRow is the row index of failures that abort the whole call
const RunLevelRow = -1

// run is the per-call state shared by both import paths
type run struct {
	id       string
	started  time.Time
	result   *models.ImportResult
	warnings *models.Warnings
	progress *progress
	logger   *zap.Logger
}

func (c *Coordinator) newRun(source string) *run {
	id := uuid.NewString()
	res := models.NewImportResult(id)
	res.Source = source
	return &run{
		id:       id,
		started:  time.Now(),
		result:   res,
		warnings: &models.Warnings{},
		progress: newProgress(c.progress, id, c.cfg.ProgressInterval, c.cfg.ProgressEvery),
		logger:   c.logger.With(zap.String("run_id", id)),
	}
}

// finish seals the result. When the run context is done the outcome is a cancellation
// (or overall timeout) whatever err the interrupted step returned.
func (r *run) finish(ctx context.Context, err error) (*models.ImportResult, error) {
	r.result.Warnings = append(r.result.Warnings, r.warnings.List()...)
	r.result.DurationMS = time.Since(r.started).Milliseconds()

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		if err != nil {
			r.logger.Debug("Step interrupted by overall timeout", zap.Error(err))
		}
		r.result.Cancelled = true
		err = fmt.Errorf("%w: run exceeded its overall timeout", models.ErrTimeout)
	case ctx.Err() != nil:
		if err != nil {
			r.logger.Debug("Step interrupted by cancellation", zap.Error(err))
		}
		r.result.Cancelled = true
		err = fmt.Errorf("%w: %w", models.ErrCancelled, context.Cause(ctx))
	case err != nil:
		// run-level failure: no single row is to blame
		r.result.Failed = append(r.result.Failed, models.FailedItem{
			RowIndex: RunLevelRow,
			Kind:     models.KindOf(err),
			Message:  err.Error(),
		})
	}

	fields := []zap.Field{
		zap.Int("created", len(r.result.Created)),
		zap.Int("updated", len(r.result.Updated)),
		zap.Int("failed", len(r.result.Failed)),
		zap.Int("warnings", len(r.result.Warnings)),
		zap.Int64("duration_ms", r.result.DurationMS),
		zap.Bool("cancelled", r.result.Cancelled),
	}
	if err != nil {
		r.logger.Warn("Import finished with error", append(fields, zap.Error(err))...)
	} else {
		r.logger.Info("Import finished", fields...)
	}
	return r.result, err
}

// sinkCall bounds a single sink call by the sink timeout
func sinkCall[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(sctx)
}

// resolveSupplier returns the catalog id of s, creating the supplier when unknown.
// Near-identical names of existing suppliers are reported as warnings.
func (c *Coordinator) resolveSupplier(ctx context.Context, r *run, idx *catalog.Index, s models.Supplier) (int64, error) {
	if s.VAT != "" {
		if err := utils.ValidateVAT(s.VAT); err != nil {
			models.Warn(r.warnings, models.KindNotice, "supplier", "%s: %v", s.Name, err)
		}
	}
	if s.Email != "" {
		if err := utils.ValidateEmail(s.Email); err != nil {
			models.Warn(r.warnings, models.KindNotice, "supplier", "%s: %v", s.Name, err)
		}
	}

	if existing, ok := idx.FindSupplier(s.VAT, s.Name, s.Email); ok {
		if s.VAT == "" && s.Email == "" {
			return existing.ID, nil
		}
	} else if c.cfg.SimilarSupplierDistance > 0 {
		for _, similar := range idx.SimilarSuppliers(s.Name, c.cfg.SimilarSupplierDistance) {
			models.Warn(r.warnings, models.KindDuplicate, "supplier",
				"new supplier %q resembles existing supplier %q (id %d)", s.Name, similar.Name, similar.ID)
		}
	}

	id, err := sinkCall(ctx, c.cfg.SinkTimeout, func(ctx context.Context) (int64, error) {
		return c.deps.Sink.UpsertSupplier(ctx, s)
	})
	if err != nil {
		return 0, err
	}
	idx.RecordSupplier(models.SupplierRecord{ID: id, Supplier: s})
	r.logger.Info("Supplier resolved", zap.String("supplier", s.Name), zap.Int64("supplier_id", id))
	return id, nil
}
