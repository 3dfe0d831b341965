package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/supplier-ingest/internal/catalog"
	"github.com/garyjia/supplier-ingest/internal/extraction"
	"github.com/garyjia/supplier-ingest/internal/models"
	"github.com/garyjia/supplier-ingest/pkg/utils"
)

// ImportPriceList normalizes the workbook at path, extracts products with the model and
// upserts them. supplierHint names the supplier; when empty the workbook's provider hint is used.
//
// The returned result is never nil. Row-level problems land in result.Failed; an unreadable
// workbook, an unreachable catalog, cancellation or the overall timeout also return an error.
func (c *Coordinator) ImportPriceList(ctx context.Context, path, supplierHint string) (*models.ImportResult, error) {
	r := c.newRun(path)
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OverallTimeout)
	defer cancel()

	if c.deps.Extractor == nil {
		return r.finish(ctx, fmt.Errorf("%w: no extractor configured", models.ErrExtraction))
	}

	r.progress.start(PhaseNormalize, 1)
	norm, err := c.deps.Normalizer.Normalize(path, r.warnings)
	if err != nil {
		return r.finish(ctx, err)
	}
	r.progress.finish(1, 0)
	if !norm.BusinessRules.Empty() {
		r.result.BusinessRules = norm.BusinessRules
	}

	supplierName := strings.TrimSpace(supplierHint)
	if supplierName == "" {
		supplierName = norm.ProviderHint
	}
	r.logger = r.logger.With(zap.String("supplier", supplierName))
	r.logger.Info("Workbook normalized",
		zap.String("path", path),
		zap.Int("rows", len(norm.Rows)),
		zap.Int("sheets", len(norm.Sheets)),
		zap.Bool("business_rules", r.result.BusinessRules != nil))

	if len(norm.Rows) == 0 {
		return r.finish(ctx, nil)
	}

	idx := catalog.NewIndex(r.logger)
	if err := idx.Load(ctx, c.deps.Sink); err != nil {
		return r.finish(ctx, err)
	}

	r.progress.start(PhaseExtract, len(norm.Rows))
	ext, err := c.deps.Extractor.Extract(ctx, extraction.Request{
		Rows:     norm.Rows,
		Supplier: supplierName,
		Rules:    norm.BusinessRules,
		OnChunk: func(o models.ChunkOutcome) {
			r.progress.advance(o.Rows, o.OK)
		},
	}, r.warnings)
	if err != nil {
		return r.finish(ctx, err)
	}
	r.result.Chunks = ext.Ledger
	c.recordChunkFailures(r, norm.Rows, ext.Ledger)
	okRows, failedRows := ledgerRows(ext.Ledger)
	r.progress.finish(okRows, failedRows)

	if len(ext.Candidates) == 0 {
		return r.finish(ctx, nil)
	}

	// products of chunks that finished before cancellation are still written, within a grace period
	writeCtx := ctx
	if ext.Cancelled || ctx.Err() != nil {
		r.logger.Warn("Run cancelled, writing products of finished chunks",
			zap.Int("candidates", len(ext.Candidates)),
			zap.Duration("grace", c.cfg.GracefulWriteTimeout))
		var cancelWrites context.CancelFunc
		writeCtx, cancelWrites = context.WithTimeout(context.WithoutCancel(ctx), c.cfg.GracefulWriteTimeout)
		defer cancelWrites()
	}

	var supplier *models.Supplier
	var supplierID int64
	if supplierName != "" {
		s, err := models.NewSupplier(models.Supplier{Name: supplierName})
		if err != nil {
			return r.finish(ctx, err)
		}
		if supplierID, err = c.resolveSupplier(writeCtx, r, idx, s); err != nil {
			return r.finish(ctx, err)
		}
		supplier = &s
	} else {
		models.Warn(r.warnings, models.KindNotice, "supplier", "no supplier given or detected; products are stored without supplier")
	}

	c.upsertCandidates(writeCtx, r, idx, ext.Candidates, supplier, supplierID)
	return r.finish(ctx, nil)
}

// recordChunkFailures reports every failed chunk once, indexed by its first row
func (c *Coordinator) recordChunkFailures(r *run, rows []models.RawRow, ledger []models.ChunkOutcome) {
	first := 0
	for _, o := range ledger {
		if !o.OK {
			line := 0
			if first < len(rows) {
				line = rows[first].Line
			}
			r.result.Failed = append(r.result.Failed, models.FailedItem{
				RowIndex: first,
				Kind:     o.Kind,
				Message:  fmt.Sprintf("chunk %d (%d rows from sheet line %d): %s", o.Index, o.Rows, line, o.Error),
			})
		}
		first += o.Rows
	}
}

// ledgerRows sums the rows of successful and failed chunks
func ledgerRows(ledger []models.ChunkOutcome) (ok, failed int) {
	for _, o := range ledger {
		if o.OK {
			ok += o.Rows
		} else {
			failed += o.Rows
		}
	}
	return ok, failed
}

// upsertCandidates writes candidates in merge order. Failures are per candidate;
// a cancelled context stops the loop.
func (c *Coordinator) upsertCandidates(ctx context.Context, r *run, idx *catalog.Index, candidates []extraction.Candidate, supplier *models.Supplier, supplierID int64) {
	r.progress.start(PhaseUpsert, len(candidates))
	seen := make(map[int64]bool)
	supplierName := ""
	if supplier != nil {
		supplierName = supplier.Name
	}

	for i, cand := range candidates {
		if ctx.Err() != nil {
			r.logger.Warn("Upserts interrupted", zap.Int("done", i), zap.Int("total", len(candidates)))
			return
		}

		product, err := c.buildProduct(cand, supplier, supplierName, r.warnings)
		if err != nil {
			r.result.AddFailure(i, fmt.Errorf("product %q: %w", cand.Code, err))
			r.progress.step(false)
			continue
		}

		id, created, err := c.upsertProduct(ctx, idx, product, supplierID, r.warnings)
		if err != nil {
			r.logger.Warn("Upsert failed", zap.String("code", product.Code), zap.Error(err))
			r.result.AddFailure(i, fmt.Errorf("product %q: %w", product.Code, err))
			r.progress.step(false)
			continue
		}

		// a product coalesced within the batch is reported once
		if !seen[id] {
			seen[id] = true
			if created {
				r.result.Created = append(r.result.Created, id)
			} else {
				r.result.Updated = append(r.result.Updated, id)
			}
		}
		r.progress.step(true)
	}
}

// upsertProduct writes one product. A name hit on a product stored under another code is
// not an update: that product keeps its code and the candidate becomes a new product.
func (c *Coordinator) upsertProduct(ctx context.Context, idx *catalog.Index, product models.Product, supplierID int64, rec models.Recorder) (int64, bool, error) {
	ref := idx.FindOrPlanCategory(product.Category)
	if ref.Planned {
		id, err := sinkCall(ctx, c.cfg.SinkTimeout, func(ctx context.Context) (int64, error) {
			return c.deps.Sink.EnsureCategory(ctx, product.Category)
		})
		if err != nil {
			return 0, false, err
		}
		idx.RecordCategory(models.CategoryRecord{ID: id, Category: product.Category})
		ref.ID = id
	}

	existing, kind := idx.FindProduct(supplierID, product.Code, product.Name)
	if kind == models.MatchByName {
		if key := utils.FoldKey(existing.Code); key != "" && key != product.CodeKey() {
			models.Warn(rec, models.KindDuplicate, "product "+product.Code,
				"name %q is already used by product %q; stored as a separate product", product.Name, existing.Code)
			existing, kind = models.ProductRecord{}, models.MatchNone
		}
	}
	hint := models.MatchHint{
		Kind:       kind,
		ExistingID: existing.ID,
		SupplierID: supplierID,
		CategoryID: ref.ID,
	}
	id, err := sinkCall(ctx, c.cfg.SinkTimeout, func(ctx context.Context) (int64, error) {
		return c.deps.Sink.UpsertProduct(ctx, product, hint)
	})
	if err != nil {
		return 0, false, err
	}

	idx.RecordProduct(models.ProductRecord{
		ID:         id,
		Code:       product.Code,
		Name:       product.Name,
		SupplierID: supplierID,
		CategoryID: ref.ID,
	})
	return id, kind == models.MatchNone, nil
}

// buildProduct turns a candidate into a canonical product: net cost, category, margin
func (c *Coordinator) buildProduct(cand extraction.Candidate, supplier *models.Supplier, supplierName string, rec models.Recorder) (models.Product, error) {
	cost := c.deps.Prices.Adjust(supplierName, cand.Cost)
	price := cost
	if cand.Price != nil {
		price = *cand.Price
	}

	category, err := c.resolveCategory(cand, supplierName)
	if err != nil {
		return models.Product{}, err
	}

	product, err := models.NewProduct(models.Product{
		Code:        cand.Code,
		Name:        cand.Name,
		Description: cand.Description,
		Category:    category,
		Supplier:    supplier,
		Cost:        cost,
		Price:       price,
		Barcode:     cand.Barcode,
	})
	if err != nil {
		return models.Product{}, err
	}
	if product.MarginPct != nil && product.MarginPct.IsNegative() {
		models.Warn(rec, models.KindNotice, "product "+product.Code,
			"price %s is below cost %s", product.Price.StringFixed(2), product.Cost.StringFixed(2))
	}
	return product, nil
}

// resolveCategory applies keywords first, then the model's category, then the supplier
// default and finally the fallback bucket
func (c *Coordinator) resolveCategory(cand extraction.Candidate, supplierName string) (models.Category, error) {
	text := strings.TrimSpace(cand.Name + " " + cand.Description)
	if m, ok := c.deps.Categories.Keyword(text); ok {
		return m.Category, nil
	}
	if cand.Category != "" {
		top, err := models.NewCategory(cand.Category, nil)
		if err != nil {
			return models.Category{}, err
		}
		if cand.Subcategory == "" {
			return top, nil
		}
		return models.NewCategory(cand.Subcategory, &top)
	}
	if m, ok := c.deps.Categories.SupplierDefault(supplierName); ok {
		return m.Category, nil
	}
	return models.NewCategory(c.cfg.FallbackCategory, nil)
}
