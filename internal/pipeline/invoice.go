package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/catalog"
	"github.com/garyjia/supplier-ingest/internal/models"
)

// UnknownInvoiceNumber is what adapters report when a document carries no number
const UnknownInvoiceNumber = "UNKNOWN"

// ImportInvoice parses OCR output with the adapter registry and records the purchase.
// It is idempotent on (supplier, invoice number): a known purchase is reported in
// result.Updated and nothing is written.
//
// Adapter failures abort before any write.
func (c *Coordinator) ImportInvoice(ctx context.Context, ocr *port.OCRResult) (*models.ImportResult, error) {
	r := c.newRun("")
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OverallTimeout)
	defer cancel()

	return c.importInvoice(ctx, r, ocr)
}

// ImportInvoiceDocument runs OCR on a PDF or image and then imports the invoice
func (c *Coordinator) ImportInvoiceDocument(ctx context.Context, document []byte, contentType string) (*models.ImportResult, error) {
	r := c.newRun(contentType)
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OverallTimeout)
	defer cancel()

	if c.deps.OCR == nil {
		return r.finish(ctx, fmt.Errorf("%w: no OCR provider configured", models.ErrAdapter))
	}

	r.progress.start(PhaseOCR, 1)
	ocr, err := c.deps.OCR.OCR(ctx, document, contentType)
	if err != nil {
		return r.finish(ctx, err)
	}
	r.progress.finish(1, 0)
	r.logger.Info("Document recognized",
		zap.String("content_type", contentType),
		zap.Int("bytes", len(document)),
		zap.Int("pages", len(ocr.Pages)),
		zap.Int("text_length", len(ocr.FullText)))

	return c.importInvoice(ctx, r, ocr)
}

func (c *Coordinator) importInvoice(ctx context.Context, r *run, ocr *port.OCRResult) (*models.ImportResult, error) {
	inv, err := c.deps.Registry.Parse(ocr, r.warnings)
	if err != nil {
		return r.finish(ctx, err)
	}
	r.logger = r.logger.With(zap.String("supplier", inv.Supplier.Name), zap.String("number", inv.Number))
	if inv.Number == UnknownInvoiceNumber {
		models.Warn(r.warnings, models.KindNotice, "invoice",
			"invoice without number; later documents without number from %s resolve to this purchase", inv.Supplier.Name)
	}

	idx := catalog.NewIndex(r.logger)
	if err := idx.Load(ctx, c.deps.Sink); err != nil {
		return r.finish(ctx, err)
	}

	supplierID, err := c.resolveSupplier(ctx, r, idx, inv.Supplier)
	if err != nil {
		return r.finish(ctx, err)
	}

	existing, found, err := sinkFind(ctx, c.cfg.SinkTimeout, func(ctx context.Context) (int64, bool, error) {
		return c.deps.Sink.FindPurchase(ctx, supplierID, inv.Number)
	})
	if err != nil {
		return r.finish(ctx, err)
	}
	if found {
		r.logger.Info("Purchase already imported", zap.Int64("purchase_id", existing))
		r.result.Updated = append(r.result.Updated, existing)
		return r.finish(ctx, nil)
	}

	r.progress.start(PhaseInvoice, len(inv.Lines))
	productIDs := make([]int64, len(inv.Lines))
	for i, line := range inv.Lines {
		if ctx.Err() != nil {
			return r.finish(ctx, nil)
		}
		id, err := c.ensureLineProduct(ctx, idx, supplierID, line)
		if err != nil {
			r.result.AddFailure(i, fmt.Errorf("line %d (%s): %w", i+1, line.Code, err))
			r.progress.step(false)
			continue
		}
		productIDs[i] = id
		r.progress.step(true)
	}

	purchaseID, err := sinkCall(ctx, c.cfg.SinkTimeout, func(ctx context.Context) (int64, error) {
		return c.deps.Sink.CreatePurchase(ctx, supplierID, inv, productIDs)
	})
	if err != nil {
		return r.finish(ctx, err)
	}
	r.result.Created = append(r.result.Created, purchaseID)
	r.logger.Info("Purchase recorded",
		zap.Int64("purchase_id", purchaseID),
		zap.Int("lines", len(inv.Lines)),
		zap.String("grand_total", inv.Totals.GrandTotal.StringFixed(2)))
	return r.finish(ctx, nil)
}

func (c *Coordinator) ensureLineProduct(ctx context.Context, idx *catalog.Index, supplierID int64, line models.InvoiceLine) (int64, error) {
	if p, kind := idx.FindProduct(supplierID, line.Code, ""); kind == models.MatchByCode {
		return p.ID, nil
	}
	id, err := sinkCall(ctx, c.cfg.SinkTimeout, func(ctx context.Context) (int64, error) {
		return c.deps.Sink.EnsureProduct(ctx, supplierID, line.Code, line.Description)
	})
	if err != nil {
		return 0, err
	}
	idx.RecordProduct(models.ProductRecord{ID: id, Code: line.Code, Name: line.Description, SupplierID: supplierID})
	return id, nil
}

func sinkFind[T, U any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, U, error)) (T, U, error) {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(sctx)
}
