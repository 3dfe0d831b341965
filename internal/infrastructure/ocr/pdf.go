// Package ocr provides text recognition for supplier documents: the embedded text layer of
// PDFs through MuPDF, plain text passthrough and a content-type router.
package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/models"
	"github.com/garyjia/supplier-ingest/pkg/utils"
)

// DefaultMaxPages bounds the pages read from one document
const DefaultMaxPages = 10

const renderDPI = 200

// PDFText reads the text layer of digital PDFs and rasterizes pages for vision OCR
type PDFText struct {
	maxPages int
	logger   *zap.Logger
}

func NewPDFText(maxPages int, logger *zap.Logger) *PDFText {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &PDFText{maxPages: maxPages, logger: logger}
}

// OCR returns the text layer of every page. Scanned PDFs yield blank text, not an error.
func (p *PDFText) OCR(ctx context.Context, document []byte, contentType string) (*port.OCRResult, error) {
	if len(document) == 0 {
		return &port.OCRResult{FullText: ""}, nil
	}

	doc, err := fitz.NewFromMemory(document)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open PDF: %w", models.ErrAdapter, err)
	}
	defer doc.Close()

	total := doc.NumPage()
	n := min(total, p.maxPages)
	pages := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read text of page %d: %w", models.ErrAdapter, i+1, err)
		}
		pages = append(pages, strings.TrimSpace(utils.SanitizeString(text)))
	}

	p.logger.Debug("PDF text layer read",
		zap.Int("pages", n),
		zap.Int("total_pages", total))

	return &port.OCRResult{
		FullText: strings.TrimSpace(strings.Join(pages, "\n\n")),
		Pages:    pages,
		Metadata: map[string]string{
			"provider":    "pdf_text",
			"pages":       strconv.Itoa(n),
			"total_pages": strconv.Itoa(total),
		},
	}, nil
}

// RenderPages rasterizes up to maxPages pages as PNG. maxPages <= 0 uses the provider limit.
func (p *PDFText) RenderPages(ctx context.Context, document []byte, maxPages int) ([][]byte, error) {
	if maxPages <= 0 {
		maxPages = p.maxPages
	}
	doc, err := fitz.NewFromMemory(document)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open PDF: %w", models.ErrAdapter, err)
	}
	defer doc.Close()

	n := min(doc.NumPage(), maxPages)
	images := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImagePNG(i, renderDPI)
		if err != nil {
			p.logger.Warn("Failed to render page", zap.Int("page", i+1), zap.Error(err))
			continue
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no page of the PDF could be rendered", models.ErrAdapter)
	}
	return images, nil
}
