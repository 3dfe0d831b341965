package invoice

import (
	"regexp"
	"strings"

	"github.com/garyjia/supplier-ingest/internal/models"
)

const AdapterGeneric = "generic"

var (
	genericVAT    = regexp.MustCompile(`(?i)(?:C\.?\s*I\.?\s*F\.?|N\.?\s*I\.?\s*F\.?|VAT)\s*:?\s*([A-Z]{0,2}-?[A-Z0-9]?\d{7,8}[A-Z0-9]?)`)
	genericNumber = regexp.MustCompile(`(?i)(?:FACTURA|INVOICE|ALBAR[AÁ]N)\s*(?:N[º°o.]*|NUM(?:ERO)?\.?|#)?\s*:?\s*([A-Z0-9][A-Z0-9/-]{2,})`)
)

// GenericAdapter handles suppliers without a dedicated layout: pipe tables plus labelled header fields.
// It is routed explicitly through a selector; the selector token becomes the supplier name.
type GenericAdapter struct{}

func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{}
}

func (a *GenericAdapter) Name() string {
	return AdapterGeneric
}

func (a *GenericAdapter) Parse(doc Document, rec models.Recorder) (models.Invoice, error) {
	rec = models.Scoped(rec, AdapterGeneric)

	lines := ParsePipeTable(doc.Text, rec)
	if len(lines) == 0 {
		return models.Invoice{}, models.ErrInvoiceParse
	}

	name := strings.TrimSpace(doc.Token)
	if name == "" {
		name = "UNKNOWN"
	}
	supplier := models.Supplier{Name: name}
	if m := genericVAT.FindStringSubmatch(doc.Text); m != nil {
		supplier.VAT = strings.ToUpper(m[1])
	}

	number := "UNKNOWN"
	if m := genericNumber.FindStringSubmatch(doc.Text); m != nil {
		number = strings.ToUpper(m[1])
	} else {
		models.Warn(rec, models.KindParse, "header", "invoice number not found, using UNKNOWN")
	}

	inv := models.Invoice{
		Supplier: supplier,
		Number:   number,
		Date:     headerDate(doc.Text, rec),
		Type:     detectType(doc.Text, lines),
		Currency: models.DefaultCurrency,
		Lines:    lines,
	}
	inv.Totals = computeTotals(inv.LineSum(), findGrandTotal(doc.Text), rec)
	return models.NewInvoice(inv)
}
