package invoice

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/supplier-ingest/internal/locale"
	"github.com/garyjia/supplier-ingest/internal/models"
)

const AdapterALMCE = "almce"

const almceSupplierName = "ALMCE S.L."

var (
	almceCIF    = regexp.MustCompile(`(?i)C\.?\s*I\.?\s*F\.?\s*:?\s*([A-Z]-?\d{7,8}[A-Z0-9]?)`)
	almceDate   = regexp.MustCompile(`\|[ \t]*(\d{2}/\d{2}/\d{2,4})[ \t]*\|`)
	almceNumber = regexp.MustCompile(`\|[ \t]*(\d{8,})[ \t]*\|`)
	almceLine   = regexp.MustCompile(`\|[ \t]*(?P<code>\d+)[ \t]*\|(?P<desc>[^|\n]*)\|[ \t]*(?P<qty>-?\d+(?:[.,]\d+)?)[ \t]*\|[ \t]*(?P<price>-?[\d.,]+(?:[ \t]+-?[\d.,]+)*)[ \t]*\|[ \t]*(?P<total>-?[\d.,]+)[ \t]*\|`)

	almceTotalImp   = regexp.MustCompile(`TOTAL IMP\.[^|\n]+\|[ \t]*(-?\d[\d.,]*)`)
	almceTotalLoose = regexp.MustCompile(`TOTAL IMP\.[^\n]*?(-?\d[\d.,]*\d)[ \t|€]*$`)
	almceTotalPay   = regexp.MustCompile(`(?i)(?:TOTAL FACTURA|A PAGAR)[^\d\n-]*(-?\d[\d.,]*\d)`)
)

// equivalence surcharge regime: 21% VAT + 5.2% surcharge
var (
	vatGeneral         = decimal.NewFromInt(21)
	surchargeGeneral   = decimal.RequireFromString("5.2")
	surchargeRatio     = decimal.RequireFromString("0.262")
	surchargeTolerance = decimal.RequireFromString("0.005")
	hundred            = decimal.NewFromInt(100)
)

// ALMCEAdapter parses ALMCE invoices and delivery notes rendered as markdown tables by OCR
type ALMCEAdapter struct{}

func NewALMCEAdapter() *ALMCEAdapter {
	return &ALMCEAdapter{}
}

func (a *ALMCEAdapter) Name() string {
	return AdapterALMCE
}

func (a *ALMCEAdapter) Parse(doc Document, rec models.Recorder) (models.Invoice, error) {
	text := doc.Text
	rec = models.Scoped(rec, AdapterALMCE)

	supplier := models.Supplier{Name: almceSupplierName}
	if m := almceCIF.FindStringSubmatch(text); m != nil {
		supplier.VAT = strings.ToUpper(m[1])
	} else {
		models.Warn(rec, models.KindParse, "header", "supplier VAT not found")
	}

	lines := parseALMCELines(text, rec)
	if len(lines) == 0 {
		lines = ParsePipeTable(text, rec)
	}
	if len(lines) == 0 {
		return models.Invoice{}, models.ErrInvoiceParse
	}

	// The number sits in the header table, above the first article row.
	header := text
	if loc := almceLine.FindStringIndex(text); loc != nil {
		header = text[:loc[0]]
	}
	number := "UNKNOWN"
	if m := almceNumber.FindStringSubmatch(header); m != nil {
		number = m[1]
	} else {
		models.Warn(rec, models.KindParse, "header", "invoice number not found, using UNKNOWN")
	}

	date := headerDate(text, rec)

	inv := models.Invoice{
		Supplier: supplier,
		Number:   number,
		Date:     date,
		Type:     detectType(text, lines),
		Currency: models.DefaultCurrency,
		Lines:    lines,
	}
	inv.Totals = computeTotals(inv.LineSum(), findGrandTotal(text), rec)
	return models.NewInvoice(inv)
}

func parseALMCELines(text string, rec models.Recorder) []models.InvoiceLine {
	var lines []models.InvoiceLine
	for _, m := range almceLine.FindAllStringSubmatch(text, -1) {
		code := m[almceLine.SubexpIndex("code")]
		scope := "line " + code

		qty, err := locale.TryParseDecimal(m[almceLine.SubexpIndex("qty")])
		if err != nil {
			models.Warn(rec, models.KindParse, scope, "line skipped: quantity: %v", err)
			continue
		}
		priceTokens := strings.Fields(m[almceLine.SubexpIndex("price")])
		price, err := locale.TryParseDecimal(priceTokens[0])
		if err != nil {
			models.Warn(rec, models.KindParse, scope, "line skipped: unit price: %v", err)
			continue
		}
		total, err := locale.TryParseDecimal(m[almceLine.SubexpIndex("total")])
		if err != nil {
			models.Warn(rec, models.KindParse, scope, "line skipped: line total: %v", err)
			continue
		}

		line := models.InvoiceLine{
			Code:        code,
			Description: m[almceLine.SubexpIndex("desc")],
			Qty:         qty,
			PriceUnit:   price,
			Subtotal:    total,
		}
		// ALMCE prints the taxable base right after the unit price
		if len(priceTokens) > 1 {
			if base, err := locale.TryParseDecimal(priceTokens[1]); err == nil {
				line.TaxBase = &base
			}
		}

		line, err = models.NewInvoiceLine(line)
		if err != nil {
			models.Warn(rec, models.KindValidation, scope, "line skipped: %v", err)
			continue
		}
		if line.Mismatch {
			models.Warn(rec, models.KindMismatch, scope, "subtotal %s differs from %s x %s", line.Subtotal, line.Qty, line.PriceUnit)
		}
		lines = append(lines, line)
	}
	return lines
}

func headerDate(text string, rec models.Recorder) models.Date {
	m := almceDate.FindStringSubmatch(text)
	if m == nil {
		models.Warn(rec, models.KindParse, "header", "invoice date not found, using today")
		return models.Today()
	}
	d, ok := locale.ParseDate(m[1])
	if !ok {
		models.Warn(rec, models.KindParse, "header", "invoice date %q unparseable, using today", m[1])
		return models.Today()
	}
	return d
}

// findGrandTotal returns the printed grand total, nil when the document has none
func findGrandTotal(text string) *decimal.Decimal {
	for _, re := range []*regexp.Regexp{almceTotalImp, almceTotalLoose, almceTotalPay} {
		for _, line := range strings.Split(text, "\n") {
			m := re.FindStringSubmatch(strings.TrimRight(line, " \t\r"))
			if m == nil {
				continue
			}
			if v, err := locale.TryParseDecimal(m[1]); err == nil {
				return &v
			}
		}
	}
	return nil
}

func detectType(text string, lines []models.InvoiceLine) models.InvoiceType {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "ABONO"), strings.Contains(upper, "RECTIFICATIVA"):
		return models.InvoiceTypeCredit
	case strings.Contains(upper, "ALBARAN"), strings.Contains(upper, "ALBARÁN"):
		return models.InvoiceTypeDeliveryNote
	}
	for _, l := range lines {
		if !l.Qty.IsNegative() {
			return models.InvoiceTypeInvoice
		}
	}
	return models.InvoiceTypeCredit
}

// computeTotals derives tax from grand total and line base.
// A 26.2% ratio is split into VAT plus equivalence surcharge.
func computeTotals(base decimal.Decimal, grand *decimal.Decimal, rec models.Recorder) models.Totals {
	t := models.Totals{Base: base, GrandTotal: base}
	if grand == nil {
		models.Warn(rec, models.KindParse, "totals", "grand total not found, using line sum")
		return t
	}
	if grand.Abs().LessThan(base.Abs()) {
		models.Warn(rec, models.KindValidation, "totals", "grand total %s below line sum %s, using line sum", grand, base)
		return t
	}

	t.GrandTotal = *grand
	t.TaxAmount = grand.Sub(base)
	if base.IsZero() {
		return t
	}

	ratio := t.TaxAmount.Div(base)
	if ratio.Sub(surchargeRatio).Abs().LessThanOrEqual(surchargeTolerance) {
		t.TaxRate = vatGeneral
		vat := base.Mul(vatGeneral).Div(hundred).Round(2)
		t.TaxAmount = vat
		t.SurchargeRate = decimal.NewNullDecimal(surchargeGeneral)
		t.SurchargeAmount = decimal.NewNullDecimal(grand.Sub(base).Sub(vat))
		return t
	}
	t.TaxRate = ratio.Mul(hundred).Round(2)
	return t
}
