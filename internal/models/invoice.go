package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/supplier-ingest/pkg/utils"
)

// InvoiceType distinguishes invoices, delivery notes and credit notes
type InvoiceType string

const (
	InvoiceTypeInvoice      InvoiceType = "invoice"
	InvoiceTypeDeliveryNote InvoiceType = "delivery_note"
	InvoiceTypeCredit       InvoiceType = "credit"
)

// DefaultCurrency applies when a document does not state one
const DefaultCurrency = "EUR"

// LineTolerance bounds |subtotal - qty*price_unit| before a line is flagged
var LineTolerance = decimal.RequireFromString("0.01")

// Date is a calendar date serialized as YYYY-MM-DD
type Date struct {
	time.Time
}

const isoLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current UTC date
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(isoLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(isoLayout, *s)
	if err != nil {
		return fmt.Errorf("%w: date %q", ErrParse, *s)
	}
	*d = Date{t}
	return nil
}

// InvoiceLine is one row of an invoice. Qty is negative for returns.
type InvoiceLine struct {
	Code        string           `json:"code"`
	Description string           `json:"description"`
	Qty         decimal.Decimal  `json:"qty"`
	PriceUnit   decimal.Decimal  `json:"price_unit"`
	Subtotal    decimal.Decimal  `json:"subtotal"`
	TaxBase     *decimal.Decimal `json:"tax_base,omitempty"`
	Mismatch    bool             `json:"mismatch,omitempty"`
}

// NewInvoiceLine validates l and sets Mismatch when the subtotal disagrees with qty*price_unit
func NewInvoiceLine(l InvoiceLine) (InvoiceLine, error) {
	l.Code = utils.NormalizeSpace(l.Code)
	l.Description = utils.NormalizeSpace(l.Description)

	switch {
	case l.Code == "":
		return InvoiceLine{}, invalid("invoice line", "code", "must not be empty")
	case l.Description == "":
		return InvoiceLine{}, invalid("invoice line", "description", "must not be empty")
	case l.PriceUnit.IsNegative():
		return InvoiceLine{}, invalid("invoice line", "price_unit", "must not be negative")
	}

	l.Mismatch = l.Subtotal.Sub(l.Qty.Mul(l.PriceUnit)).Abs().GreaterThan(LineTolerance)
	return l, nil
}

// Totals summarizes invoice amounts
type Totals struct {
	Base            decimal.Decimal     `json:"base"`
	TaxRate         decimal.Decimal     `json:"tax_rate"`
	TaxAmount       decimal.Decimal     `json:"tax_amount"`
	SurchargeRate   decimal.NullDecimal `json:"surcharge_rate"`
	SurchargeAmount decimal.NullDecimal `json:"surcharge_amount"`
	GrandTotal      decimal.Decimal     `json:"grand_total"`
}

// Validate checks grand_total >= base. Credit notes are compared by magnitude.
func (t Totals) Validate() error {
	if t.GrandTotal.Abs().LessThan(t.Base.Abs()) {
		return invalid("totals", "grand_total", fmt.Sprintf("%s is below base %s", t.GrandTotal, t.Base))
	}
	return nil
}

// Invoice is a supplier invoice, delivery note or credit note in canonical form
type Invoice struct {
	Supplier     Supplier      `json:"supplier"`
	Number       string        `json:"number"`
	Date         Date          `json:"date"`
	Type         InvoiceType   `json:"type"`
	Currency     string        `json:"currency"`
	Totals       Totals        `json:"totals"`
	Lines        []InvoiceLine `json:"lines"`
	PaymentTerms string        `json:"payment_terms,omitempty"`
}

// NewInvoice validates inv, defaulting type and currency
func NewInvoice(inv Invoice) (Invoice, error) {
	sup, err := NewSupplier(inv.Supplier)
	if err != nil {
		return Invoice{}, err
	}
	inv.Supplier = sup
	inv.Number = utils.NormalizeSpace(inv.Number)
	inv.Currency = strings.ToUpper(strings.TrimSpace(inv.Currency))
	inv.PaymentTerms = utils.NormalizeSpace(inv.PaymentTerms)
	if inv.Type == "" {
		inv.Type = InvoiceTypeInvoice
	}
	if inv.Currency == "" {
		inv.Currency = DefaultCurrency
	}

	switch {
	case inv.Number == "":
		return Invoice{}, invalid("invoice", "number", "must not be empty")
	case inv.Date.IsZero():
		return Invoice{}, invalid("invoice", "date", "must be set")
	case len(inv.Lines) == 0:
		return Invoice{}, invalid("invoice", "lines", "must not be empty")
	}
	switch inv.Type {
	case InvoiceTypeInvoice, InvoiceTypeDeliveryNote, InvoiceTypeCredit:
	default:
		return Invoice{}, invalid("invoice", "type", fmt.Sprintf("unknown type %q", inv.Type))
	}
	if len(inv.Currency) != 3 {
		return Invoice{}, invalid("invoice", "currency", fmt.Sprintf("%q is not an ISO 4217 code", inv.Currency))
	}
	if err := inv.Totals.Validate(); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// LineSum adds up line subtotals
func (inv Invoice) LineSum() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range inv.Lines {
		sum = sum.Add(l.Subtotal)
	}
	return sum
}
