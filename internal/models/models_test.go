package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewSupplier(t *testing.T) {
	s, err := NewSupplier(Supplier{Name: "  ALMCE   S.L. ", VAT: " B-14891592 "})
	require.NoError(t, err)
	assert.Equal(t, "ALMCE S.L.", s.Name)
	assert.Equal(t, "B-14891592", s.VAT)
	assert.Equal(t, "vat:B14891592", s.Key())

	_, err = NewSupplier(Supplier{Name: "   "})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Field)
}

func TestSupplierEqual(t *testing.T) {
	a := Supplier{Name: "Almce S.L.", VAT: "B14891592"}
	b := Supplier{Name: "Other name", VAT: "b-14891592"}
	c := Supplier{Name: "  almce  s.l."}

	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(c))
	assert.False(t, b.Equal(Supplier{Name: "Other", VAT: "B00000000"}))
	assert.Equal(t, "name:almce s.l.", c.Key())
}

func TestCategoryPath(t *testing.T) {
	cat, err := ParseCategoryPath("Hogar / Climatización / A/A")
	require.NoError(t, err)
	assert.Equal(t, "A/A", cat.Name)
	assert.Equal(t, []string{"Hogar", "Climatización", "A/A"}, cat.Names())
	assert.Equal(t, "Hogar / Climatización / A/A", cat.Path())
	assert.Equal(t, "hogar / climatización / a/a", cat.Key())

	other, err := ParseCategoryPath("  HOGAR /  climatización / a/a ")
	require.NoError(t, err)
	assert.True(t, cat.Equal(other))

	_, err = ParseCategoryPath(" / ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCategoryJSON(t *testing.T) {
	cat, err := ParseCategoryPath("Cocina / FREIDORAS")
	require.NoError(t, err)

	data, err := json.Marshal(cat)
	require.NoError(t, err)
	assert.JSONEq(t, `"Cocina / FREIDORAS"`, string(data))

	var back Category
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equal(cat))
	require.NotNil(t, back.Parent)
	assert.Equal(t, "Cocina", back.Parent.Name)
}

func TestNewProduct(t *testing.T) {
	cat, _ := ParseCategoryPath("FREIDORAS")

	tests := []struct {
		name      string
		in        Product
		wantErr   string
		wantMargn string
	}{
		{
			name:      "margin derived",
			in:        Product{Code: " A1 ", Name: "Freidora", Category: cat, Cost: dec("80"), Price: dec("100")},
			wantMargn: "25",
		},
		{
			name:      "price below cost allowed",
			in:        Product{Code: "A2", Name: "Promo", Category: cat, Cost: dec("100"), Price: dec("90")},
			wantMargn: "-10",
		},
		{
			name: "zero cost carries no margin",
			in:   Product{Code: "A3", Name: "Gift", Category: cat, Cost: decimal.Zero, Price: dec("5")},
		},
		{name: "empty code", in: Product{Name: "X", Category: cat}, wantErr: "code"},
		{name: "empty name", in: Product{Code: "X", Category: cat}, wantErr: "name"},
		{name: "no category", in: Product{Code: "X", Name: "Y"}, wantErr: "category"},
		{name: "negative cost", in: Product{Code: "X", Name: "Y", Category: cat, Cost: dec("-1")}, wantErr: "cost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProduct(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, KindValidation, KindOf(err))
				return
			}
			require.NoError(t, err)
			if tt.wantMargn == "" {
				assert.Nil(t, p.MarginPct)
				return
			}
			require.NotNil(t, p.MarginPct)
			assert.True(t, dec(tt.wantMargn).Equal(*p.MarginPct), "margin %s", p.MarginPct)
		})
	}
}

func TestNewInvoiceLineMismatch(t *testing.T) {
	ok, err := NewInvoiceLine(InvoiceLine{Code: "12345", Description: "CAFETERA X", Qty: dec("2"), PriceUnit: dec("50"), Subtotal: dec("100.01")})
	require.NoError(t, err)
	assert.False(t, ok.Mismatch)

	bad, err := NewInvoiceLine(InvoiceLine{Code: "12345", Description: "CAFETERA X", Qty: dec("2"), PriceUnit: dec("50"), Subtotal: dec("100.02")})
	require.NoError(t, err)
	assert.True(t, bad.Mismatch)

	ret, err := NewInvoiceLine(InvoiceLine{Code: "1", Description: "Return", Qty: dec("-1"), PriceUnit: dec("10"), Subtotal: dec("-10")})
	require.NoError(t, err)
	assert.False(t, ret.Mismatch)

	_, err = NewInvoiceLine(InvoiceLine{Code: "1", Description: "x", PriceUnit: dec("-1")})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewInvoice(t *testing.T) {
	line, err := NewInvoiceLine(InvoiceLine{Code: "1", Description: "x", Qty: dec("1"), PriceUnit: dec("100"), Subtotal: dec("100")})
	require.NoError(t, err)

	base := Invoice{
		Supplier: Supplier{Name: "ALMCE S.L."},
		Number:   "F-1",
		Date:     NewDate(2024, 3, 1),
		Totals:   Totals{Base: dec("100"), GrandTotal: dec("121")},
		Lines:    []InvoiceLine{line},
	}

	inv, err := NewInvoice(base)
	require.NoError(t, err)
	assert.Equal(t, InvoiceTypeInvoice, inv.Type)
	assert.Equal(t, "EUR", inv.Currency)

	noLines := base
	noLines.Lines = nil
	_, err = NewInvoice(noLines)
	assert.ErrorIs(t, err, ErrValidation)

	badTotals := base
	badTotals.Totals = Totals{Base: dec("100"), GrandTotal: dec("90")}
	_, err = NewInvoice(badTotals)
	assert.ErrorIs(t, err, ErrValidation)

	credit := base
	credit.Type = InvoiceTypeCredit
	credit.Totals = Totals{Base: dec("-100"), GrandTotal: dec("-121")}
	_, err = NewInvoice(credit)
	assert.NoError(t, err)
}

func TestDateJSON(t *testing.T) {
	d := NewDate(2024, 2, 29)
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2024-02-29"`, string(data))

	var back Date
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equal(d.Time))

	assert.ErrorIs(t, json.Unmarshal([]byte(`"29/02/2024"`), &back), ErrParse)
}

func TestRawRowJSONKeepsOrder(t *testing.T) {
	row := RawRow{Cells: []Cell{{"COD.", "A1"}, {"DESCRIPCIÓN", "Refrigerator X"}, {"P.V.P", 499.0}, {"EAN", nil}}}
	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"COD.":"A1","DESCRIPCIÓN":"Refrigerator X","P.V.P":499,"EAN":null}`, string(data))
	assert.Equal(t, 3, row.NonEmpty())

	v, ok := row.Get("P.V.P")
	assert.True(t, ok)
	assert.Equal(t, 499.0, v)
}

func TestBusinessRulesLines(t *testing.T) {
	rules := &BusinessRules{Sheet: "Reglas", Rows: [][]string{{"Margen", "", "30%"}, {"", ""}, {"Portes", "gratis"}}}
	assert.Equal(t, []string{"Margen | 30%", "Portes | gratis"}, rules.Lines())
	assert.False(t, rules.Empty())

	var none *BusinessRules
	assert.True(t, none.Empty())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindAdapter, KindOf(ErrUnsupportedSupplier))
	assert.Equal(t, KindAdapter, KindOf(fmt.Errorf("wrap: %w", ErrInvoiceParse)))
	assert.Equal(t, KindExtraction, KindOf(fmt.Errorf("%w: %w", ErrExtraction, errTimeoutLike{})))
	assert.Equal(t, KindSink, KindOf(errors.New("disk full")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

type errTimeoutLike struct{}

func (errTimeoutLike) Error() string { return "deadline" }

func TestWarningsScoped(t *testing.T) {
	w := &Warnings{}
	rec := Scoped(w, "sheet Tarifa")
	Warn(rec, KindParse, "row 3", "bad number %q", "abc")
	Warn(nil, KindParse, "", "dropped")

	list := w.List()
	require.Len(t, list, 1)
	assert.Equal(t, "sheet Tarifa: row 3", list[0].Scope)
	assert.Equal(t, `bad number "abc"`, list[0].Message)
}

func TestImportResultJSONHasEmptyArrays(t *testing.T) {
	data, err := json.Marshal(NewImportResult("run-1"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"created":[]`)
	assert.Contains(t, string(data), `"failed":[]`)
}
