package models

import (
	"github.com/shopspring/decimal"

	"github.com/garyjia/supplier-ingest/pkg/utils"
)

var hundred = decimal.NewFromInt(100)

// Product is a supplier article in canonical form
type Product struct {
	Code        string           `json:"code"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Category    Category         `json:"category"`
	Supplier    *Supplier        `json:"supplier,omitempty"`
	Cost        decimal.Decimal  `json:"cost"`
	Price       decimal.Decimal  `json:"price"`
	Barcode     string           `json:"barcode,omitempty"`
	MarginPct   *decimal.Decimal `json:"margin_pct,omitempty"`
}

// NewProduct validates p and derives its margin. Price below cost is allowed.
func NewProduct(p Product) (Product, error) {
	p.Code = utils.NormalizeSpace(p.Code)
	p.Name = utils.NormalizeSpace(p.Name)
	p.Description = utils.NormalizeSpace(p.Description)
	p.Barcode = utils.NormalizeSpace(p.Barcode)

	switch {
	case p.Code == "":
		return Product{}, invalid("product", "code", "must not be empty")
	case p.Name == "":
		return Product{}, invalid("product", "name", "must not be empty")
	case p.Category.IsZero():
		return Product{}, invalid("product", "category", "must be set")
	case p.Cost.IsNegative():
		return Product{}, invalid("product", "cost", "must not be negative")
	case p.Price.IsNegative():
		return Product{}, invalid("product", "price", "must not be negative")
	}

	p.MarginPct = nil
	if p.Cost.IsPositive() {
		m := p.Price.Sub(p.Cost).Div(p.Cost).Mul(hundred).Round(2)
		p.MarginPct = &m
	}
	return p, nil
}

// CodeKey is the case-folded supplier SKU
func (p Product) CodeKey() string {
	return utils.FoldKey(p.Code)
}

// ProductRecord is a product known to the catalog
type ProductRecord struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	SupplierID int64  `json:"supplier_id,omitempty"`
	CategoryID int64  `json:"category_id,omitempty"`
}

// MatchKind tells how a candidate matched an existing catalog product
type MatchKind string

const (
	MatchByCode MatchKind = "by_code"
	MatchByName MatchKind = "by_name"
	MatchNone   MatchKind = "none"
)

// MatchHint accompanies an upsert so the sink can update instead of create
type MatchHint struct {
	Kind       MatchKind `json:"kind"`
	ExistingID int64     `json:"existing_id,omitempty"`
	SupplierID int64     `json:"supplier_id,omitempty"`
	CategoryID int64     `json:"category_id,omitempty"`
}
