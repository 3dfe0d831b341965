package models

import (
	"github.com/garyjia/supplier-ingest/pkg/utils"
)

// Supplier is a vendor issuing price lists and invoices
type Supplier struct {
	Name    string `json:"name"`
	VAT     string `json:"vat,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

// NewSupplier returns s with whitespace normalized, or a ValidationError
func NewSupplier(s Supplier) (Supplier, error) {
	s.Name = utils.NormalizeSpace(s.Name)
	s.VAT = utils.NormalizeSpace(s.VAT)
	s.Email = utils.NormalizeSpace(s.Email)
	s.Phone = utils.NormalizeSpace(s.Phone)
	s.Address = utils.NormalizeSpace(s.Address)
	s.City = utils.NormalizeSpace(s.City)
	s.Zip = utils.NormalizeSpace(s.Zip)
	s.Country = utils.NormalizeSpace(s.Country)

	if s.Name == "" {
		return Supplier{}, invalid("supplier", "name", "must not be empty")
	}
	return s, nil
}

// Key is the identity of the supplier: normalized VAT when known, else the folded name
func (s Supplier) Key() string {
	if vat := utils.NormalizeVAT(s.VAT); vat != "" {
		return "vat:" + vat
	}
	return "name:" + utils.FoldKey(s.Name)
}

// Equal compares suppliers by VAT when both carry one, else by case-folded name
func (s Supplier) Equal(o Supplier) bool {
	a, b := utils.NormalizeVAT(s.VAT), utils.NormalizeVAT(o.VAT)
	if a != "" && b != "" {
		return a == b
	}
	return utils.FoldKey(s.Name) == utils.FoldKey(o.Name)
}

// SupplierRecord is a supplier known to the catalog
type SupplierRecord struct {
	ID int64 `json:"id"`
	Supplier
}
