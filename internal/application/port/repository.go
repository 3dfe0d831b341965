package port

import (
	"context"

	"github.com/garyjia/supplier-ingest/internal/models"
)

// CatalogSink defines the downstream catalog (ERP, database or stub).
// Every write is idempotent: suppliers by VAT or name, categories by path,
// products by (supplier, code), purchases by (supplier, number).
type CatalogSink interface {
	ListProducts(ctx context.Context) ([]models.ProductRecord, error)
	ListSuppliers(ctx context.Context) ([]models.SupplierRecord, error)
	ListCategories(ctx context.Context) ([]models.CategoryRecord, error)

	UpsertSupplier(ctx context.Context, supplier models.Supplier) (int64, error)
	EnsureCategory(ctx context.Context, category models.Category) (int64, error)
	UpsertProduct(ctx context.Context, product models.Product, hint models.MatchHint) (int64, error)

	// EnsureProduct returns the product with this code for the supplier, creating a
	// minimal one named name when missing. Used by the invoice path.
	EnsureProduct(ctx context.Context, supplierID int64, code, name string) (int64, error)

	CreatePurchase(ctx context.Context, supplierID int64, invoice models.Invoice, productIDs []int64) (int64, error)
	FindPurchase(ctx context.Context, supplierID int64, number string) (int64, bool, error)
}
