// Package repository implements port.CatalogSink over sqlite and in memory.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/models"
	"github.com/garyjia/supplier-ingest/pkg/database"
	"github.com/garyjia/supplier-ingest/pkg/utils"
)

// SQLiteSink stores the catalog in a local sqlite database
type SQLiteSink struct {
	db     *database.DB
	logger *zap.Logger
}

// NewSQLiteSink creates a sink on an already migrated database
func NewSQLiteSink(db *database.DB, logger *zap.Logger) *SQLiteSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteSink{db: db, logger: logger}
}

func sinkErr(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", models.ErrSink, op, err)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullID(id int64) any {
	if id <= 0 {
		return nil
	}
	return id
}

func (s *SQLiteSink) ListProducts(ctx context.Context) ([]models.ProductRecord, error) {
	rows, err := s.db.Executor(ctx).QueryContext(ctx,
		`SELECT id, code, name, supplier_id, COALESCE(category_id, 0) FROM products ORDER BY id`)
	if err != nil {
		return nil, sinkErr("list products", err)
	}
	defer rows.Close()

	var out []models.ProductRecord
	for rows.Next() {
		var p models.ProductRecord
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.SupplierID, &p.CategoryID); err != nil {
			return nil, sinkErr("scan product", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, sinkErr("list products", err)
	}
	return out, nil
}

func (s *SQLiteSink) ListSuppliers(ctx context.Context) ([]models.SupplierRecord, error) {
	rows, err := s.db.Executor(ctx).QueryContext(ctx, `
		SELECT id, name, COALESCE(vat, ''), COALESCE(email, ''), COALESCE(phone, ''),
			COALESCE(address, ''), COALESCE(city, ''), COALESCE(zip, ''), COALESCE(country, '')
		FROM suppliers ORDER BY id`)
	if err != nil {
		return nil, sinkErr("list suppliers", err)
	}
	defer rows.Close()

	var out []models.SupplierRecord
	for rows.Next() {
		var r models.SupplierRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.VAT, &r.Email, &r.Phone,
			&r.Address, &r.City, &r.Zip, &r.Country); err != nil {
			return nil, sinkErr("scan supplier", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, sinkErr("list suppliers", err)
	}
	return out, nil
}

func (s *SQLiteSink) ListCategories(ctx context.Context) ([]models.CategoryRecord, error) {
	rows, err := s.db.Executor(ctx).QueryContext(ctx, `SELECT id, path FROM categories ORDER BY id`)
	if err != nil {
		return nil, sinkErr("list categories", err)
	}
	defer rows.Close()

	var out []models.CategoryRecord
	for rows.Next() {
		var (
			id   int64
			path string
		)
		if err := rows.Scan(&id, &path); err != nil {
			return nil, sinkErr("scan category", err)
		}
		cat, err := models.ParseCategoryPath(path)
		if err != nil {
			s.logger.Warn("Skipping malformed category", zap.Int64("id", id), zap.String("path", path))
			continue
		}
		out = append(out, models.CategoryRecord{ID: id, Category: cat})
	}
	if err := rows.Err(); err != nil {
		return nil, sinkErr("list categories", err)
	}
	return out, nil
}

// UpsertSupplier matches by VAT, then by name among suppliers without VAT.
// Non-empty incoming fields overwrite stored ones; the stored name is kept.
func (s *SQLiteSink) UpsertSupplier(ctx context.Context, supplier models.Supplier) (int64, error) {
	supplier, err := models.NewSupplier(supplier)
	if err != nil {
		return 0, err
	}
	vatKey := utils.NormalizeVAT(supplier.VAT)
	nameKey := utils.FoldKey(supplier.Name)

	var id int64
	err = s.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := s.db.Executor(ctx)

		id, err = s.findSupplier(ctx, vatKey, nameKey)
		if err != nil {
			return err
		}

		if id > 0 {
			_, err := exec.ExecContext(ctx, `
				UPDATE suppliers SET
					vat = COALESCE(?, vat), vat_key = COALESCE(?, vat_key),
					email = COALESCE(?, email), phone = COALESCE(?, phone),
					address = COALESCE(?, address), city = COALESCE(?, city),
					zip = COALESCE(?, zip), country = COALESCE(?, country),
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ?`,
				nullString(supplier.VAT), nullString(vatKey),
				nullString(supplier.Email), nullString(supplier.Phone),
				nullString(supplier.Address), nullString(supplier.City),
				nullString(supplier.Zip), nullString(supplier.Country),
				id,
			)
			return err
		}

		res, err := exec.ExecContext(ctx, `
			INSERT INTO suppliers (name, name_key, vat, vat_key, email, phone, address, city, zip, country)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			supplier.Name, nameKey, nullString(supplier.VAT), nullString(vatKey),
			nullString(supplier.Email), nullString(supplier.Phone), nullString(supplier.Address),
			nullString(supplier.City), nullString(supplier.Zip), nullString(supplier.Country),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, sinkErr("upsert supplier", err)
	}
	return id, nil
}

func (s *SQLiteSink) findSupplier(ctx context.Context, vatKey, nameKey string) (int64, error) {
	exec := s.db.Executor(ctx)
	var id int64
	if vatKey != "" {
		err := exec.QueryRowContext(ctx, `SELECT id FROM suppliers WHERE vat_key = ?`, vatKey).Scan(&id)
		if err == nil || !errors.Is(err, sql.ErrNoRows) {
			return id, err
		}
		err = exec.QueryRowContext(ctx,
			`SELECT id FROM suppliers WHERE name_key = ? AND vat_key IS NULL ORDER BY id LIMIT 1`, nameKey).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return id, err
	}

	err := exec.QueryRowContext(ctx,
		`SELECT id FROM suppliers WHERE name_key = ? ORDER BY id LIMIT 1`, nameKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

// EnsureCategory creates any missing node of the path and returns the leaf id
func (s *SQLiteSink) EnsureCategory(ctx context.Context, category models.Category) (int64, error) {
	if category.IsZero() {
		return 0, &models.ValidationError{Entity: "category", Field: "name", Message: "must not be empty"}
	}

	var id int64
	err := s.db.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.ensureCategory(ctx, category)
		return err
	})
	if err != nil {
		return 0, sinkErr("ensure category", err)
	}
	return id, nil
}

func (s *SQLiteSink) ensureCategory(ctx context.Context, category models.Category) (int64, error) {
	exec := s.db.Executor(ctx)

	var (
		parent   *models.Category
		parentID int64
	)
	for _, name := range category.Names() {
		node, err := models.NewCategory(name, parent)
		if err != nil {
			return 0, err
		}

		var id int64
		err = exec.QueryRowContext(ctx, `SELECT id FROM categories WHERE path_key = ?`, node.Key()).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := exec.ExecContext(ctx,
				`INSERT INTO categories (name, parent_id, path, path_key) VALUES (?, ?, ?, ?)`,
				node.Name, nullID(parentID), node.Path(), node.Key())
			if err != nil {
				return 0, err
			}
			if id, err = res.LastInsertId(); err != nil {
				return 0, err
			}
		case err != nil:
			return 0, err
		}

		parent, parentID = &node, id
	}
	return parentID, nil
}

// UpsertProduct updates hint.ExistingID or the (supplier, code) match, else inserts
func (s *SQLiteSink) UpsertProduct(ctx context.Context, product models.Product, hint models.MatchHint) (int64, error) {
	product, err := models.NewProduct(product)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := s.db.Executor(ctx)

		categoryID := hint.CategoryID
		if categoryID <= 0 {
			if categoryID, err = s.ensureCategory(ctx, product.Category); err != nil {
				return err
			}
		}

		margin := decimal.NullDecimal{}
		if product.MarginPct != nil {
			margin = decimal.NewNullDecimal(*product.MarginPct)
		}
		update := func(id int64) (bool, error) {
			// code_key in the filter keeps a product from being re-keyed by a stale or name-based hint
			res, err := exec.ExecContext(ctx, `
				UPDATE products SET code = ?, name = ?, description = ?, category_id = ?,
					cost = ?, price = ?, margin_pct = ?, barcode = ?, updated_at = CURRENT_TIMESTAMP
				WHERE id = ? AND supplier_id = ? AND code_key = ?`,
				product.Code, product.Name, nullString(product.Description), nullID(categoryID),
				product.Cost, product.Price, margin, nullString(product.Barcode),
				id, hint.SupplierID, product.CodeKey(),
			)
			if err != nil {
				return false, err
			}
			n, err := res.RowsAffected()
			return n > 0, err
		}

		if hint.ExistingID > 0 {
			ok, err := update(hint.ExistingID)
			if err != nil || ok {
				id = hint.ExistingID
				return err
			}
			s.logger.Debug("Product hint does not match code, looking up by code",
				zap.Int64("product_id", hint.ExistingID), zap.String("code", product.Code))
		}
		if id, err = s.productByCode(ctx, hint.SupplierID, product.CodeKey()); err != nil {
			return err
		}
		if id > 0 {
			ok, err := update(id)
			if err != nil || ok {
				return err
			}
			s.logger.Warn("Stale product lookup, inserting", zap.Int64("product_id", id))
		}

		res, err := exec.ExecContext(ctx, `
			INSERT INTO products (supplier_id, category_id, code, code_key, name, description,
				cost, price, margin_pct, barcode)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			hint.SupplierID, nullID(categoryID), product.Code, product.CodeKey(), product.Name,
			nullString(product.Description), product.Cost, product.Price, margin, nullString(product.Barcode),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, sinkErr("upsert product", err)
	}
	return id, nil
}

func (s *SQLiteSink) productByCode(ctx context.Context, supplierID int64, codeKey string) (int64, error) {
	var id int64
	err := s.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT id FROM products WHERE supplier_id = ? AND code_key = ?`, supplierID, codeKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

func (s *SQLiteSink) EnsureProduct(ctx context.Context, supplierID int64, code, name string) (int64, error) {
	code = utils.NormalizeSpace(code)
	if code == "" {
		return 0, &models.ValidationError{Entity: "product", Field: "code", Message: "must not be empty"}
	}
	if name = utils.NormalizeSpace(name); name == "" {
		name = code
	}

	var id int64
	err := s.db.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if id, err = s.productByCode(ctx, supplierID, utils.FoldKey(code)); err != nil || id > 0 {
			return err
		}
		res, err := s.db.Executor(ctx).ExecContext(ctx,
			`INSERT INTO products (supplier_id, code, code_key, name) VALUES (?, ?, ?, ?)`,
			supplierID, code, utils.FoldKey(code), name)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, sinkErr("ensure product", err)
	}
	return id, nil
}

// CreatePurchase stores the invoice and its lines. productIDs align with invoice.Lines;
// missing or zero entries leave the line unlinked. An existing (supplier, number) is returned as is.
func (s *SQLiteSink) CreatePurchase(ctx context.Context, supplierID int64, invoice models.Invoice, productIDs []int64) (int64, error) {
	var id int64
	err := s.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := s.db.Executor(ctx)

		existing, found, err := s.findPurchase(ctx, supplierID, invoice.Number)
		if err != nil {
			return err
		}
		if found {
			s.logger.Info("Purchase already recorded",
				zap.Int64("purchase_id", existing), zap.String("number", invoice.Number))
			id = existing
			return nil
		}

		t := invoice.Totals
		res, err := exec.ExecContext(ctx, `
			INSERT INTO purchases (supplier_id, number, invoice_date, invoice_type, currency,
				base, tax_rate, tax_amount, surcharge_rate, surcharge_amount, grand_total, payment_terms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			supplierID, invoice.Number, invoice.Date.String(), string(invoice.Type), invoice.Currency,
			t.Base, t.TaxRate, t.TaxAmount, t.SurchargeRate, t.SurchargeAmount, t.GrandTotal,
			nullString(invoice.PaymentTerms),
		)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}

		for i, line := range invoice.Lines {
			var productID int64
			if i < len(productIDs) {
				productID = productIDs[i]
			}
			taxBase := decimal.NullDecimal{}
			if line.TaxBase != nil {
				taxBase = decimal.NewNullDecimal(*line.TaxBase)
			}
			_, err := exec.ExecContext(ctx, `
				INSERT INTO purchase_lines (purchase_id, position, product_id, code, description,
					qty, price_unit, subtotal, tax_base, mismatch)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, i+1, nullID(productID), line.Code, line.Description,
				line.Qty, line.PriceUnit, line.Subtotal, taxBase, line.Mismatch,
			)
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, sinkErr("create purchase", err)
	}
	return id, nil
}

func (s *SQLiteSink) FindPurchase(ctx context.Context, supplierID int64, number string) (int64, bool, error) {
	id, found, err := s.findPurchase(ctx, supplierID, number)
	if err != nil {
		return 0, false, sinkErr("find purchase", err)
	}
	return id, found, nil
}

func (s *SQLiteSink) findPurchase(ctx context.Context, supplierID int64, number string) (int64, bool, error) {
	var id int64
	err := s.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT id FROM purchases WHERE supplier_id = ? AND number = ?`,
		supplierID, utils.NormalizeSpace(number)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// PurchaseLineCount returns the number of stored lines of a purchase
func (s *SQLiteSink) PurchaseLineCount(ctx context.Context, purchaseID int64) (int, error) {
	var n int
	err := s.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM purchase_lines WHERE purchase_id = ?`, purchaseID).Scan(&n)
	if err != nil {
		return 0, sinkErr("count purchase lines", err)
	}
	return n, nil
}

var _ port.CatalogSink = (*SQLiteSink)(nil)
