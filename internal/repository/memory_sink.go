package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/models"
	"github.com/garyjia/supplier-ingest/pkg/utils"
)

// Sink operation names, as counted by MemorySink.Calls
const (
	OpUpsertSupplier = "upsert_supplier"
	OpEnsureCategory = "ensure_category"
	OpUpsertProduct  = "upsert_product"
	OpEnsureProduct  = "ensure_product"
	OpCreatePurchase = "create_purchase"
	OpFindPurchase   = "find_purchase"
)

// MemorySink keeps the catalog in process memory. It backs dry runs and tests.
type MemorySink struct {
	mu sync.Mutex

	nextID     int64
	suppliers  []models.SupplierRecord
	categories map[string]models.CategoryRecord
	products   map[int64]StoredProduct
	purchases  map[string]StoredPurchase
	calls      map[string]int
	failures   map[string]error

	// Delay is applied before every write, honoring the context
	Delay time.Duration
}

// StoredProduct is a product as held by MemorySink
type StoredProduct struct {
	models.ProductRecord
	Product models.Product
}

// StoredPurchase is a purchase as held by MemorySink
type StoredPurchase struct {
	ID         int64
	SupplierID int64
	Invoice    models.Invoice
	ProductIDs []int64
}

func NewMemorySink() *MemorySink {
	return &MemorySink{
		categories: make(map[string]models.CategoryRecord),
		products:   make(map[int64]StoredProduct),
		purchases:  make(map[string]StoredPurchase),
		calls:      make(map[string]int),
		failures:   make(map[string]error),
	}
}

// FailOn makes every later call of op return err. A nil err clears the failure.
func (m *MemorySink) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls returns how many times op was invoked
func (m *MemorySink) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Products returns stored products ordered by id
func (m *MemorySink) Products() []StoredProduct {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StoredProduct, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Purchases returns stored purchases ordered by id
func (m *MemorySink) Purchases() []StoredPurchase {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StoredPurchase, 0, len(m.purchases))
	for _, p := range m.purchases {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// begin counts the call, waits Delay and reports injected failures. Callers hold no lock.
func (m *MemorySink) begin(ctx context.Context, op string) error {
	m.mu.Lock()
	m.calls[op]++
	delay, fail := m.Delay, m.failures[op]
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return sinkErr(op, ctx.Err())
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return sinkErr(op, err)
	}
	if fail != nil {
		return sinkErr(op, fail)
	}
	return nil
}

func (m *MemorySink) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemorySink) ListProducts(ctx context.Context) ([]models.ProductRecord, error) {
	var out []models.ProductRecord
	for _, p := range m.Products() {
		out = append(out, p.ProductRecord)
	}
	return out, nil
}

func (m *MemorySink) ListSuppliers(ctx context.Context) ([]models.SupplierRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SupplierRecord(nil), m.suppliers...), nil
}

func (m *MemorySink) ListCategories(ctx context.Context) ([]models.CategoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.CategoryRecord, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SeedSupplier stores a supplier without counting a call
func (m *MemorySink) SeedSupplier(s models.Supplier) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.suppliers = append(m.suppliers, models.SupplierRecord{ID: id, Supplier: s})
	return id
}

func (m *MemorySink) UpsertSupplier(ctx context.Context, supplier models.Supplier) (int64, error) {
	if err := m.begin(ctx, OpUpsertSupplier); err != nil {
		return 0, err
	}
	supplier, err := models.NewSupplier(supplier)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	vat := utils.NormalizeVAT(supplier.VAT)
	for i, r := range m.suppliers {
		rv := utils.NormalizeVAT(r.VAT)
		sameVAT := vat != "" && rv == vat
		sameName := (vat == "" || rv == "") && utils.FoldKey(r.Name) == utils.FoldKey(supplier.Name)
		if !sameVAT && !sameName {
			continue
		}
		m.suppliers[i].Supplier = mergeSupplier(r.Supplier, supplier)
		return r.ID, nil
	}

	id := m.id()
	m.suppliers = append(m.suppliers, models.SupplierRecord{ID: id, Supplier: supplier})
	return id, nil
}

// mergeSupplier overwrites stored fields with non-empty incoming ones, keeping the stored name
func mergeSupplier(stored, in models.Supplier) models.Supplier {
	pick := func(cur, next string) string {
		if next != "" {
			return next
		}
		return cur
	}
	stored.VAT = pick(stored.VAT, in.VAT)
	stored.Email = pick(stored.Email, in.Email)
	stored.Phone = pick(stored.Phone, in.Phone)
	stored.Address = pick(stored.Address, in.Address)
	stored.City = pick(stored.City, in.City)
	stored.Zip = pick(stored.Zip, in.Zip)
	stored.Country = pick(stored.Country, in.Country)
	return stored
}

func (m *MemorySink) EnsureCategory(ctx context.Context, category models.Category) (int64, error) {
	if err := m.begin(ctx, OpEnsureCategory); err != nil {
		return 0, err
	}
	if category.IsZero() {
		return 0, &models.ValidationError{Entity: "category", Field: "name", Message: "must not be empty"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureCategory(category), nil
}

func (m *MemorySink) ensureCategory(category models.Category) int64 {
	if category.Parent != nil {
		m.ensureCategory(*category.Parent)
	}
	if r, ok := m.categories[category.Key()]; ok {
		return r.ID
	}
	r := models.CategoryRecord{ID: m.id(), Category: category}
	m.categories[category.Key()] = r
	return r.ID
}

func (m *MemorySink) UpsertProduct(ctx context.Context, product models.Product, hint models.MatchHint) (int64, error) {
	if err := m.begin(ctx, OpUpsertProduct); err != nil {
		return 0, err
	}
	product, err := models.NewProduct(product)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	categoryID := hint.CategoryID
	if categoryID <= 0 {
		categoryID = m.ensureCategory(product.Category)
	}

	// a product is never re-keyed: a hint to another code falls back to the code lookup
	id := hint.ExistingID
	if p, ok := m.products[id]; !ok || p.SupplierID != hint.SupplierID || utils.FoldKey(p.Code) != product.CodeKey() {
		id = m.productByCode(hint.SupplierID, product.CodeKey())
	}
	if id == 0 {
		id = m.id()
	}

	m.products[id] = StoredProduct{
		ProductRecord: models.ProductRecord{
			ID:         id,
			Code:       product.Code,
			Name:       product.Name,
			SupplierID: hint.SupplierID,
			CategoryID: categoryID,
		},
		Product: product,
	}
	return id, nil
}

func (m *MemorySink) productByCode(supplierID int64, codeKey string) int64 {
	for id, p := range m.products {
		if p.SupplierID == supplierID && utils.FoldKey(p.Code) == codeKey {
			return id
		}
	}
	return 0
}

func (m *MemorySink) EnsureProduct(ctx context.Context, supplierID int64, code, name string) (int64, error) {
	if err := m.begin(ctx, OpEnsureProduct); err != nil {
		return 0, err
	}
	code = utils.NormalizeSpace(code)
	if code == "" {
		return 0, &models.ValidationError{Entity: "product", Field: "code", Message: "must not be empty"}
	}
	if name = utils.NormalizeSpace(name); name == "" {
		name = code
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id := m.productByCode(supplierID, utils.FoldKey(code)); id > 0 {
		return id, nil
	}
	id := m.id()
	m.products[id] = StoredProduct{
		ProductRecord: models.ProductRecord{ID: id, Code: code, Name: name, SupplierID: supplierID},
		Product:       models.Product{Code: code, Name: name},
	}
	return id, nil
}

func purchaseKey(supplierID int64, number string) string {
	return fmt.Sprintf("%d|%s", supplierID, utils.NormalizeSpace(number))
}

func (m *MemorySink) CreatePurchase(ctx context.Context, supplierID int64, invoice models.Invoice, productIDs []int64) (int64, error) {
	if err := m.begin(ctx, OpCreatePurchase); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := purchaseKey(supplierID, invoice.Number)
	if p, ok := m.purchases[key]; ok {
		return p.ID, nil
	}
	p := StoredPurchase{
		ID:         m.id(),
		SupplierID: supplierID,
		Invoice:    invoice,
		ProductIDs: append([]int64(nil), productIDs...),
	}
	m.purchases[key] = p
	return p.ID, nil
}

func (m *MemorySink) FindPurchase(ctx context.Context, supplierID int64, number string) (int64, bool, error) {
	if err := m.begin(ctx, OpFindPurchase); err != nil {
		return 0, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[purchaseKey(supplierID, number)]
	return p.ID, ok, nil
}

var _ port.CatalogSink = (*MemorySink)(nil)
