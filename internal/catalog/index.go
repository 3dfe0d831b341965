// Package catalog keeps an in-memory view of the downstream catalog for one pipeline run,
// so rows can be matched against existing products, suppliers and categories.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/models"
	"github.com/garyjia/supplier-ingest/pkg/utils"
)

// CategoryRef is an existing category id, or a plan to create the category on first upsert
type CategoryRef struct {
	ID       int64
	Category models.Category
	Planned  bool
}

// Index caches catalog entities keyed by their normalized identifiers.
// Updates made through Record* are visible to later lookups in the same run.
type Index struct {
	mu sync.RWMutex

	productsByCode map[string]models.ProductRecord
	productsByName map[string]models.ProductRecord

	suppliersByVAT   map[string]models.SupplierRecord
	suppliersByName  map[string]models.SupplierRecord
	suppliersByEmail map[string]models.SupplierRecord

	categories map[string]models.CategoryRecord

	logger *zap.Logger
}

// NewIndex creates an empty index
func NewIndex(logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		productsByCode:   make(map[string]models.ProductRecord),
		productsByName:   make(map[string]models.ProductRecord),
		suppliersByVAT:   make(map[string]models.SupplierRecord),
		suppliersByName:  make(map[string]models.SupplierRecord),
		suppliersByEmail: make(map[string]models.SupplierRecord),
		categories:       make(map[string]models.CategoryRecord),
		logger:           logger,
	}
}

// Load populates the index from the sink's listings
func (i *Index) Load(ctx context.Context, sink port.CatalogSink) error {
	suppliers, err := sink.ListSuppliers(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to list suppliers: %w", models.ErrSink, err)
	}
	categories, err := sink.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to list categories: %w", models.ErrSink, err)
	}
	products, err := sink.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to list products: %w", models.ErrSink, err)
	}

	for _, s := range suppliers {
		i.RecordSupplier(s)
	}
	for _, c := range categories {
		i.RecordCategory(c)
	}
	for _, p := range products {
		i.RecordProduct(p)
	}

	i.logger.Info("Catalog index loaded",
		zap.Int("suppliers", len(suppliers)),
		zap.Int("categories", len(categories)),
		zap.Int("products", len(products)))
	return nil
}

func scopedKey(supplierID int64, value string) string {
	return strconv.FormatInt(supplierID, 10) + "|" + utils.FoldKey(value)
}

// FindProduct looks a supplier's product up by code, then by name. Code beats name.
func (i *Index) FindProduct(supplierID int64, code, name string) (models.ProductRecord, models.MatchKind) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if utils.FoldKey(code) != "" {
		if p, ok := i.productsByCode[scopedKey(supplierID, code)]; ok {
			return p, models.MatchByCode
		}
	}
	if utils.FoldKey(name) != "" {
		if p, ok := i.productsByName[scopedKey(supplierID, name)]; ok {
			return p, models.MatchByName
		}
	}
	return models.ProductRecord{}, models.MatchNone
}

// FindSupplier matches by normalized VAT, then case-folded name, then case-folded email
func (i *Index) FindSupplier(vat, name, email string) (models.SupplierRecord, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if key := utils.NormalizeVAT(vat); key != "" {
		if s, ok := i.suppliersByVAT[key]; ok {
			return s, true
		}
	}
	if key := utils.FoldKey(name); key != "" {
		if s, ok := i.suppliersByName[key]; ok {
			return s, true
		}
	}
	if key := utils.FoldKey(email); key != "" {
		if s, ok := i.suppliersByEmail[key]; ok {
			return s, true
		}
	}
	return models.SupplierRecord{}, false
}

// FindOrPlanCategory returns the existing category id, or a planned reference the caller
// creates through the sink and then records
func (i *Index) FindOrPlanCategory(cat models.Category) CategoryRef {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if rec, ok := i.categories[cat.Key()]; ok {
		return CategoryRef{ID: rec.ID, Category: rec.Category}
	}
	return CategoryRef{Category: cat, Planned: true}
}

// RecordProduct makes a created or updated product visible to later lookups
func (i *Index) RecordProduct(p models.ProductRecord) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if utils.FoldKey(p.Code) != "" {
		i.productsByCode[scopedKey(p.SupplierID, p.Code)] = p
	}
	if utils.FoldKey(p.Name) != "" {
		key := scopedKey(p.SupplierID, p.Name)
		// The first product keeps a shared name; later ones are still reachable by code
		if _, taken := i.productsByName[key]; !taken {
			i.productsByName[key] = p
		}
	}
}

func (i *Index) RecordSupplier(s models.SupplierRecord) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if key := utils.NormalizeVAT(s.VAT); key != "" {
		i.suppliersByVAT[key] = s
	}
	if key := utils.FoldKey(s.Name); key != "" {
		i.suppliersByName[key] = s
	}
	if key := utils.FoldKey(s.Email); key != "" {
		i.suppliersByEmail[key] = s
	}
}

func (i *Index) RecordCategory(c models.CategoryRecord) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.categories[c.Category.Key()] = c
}

// SimilarSuppliers returns known suppliers whose folded name is within maxDistance edits
// of name, closest first. Exact matches are excluded.
func (i *Index) SimilarSuppliers(name string, maxDistance int) []models.SupplierRecord {
	key := utils.FoldKey(name)
	if key == "" {
		return nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	type scored struct {
		rec  models.SupplierRecord
		dist int
	}
	var hits []scored
	for k, rec := range i.suppliersByName {
		if k == key {
			continue
		}
		if d := levenshtein.ComputeDistance(key, k); d <= maxDistance {
			hits = append(hits, scored{rec: rec, dist: d})
		}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].dist != hits[b].dist {
			return hits[a].dist < hits[b].dist
		}
		return hits[a].rec.ID < hits[b].rec.ID
	})

	out := make([]models.SupplierRecord, len(hits))
	for n, h := range hits {
		out[n] = h.rec
	}
	return out
}

// Stats reports cache sizes
func (i *Index) Stats() (products, suppliers, categories int) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	ids := make(map[int64]struct{})
	for _, s := range i.suppliersByName {
		ids[s.ID] = struct{}{}
	}
	for _, s := range i.suppliersByVAT {
		ids[s.ID] = struct{}{}
	}
	return len(i.productsByCode), len(ids), len(i.categories)
}
