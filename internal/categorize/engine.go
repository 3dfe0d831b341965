// Package categorize maps free-text product descriptions to catalog categories
// using an ordered keyword table and per-supplier defaults.
package categorize

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/supplier-ingest/internal/models"
)

// Rule maps a keyword found in a description to a category
type Rule struct {
	Keyword      string `yaml:"keyword" mapstructure:"keyword"`
	CategoryPath string `yaml:"category_path" mapstructure:"category_path"`
	CategoryID   int64  `yaml:"category_id" mapstructure:"category_id"`
}

// SupplierDefault assigns a category to every product of a supplier when no keyword hits
type SupplierDefault struct {
	Supplier     string `yaml:"supplier" mapstructure:"supplier"`
	CategoryPath string `yaml:"category_path" mapstructure:"category_path"`
	CategoryID   int64  `yaml:"category_id" mapstructure:"category_id"`
}

// Source tells which table produced a match
type Source string

const (
	SourceKeyword         Source = "keyword"
	SourceSupplierDefault Source = "supplier_default"
	SourceNone            Source = "none"
)

// Match explains a categorization decision
type Match struct {
	Category   models.Category
	CategoryID int64
	Source     Source
	Keyword    string
}

type compiled struct {
	key      string
	category models.Category
	id       int64
}

// Engine is immutable after construction and safe for concurrent use
type Engine struct {
	keywords []compiled
	defaults []compiled
}

// NewEngine compiles rules in declaration order. Duplicate keywords keep their first declaration.
func NewEngine(rules []Rule, defaults []SupplierDefault) (*Engine, error) {
	e := &Engine{}
	seen := make(map[string]bool)
	for i, r := range rules {
		key := Normalize(r.Keyword)
		if key == "" {
			return nil, fmt.Errorf("category rule %d has an empty keyword", i)
		}
		if seen[key] {
			continue
		}
		cat, err := models.ParseCategoryPath(r.CategoryPath)
		if err != nil {
			return nil, fmt.Errorf("category rule %q: %w", r.Keyword, err)
		}
		seen[key] = true
		e.keywords = append(e.keywords, compiled{key: key, category: cat, id: r.CategoryID})
	}

	for _, d := range defaults {
		key := Normalize(d.Supplier)
		if key == "" {
			return nil, fmt.Errorf("supplier default with empty supplier")
		}
		cat, err := models.ParseCategoryPath(d.CategoryPath)
		if err != nil {
			return nil, fmt.Errorf("supplier default %q: %w", d.Supplier, err)
		}
		e.defaults = append(e.defaults, compiled{key: key, category: cat, id: d.CategoryID})
	}
	// Containment matching is checked longest supplier first
	sort.SliceStable(e.defaults, func(i, j int) bool {
		return len(e.defaults[i].key) > len(e.defaults[j].key)
	})
	return e, nil
}

// Default returns the engine built from the bundled tables
func Default() *Engine {
	e, err := NewEngine(DefaultRules(), DefaultSupplierCategories())
	if err != nil {
		panic(fmt.Sprintf("bundled category rules are invalid: %v", err))
	}
	return e
}

type ruleFile struct {
	Keywords         []Rule            `yaml:"category_keywords"`
	SupplierDefaults []SupplierDefault `yaml:"supplier_default_categories"`
}

// LoadFile reads a YAML rule file with category_keywords and supplier_default_categories lists
func LoadFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read category rules: %w", err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse category rules: %w", err)
	}
	return NewEngine(f.Keywords, f.SupplierDefaults)
}

// Infer returns the category for a description, falling back to the supplier default.
// It is a pure function of its inputs.
func (e *Engine) Infer(description, supplier string) (models.Category, bool) {
	m := e.Explain(description, supplier)
	return m.Category, m.Source != SourceNone
}

// Explain is Infer with the reason attached
func (e *Engine) Explain(description, supplier string) Match {
	if kw, ok := e.Keyword(description); ok {
		return kw
	}
	if def, ok := e.SupplierDefault(supplier); ok {
		return def
	}
	return Match{Source: SourceNone}
}

// Keyword scans the keyword table only
func (e *Engine) Keyword(description string) (Match, bool) {
	text := Normalize(description)
	if text == "" {
		return Match{Source: SourceNone}, false
	}
	for _, k := range e.keywords {
		if strings.Contains(text, k.key) {
			return Match{Category: k.category, CategoryID: k.id, Source: SourceKeyword, Keyword: k.key}, true
		}
	}
	return Match{Source: SourceNone}, false
}

// SupplierDefault looks the supplier up by exact normalized name, then by containment
// ("ORBEGOZO S.A." uses the ORBEGOZO default).
func (e *Engine) SupplierDefault(supplier string) (Match, bool) {
	name := Normalize(supplier)
	if name == "" {
		return Match{Source: SourceNone}, false
	}
	for _, d := range e.defaults {
		if d.key == name {
			return Match{Category: d.category, CategoryID: d.id, Source: SourceSupplierDefault, Keyword: d.key}, true
		}
	}
	for _, d := range e.defaults {
		if strings.Contains(name, d.key) {
			return Match{Category: d.category, CategoryID: d.id, Source: SourceSupplierDefault, Keyword: d.key}, true
		}
	}
	return Match{Source: SourceNone}, false
}

// Rules returns the number of keyword rules, for logging
func (e *Engine) Rules() int {
	return len(e.keywords)
}
