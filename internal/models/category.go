package models

import (
	"encoding/json"
	"strings"

	"github.com/garyjia/supplier-ingest/pkg/utils"
)

// PathSeparator joins category names into a full path. Names may contain a bare "/" (e.g. "A/A").
const PathSeparator = " / "

// Category is a node in the product category tree
type Category struct {
	Name   string    `json:"name"`
	Parent *Category `json:"parent,omitempty"`
}

// NewCategory builds a child of parent (nil for a root)
func NewCategory(name string, parent *Category) (Category, error) {
	name = utils.NormalizeSpace(name)
	if name == "" {
		return Category{}, invalid("category", "name", "must not be empty")
	}
	return Category{Name: name, Parent: parent}, nil
}

// ParseCategoryPath builds a category from a path such as "Hogar / Cocina / FREIDORAS"
func ParseCategoryPath(path string) (Category, error) {
	var parent *Category
	var cat Category
	found := false
	for _, part := range strings.Split(path, PathSeparator) {
		if utils.NormalizeSpace(part) == "" {
			continue
		}
		c, err := NewCategory(part, parent)
		if err != nil {
			return Category{}, err
		}
		cat = c
		found = true
		node := c
		parent = &node
	}
	if !found {
		return Category{}, invalid("category", "path", "must not be empty")
	}
	return cat, nil
}

// Names returns the names from the root down to this category
func (c Category) Names() []string {
	var names []string
	for n := &c; n != nil; n = n.Parent {
		names = append([]string{n.Name}, names...)
	}
	return names
}

// Path returns the full path from the root
func (c Category) Path() string {
	return strings.Join(c.Names(), PathSeparator)
}

// Key is the case-folded full path
func (c Category) Key() string {
	return utils.FoldKey(c.Path())
}

func (c Category) IsZero() bool {
	return c.Name == ""
}

func (c Category) Equal(o Category) bool {
	return c.Key() == o.Key()
}

func (c Category) String() string {
	return c.Path()
}

// MarshalJSON encodes the category as its full path
func (c Category) MarshalJSON() ([]byte, error) {
	if c.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(c.Path())
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var path *string
	if err := json.Unmarshal(data, &path); err != nil {
		return err
	}
	if path == nil {
		*c = Category{}
		return nil
	}
	parsed, err := ParseCategoryPath(*path)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// CategoryRecord is a category known to the catalog
type CategoryRecord struct {
	ID       int64    `json:"id"`
	Category Category `json:"category"`
}
