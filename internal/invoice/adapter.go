// Package invoice turns OCR text of supplier invoices into canonical invoices.
// A registry picks the supplier adapter by scanning the text for known tokens.
package invoice

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/supplier-ingest/internal/application/port"
	"github.com/garyjia/supplier-ingest/internal/models"
)

// Document is the OCR output handed to an adapter, plus the selector token that matched
type Document struct {
	Text  string
	Pages []string
	Token string
}

// Adapter parses one supplier's invoice layout. Adapters are pure: no I/O.
type Adapter interface {
	Name() string
	Parse(doc Document, rec models.Recorder) (models.Invoice, error)
}

// Selector routes documents containing Token (case-insensitive) to the named adapter
type Selector struct {
	Token   string `mapstructure:"token" yaml:"token"`
	Adapter string `mapstructure:"adapter" yaml:"adapter"`
}

// DefaultSelectors lists the suppliers with a dedicated adapter
func DefaultSelectors() []Selector {
	return []Selector{
		{Token: "ALMCE", Adapter: AdapterALMCE},
	}
}

// Registry dispatches OCR results to adapters. Selector order decides ties.
type Registry struct {
	adapters  map[string]Adapter
	selectors []Selector
	logger    *zap.Logger
}

// NewRegistry registers the built-in adapters with the default selectors
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{adapters: make(map[string]Adapter), logger: logger}
	r.Register(NewALMCEAdapter())
	r.Register(NewGenericAdapter())
	r.selectors = DefaultSelectors()
	return r
}

// Register adds or replaces an adapter under its name
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// SetSelectors replaces the selector list. Every selector must name a registered adapter.
func (r *Registry) SetSelectors(selectors []Selector) error {
	out := make([]Selector, 0, len(selectors))
	for i, s := range selectors {
		token := strings.ToUpper(strings.TrimSpace(s.Token))
		if token == "" {
			return fmt.Errorf("adapter selector %d has an empty token", i)
		}
		if _, ok := r.adapters[s.Adapter]; !ok {
			return fmt.Errorf("adapter selector %q names unknown adapter %q", s.Token, s.Adapter)
		}
		out = append(out, Selector{Token: token, Adapter: s.Adapter})
	}
	r.selectors = out
	return nil
}

// Select returns the adapter of the first selector whose token occurs in text
func (r *Registry) Select(text string) (Adapter, Selector, error) {
	upper := strings.ToUpper(text)
	for _, s := range r.selectors {
		if strings.Contains(upper, strings.ToUpper(s.Token)) {
			return r.adapters[s.Adapter], s, nil
		}
	}
	return nil, Selector{}, models.ErrUnsupportedSupplier
}

// Parse selects an adapter and delegates to it
func (r *Registry) Parse(ocr *port.OCRResult, rec models.Recorder) (models.Invoice, error) {
	if ocr == nil || strings.TrimSpace(ocr.FullText) == "" {
		return models.Invoice{}, fmt.Errorf("%w: empty document", models.ErrUnsupportedSupplier)
	}

	adapter, sel, err := r.Select(ocr.FullText)
	if err != nil {
		r.logger.Warn("No adapter matches document", zap.Int("text_length", len(ocr.FullText)))
		return models.Invoice{}, err
	}

	r.logger.Info("Adapter selected", zap.String("adapter", adapter.Name()), zap.String("token", sel.Token))
	inv, err := adapter.Parse(Document{Text: ocr.FullText, Pages: ocr.Pages, Token: sel.Token}, rec)
	if err != nil {
		return models.Invoice{}, fmt.Errorf("adapter %s: %w", adapter.Name(), err)
	}
	return inv, nil
}
